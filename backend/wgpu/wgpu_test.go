package wgpu

import (
	"image"
	"testing"

	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcolor/gfx"
)

type sizedWindow struct{ w, h int }

func (sizedWindow) NativeHandle() uintptr             { return 0 }
func (s sizedWindow) ClientSize() (width, height int) { return s.w, s.h }

type rig struct {
	dev   *device
	queue *queue
	sc    *swapChain
	heap  gfx.DescriptorHeap
	alloc *allocator
	list  *commandList
	rtv   [2]gfx.CPUDescriptorHandle
}

func newRig(t *testing.T) *rig {
	t.Helper()
	b := New()
	b.API = noop.API{}

	f, err := b.CreateFactory(0)
	require.NoError(t, err)
	d, err := f.CreateDevice(gfx.FeatureLevel12_0)
	require.NoError(t, err)
	r := &rig{dev: d.(*device)}
	t.Cleanup(d.Release)

	q, err := d.CreateCommandQueue(&gfx.CommandQueueDesc{Type: gfx.CommandListTypeDirect})
	require.NoError(t, err)
	r.queue = q.(*queue)
	t.Cleanup(q.Release)

	sc, err := f.CreateSwapChainForWindow(q, sizedWindow{8, 4}, &gfx.SwapChainDesc1{
		Format:      gfx.FormatR8G8B8A8UNorm,
		BufferCount: 2,
		SampleDesc:  gfx.SampleDesc{Count: 1},
	})
	require.NoError(t, err)
	r.sc = sc.(*swapChain)
	t.Cleanup(sc.Release)

	r.heap, err = d.CreateDescriptorHeap(&gfx.DescriptorHeapDesc{Type: gfx.DescriptorHeapTypeRTV, NumDescriptors: 2})
	require.NoError(t, err)
	inc := d.DescriptorHandleIncrementSize(gfx.DescriptorHeapTypeRTV)
	for i := range r.rtv {
		r.rtv[i] = r.heap.CPUDescriptorHandleForHeapStart().Offset(i, inc)
		d.CreateRenderTargetView(r.sc.buffers[i], nil, r.rtv[i])
	}

	a, err := d.CreateCommandAllocator(gfx.CommandListTypeDirect)
	require.NoError(t, err)
	r.alloc = a.(*allocator)
	l, err := d.CreateCommandList(0, gfx.CommandListTypeDirect, a, nil)
	require.NoError(t, err)
	r.list = l.(*commandList)
	require.NoError(t, l.Close())
	return r
}

func (r *rig) record(t *testing.T, before gfx.ResourceStates) {
	t.Helper()
	require.NoError(t, r.alloc.Reset())
	require.NoError(t, r.list.Reset(r.alloc, nil))
	buf := r.sc.buffers[r.sc.CurrentBackBufferIndex()]
	rtv := r.rtv[r.sc.CurrentBackBufferIndex()]
	r.list.ResourceBarrier([]gfx.ResourceBarrier{gfx.Transition(buf, before, gfx.ResourceStateRenderTarget)})
	r.list.OMSetRenderTargets([]gfx.CPUDescriptorHandle{rtv}, false, nil)
	r.list.ClearRenderTargetView(rtv, gfx.ColorTeal, nil)
	r.list.ResourceBarrier([]gfx.ResourceBarrier{gfx.Transition(buf, gfx.ResourceStateRenderTarget, gfx.ResourceStatePresent)})
	require.NoError(t, r.list.Close())
}

func TestClearAndPresent(t *testing.T) {
	r := newRig(t)

	for frame := 0; frame < 3; frame++ {
		assert.Equal(t, uint32(frame%2), r.sc.CurrentBackBufferIndex())
		r.record(t, gfx.ResourceStatePresent)
		r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
		require.NoError(t, r.sc.Present(1, 0))
	}
	assert.NoError(t, r.dev.lost)
	assert.Equal(t, uint64(3), r.queue.submitted)
	for _, b := range r.sc.buffers {
		assert.Equal(t, gfx.ResourceStatePresent, b.state)
	}

	img, err := r.sc.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

func TestBarrierMismatchRemovesDevice(t *testing.T) {
	r := newRig(t)

	r.record(t, gfx.ResourceStateRenderTarget)
	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})

	assert.ErrorIs(t, r.dev.lost, gfx.ErrDeviceRemoved)
	assert.ErrorIs(t, r.sc.Present(1, 0), gfx.ErrDeviceRemoved)
	assert.Zero(t, r.queue.submitted, "nothing is submitted after a validation failure")
}

func TestPresentInRenderTargetStateRemovesDevice(t *testing.T) {
	r := newRig(t)
	r.sc.buffers[0].state = gfx.ResourceStateRenderTarget

	assert.ErrorIs(t, r.sc.Present(0, 0), gfx.ErrDeviceRemoved)
}

func TestExecuteUnclosedList(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.alloc.Reset())
	require.NoError(t, r.list.Reset(r.alloc, nil))

	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
	assert.ErrorIs(t, r.dev.lost, gfx.ErrDeviceRemoved)
}

func TestEmptyDescriptorFailsClose(t *testing.T) {
	r := newRig(t)
	r.heap.Release()

	require.NoError(t, r.alloc.Reset())
	require.NoError(t, r.list.Reset(r.alloc, nil))
	r.list.ClearRenderTargetView(r.rtv[0], gfx.ColorTeal, nil)
	assert.Error(t, r.list.Close())
}

func TestReleaseDiscardsOpenEncoders(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.list.Reset(r.alloc, nil))
	r.list.Release()
	assert.False(t, r.list.recording)
	assert.Nil(t, r.list.encoder)

	require.NoError(t, r.sc.encoder.BeginEncoding("clearcolor_pending"))
	r.sc.encoding = true
	r.sc.Release()
	assert.False(t, r.sc.encoding)
	assert.Nil(t, r.sc.encoder)
	assert.Empty(t, r.sc.buffers)
}

func TestPresentLeavesNoOpenEncoding(t *testing.T) {
	r := newRig(t)

	r.record(t, gfx.ResourceStatePresent)
	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
	require.NoError(t, r.sc.Present(1, 0))
	assert.False(t, r.sc.encoding)
}

func TestFenceAndEvent(t *testing.T) {
	r := newRig(t)
	f, err := r.dev.CreateFence(0, gfx.FenceFlagNone)
	require.NoError(t, err)
	defer f.Release()
	ev, err := New().CreateEvent()
	require.NoError(t, err)

	require.NoError(t, r.queue.Signal(f, 1))
	require.NoError(t, f.SetEventOnCompletion(1, ev))
	require.NoError(t, ev.Wait())
	assert.Equal(t, uint64(1), f.CompletedValue())

	assert.ErrorIs(t, ev.Wait(), errNothingArmed)
	require.NoError(t, ev.Close())
	assert.ErrorIs(t, ev.Wait(), gfx.ErrEventClosed)
}

func TestSingleQueue(t *testing.T) {
	r := newRig(t)
	_, err := r.dev.CreateCommandQueue(&gfx.CommandQueueDesc{Type: gfx.CommandListTypeDirect})
	assert.ErrorIs(t, err, gfx.ErrNotSupported)
}

func TestFeatureLevelTooHigh(t *testing.T) {
	b := New()
	b.API = noop.API{}
	f, err := b.CreateFactory(0)
	require.NoError(t, err)
	_, err = f.CreateDevice(gfx.FeatureLevel(0xd000))
	assert.ErrorIs(t, err, gfx.ErrDeviceUnavailable)
}

func TestUnpack(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 1, 2))
	// Two one-pixel rows, each padded to eight bytes.
	src := []byte{
		1, 2, 3, 4, 0, 0, 0, 0,
		5, 6, 7, 8, 0, 0, 0, 0,
	}

	unpack(dst, src, 8, false)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, dst.Pix)

	unpack(dst, src, 8, true)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, dst.Pix)
}
