package software

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcolor/gfx"
)

type fixedWindow struct{ w, h int }

func (fixedWindow) NativeHandle() uintptr             { return 0 }
func (f fixedWindow) ClientSize() (width, height int) { return f.w, f.h }

type testRig struct {
	backend *Backend
	dev     gfx.Device
	queue   gfx.CommandQueue
	sc      gfx.SwapChain3
	heap    gfx.DescriptorHeap
	bufs    []gfx.Resource
	alloc   gfx.CommandAllocator
	list    gfx.GraphicsCommandList
	fence   gfx.Fence
	event   gfx.Event
}

func newRig(t *testing.T, w, h int) *testRig {
	t.Helper()
	b := New()
	r := &testRig{backend: b}

	factory, err := b.CreateFactory(0)
	require.NoError(t, err)
	r.dev, err = factory.CreateDevice(gfx.FeatureLevel12_0)
	require.NoError(t, err)
	r.queue, err = r.dev.CreateCommandQueue(&gfx.CommandQueueDesc{Type: gfx.CommandListTypeDirect})
	require.NoError(t, err)
	t.Cleanup(r.queue.Release)

	sc, err := factory.CreateSwapChainForWindow(r.queue, fixedWindow{w, h}, &gfx.SwapChainDesc1{
		Format:      gfx.FormatR8G8B8A8UNorm,
		BufferCount: 2,
		SampleDesc:  gfx.SampleDesc{Count: 1},
	})
	require.NoError(t, err)
	r.sc = sc.(gfx.SwapChain3)

	r.heap, err = r.dev.CreateDescriptorHeap(&gfx.DescriptorHeapDesc{Type: gfx.DescriptorHeapTypeRTV, NumDescriptors: 2})
	require.NoError(t, err)
	inc := r.dev.DescriptorHandleIncrementSize(gfx.DescriptorHeapTypeRTV)
	for i := uint32(0); i < 2; i++ {
		buf, err := r.sc.GetBuffer(i)
		require.NoError(t, err)
		r.dev.CreateRenderTargetView(buf, nil, r.heap.CPUDescriptorHandleForHeapStart().Offset(int(i), inc))
		r.bufs = append(r.bufs, buf)
	}

	r.alloc, err = r.dev.CreateCommandAllocator(gfx.CommandListTypeDirect)
	require.NoError(t, err)
	r.list, err = r.dev.CreateCommandList(0, gfx.CommandListTypeDirect, r.alloc, nil)
	require.NoError(t, err)
	require.NoError(t, r.list.Close())

	r.fence, err = r.dev.CreateFence(0, gfx.FenceFlagNone)
	require.NoError(t, err)
	r.event, err = b.CreateEvent()
	require.NoError(t, err)
	return r
}

func (r *testRig) wait(t *testing.T, value uint64) {
	t.Helper()
	require.NoError(t, r.queue.Signal(r.fence, value))
	require.NoError(t, r.fence.SetEventOnCompletion(value, r.event))
	require.NoError(t, r.event.Wait())
	assert.GreaterOrEqual(t, r.fence.CompletedValue(), value)
}

func (r *testRig) record(t *testing.T, idx uint32, c gfx.Color, before gfx.ResourceStates) {
	t.Helper()
	require.NoError(t, r.alloc.Reset())
	require.NoError(t, r.list.Reset(r.alloc, nil))
	rtv := r.heap.CPUDescriptorHandleForHeapStart().Offset(int(idx), r.dev.DescriptorHandleIncrementSize(gfx.DescriptorHeapTypeRTV))
	r.list.ResourceBarrier([]gfx.ResourceBarrier{gfx.Transition(r.bufs[idx], before, gfx.ResourceStateRenderTarget)})
	r.list.OMSetRenderTargets([]gfx.CPUDescriptorHandle{rtv}, false, nil)
	r.list.ClearRenderTargetView(rtv, c, nil)
	r.list.ResourceBarrier([]gfx.ResourceBarrier{gfx.Transition(r.bufs[idx], gfx.ResourceStateRenderTarget, gfx.ResourceStatePresent)})
	require.NoError(t, r.list.Close())
}

func TestClearAndPresent(t *testing.T) {
	r := newRig(t, 4, 3)

	r.record(t, r.sc.CurrentBackBufferIndex(), gfx.ColorTeal, gfx.ResourceStatePresent)
	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
	require.NoError(t, r.sc.Present(1, 0))
	r.wait(t, 1)
	assert.Equal(t, uint32(1), r.sc.CurrentBackBufferIndex())

	img, err := r.sc.(gfx.FrameReader).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, color.RGBA{0, 204, 204, 255}, img.RGBAAt(x, y))
		}
	}

	// The second buffer was never drawn.
	r.record(t, r.sc.CurrentBackBufferIndex(), gfx.ColorWhite, gfx.ResourceStatePresent)
	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
	require.NoError(t, r.sc.Present(1, 0))
	r.wait(t, 2)

	img, err = r.sc.(gfx.FrameReader).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 0))
	assert.Equal(t, 2, r.sc.(*swapChain).presented)
}

func TestBarrierMismatchRemovesDevice(t *testing.T) {
	r := newRig(t, 2, 2)

	r.record(t, 0, gfx.ColorTeal, gfx.ResourceStateRenderTarget)
	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
	r.wait(t, 1)

	err := r.sc.Present(1, 0)
	assert.ErrorIs(t, err, gfx.ErrDeviceRemoved)
	assert.Contains(t, err.Error(), "does not match")

	_, err = r.sc.(gfx.FrameReader).ReadFrame()
	assert.ErrorIs(t, err, gfx.ErrDeviceRemoved)
}

func TestPresentInRenderTargetStateRemovesDevice(t *testing.T) {
	r := newRig(t, 2, 2)

	require.NoError(t, r.alloc.Reset())
	require.NoError(t, r.list.Reset(r.alloc, nil))
	r.list.ResourceBarrier([]gfx.ResourceBarrier{gfx.Transition(r.bufs[0], gfx.ResourceStatePresent, gfx.ResourceStateRenderTarget)})
	require.NoError(t, r.list.Close())
	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
	require.NoError(t, r.sc.Present(0, 0))
	r.wait(t, 1)

	assert.ErrorIs(t, r.sc.Present(0, 0), gfx.ErrDeviceRemoved)
}

func TestAllocatorResetWhileInFlight(t *testing.T) {
	r := newRig(t, 2, 2)
	q := r.queue.(*queue)

	gate := make(chan struct{})
	q.work <- func() { <-gate }

	r.record(t, 0, gfx.ColorTeal, gfx.ResourceStatePresent)
	r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
	assert.Error(t, r.alloc.Reset())

	close(gate)
	r.wait(t, 1)
	assert.NoError(t, r.alloc.Reset())
}

func TestEventAutoReset(t *testing.T) {
	e := newEvent()
	e.signal()
	e.signal()
	require.NoError(t, e.Wait())

	done := make(chan error, 1)
	go func() { done <- e.Wait() }()
	select {
	case <-done:
		t.Fatal("second wait returned without a signal")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, e.Close())
	assert.ErrorIs(t, <-done, gfx.ErrEventClosed)
	assert.ErrorIs(t, e.Close(), gfx.ErrEventClosed)
}

func TestFenceSignalsPastValues(t *testing.T) {
	f := &fence{}
	e := newEvent()
	require.NoError(t, f.SetEventOnCompletion(3, e))
	f.set(2)
	select {
	case <-e.ch:
		t.Fatal("event signaled early")
	default:
	}
	f.set(5)
	require.NoError(t, e.Wait())

	require.NoError(t, f.SetEventOnCompletion(4, e))
	require.NoError(t, e.Wait())
	assert.Equal(t, uint64(5), f.CompletedValue())
}

func TestPresentPacing(t *testing.T) {
	r := newRig(t, 1, 1)
	r.backend.RefreshInterval = 10 * time.Millisecond

	start := time.Now()
	for i := uint64(1); i <= 3; i++ {
		r.record(t, r.sc.CurrentBackBufferIndex(), gfx.ColorTeal, gfx.ResourceStatePresent)
		r.queue.ExecuteCommandLists([]gfx.CommandList{r.list})
		require.NoError(t, r.sc.Present(1, 0))
		r.wait(t, i)
	}
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFeatureLevelTooHigh(t *testing.T) {
	f, err := New().CreateFactory(0)
	require.NoError(t, err)
	_, err = f.CreateDevice(gfx.FeatureLevel(0xd000))
	assert.ErrorIs(t, err, gfx.ErrDeviceUnavailable)
}

func TestRegistered(t *testing.T) {
	b, err := gfx.Lookup("software")
	require.NoError(t, err)
	assert.Equal(t, "software", b.Name())
	assert.Equal(t, gfx.SurfaceHeadless, b.Surface())
}
