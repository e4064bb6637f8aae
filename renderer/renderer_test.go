package renderer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcolor/gfx"
	"clearcolor/gfx/gfxtest"
)

type testWindow struct {
	closeRequests int
}

func (w *testWindow) NativeHandle() uintptr           { return 0x1234 }
func (w *testWindow) ClientSize() (width, height int) { return 64, 48 }
func (w *testWindow) RequestClose()                   { w.closeRequests++ }

func newTestRenderer(t *testing.T, b *gfxtest.Backend) (*Renderer, *testWindow) {
	t.Helper()
	return New(b), &testWindow{}
}

func frameLists(b *gfxtest.Backend) []gfxtest.RecordedList {
	// The first recorded list is the empty one closed during Init.
	if len(b.Recorded) == 0 {
		return nil
	}
	return b.Recorded[1:]
}

func TestHappyPathThreeFrames(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	assert.Equal(t, []uint64{1}, b.Signals)
	assert.Equal(t, 1, b.EventWaits)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Render())
	}

	assert.Equal(t, []uint64{1, 2, 3, 4}, b.Signals)
	assert.Equal(t, 1+3, b.EventWaits)
	require.Len(t, b.Presents, 3)
	for _, p := range b.Presents {
		assert.Equal(t, uint32(1), p.SyncInterval)
		assert.Equal(t, gfx.PresentFlags(0), p.Flags)
	}
	assert.Equal(t, uint64(3), r.Frames())

	require.NoError(t, r.Destroy())
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, b.Signals)
	assert.Equal(t, 0, win.closeRequests)
	assert.Equal(t, 1, b.EventsClosed)

	for kind, n := range b.Created {
		assert.Equal(t, n, b.Released[kind], "%s objects leaked", kind)
	}
}

func TestDeviceCreationFails(t *testing.T) {
	b := gfxtest.New()
	b.FailOn(gfxtest.OpCreateDevice, 1, nil)
	r, win := newTestRenderer(t, b)

	err := r.Init(win)
	require.Error(t, err)
	assert.True(t, gfx.IsKind(err, gfx.KindInit))
	assert.ErrorIs(t, err, gfx.ErrDeviceUnavailable)

	assert.Equal(t, 1, win.closeRequests)
	assert.Zero(t, b.Created["CommandQueue"])
	assert.Zero(t, b.Created["SwapChain"])
	assert.Zero(t, b.Live("Factory"))

	assert.ErrorIs(t, r.Render(), ErrTerminated)
	assert.Empty(t, b.Signals)
	assert.NoError(t, r.Destroy())
}

func TestAllocatorResetFailsOnSecondFrame(t *testing.T) {
	b := gfxtest.New()
	b.FailOn(gfxtest.OpAllocatorReset, 2, nil)
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	require.NoError(t, r.Render())

	err := r.Render()
	require.Error(t, err)
	assert.True(t, gfx.IsKind(err, gfx.KindFrame))
	assert.ErrorIs(t, err, gfxtest.ErrInjected)
	assert.Equal(t, []uint64{1, 2}, b.Signals)
	assert.Equal(t, 1, win.closeRequests)

	calls := b.Calls(gfxtest.OpAllocatorReset)
	assert.ErrorIs(t, r.Render(), ErrTerminated)
	assert.Equal(t, calls, b.Calls(gfxtest.OpAllocatorReset))
	assert.Len(t, b.Presents, 1)
	assert.Equal(t, []uint64{1, 2}, b.Signals)

	require.NoError(t, r.Destroy())
	assert.Equal(t, []uint64{1, 2}, b.Signals)
	assert.Equal(t, 1, b.EventsClosed)
}

func TestPresentFailsOnFirstFrame(t *testing.T) {
	b := gfxtest.New()
	b.FailOn(gfxtest.OpPresent, 1, gfx.ErrDeviceRemoved)
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	fenceValue := r.FenceValue()

	err := r.Render()
	require.Error(t, err)
	assert.ErrorIs(t, err, gfx.ErrDeviceRemoved)
	assert.Equal(t, []uint64{1}, b.Signals)
	assert.Equal(t, fenceValue, r.FenceValue())
	assert.Equal(t, 1, win.closeRequests)
	assert.Zero(t, r.Frames())
}

func TestDestroyWaitsForSubmittedFrameAfterPresentFails(t *testing.T) {
	b := gfxtest.New()
	b.FailOn(gfxtest.OpPresent, 1, nil)
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	require.Error(t, r.Render())
	require.NotZero(t, b.Outstanding())

	require.NoError(t, r.Destroy())
	assert.Zero(t, b.Outstanding())
	assert.Equal(t, []uint64{1, 2}, b.Signals)
	assert.Equal(t, 1, b.EventsClosed)
	for kind, n := range b.Created {
		assert.Equal(t, n, b.Released[kind], "%s objects leaked", kind)
	}
}

func TestDestroySkipsWaitAfterDeviceRemoved(t *testing.T) {
	b := gfxtest.New()
	b.FailOn(gfxtest.OpPresent, 1, gfx.ErrDeviceRemoved)
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	require.Error(t, r.Render())

	require.NoError(t, r.Destroy())
	assert.Equal(t, []uint64{1}, b.Signals)
	assert.Zero(t, b.Live("CommandList"))
}

func TestRTVIncrementQueriedOnce(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	for range 4 {
		require.NoError(t, r.Render())
	}
	require.NoError(t, r.Destroy())
	assert.Equal(t, 1, b.Calls("DescriptorHandleIncrementSize"))
}

func TestDestroyAfterInit(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	signals, waits := len(b.Signals), b.EventWaits

	require.NoError(t, r.Destroy())
	assert.Equal(t, signals+1, len(b.Signals))
	assert.Equal(t, waits+1, b.EventWaits)
	assert.Equal(t, 1, b.EventsClosed)

	require.NoError(t, r.Destroy())
	assert.Equal(t, 1, b.EventsClosed)
	assert.ErrorIs(t, r.Render(), ErrTerminated)
}

func TestFenceValuesContiguous(t *testing.T) {
	for _, frames := range []int{1, 2, 7, 32} {
		b := gfxtest.New()
		r, win := newTestRenderer(t, b)
		require.NoError(t, r.Init(win))
		for i := 0; i < frames; i++ {
			require.NoError(t, r.Render())
		}

		require.Len(t, b.Signals, frames+1)
		for i, v := range b.Signals {
			assert.Equal(t, uint64(i+1), v)
		}
		assert.Equal(t, uint64(frames+2), r.FenceValue())
	}
}

func TestBackBufferStateRoundTrip(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)
	require.NoError(t, r.Init(win))

	var indices []uint32
	for i := 0; i < 4; i++ {
		indices = append(indices, r.FrameIndex())
		require.NoError(t, r.Render())
	}

	lists := frameLists(b)
	require.Len(t, lists, 4)
	for i, l := range lists {
		barriers := l.Barriers()
		require.NotEmpty(t, barriers)
		want := b.BackBuffer[indices[i]]

		first, last := barriers[0].Transition, barriers[len(barriers)-1].Transition
		assert.Same(t, want, first.Resource)
		assert.Same(t, want, last.Resource)
		assert.Equal(t, gfx.ResourceStatePresent, first.StateBefore)
		assert.Equal(t, gfx.ResourceStatePresent, last.StateAfter)
	}
	assert.Empty(t, b.Violations)
	for _, buf := range b.BackBuffer {
		assert.Equal(t, gfx.ResourceStatePresent, buf.State)
	}
}

func TestNothingOutstandingAfterWait(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	assert.Zero(t, b.Outstanding())

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Render())
		assert.Zero(t, b.Outstanding())
		assert.Equal(t, i+1, b.Executed)
	}
}

func TestFrameIndexAlternates(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)
	require.NoError(t, r.Init(win))

	var got []uint32
	for i := 0; i < 6; i++ {
		got = append(got, r.FrameIndex())
		require.NoError(t, r.Render())
	}
	assert.Equal(t, []uint32{0, 1, 0, 1, 0, 1}, got)

	for i, p := range b.Presents {
		assert.Equal(t, got[i], p.BackBuffer)
	}
}

func TestBarrierPairing(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)
	require.NoError(t, r.Init(win))
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Render())
	}

	for _, l := range frameLists(b) {
		var toTarget, toPresent int
		for _, barrier := range l.Barriers() {
			switch {
			case barrier.Transition.StateBefore == gfx.ResourceStatePresent &&
				barrier.Transition.StateAfter == gfx.ResourceStateRenderTarget:
				toTarget++
			case barrier.Transition.StateBefore == gfx.ResourceStateRenderTarget &&
				barrier.Transition.StateAfter == gfx.ResourceStatePresent:
				toPresent++
			}
		}
		assert.Equal(t, 1, toTarget)
		assert.Equal(t, toTarget, toPresent)
	}
}

func TestRenderTargetViewIndexing(t *testing.T) {
	b := gfxtest.New()
	b.HeapStart = 0x4000
	b.Increment = 48
	r, win := newTestRenderer(t, b)
	require.NoError(t, r.Init(win))

	var indices []uint32
	for i := 0; i < 4; i++ {
		indices = append(indices, r.FrameIndex())
		require.NoError(t, r.Render())
	}

	require.Len(t, b.Bound, 4)
	for i, h := range b.Bound {
		want := b.HeapStart + uintptr(indices[i])*uintptr(b.Increment)
		assert.Equal(t, want, h.Ptr)
	}
	for _, l := range frameLists(b) {
		for _, c := range l.Commands {
			if c.Op == "ClearRenderTargetView" {
				assert.Equal(t, gfx.ColorTeal, c.Color)
			}
		}
	}
	for i, buf := range b.BackBuffer {
		assert.Equal(t, b.HeapStart+uintptr(i)*uintptr(b.Increment), buf.RTV.Ptr)
	}
}

func TestWaitSkippedWhenFenceAlreadyComplete(t *testing.T) {
	b := gfxtest.New()
	b.CompleteImmediately = true
	r, win := newTestRenderer(t, b)

	require.NoError(t, r.Init(win))
	require.NoError(t, r.Render())
	assert.Zero(t, b.EventWaits)
	assert.Zero(t, b.Calls(gfxtest.OpSetEventOnCompletion))
	assert.Equal(t, []uint64{1, 2}, b.Signals)
}

func TestInitFailuresReleaseEverything(t *testing.T) {
	ops := []string{
		gfxtest.OpCreateFactory,
		gfxtest.OpCreateDevice,
		gfxtest.OpCreateCommandQueue,
		gfxtest.OpCreateSwapChain,
		gfxtest.OpCreateDescriptorHeap,
		gfxtest.OpGetBuffer,
		gfxtest.OpCreateAllocator,
		gfxtest.OpCreateCommandList,
		gfxtest.OpListClose,
		gfxtest.OpCreateFence,
		gfxtest.OpCreateEvent,
		gfxtest.OpSignal,
		gfxtest.OpSetEventOnCompletion,
		gfxtest.OpEventWait,
	}
	for _, op := range ops {
		t.Run(op, func(t *testing.T) {
			b := gfxtest.New()
			b.FailOn(op, 1, nil)
			r, win := newTestRenderer(t, b)

			err := r.Init(win)
			require.Error(t, err)
			assert.ErrorIs(t, err, gfxtest.ErrInjected)
			assert.True(t, gfx.IsKind(err, gfx.KindInit) || gfx.IsKind(err, gfx.KindFrame))
			assert.Equal(t, 1, win.closeRequests)

			for kind, n := range b.Created {
				assert.Equal(t, n, b.Released[kind], "%s objects leaked", kind)
			}
			assert.ErrorIs(t, r.Render(), ErrTerminated)
		})
	}
}

func TestFactoryFailureReturnsError(t *testing.T) {
	b := gfxtest.New()
	b.FailOn(gfxtest.OpCreateFactory, 1, nil)
	r, win := newTestRenderer(t, b)

	var err error
	require.NotPanics(t, func() { err = r.Init(win) })
	assert.ErrorIs(t, err, gfxtest.ErrInjected)
	assert.Equal(t, 1, win.closeRequests)
	assert.NoError(t, r.Destroy())
}

func TestPartialDeviceContextReleased(t *testing.T) {
	b := gfxtest.New()
	b.FailOn(gfxtest.OpCreateCommandQueue, 1, nil)

	d, err := createDeviceContext(b, DefaultConfig().FeatureLevel)
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 1, b.Created["Device"])
	assert.Zero(t, b.Live("Device"))
	assert.Zero(t, b.Live("Factory"))
}

func TestSwapChainWithoutVersion3(t *testing.T) {
	b := gfxtest.New()
	b.NoSwapChain3 = true
	r, win := newTestRenderer(t, b)

	err := r.Init(win)
	assert.ErrorIs(t, err, gfx.ErrNoInterface)
	assert.Zero(t, b.Live("SwapChain"))
	assert.Zero(t, b.Created["DescriptorHeap"])
}

func TestRenderBeforeInit(t *testing.T) {
	r := New(gfxtest.New())
	assert.ErrorIs(t, r.Render(), ErrNotInitialized)
	assert.NoError(t, r.Destroy())

	_, err := r.Snapshot()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitTwice(t *testing.T) {
	b := gfxtest.New()
	r, win := newTestRenderer(t, b)
	require.NoError(t, r.Init(win))
	assert.Error(t, r.Init(win))
	assert.Equal(t, 1, b.Created["Device"])
}

func TestOptions(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := gfxtest.New()
	r := New(b,
		WithSyncInterval(0),
		WithClearColor(gfx.ColorWhite),
		WithLogger(log))
	win := &testWindow{}
	require.NoError(t, r.Init(win))
	require.NoError(t, r.Render())

	require.Len(t, b.Presents, 1)
	assert.Equal(t, uint32(0), b.Presents[0].SyncInterval)
	for _, c := range frameLists(b)[0].Commands {
		if c.Op == "ClearRenderTargetView" {
			assert.Equal(t, gfx.ColorWhite, c.Color)
		}
	}
	assert.Contains(t, buf.String(), "renderer initialized")
	assert.Contains(t, buf.String(), "frame presented")

	_, err := r.Snapshot()
	assert.ErrorIs(t, err, gfx.ErrNotSupported)
}

func TestFeatureLevelTooHigh(t *testing.T) {
	b := gfxtest.New()
	r := New(b, WithFeatureLevel(gfx.FeatureLevel(0xd000)))

	err := r.Init(&testWindow{})
	assert.True(t, errors.Is(err, gfx.ErrDeviceUnavailable))
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(l)
	assert.Same(t, l, Logger())

	SetLogger(nil)
	assert.NotNil(t, Logger())
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}
