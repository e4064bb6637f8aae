package renderer

import (
	"errors"

	"clearcolor/gfx"
)

// frameSync owns the fence and the auto-reset event used to block the CPU
// until the GPU reaches a fence value. Only one frame is ever in flight.
type frameSync struct {
	Fence gfx.Fence
	Event gfx.Event
	// FenceValue is the next value to signal.
	FenceValue uint64
	FrameIndex uint32
}

func createFrameSync(b gfx.Backend, device gfx.Device) (*frameSync, error) {
	s := &frameSync{}
	done := false
	defer func() {
		if !done {
			s.Destroy()
		}
	}()

	fence, err := device.CreateFence(0, gfx.FenceFlagNone)
	if err != nil {
		return nil, gfx.InitError("create fence", err)
	}
	s.Fence = fence
	s.FenceValue = 1

	event, err := b.CreateEvent()
	if err != nil {
		return nil, gfx.InitError("create fence event", err)
	}
	s.Event = event

	done = true
	return s, nil
}

// waitForPreviousFrame signals the queue with the next fence value and
// blocks until the GPU has passed it, then refreshes FrameIndex.
func (s *frameSync) waitForPreviousFrame(queue gfx.CommandQueue, sc gfx.SwapChain3) error {
	target := s.FenceValue
	if err := queue.Signal(s.Fence, target); err != nil {
		return gfx.FrameError("signal fence", err)
	}
	s.FenceValue++

	if s.Fence.CompletedValue() < target {
		if err := s.Fence.SetEventOnCompletion(target, s.Event); err != nil {
			return gfx.FrameError("set event on completion", err)
		}
		if err := s.Event.Wait(); err != nil {
			return gfx.FrameError("wait for fence", err)
		}
	}

	s.FrameIndex = sc.CurrentBackBufferIndex()
	return nil
}

func (s *frameSync) Destroy() error {
	var err error
	if s.Event != nil {
		err = s.Event.Close()
	}
	release(s.Fence)
	s.Fence, s.Event = nil, nil
	if err != nil && !errors.Is(err, gfx.ErrEventClosed) {
		return err
	}
	return nil
}
