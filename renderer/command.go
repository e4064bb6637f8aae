package renderer

import (
	"clearcolor/gfx"
)

// commandRecorder owns the single allocator and graphics command list.
type commandRecorder struct {
	Allocator gfx.CommandAllocator
	List      gfx.GraphicsCommandList
}

func createCommandRecorder(device gfx.Device) (*commandRecorder, error) {
	c := &commandRecorder{}
	done := false
	defer func() {
		if !done {
			c.Destroy()
		}
	}()

	allocator, err := device.CreateCommandAllocator(gfx.CommandListTypeDirect)
	if err != nil {
		return nil, gfx.InitError("create command allocator", err)
	}
	c.Allocator = allocator

	list, err := device.CreateCommandList(0, gfx.CommandListTypeDirect, allocator, nil)
	if err != nil {
		return nil, gfx.InitError("create command list", err)
	}
	c.List = list

	// Lists are created recording; nothing to record yet
	if err := list.Close(); err != nil {
		return nil, gfx.InitError("close command list", err)
	}

	done = true
	return c, nil
}

// populate records the frame for back buffer frameIndex: transition to
// RENDER_TARGET, bind and clear its view, transition back to PRESENT.
// The GPU must be done with the allocator.
func (c *commandRecorder) populate(s *swapChainSet, frameIndex uint32, clear gfx.Color) error {
	if err := c.Allocator.Reset(); err != nil {
		return gfx.FrameError("reset command allocator", err)
	}
	if err := c.List.Reset(c.Allocator, nil); err != nil {
		return gfx.FrameError("reset command list", err)
	}

	target := s.RenderTargets[frameIndex]
	c.List.ResourceBarrier([]gfx.ResourceBarrier{
		gfx.Transition(target, gfx.ResourceStatePresent, gfx.ResourceStateRenderTarget),
	})

	rtv := s.RTV(frameIndex)
	c.List.OMSetRenderTargets([]gfx.CPUDescriptorHandle{rtv}, false, nil)
	c.List.ClearRenderTargetView(rtv, clear, nil)

	c.List.ResourceBarrier([]gfx.ResourceBarrier{
		gfx.Transition(target, gfx.ResourceStateRenderTarget, gfx.ResourceStatePresent),
	})

	if err := c.List.Close(); err != nil {
		return gfx.FrameError("close command list", err)
	}
	return nil
}

func (c *commandRecorder) Destroy() {
	release(c.List)
	release(c.Allocator)
	*c = commandRecorder{}
}
