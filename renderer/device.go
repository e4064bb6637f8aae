package renderer

import (
	"fmt"

	"clearcolor/gfx"
)

// deviceContext owns the factory, the device and its direct queue.
type deviceContext struct {
	Factory gfx.Factory
	Device  gfx.Device
	Queue   gfx.CommandQueue
}

func createDeviceContext(b gfx.Backend, level gfx.FeatureLevel) (*deviceContext, error) {
	d := &deviceContext{}
	done := false
	defer func() {
		if !done {
			d.Destroy()
		}
	}()

	// Create factory
	factory, err := b.CreateFactory(0)
	if err != nil {
		return nil, gfx.InitError("create factory", err)
	}
	d.Factory = factory

	// Create device; backends fall back to a software adapter on their own
	device, err := factory.CreateDevice(level)
	if err != nil {
		return nil, gfx.InitError("create device", fmt.Errorf("feature level %s: %w", level, err))
	}
	d.Device = device

	// Create direct command queue
	queue, err := device.CreateCommandQueue(&gfx.CommandQueueDesc{
		Type:  gfx.CommandListTypeDirect,
		Flags: gfx.CommandQueueFlagNone,
	})
	if err != nil {
		return nil, gfx.InitError("create command queue", err)
	}
	d.Queue = queue

	done = true
	return d, nil
}

func (d *deviceContext) Destroy() {
	release(d.Queue)
	release(d.Device)
	release(d.Factory)
	*d = deviceContext{}
}

func release(r gfx.Releaser) {
	if r != nil {
		r.Release()
	}
}
