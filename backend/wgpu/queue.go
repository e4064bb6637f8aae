package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"clearcolor/gfx"
)

type commandKind int

const (
	cmdBarrier commandKind = iota
	cmdClear
)

// command mirrors what was encoded so that execution can check resource
// states against the textures.
type command struct {
	kind    commandKind
	barrier gfx.ResourceBarrier
	target  *texture
}

// queue wraps the device's hal queue. Every ExecuteCommandLists is one
// submission, numbered on fence.
type queue struct {
	dev       *device
	fence     hal.Fence
	submitted uint64
}

func (q *queue) Release() {
	if q.fence != nil {
		q.dev.hal.DestroyFence(q.fence)
		q.fence = nil
	}
	q.dev.q = nil
}

func (q *queue) ExecuteCommandLists(lists []gfx.CommandList) {
	if q.dev.lost != nil {
		return
	}
	var (
		bufs   []hal.CommandBuffer
		allocs []*allocator
	)
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			q.dev.fail(fmt.Errorf("execute of a foreign command list %T", l))
			return
		}
		if cl.recording || cl.cmdBuf == nil {
			q.dev.fail(errors.New("execute of a command list that was not closed"))
			return
		}
		if err := apply(cl.commands); err != nil {
			q.dev.fail(err)
			return
		}
		bufs = append(bufs, cl.cmdBuf)
		allocs = append(allocs, cl.alloc)
	}
	if len(bufs) == 0 {
		return
	}

	q.submitted++
	if err := q.dev.queue.Submit(bufs, q.fence, q.submitted); err != nil {
		q.dev.fail(fmt.Errorf("submit: %w", err))
		return
	}
	for _, a := range allocs {
		a.submitted = q.submitted
	}
}

// apply checks the commands against the tracked states and moves the
// textures to their new states.
func apply(cmds []command) error {
	for _, c := range cmds {
		switch c.kind {
		case cmdBarrier:
			t := c.target
			if t.state != c.barrier.Transition.StateBefore {
				return fmt.Errorf("barrier before state %s does not match current state %s",
					c.barrier.Transition.StateBefore, t.state)
			}
			t.state = c.barrier.Transition.StateAfter
		case cmdClear:
			if c.target.state != gfx.ResourceStateRenderTarget {
				return fmt.Errorf("clear of a resource in state %s", c.target.state)
			}
		}
	}
	return nil
}

func (q *queue) Signal(f gfx.Fence, value uint64) error {
	wf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("wgpu: fence of another backend: %w", gfx.ErrNoInterface)
	}
	if q.dev.lost != nil {
		return q.dev.lost
	}
	if err := q.dev.queue.Submit(nil, wf.hal, value); err != nil {
		q.dev.fail(fmt.Errorf("signal: %w", err))
		return q.dev.lost
	}
	wf.pending = append(wf.pending, value)
	return nil
}

// allocator owns the command buffers encoded by lists reset against it.
type allocator struct {
	dev       *device
	buffers   []hal.CommandBuffer
	submitted uint64
}

func (a *allocator) Release() {
	a.free()
}

func (a *allocator) free() {
	for _, b := range a.buffers {
		a.dev.hal.FreeCommandBuffer(b)
	}
	a.buffers = nil
}

// Reset fails while the last submission that used a is still executing.
func (a *allocator) Reset() error {
	if a.submitted > 0 && a.dev.q != nil {
		done, err := a.dev.hal.Wait(a.dev.q.fence, a.submitted, 0)
		if err != nil {
			return fmt.Errorf("wgpu: allocator reset: %w", err)
		}
		if !done {
			return fmt.Errorf("wgpu: allocator reset while submission %d is in flight", a.submitted)
		}
	}
	a.free()
	return nil
}

type commandList struct {
	dev     *device
	alloc   *allocator
	encoder hal.CommandEncoder

	recording bool
	err       error
	commands  []command
	target    *texture
	cmdBuf    hal.CommandBuffer
}

func (l *commandList) begin(a *allocator) error {
	if err := l.encoder.BeginEncoding("clearcolor_frame"); err != nil {
		return fmt.Errorf("failed to begin encoding: %w", err)
	}
	l.alloc = a
	l.recording = true
	l.err = nil
	l.commands = nil
	l.target = nil
	l.cmdBuf = nil
	return nil
}

func (l *commandList) Release() {
	if l.recording {
		l.encoder.DiscardEncoding()
		l.recording = false
	}
	l.encoder = nil
	l.cmdBuf = nil
}

func (l *commandList) Reset(alloc gfx.CommandAllocator, _ gfx.PipelineState) error {
	a, ok := alloc.(*allocator)
	if !ok {
		return fmt.Errorf("wgpu: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	if l.recording {
		return errors.New("wgpu: command list reset while recording")
	}
	return l.begin(a)
}

func (l *commandList) Close() error {
	if !l.recording {
		return errors.New("wgpu: command list is already closed")
	}
	l.recording = false
	if l.err != nil {
		l.encoder.DiscardEncoding()
		return l.err
	}
	cb, err := l.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("failed to end encoding: %w", err)
	}
	l.cmdBuf = cb
	l.alloc.buffers = append(l.alloc.buffers, cb)
	return l.dev.lost
}

func (l *commandList) setErr(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *commandList) ResourceBarrier(barriers []gfx.ResourceBarrier) {
	for _, b := range barriers {
		t, ok := b.Transition.Resource.(*texture)
		if !ok {
			l.setErr(fmt.Errorf("wgpu: barrier on a foreign resource %T", b.Transition.Resource))
			return
		}
		l.encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.hal,
			Usage: hal.TextureUsageTransition{
				OldUsage: textureUsage(b.Transition.StateBefore),
				NewUsage: textureUsage(b.Transition.StateAfter),
			},
		}})
		l.commands = append(l.commands, command{kind: cmdBarrier, barrier: b, target: t})
	}
}

func (l *commandList) OMSetRenderTargets(rtvs []gfx.CPUDescriptorHandle, _ bool, _ *gfx.CPUDescriptorHandle) {
	if len(rtvs) == 0 {
		l.target = nil
		return
	}
	t := l.dev.views[rtvs[0].Ptr]
	if t == nil {
		l.setErr(fmt.Errorf("wgpu: render target descriptor %#x is empty", rtvs[0].Ptr))
		return
	}
	l.target = t
}

// ClearRenderTargetView encodes an empty render pass whose load op clears
// the view.
func (l *commandList) ClearRenderTargetView(rtv gfx.CPUDescriptorHandle, c gfx.Color, _ []gfx.Rect) {
	t := l.dev.views[rtv.Ptr]
	if t == nil {
		l.setErr(fmt.Errorf("wgpu: render target descriptor %#x is empty", rtv.Ptr))
		return
	}
	rp := l.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "clearcolor_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)},
		}},
	})
	rp.End()
	l.commands = append(l.commands, command{kind: cmdClear, target: t})
}
