package opengl

import (
	"errors"
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"clearcolor/gfx"
)

type commandKind int

const (
	cmdBarrier commandKind = iota
	cmdSetRenderTargets
	cmdClear
)

type command struct {
	kind    commandKind
	barrier gfx.ResourceBarrier
	rtv     gfx.CPUDescriptorHandle
	color   gfx.Color
}

// queue replays command lists on the current context as they are executed.
type queue struct {
	dev    *device
	window gfx.ContextWindow
}

func (q *queue) Release() {}

func (q *queue) ExecuteCommandLists(lists []gfx.CommandList) {
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			q.dev.fail(fmt.Errorf("execute of a foreign command list %T", l))
			continue
		}
		if cl.recording {
			q.dev.fail(errors.New("execute of a command list that was not closed"))
			continue
		}
		if err := q.replay(cl.commands); err != nil {
			q.dev.fail(err)
		}
	}
}

func (q *queue) replay(cmds []command) error {
	if q.dev.lost != nil {
		return nil
	}
	for _, c := range cmds {
		switch c.kind {
		case cmdBarrier:
			r, ok := c.barrier.Transition.Resource.(*resource)
			if !ok {
				return fmt.Errorf("barrier on a foreign resource %T", c.barrier.Transition.Resource)
			}
			if r.state != c.barrier.Transition.StateBefore {
				return fmt.Errorf("barrier before state %s does not match current state %s",
					c.barrier.Transition.StateBefore, r.state)
			}
			r.state = c.barrier.Transition.StateAfter

		case cmdSetRenderTargets:
			if q.dev.views[c.rtv.Ptr] == nil {
				return fmt.Errorf("render target descriptor %#x is empty", c.rtv.Ptr)
			}
			w, h := q.window.ClientSize()
			gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
			gl.DrawBuffer(gl.BACK)
			gl.Viewport(0, 0, int32(w), int32(h))

		case cmdClear:
			r := q.dev.views[c.rtv.Ptr]
			if r == nil {
				return fmt.Errorf("render target descriptor %#x is empty", c.rtv.Ptr)
			}
			if r.state != gfx.ResourceStateRenderTarget {
				return fmt.Errorf("clear of a resource in state %s", r.state)
			}
			gl.ClearColor(c.color.R, c.color.G, c.color.B, c.color.A)
			gl.Clear(gl.COLOR_BUFFER_BIT)
		}
	}
	return glError("replay")
}

// Signal inserts a sync object after everything submitted so far.
func (q *queue) Signal(f gfx.Fence, value uint64) error {
	gf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("opengl: fence of another backend: %w", gfx.ErrNoInterface)
	}
	if q.dev.lost != nil {
		return q.dev.lost
	}
	gf.pending = append(gf.pending, pendingSync{
		value: value,
		sync:  gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0),
	})
	gl.Flush()
	return nil
}

func glError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: GL error 0x%04x", op, code)
	}
	return nil
}

type allocator struct{}

func (a *allocator) Release() {}

// Reset always succeeds: lists are replayed synchronously by Execute, so
// nothing recorded into a is pending once the call returns.
func (a *allocator) Reset() error { return nil }

type commandList struct {
	recording bool
	commands  []command
}

func (l *commandList) Release() {}

func (l *commandList) Reset(alloc gfx.CommandAllocator, _ gfx.PipelineState) error {
	if _, ok := alloc.(*allocator); !ok {
		return fmt.Errorf("opengl: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	if l.recording {
		return errors.New("opengl: command list reset while recording")
	}
	l.recording = true
	l.commands = l.commands[:0]
	return nil
}

func (l *commandList) Close() error {
	if !l.recording {
		return errors.New("opengl: command list is already closed")
	}
	l.recording = false
	return nil
}

func (l *commandList) ResourceBarrier(barriers []gfx.ResourceBarrier) {
	for _, b := range barriers {
		l.commands = append(l.commands, command{kind: cmdBarrier, barrier: b})
	}
}

// OMSetRenderTargets binds the first view. The default framebuffer has a
// single color attachment.
func (l *commandList) OMSetRenderTargets(rtvs []gfx.CPUDescriptorHandle, _ bool, _ *gfx.CPUDescriptorHandle) {
	if len(rtvs) == 0 {
		return
	}
	l.commands = append(l.commands, command{kind: cmdSetRenderTargets, rtv: rtvs[0]})
}

func (l *commandList) ClearRenderTargetView(rtv gfx.CPUDescriptorHandle, c gfx.Color, _ []gfx.Rect) {
	l.commands = append(l.commands, command{kind: cmdClear, rtv: rtv, color: c})
}
