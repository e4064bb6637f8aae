package software

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

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
	rtvs    []gfx.CPUDescriptorHandle
	color   gfx.Color
}

// queue executes work items in order on its own goroutine.
type queue struct {
	dev  *device
	work chan func()
	done chan struct{}
	once sync.Once

	lastPresent time.Time
}

func newQueue(d *device) *queue {
	q := &queue{
		dev:  d,
		work: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for fn := range q.work {
		fn()
	}
}

// Release drains outstanding work and stops the worker.
func (q *queue) Release() {
	q.once.Do(func() {
		close(q.work)
		<-q.done
	})
}

func (q *queue) ExecuteCommandLists(lists []gfx.CommandList) {
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			q.dev.remove(fmt.Errorf("execute of a foreign command list %T", l))
			continue
		}
		if cl.recording {
			q.dev.remove(errors.New("execute of a command list that was not closed"))
			continue
		}
		cmds, alloc := cl.commands, cl.alloc
		alloc.inflight.Add(1)
		q.work <- func() {
			defer alloc.inflight.Add(-1)
			q.execute(cmds)
		}
	}
}

func (q *queue) Signal(f gfx.Fence, value uint64) error {
	sf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("software: fence of another backend: %w", gfx.ErrNoInterface)
	}
	q.work <- func() { sf.set(value) }
	return nil
}

func (q *queue) execute(cmds []command) {
	if q.dev.removed.Load() {
		return
	}
	for _, c := range cmds {
		switch c.kind {
		case cmdBarrier:
			t, ok := c.barrier.Transition.Resource.(*texture)
			if !ok {
				q.dev.remove(fmt.Errorf("barrier on a foreign resource %T", c.barrier.Transition.Resource))
				return
			}
			if t.state != c.barrier.Transition.StateBefore {
				q.dev.remove(fmt.Errorf("barrier before state %s does not match current state %s",
					c.barrier.Transition.StateBefore, t.state))
				return
			}
			t.state = c.barrier.Transition.StateAfter

		case cmdSetRenderTargets:
			for _, h := range c.rtvs {
				if q.dev.view(h) == nil {
					q.dev.remove(fmt.Errorf("render target descriptor %#x is empty", h.Ptr))
					return
				}
			}

		case cmdClear:
			t := q.dev.view(c.rtvs[0])
			if t == nil {
				q.dev.remove(fmt.Errorf("render target descriptor %#x is empty", c.rtvs[0].Ptr))
				return
			}
			if t.state != gfx.ResourceStateRenderTarget {
				q.dev.remove(fmt.Errorf("clear of a resource in state %s", t.state))
				return
			}
			draw.Draw(t.img, t.img.Bounds(), image.NewUniform(c.color.RGBA8()), image.Point{}, draw.Src)
		}
	}
}

// present runs on the worker after all previously submitted lists.
func (q *queue) present(sc *swapChain, buf *texture, syncInterval uint32, interval time.Duration) {
	if q.dev.removed.Load() {
		return
	}
	if buf.state != gfx.ResourceStatePresent {
		q.dev.remove(fmt.Errorf("present of a back buffer in state %s", buf.state))
		return
	}
	if syncInterval > 0 && interval > 0 {
		next := q.lastPresent.Add(time.Duration(syncInterval) * interval)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		}
	}
	q.lastPresent = time.Now()

	sc.mu.Lock()
	copy(sc.front.Pix, buf.img.Pix)
	sc.presented++
	sc.mu.Unlock()
}

type allocator struct {
	inflight atomic.Int32
}

func (a *allocator) Release() {}

// Reset fails while the GPU may still execute lists recorded into a.
func (a *allocator) Reset() error {
	if n := a.inflight.Load(); n > 0 {
		return fmt.Errorf("software: allocator reset with %d lists in flight", n)
	}
	return nil
}

type commandList struct {
	dev       *device
	alloc     *allocator
	recording bool
	commands  []command
}

func (l *commandList) Release() {}

func (l *commandList) Reset(alloc gfx.CommandAllocator, _ gfx.PipelineState) error {
	a, ok := alloc.(*allocator)
	if !ok {
		return fmt.Errorf("software: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	if l.recording {
		return errors.New("software: command list reset while recording")
	}
	l.alloc = a
	l.recording = true
	// A fresh slice; submitted lists keep referencing the old one.
	l.commands = nil
	return nil
}

func (l *commandList) Close() error {
	if !l.recording {
		return errors.New("software: command list is already closed")
	}
	l.recording = false
	return l.dev.err()
}

func (l *commandList) ResourceBarrier(barriers []gfx.ResourceBarrier) {
	for _, b := range barriers {
		l.commands = append(l.commands, command{kind: cmdBarrier, barrier: b})
	}
}

func (l *commandList) OMSetRenderTargets(rtvs []gfx.CPUDescriptorHandle, _ bool, _ *gfx.CPUDescriptorHandle) {
	l.commands = append(l.commands, command{
		kind: cmdSetRenderTargets,
		rtvs: append([]gfx.CPUDescriptorHandle(nil), rtvs...),
	})
}

func (l *commandList) ClearRenderTargetView(rtv gfx.CPUDescriptorHandle, c gfx.Color, _ []gfx.Rect) {
	l.commands = append(l.commands, command{
		kind:  cmdClear,
		rtvs:  []gfx.CPUDescriptorHandle{rtv},
		color: c,
	})
}
