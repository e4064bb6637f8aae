package software

import (
	"image"
	"sync"

	"clearcolor/gfx"
)

type fenceWaiter struct {
	value uint64
	event *event
}

type fence struct {
	mu      sync.Mutex
	value   uint64
	waiters []fenceWaiter
}

func (f *fence) Release() {}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *fence) SetEventOnCompletion(value uint64, ev gfx.Event) error {
	e, ok := ev.(*event)
	if !ok {
		return gfx.ErrNoInterface
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value >= value {
		e.signal()
		return nil
	}
	f.waiters = append(f.waiters, fenceWaiter{value: value, event: e})
	return nil
}

func (f *fence) set(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = value
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= value {
			w.event.signal()
			continue
		}
		kept = append(kept, w)
	}
	f.waiters = kept
}

// event is an auto-reset event: a signal wakes at most one Wait.
type event struct {
	ch     chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newEvent() *event {
	return &event{
		ch:     make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (e *event) signal() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

func (e *event) Wait() error {
	select {
	case <-e.ch:
		return nil
	case <-e.closed:
		return gfx.ErrEventClosed
	}
}

func (e *event) Close() error {
	err := gfx.ErrEventClosed
	e.once.Do(func() {
		close(e.closed)
		err = nil
	})
	return err
}

type swapChain struct {
	queue   *queue
	buffers []*texture
	index   uint32

	mu        sync.Mutex
	front     *image.RGBA
	presented int
}

var (
	_ gfx.SwapChain3  = (*swapChain)(nil)
	_ gfx.FrameReader = (*swapChain)(nil)
)

func (s *swapChain) Release() {}

func (s *swapChain) GetBuffer(n uint32) (gfx.Resource, error) {
	if int(n) >= len(s.buffers) {
		return nil, gfx.ErrNotSupported
	}
	return s.buffers[n], nil
}

// Present queues a flip of the current back buffer behind all submitted
// work and advances the back buffer index.
func (s *swapChain) Present(syncInterval uint32, _ gfx.PresentFlags) error {
	if err := s.queue.dev.err(); err != nil {
		return err
	}
	buf := s.buffers[s.index]
	interval := s.queue.dev.b.RefreshInterval
	s.queue.work <- func() { s.queue.present(s, buf, syncInterval, interval) }
	s.index = (s.index + 1) % uint32(len(s.buffers))
	return nil
}

func (s *swapChain) CurrentBackBufferIndex() uint32 { return s.index }

// ReadFrame returns a copy of the last presented image.
func (s *swapChain) ReadFrame() (*image.RGBA, error) {
	if err := s.queue.dev.err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.front.Rect)
	copy(out.Pix, s.front.Pix)
	return out, nil
}
