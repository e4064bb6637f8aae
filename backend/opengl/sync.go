package opengl

import (
	"errors"
	"fmt"
	"image"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"clearcolor/gfx"
)

type pendingSync struct {
	value uint64
	sync  uintptr
}

// fence tracks sync objects in signal order.
type fence struct {
	value   uint64
	pending []pendingSync
}

func (f *fence) Release() {
	for _, p := range f.pending {
		gl.DeleteSync(p.sync)
	}
	f.pending = nil
}

// CompletedValue retires every sync object the GPU has passed.
func (f *fence) CompletedValue() uint64 {
	for len(f.pending) > 0 {
		var status int32
		gl.GetSynciv(f.pending[0].sync, gl.SYNC_STATUS, 1, nil, &status)
		if status != gl.SIGNALED {
			break
		}
		f.retire()
	}
	return f.value
}

func (f *fence) retire() {
	p := f.pending[0]
	gl.DeleteSync(p.sync)
	f.value = p.value
	f.pending = f.pending[1:]
}

// waitFor blocks on sync objects until the fence reaches value.
func (f *fence) waitFor(value uint64) error {
	for f.value < value {
		if len(f.pending) == 0 {
			return fmt.Errorf("opengl: fence value %d is never signaled", value)
		}
		switch gl.ClientWaitSync(f.pending[0].sync, gl.SYNC_FLUSH_COMMANDS_BIT, gl.TIMEOUT_IGNORED) {
		case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
			f.retire()
		default:
			return fmt.Errorf("opengl: client wait failed: %w", gfx.ErrDeviceRemoved)
		}
	}
	return nil
}

func (f *fence) SetEventOnCompletion(value uint64, ev gfx.Event) error {
	e, ok := ev.(*event)
	if !ok {
		return fmt.Errorf("opengl: event of another backend: %w", gfx.ErrNoInterface)
	}
	if f.CompletedValue() >= value {
		e.signaled = true
		return nil
	}
	e.fence, e.target = f, value
	return nil
}

// event is armed by a fence and waits on the fence's sync objects.
type event struct {
	signaled bool
	closed   bool
	fence    *fence
	target   uint64
}

var errNothingArmed = errors.New("opengl: wait on an event that nothing will signal")

func (e *event) Wait() error {
	switch {
	case e.closed:
		return gfx.ErrEventClosed
	case e.signaled:
		e.signaled = false
		return nil
	case e.fence == nil:
		return errNothingArmed
	}
	f, target := e.fence, e.target
	e.fence = nil
	return f.waitFor(target)
}

func (e *event) Close() error {
	if e.closed {
		return gfx.ErrEventClosed
	}
	e.closed = true
	e.fence = nil
	return nil
}

type swapChain struct {
	queue   *queue
	window  gfx.ContextWindow
	buffers []*resource
	index   uint32

	interval int
	capture  bool
	frame    *image.RGBA
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

func (s *swapChain) Present(syncInterval uint32, _ gfx.PresentFlags) error {
	dev := s.queue.dev
	if dev.lost != nil {
		return dev.lost
	}
	buf := s.buffers[s.index]
	if buf.state != gfx.ResourceStatePresent {
		dev.fail(fmt.Errorf("present of a back buffer in state %s", buf.state))
		return dev.lost
	}
	if s.capture {
		s.frame = readBack(s.window.ClientSize())
	}
	if s.interval != int(syncInterval) {
		glfw.SwapInterval(int(syncInterval))
		s.interval = int(syncInterval)
	}
	s.window.SwapBuffers()
	s.index = (s.index + 1) % uint32(len(s.buffers))
	if err := glError("present"); err != nil {
		dev.fail(err)
		return dev.lost
	}
	return nil
}

func (s *swapChain) CurrentBackBufferIndex() uint32 { return s.index }

// ReadFrame returns the last presented image. It needs Backend.Capture.
func (s *swapChain) ReadFrame() (*image.RGBA, error) {
	if !s.capture {
		return nil, fmt.Errorf("opengl: capture is disabled: %w", gfx.ErrNotSupported)
	}
	if s.frame == nil {
		return nil, errors.New("opengl: nothing presented yet")
	}
	out := image.NewRGBA(s.frame.Rect)
	copy(out.Pix, s.frame.Pix)
	return out, nil
}

func readBack(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return img
	}
	gl.ReadBuffer(gl.BACK)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	flipRows(img)
	return img
}

// flipRows turns GL's bottom-up rows into image order.
func flipRows(img *image.RGBA) {
	h := img.Rect.Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}
