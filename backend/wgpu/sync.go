package wgpu

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"clearcolor/gfx"
)

// forever is the hal wait timeout for an event wait, which has none.
const forever = time.Duration(math.MaxInt64)

type fence struct {
	dev       *device
	hal       hal.Fence
	completed uint64
	pending   []uint64
}

func (f *fence) Release() {
	if f.hal != nil {
		f.dev.hal.DestroyFence(f.hal)
		f.hal = nil
	}
}

// CompletedValue polls the pending signals in order.
func (f *fence) CompletedValue() uint64 {
	for len(f.pending) > 0 {
		done, err := f.dev.hal.Wait(f.hal, f.pending[0], 0)
		if err != nil || !done {
			break
		}
		f.completed = f.pending[0]
		f.pending = f.pending[1:]
	}
	return f.completed
}

func (f *fence) reached(value uint64) {
	for len(f.pending) > 0 && f.pending[0] <= value {
		f.pending = f.pending[1:]
	}
	if value > f.completed {
		f.completed = value
	}
}

func (f *fence) SetEventOnCompletion(value uint64, ev gfx.Event) error {
	e, ok := ev.(*event)
	if !ok {
		return fmt.Errorf("wgpu: event of another backend: %w", gfx.ErrNoInterface)
	}
	if f.CompletedValue() >= value {
		e.signaled = true
		return nil
	}
	e.fence, e.target = f, value
	return nil
}

// event is armed by a fence and waits on it through the device.
type event struct {
	signaled bool
	closed   bool
	fence    *fence
	target   uint64
}

var errNothingArmed = errors.New("wgpu: wait on an event that nothing will signal")

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

	done, err := f.dev.hal.Wait(f.hal, target, forever)
	if err != nil {
		return fmt.Errorf("%w: wait for fence value %d: %v", gfx.ErrDeviceRemoved, target, err)
	}
	if !done {
		return fmt.Errorf("wgpu: fence value %d was not reached", target)
	}
	f.reached(target)
	return nil
}

func (e *event) Close() error {
	if e.closed {
		return gfx.ErrEventClosed
	}
	e.closed = true
	e.fence = nil
	return nil
}

// copyPitchAlignment is the row alignment of texture to buffer copies.
const copyPitchAlignment = 256

type swapChain struct {
	queue   *queue
	format  gputypes.TextureFormat
	width   uint32
	height  uint32
	buffers []*texture
	index   uint32

	encoder    hal.CommandEncoder
	encoding   bool
	staging    hal.Buffer
	fence      hal.Fence
	fenceValue uint64
	rowPitch   uint32
	readback   []byte
	front      *image.RGBA
}

var (
	_ gfx.SwapChain3  = (*swapChain)(nil)
	_ gfx.FrameReader = (*swapChain)(nil)
)

func newSwapChain(q *queue, format gputypes.TextureFormat, w, h, count uint32) (_ *swapChain, ferr error) {
	d := q.dev.hal
	sc := &swapChain{
		queue:    q,
		format:   format,
		width:    w,
		height:   h,
		rowPitch: (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1),
		front:    image.NewRGBA(image.Rect(0, 0, int(w), int(h))),
	}
	defer func() {
		if ferr != nil {
			sc.Release()
		}
	}()

	size := hal.Extent3D{
		Width:              w,
		Height:             h,
		DepthOrArrayLayers: 1,
	}
	for i := uint32(0); i < count; i++ {
		tex, err := d.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("clearcolor_back_buffer_%d", i),
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create back buffer %d: %w", i, err)
		}
		view, err := d.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label: fmt.Sprintf("clearcolor_back_buffer_view_%d", i),
		})
		if err != nil {
			d.DestroyTexture(tex)
			return nil, fmt.Errorf("failed to create back buffer view %d: %w", i, err)
		}
		sc.buffers = append(sc.buffers, &texture{hal: tex, view: view, state: gfx.ResourceStatePresent})
	}

	var err error
	sc.readback = make([]byte, uint64(sc.rowPitch)*uint64(h))
	sc.staging, err = d.CreateBuffer(&hal.BufferDescriptor{
		Label: "clearcolor_present_staging",
		Size:  uint64(len(sc.readback)),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staging buffer: %w", err)
	}
	sc.fence, err = d.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("failed to create present fence: %w", err)
	}
	sc.encoder, err = d.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "clearcolor_present"})
	if err != nil {
		return nil, fmt.Errorf("failed to create present encoder: %w", err)
	}

	// New textures have no usage yet; move them to the state the buffers
	// report.
	if err := sc.submit("clearcolor_init", func(enc hal.CommandEncoder) {
		for _, b := range sc.buffers {
			enc.TransitionTextures([]hal.TextureBarrier{{
				Texture: b.hal,
				Usage: hal.TextureUsageTransition{
					OldUsage: 0,
					NewUsage: gputypes.TextureUsageCopySrc,
				},
			}})
		}
	}); err != nil {
		return nil, err
	}
	return sc, nil
}

// submit encodes fn on the present encoder, submits it behind all queue
// work and waits for it.
func (s *swapChain) submit(label string, fn func(hal.CommandEncoder)) error {
	if err := s.encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("failed to begin encoding: %w", err)
	}
	s.encoding = true
	fn(s.encoder)
	cb, err := s.encoder.EndEncoding()
	if err != nil {
		s.discard()
		return fmt.Errorf("failed to end encoding: %w", err)
	}
	s.encoding = false
	d := s.queue.dev
	defer d.hal.FreeCommandBuffer(cb)

	s.fenceValue++
	if err := d.queue.Submit([]hal.CommandBuffer{cb}, s.fence, s.fenceValue); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	done, err := d.hal.Wait(s.fence, s.fenceValue, forever)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", label, err)
	}
	if !done {
		return fmt.Errorf("wait for %s: fence value %d was not reached", label, s.fenceValue)
	}
	return nil
}

// discard drops an encoding that was begun but never submitted.
func (s *swapChain) discard() {
	if s.encoding {
		s.encoder.DiscardEncoding()
		s.encoding = false
	}
}

func (s *swapChain) Release() {
	s.discard()
	s.encoder = nil
	d := s.queue.dev.hal
	for _, b := range s.buffers {
		if b.view != nil {
			d.DestroyTextureView(b.view)
		}
		d.DestroyTexture(b.hal)
	}
	s.buffers = nil
	if s.staging != nil {
		d.DestroyBuffer(s.staging)
		s.staging = nil
	}
	if s.fence != nil {
		d.DestroyFence(s.fence)
		s.fence = nil
	}
}

func (s *swapChain) GetBuffer(n uint32) (gfx.Resource, error) {
	if int(n) >= len(s.buffers) {
		return nil, gfx.ErrNotSupported
	}
	return s.buffers[n], nil
}

// Present reads the back buffer back into the front image. Offscreen
// presents are not paced, so syncInterval is ignored.
func (s *swapChain) Present(_ uint32, _ gfx.PresentFlags) error {
	d := s.queue.dev
	if d.lost != nil {
		return d.lost
	}
	buf := s.buffers[s.index]
	if buf.state != gfx.ResourceStatePresent {
		d.fail(fmt.Errorf("present of a back buffer in state %s", buf.state))
		return d.lost
	}

	err := s.submit("clearcolor_present", func(enc hal.CommandEncoder) {
		enc.CopyTextureToBuffer(buf.hal, s.staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: s.rowPitch, RowsPerImage: s.height},
			TextureBase:  hal.ImageCopyTexture{Texture: buf.hal, MipLevel: 0},
			Size:         hal.Extent3D{Width: s.width, Height: s.height, DepthOrArrayLayers: 1},
		}})
	})
	if err != nil {
		d.fail(err)
		return d.lost
	}
	if err := d.queue.ReadBuffer(s.staging, 0, s.readback); err != nil {
		d.fail(fmt.Errorf("readback: %w", err))
		return d.lost
	}
	unpack(s.front, s.readback, int(s.rowPitch), s.format == gputypes.TextureFormatBGRA8Unorm)

	s.index = (s.index + 1) % uint32(len(s.buffers))
	return nil
}

func (s *swapChain) CurrentBackBufferIndex() uint32 { return s.index }

func (s *swapChain) ReadFrame() (*image.RGBA, error) {
	if d := s.queue.dev; d.lost != nil {
		return nil, d.lost
	}
	out := image.NewRGBA(s.front.Rect)
	copy(out.Pix, s.front.Pix)
	return out, nil
}

// unpack copies pitched rows into dst, swapping red and blue for BGRA.
func unpack(dst *image.RGBA, src []byte, pitch int, bgra bool) {
	rowBytes := dst.Rect.Dx() * 4
	for y := 0; y < dst.Rect.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+rowBytes]
		copy(row, src[y*pitch:y*pitch+rowBytes])
		if bgra {
			for i := 0; i < len(row); i += 4 {
				row[i], row[i+2] = row[i+2], row[i]
			}
		}
	}
}
