package renderer

import (
	"errors"
	"image"
	"log/slog"

	"clearcolor/gfx"
)

type state int

const (
	stateNew state = iota
	stateReady
	stateTerminated
	stateDestroyed
)

// Renderer clears a window's back buffer to a fixed color every frame.
//
// All methods must be called from the thread that pumps the window's
// events. Each Render blocks until the GPU has finished the frame, so at
// most one frame is in flight.
type Renderer struct {
	backend gfx.Backend
	config  Config
	log     *slog.Logger

	window gfx.Window
	device *deviceContext
	swap   *swapChainSet
	cmd    *commandRecorder
	sync   *frameSync

	state  state
	frames uint64

	// inFlight is set while a submitted frame has not been waited on.
	inFlight bool
	failure  error
}

func New(backend gfx.Backend, opts ...Option) *Renderer {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	log := config.Logger
	if log == nil {
		log = Logger()
	}
	propagateLogger(backend, log)
	return &Renderer{
		backend: backend,
		config:  config,
		log:     log.With("backend", backend.Name()),
	}
}

// Init creates every graphics object in dependency order and waits once so
// that frame 0 starts with an idle GPU. Objects created before a failure
// are released before Init returns.
func (r *Renderer) Init(window gfx.Window) (ferr error) {
	switch r.state {
	case stateReady:
		return errAlreadyInitialized
	case stateTerminated, stateDestroyed:
		return ErrTerminated
	}
	r.window = window

	defer func() {
		if ferr != nil {
			r.releaseAll()
			r.fail(ferr)
		}
	}()

	device, err := createDeviceContext(r.backend, r.config.FeatureLevel)
	if err != nil {
		return err
	}
	r.device = device

	swap, err := createSwapChainSet(device, window, r.config.Format)
	if err != nil {
		return err
	}
	r.swap = swap

	cmd, err := createCommandRecorder(device.Device)
	if err != nil {
		return err
	}
	r.cmd = cmd

	sync, err := createFrameSync(r.backend, device.Device)
	if err != nil {
		return err
	}
	r.sync = sync

	if err := sync.waitForPreviousFrame(device.Queue, swap.SwapChain); err != nil {
		return err
	}

	r.state = stateReady
	r.log.Info("renderer initialized",
		"frameCount", FrameCount,
		"rtvDescriptorSize", swap.RTVDescriptorSize,
		"frameIndex", sync.FrameIndex)
	return nil
}

// Render records, submits and presents one frame, then waits for it.
func (r *Renderer) Render() error {
	switch r.state {
	case stateNew:
		return ErrNotInitialized
	case stateTerminated, stateDestroyed:
		return ErrTerminated
	}

	frameIndex := r.sync.FrameIndex
	if err := r.cmd.populate(r.swap, frameIndex, r.config.ClearColor); err != nil {
		return r.fail(err)
	}

	r.device.Queue.ExecuteCommandLists([]gfx.CommandList{r.cmd.List})
	r.inFlight = true

	if err := r.swap.SwapChain.Present(r.config.SyncInterval, 0); err != nil {
		return r.fail(gfx.FrameError("present", err))
	}

	err := r.sync.waitForPreviousFrame(r.device.Queue, r.swap.SwapChain)
	r.inFlight = false
	if err != nil {
		return r.fail(err)
	}

	r.frames++
	r.log.Debug("frame presented",
		"frame", r.frames,
		"backBuffer", frameIndex,
		"nextFenceValue", r.sync.FenceValue)
	return nil
}

// Destroy waits for the GPU, closes the fence event and releases every
// graphics object. After a failure it still waits when a submitted frame
// was never waited on, unless the device was removed.
func (r *Renderer) Destroy() error {
	var err error
	switch r.state {
	case stateNew, stateDestroyed:
		return nil
	case stateReady:
		err = r.sync.waitForPreviousFrame(r.device.Queue, r.swap.SwapChain)
	case stateTerminated:
		if r.inFlight && !errors.Is(r.failure, gfx.ErrDeviceRemoved) {
			err = r.sync.waitForPreviousFrame(r.device.Queue, r.swap.SwapChain)
		}
	}
	r.inFlight = false

	err = errors.Join(err, r.releaseAll())
	r.state = stateDestroyed
	r.log.Info("renderer destroyed", "frames", r.frames)
	return err
}

func (r *Renderer) releaseAll() error {
	var err error
	if r.sync != nil {
		err = r.sync.Destroy()
		r.sync = nil
	}
	if r.cmd != nil {
		r.cmd.Destroy()
		r.cmd = nil
	}
	if r.swap != nil {
		r.swap.Destroy()
		r.swap = nil
	}
	if r.device != nil {
		r.device.Destroy()
		r.device = nil
	}
	return err
}

// fail moves the renderer to its terminal state and asks the window to
// close.
func (r *Renderer) fail(err error) error {
	r.state = stateTerminated
	r.failure = err
	r.log.Warn("renderer failed", "err", err)
	if c, ok := r.window.(gfx.Closer); ok {
		c.RequestClose()
	}
	return err
}

// FrameIndex returns the back buffer the next frame renders into.
func (r *Renderer) FrameIndex() uint32 {
	if r.sync == nil {
		return 0
	}
	return r.sync.FrameIndex
}

// FenceValue returns the next fence value to be signaled.
func (r *Renderer) FenceValue() uint64 {
	if r.sync == nil {
		return 0
	}
	return r.sync.FenceValue
}

// Frames returns the number of frames presented successfully.
func (r *Renderer) Frames() uint64 { return r.frames }

// Snapshot returns the most recently presented image when the backend
// supports reading it back.
func (r *Renderer) Snapshot() (image.Image, error) {
	if r.state != stateReady && r.state != stateTerminated || r.swap == nil {
		return nil, ErrNotInitialized
	}
	fr, ok := r.swap.SwapChain.(gfx.FrameReader)
	if !ok {
		return nil, gfx.ErrNotSupported
	}
	return fr.ReadFrame()
}
