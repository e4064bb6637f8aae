// Package opengl implements gfx on an OpenGL 4.1 core context.
//
// The explicit model maps onto GL as follows: the swap chain is the window's
// default framebuffer, command lists are recorded on the CPU and replayed on
// the context when executed, and fence signals are GL sync objects. All
// calls must come from the thread that owns the context.
package opengl

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"clearcolor/gfx"
)

const (
	// MaxFeatureLevel is the level the GL device reports. A clear needs
	// nothing beyond a 4.1 core context.
	MaxFeatureLevel = gfx.FeatureLevel12_0

	descriptorSize = 16
)

func init() {
	gfx.Register("opengl", 10, func() gfx.Backend { return New() })
}

// Backend is the OpenGL gfx backend.
type Backend struct {
	// Capture makes every present read back the frame so that swap chains
	// can serve gfx.FrameReader.
	Capture bool

	logPtr atomic.Pointer[slog.Logger]
}

var _ gfx.Backend = (*Backend)(nil)

func New() *Backend {
	b := &Backend{}
	b.logPtr.Store(slog.New(slog.DiscardHandler))
	return b
}

func (b *Backend) Name() string { return "opengl" }

func (b *Backend) Surface() gfx.SurfaceKind { return gfx.SurfaceOpenGL }

func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.logPtr.Store(l.With("backend", "opengl"))
}

func (b *Backend) logger() *slog.Logger { return b.logPtr.Load() }

func (b *Backend) CreateFactory(gfx.FactoryFlags) (gfx.Factory, error) {
	return &factory{b: b}, nil
}

func (b *Backend) CreateEvent() (gfx.Event, error) {
	return &event{}, nil
}

type factory struct{ b *Backend }

func (f *factory) Release() {}

// CreateDevice checks the level only. GL is loaded once a swap chain makes
// the window's context current.
func (f *factory) CreateDevice(minLevel gfx.FeatureLevel) (gfx.Device, error) {
	if minLevel > MaxFeatureLevel {
		return nil, fmt.Errorf("opengl device supports up to %s: %w", MaxFeatureLevel, gfx.ErrDeviceUnavailable)
	}
	return &device{b: f.b, views: make(map[uintptr]*resource)}, nil
}

func (f *factory) CreateSwapChainForWindow(q gfx.CommandQueue, window gfx.Window, desc *gfx.SwapChainDesc1) (gfx.SwapChain, error) {
	gq, ok := q.(*queue)
	if !ok {
		return nil, fmt.Errorf("opengl: queue of another backend: %w", gfx.ErrNoInterface)
	}
	cw, ok := window.(gfx.ContextWindow)
	if !ok {
		return nil, fmt.Errorf("opengl: window %T has no GL context: %w", window, gfx.ErrNotSupported)
	}
	if desc.BufferCount < 2 {
		return nil, fmt.Errorf("opengl: flip model needs at least 2 buffers, got %d", desc.BufferCount)
	}

	cw.MakeContextCurrent()
	if err := gq.dev.load(); err != nil {
		return nil, err
	}

	sc := &swapChain{
		queue:    gq,
		window:   cw,
		interval: -1,
		capture:  f.b.Capture,
	}
	for i := uint32(0); i < desc.BufferCount; i++ {
		sc.buffers = append(sc.buffers, &resource{index: i, state: gfx.ResourceStatePresent})
	}
	gq.window = cw
	return sc, nil
}

var loadOnce = sync.OnceValue(gl.Init)

type device struct {
	b *Backend

	lost error

	views    map[uintptr]*resource
	nextHeap uintptr
}

func (d *device) load() error {
	if err := loadOnce(); err != nil {
		return fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	d.b.logger().Info("opengl context ready",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)))
	return nil
}

// fail records the first error the context reported. Later calls that can
// return an error report the device as removed.
func (d *device) fail(err error) {
	if d.lost == nil {
		d.lost = fmt.Errorf("%w: %v", gfx.ErrDeviceRemoved, err)
		d.b.logger().Warn("opengl device lost", "reason", err)
	}
}

func (d *device) Release() {}

func (d *device) CreateCommandQueue(desc *gfx.CommandQueueDesc) (gfx.CommandQueue, error) {
	if desc.Type != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("opengl: queue type %d: %w", desc.Type, gfx.ErrNotSupported)
	}
	return &queue{dev: d}, nil
}

func (d *device) CreateDescriptorHeap(desc *gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	if desc.Type != gfx.DescriptorHeapTypeRTV {
		return nil, fmt.Errorf("opengl: descriptor heap type %d: %w", desc.Type, gfx.ErrNotSupported)
	}
	d.nextHeap++
	return &descriptorHeap{dev: d, start: d.nextHeap << 16, n: desc.NumDescriptors}, nil
}

func (d *device) DescriptorHandleIncrementSize(gfx.DescriptorHeapType) uint32 {
	return descriptorSize
}

func (d *device) CreateRenderTargetView(res gfx.Resource, _ *gfx.RenderTargetViewDesc, dest gfx.CPUDescriptorHandle) {
	r, ok := res.(*resource)
	if !ok {
		d.fail(fmt.Errorf("render target view of a foreign resource %T", res))
		return
	}
	d.views[dest.Ptr] = r
}

func (d *device) CreateCommandAllocator(listType gfx.CommandListType) (gfx.CommandAllocator, error) {
	if listType != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("opengl: allocator type %d: %w", listType, gfx.ErrNotSupported)
	}
	return &allocator{}, nil
}

func (d *device) CreateCommandList(_ uint32, listType gfx.CommandListType, alloc gfx.CommandAllocator, _ gfx.PipelineState) (gfx.GraphicsCommandList, error) {
	if listType != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("opengl: list type %d: %w", listType, gfx.ErrNotSupported)
	}
	if _, ok := alloc.(*allocator); !ok {
		return nil, fmt.Errorf("opengl: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	return &commandList{recording: true}, nil
}

func (d *device) CreateFence(initial uint64, _ gfx.FenceFlags) (gfx.Fence, error) {
	return &fence{value: initial}, nil
}

type descriptorHeap struct {
	dev   *device
	start uintptr
	n     uint32
}

func (h *descriptorHeap) Release() {
	for i := uint32(0); i < h.n; i++ {
		delete(h.dev.views, h.start+uintptr(i)*descriptorSize)
	}
}

func (h *descriptorHeap) CPUDescriptorHandleForHeapStart() gfx.CPUDescriptorHandle {
	return gfx.CPUDescriptorHandle{Ptr: h.start}
}

// resource is one logical back buffer of the default framebuffer. The
// driver owns the real buffers; only the state is tracked here.
type resource struct {
	index uint32
	state gfx.ResourceStates
}

func (r *resource) Release() {}
