// Package software implements gfx on the CPU.
//
// Each command queue runs a worker goroutine that plays the role of the GPU:
// submitted command lists, fence signals and presents are executed in
// submission order. Resource states are tracked and validated the way the
// D3D12 debug layer does; a mismatch removes the device.
package software

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clearcolor/gfx"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480

	// MaxFeatureLevel is the highest level the software device reports.
	MaxFeatureLevel = gfx.FeatureLevel12_1

	descriptorSize = 32
)

func init() {
	gfx.Register("software", 0, func() gfx.Backend { return New() })
}

// Backend is the software gfx backend.
type Backend struct {
	// RefreshInterval paces presents with a non-zero sync interval.
	// Zero presents immediately.
	RefreshInterval time.Duration

	logPtr atomic.Pointer[slog.Logger]
}

var _ gfx.Backend = (*Backend)(nil)

func New() *Backend {
	b := &Backend{}
	b.logPtr.Store(slog.New(slog.DiscardHandler))
	return b
}

func (b *Backend) Name() string { return "software" }

func (b *Backend) Surface() gfx.SurfaceKind { return gfx.SurfaceHeadless }

func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.logPtr.Store(l.With("backend", "software"))
}

func (b *Backend) logger() *slog.Logger { return b.logPtr.Load() }

func (b *Backend) CreateFactory(gfx.FactoryFlags) (gfx.Factory, error) {
	return &factory{b: b}, nil
}

func (b *Backend) CreateEvent() (gfx.Event, error) {
	return newEvent(), nil
}

type factory struct{ b *Backend }

func (f *factory) Release() {}

func (f *factory) CreateDevice(minLevel gfx.FeatureLevel) (gfx.Device, error) {
	if minLevel > MaxFeatureLevel {
		return nil, fmt.Errorf("software device supports up to %s: %w", MaxFeatureLevel, gfx.ErrDeviceUnavailable)
	}
	f.b.logger().Info("software device created", "featureLevel", MaxFeatureLevel.String())
	return &device{b: f.b, views: make(map[uintptr]*texture)}, nil
}

func (f *factory) CreateSwapChainForWindow(q gfx.CommandQueue, window gfx.Window, desc *gfx.SwapChainDesc1) (gfx.SwapChain, error) {
	sq, ok := q.(*queue)
	if !ok {
		return nil, fmt.Errorf("software: queue of another backend: %w", gfx.ErrNoInterface)
	}
	switch desc.Format {
	case gfx.FormatR8G8B8A8UNorm, gfx.FormatB8G8R8A8UNorm:
	default:
		return nil, fmt.Errorf("software: swap chain format %d: %w", desc.Format, gfx.ErrNotSupported)
	}
	if desc.BufferCount < 2 {
		return nil, fmt.Errorf("software: flip model needs at least 2 buffers, got %d", desc.BufferCount)
	}

	w, h := int(desc.Width), int(desc.Height)
	if w == 0 || h == 0 {
		w, h = DefaultWidth, DefaultHeight
		if window != nil {
			if cw, ch := window.ClientSize(); cw > 0 && ch > 0 {
				w, h = cw, ch
			}
		}
	}

	sc := &swapChain{
		queue: sq,
		front: image.NewRGBA(image.Rect(0, 0, w, h)),
	}
	for i := uint32(0); i < desc.BufferCount; i++ {
		sc.buffers = append(sc.buffers, &texture{
			img:   image.NewRGBA(image.Rect(0, 0, w, h)),
			state: gfx.ResourceStatePresent,
		})
	}
	return sc, nil
}

type device struct {
	b *Backend

	removed    atomic.Bool
	removedErr atomic.Value

	mu       sync.RWMutex
	views    map[uintptr]*texture
	nextHeap uintptr
}

// remove marks the device lost. Only the first reason is kept.
func (d *device) remove(reason error) {
	if d.removed.CompareAndSwap(false, true) {
		d.removedErr.Store(reason)
		d.b.logger().Warn("software device removed", "reason", reason)
	}
}

func (d *device) err() error {
	if !d.removed.Load() {
		return nil
	}
	return fmt.Errorf("%w: %v", gfx.ErrDeviceRemoved, d.removedErr.Load())
}

func (d *device) view(h gfx.CPUDescriptorHandle) *texture {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.views[h.Ptr]
}

func (d *device) Release() {}

func (d *device) CreateCommandQueue(desc *gfx.CommandQueueDesc) (gfx.CommandQueue, error) {
	if desc.Type != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("software: queue type %d: %w", desc.Type, gfx.ErrNotSupported)
	}
	return newQueue(d), nil
}

func (d *device) CreateDescriptorHeap(desc *gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	if desc.Type != gfx.DescriptorHeapTypeRTV {
		return nil, fmt.Errorf("software: descriptor heap type %d: %w", desc.Type, gfx.ErrNotSupported)
	}
	d.mu.Lock()
	d.nextHeap++
	start := d.nextHeap << 20
	d.mu.Unlock()
	return &descriptorHeap{dev: d, start: start, n: desc.NumDescriptors}, nil
}

func (d *device) DescriptorHandleIncrementSize(gfx.DescriptorHeapType) uint32 {
	return descriptorSize
}

func (d *device) CreateRenderTargetView(resource gfx.Resource, _ *gfx.RenderTargetViewDesc, dest gfx.CPUDescriptorHandle) {
	t, ok := resource.(*texture)
	if !ok {
		d.remove(fmt.Errorf("render target view of a foreign resource %T", resource))
		return
	}
	d.mu.Lock()
	d.views[dest.Ptr] = t
	d.mu.Unlock()
}

func (d *device) CreateCommandAllocator(listType gfx.CommandListType) (gfx.CommandAllocator, error) {
	if listType != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("software: allocator type %d: %w", listType, gfx.ErrNotSupported)
	}
	return &allocator{}, nil
}

func (d *device) CreateCommandList(_ uint32, listType gfx.CommandListType, alloc gfx.CommandAllocator, _ gfx.PipelineState) (gfx.GraphicsCommandList, error) {
	if listType != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("software: list type %d: %w", listType, gfx.ErrNotSupported)
	}
	a, ok := alloc.(*allocator)
	if !ok {
		return nil, fmt.Errorf("software: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	return &commandList{dev: d, alloc: a, recording: true}, nil
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
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	for i := uint32(0); i < h.n; i++ {
		delete(h.dev.views, h.start+uintptr(i)*descriptorSize)
	}
}

func (h *descriptorHeap) CPUDescriptorHandleForHeapStart() gfx.CPUDescriptorHandle {
	return gfx.CPUDescriptorHandle{Ptr: h.start}
}

// texture is a back buffer. Its state is only touched by the queue worker.
type texture struct {
	img   *image.RGBA
	state gfx.ResourceStates
}

func (t *texture) Release() {}
