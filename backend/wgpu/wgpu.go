// Package wgpu implements gfx on the gogpu/wgpu hardware abstraction layer.
//
// Swap chains are offscreen textures: Present copies the back buffer into a
// staging buffer and reads it back, so every swap chain is a
// gfx.FrameReader. D3D12 resource states map to texture usages: PRESENT is
// CopySrc and RENDER_TARGET is RenderAttachment.
package wgpu

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"clearcolor/gfx"
)

// MaxFeatureLevel is the highest level the device reports.
const MaxFeatureLevel = gfx.FeatureLevel12_1

const descriptorSize = 8

func init() {
	if _, ok := hal.GetBackend(gputypes.BackendVulkan); ok {
		gfx.Register("wgpu", 5, func() gfx.Backend { return New() })
	}
}

// InstanceCreator creates hal instances. hal.Backend values satisfy it.
type InstanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Backend is the wgpu gfx backend.
type Backend struct {
	// API creates the hal instance. Nil selects the Vulkan hal backend.
	API InstanceCreator

	logPtr atomic.Pointer[slog.Logger]
}

var _ gfx.Backend = (*Backend)(nil)

func New() *Backend {
	b := &Backend{}
	b.logPtr.Store(slog.New(slog.DiscardHandler))
	return b
}

func (b *Backend) Name() string { return "wgpu" }

func (b *Backend) Surface() gfx.SurfaceKind { return gfx.SurfaceHeadless }

func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.logPtr.Store(l.With("backend", "wgpu"))
}

func (b *Backend) logger() *slog.Logger { return b.logPtr.Load() }

func (b *Backend) CreateFactory(gfx.FactoryFlags) (gfx.Factory, error) {
	api := b.API
	if api == nil {
		vk, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("wgpu: vulkan hal backend: %w", gfx.ErrNotSupported)
		}
		api = vk
	}
	return &factory{b: b, api: api}, nil
}

func (b *Backend) CreateEvent() (gfx.Event, error) {
	return &event{}, nil
}

type factory struct {
	b   *Backend
	api InstanceCreator
}

func (f *factory) Release() {}

// CreateDevice opens the first discrete or integrated adapter, falling back
// to whatever adapter the instance exposes first.
func (f *factory) CreateDevice(minLevel gfx.FeatureLevel) (gfx.Device, error) {
	if minLevel > MaxFeatureLevel {
		return nil, fmt.Errorf("wgpu device supports up to %s: %w", MaxFeatureLevel, gfx.ErrDeviceUnavailable)
	}
	instance, err := f.api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w: %w", gfx.ErrDeviceUnavailable, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("no adapters found: %w", gfx.ErrDeviceUnavailable)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("failed to open adapter %q: %w: %w", selected.Info.Name, gfx.ErrDeviceUnavailable, err)
	}
	f.b.logger().Info("wgpu adapter selected", "name", selected.Info.Name, "type", selected.Info.DeviceType)

	return &device{
		b:        f.b,
		instance: instance,
		hal:      open.Device,
		queue:    open.Queue,
		views:    make(map[uintptr]*texture),
	}, nil
}

func (f *factory) CreateSwapChainForWindow(q gfx.CommandQueue, window gfx.Window, desc *gfx.SwapChainDesc1) (gfx.SwapChain, error) {
	wq, ok := q.(*queue)
	if !ok {
		return nil, fmt.Errorf("wgpu: queue of another backend: %w", gfx.ErrNoInterface)
	}
	format, ok := textureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("wgpu: swap chain format %d: %w", desc.Format, gfx.ErrNotSupported)
	}
	if desc.BufferCount < 2 {
		return nil, fmt.Errorf("wgpu: flip model needs at least 2 buffers, got %d", desc.BufferCount)
	}

	w, h := desc.Width, desc.Height
	if w == 0 || h == 0 {
		w, h = 640, 480
		if window != nil {
			if cw, ch := window.ClientSize(); cw > 0 && ch > 0 {
				w, h = uint32(cw), uint32(ch)
			}
		}
	}
	return newSwapChain(wq, format, w, h, desc.BufferCount)
}

func textureFormat(f gfx.Format) (gputypes.TextureFormat, bool) {
	switch f {
	case gfx.FormatR8G8B8A8UNorm:
		return gputypes.TextureFormatRGBA8Unorm, true
	case gfx.FormatB8G8R8A8UNorm:
		return gputypes.TextureFormatBGRA8Unorm, true
	}
	return 0, false
}

// textureUsage maps a resource state to the texture usage it stands for.
func textureUsage(s gfx.ResourceStates) gputypes.TextureUsage {
	if s == gfx.ResourceStateRenderTarget {
		return gputypes.TextureUsageRenderAttachment
	}
	return gputypes.TextureUsageCopySrc
}

type device struct {
	b        *Backend
	instance hal.Instance
	hal      hal.Device
	queue    hal.Queue

	lost     error
	q        *queue
	views    map[uintptr]*texture
	nextHeap uintptr
}

func (d *device) fail(err error) {
	if d.lost == nil {
		d.lost = fmt.Errorf("%w: %v", gfx.ErrDeviceRemoved, err)
		d.b.logger().Warn("wgpu device removed", "reason", err)
	}
}

func (d *device) Release() {
	if d.hal != nil {
		d.hal.Destroy()
		d.hal = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

func (d *device) CreateCommandQueue(desc *gfx.CommandQueueDesc) (gfx.CommandQueue, error) {
	if desc.Type != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("wgpu: queue type %d: %w", desc.Type, gfx.ErrNotSupported)
	}
	if d.q != nil {
		return nil, fmt.Errorf("wgpu: the device has a single queue: %w", gfx.ErrNotSupported)
	}
	fence, err := d.hal.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("failed to create queue fence: %w", err)
	}
	d.q = &queue{dev: d, fence: fence}
	return d.q, nil
}

func (d *device) CreateDescriptorHeap(desc *gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	if desc.Type != gfx.DescriptorHeapTypeRTV {
		return nil, fmt.Errorf("wgpu: descriptor heap type %d: %w", desc.Type, gfx.ErrNotSupported)
	}
	d.nextHeap++
	return &descriptorHeap{dev: d, start: d.nextHeap << 12, n: desc.NumDescriptors}, nil
}

func (d *device) DescriptorHandleIncrementSize(gfx.DescriptorHeapType) uint32 {
	return descriptorSize
}

func (d *device) CreateRenderTargetView(res gfx.Resource, _ *gfx.RenderTargetViewDesc, dest gfx.CPUDescriptorHandle) {
	t, ok := res.(*texture)
	if !ok {
		d.fail(fmt.Errorf("render target view of a foreign resource %T", res))
		return
	}
	d.views[dest.Ptr] = t
}

func (d *device) CreateCommandAllocator(listType gfx.CommandListType) (gfx.CommandAllocator, error) {
	if listType != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("wgpu: allocator type %d: %w", listType, gfx.ErrNotSupported)
	}
	return &allocator{dev: d}, nil
}

func (d *device) CreateCommandList(_ uint32, listType gfx.CommandListType, alloc gfx.CommandAllocator, _ gfx.PipelineState) (gfx.GraphicsCommandList, error) {
	if listType != gfx.CommandListTypeDirect {
		return nil, fmt.Errorf("wgpu: list type %d: %w", listType, gfx.ErrNotSupported)
	}
	a, ok := alloc.(*allocator)
	if !ok {
		return nil, fmt.Errorf("wgpu: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "clearcolor_list"})
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	l := &commandList{dev: d, encoder: encoder}
	if err := l.begin(a); err != nil {
		return nil, err
	}
	return l, nil
}

func (d *device) CreateFence(initial uint64, _ gfx.FenceFlags) (gfx.Fence, error) {
	f, err := d.hal.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("failed to create fence: %w", err)
	}
	return &fence{dev: d, hal: f, completed: initial}, nil
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

// texture is a swap chain buffer. state is the state after every executed
// list; the lists themselves are validated against it on execute.
type texture struct {
	hal   hal.Texture
	view  hal.TextureView
	state gfx.ResourceStates
}

// Release is a no-op: the swap chain owns its buffers.
func (t *texture) Release() {}
