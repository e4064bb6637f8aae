//go:build windows && (amd64 || arm64)

package d3d12

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"clearcolor/gfx"
)

func init() {
	gfx.Register("d3d12", 100, func() gfx.Backend {
		if !available() {
			return nil
		}
		return New()
	})
}

// Backend is the Direct3D 12 gfx backend.
type Backend struct {
	// Debug enables the D3D12 debug layer and a DXGI debug factory.
	Debug bool
	// NoWARP disables the fallback to the WARP software adapter.
	NoWARP bool

	logPtr atomic.Pointer[slog.Logger]
}

var _ gfx.Backend = (*Backend)(nil)

func New() *Backend {
	b := &Backend{}
	b.logPtr.Store(slog.New(slog.DiscardHandler))
	return b
}

func (b *Backend) Name() string { return "d3d12" }

func (b *Backend) Surface() gfx.SurfaceKind { return gfx.SurfaceNative }

func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.logPtr.Store(l.With("backend", "d3d12"))
}

func (b *Backend) logger() *slog.Logger { return b.logPtr.Load() }

func (b *Backend) CreateFactory(flags gfx.FactoryFlags) (gfx.Factory, error) {
	if err := procCreateDXGIFactory2.Find(); err != nil {
		return nil, fmt.Errorf("dxgi.dll: %w", gfx.ErrNotSupported)
	}
	debug := b.Debug || flags&gfx.FactoryFlagDebug != 0
	var dxgiFlags uintptr
	if debug {
		b.enableDebugLayer()
		dxgiFlags = dxgiCreateFactoryDebug
	}

	var ptr uintptr
	r, _, _ := procCreateDXGIFactory2.Call(dxgiFlags, uintptr(unsafe.Pointer(&iidIDXGIFactory4)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("CreateDXGIFactory2", r); err != nil {
		return nil, err
	}
	return &factory{b: b, ptr: ptr}, nil
}

func (b *Backend) enableDebugLayer() {
	if procD3D12GetDebugInterface.Find() != nil {
		return
	}
	var dbg uintptr
	r, _, _ := procD3D12GetDebugInterface.Call(uintptr(unsafe.Pointer(&iidID3D12Debug)), uintptr(unsafe.Pointer(&dbg)))
	if err := check("D3D12GetDebugInterface", r); err != nil {
		b.logger().Warn("debug layer unavailable", "err", err)
		return
	}
	comCall(dbg, debugEnableDebugLayer)
	comRelease(dbg)
	b.logger().Info("debug layer enabled")
}

// CreateEvent creates an auto-reset, initially unsignaled Win32 event.
func (b *Backend) CreateEvent() (gfx.Event, error) {
	h, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}
	return &event{h: h}, nil
}

type event struct {
	h windows.Handle
}

func (e *event) Wait() error {
	if e.h == 0 {
		return gfx.ErrEventClosed
	}
	s, err := windows.WaitForSingleObject(e.h, windows.INFINITE)
	if err != nil {
		return fmt.Errorf("WaitForSingleObject: %w", err)
	}
	if s != windows.WAIT_OBJECT_0 {
		return fmt.Errorf("WaitForSingleObject: unexpected status %#x", s)
	}
	return nil
}

func (e *event) Close() error {
	if e.h == 0 {
		return gfx.ErrEventClosed
	}
	err := windows.CloseHandle(e.h)
	e.h = 0
	return err
}

type factory struct {
	b   *Backend
	ptr uintptr
}

func (f *factory) Release() {
	comRelease(f.ptr)
	f.ptr = 0
}

// CreateDevice tries the default adapter, then WARP.
func (f *factory) CreateDevice(minLevel gfx.FeatureLevel) (gfx.Device, error) {
	dev, err := createDevice(0, minLevel)
	if err == nil {
		f.b.logger().Info("device created", "adapter", "default", "featureLevel", minLevel.String())
		return dev, nil
	}
	if f.b.NoWARP {
		return nil, fmt.Errorf("%w: %w", gfx.ErrDeviceUnavailable, err)
	}
	f.b.logger().Warn("default adapter unavailable, trying WARP", "err", err)

	var warp uintptr
	fn := comFn(f.ptr, factoryEnumWarpAdapter)
	r, _, _ := syscall.SyscallN(fn, f.ptr, uintptr(unsafe.Pointer(&iidIDXGIAdapter)), uintptr(unsafe.Pointer(&warp)))
	if werr := check("IDXGIFactory4::EnumWarpAdapter", r); werr != nil {
		return nil, fmt.Errorf("%w: %w", gfx.ErrDeviceUnavailable, errors.Join(err, werr))
	}
	defer comRelease(warp)

	dev, werr := createDevice(warp, minLevel)
	if werr != nil {
		return nil, fmt.Errorf("%w: %w", gfx.ErrDeviceUnavailable, errors.Join(err, werr))
	}
	f.b.logger().Info("device created", "adapter", "warp", "featureLevel", minLevel.String())
	return dev, nil
}

func createDevice(adapter uintptr, minLevel gfx.FeatureLevel) (*device, error) {
	var ptr uintptr
	r, _, _ := procD3D12CreateDevice.Call(adapter, uintptr(minLevel), uintptr(unsafe.Pointer(&iidID3D12Device)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("D3D12CreateDevice", r); err != nil {
		return nil, err
	}
	return &device{ptr: ptr}, nil
}

func (f *factory) CreateSwapChainForWindow(q gfx.CommandQueue, window gfx.Window, desc *gfx.SwapChainDesc1) (gfx.SwapChain, error) {
	cq, ok := q.(*commandQueue)
	if !ok {
		return nil, fmt.Errorf("d3d12: queue of another backend: %w", gfx.ErrNoInterface)
	}
	if window == nil || window.NativeHandle() == 0 {
		return nil, errors.New("d3d12: swap chain needs a native window handle")
	}
	hwnd := window.NativeHandle()

	d := toSwapChainDesc1(desc)
	var sc1 uintptr
	fn := comFn(f.ptr, factoryCreateSwapChainForHwnd)
	r, _, _ := syscall.SyscallN(fn, f.ptr, cq.ptr, hwnd, uintptr(unsafe.Pointer(&d)), 0, 0, uintptr(unsafe.Pointer(&sc1)))
	if err := check("IDXGIFactory2::CreateSwapChainForHwnd", r); err != nil {
		return nil, err
	}
	defer comRelease(sc1)

	// Fullscreen transitions are out of scope.
	comCall(f.ptr, factoryMakeWindowAssociation, hwnd, dxgiMWANoAltEnter)

	var sc3 uintptr
	fn = comFn(sc1, vtblQueryInterface)
	r, _, _ = syscall.SyscallN(fn, sc1, uintptr(unsafe.Pointer(&iidIDXGISwapChain3)), uintptr(unsafe.Pointer(&sc3)))
	if err := check("IDXGISwapChain1::QueryInterface(IDXGISwapChain3)", r); err != nil {
		return nil, err
	}
	return &swapChain{b: f.b, ptr: sc3, dev: cq.dev}, nil
}

type device struct {
	ptr uintptr
}

func (d *device) Release() {
	comRelease(d.ptr)
	d.ptr = 0
}

func (d *device) removedReason() error {
	return check("ID3D12Device::GetDeviceRemovedReason", comCall(d.ptr, deviceGetDeviceRemovedReason))
}

func (d *device) CreateCommandQueue(desc *gfx.CommandQueueDesc) (gfx.CommandQueue, error) {
	qd := commandQueueDesc{
		Type:     int32(desc.Type),
		Priority: desc.Priority,
		Flags:    uint32(desc.Flags),
		NodeMask: desc.NodeMask,
	}
	var ptr uintptr
	fn := comFn(d.ptr, deviceCreateCommandQueue)
	r, _, _ := syscall.SyscallN(fn, d.ptr, uintptr(unsafe.Pointer(&qd)), uintptr(unsafe.Pointer(&iidID3D12CommandQueue)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("ID3D12Device::CreateCommandQueue", r); err != nil {
		return nil, err
	}
	return &commandQueue{ptr: ptr, dev: d}, nil
}

func (d *device) CreateDescriptorHeap(desc *gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	hd := descriptorHeapDesc{
		Type:           int32(desc.Type),
		NumDescriptors: desc.NumDescriptors,
		Flags:          uint32(desc.Flags),
		NodeMask:       desc.NodeMask,
	}
	var ptr uintptr
	fn := comFn(d.ptr, deviceCreateDescriptorHeap)
	r, _, _ := syscall.SyscallN(fn, d.ptr, uintptr(unsafe.Pointer(&hd)), uintptr(unsafe.Pointer(&iidID3D12DescriptorHeap)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("ID3D12Device::CreateDescriptorHeap", r); err != nil {
		return nil, err
	}
	return &descriptorHeap{ptr: ptr}, nil
}

func (d *device) DescriptorHandleIncrementSize(t gfx.DescriptorHeapType) uint32 {
	return uint32(comCall(d.ptr, deviceGetDescriptorHandleIncrementSize, uintptr(t)))
}

func (d *device) CreateRenderTargetView(res gfx.Resource, _ *gfx.RenderTargetViewDesc, dest gfx.CPUDescriptorHandle) {
	var ptr uintptr
	if r, ok := res.(*resource); ok {
		ptr = r.ptr
	}
	// D3D12_CPU_DESCRIPTOR_HANDLE is a SIZE_T and travels by value.
	comCall(d.ptr, deviceCreateRenderTargetView, ptr, 0, dest.Ptr)
}

func (d *device) CreateCommandAllocator(t gfx.CommandListType) (gfx.CommandAllocator, error) {
	var ptr uintptr
	fn := comFn(d.ptr, deviceCreateCommandAllocator)
	r, _, _ := syscall.SyscallN(fn, d.ptr, uintptr(t), uintptr(unsafe.Pointer(&iidID3D12CommandAllocator)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("ID3D12Device::CreateCommandAllocator", r); err != nil {
		return nil, err
	}
	return &commandAllocator{ptr: ptr}, nil
}

func (d *device) CreateCommandList(nodeMask uint32, t gfx.CommandListType, alloc gfx.CommandAllocator, initial gfx.PipelineState) (gfx.GraphicsCommandList, error) {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return nil, fmt.Errorf("d3d12: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	if initial != nil {
		return nil, fmt.Errorf("d3d12: initial pipeline state: %w", gfx.ErrNotSupported)
	}
	var ptr uintptr
	fn := comFn(d.ptr, deviceCreateCommandList)
	r, _, _ := syscall.SyscallN(fn, d.ptr, uintptr(nodeMask), uintptr(t), a.ptr, 0, uintptr(unsafe.Pointer(&iidID3D12GraphicsCommandList)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("ID3D12Device::CreateCommandList", r); err != nil {
		return nil, err
	}
	return &commandList{ptr: ptr}, nil
}

func (d *device) CreateFence(initial uint64, flags gfx.FenceFlags) (gfx.Fence, error) {
	var ptr uintptr
	fn := comFn(d.ptr, deviceCreateFence)
	r, _, _ := syscall.SyscallN(fn, d.ptr, uintptr(initial), uintptr(flags), uintptr(unsafe.Pointer(&iidID3D12Fence)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("ID3D12Device::CreateFence", r); err != nil {
		return nil, err
	}
	return &fence{ptr: ptr}, nil
}

type commandQueue struct {
	ptr uintptr
	dev *device
}

func (q *commandQueue) Release() {
	comRelease(q.ptr)
	q.ptr = 0
}

func (q *commandQueue) ExecuteCommandLists(lists []gfx.CommandList) {
	ptrs := make([]uintptr, 0, len(lists))
	for _, l := range lists {
		if cl, ok := l.(*commandList); ok {
			ptrs = append(ptrs, cl.ptr)
		}
	}
	if len(ptrs) == 0 {
		return
	}
	fn := comFn(q.ptr, queueExecuteCommandLists)
	syscall.SyscallN(fn, q.ptr, uintptr(len(ptrs)), uintptr(unsafe.Pointer(&ptrs[0])))
}

func (q *commandQueue) Signal(f gfx.Fence, value uint64) error {
	df, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("d3d12: fence of another backend: %w", gfx.ErrNoInterface)
	}
	return check("ID3D12CommandQueue::Signal", comCall(q.ptr, queueSignal, df.ptr, uintptr(value)))
}

type swapChain struct {
	b   *Backend
	ptr uintptr
	dev *device
}

func (s *swapChain) Release() {
	comRelease(s.ptr)
	s.ptr = 0
}

func (s *swapChain) GetBuffer(n uint32) (gfx.Resource, error) {
	var ptr uintptr
	fn := comFn(s.ptr, swapChainGetBuffer)
	r, _, _ := syscall.SyscallN(fn, s.ptr, uintptr(n), uintptr(unsafe.Pointer(&iidID3D12Resource)), uintptr(unsafe.Pointer(&ptr)))
	if err := check("IDXGISwapChain::GetBuffer", r); err != nil {
		return nil, err
	}
	return &resource{ptr: ptr}, nil
}

// Present treats DXGI_STATUS_OCCLUDED as success. Device loss is reported
// with the device's removal reason.
func (s *swapChain) Present(syncInterval uint32, flags gfx.PresentFlags) error {
	r := comCall(s.ptr, swapChainPresent, uintptr(syncInterval), uintptr(flags))
	if HRESULT(uint32(r)) == DXGI_STATUS_OCCLUDED {
		s.b.logger().Debug("present occluded")
	}
	err := check("IDXGISwapChain::Present", r)
	if err != nil && errors.Is(err, gfx.ErrDeviceRemoved) {
		if reason := s.dev.removedReason(); reason != nil {
			err = errors.Join(err, reason)
		}
	}
	return err
}

func (s *swapChain) CurrentBackBufferIndex() uint32 {
	return uint32(comCall(s.ptr, swapChainGetCurrentBackBufferIndex))
}

type descriptorHeap struct {
	ptr uintptr
}

func (h *descriptorHeap) Release() {
	comRelease(h.ptr)
	h.ptr = 0
}

// CPUDescriptorHandleForHeapStart returns the handle through a hidden
// out-pointer, the ABI MSVC uses for methods returning structs.
func (h *descriptorHeap) CPUDescriptorHandleForHeapStart() gfx.CPUDescriptorHandle {
	var out uintptr
	fn := comFn(h.ptr, heapGetCPUDescriptorHandleForHeapStart)
	syscall.SyscallN(fn, h.ptr, uintptr(unsafe.Pointer(&out)))
	return gfx.CPUDescriptorHandle{Ptr: out}
}

type resource struct {
	ptr uintptr
}

func (r *resource) Release() {
	comRelease(r.ptr)
	r.ptr = 0
}

type commandAllocator struct {
	ptr uintptr
}

func (a *commandAllocator) Release() {
	comRelease(a.ptr)
	a.ptr = 0
}

func (a *commandAllocator) Reset() error {
	return check("ID3D12CommandAllocator::Reset", comCall(a.ptr, allocatorReset))
}

type commandList struct {
	ptr uintptr
}

func (l *commandList) Release() {
	comRelease(l.ptr)
	l.ptr = 0
}

func (l *commandList) Close() error {
	return check("ID3D12GraphicsCommandList::Close", comCall(l.ptr, listClose))
}

func (l *commandList) Reset(alloc gfx.CommandAllocator, initial gfx.PipelineState) error {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return fmt.Errorf("d3d12: allocator of another backend: %w", gfx.ErrNoInterface)
	}
	if initial != nil {
		return fmt.Errorf("d3d12: initial pipeline state: %w", gfx.ErrNotSupported)
	}
	return check("ID3D12GraphicsCommandList::Reset", comCall(l.ptr, listReset, a.ptr, 0))
}

func (l *commandList) ResourceBarrier(barriers []gfx.ResourceBarrier) {
	raw := make([]resourceBarrier, 0, len(barriers))
	for _, b := range barriers {
		var ptr uintptr
		if r, ok := b.Transition.Resource.(*resource); ok {
			ptr = r.ptr
		}
		raw = append(raw, toResourceBarrier(b, ptr))
	}
	if len(raw) == 0 {
		return
	}
	fn := comFn(l.ptr, listResourceBarrier)
	syscall.SyscallN(fn, l.ptr, uintptr(len(raw)), uintptr(unsafe.Pointer(&raw[0])))
}

func (l *commandList) OMSetRenderTargets(rtvs []gfx.CPUDescriptorHandle, single bool, dsv *gfx.CPUDescriptorHandle) {
	var contiguous uintptr
	if single {
		contiguous = 1
	}
	var rtvPtr, dsvPtr uintptr
	fn := comFn(l.ptr, listOMSetRenderTargets)
	switch {
	case len(rtvs) > 0 && dsv != nil:
		syscall.SyscallN(fn, l.ptr, uintptr(len(rtvs)), uintptr(unsafe.Pointer(&rtvs[0])), contiguous, uintptr(unsafe.Pointer(dsv)))
	case len(rtvs) > 0:
		syscall.SyscallN(fn, l.ptr, uintptr(len(rtvs)), uintptr(unsafe.Pointer(&rtvs[0])), contiguous, dsvPtr)
	case dsv != nil:
		syscall.SyscallN(fn, l.ptr, 0, rtvPtr, contiguous, uintptr(unsafe.Pointer(dsv)))
	default:
		syscall.SyscallN(fn, l.ptr, 0, rtvPtr, contiguous, dsvPtr)
	}
}

func (l *commandList) ClearRenderTargetView(rtv gfx.CPUDescriptorHandle, c gfx.Color, rects []gfx.Rect) {
	rgba := c.Array()
	fn := comFn(l.ptr, listClearRenderTargetView)
	if len(rects) == 0 {
		syscall.SyscallN(fn, l.ptr, rtv.Ptr, uintptr(unsafe.Pointer(&rgba[0])), 0, 0)
		return
	}
	syscall.SyscallN(fn, l.ptr, rtv.Ptr, uintptr(unsafe.Pointer(&rgba[0])), uintptr(len(rects)), uintptr(unsafe.Pointer(&rects[0])))
}

type fence struct {
	ptr uintptr
}

func (f *fence) Release() {
	comRelease(f.ptr)
	f.ptr = 0
}

func (f *fence) CompletedValue() uint64 {
	return uint64(comCall(f.ptr, fenceGetCompletedValue))
}

func (f *fence) SetEventOnCompletion(value uint64, ev gfx.Event) error {
	e, ok := ev.(*event)
	if !ok {
		return fmt.Errorf("d3d12: event of another backend: %w", gfx.ErrNoInterface)
	}
	return check("ID3D12Fence::SetEventOnCompletion", comCall(f.ptr, fenceSetEventOnCompletion, uintptr(value), uintptr(e.h)))
}
