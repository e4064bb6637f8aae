package gfx

import (
	"image"
	"log/slog"
)

// Releaser is implemented by every object a backend hands out.
type Releaser interface {
	Release()
}

// Backend is the entry point of a graphics API implementation.
type Backend interface {
	Name() string
	Surface() SurfaceKind
	CreateFactory(flags FactoryFlags) (Factory, error)
	// CreateEvent creates an auto-reset event used for fence completion.
	CreateEvent() (Event, error)
}

// Factory creates devices and window-bound swap chains.
type Factory interface {
	Releaser
	// CreateDevice opens the default adapter at minLevel or better.
	CreateDevice(minLevel FeatureLevel) (Device, error)
	// CreateSwapChainForWindow binds a swap chain to window. The swap chain
	// is created against queue so that Present can flush it.
	CreateSwapChainForWindow(queue CommandQueue, window Window, desc *SwapChainDesc1) (SwapChain, error)
}

type Device interface {
	Releaser
	CreateCommandQueue(desc *CommandQueueDesc) (CommandQueue, error)
	CreateDescriptorHeap(desc *DescriptorHeapDesc) (DescriptorHeap, error)
	DescriptorHandleIncrementSize(heapType DescriptorHeapType) uint32
	// CreateRenderTargetView writes a view of resource into dest. A nil desc
	// creates the default view.
	CreateRenderTargetView(resource Resource, desc *RenderTargetViewDesc, dest CPUDescriptorHandle)
	CreateCommandAllocator(listType CommandListType) (CommandAllocator, error)
	// CreateCommandList returns a list in the recording state.
	CreateCommandList(nodeMask uint32, listType CommandListType, allocator CommandAllocator, initial PipelineState) (GraphicsCommandList, error)
	CreateFence(initial uint64, flags FenceFlags) (Fence, error)
}

type CommandQueue interface {
	Releaser
	ExecuteCommandLists(lists []CommandList)
	// Signal sets fence to value once all previously submitted work is done.
	Signal(fence Fence, value uint64) error
}

// SwapChain is the base swap chain interface returned by a Factory.
type SwapChain interface {
	Releaser
	GetBuffer(n uint32) (Resource, error)
	Present(syncInterval uint32, flags PresentFlags) error
}

// SwapChain3 exposes the current back buffer index. Callers obtain it from
// a SwapChain with a type assertion.
type SwapChain3 interface {
	SwapChain
	CurrentBackBufferIndex() uint32
}

// FrameReader is implemented by swap chains that can read back the most
// recently presented image.
type FrameReader interface {
	ReadFrame() (*image.RGBA, error)
}

type DescriptorHeap interface {
	Releaser
	CPUDescriptorHandleForHeapStart() CPUDescriptorHandle
}

type Resource interface {
	Releaser
}

type PipelineState interface {
	Releaser
}

type CommandAllocator interface {
	Releaser
	Reset() error
}

type CommandList interface {
	Releaser
	Close() error
}

type GraphicsCommandList interface {
	CommandList
	Reset(allocator CommandAllocator, initial PipelineState) error
	ResourceBarrier(barriers []ResourceBarrier)
	OMSetRenderTargets(rtvs []CPUDescriptorHandle, singleHandleToDescriptorRange bool, dsv *CPUDescriptorHandle)
	ClearRenderTargetView(rtv CPUDescriptorHandle, color Color, rects []Rect)
}

type Fence interface {
	Releaser
	CompletedValue() uint64
	// SetEventOnCompletion arranges for event to be signaled once the fence
	// reaches value. If it already has, the event is signaled immediately.
	SetEventOnCompletion(value uint64, event Event) error
}

// Event is an auto-reset synchronization event.
type Event interface {
	// Wait blocks until the event is signaled. There is no timeout.
	Wait() error
	Close() error
}

// Window is something a swap chain can present to.
type Window interface {
	NativeHandle() uintptr
	ClientSize() (width, height int)
}

// Closer is implemented by host windows that can be asked to close.
type Closer interface {
	RequestClose()
}

// ContextWindow is implemented by windows that own an OpenGL context.
type ContextWindow interface {
	Window
	MakeContextCurrent()
	SwapBuffers()
}

// LoggerSetter is implemented by backends that accept a logger.
type LoggerSetter interface {
	SetLogger(*slog.Logger)
}
