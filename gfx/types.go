package gfx

import "fmt"

// SurfaceKind tells the host what kind of window a backend presents to.
type SurfaceKind int

const (
	// SurfaceHeadless backends render offscreen and ignore the native handle.
	SurfaceHeadless SurfaceKind = iota
	// SurfaceNative backends need a native window handle and no client API.
	SurfaceNative
	// SurfaceOpenGL backends need a window with a current OpenGL context.
	SurfaceOpenGL
)

func (k SurfaceKind) String() string {
	switch k {
	case SurfaceHeadless:
		return "headless"
	case SurfaceNative:
		return "native"
	case SurfaceOpenGL:
		return "opengl"
	}
	return fmt.Sprintf("SurfaceKind(%d)", int(k))
}

type FactoryFlags uint32

const FactoryFlagDebug FactoryFlags = 0x01

// FeatureLevel values match D3D_FEATURE_LEVEL.
type FeatureLevel uint32

const (
	FeatureLevel11_0 FeatureLevel = 0xb000
	FeatureLevel11_1 FeatureLevel = 0xb100
	FeatureLevel12_0 FeatureLevel = 0xc000
	FeatureLevel12_1 FeatureLevel = 0xc100
)

func (l FeatureLevel) String() string {
	return fmt.Sprintf("%d_%d", uint32(l)>>12, (uint32(l)>>8)&0xf)
}

// Format values match DXGI_FORMAT.
type Format uint32

const (
	FormatUnknown       Format = 0
	FormatR8G8B8A8UNorm Format = 28
	FormatB8G8R8A8UNorm Format = 87
)

type Usage uint32

const (
	UsageShaderInput        Usage = 0x10
	UsageRenderTargetOutput Usage = 0x20
)

type SwapEffect uint32

const (
	SwapEffectDiscard        SwapEffect = 0
	SwapEffectSequential     SwapEffect = 1
	SwapEffectFlipSequential SwapEffect = 3
	SwapEffectFlipDiscard    SwapEffect = 4
)

type PresentFlags uint32

type SampleDesc struct {
	Count   uint32
	Quality uint32
}

// SwapChainDesc1 describes a window swap chain. Zero Width and Height use
// the window's client area.
type SwapChainDesc1 struct {
	Width       uint32
	Height      uint32
	Format      Format
	SampleDesc  SampleDesc
	BufferUsage Usage
	BufferCount uint32
	SwapEffect  SwapEffect
}

type CommandListType uint32

const (
	CommandListTypeDirect  CommandListType = 0
	CommandListTypeBundle  CommandListType = 1
	CommandListTypeCompute CommandListType = 2
	CommandListTypeCopy    CommandListType = 3
)

type CommandQueueFlags uint32

const CommandQueueFlagNone CommandQueueFlags = 0

type CommandQueueDesc struct {
	Type     CommandListType
	Priority int32
	Flags    CommandQueueFlags
	NodeMask uint32
}

type DescriptorHeapType uint32

const (
	DescriptorHeapTypeCBVSRVUAV DescriptorHeapType = 0
	DescriptorHeapTypeSampler   DescriptorHeapType = 1
	DescriptorHeapTypeRTV       DescriptorHeapType = 2
	DescriptorHeapTypeDSV       DescriptorHeapType = 3
)

type DescriptorHeapFlags uint32

const (
	DescriptorHeapFlagNone          DescriptorHeapFlags = 0
	DescriptorHeapFlagShaderVisible DescriptorHeapFlags = 1
)

type DescriptorHeapDesc struct {
	Type           DescriptorHeapType
	NumDescriptors uint32
	Flags          DescriptorHeapFlags
	NodeMask       uint32
}

// CPUDescriptorHandle addresses one descriptor in a CPU-visible heap.
type CPUDescriptorHandle struct {
	Ptr uintptr
}

// Offset returns the handle n descriptors past h.
func (h CPUDescriptorHandle) Offset(n int, increment uint32) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: uintptr(int64(h.Ptr) + int64(n)*int64(increment))}
}

type RenderTargetViewDesc struct {
	Format Format
}

type FenceFlags uint32

const FenceFlagNone FenceFlags = 0

type Rect struct {
	Left, Top, Right, Bottom int32
}

// ResourceStates values match D3D12_RESOURCE_STATES.
type ResourceStates uint32

const (
	ResourceStateCommon       ResourceStates = 0
	ResourceStatePresent      ResourceStates = 0
	ResourceStateRenderTarget ResourceStates = 0x4
	ResourceStateCopyDest     ResourceStates = 0x400
	ResourceStateCopySource   ResourceStates = 0x800
)

func (s ResourceStates) String() string {
	switch s {
	case ResourceStatePresent:
		return "PRESENT"
	case ResourceStateRenderTarget:
		return "RENDER_TARGET"
	case ResourceStateCopyDest:
		return "COPY_DEST"
	case ResourceStateCopySource:
		return "COPY_SOURCE"
	}
	return fmt.Sprintf("ResourceStates(%#x)", uint32(s))
}

type ResourceBarrierType uint32

const (
	ResourceBarrierTypeTransition ResourceBarrierType = 0
	ResourceBarrierTypeAliasing   ResourceBarrierType = 1
	ResourceBarrierTypeUAV        ResourceBarrierType = 2
)

type ResourceBarrierFlags uint32

const ResourceBarrierFlagNone ResourceBarrierFlags = 0

// AllSubresources selects every subresource in a transition barrier.
const AllSubresources = 0xffffffff

type ResourceTransitionBarrier struct {
	Resource    Resource
	Subresource uint32
	StateBefore ResourceStates
	StateAfter  ResourceStates
}

type ResourceBarrier struct {
	Type       ResourceBarrierType
	Flags      ResourceBarrierFlags
	Transition ResourceTransitionBarrier
}

// Transition returns a barrier moving every subresource of r from before
// to after.
func Transition(r Resource, before, after ResourceStates) ResourceBarrier {
	return ResourceBarrier{
		Type:  ResourceBarrierTypeTransition,
		Flags: ResourceBarrierFlagNone,
		Transition: ResourceTransitionBarrier{
			Resource:    r,
			Subresource: AllSubresources,
			StateBefore: before,
			StateAfter:  after,
		},
	}
}
