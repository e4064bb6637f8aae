package d3d12

import (
	"clearcolor/gfx"
)

type guid struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

var (
	iidIDXGIFactory4             = guid{0x1bc6ea02, 0xef36, 0x464f, [8]byte{0xbf, 0x0c, 0x21, 0xca, 0x39, 0xe5, 0x16, 0x8a}}
	iidIDXGIAdapter              = guid{0x2411e7e1, 0x12ac, 0x4ccf, [8]byte{0xbd, 0x14, 0x97, 0x98, 0xe8, 0x53, 0x4d, 0xc0}}
	iidIDXGISwapChain3           = guid{0x94d99bdb, 0xf1f8, 0x4ab0, [8]byte{0xb2, 0x36, 0x7d, 0xa0, 0x17, 0x0e, 0xda, 0xb1}}
	iidID3D12Debug               = guid{0x344488b7, 0x6846, 0x474b, [8]byte{0xb9, 0x89, 0xf0, 0x27, 0x44, 0x82, 0x45, 0xe0}}
	iidID3D12Device              = guid{0x189819f1, 0x1db6, 0x4b57, [8]byte{0xbe, 0x54, 0x18, 0x21, 0x33, 0x9b, 0x85, 0xf7}}
	iidID3D12CommandQueue        = guid{0x0ec870a6, 0x5d7e, 0x4c22, [8]byte{0x8c, 0xfc, 0x5b, 0xaa, 0xe0, 0x76, 0x16, 0xed}}
	iidID3D12CommandAllocator    = guid{0x6102dee4, 0xaf59, 0x4b09, [8]byte{0xb9, 0x99, 0xb4, 0x4d, 0x73, 0xf0, 0x9b, 0x24}}
	iidID3D12GraphicsCommandList = guid{0x5b160d0f, 0xac1b, 0x4185, [8]byte{0x8b, 0xa8, 0xb3, 0xae, 0x42, 0xa5, 0xa4, 0x55}}
	iidID3D12DescriptorHeap      = guid{0x8efb471d, 0x616c, 0x4f49, [8]byte{0x90, 0xf7, 0x12, 0x7b, 0xb7, 0x63, 0xfa, 0x51}}
	iidID3D12Fence               = guid{0x0a753dcf, 0xc4d8, 0x4b91, [8]byte{0xad, 0xf6, 0xbe, 0x5a, 0x60, 0xd9, 0x5a, 0x76}}
	iidID3D12Resource            = guid{0x696442be, 0xa72e, 0x4059, [8]byte{0xbc, 0x79, 0x5b, 0x5c, 0x98, 0x04, 0x0f, 0xad}}
)

// Vtable slots. Each interface continues the slots of its base.
const (
	vtblQueryInterface = 0
	vtblAddRef         = 1
	vtblRelease        = 2

	// ID3D12Debug
	debugEnableDebugLayer = 3

	// IDXGIFactory .. IDXGIFactory4
	factoryMakeWindowAssociation  = 8
	factoryCreateSwapChainForHwnd = 15
	factoryEnumWarpAdapter        = 27

	// IDXGISwapChain .. IDXGISwapChain3
	swapChainPresent                   = 8
	swapChainGetBuffer                 = 9
	swapChainGetCurrentBackBufferIndex = 36

	// ID3D12Device
	deviceCreateCommandQueue               = 8
	deviceCreateCommandAllocator           = 9
	deviceCreateCommandList                = 12
	deviceCreateDescriptorHeap             = 14
	deviceGetDescriptorHandleIncrementSize = 15
	deviceCreateRenderTargetView           = 20
	deviceCreateFence                      = 36
	deviceGetDeviceRemovedReason           = 37

	// ID3D12CommandQueue
	queueExecuteCommandLists = 10
	queueSignal              = 14

	// ID3D12CommandAllocator
	allocatorReset = 8

	// ID3D12Fence
	fenceGetCompletedValue    = 8
	fenceSetEventOnCompletion = 9

	// ID3D12DescriptorHeap
	heapGetCPUDescriptorHandleForHeapStart = 9

	// ID3D12GraphicsCommandList
	listClose                 = 9
	listReset                 = 10
	listResourceBarrier       = 26
	listOMSetRenderTargets    = 46
	listClearRenderTargetView = 48
)

const (
	dxgiCreateFactoryDebug = 0x01
	dxgiMWANoAltEnter      = 0x2
)

// commandQueueDesc matches D3D12_COMMAND_QUEUE_DESC.
type commandQueueDesc struct {
	Type     int32
	Priority int32
	Flags    uint32
	NodeMask uint32
}

// descriptorHeapDesc matches D3D12_DESCRIPTOR_HEAP_DESC.
type descriptorHeapDesc struct {
	Type           int32
	NumDescriptors uint32
	Flags          uint32
	NodeMask       uint32
}

// swapChainDesc1 matches DXGI_SWAP_CHAIN_DESC1.
type swapChainDesc1 struct {
	Width         uint32
	Height        uint32
	Format        uint32
	Stereo        int32 // BOOL
	SampleCount   uint32
	SampleQuality uint32
	BufferUsage   uint32
	BufferCount   uint32
	Scaling       uint32
	SwapEffect    uint32
	AlphaMode     uint32
	Flags         uint32
}

// resourceBarrier matches a D3D12_RESOURCE_BARRIER holding a transition.
type resourceBarrier struct {
	Type        uint32
	Flags       uint32
	Resource    uintptr
	Subresource uint32
	StateBefore uint32
	StateAfter  uint32
	_           uint32
}

func toSwapChainDesc1(d *gfx.SwapChainDesc1) swapChainDesc1 {
	return swapChainDesc1{
		Width:         d.Width,
		Height:        d.Height,
		Format:        uint32(d.Format),
		SampleCount:   d.SampleDesc.Count,
		SampleQuality: d.SampleDesc.Quality,
		BufferUsage:   uint32(d.BufferUsage),
		BufferCount:   d.BufferCount,
		SwapEffect:    uint32(d.SwapEffect),
	}
}

func toResourceBarrier(b gfx.ResourceBarrier, resource uintptr) resourceBarrier {
	return resourceBarrier{
		Type:        uint32(b.Type),
		Flags:       uint32(b.Flags),
		Resource:    resource,
		Subresource: b.Transition.Subresource,
		StateBefore: uint32(b.Transition.StateBefore),
		StateAfter:  uint32(b.Transition.StateAfter),
	}
}
