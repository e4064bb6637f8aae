package renderer

import (
	"fmt"

	"clearcolor/gfx"
)

// swapChainSet owns the swap chain, the RTV heap and one render target view
// per back buffer.
type swapChainSet struct {
	SwapChain         gfx.SwapChain3
	RTVHeap           gfx.DescriptorHeap
	RTVDescriptorSize uint32
	RenderTargets     [FrameCount]gfx.Resource

	rtvStart gfx.CPUDescriptorHandle
}

func createSwapChainSet(d *deviceContext, window gfx.Window, format gfx.Format) (*swapChainSet, error) {
	s := &swapChainSet{}
	done := false
	defer func() {
		if !done {
			s.Destroy()
		}
	}()

	// Create swap chain against the queue; zero size means client area
	desc := &gfx.SwapChainDesc1{
		Format:      format,
		SampleDesc:  gfx.SampleDesc{Count: 1},
		BufferUsage: gfx.UsageRenderTargetOutput,
		BufferCount: FrameCount,
		SwapEffect:  gfx.SwapEffectFlipDiscard,
	}
	sc, err := d.Factory.CreateSwapChainForWindow(d.Queue, window, desc)
	if err != nil {
		return nil, gfx.InitError("create swap chain", err)
	}
	sc3, ok := sc.(gfx.SwapChain3)
	if !ok {
		sc.Release()
		return nil, gfx.InitError("query swap chain 3", gfx.ErrNoInterface)
	}
	s.SwapChain = sc3

	// Create RTV descriptor heap
	heap, err := d.Device.CreateDescriptorHeap(&gfx.DescriptorHeapDesc{
		Type:           gfx.DescriptorHeapTypeRTV,
		NumDescriptors: FrameCount,
		Flags:          gfx.DescriptorHeapFlagNone,
	})
	if err != nil {
		return nil, gfx.InitError("create rtv heap", err)
	}
	s.RTVHeap = heap
	s.RTVDescriptorSize = d.Device.DescriptorHandleIncrementSize(gfx.DescriptorHeapTypeRTV)
	s.rtvStart = heap.CPUDescriptorHandleForHeapStart()

	// Create a render target view for each back buffer
	for n := uint32(0); n < FrameCount; n++ {
		buf, err := sc3.GetBuffer(n)
		if err != nil {
			return nil, gfx.InitError(fmt.Sprintf("get buffer %d", n), err)
		}
		s.RenderTargets[n] = buf
		d.Device.CreateRenderTargetView(buf, nil, s.RTV(n))
	}

	done = true
	return s, nil
}

// RTV returns the descriptor of back buffer n.
func (s *swapChainSet) RTV(n uint32) gfx.CPUDescriptorHandle {
	return s.rtvStart.Offset(int(n), s.RTVDescriptorSize)
}

func (s *swapChainSet) Destroy() {
	for i := len(s.RenderTargets) - 1; i >= 0; i-- {
		release(s.RenderTargets[i])
	}
	release(s.RTVHeap)
	release(s.SwapChain)
	*s = swapChainSet{}
}
