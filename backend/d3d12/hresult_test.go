package d3d12

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcolor/gfx"
)

func TestHRESULTClassification(t *testing.T) {
	tests := []struct {
		hr     HRESULT
		failed bool
		want   error
	}{
		{S_OK, false, nil},
		{DXGI_STATUS_OCCLUDED, false, nil},
		{DXGI_ERROR_DEVICE_REMOVED, true, gfx.ErrDeviceRemoved},
		{DXGI_ERROR_DEVICE_RESET, true, gfx.ErrDeviceRemoved},
		{DXGI_ERROR_DEVICE_HUNG, true, gfx.ErrDeviceRemoved},
		{E_NOINTERFACE, true, gfx.ErrNoInterface},
		{DXGI_ERROR_UNSUPPORTED, true, gfx.ErrNotSupported},
		{E_OUTOFMEMORY, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.hr.String(), func(t *testing.T) {
			assert.Equal(t, tt.failed, tt.hr.Failed())

			err := check("op", uintptr(tt.hr))
			if !tt.failed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var herr *HRESULTError
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, tt.hr, herr.Result)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				assert.Nil(t, errors.Unwrap(err))
			}
		})
	}
}

func TestHRESULTString(t *testing.T) {
	assert.Equal(t, "DXGI_ERROR_DEVICE_REMOVED (0x887a0005)", DXGI_ERROR_DEVICE_REMOVED.String())
	assert.Equal(t, "HRESULT(0x80001234)", HRESULT(0x80001234).String())

	err := check("IDXGISwapChain::Present", uintptr(DXGI_ERROR_DEVICE_HUNG))
	assert.EqualError(t, err, "IDXGISwapChain::Present: DXGI_ERROR_DEVICE_HUNG (0x887a0006)")
}

func TestStructLayouts(t *testing.T) {
	assert.Equal(t, uintptr(16), unsafe.Sizeof(guid{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(commandQueueDesc{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(descriptorHeapDesc{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(swapChainDesc1{}))
	if unsafe.Sizeof(uintptr(0)) == 8 {
		assert.Equal(t, uintptr(32), unsafe.Sizeof(resourceBarrier{}))
		assert.Equal(t, uintptr(8), unsafe.Offsetof(resourceBarrier{}.Resource))
	}
}

func TestConversions(t *testing.T) {
	d := toSwapChainDesc1(&gfx.SwapChainDesc1{
		Format:      gfx.FormatR8G8B8A8UNorm,
		SampleDesc:  gfx.SampleDesc{Count: 1},
		BufferUsage: gfx.UsageRenderTargetOutput,
		BufferCount: 2,
		SwapEffect:  gfx.SwapEffectFlipDiscard,
	})
	assert.Equal(t, swapChainDesc1{
		Format:      28,
		SampleCount: 1,
		BufferUsage: 0x20,
		BufferCount: 2,
		SwapEffect:  4,
	}, d)

	b := toResourceBarrier(gfx.Transition(nil, gfx.ResourceStateRenderTarget, gfx.ResourceStatePresent), 0xbeef)
	assert.Equal(t, uintptr(0xbeef), b.Resource)
	assert.Equal(t, uint32(0xffffffff), b.Subresource)
	assert.Equal(t, uint32(0x4), b.StateBefore)
	assert.Equal(t, uint32(0), b.StateAfter)
}
