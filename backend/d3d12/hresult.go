package d3d12

import (
	"fmt"

	"clearcolor/gfx"
)

// HRESULT is a COM status code.
type HRESULT uint32

const (
	S_OK                                HRESULT = 0
	DXGI_STATUS_OCCLUDED                HRESULT = 0x087a0001
	E_NOTIMPL                           HRESULT = 0x80004001
	E_NOINTERFACE                       HRESULT = 0x80004002
	E_FAIL                              HRESULT = 0x80004005
	E_OUTOFMEMORY                       HRESULT = 0x8007000e
	E_INVALIDARG                        HRESULT = 0x80070057
	DXGI_ERROR_INVALID_CALL             HRESULT = 0x887a0001
	DXGI_ERROR_NOT_FOUND                HRESULT = 0x887a0002
	DXGI_ERROR_UNSUPPORTED              HRESULT = 0x887a0004
	DXGI_ERROR_DEVICE_REMOVED           HRESULT = 0x887a0005
	DXGI_ERROR_DEVICE_HUNG              HRESULT = 0x887a0006
	DXGI_ERROR_DEVICE_RESET             HRESULT = 0x887a0007
	DXGI_ERROR_DRIVER_INTERNAL          HRESULT = 0x887a0020
	D3D12_ERROR_ADAPTER_NOT_FOUND       HRESULT = 0x887e0001
	D3D12_ERROR_DRIVER_VERSION_MISMATCH HRESULT = 0x887e0002
)

var hresultNames = map[HRESULT]string{
	S_OK:                                "S_OK",
	DXGI_STATUS_OCCLUDED:                "DXGI_STATUS_OCCLUDED",
	E_NOTIMPL:                           "E_NOTIMPL",
	E_NOINTERFACE:                       "E_NOINTERFACE",
	E_FAIL:                              "E_FAIL",
	E_OUTOFMEMORY:                       "E_OUTOFMEMORY",
	E_INVALIDARG:                        "E_INVALIDARG",
	DXGI_ERROR_INVALID_CALL:             "DXGI_ERROR_INVALID_CALL",
	DXGI_ERROR_NOT_FOUND:                "DXGI_ERROR_NOT_FOUND",
	DXGI_ERROR_UNSUPPORTED:              "DXGI_ERROR_UNSUPPORTED",
	DXGI_ERROR_DEVICE_REMOVED:           "DXGI_ERROR_DEVICE_REMOVED",
	DXGI_ERROR_DEVICE_HUNG:              "DXGI_ERROR_DEVICE_HUNG",
	DXGI_ERROR_DEVICE_RESET:             "DXGI_ERROR_DEVICE_RESET",
	DXGI_ERROR_DRIVER_INTERNAL:          "DXGI_ERROR_DRIVER_INTERNAL_ERROR",
	D3D12_ERROR_ADAPTER_NOT_FOUND:       "D3D12_ERROR_ADAPTER_NOT_FOUND",
	D3D12_ERROR_DRIVER_VERSION_MISMATCH: "D3D12_ERROR_DRIVER_VERSION_MISMATCH",
}

// Failed reports whether hr is an error code. Success codes such as
// DXGI_STATUS_OCCLUDED are not failures.
func (hr HRESULT) Failed() bool { return int32(hr) < 0 }

func (hr HRESULT) String() string {
	if name, ok := hresultNames[hr]; ok {
		return fmt.Sprintf("%s (0x%08x)", name, uint32(hr))
	}
	return fmt.Sprintf("HRESULT(0x%08x)", uint32(hr))
}

// DeviceLost reports whether hr means the device has to be recreated.
func (hr HRESULT) DeviceLost() bool {
	switch hr {
	case DXGI_ERROR_DEVICE_REMOVED, DXGI_ERROR_DEVICE_HUNG, DXGI_ERROR_DEVICE_RESET, DXGI_ERROR_DRIVER_INTERNAL:
		return true
	}
	return false
}

// HRESULTError is a failed COM call.
type HRESULTError struct {
	Op     string
	Result HRESULT
}

func (e *HRESULTError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Result)
}

// Unwrap maps the result onto the gfx sentinel errors.
func (e *HRESULTError) Unwrap() error {
	switch {
	case e.Result.DeviceLost():
		return gfx.ErrDeviceRemoved
	case e.Result == E_NOINTERFACE:
		return gfx.ErrNoInterface
	case e.Result == E_NOTIMPL, e.Result == DXGI_ERROR_UNSUPPORTED:
		return gfx.ErrNotSupported
	}
	return nil
}

func check(op string, r uintptr) error {
	hr := HRESULT(uint32(r))
	if !hr.Failed() {
		return nil
	}
	return &HRESULTError{Op: op, Result: hr}
}
