//go:build windows && (amd64 || arm64)

package d3d12

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	d3d12DLL = windows.NewLazySystemDLL("d3d12.dll")
	dxgiDLL  = windows.NewLazySystemDLL("dxgi.dll")

	procD3D12CreateDevice      = d3d12DLL.NewProc("D3D12CreateDevice")
	procD3D12GetDebugInterface = d3d12DLL.NewProc("D3D12GetDebugInterface")
	procCreateDXGIFactory2     = dxgiDLL.NewProc("CreateDXGIFactory2")
)

// comFn returns the function in vtable slot idx of the COM object obj.
func comFn(obj uintptr, idx int) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// comCall calls vtable slot idx of obj with only scalar arguments. Calls
// that pass Go pointers use syscall.SyscallN directly so the conversions
// stay in its argument list.
func comCall(obj uintptr, idx int, args ...uintptr) uintptr {
	r, _, _ := syscall.SyscallN(comFn(obj, idx), append([]uintptr{obj}, args...)...)
	return r
}

func comRelease(obj uintptr) {
	if obj != 0 {
		comCall(obj, vtblRelease)
	}
}

// available reports whether the runtime DLLs can be loaded.
func available() bool {
	return d3d12DLL.Load() == nil && dxgiDLL.Load() == nil &&
		procD3D12CreateDevice.Find() == nil && procCreateDXGIFactory2.Find() == nil
}
