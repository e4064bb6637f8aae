//go:build windows

package core

import "unsafe"

// NativeHandle returns the window's HWND.
func (w *Window) NativeHandle() uintptr {
	return uintptr(unsafe.Pointer(w.Handle.GetWin32Window()))
}
