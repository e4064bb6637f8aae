//go:build !windows

package core

// NativeHandle returns 0: only Windows backends consume a native handle.
func (w *Window) NativeHandle() uintptr {
	return 0
}
