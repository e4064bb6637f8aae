// Package d3d12 implements gfx on Direct3D 12 and DXGI.
//
// Objects are raw COM pointers called through their vtables with
// syscall.SyscallN; no cgo is involved. The backend registers itself on
// Windows only, where it is preferred over every other backend.
package d3d12
