// Package gfx describes the explicit graphics API the renderer drives.
//
// The interfaces follow the shape of Direct3D 12 and DXGI: a Factory creates
// devices and swap chains, a Device creates queues, heaps, allocators, lists
// and fences, and a CommandQueue executes closed command lists in submission
// order and signals fences after prior work. Backends (Direct3D 12, OpenGL,
// the WebGPU HAL and a software rasterizer) implement these interfaces and
// register themselves with Register from an init function.
//
// All objects are owned by exactly one caller and released with Release.
// None of the interfaces are safe for concurrent use unless a backend says
// otherwise.
package gfx
