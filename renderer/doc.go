// Package renderer drives a gfx backend through the minimal explicit-API
// frame loop: record a command list that clears the current back buffer,
// submit it to the direct queue, present, and block on a fence until the
// GPU has finished.
//
// A Renderer keeps a single frame in flight. Pipelining would need one
// command allocator and one fence target per in-flight frame; the shared
// command list could stay as is.
//
// Any failure is terminal: the renderer asks the window to close when it
// implements gfx.Closer and every later Render returns ErrTerminated.
package renderer
