package core

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"clearcolor/gfx"
)

func init() {
	runtime.LockOSThread()
}

// ClientAPI selects what the window is created for.
type ClientAPI int

const (
	// ClientAPINone creates a plain window for an explicit API that
	// presents through the native handle.
	ClientAPINone ClientAPI = iota
	// ClientAPIOpenGL creates a window with a current OpenGL 4.1 core
	// context.
	ClientAPIOpenGL
)

// ClientAPIFor returns the client API a backend with the given surface
// kind needs.
func ClientAPIFor(kind gfx.SurfaceKind) ClientAPI {
	if kind == gfx.SurfaceOpenGL {
		return ClientAPIOpenGL
	}
	return ClientAPINone
}

type Window struct {
	Handle *glfw.Window
	Width  int
	Height int
	Title  string
}

var (
	_ gfx.Window        = (*Window)(nil)
	_ gfx.Closer        = (*Window)(nil)
	_ gfx.ContextWindow = (*Window)(nil)
)

type WindowConfig struct {
	Width     int
	Height    int
	Title     string
	ClientAPI ClientAPI
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:  1280,
		Height: 720,
		Title:  "clearcolor",
	}
}

func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	// Swap chains are never resized.
	glfw.WindowHint(glfw.Resizable, glfw.False)
	switch config.ClientAPI {
	case ClientAPIOpenGL:
		glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLAPI)
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 1)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	default:
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	window := &Window{
		Handle: handle,
		Width:  config.Width,
		Height: config.Height,
		Title:  config.Title,
	}

	handle.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		window.Width = width
		window.Height = height
	})
	handle.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	return window, nil
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

// RequestClose asks the event loop to exit after the current turn.
func (w *Window) RequestClose() {
	w.Handle.SetShouldClose(true)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until at least one event arrives.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

// ClientSize returns the framebuffer size in pixels.
func (w *Window) ClientSize() (int, int) {
	return w.Handle.GetFramebufferSize()
}

func (w *Window) MakeContextCurrent() {
	w.Handle.MakeContextCurrent()
}

func (w *Window) SwapBuffers() {
	w.Handle.SwapBuffers()
}

// SetRefreshCallback registers fn to run whenever the client area needs
// repainting, including while the window is being moved.
func (w *Window) SetRefreshCallback(fn func()) {
	w.Handle.SetRefreshCallback(func(*glfw.Window) { fn() })
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}
