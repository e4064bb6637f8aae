package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	_ "clearcolor/backend/d3d12"
	"clearcolor/backend/opengl"
	_ "clearcolor/backend/software"
	_ "clearcolor/backend/wgpu"
	"clearcolor/capture"
	"clearcolor/core"
	"clearcolor/gfx"
	"clearcolor/renderer"
)

var (
	backendName = flag.String("backend", "", "Graphics backend (default: best available)")
	width       = flag.Int("width", 1280, "Client area width")
	height      = flag.Int("height", 720, "Client area height")
	title       = flag.String("title", "clearcolor", "Window title")
	frames      = flag.Uint64("frames", 0, "Exit after this many frames (0: until the window closes)")
	syncFlag    = flag.Uint("sync", 1, "Present sync interval")
	capturePath = flag.String("capture", "", "Write the last presented frame to this file ("+strings.Join(capture.Formats(), ", ")+")")
	verbose     = flag.Bool("v", false, "Debug logging")
	list        = flag.Bool("list", false, "List registered backends and exit")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	renderer.SetLogger(logger)

	if *list {
		for _, name := range gfx.Available() {
			fmt.Println(name)
		}
		return
	}

	if err := run(logger); err != nil {
		logger.Error("clearcolor failed", "error", err)
		os.Exit(1)
	}
}

func selectBackend() (gfx.Backend, error) {
	if *backendName != "" {
		return gfx.Lookup(*backendName)
	}
	return gfx.Default()
}

func run(logger *slog.Logger) (err error) {
	b, err := selectBackend()
	if err != nil {
		return err
	}
	if gl, ok := b.(*opengl.Backend); ok && *capturePath != "" {
		gl.Capture = true
	}
	logger.Info("backend selected", "name", b.Name(), "surface", b.Surface().String())

	var (
		window gfx.Window = offscreen{*width, *height}
		host   *core.Window
	)
	if b.Surface() != gfx.SurfaceHeadless {
		config := core.DefaultWindowConfig()
		config.Width = *width
		config.Height = *height
		config.Title = *title
		config.ClientAPI = core.ClientAPIFor(b.Surface())

		host, err = core.NewWindow(config)
		if err != nil {
			return err
		}
		defer host.Destroy()
		window = host
	}

	// Destroyed before the window so the swap chain never outlives it.
	r := renderer.New(b, renderer.WithSyncInterval(uint32(*syncFlag)))
	defer func() {
		if derr := r.Destroy(); err == nil {
			err = derr
		}
	}()
	if err := r.Init(window); err != nil {
		return err
	}

	if host != nil {
		err = runWindowed(r, host)
	} else {
		err = runHeadless(r)
	}
	if err != nil {
		return err
	}
	return saveCapture(r, logger)
}

// runWindowed pumps window events and renders on every loop turn and on
// every refresh request.
func runWindowed(r *renderer.Renderer, window *core.Window) error {
	var frameErr error
	render := func() {
		if frameErr != nil {
			return
		}
		if frameErr = r.Render(); frameErr != nil {
			return
		}
		if *frames > 0 && r.Frames() >= *frames {
			window.RequestClose()
		}
	}
	window.SetRefreshCallback(render)

	for !window.ShouldClose() {
		window.PollEvents()
		render()
	}
	return frameErr
}

type offscreen struct{ w, h int }

func (offscreen) NativeHandle() uintptr             { return 0 }
func (o offscreen) ClientSize() (width, height int) { return o.w, o.h }

// runHeadless renders until the frame limit or an interrupt.
func runHeadless(r *renderer.Renderer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for *frames == 0 || r.Frames() < *frames {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.Render(); err != nil {
			return err
		}
	}
	return nil
}

func saveCapture(r *renderer.Renderer, logger *slog.Logger) error {
	if *capturePath == "" {
		return nil
	}
	img, err := r.Snapshot()
	if errors.Is(err, gfx.ErrNotSupported) {
		logger.Warn("backend cannot read back frames, nothing captured")
		return nil
	}
	if err != nil {
		return err
	}
	if err := capture.Save(*capturePath, img); err != nil {
		return err
	}
	logger.Info("frame captured", "path", *capturePath)
	return nil
}
