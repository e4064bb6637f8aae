package gfx

import (
	"image/color"
	"math"
)

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float32
}

var (
	ColorBlack = Color{0, 0, 0, 1}
	ColorWhite = Color{1, 1, 1, 1}
	ColorTeal  = Color{0, 0.8, 0.8, 1}
)

// Array returns the color in the float[4] layout clear calls expect.
func (c Color) Array() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

// RGBA8 converts c to 8-bit UNORM with round-to-nearest.
func (c Color) RGBA8() color.RGBA {
	return color.RGBA{R: unorm8(c.R), G: unorm8(c.G), B: unorm8(c.B), A: unorm8(c.A)}
}

func unorm8(v float32) uint8 {
	if math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
