package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"clearcolor/gfx"
)

func TestClientAPIFor(t *testing.T) {
	assert.Equal(t, ClientAPIOpenGL, ClientAPIFor(gfx.SurfaceOpenGL))
	assert.Equal(t, ClientAPINone, ClientAPIFor(gfx.SurfaceNative))
	assert.Equal(t, ClientAPINone, ClientAPIFor(gfx.SurfaceHeadless))
}

func TestDefaultWindowConfig(t *testing.T) {
	c := DefaultWindowConfig()
	assert.Equal(t, 1280, c.Width)
	assert.Equal(t, 720, c.Height)
	assert.Equal(t, ClientAPINone, c.ClientAPI)
}
