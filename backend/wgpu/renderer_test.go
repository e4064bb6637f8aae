package wgpu_test

import (
	"testing"

	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcolor/backend/wgpu"
	"clearcolor/renderer"
)

type headless struct{}

func (headless) NativeHandle() uintptr           { return 0 }
func (headless) ClientSize() (width, height int) { return 32, 24 }

func TestRendererOnNoopDevice(t *testing.T) {
	b := wgpu.New()
	b.API = noop.API{}
	r := renderer.New(b)
	require.NoError(t, r.Init(headless{}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, uint32(i%2), r.FrameIndex())
		require.NoError(t, r.Render())
	}
	assert.Equal(t, uint64(3), r.Frames())
	assert.Equal(t, uint64(5), r.FenceValue())

	img, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())

	require.NoError(t, r.Destroy())
	assert.Zero(t, r.FenceValue())
}
