package vkrender

import (
	"testing"

	"github.com/YulFi/framework-multi-api/render"
	vk "github.com/vulkan-go/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRGBAPassthrough(t *testing.T) {
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := toRGBA(render.FormatRGBA8, 2, 1, pixels)
	require.NoError(t, err)
	assert.Equal(t, pixels, out)
}

func TestToRGBAExpandsRGB(t *testing.T) {
	pixels := []byte{10, 20, 30, 40, 50, 60}
	out, err := toRGBA(render.FormatRGB8, 2, 1, pixels)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 0xff, 40, 50, 60, 0xff}, out)
}

func TestToRGBARejectsShortData(t *testing.T) {
	_, err := toRGBA(render.FormatRGBA8, 4, 4, make([]byte, 10))
	assert.Error(t, err)
}

// retireRecorder wires a renderer whose deletion queue records enqueued
// kinds instead of touching a device.
func retireRecorder(kinds *[]resourceKind) *Renderer {
	nop := func(slot int) error { return nil }
	r := &Renderer{Log: discardLogger()}
	r.deletion = newDeletionQueue(maxFramesInFlight, func(k resourceKind, handle interface{}) {
		*kinds = append(*kinds, k)
	})
	r.frames = &frameSync{pacer: newFramePacer(maxFramesInFlight, 1, nop, nop)}
	return r
}

func TestRetireStorageRetiresPartialStorage(t *testing.T) {
	var kinds []resourceKind
	r := retireRecorder(&kinds)

	// A texture whose SetData failed after image memory was allocated but
	// before view and sampler existed: only the pieces that exist may be
	// retired, and they must be retired exactly once.
	tex := &Texture{renderer: r, alloc: &Allocation{Size: 64}}
	tex.retireStorage()

	require.Equal(t, 1, r.deletion.len())
	r.deletion.flush()
	assert.Equal(t, []resourceKind{kindAllocation}, kinds)

	assert.Nil(t, tex.alloc)
	assert.False(t, tex.valid)

	// Cleanup already ran, so a later SetData or Destroy retires nothing.
	tex.retireStorage()
	assert.Zero(t, r.deletion.len())
}

func TestFilterAndWrapMapping(t *testing.T) {
	assert.Equal(t, vk.FilterNearest, vkFilter(render.FilterNearest))
	assert.Equal(t, vk.FilterLinear, vkFilter(render.FilterLinear))

	assert.Equal(t, vk.SamplerAddressModeRepeat, vkAddressMode(render.WrapRepeat))
	assert.Equal(t, vk.SamplerAddressModeClampToEdge, vkAddressMode(render.WrapClampToEdge))
	assert.Equal(t, vk.SamplerAddressModeMirroredRepeat, vkAddressMode(render.WrapMirroredRepeat))
}
