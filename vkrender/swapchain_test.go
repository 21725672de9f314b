package vkrender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestChooseSurfaceFormatPrefersBGRA(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}
	got := chooseSurfaceFormat(formats)
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, got.Format)
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatR5g6b5UnormPack16, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}
	got := chooseSurfaceFormat(formats)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, got.Format)
}

func TestChoosePresentModePrefersMailbox(t *testing.T) {
	modes := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox, vk.PresentModeImmediate}
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(modes))
}

func TestChoosePresentModeFallsBackToFifo(t *testing.T) {
	modes := []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifoRelaxed}
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(modes))
}

func TestChooseExtentUsesFixedSurfaceExtent(t *testing.T) {
	caps := surfaceCaps{
		currentExtent: vk.Extent2D{Width: 800, Height: 600},
	}
	got := chooseExtent(caps, 1024, 768)
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, got)
}

func TestChooseExtentClampsFramebufferSize(t *testing.T) {
	caps := surfaceCaps{
		currentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		minImageExtent: vk.Extent2D{Width: 320, Height: 240},
		maxImageExtent: vk.Extent2D{Width: 2048, Height: 1536},
	}

	got := chooseExtent(caps, 4096, 100)
	assert.Equal(t, uint32(2048), got.Width)
	assert.Equal(t, uint32(240), got.Height)

	got = chooseExtent(caps, 640, 480)
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, got)
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(surfaceCaps{minImageCount: 2}))
	assert.Equal(t, uint32(3), chooseImageCount(surfaceCaps{minImageCount: 2, maxImageCount: 3}))
	assert.Equal(t, uint32(2), chooseImageCount(surfaceCaps{minImageCount: 2, maxImageCount: 2}))
}
