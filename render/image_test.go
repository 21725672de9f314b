package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTexture struct {
	width  int
	height int
	format TextureFormat
	pixels []byte
}

func (r *recordingTexture) SetData(width, height int, format TextureFormat, pixels []byte) error {
	r.width = width
	r.height = height
	r.format = format
	r.pixels = append([]byte(nil), pixels...)
	return nil
}

func (r *recordingTexture) UpdateData(x, y, width, height int, pixels []byte) error { return nil }
func (r *recordingTexture) SetFilter(min, mag TextureFilter)                        {}
func (r *recordingTexture) SetWrap(s, t TextureWrap)                                {}
func (r *recordingTexture) Bind(unit int)                                           {}
func (r *recordingTexture) Unbind()                                                 {}
func (r *recordingTexture) Width() int                                              { return r.width }
func (r *recordingTexture) Height() int                                             { return r.height }
func (r *recordingTexture) Destroy()                                                {}

func TestUploadImageRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 1, color.RGBA{B: 255, A: 255})

	tex := &recordingTexture{}
	require.NoError(t, UploadImage(tex, img))

	assert.Equal(t, 2, tex.width)
	assert.Equal(t, 2, tex.height)
	assert.Equal(t, FormatRGBA8, tex.format)
	assert.Equal(t, img.Pix, tex.pixels)
}

func TestUploadImageConvertsNonRGBA(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.SetGray(1, 0, color.Gray{Y: 128})

	tex := &recordingTexture{}
	require.NoError(t, UploadImage(tex, img))

	assert.Equal(t, 3, tex.width)
	assert.Equal(t, 1, tex.height)
	assert.Len(t, tex.pixels, 3*4)
	assert.Equal(t, byte(128), tex.pixels[4])
	assert.Equal(t, byte(0xff), tex.pixels[7])
}

func TestLoadTextureFileMissing(t *testing.T) {
	tex := &recordingTexture{}
	assert.Error(t, LoadTextureFile(tex, "does-not-exist.png"))
}
