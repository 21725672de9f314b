package render

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// UploadImage converts img to tightly packed RGBA and uploads it as the
// texture's contents.
func UploadImage(t Texture, img image.Image) error {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return t.SetData(width, height, FormatRGBA8, rgba.Pix)
}

// LoadTextureFile decodes a PNG or JPEG file and uploads it to t.
func LoadTextureFile(t Texture, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return UploadImage(t, img)
}
