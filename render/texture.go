package render

// Texture is a 2D sampled image owned by a backend.
type Texture interface {
	// SetData (re)creates the texture storage and uploads pixels. Pixels are
	// tightly packed rows in the given format, top row first.
	SetData(width, height int, format TextureFormat, pixels []byte) error
	// UpdateData overwrites a sub-rectangle of an existing texture.
	UpdateData(x, y, width, height int, pixels []byte) error
	SetFilter(min, mag TextureFilter)
	SetWrap(s, t TextureWrap)
	Bind(unit int)
	Unbind()
	Width() int
	Height() int
	Destroy()
}
