package render

// PrimitiveType selects how vertices are assembled into primitives.
type PrimitiveType int

const (
	Triangles PrimitiveType = iota
	TriangleStrip
	TriangleFan
	Lines
	LineStrip
	Points
)

func (p PrimitiveType) String() string {
	switch p {
	case Triangles:
		return "triangles"
	case TriangleStrip:
		return "triangle-strip"
	case TriangleFan:
		return "triangle-fan"
	case Lines:
		return "lines"
	case LineStrip:
		return "line-strip"
	case Points:
		return "points"
	}
	return "unknown"
}

// IndexType is the element width of an index buffer.
type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// Size returns the width in bytes of one index.
func (t IndexType) Size() int {
	if t == IndexUint16 {
		return 2
	}
	return 4
}

// BufferUsage hints how often buffer contents will be rewritten.
type BufferUsage int

const (
	StaticDraw BufferUsage = iota
	DynamicDraw
	StreamDraw
)

// TextureFormat is the pixel layout of texture data handed to SetData.
type TextureFormat int

const (
	FormatRGBA8 TextureFormat = iota
	FormatRGB8
)

// BytesPerPixel returns the size of one pixel in the given format.
func (f TextureFormat) BytesPerPixel() int {
	if f == FormatRGB8 {
		return 3
	}
	return 4
}

// TextureFilter selects the sampling filter for minification/magnification.
type TextureFilter int

const (
	FilterNearest TextureFilter = iota
	FilterLinear
)

// TextureWrap selects the addressing mode outside [0,1] texture coordinates.
type TextureWrap int

const (
	WrapRepeat TextureWrap = iota
	WrapClampToEdge
	WrapMirroredRepeat
)
