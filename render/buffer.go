package render

// VertexBuffer holds interleaved per-vertex attribute data.
type VertexBuffer interface {
	// SetData uploads the full vertex data set, replacing any previous
	// contents. The float layout must match the fixed attribute layout the
	// backend compiles its pipelines against.
	SetData(data []float32, usage BufferUsage) error
	Bind()
	Unbind()
	Destroy()
}

// IndexBuffer holds element indices for indexed draws.
type IndexBuffer interface {
	SetData(indices []uint32, usage BufferUsage) error
	// Count reports the number of indices uploaded by the last SetData.
	Count() int
	Bind()
	Unbind()
	Destroy()
}

// VertexArray groups a vertex buffer and an optional index buffer into a
// single bindable draw source.
type VertexArray interface {
	Bind()
	Unbind()
	AddVertexBuffer(vb VertexBuffer)
	SetIndexBuffer(ib IndexBuffer)
	Destroy()
}
