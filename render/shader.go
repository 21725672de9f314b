package render

import lin "github.com/xlab/linmath"

// ShaderProgram is a named pair of vertex and fragment stages. Programs are
// created by a Renderer from pre-built bytecode on disk; whether binding is a
// cheap state change or selects an immutable pipeline is backend-specific.
type ShaderProgram interface {
	Bind()
	Unbind()
	// SetMat4 updates a named transform matrix. Backends built on push
	// constants accept exactly "model", "view" and "projection".
	SetMat4(name string, m *lin.Mat4x4)
	SetFloat(name string, v float32)
	SetInt(name string, v int32)
	Name() string
	// IsValid reports whether the program can currently be drawn with.
	IsValid() bool
	Destroy()
}
