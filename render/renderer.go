package render

import "github.com/vulkan-go/glfw/v3.3/glfw"

// Renderer is the drawing contract every backend implements. A renderer is
// driven from a single thread; draw calls between Clear and the end of the
// frame are submitted in call order.
type Renderer interface {
	// Initialize connects the renderer to the given window. Any failure here
	// is unrecoverable for this renderer instance.
	Initialize(window *glfw.Window) error
	// Shutdown waits for outstanding GPU work and releases every resource the
	// renderer still owns.
	Shutdown()

	SetClearColor(r, g, b, a float32)
	// Clear marks the start of a logical frame. Backends that clear as part
	// of beginning their frame may treat this as a no-op.
	Clear()
	// SetViewport requests a new drawable size. Backends whose surface size
	// is owned by the window system treat this as a resize hint.
	SetViewport(x, y, width, height int)
	GetRenderDimensions() (width, height int)

	EnableDepthTest(enable bool)
	EnableBlending(enable bool)
	// EnableCulling toggles back-face culling. This may be an expensive
	// operation on backends with immutable pipeline state.
	EnableCulling(enable bool)

	DrawArrays(mode PrimitiveType, first, count int)
	// DrawElements draws count indices of the bound vertex array's index
	// buffer, starting offset bytes into it.
	DrawElements(mode PrimitiveType, count int, indexType IndexType, offset int)

	CreateVertexBuffer() (VertexBuffer, error)
	CreateVertexArray() (VertexArray, error)
	CreateIndexBuffer() (IndexBuffer, error)
	CreateTexture() (Texture, error)
	CreateShaderProgram(name string) (ShaderProgram, error)

	// OnShaderLoaded tells the renderer that the named shader's bytecode is
	// available, letting backends with immutable pipelines compile eagerly.
	OnShaderLoaded(name string)
}
