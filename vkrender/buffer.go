package vkrender

import (
	"fmt"
	"unsafe"

	"github.com/YulFi/framework-multi-api/render"
	vk "github.com/vulkan-go/vulkan"
)

// deviceBuffer is a vk.Buffer bound to host-visible memory from the pooled
// allocator. Vertex and index data in this backend live in host-visible
// memory and are written with a transient map, no staging pass.
type deviceBuffer struct {
	device *Device
	buffer vk.Buffer
	alloc  *Allocation
	size   uint64
}

func (r *Renderer) createDeviceBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*deviceBuffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	err := vk.Error(vk.CreateBuffer(r.device.VKDevice, &createInfo, nil, &buffer))
	if err != nil {
		return nil, fmt.Errorf("create buffer of %d bytes: %w", size, err)
	}

	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(r.device.VKDevice, buffer, &memReq)
	memReq.Deref()

	typeIndex, err := r.device.PhysicalDevice.FindMemoryType(memReq.MemoryTypeBits, props)
	if err != nil {
		vk.DestroyBuffer(r.device.VKDevice, buffer, nil)
		return nil, err
	}

	alloc, err := r.allocator.Alloc(uint64(memReq.Size), uint64(memReq.Alignment), typeIndex)
	if err != nil {
		vk.DestroyBuffer(r.device.VKDevice, buffer, nil)
		return nil, err
	}

	err = vk.Error(vk.BindBufferMemory(r.device.VKDevice, buffer, alloc.Memory, vk.DeviceSize(alloc.Offset)))
	if err != nil {
		vk.DestroyBuffer(r.device.VKDevice, buffer, nil)
		r.allocator.Free(alloc)
		return nil, fmt.Errorf("bind buffer memory: %w", err)
	}

	return &deviceBuffer{device: r.device, buffer: buffer, alloc: alloc, size: size}, nil
}

// write copies data into the buffer through a transient mapping.
func (b *deviceBuffer) write(data []byte) error {
	var ptr unsafe.Pointer
	err := vk.Error(vk.MapMemory(b.device.VKDevice, b.alloc.Memory, vk.DeviceSize(b.alloc.Offset),
		vk.DeviceSize(len(data)), 0, &ptr))
	if err != nil {
		return fmt.Errorf("map buffer memory: %w", err)
	}

	const m = 0x7fffffff
	dst := (*[m]byte)(ptr)[:len(data)]
	copy(dst, data)

	vk.UnmapMemory(b.device.VKDevice, b.alloc.Memory)
	return nil
}

func floatBytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	const m = 0x7fffffff
	return (*[m]byte)(unsafe.Pointer(&data[0]))[: len(data)*4 : len(data)*4]
}

func uint32Bytes(data []uint32) []byte {
	if len(data) == 0 {
		return nil
	}
	const m = 0x7fffffff
	return (*[m]byte)(unsafe.Pointer(&data[0]))[: len(data)*4 : len(data)*4]
}

// VertexBuffer implements render.VertexBuffer on a host-visible device
// buffer. Replacing the data with a different size recreates the buffer and
// retires the old one through the deferred deletion queue.
type VertexBuffer struct {
	renderer *Renderer
	buf      *deviceBuffer
}

func (r *Renderer) CreateVertexBuffer() (render.VertexBuffer, error) {
	return &VertexBuffer{renderer: r}, nil
}

func (b *VertexBuffer) SetData(data []float32, usage render.BufferUsage) error {
	raw := floatBytes(data)
	size := uint64(len(raw))

	if b.buf != nil && b.buf.size != size {
		b.renderer.retireBuffer(b.buf)
		b.buf = nil
	}
	if b.buf == nil {
		buf, err := b.renderer.createDeviceBuffer(size,
			vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
		if err != nil {
			return err
		}
		b.buf = buf
	}
	if err := b.buf.write(raw); err != nil {
		return err
	}

	// Data arriving while a vertex array is bound attaches this buffer to
	// it, mirroring how the state-machine backend records bindings.
	if va := b.renderer.activeVertexArray; va != nil {
		va.AddVertexBuffer(b)
	}
	return nil
}

func (b *VertexBuffer) Bind() {
	if va := b.renderer.activeVertexArray; va != nil {
		va.AddVertexBuffer(b)
	}
}

func (b *VertexBuffer) Unbind() {}

func (b *VertexBuffer) Destroy() {
	if b.buf != nil {
		b.renderer.retireBuffer(b.buf)
		b.buf = nil
	}
}

// IndexBuffer implements render.IndexBuffer. The element type is recorded at
// upload time and draws always bind with the recorded type; a conflicting
// draw argument would misread the buffer.
type IndexBuffer struct {
	renderer  *Renderer
	buf       *deviceBuffer
	count     int
	indexType render.IndexType
}

func (r *Renderer) CreateIndexBuffer() (render.IndexBuffer, error) {
	return &IndexBuffer{renderer: r, indexType: render.IndexUint32}, nil
}

func (b *IndexBuffer) SetData(indices []uint32, usage render.BufferUsage) error {
	raw := uint32Bytes(indices)
	size := uint64(len(raw))

	if b.buf != nil && b.buf.size != size {
		b.renderer.retireBuffer(b.buf)
		b.buf = nil
	}
	if b.buf == nil {
		buf, err := b.renderer.createDeviceBuffer(size,
			vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
		if err != nil {
			return err
		}
		b.buf = buf
	}
	if err := b.buf.write(raw); err != nil {
		return err
	}
	b.count = len(indices)
	b.indexType = render.IndexUint32

	if va := b.renderer.activeVertexArray; va != nil {
		va.SetIndexBuffer(b)
	}
	return nil
}

func (b *IndexBuffer) Count() int {
	return b.count
}

// bindIndexType resolves the element type a draw must bind with: always the
// type the buffer was uploaded with. A conflicting request is ignored with a
// warning rather than misreading the buffer.
func (b *IndexBuffer) bindIndexType(requested render.IndexType) render.IndexType {
	if requested != b.indexType {
		b.renderer.Log.Printf("index buffer holds %d-byte indices, ignoring request to draw %d-byte indices",
			b.indexType.Size(), requested.Size())
	}
	return b.indexType
}

func (b *IndexBuffer) Bind() {
	if va := b.renderer.activeVertexArray; va != nil {
		va.SetIndexBuffer(b)
	}
}

func (b *IndexBuffer) Unbind() {}

func (b *IndexBuffer) Destroy() {
	if b.buf != nil {
		b.renderer.retireBuffer(b.buf)
		b.buf = nil
	}
}

// VertexArray records which vertex and index buffers draws read from. It
// owns no GPU objects; the real binding happens at command recording time.
type VertexArray struct {
	renderer     *Renderer
	vertexBuffer *VertexBuffer
	indexBuffer  *IndexBuffer
}

func (r *Renderer) CreateVertexArray() (render.VertexArray, error) {
	return &VertexArray{renderer: r}, nil
}

func (va *VertexArray) Bind() {
	va.renderer.activeVertexArray = va
}

func (va *VertexArray) Unbind() {
	if va.renderer.activeVertexArray == va {
		va.renderer.activeVertexArray = nil
	}
}

func (va *VertexArray) AddVertexBuffer(vb render.VertexBuffer) {
	if b, ok := vb.(*VertexBuffer); ok {
		va.vertexBuffer = b
	}
}

func (va *VertexArray) SetIndexBuffer(ib render.IndexBuffer) {
	if b, ok := ib.(*IndexBuffer); ok {
		va.indexBuffer = b
	}
}

func (va *VertexArray) Destroy() {
	va.Unbind()
	va.vertexBuffer = nil
	va.indexBuffer = nil
}
