// Package vkrender is the Vulkan backend for the render abstraction. Frames
// are paced explicitly: up to maxFramesInFlight frames may be recorded ahead
// of the GPU, resources displaced mid-flight are retired through a deferred
// deletion queue, and the swapchain is rebuilt on resize or surface loss.
package vkrender

import (
	"fmt"
	"log"
	"math"
	"unsafe"

	"github.com/YulFi/framework-multi-api/render"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

func init() {
	render.Register("vulkan", func() render.Renderer { return New() })
}

// Renderer implements render.Renderer on the Vulkan API.
type Renderer struct {
	// Log receives warnings for skipped frames, failed pipeline rebuilds
	// and unsupported uniform updates. Defaults to the standard logger.
	Log *log.Logger

	// ShaderDir is where CreateShaderProgram looks for SPIR-V bytecode,
	// two files per program name. Defaults to "shaders".
	ShaderDir string

	window   *glfw.Window
	instance *Instance
	surface  vk.Surface
	device   *Device

	graphicsQueue *Queue
	commandPool   *CommandPool
	allocator     *Allocator
	swapchain     *Swapchain
	transfer      *TransferPool
	shaders       *ShaderRegistry
	frames        *frameSync
	deletion      *deletionQueue

	descriptorLayout *DescriptorSetLayout
	descriptorPool   *DescriptorPool
	pipelineLayout   *PipelineLayout

	clearColor [4]float32

	depthTestEnabled bool
	blendingEnabled  bool
	cullingEnabled   bool

	framebufferResized bool

	frameBegun bool
	imageIndex uint32

	currentProgram    *ShaderProgram
	activeVertexArray *VertexArray
	boundTexture      *Texture
}

func New() *Renderer {
	return &Renderer{
		Log:        log.Default(),
		ShaderDir:  "shaders",
		clearColor: [4]float32{0, 0, 0, 1},
	}
}

func (r *Renderer) Initialize(window *glfw.Window) error {
	r.window = window

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return fmt.Errorf("init Vulkan loader: %w", err)
	}

	instance, err := createInstance("framework-multi-api", window.GetRequiredInstanceExtensions())
	if err != nil {
		return err
	}
	r.instance = instance

	surfPtr, err := window.CreateWindowSurface(instance.VKInstance, nil)
	if err != nil {
		return fmt.Errorf("create window surface: %w", err)
	}
	r.surface = vk.SurfaceFromPointer(surfPtr)

	pd, qf, err := pickPhysicalDevice(instance, r.surface)
	if err != nil {
		return err
	}

	device, err := pd.CreateLogicalDevice(qf, []string{vk.KhrSwapchainExtensionName})
	if err != nil {
		return err
	}
	r.device = device
	r.graphicsQueue = device.GetQueue(qf)

	pool, err := device.CreateCommandPool(qf)
	if err != nil {
		return fmt.Errorf("create command pool: %w", err)
	}
	r.commandPool = pool

	r.allocator = newAllocator(device, r.Log)

	width, height := window.GetFramebufferSize()
	swapchain, err := createSwapchain(device, r.surface, uint32(width), uint32(height))
	if err != nil {
		return err
	}
	r.swapchain = swapchain

	layout, err := newTextureDescriptorLayout(device)
	if err != nil {
		return err
	}
	r.descriptorLayout = layout

	descPool, err := newTextureDescriptorPool(device)
	if err != nil {
		return err
	}
	r.descriptorPool = descPool

	pipeLayout, err := createPipelineLayout(device, layout)
	if err != nil {
		return err
	}
	r.pipelineLayout = pipeLayout

	frames, err := newFrameSync(device, pool, len(swapchain.Images))
	if err != nil {
		return err
	}
	r.frames = frames

	transfer, err := newTransferPool(device, pool, r.graphicsQueue, r.Log)
	if err != nil {
		return err
	}
	r.transfer = transfer

	r.shaders = newShaderRegistry(r.Log,
		func(p *ShaderProgram) (vk.Pipeline, error) {
			return buildGraphicsPipeline(r.device, p.vert, p.frag, r.pipelineLayout,
				r.swapchain.RenderPass, r.swapchain.Extent, r.cullingEnabled)
		},
		func(pipeline vk.Pipeline) {
			vk.DestroyPipeline(r.device.VKDevice, pipeline, nil)
		},
	)

	r.deletion = newDeletionQueue(maxFramesInFlight, r.destroyRetired)

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		r.framebufferResized = true
	})

	r.Log.Printf("vulkan renderer on %s", pd)
	return nil
}

// destroyRetired is the deletion queue's dispatch. Allocations go back to the
// allocator and descriptor sets back to their pool; raw handles go through
// the device.
func (r *Renderer) destroyRetired(kind resourceKind, handle interface{}) {
	switch kind {
	case kindAllocation:
		r.allocator.Free(handle.(*Allocation))
	case kindDescriptorSet:
		if err := r.descriptorPool.Free(handle.(vk.DescriptorSet)); err != nil {
			r.Log.Printf("free retired descriptor set: %v", err)
		}
	default:
		r.device.DestroyHandle(handle)
	}
}

// retire schedules a resource for destruction once every frame that may
// still reference it has completed.
func (r *Renderer) retire(kind resourceKind, handle interface{}) {
	r.deletion.enqueue(kind, handle, r.frames.pacer.frame())
}

func (r *Renderer) retireBuffer(b *deviceBuffer) {
	r.retire(kindBuffer, b.buffer)
	r.retire(kindAllocation, b.alloc)
}

// destroyBufferNow is for buffers known to be idle, like a staging buffer
// whose transfer fence has already been waited on.
func (r *Renderer) destroyBufferNow(b *deviceBuffer) {
	vk.DestroyBuffer(r.device.VKDevice, b.buffer, nil)
	r.allocator.Free(b.alloc)
}

func (r *Renderer) SetClearColor(red, green, blue, alpha float32) {
	r.clearColor = [4]float32{red, green, blue, alpha}
}

// Clear is a no-op: the render pass clears the color attachment on load, so
// the framebuffer is already cleared when each frame begins.
func (r *Renderer) Clear() {}

// SetViewport marks the swapchain for recreation. The viewport itself always
// covers the full framebuffer and is set dynamically each frame.
func (r *Renderer) SetViewport(x, y, width, height int) {
	r.framebufferResized = true
}

func (r *Renderer) GetRenderDimensions() (width, height int) {
	if r.swapchain == nil {
		return 0, 0
	}
	return int(r.swapchain.Extent.Width), int(r.swapchain.Extent.Height)
}

// EnableDepthTest is recorded but has no effect: the swapchain carries no
// depth attachment. TODO: add a depth image to the render pass and honor
// this toggle in pipeline construction.
func (r *Renderer) EnableDepthTest(enable bool) {
	r.depthTestEnabled = enable
}

// EnableBlending is recorded but pipelines are built with blending disabled.
func (r *Renderer) EnableBlending(enable bool) {
	r.blendingEnabled = enable
}

// EnableCulling rebuilds every pipeline with the new cull mode. The device
// goes idle first since live frames may reference the old pipelines.
func (r *Renderer) EnableCulling(enable bool) {
	if r.cullingEnabled == enable {
		return
	}
	r.cullingEnabled = enable
	if r.device == nil {
		return
	}

	r.device.WaitIdle()
	r.shaders.destroyPipelines()
	r.shaders.rebuildAll()
	r.Log.Printf("backface culling %v, rebuilt %d of %d pipelines",
		enable, r.shaders.builtCount(), r.shaders.count())
}

func (r *Renderer) CreateShaderProgram(name string) (render.ShaderProgram, error) {
	vertPath, fragPath := shaderBytecodePaths(r.ShaderDir, name)

	vert, err := r.device.LoadShaderModuleFromFile(vertPath)
	if err != nil {
		return nil, fmt.Errorf("load vertex stage for %q: %w", name, err)
	}
	frag, err := r.device.LoadShaderModuleFromFile(fragPath)
	if err != nil {
		vk.DestroyShaderModule(r.device.VKDevice, vert, nil)
		return nil, fmt.Errorf("load fragment stage for %q: %w", name, err)
	}

	p := &ShaderProgram{
		name:     name,
		renderer: r,
		log:      r.Log,
		vert:     vert,
		frag:     frag,
	}
	r.shaders.add(p)

	if err := r.shaders.build(name); err != nil {
		r.Log.Printf("%v", err)
	}
	return p, nil
}

// OnShaderLoaded reloads the named program's bytecode from disk and rebuilds
// its pipeline, the hot-reload path. Unknown names are ignored with a
// warning.
func (r *Renderer) OnShaderLoaded(name string) {
	p := r.shaders.get(name)
	if p == nil {
		r.Log.Printf("shader %q reloaded but never created, ignoring", name)
		return
	}

	vertPath, fragPath := shaderBytecodePaths(r.ShaderDir, name)
	vert, err := r.device.LoadShaderModuleFromFile(vertPath)
	if err != nil {
		r.Log.Printf("reload shader %q: %v", name, err)
		return
	}
	frag, err := r.device.LoadShaderModuleFromFile(fragPath)
	if err != nil {
		vk.DestroyShaderModule(r.device.VKDevice, vert, nil)
		r.Log.Printf("reload shader %q: %v", name, err)
		return
	}

	// The old pipeline and modules may be referenced by in-flight frames.
	r.device.WaitIdle()
	vk.DestroyShaderModule(r.device.VKDevice, p.vert, nil)
	vk.DestroyShaderModule(r.device.VKDevice, p.frag, nil)
	p.vert = vert
	p.frag = frag

	if err := r.shaders.build(name); err != nil {
		r.Log.Printf("%v", err)
	}
}

func (r *Renderer) bindProgram(p *ShaderProgram) {
	r.currentProgram = p
}

func (r *Renderer) unbindProgram(p *ShaderProgram) {
	if r.currentProgram == p {
		r.currentProgram = nil
	}
}

func (r *Renderer) destroyProgram(p *ShaderProgram) {
	if r.currentProgram == p {
		r.currentProgram = nil
	}

	r.device.WaitIdle()
	if p.built {
		vk.DestroyPipeline(r.device.VKDevice, p.pipeline, nil)
		p.built = false
	}
	vk.DestroyShaderModule(r.device.VKDevice, p.vert, nil)
	vk.DestroyShaderModule(r.device.VKDevice, p.frag, nil)
	r.shaders.remove(p.name)
}

func (r *Renderer) DrawArrays(mode render.PrimitiveType, first, count int) {
	if !r.beginFrame() {
		return
	}

	cb := r.frames.currentCommandBuffer().VK()
	r.bindVertexInput(cb)
	vk.CmdDraw(cb, uint32(count), 1, uint32(first), 0)

	r.endFrame()
}

func (r *Renderer) DrawElements(mode render.PrimitiveType, count int, indexType render.IndexType, offset int) {
	if !r.beginFrame() {
		return
	}

	cb := r.frames.currentCommandBuffer().VK()
	r.bindVertexInput(cb)

	va := r.activeVertexArray
	if va == nil || va.indexBuffer == nil || va.indexBuffer.buf == nil {
		r.Log.Printf("indexed draw with no index buffer bound, skipping")
		r.endFrame()
		return
	}

	bound := va.indexBuffer.bindIndexType(indexType)
	vkIndexType := vk.IndexTypeUint32
	if bound == render.IndexUint16 {
		vkIndexType = vk.IndexTypeUint16
	}
	vk.CmdBindIndexBuffer(cb, va.indexBuffer.buf.buffer, 0, vkIndexType)
	vk.CmdDrawIndexed(cb, uint32(count), 1, uint32(offset/bound.Size()), 0, 0)

	r.endFrame()
}

func (r *Renderer) bindVertexInput(cb vk.CommandBuffer) {
	va := r.activeVertexArray
	if va == nil || va.vertexBuffer == nil || va.vertexBuffer.buf == nil {
		return
	}
	vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{va.vertexBuffer.buf.buffer}, []vk.DeviceSize{0})
}

// beginFrame paces, acquires a swapchain image and opens the render pass.
// It reports false when the frame should be skipped: no usable pipeline, a
// swapchain recreation, or a device error.
func (r *Renderer) beginFrame() bool {
	if r.frameBegun {
		return true
	}

	p := r.currentProgram
	if p == nil || !p.built {
		r.Log.Printf("draw with no usable shader pipeline, skipping frame")
		return false
	}

	if err := r.frames.pacer.waitCurrent(); err != nil {
		r.Log.Printf("wait frame fence: %v", err)
		return false
	}

	var imageIndex uint32
	res := vk.AcquireNextImage(r.device.VKDevice, r.swapchain.VKSwapchain, math.MaxUint64,
		r.frames.acquireSemaphore(), vk.Fence(vk.NullHandle), &imageIndex)
	if res == vk.ErrorOutOfDate {
		r.recreateSwapchain()
		return false
	}
	if res != vk.Success && res != vk.Suboptimal {
		r.Log.Printf("acquire swapchain image: %v", vk.Error(res))
		return false
	}
	r.imageIndex = imageIndex

	if err := r.frames.pacer.claimImage(int(imageIndex)); err != nil {
		r.Log.Printf("claim swapchain image %d: %v", imageIndex, err)
		return false
	}

	cmd := r.frames.currentCommandBuffer()
	if err := cmd.Reset(); err != nil {
		r.Log.Printf("reset frame command buffer: %v", err)
		return false
	}
	if err := cmd.Begin(); err != nil {
		r.Log.Printf("begin frame command buffer: %v", err)
		return false
	}
	cb := cmd.VK()

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  r.swapchain.RenderPass,
		Framebuffer: r.swapchain.Framebuffers[imageIndex],
		RenderArea: vk.Rect2D{
			Extent: r.swapchain.Extent,
		},
		ClearValueCount: 1,
		PClearValues: []vk.ClearValue{
			vk.NewClearValue([]float32{r.clearColor[0], r.clearColor[1], r.clearColor[2], r.clearColor[3]}),
		},
	}
	vk.CmdBeginRenderPass(cb, &beginInfo, vk.SubpassContentsInline)

	vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, p.pipeline)

	if t := r.boundTexture; t != nil && t.hasSet {
		vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, r.pipelineLayout.VKPipelineLayout,
			0, 1, []vk.DescriptorSet{t.set}, 0, nil)
	}

	// Negative viewport height flips clip space so +Y points up.
	extent := r.swapchain.Extent
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{{Extent: extent}})

	if p.hasPendingConstants() {
		vk.CmdPushConstants(cb, r.pipelineLayout.VKPipelineLayout,
			vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, pushConstantsSize,
			unsafe.Pointer(&p.constants))
		p.clearPendingConstants()
	}

	r.frameBegun = true
	return true
}

// endFrame closes the render pass, submits and presents, then advances the
// frame counter and collects retired resources whose frames have drained.
func (r *Renderer) endFrame() {
	if !r.frameBegun {
		return
	}
	r.frameBegun = false

	cmd := r.frames.currentCommandBuffer()
	cb := cmd.VK()
	vk.CmdEndRenderPass(cb)
	if err := cmd.End(); err != nil {
		r.Log.Printf("end frame command buffer: %v", err)
		return
	}

	renderDone := []vk.Semaphore{r.frames.renderSemaphore(int(r.imageIndex))}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{r.frames.acquireSemaphore()},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    renderDone,
	}
	res := vk.QueueSubmit(r.graphicsQueue.VKQueue, 1, []vk.SubmitInfo{submitInfo}, r.frames.currentFence())
	if err := vk.Error(res); err != nil {
		// The slot stays unsubmitted, so the pacer will not wait on its
		// reset fence when the slot comes around again.
		r.Log.Printf("submit frame: %v", err)
		return
	}
	r.frames.pacer.markSubmitted()

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    renderDone,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{r.swapchain.VKSwapchain},
		PImageIndices:      []uint32{r.imageIndex},
	}
	res = vk.QueuePresent(r.graphicsQueue.VKQueue, &presentInfo)
	if res == vk.ErrorOutOfDate || res == vk.Suboptimal || r.framebufferResized {
		r.framebufferResized = false
		r.recreateSwapchain()
	} else if res != vk.Success {
		r.Log.Printf("present frame: %v", vk.Error(res))
	}

	r.frames.pacer.advance()
	r.deletion.collect(r.frames.pacer.frame())
}

// recreateSwapchain rebuilds the swapchain and everything derived from it.
// While the window is minimized the framebuffer has zero area and this
// blocks until it becomes drawable again.
func (r *Renderer) recreateSwapchain() {
	width, height := r.window.GetFramebufferSize()
	for width == 0 || height == 0 {
		glfw.WaitEvents()
		width, height = r.window.GetFramebufferSize()
	}

	r.device.WaitIdle()

	r.shaders.destroyPipelines()
	r.swapchain.Destroy()

	swapchain, err := createSwapchain(r.device, r.surface, uint32(width), uint32(height))
	if err != nil {
		r.Log.Printf("recreate swapchain: %v", err)
		r.swapchain = nil
		return
	}
	r.swapchain = swapchain

	if err := r.frames.adoptImageCount(len(swapchain.Images)); err != nil {
		r.Log.Printf("recreate frame sync: %v", err)
	}

	r.shaders.rebuildAll()
}

func (r *Renderer) Shutdown() {
	if r.device == nil {
		return
	}
	r.device.WaitIdle()

	r.deletion.flush()

	r.shaders.destroyPipelines()
	for _, p := range r.shaders.programs {
		vk.DestroyShaderModule(r.device.VKDevice, p.vert, nil)
		vk.DestroyShaderModule(r.device.VKDevice, p.frag, nil)
	}

	r.transfer.Destroy()
	r.frames.Destroy()
	if r.swapchain != nil {
		r.swapchain.Destroy()
	}
	r.pipelineLayout.Destroy()
	r.descriptorPool.Destroy()
	r.descriptorLayout.Destroy()
	r.allocator.Destroy()
	r.commandPool.Destroy()
	r.device.Destroy()
	r.device = nil

	vk.DestroySurface(r.instance.VKInstance, r.surface, nil)
	r.instance.Destroy()
}
