package vkrender

import (
	"fmt"

	"github.com/YulFi/framework-multi-api/render"
	vk "github.com/vulkan-go/vulkan"
)

// Texture implements render.Texture on a device-local sampled image. Each
// texture owns one descriptor set from the shared pool; replacing its
// sampler or storage rewrites the set and retires the displaced handles
// through the deferred deletion queue, since in-flight frames may still
// reference them.
type Texture struct {
	renderer *Renderer

	width  int
	height int

	image   vk.Image
	view    vk.ImageView
	sampler vk.Sampler
	alloc   *Allocation

	set    vk.DescriptorSet
	hasSet bool

	minFilter render.TextureFilter
	magFilter render.TextureFilter
	wrapS     render.TextureWrap
	wrapT     render.TextureWrap

	valid bool
}

func (r *Renderer) CreateTexture() (render.Texture, error) {
	return &Texture{
		renderer:  r,
		minFilter: render.FilterLinear,
		magFilter: render.FilterLinear,
		wrapS:     render.WrapRepeat,
		wrapT:     render.WrapRepeat,
	}, nil
}

func (t *Texture) Width() int  { return t.width }
func (t *Texture) Height() int { return t.height }

// toRGBA widens pixel data to the R8G8B8A8 layout every texture image uses.
func toRGBA(format render.TextureFormat, width, height int, pixels []byte) ([]byte, error) {
	want := width * height * format.BytesPerPixel()
	if len(pixels) < want {
		return nil, fmt.Errorf("pixel data %d bytes, need %d for %dx%d", len(pixels), want, width, height)
	}
	if format == render.FormatRGBA8 {
		return pixels[:want], nil
	}

	out := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		out[i*4+0] = pixels[i*3+0]
		out[i*4+1] = pixels[i*3+1]
		out[i*4+2] = pixels[i*3+2]
		out[i*4+3] = 0xff
	}
	return out, nil
}

// SetData (re)creates the texture storage and uploads pixels through the
// transfer pool. Previous storage, if any, is retired deferred.
func (t *Texture) SetData(width, height int, format render.TextureFormat, pixels []byte) error {
	rgba, err := toRGBA(format, width, height, pixels)
	if err != nil {
		return err
	}

	r := t.renderer
	if t.valid {
		t.retireStorage()
	}

	image, alloc, err := r.createTextureImage(uint32(width), uint32(height))
	if err != nil {
		return err
	}
	t.image = image
	t.alloc = alloc
	t.width = width
	t.height = height

	if err := t.upload(0, 0, width, height, rgba, true); err != nil {
		t.retireStorage()
		return err
	}

	view, err := r.createTextureView(t.image)
	if err != nil {
		t.retireStorage()
		return err
	}
	t.view = view

	sampler, err := r.createSampler(t.minFilter, t.magFilter, t.wrapS, t.wrapT)
	if err != nil {
		t.retireStorage()
		return err
	}
	t.sampler = sampler

	if !t.hasSet {
		set, err := r.descriptorPool.Allocate(r.descriptorLayout)
		if err != nil {
			return err
		}
		t.set = set
		t.hasSet = true
	}
	r.descriptorPool.writeCombinedImageSampler(t.set, t.view, t.sampler)

	t.valid = true
	return nil
}

// UpdateData overwrites a sub-rectangle of existing storage.
func (t *Texture) UpdateData(x, y, width, height int, pixels []byte) error {
	if !t.valid {
		return fmt.Errorf("texture has no storage, call SetData first")
	}
	if x < 0 || y < 0 || x+width > t.width || y+height > t.height {
		return fmt.Errorf("update region %d,%d %dx%d outside %dx%d texture", x, y, width, height, t.width, t.height)
	}
	rgba, err := toRGBA(render.FormatRGBA8, width, height, pixels)
	if err != nil {
		return err
	}
	return t.upload(x, y, width, height, rgba, false)
}

// upload stages pixels into the image through the transfer pool. fresh
// selects the undefined-layout transition used for newly created storage.
func (t *Texture) upload(x, y, width, height int, rgba []byte, fresh bool) error {
	r := t.renderer

	staging, err := r.createDeviceBuffer(uint64(len(rgba)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}
	if err := staging.write(rgba); err != nil {
		r.destroyBufferNow(staging)
		return err
	}

	oldLayout := vk.ImageLayoutShaderReadOnlyOptimal
	if fresh {
		oldLayout = vk.ImageLayoutUndefined
	}

	err = r.transfer.Run(func(cb *CommandBuffer) {
		cb.transitionImageLayout(t.image, oldLayout, vk.ImageLayoutTransferDstOptimal)
		cb.copyBufferToImage(staging.buffer, t.image, x, y, width, height)
		cb.transitionImageLayout(t.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	})

	// Run waits on the transfer fence, so the staging buffer is already
	// idle and safe to destroy in place.
	r.destroyBufferNow(staging)
	if err != nil {
		return fmt.Errorf("upload %dx%d texture region: %w", width, height, err)
	}
	return nil
}

// SetFilter replaces the sampler; the displaced one is retired deferred and
// the descriptor set rewritten to the final sampler.
func (t *Texture) SetFilter(min, mag render.TextureFilter) {
	if t.minFilter == min && t.magFilter == mag {
		return
	}
	t.minFilter = min
	t.magFilter = mag
	t.replaceSampler()
}

// SetWrap follows the same deferred replacement path as SetFilter.
func (t *Texture) SetWrap(s, w render.TextureWrap) {
	if t.wrapS == s && t.wrapT == w {
		return
	}
	t.wrapS = s
	t.wrapT = w
	t.replaceSampler()
}

func (t *Texture) replaceSampler() {
	if !t.valid {
		return
	}
	r := t.renderer

	sampler, err := r.createSampler(t.minFilter, t.magFilter, t.wrapS, t.wrapT)
	if err != nil {
		r.Log.Printf("recreate sampler: %v", err)
		return
	}

	r.retire(kindSampler, t.sampler)
	t.sampler = sampler
	r.descriptorPool.writeCombinedImageSampler(t.set, t.view, t.sampler)
}

func (t *Texture) Bind(unit int) {
	t.renderer.boundTexture = t
}

func (t *Texture) Unbind() {
	if t.renderer.boundTexture == t {
		t.renderer.boundTexture = nil
	}
}

// retireStorage retires whatever storage pieces exist, so it also cleans up
// after a SetData that failed partway through building them.
func (t *Texture) retireStorage() {
	r := t.renderer
	if t.sampler != vk.NullSampler {
		r.retire(kindSampler, t.sampler)
		t.sampler = vk.NullSampler
	}
	if t.view != vk.NullImageView {
		r.retire(kindImageView, t.view)
		t.view = vk.NullImageView
	}
	if t.image != vk.NullImage {
		r.retire(kindImage, t.image)
		t.image = vk.NullImage
	}
	if t.alloc != nil {
		r.retire(kindAllocation, t.alloc)
		t.alloc = nil
	}
	t.valid = false
}

func (t *Texture) Destroy() {
	t.Unbind()
	t.retireStorage()
	if t.hasSet {
		t.renderer.retire(kindDescriptorSet, t.set)
		t.hasSet = false
	}
}

func (r *Renderer) createTextureImage(width, height uint32) (vk.Image, *Allocation, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vk.FormatR8g8b8a8Unorm,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var image vk.Image
	err := vk.Error(vk.CreateImage(r.device.VKDevice, &imageInfo, nil, &image))
	if err != nil {
		return image, nil, fmt.Errorf("create %dx%d texture image: %w", width, height, err)
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(r.device.VKDevice, image, &memReq)
	memReq.Deref()

	typeIndex, err := r.device.PhysicalDevice.FindMemoryType(memReq.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(r.device.VKDevice, image, nil)
		return image, nil, err
	}

	alloc, err := r.allocator.Alloc(uint64(memReq.Size), uint64(memReq.Alignment), typeIndex)
	if err != nil {
		vk.DestroyImage(r.device.VKDevice, image, nil)
		return image, nil, err
	}

	err = vk.Error(vk.BindImageMemory(r.device.VKDevice, image, alloc.Memory, vk.DeviceSize(alloc.Offset)))
	if err != nil {
		vk.DestroyImage(r.device.VKDevice, image, nil)
		r.allocator.Free(alloc)
		return image, nil, fmt.Errorf("bind texture image memory: %w", err)
	}

	return image, alloc, nil
}

func (r *Renderer) createTextureView(image vk.Image) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8g8b8a8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	err := vk.Error(vk.CreateImageView(r.device.VKDevice, &createInfo, nil, &view))
	if err != nil {
		return view, fmt.Errorf("create texture image view: %w", err)
	}
	return view, nil
}

func vkFilter(f render.TextureFilter) vk.Filter {
	if f == render.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func vkAddressMode(w render.TextureWrap) vk.SamplerAddressMode {
	switch w {
	case render.WrapClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case render.WrapMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	}
	return vk.SamplerAddressModeRepeat
}

func (r *Renderer) createSampler(min, mag render.TextureFilter, wrapS, wrapT render.TextureWrap) (vk.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MinFilter:               vkFilter(min),
		MagFilter:               vkFilter(mag),
		AddressModeU:            vkAddressMode(wrapS),
		AddressModeV:            vkAddressMode(wrapT),
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}

	var sampler vk.Sampler
	err := vk.Error(vk.CreateSampler(r.device.VKDevice, &createInfo, nil, &sampler))
	if err != nil {
		return sampler, fmt.Errorf("create sampler: %w", err)
	}
	return sampler, nil
}

func (c *CommandBuffer) transitionImageLayout(image vk.Image, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var sourceStage, destStage vk.PipelineStageFlags

	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	case oldLayout == vk.ImageLayoutShaderReadOnlyOptimal && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}

	vk.CmdPipelineBarrier(c.VKCommandBuffer, sourceStage, destStage, 0, 0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{barrier})
}

func (c *CommandBuffer) copyBufferToImage(buffer vk.Buffer, image vk.Image, x, y, width, height int) {
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageOffset: vk.Offset3D{X: int32(x), Y: int32(y)},
		ImageExtent: vk.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
	}

	vk.CmdCopyBufferToImage(c.VKCommandBuffer, buffer, image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.BufferImageCopy{region})
}
