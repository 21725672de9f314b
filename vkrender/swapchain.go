package vkrender

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// surfaceCaps is a plain-value snapshot of the surface capabilities, taken
// once per query so the extent and image-count choosers work on ordinary Go
// values.
type surfaceCaps struct {
	currentExtent    vk.Extent2D
	minImageExtent   vk.Extent2D
	maxImageExtent   vk.Extent2D
	minImageCount    uint32
	maxImageCount    uint32
	currentTransform vk.SurfaceTransformFlagBits
}

func querySurfaceCaps(pd *PhysicalDevice, surface vk.Surface) (surfaceCaps, error) {
	caps, err := pd.GetSurfaceCapabilities(surface)
	if err != nil {
		return surfaceCaps{}, fmt.Errorf("query surface capabilities: %w", err)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	return surfaceCaps{
		currentExtent:    caps.CurrentExtent,
		minImageExtent:   caps.MinImageExtent,
		maxImageExtent:   caps.MaxImageExtent,
		minImageCount:    caps.MinImageCount,
		maxImageCount:    caps.MaxImageCount,
		currentTransform: caps.CurrentTransform,
	}, nil
}

// chooseSurfaceFormat prefers 32-bit BGRA with the sRGB nonlinear color
// space, falling back to whatever the surface offers first.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode prefers mailbox (low-latency triple buffering) and falls
// back to FIFO, the only mode the standard guarantees.
func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent returns the surface's fixed extent when it has one, otherwise
// the framebuffer size clamped to the allowed range.
func chooseExtent(caps surfaceCaps, width, height uint32) vk.Extent2D {
	if caps.currentExtent.Width != vk.MaxUint32 {
		return caps.currentExtent
	}
	return vk.Extent2D{
		Width:  clampUint32(width, caps.minImageExtent.Width, caps.maxImageExtent.Width),
		Height: clampUint32(height, caps.minImageExtent.Height, caps.maxImageExtent.Height),
	}
}

// chooseImageCount asks for one image over the minimum, bounded by the
// surface maximum when it reports one.
func chooseImageCount(caps surfaceCaps) uint32 {
	count := caps.minImageCount + 1
	if caps.maxImageCount > 0 && count > caps.maxImageCount {
		count = caps.maxImageCount
	}
	return count
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Swapchain owns the presentable image chain and everything keyed to it:
// image views, the render pass and one framebuffer per image. It is rebuilt
// wholesale whenever the surface is resized or reports staleness.
type Swapchain struct {
	Device      *Device
	Surface     vk.Surface
	VKSwapchain vk.Swapchain

	Format vk.Format
	Extent vk.Extent2D

	Images       []vk.Image
	ImageViews   []vk.ImageView
	RenderPass   vk.RenderPass
	Framebuffers []vk.Framebuffer
}

func createSwapchain(device *Device, surface vk.Surface, width, height uint32) (*Swapchain, error) {
	pd := device.PhysicalDevice

	formats, err := pd.GetSurfaceFormats(surface)
	if err != nil {
		return nil, fmt.Errorf("query surface formats: %w", err)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("surface offers no formats")
	}
	format := chooseSurfaceFormat(formats)

	modes, err := pd.GetSurfacePresentModes(surface)
	if err != nil {
		return nil, fmt.Errorf("query present modes: %w", err)
	}
	presentMode := choosePresentMode(modes)

	caps, err := querySurfaceCaps(pd, surface)
	if err != nil {
		return nil, err
	}
	extent := chooseExtent(caps, width, height)
	imageCount := chooseImageCount(caps)

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.currentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	var swapchain vk.Swapchain
	err = vk.Error(vk.CreateSwapchain(device.VKDevice, &createInfo, nil, &swapchain))
	if err != nil {
		return nil, fmt.Errorf("create swapchain: %w", err)
	}

	s := &Swapchain{
		Device:      device,
		Surface:     surface,
		VKSwapchain: swapchain,
		Format:      format.Format,
		Extent:      extent,
	}

	if err := s.fetchImages(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.createImageViews(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.createRenderPass(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.createFramebuffers(); err != nil {
		s.Destroy()
		return nil, err
	}

	return s, nil
}

func (s *Swapchain) fetchImages() error {
	var imageCount uint32
	err := vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, nil))
	if err != nil {
		return fmt.Errorf("count swapchain images: %w", err)
	}

	s.Images = make([]vk.Image, imageCount)
	err = vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, s.Images))
	if err != nil {
		return fmt.Errorf("get swapchain images: %w", err)
	}
	return nil
}

func (s *Swapchain) createImageViews() error {
	s.ImageViews = make([]vk.ImageView, 0, len(s.Images))
	for i, image := range s.Images {
		createInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}

		var view vk.ImageView
		err := vk.Error(vk.CreateImageView(s.Device.VKDevice, &createInfo, nil, &view))
		if err != nil {
			return fmt.Errorf("create image view %d: %w", i, err)
		}
		s.ImageViews = append(s.ImageViews, view)
	}
	return nil
}

func (s *Swapchain) createRenderPass() error {
	colorAttachment := vk.AttachmentDescription{
		Format:         s.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}

	colorAttachmentRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorAttachmentRef},
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(s.Device.VKDevice, &renderPassInfo, nil, &renderPass))
	if err != nil {
		return fmt.Errorf("create render pass: %w", err)
	}
	s.RenderPass = renderPass
	return nil
}

func (s *Swapchain) createFramebuffers() error {
	s.Framebuffers = make([]vk.Framebuffer, 0, len(s.ImageViews))
	for i, view := range s.ImageViews {
		framebufferInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      s.RenderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           s.Extent.Width,
			Height:          s.Extent.Height,
			Layers:          1,
		}

		var framebuffer vk.Framebuffer
		err := vk.Error(vk.CreateFramebuffer(s.Device.VKDevice, &framebufferInfo, nil, &framebuffer))
		if err != nil {
			return fmt.Errorf("create framebuffer %d: %w", i, err)
		}
		s.Framebuffers = append(s.Framebuffers, framebuffer)
	}
	return nil
}

// Destroy tears down everything keyed to the image chain. The device must be
// idle.
func (s *Swapchain) Destroy() {
	for _, framebuffer := range s.Framebuffers {
		vk.DestroyFramebuffer(s.Device.VKDevice, framebuffer, nil)
	}
	s.Framebuffers = nil
	if s.RenderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(s.Device.VKDevice, s.RenderPass, nil)
		s.RenderPass = vk.NullRenderPass
	}
	for _, view := range s.ImageViews {
		vk.DestroyImageView(s.Device.VKDevice, view, nil)
	}
	s.ImageViews = nil
	if s.VKSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
		s.VKSwapchain = vk.NullSwapchain
	}
}
