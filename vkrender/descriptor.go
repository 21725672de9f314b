package vkrender

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// maxBoundTextures sizes the shared descriptor pool; each texture owns one
// combined image-sampler set allocated from it.
const maxBoundTextures = 100

type DescriptorSetLayout struct {
	Device                *Device
	VKDescriptorSetLayout vk.DescriptorSetLayout
}

// newTextureDescriptorLayout builds the single layout every pipeline in this
// backend shares: one combined image sampler at binding 0, fragment stage.
func newTextureDescriptorLayout(device *Device) (*DescriptorSetLayout, error) {
	binding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}

	var layout vk.DescriptorSetLayout
	err := vk.Error(vk.CreateDescriptorSetLayout(device.VKDevice, &createInfo, nil, &layout))
	if err != nil {
		return nil, fmt.Errorf("create descriptor set layout: %w", err)
	}

	return &DescriptorSetLayout{Device: device, VKDescriptorSetLayout: layout}, nil
}

func (d *DescriptorSetLayout) Destroy() {
	vk.DestroyDescriptorSetLayout(d.Device.VKDevice, d.VKDescriptorSetLayout, nil)
}

type DescriptorPool struct {
	Device           *Device
	VKDescriptorPool vk.DescriptorPool
}

func newTextureDescriptorPool(device *Device) (*DescriptorPool, error) {
	poolSize := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: maxBoundTextures,
	}

	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxBoundTextures,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
	}

	var pool vk.DescriptorPool
	err := vk.Error(vk.CreateDescriptorPool(device.VKDevice, &createInfo, nil, &pool))
	if err != nil {
		return nil, fmt.Errorf("create descriptor pool: %w", err)
	}

	return &DescriptorPool{Device: device, VKDescriptorPool: pool}, nil
}

func (d *DescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(d.Device.VKDevice, d.VKDescriptorPool, nil)
}

// Allocate returns one descriptor set of the given layout.
func (d *DescriptorPool) Allocate(layout *DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.VKDescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.VKDescriptorSetLayout},
	}

	var set vk.DescriptorSet
	err := vk.Error(vk.AllocateDescriptorSets(d.Device.VKDevice, &allocInfo, &set))
	if err != nil {
		return set, fmt.Errorf("allocate descriptor set: %w", err)
	}
	return set, nil
}

func (d *DescriptorPool) Free(set vk.DescriptorSet) error {
	return vk.Error(vk.FreeDescriptorSets(d.Device.VKDevice, d.VKDescriptorPool, 1, &set))
}

// writeCombinedImageSampler points a descriptor set at a view/sampler pair.
// Textures rewrite their set whenever the sampler is replaced.
func (d *DescriptorPool) writeCombinedImageSampler(set vk.DescriptorSet, view vk.ImageView, sampler vk.Sampler) {
	imageInfo := vk.DescriptorImageInfo{
		Sampler:     sampler,
		ImageView:   view,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
	}

	vk.UpdateDescriptorSets(d.Device.VKDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

type PipelineLayout struct {
	Device           *Device
	VKPipelineLayout vk.PipelineLayout
}

// createPipelineLayout builds the one layout every graphics pipeline uses:
// the shared texture set layout plus the transform push-constant block in the
// vertex stage.
func createPipelineLayout(device *Device, setLayout *DescriptorSetLayout) (*PipelineLayout, error) {
	pushRange := vk.PushConstantRange{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       pushConstantsSize,
	}

	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout.VKDescriptorSetLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushRange},
	}

	var layout vk.PipelineLayout
	err := vk.Error(vk.CreatePipelineLayout(device.VKDevice, &createInfo, nil, &layout))
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	return &PipelineLayout{Device: device, VKPipelineLayout: layout}, nil
}

func (p *PipelineLayout) Destroy() {
	vk.DestroyPipelineLayout(p.Device.VKDevice, p.VKPipelineLayout, nil)
}
