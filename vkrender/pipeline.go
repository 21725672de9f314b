package vkrender

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// The fixed vertex layout every pipeline compiles against: position (3
// floats), color (3 floats), texcoord (2 floats), interleaved.
const vertexStride = 8 * 4

func vertexBindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    vertexStride,
		InputRate: vk.VertexInputRateVertex,
	}
}

func vertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 3 * 4},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 6 * 4},
	}
}

// buildGraphicsPipeline compiles an immutable pipeline for one shader pair
// against the current render pass and extent. Viewport and scissor are
// dynamic so a pipeline survives resizes that keep the render pass format;
// only the cull toggle and swapchain recreation force rebuilds.
func buildGraphicsPipeline(device *Device, vert, frag vk.ShaderModule, layout *PipelineLayout,
	renderPass vk.RenderPass, extent vk.Extent2D, cullBackFaces bool) (vk.Pipeline, error) {

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vert,
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: frag,
			PName:  safeString("main"),
		},
	}

	vertexInputState := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{vertexBindingDescription()},
		VertexAttributeDescriptionCount: 3,
		PVertexAttributeDescriptions:    vertexAttributeDescriptions(),
	}

	inputAssemblyState := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Placeholder values; both viewport and scissor are dynamic state and
	// set per frame.
	viewport := vk.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{Extent: extent}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{scissor},
	}

	cullMode := vk.CullModeFlags(vk.CullModeNone)
	if cullBackFaces {
		cullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	rasterState := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullMode,
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	blendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable:    vk.False,
	}

	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssemblyState,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterState,
		PMultisampleState:   &multisampleState,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              layout.VKPipelineLayout,
		RenderPass:          renderPass,
		Subpass:             0,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := vk.Error(vk.CreateGraphicsPipelines(device.VKDevice, vk.PipelineCache(vk.NullHandle), 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, nil, pipelines))
	if err != nil {
		return vk.Pipeline(vk.NullHandle), fmt.Errorf("create graphics pipeline: %w", err)
	}
	return pipelines[0], nil
}
