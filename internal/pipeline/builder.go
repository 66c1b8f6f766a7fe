package pipeline

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/reflect"
)

// stageEntry pairs a compiled shader module with its stage flag and the
// "main" entry point name every stage uses here.
type stageEntry struct {
	stage  vk.ShaderStageFlagBits
	module vk.ShaderModule
}

var stageFlagByKey = map[string]vk.ShaderStageFlagBits{
	"vert": vk.ShaderStageVertexBit,
	"frag": vk.ShaderStageFragmentBit,
	"geom": vk.ShaderStageGeometryBit,
	"tesc": vk.ShaderStageTessellationControlBit,
	"tese": vk.ShaderStageTessellationEvaluationBit,
	"comp": vk.ShaderStageComputeBit,
	"mesh": vk.ShaderStageFlagBits(0x00000080),
	"task": vk.ShaderStageFlagBits(0x00000040),
}

// Assembler builds pipeline layouts and pipelines for one logical device.
type Assembler struct {
	Device vk.Device
}

// SetLayoutInfo records how a descriptor set was built, needed by callers
// binding it later: whether it was replicated once per virtual frame
// (Buffered) and which bindings expect a dynamic offset.
type SetLayoutInfo struct {
	Layout         vk.DescriptorSetLayout
	Buffered       bool
	DynamicBuffers []int
	// Bindless is [count, maxVariableCount] when the set's JSON declared a
	// bindless array, or nil otherwise.
	Bindless []int
}

// BuildDescriptorSetLayouts creates one vk.DescriptorSetLayout per set in
// merged.DescriptorSetLayoutBindings, applying per-set buffered/dynamic/
// bindless metadata from sets. A set's "buffered" flag means the caller
// must allocate frameDepth copies of it (one per virtual frame slot) and
// bind the slot-indexed set directly; dynamicBuffers lists bindings within
// a (non-buffered, or buffered-but-still-rotating) set that must instead be
// bound with a dynamic offset. This realizes the explicit decision in
// SPEC_FULL.md §10.3 rather than inferring the semantics.
func (a *Assembler) BuildDescriptorSetLayouts(merged *reflect.Module, sets []DescriptorSetJSON) ([]SetLayoutInfo, error) {
	out := make([]SetLayoutInfo, len(merged.DescriptorSetLayoutBindings))
	for setIdx, bindings := range merged.DescriptorSetLayoutBindings {
		var meta DescriptorSetJSON
		if setIdx < len(sets) {
			meta = sets[setIdx]
		}

		vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
		for i, b := range bindings {
			descType := b.DescriptorType
			for _, dyn := range meta.DynamicBuffers {
				if dyn == int(b.Binding) {
					descType = dynamicVariant(descType)
				}
			}
			vkBindings[i] = vk.DescriptorSetLayoutBinding{
				Binding:         b.Binding,
				DescriptorType:  descType,
				DescriptorCount: max1(b.DescriptorCount),
				StageFlags:      vk.ShaderStageFlags(b.StageFlags),
			}
		}

		createInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(vkBindings)),
			PBindings:    vkBindings,
		}

		// meta.Bindless ([count, maxVariableCount]) is recorded on the
		// returned SetLayoutInfo for the descriptor-pool/allocation code to
		// use when sizing a variable-count allocation; wiring the
		// VK_EXT_descriptor_indexing binding-flags struct itself is left
		// for the descriptor-pool layer, matching how the reference
		// reflection code kept its equivalent EXT_descriptor_indexing flags
		// commented out rather than unconditionally enabled.

		var layout vk.DescriptorSetLayout
		if ret := vk.CreateDescriptorSetLayout(a.Device, &createInfo, nil, &layout); ret != vk.Success {
			return nil, fmt.Errorf("pipeline: create descriptor set layout %d: result %d", setIdx, int32(ret))
		}
		out[setIdx] = SetLayoutInfo{Layout: layout, Buffered: meta.Buffered, DynamicBuffers: meta.DynamicBuffers, Bindless: meta.Bindless}
	}
	return out, nil
}

func dynamicVariant(t vk.DescriptorType) vk.DescriptorType {
	switch t {
	case vk.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBufferDynamic
	case vk.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBufferDynamic
	default:
		return t
	}
}

func max1(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

// BuildPipelineLayout creates a VkPipelineLayout from the given set layouts
// and push constant ranges.
func (a *Assembler) BuildPipelineLayout(sets []SetLayoutInfo, pushConstants []reflect.PushConstantRange) (vk.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		layouts[i] = s.Layout
	}
	ranges := make([]vk.PushConstantRange, len(pushConstants))
	for i, pc := range pushConstants {
		ranges[i] = vk.PushConstantRange{StageFlags: vk.ShaderStageFlags(pc.StageFlags), Offset: pc.Offset, Size: pc.Size}
	}

	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(a.Device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &layout)
	if ret != vk.Success {
		return nil, fmt.Errorf("pipeline: create pipeline layout: result %d", int32(ret))
	}
	return layout, nil
}

// GraphicsParams bundles everything BuildGraphics needs beyond the parsed
// descriptor: the compiled stage modules, the final pipeline layout, the
// target render pass/subpass, and the render area (used only when
// viewport/scissor are not marked dynamic).
type GraphicsParams struct {
	Stages     map[string]vk.ShaderModule
	Layout     vk.PipelineLayout
	RenderPass vk.RenderPass
	Subpass    uint32
	RenderArea vk.Rect2D
}

// BuildGraphics assembles a graphics pipeline from desc and p, applying the
// defaulting rules in spec §4.4: viewport/scissor default to dynamic when
// absent from the JSON; topology defaults to patch-list when all
// tessellation stages are present; reverseDepth flips the compare op to
// GREATER_OR_EQUAL.
func (a *Assembler) BuildGraphics(desc *Description, p GraphicsParams) (vk.Pipeline, error) {
	var stageInfos []vk.PipelineShaderStageCreateInfo
	for _, key := range stageKeyOrder {
		module, ok := p.Stages[key]
		if !ok {
			continue
		}
		stageInfos = append(stageInfos, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stageFlagByKey[key],
			Module: module,
			PName:  "main\x00",
		})
	}

	bindings, attributes, err := vertexInputState(desc)
	if err != nil {
		return nil, err
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	topology, err := primitiveTopology(desc.InputAssembly.PrimitiveTopology)
	if err != nil {
		return nil, err
	}
	if desc.ShaderStagesMatchTessellation() && desc.InputAssembly.PrimitiveTopology == "" {
		topology = vk.PrimitiveTopologyPatchList
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: topology,
	}

	var tessellation *vk.PipelineTessellationStateCreateInfo
	if desc.Tessellation.ControlPointCount > 0 {
		tessellation = &vk.PipelineTessellationStateCreateInfo{
			SType:              vk.StructureTypePipelineTessellationStateCreateInfo,
			PatchControlPoints: uint32(desc.Tessellation.ControlPointCount),
		}
	}

	dynamicStates := []vk.DynamicState{}
	viewportState := vk.PipelineViewportStateCreateInfo{SType: vk.StructureTypePipelineViewportStateCreateInfo, ViewportCount: 1, ScissorCount: 1}
	if len(desc.Viewport.Viewports) == 0 {
		dynamicStates = append(dynamicStates, vk.DynamicStateViewport)
	}
	if len(desc.Viewport.Scissors) == 0 {
		dynamicStates = append(dynamicStates, vk.DynamicStateScissor)
	}
	if len(desc.Viewport.Viewports) > 0 {
		vp := vk.Viewport{Width: float32(p.RenderArea.Extent.Width), Height: float32(p.RenderArea.Extent.Height), MinDepth: 0, MaxDepth: 1}
		viewportState.PViewports = []vk.Viewport{vp}
	}
	if len(desc.Viewport.Scissors) > 0 {
		viewportState.PScissors = []vk.Rect2D{p.RenderArea}
	}

	cull, err := cullMode(desc.Rasterization.CullMode)
	if err != nil {
		return nil, err
	}
	poly, err := polygonMode(desc.Rasterization.PolygonMode)
	if err != nil {
		return nil, err
	}
	lineWidth := desc.Rasterization.LineWidth
	if lineWidth == 0 {
		lineWidth = 1
	}
	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: poly,
		CullMode:    vk.CullModeFlags(cull),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   lineWidth,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples:  vk.SampleCount1Bit,
		AlphaToCoverageEnable: vk.Bool32(boolToInt(desc.Multisample.AlphaToCoverage)),
	}

	blendAttachment, err := blendAttachmentState(desc)
	if err != nil {
		return nil, err
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	compareOp := vk.CompareOpLessOrEqual
	if desc.DepthStencil.ReverseDepth {
		compareOp = vk.CompareOpGreaterOrEqual
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.Bool32(boolToInt(desc.DepthStencil.DepthTest)),
		DepthWriteEnable: vk.Bool32(boolToInt(desc.DepthStencil.DepthWriteEnabled)),
		DepthCompareOp:   compareOp,
	}

	var dynamicState *vk.PipelineDynamicStateCreateInfo
	if len(dynamicStates) > 0 {
		dynamicState = &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamicStates)),
			PDynamicStates:    dynamicStates,
		}
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:           uint32(len(stageInfos)),
		PStages:              stageInfos,
		PVertexInputState:    &vertexInput,
		PInputAssemblyState:  &inputAssembly,
		PViewportState:       &viewportState,
		PRasterizationState:  &rasterization,
		PMultisampleState:    &multisample,
		PColorBlendState:     &colorBlend,
		PDepthStencilState:   &depthStencil,
		Layout:               p.Layout,
		RenderPass:           p.RenderPass,
		Subpass:              p.Subpass,
	}
	if tessellation != nil {
		createInfo.PTessellationState = tessellation
	}
	if dynamicState != nil {
		createInfo.PDynamicState = dynamicState
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(a.Device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, nil, pipelines)
	if ret != vk.Success {
		return nil, fmt.Errorf("pipeline: create graphics pipeline: result %d", int32(ret))
	}
	return pipelines[0], nil
}

// BuildCompute assembles a compute pipeline from a single compute module.
func (a *Assembler) BuildCompute(module vk.ShaderModule, layout vk.PipelineLayout) (vk.Pipeline, error) {
	createInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  "main\x00",
		},
		Layout: layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(a.Device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, nil, pipelines)
	if ret != vk.Success {
		return nil, fmt.Errorf("pipeline: create compute pipeline: result %d", int32(ret))
	}
	return pipelines[0], nil
}

func vertexInputState(desc *Description) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription, error) {
	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexInputBindings))
	var attributes []vk.VertexInputAttributeDescription

	for i, binding := range desc.VertexInputBindings {
		rate, err := vertexInputRate(binding.InputRate)
		if err != nil {
			return nil, nil, err
		}
		var stride uint32
		var formats []string
		if i < len(desc.VertexAttributes) {
			formats = desc.VertexAttributes[i]
		} else {
			formats = binding.Formats
		}
		location := uint32(0)
		for _, f := range formats {
			format, err := vertexFormat(f)
			if err != nil {
				return nil, nil, err
			}
			size := formatSize(format)
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Location: location,
				Binding:  uint32(i),
				Format:   format,
				Offset:   stride,
			})
			stride += size
			location++
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: uint32(i), Stride: stride, InputRate: rate}
	}
	return bindings, attributes, nil
}

func formatSize(f vk.Format) uint32 {
	switch f {
	case vk.FormatR32g32Sfloat:
		return 8
	case vk.FormatR32g32b32Sfloat:
		return 12
	case vk.FormatR32g32b32a32Sfloat:
		return 16
	default:
		return 0
	}
}

func blendAttachmentState(desc *Description) (vk.PipelineColorBlendAttachmentState, error) {
	enabled := len(desc.Blend.Enabled) > 0 && desc.Blend.Enabled[0]
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable:    vk.Bool32(boolToInt(enabled)),
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
	}
	if !enabled {
		return state, nil
	}
	if len(desc.Blend.Src) > 0 {
		f, err := blendFactor(desc.Blend.Src[0])
		if err != nil {
			return state, err
		}
		state.SrcColorBlendFactor = f
	}
	if len(desc.Blend.Dst) > 0 {
		f, err := blendFactor(desc.Blend.Dst[0])
		if err != nil {
			return state, err
		}
		state.DstColorBlendFactor = f
	}
	return state, nil
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
