// Package pipeline parses the declarative JSON pipeline descriptor and
// assembles a graphics or compute pipeline from it plus merged shader
// reflection. Grounded on original_source's VulkanPipelineIo.cpp (per-key
// readers: parseShaderFiles, readVertexInputBindings, readVertexAttributes,
// readInputAssemblyState, readTessellationState, readViewportState,
// readRasterizationState, and their multisample/blend/depth-stencil
// counterparts) and the teacher's pipeline.go PipelineBuilder, generalized
// from its hardcoded triangle pipeline into a description-driven assembler.
package pipeline

import (
	"encoding/json"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Description is the parsed form of the pipeline JSON descriptor (spec §6).
type Description struct {
	Shaders             map[string]string    `json:"shaders"`
	VertexInputBindings []VertexInputBinding  `json:"vertexInputBindings"`
	VertexAttributes    [][]string            `json:"vertexAttributes"`
	InputAssembly       InputAssemblyJSON     `json:"inputAssembly"`
	Tessellation        TessellationJSON      `json:"tessellation"`
	Viewport            ViewportJSON          `json:"viewport"`
	Rasterization       RasterizationJSON     `json:"rasterization"`
	Multisample         MultisampleJSON       `json:"multisample"`
	Blend               BlendJSON             `json:"blend"`
	DepthStencil        DepthStencilJSON      `json:"depthStencil"`
	DescriptorSets      []DescriptorSetJSON   `json:"descriptorSets"`
	DynamicStates       []string              `json:"dynamicStates"`
}

type VertexInputBinding struct {
	InputRate string   `json:"inputRate"`
	Formats   []string `json:"formats"`
}

type InputAssemblyJSON struct {
	PrimitiveTopology string `json:"primitiveTopology"`
}

type TessellationJSON struct {
	ControlPointCount int `json:"controlPointCount"`
}

type ViewportJSON struct {
	Viewports []string `json:"viewports"`
	Scissors  []string `json:"scissors"`
}

type RasterizationJSON struct {
	CullMode    string  `json:"cullMode"`
	PolygonMode string  `json:"polygonMode"`
	LineWidth   float32 `json:"lineWidth"`
}

type MultisampleJSON struct {
	AlphaToCoverage bool `json:"alphaToCoverage"`
}

type BlendJSON struct {
	Enabled []bool   `json:"enabled"`
	Src     []string `json:"src"`
	Dst     []string `json:"dst"`
}

type DepthStencilJSON struct {
	ReverseDepth      bool `json:"reverseDepth"`
	DepthWriteEnabled bool `json:"depthWriteEnabled"`
	DepthTest         bool `json:"depthTest"`
}

type DescriptorSetJSON struct {
	Buffered       bool  `json:"buffered"`
	DynamicBuffers []int `json:"dynamicBuffers"`
	Bindless       []int `json:"bindless"`
}

// Parse unmarshals a pipeline JSON descriptor. It does not validate enum
// values; that happens when Assembler.BuildGraphics converts them, matching
// the original's split between JSON structure and per-key enum validation.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("pipeline: parse descriptor: %w", err)
	}
	return &d, nil
}

// stageKeyOrder lists the recognized shader stage keys in a stable order,
// matching the dispatch table parseShaderFiles builds.
var stageKeyOrder = []string{"vert", "frag", "geom", "tesc", "tese", "comp", "mesh", "task"}

// ShaderStems returns the stage->stem pairs present in the descriptor, in
// stageKeyOrder, for resolving against a SPIR-V cache directory.
func (d *Description) ShaderStems() []struct{ Stage, Stem string } {
	var out []struct{ Stage, Stem string }
	for _, key := range stageKeyOrder {
		if stem, ok := d.Shaders[key]; ok {
			out = append(out, struct{ Stage, Stem string }{key, stem})
		}
	}
	return out
}

// ShaderStagesMatchTessellation reports whether vert, tesc, tese, and frag
// are all present, the condition under which topology defaults to
// patch-list (spec §4.4).
func (d *Description) ShaderStagesMatchTessellation() bool {
	_, hasVert := d.Shaders["vert"]
	_, hasTesc := d.Shaders["tesc"]
	_, hasTese := d.Shaders["tese"]
	_, hasFrag := d.Shaders["frag"]
	return hasVert && hasTesc && hasTese && hasFrag
}

func vertexInputRate(s string) (vk.VertexInputRate, error) {
	switch s {
	case "vertex":
		return vk.VertexInputRateVertex, nil
	case "instance":
		return vk.VertexInputRateInstance, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown inputRate %q", s)
	}
}

func vertexFormat(s string) (vk.Format, error) {
	switch s {
	case "vec2":
		return vk.FormatR32g32Sfloat, nil
	case "vec3":
		return vk.FormatR32g32b32Sfloat, nil
	case "vec4":
		return vk.FormatR32g32b32a32Sfloat, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown vertex attribute format %q", s)
	}
}

func primitiveTopology(s string) (vk.PrimitiveTopology, error) {
	switch s {
	case "pointList":
		return vk.PrimitiveTopologyPointList, nil
	case "lineList":
		return vk.PrimitiveTopologyLineList, nil
	case "triangleList":
		return vk.PrimitiveTopologyTriangleList, nil
	case "":
		return vk.PrimitiveTopologyTriangleList, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown primitiveTopology %q", s)
	}
}

func cullMode(s string) (vk.CullModeFlagBits, error) {
	switch s {
	case "front":
		return vk.CullModeFrontBit, nil
	case "back", "":
		return vk.CullModeBackBit, nil
	case "none":
		return vk.CullModeNone, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown cullMode %q", s)
	}
}

func polygonMode(s string) (vk.PolygonMode, error) {
	switch s {
	case "line":
		return vk.PolygonModeLine, nil
	case "fill", "":
		return vk.PolygonModeFill, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown polygonMode %q", s)
	}
}

func blendFactor(s string) (vk.BlendFactor, error) {
	switch s {
	case "one":
		return vk.BlendFactorOne, nil
	case "zero":
		return vk.BlendFactorZero, nil
	case "oneMinusSrcAlpha":
		return vk.BlendFactorOneMinusSrcAlpha, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown blend factor %q", s)
	}
}
