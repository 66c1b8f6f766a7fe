// Package reflect parses SPIR-V shader modules to derive descriptor set
// layout bindings, push constant ranges, and vertex input attributes,
// and merges that information across shader stages. Grounded on
// original_source's Reflection.cpp (toVulkanDescriptorType, toVulkanFormat,
// reflectUniformMetadataFromSpirvShader, reflectVertexMetadataFromSpirvShader,
// ShaderUniformInputMetadata::merge), reimplemented as a direct SPIR-V
// binary walk since no SPIR-V reflection library ships for Go in this
// retrieval pack; the opcode/decoration subset walked here (OpDecorate,
// OpTypeFloat, OpTypeVector, OpTypeStruct, OpTypeArray, OpTypeRuntimeArray,
// OpTypeImage, OpTypeSampledImage, OpTypeSampler, OpTypePointer,
// OpConstant, OpVariable) covers what Reflection.cpp itself consumes from
// spirv_reflect.
package reflect

import (
	"encoding/binary"
	"fmt"
	"sort"

	vk "github.com/vulkan-go/vulkan"
)

// Stage identifies which shader stage a module was compiled for.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageGeometry
	StageTessControl
	StageTessEval
	StageCompute
	StageMesh
	StageTask
)

func (s Stage) vkFlag() vk.ShaderStageFlagBits {
	switch s {
	case StageVertex:
		return vk.ShaderStageVertexBit
	case StageFragment:
		return vk.ShaderStageFragmentBit
	case StageGeometry:
		return vk.ShaderStageGeometryBit
	case StageTessControl:
		return vk.ShaderStageTessellationControlBit
	case StageTessEval:
		return vk.ShaderStageTessellationEvaluationBit
	case StageCompute:
		return vk.ShaderStageComputeBit
	case StageMesh:
		return vk.ShaderStageFlagBits(0x00000080) // VK_SHADER_STAGE_MESH_BIT_NV
	case StageTask:
		return vk.ShaderStageFlagBits(0x00000040) // VK_SHADER_STAGE_TASK_BIT_NV
	default:
		return 0
	}
}

// Binding is one descriptor set layout binding.
type Binding struct {
	Binding         uint32
	DescriptorType  vk.DescriptorType
	DescriptorCount uint32
	StageFlags      vk.ShaderStageFlagBits
}

// PushConstantRange is one push constant range.
type PushConstantRange struct {
	Offset     uint32
	Size       uint32
	StageFlags vk.ShaderStageFlagBits
}

// VertexAttribute is one vertex shader input, reported sorted by Location.
type VertexAttribute struct {
	Location uint32
	Format   vk.Format
}

// Module is the reflected metadata for one shader, or the result of
// merging several.
type Module struct {
	// DescriptorSetLayoutBindings[set] holds the bindings declared in that
	// set, indexed by position (not necessarily by Binding value).
	DescriptorSetLayoutBindings [][]Binding
	PushConstantRanges          []PushConstantRange
	VertexInputAttributes       []VertexAttribute
}

// Error carries the originating path/stage of a reflection failure, since
// a pipeline layout cannot be built from incomplete reflection.
type Error struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reflect: %s (stage %d): %v", e.Path, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const (
	opSource           = 3
	opName             = 5
	opMemberName       = 6
	opEntryPoint       = 15
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

const (
	decorationBlock       = 2
	decorationBufferBlock = 3
	decorationBinding     = 33
	decorationDescSet     = 34
	decorationLocation    = 30
)

const (
	storageUniformConstant = 0
	storageInput           = 1
	storageUniform         = 2
	storagePushConstant    = 9
	storageStorageBuffer   = 12
)

type typeInfo struct {
	op        uint16
	operands  []uint32 // raw operand words following result-id/result-type as applicable
	pointee   uint32   // for OpTypePointer: the type id it points to
	isBlock   bool     // OpTypeStruct decorated Block
	isBuffer  bool     // OpTypeStruct decorated BufferBlock
	elemType  uint32   // for arrays
	arrayLen  uint32   // resolved array length, 0 if runtime/unknown
	dim       uint32   // for OpTypeImage
	sampled   uint32   // for OpTypeImage: 1=sampled, 2=storage
}

// reflect is the shared binary walk used by ReflectModule and
// ReflectVertexInputs.
type parsed struct {
	types       map[uint32]*typeInfo
	constants   map[uint32]uint32
	variables   map[uint32]struct {
		resultType uint32
		storage    uint32
	}
	bindingOf  map[uint32]uint32
	setOf      map[uint32]uint32
	locationOf map[uint32]uint32
	hasLocation map[uint32]bool
	hasBindingSet map[uint32]bool
}

func parseWords(words []uint32) (*parsed, error) {
	if len(words) < 5 {
		return nil, fmt.Errorf("spirv stream too short")
	}
	if words[0] != 0x07230203 {
		return nil, fmt.Errorf("bad SPIR-V magic number %#x", words[0])
	}
	p := &parsed{
		types:         make(map[uint32]*typeInfo),
		constants:     make(map[uint32]uint32),
		variables:     make(map[uint32]struct{ resultType, storage uint32 }),
		bindingOf:     make(map[uint32]uint32),
		setOf:         make(map[uint32]uint32),
		locationOf:    make(map[uint32]uint32),
		hasLocation:   make(map[uint32]bool),
		hasBindingSet: make(map[uint32]bool),
	}

	i := 5
	for i < len(words) {
		inst := words[i]
		wordCount := int(inst >> 16)
		opcode := uint16(inst & 0xffff)
		if wordCount == 0 || i+wordCount > len(words) {
			return nil, fmt.Errorf("malformed instruction at word %d", i)
		}
		operands := words[i+1 : i+wordCount]

		switch opcode {
		case opDecorate:
			target := operands[0]
			decoration := operands[1]
			switch decoration {
			case decorationBinding:
				p.bindingOf[target] = operands[2]
				p.hasBindingSet[target] = true
			case decorationDescSet:
				p.setOf[target] = operands[2]
			case decorationLocation:
				p.locationOf[target] = operands[2]
				p.hasLocation[target] = true
			case decorationBlock:
				p.markType(target).isBlock = true
			case decorationBufferBlock:
				p.markType(target).isBuffer = true
			}
		case opTypeFloat:
			p.markType(operands[0]).op = opTypeFloat
		case opTypeVector:
			// operands: result id, component type, component count
			t := p.markType(operands[0])
			t.op = opTypeVector
			if ct := p.typeOf(operands[1]); ct != nil && ct.op == opTypeFloat {
				t.operands = []uint32{operands[1], operands[2]}
			}
		case opTypeStruct:
			result := operands[0]
			p.markType(result).op = opTypeStruct
		case opTypePointer:
			result := operands[0]
			storage := operands[1]
			pointee := operands[2]
			t := p.markType(result)
			t.op = opTypePointer
			t.operands = []uint32{storage}
			t.pointee = pointee
		case opTypeArray:
			result := operands[0]
			elem := operands[1]
			lenID := operands[2]
			t := p.markType(result)
			t.op = opTypeArray
			t.elemType = elem
			if v, ok := p.constants[lenID]; ok {
				t.arrayLen = v
			}
		case opTypeRuntimeArray:
			result := operands[0]
			elem := operands[1]
			t := p.markType(result)
			t.op = opTypeRuntimeArray
			t.elemType = elem
		case opTypeImage:
			result := operands[0]
			t := p.markType(result)
			t.op = opTypeImage
			if len(operands) > 2 {
				t.dim = operands[2]
			}
			if len(operands) > 6 {
				t.sampled = operands[6]
			}
		case opTypeSampledImage:
			result := operands[0]
			t := p.markType(result)
			t.op = opTypeSampledImage
		case opTypeSampler:
			result := operands[0]
			p.markType(result).op = opTypeSampler
		case opConstant:
			// operands: result type, result id, literal value...
			if len(operands) >= 3 {
				p.constants[operands[1]] = operands[2]
			}
		case opVariable:
			resultType := operands[0]
			result := operands[1]
			storage := operands[2]
			p.variables[result] = struct{ resultType, storage uint32 }{resultType, storage}
		}

		i += wordCount
	}
	return p, nil
}

func (p *parsed) markType(id uint32) *typeInfo {
	t, ok := p.types[id]
	if !ok {
		t = &typeInfo{}
		p.types[id] = t
	}
	return t
}

func (p *parsed) typeOf(id uint32) *typeInfo {
	return p.types[id]
}

// resolveDescriptorType inspects the pointee type of a UniformConstant /
// Uniform / StorageBuffer variable and infers a vk.DescriptorType plus
// array count, mirroring toVulkanDescriptorType's switch in
// Reflection.cpp.
func (p *parsed) resolveDescriptorType(pointeeID uint32) (vk.DescriptorType, uint32, bool) {
	t := p.typeOf(pointeeID)
	if t == nil {
		return 0, 1, false
	}
	count := uint32(1)
	for t.op == opTypeArray || t.op == opTypeRuntimeArray {
		if t.op == opTypeArray && t.arrayLen > 0 {
			count = t.arrayLen
		} else {
			count = 0 // runtime/bindless array, variable count
		}
		t = p.typeOf(t.elemType)
		if t == nil {
			return 0, count, false
		}
	}
	switch t.op {
	case opTypeStruct:
		if t.isBuffer {
			return vk.DescriptorTypeStorageBuffer, count, true
		}
		return vk.DescriptorTypeUniformBuffer, count, true
	case opTypeSampledImage:
		return vk.DescriptorTypeCombinedImageSampler, count, true
	case opTypeSampler:
		return vk.DescriptorTypeSampler, count, true
	case opTypeImage:
		const dimSubpassData = 6
		if t.dim == dimSubpassData {
			return vk.DescriptorTypeInputAttachment, count, true
		}
		if t.sampled == 2 {
			return vk.DescriptorTypeStorageImage, count, true
		}
		return vk.DescriptorTypeSampledImage, count, true
	default:
		return 0, count, false
	}
}

// ReflectModule parses a single shader stage's SPIR-V and returns its
// descriptor set layout bindings and push constant ranges. spirv's length
// must be divisible by 4, matching the spec's SPIR-V input contract.
func ReflectModule(path string, stage Stage, spirv []byte) (*Module, error) {
	if len(spirv)%4 != 0 {
		return nil, &Error{Path: path, Stage: stage, Err: fmt.Errorf("SPIR-V size %d is not divisible by 4; SPIR-V is a stream of 32-bit tokens", len(spirv))}
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	p, err := parseWords(words)
	if err != nil {
		return nil, &Error{Path: path, Stage: stage, Err: err}
	}

	stageFlag := stage.vkFlag()
	m := &Module{}

	maxSet := uint32(0)
	type entry struct {
		set, binding uint32
		b            Binding
	}
	var entries []entry

	for varID, v := range p.variables {
		switch v.storage {
		case storageUniformConstant, storageUniform, storageStorageBuffer:
			ptr := p.typeOf(v.resultType)
			if ptr == nil || ptr.op != opTypePointer {
				continue
			}
			descType, count, ok := p.resolveDescriptorType(ptr.pointee)
			if !ok {
				continue
			}
			set := p.setOf[varID]
			binding := p.bindingOf[varID]
			if set+1 > maxSet {
				maxSet = set + 1
			}
			entries = append(entries, entry{set: set, binding: binding, b: Binding{
				Binding:         binding,
				DescriptorType:  descType,
				DescriptorCount: count,
				StageFlags:      stageFlag,
			}})
		case storagePushConstant:
			ptr := p.typeOf(v.resultType)
			if ptr == nil || ptr.op != opTypePointer {
				continue
			}
			// Size is left 0: it is not computed from struct member offsets
			// here (the SPIR-V member-offset decorations are not walked),
			// so the range only records the stage that declares a push
			// constant block.
			m.PushConstantRanges = append(m.PushConstantRanges, PushConstantRange{
				Offset:     0,
				StageFlags: stageFlag,
			})
		}
	}

	m.DescriptorSetLayoutBindings = make([][]Binding, maxSet)
	for _, e := range entries {
		m.DescriptorSetLayoutBindings[e.set] = append(m.DescriptorSetLayoutBindings[e.set], e.b)
	}
	for i := range m.DescriptorSetLayoutBindings {
		sort.Slice(m.DescriptorSetLayoutBindings[i], func(a, b int) bool {
			return m.DescriptorSetLayoutBindings[i][a].Binding < m.DescriptorSetLayoutBindings[i][b].Binding
		})
	}

	if stage == StageVertex {
		attrs, err := vertexAttributes(p)
		if err != nil {
			return nil, &Error{Path: path, Stage: stage, Err: err}
		}
		m.VertexInputAttributes = attrs
	}

	return m, nil
}

func vertexAttributes(p *parsed) ([]VertexAttribute, error) {
	var attrs []VertexAttribute
	for varID, v := range p.variables {
		if v.storage != storageInput {
			continue
		}
		if !p.hasLocation[varID] {
			continue
		}
		ptr := p.typeOf(v.resultType)
		if ptr == nil || ptr.op != opTypePointer {
			continue
		}
		format, ok := vectorFormat(p.typeOf(ptr.pointee))
		if !ok {
			continue
		}
		attrs = append(attrs, VertexAttribute{Location: p.locationOf[varID], Format: format})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Location < attrs[j].Location })
	return attrs, nil
}

// vectorFormat maps a float vector type to a Vulkan format, matching
// toVulkanFormat's vec2/vec3/vec4 cases; other component types are
// reported as unsupported, per Reflection.cpp only handling those three.
func vectorFormat(t *typeInfo) (vk.Format, bool) {
	if t == nil || t.op != opTypeVector {
		return 0, false
	}
	if len(t.operands) < 2 {
		return 0, false
	}
	switch t.operands[1] {
	case 2:
		return vk.FormatR32g32Sfloat, true
	case 3:
		return vk.FormatR32g32b32Sfloat, true
	case 4:
		return vk.FormatR32g32b32a32Sfloat, true
	default:
		return 0, false
	}
}

// Merge combines mods in order, matching ShaderUniformInputMetadata::merge:
// for a (set, binding) present in more than one module, the stage flags are
// OR'd together and every other field is taken from whichever module first
// declared it (first non-empty wins); push constant ranges are
// concatenated.
func Merge(mods ...*Module) *Module {
	out := &Module{}
	for _, m := range mods {
		if m == nil {
			continue
		}
		if len(m.DescriptorSetLayoutBindings) > len(out.DescriptorSetLayoutBindings) {
			grown := make([][]Binding, len(m.DescriptorSetLayoutBindings))
			copy(grown, out.DescriptorSetLayoutBindings)
			out.DescriptorSetLayoutBindings = grown
		}
		for set, bindings := range m.DescriptorSetLayoutBindings {
			for _, b := range bindings {
				out.DescriptorSetLayoutBindings[set] = mergeBinding(out.DescriptorSetLayoutBindings[set], b)
			}
		}
		out.PushConstantRanges = append(out.PushConstantRanges, m.PushConstantRanges...)
		if len(out.VertexInputAttributes) == 0 {
			out.VertexInputAttributes = m.VertexInputAttributes
		}
	}
	return out
}

func mergeBinding(set []Binding, b Binding) []Binding {
	for i := range set {
		if set[i].Binding == b.Binding {
			if set[i].DescriptorCount > 0 {
				set[i].StageFlags |= b.StageFlags
			} else if b.DescriptorCount > 0 {
				set[i] = b
			}
			return set
		}
	}
	return append(set, b)
}
