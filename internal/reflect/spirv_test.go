package reflect

import (
	"encoding/binary"
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

// header packs a SPIR-V instruction header (word count, opcode).
func header(wordCount int, opcode uint16) uint32 {
	return uint32(wordCount)<<16 | uint32(opcode)
}

// minimalModule builds a tiny SPIR-V stream declaring one uniform-buffer
// variable at (set=0, binding=0) in the Uniform storage class, pointing at
// a Block-decorated struct, enough to exercise
// ReflectModule's core path without a real compiler.
func minimalModule(t *testing.T) []byte {
	t.Helper()
	const (
		idStruct  = 10
		idPtr     = 11
		idVar     = 12
	)
	words := []uint32{
		0x07230203, 0x00010000, 0, 20, 0,
		header(3, opDecorate), idStruct, decorationBlock,
		header(4, opDecorate), idVar, decorationBinding, 0,
		header(4, opDecorate), idVar, decorationDescSet, 0,
		header(2, opTypeStruct), idStruct,
		header(4, opTypePointer), idPtr, storageUniform, idStruct,
		header(4, opVariable), idPtr, idVar, storageUniform,
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func TestReflectModuleRejectsBadLength(t *testing.T) {
	_, err := ReflectModule("bad.spv", StageVertex, []byte{1, 2, 3})
	if err == nil {
		t.Fatal("ReflectModule accepted a length not divisible by 4")
	}
}

func TestReflectModuleRejectsBadMagic(t *testing.T) {
	_, err := ReflectModule("bad.spv", StageVertex, make([]byte, 20))
	if err == nil {
		t.Fatal("ReflectModule accepted a stream with a bad magic number")
	}
	var rerr *Error
	if e, ok := err.(*Error); ok {
		rerr = e
	}
	if rerr == nil || rerr.Path != "bad.spv" {
		t.Fatalf("error = %v, want *Error carrying the path", err)
	}
}

func TestReflectModuleFindsUniformBuffer(t *testing.T) {
	m, err := ReflectModule("shader.vert.spv", StageFragment, minimalModule(t))
	if err != nil {
		t.Fatalf("ReflectModule returned error: %v", err)
	}
	if len(m.DescriptorSetLayoutBindings) != 1 {
		t.Fatalf("DescriptorSetLayoutBindings has %d sets, want 1", len(m.DescriptorSetLayoutBindings))
	}
	bindings := m.DescriptorSetLayoutBindings[0]
	if len(bindings) != 1 {
		t.Fatalf("set 0 has %d bindings, want 1", len(bindings))
	}
	b := bindings[0]
	if b.DescriptorType != vk.DescriptorTypeUniformBuffer {
		t.Fatalf("DescriptorType = %v, want UniformBuffer", b.DescriptorType)
	}
	if b.StageFlags != vk.ShaderStageFragmentBit {
		t.Fatalf("StageFlags = %v, want FragmentBit", b.StageFlags)
	}
}

func TestMergeOrsStageFlagsOnMatchingBinding(t *testing.T) {
	vert, err := ReflectModule("a.vert.spv", StageVertex, minimalModule(t))
	if err != nil {
		t.Fatalf("vertex reflect failed: %v", err)
	}
	frag, err := ReflectModule("a.frag.spv", StageFragment, minimalModule(t))
	if err != nil {
		t.Fatalf("fragment reflect failed: %v", err)
	}

	merged := Merge(vert, frag)

	if len(merged.DescriptorSetLayoutBindings) != 1 || len(merged.DescriptorSetLayoutBindings[0]) != 1 {
		t.Fatalf("merged bindings = %+v, want one set with one binding", merged.DescriptorSetLayoutBindings)
	}
	got := merged.DescriptorSetLayoutBindings[0][0].StageFlags
	want := vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit
	if got != want {
		t.Fatalf("merged StageFlags = %v, want %v", got, want)
	}
}

func TestMergeConcatenatesPushConstants(t *testing.T) {
	a := &Module{PushConstantRanges: []PushConstantRange{{Size: 16, StageFlags: vk.ShaderStageVertexBit}}}
	b := &Module{PushConstantRanges: []PushConstantRange{{Size: 8, StageFlags: vk.ShaderStageFragmentBit}}}

	merged := Merge(a, b)

	if len(merged.PushConstantRanges) != 2 {
		t.Fatalf("merged push constants = %+v, want 2 entries", merged.PushConstantRanges)
	}
}

func TestVertexAttributesSortedByLocation(t *testing.T) {
	// Three vec4 Input variables declared with locations 2, 0, 1.
	words := []uint32{
		0x07230203, 0x00010000, 0, 20, 0,
		header(4, opDecorate), 10, decorationLocation, 2,
		header(4, opDecorate), 11, decorationLocation, 0,
		header(4, opDecorate), 12, decorationLocation, 1,
		header(3, opTypeFloat), 1, 32,
		header(4, opTypeVector), 2, 1, 4,
		header(4, opTypePointer), 3, storageInput, 2,
		header(4, opVariable), 3, 10, storageInput,
		header(4, opVariable), 3, 11, storageInput,
		header(4, opVariable), 3, 12, storageInput,
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	m, err := ReflectModule("a.vert.spv", StageVertex, buf)
	if err != nil {
		t.Fatalf("ReflectModule returned error: %v", err)
	}
	sortAttrs := m.VertexInputAttributes
	if len(sortAttrs) != 3 {
		t.Fatalf("VertexInputAttributes = %+v, want 3 entries", sortAttrs)
	}
	for i := 1; i < len(sortAttrs); i++ {
		if sortAttrs[i-1].Location >= sortAttrs[i].Location {
			t.Fatalf("attributes not strictly ascending: %+v", sortAttrs)
		}
	}
}
