package pipeline

import "testing"

func TestParseRecognizesShaderStems(t *testing.T) {
	d, err := Parse([]byte(`{"shaders": {"vert": "triangle", "frag": "triangle"}}`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	stems := d.ShaderStems()
	if len(stems) != 2 {
		t.Fatalf("ShaderStems() = %v, want 2 entries", stems)
	}
	if stems[0].Stage != "vert" || stems[1].Stage != "frag" {
		t.Fatalf("ShaderStems() order = %v, want vert before frag", stems)
	}
}

func TestShaderStagesMatchTessellation(t *testing.T) {
	full, _ := Parse([]byte(`{"shaders": {"vert":"a","tesc":"b","tese":"c","frag":"d"}}`))
	if !full.ShaderStagesMatchTessellation() {
		t.Fatal("expected tessellation match with vert/tesc/tese/frag present")
	}

	partial, _ := Parse([]byte(`{"shaders": {"vert":"a","frag":"d"}}`))
	if partial.ShaderStagesMatchTessellation() {
		t.Fatal("expected no tessellation match without tesc/tese")
	}
}

func TestPrimitiveTopologyRejectsUnknown(t *testing.T) {
	if _, err := primitiveTopology("fan"); err == nil {
		t.Fatal("primitiveTopology accepted an unknown token")
	}
}

func TestCullModeDefaultsToBack(t *testing.T) {
	mode, err := cullMode("")
	if err != nil {
		t.Fatalf("cullMode(\"\") returned error: %v", err)
	}
	if mode != 0x00000002 { // VK_CULL_MODE_BACK_BIT
		t.Fatalf("cullMode(\"\") = %v, want back bit", mode)
	}
}

func TestVertexFormatRejectsUnknown(t *testing.T) {
	if _, err := vertexFormat("vec5"); err == nil {
		t.Fatal("vertexFormat accepted an unknown token")
	}
}
