package rendergraph

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func swapExtent() vk.Extent2D { return vk.Extent2D{Width: 1920, Height: 1080} }

func colorDesc() ImageDescription {
	return ImageDescription{
		Format:         vk.FormatR8g8b8a8Unorm,
		SampleCount:    vk.SampleCountFlagBits(vk.SampleCount1Bit),
		LayerCount:     1,
		MipLevelCount:  1,
		SizePolicy:     SizeSwapChainRelative,
		RelativeFactor: 1,
		HasClear:       true,
	}
}

// TestSinglePassSingleAttachmentCompiles covers the spec's first
// end-to-end scenario: one pass, one color attachment, compiled with no
// aliasing and exactly one physical image.
func TestSinglePassSingleAttachmentCompiles(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	g.AddPass("main", func(b *Builder) {
		b.CreateAttachment("sceneColor", colorDesc())
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(g.physicalImages) != 1 {
		t.Fatalf("physicalImages = %d, want 1", len(g.physicalImages))
	}
}

// TestPingPongResourcesAlias covers the ping-pong scenario: a three-pass
// chain A -> B -> C where A is only read by the pass producing B and C is
// produced by the pass reading B. A's lifetime ([0,1]) and C's lifetime
// ([2,2]) are disjoint, so they must alias onto one physical image, while
// B (alive across passes 1 and 2) needs its own.
func TestPingPongResourcesAlias(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())

	var a, b ResourceHandle
	g.AddPass("passA", func(bd *Builder) {
		a = bd.CreateAttachment("pingA", colorDesc())
	})
	g.AddPass("passB", func(bd *Builder) {
		bd.ReadTexture(a)
		b = bd.CreateAttachment("pingB", colorDesc())
	})
	g.AddPass("passC", func(bd *Builder) {
		bd.ReadTexture(b)
		bd.CreateAttachment("pingC", colorDesc())
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(g.physicalImages) != 2 {
		t.Fatalf("physicalImages = %d, want 2 (A and C alias, B stands alone)", len(g.physicalImages))
	}
}

// TestExportedResourceNeverAliases ensures a resource marked ExportTexture
// is excluded from aliasing even when its lifetime would otherwise allow
// it to share a physical image with another resource.
func TestExportedResourceNeverAliases(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())

	var a ResourceHandle
	g.AddPass("passA", func(bd *Builder) {
		a = bd.CreateAttachment("presentSource", colorDesc())
		bd.ExportTexture(a)
	})
	g.AddPass("passB", func(bd *Builder) {
		bd.CreateAttachment("unrelated", colorDesc())
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(g.physicalImages) != 2 {
		t.Fatalf("physicalImages = %d, want 2 (exported resource must not alias)", len(g.physicalImages))
	}
}

// TestDepthWithClearAddsSelfDependency covers the depth-with-clear
// scenario: a pass with a depth attachment that clears on load gets both
// an external->0 dependency ordering the clear before the depth tests and
// a self-dependency guarding the clear against the first fragment's depth
// test in the same subpass.
func TestDepthWithClearAddsSelfDependency(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	g.AddPass("shadow", func(b *Builder) {
		depthDesc := colorDesc()
		depthDesc.Format = vk.FormatD32Sfloat
		depthDesc.HasClear = true
		b.CreateAttachment("shadowDepth", depthDesc)
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(g.physicalPasses) != 1 {
		t.Fatalf("physicalPasses = %d, want 1", len(g.physicalPasses))
	}

	deps := g.physicalPasses[0].Dependencies
	if len(deps) != 3 {
		t.Fatalf("dependencies = %d, want 3 (default external + external depth + self)", len(deps))
	}

	var foundExternalDepth, foundSelf bool
	for _, d := range deps {
		if d.SrcSubpass == vk.MaxUint32 && d.DstSubpass == 0 &&
			d.SrcStageMask == vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) &&
			d.DstStageMask == vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) &&
			d.DstAccessMask == vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit) {
			foundExternalDepth = true
		}
		if d.SrcSubpass == 0 && d.DstSubpass == 0 {
			foundSelf = true
		}
	}
	if !foundExternalDepth {
		t.Fatalf("dependencies = %+v, want an external TOP_OF_PIPE->EARLY_FRAGMENT_TESTS depth dependency", deps)
	}
	if !foundSelf {
		t.Fatalf("dependencies = %+v, want a 0->0 self-dependency", deps)
	}
}

// TestResizePreservesPassCount covers the resize-preserves-topology
// scenario: Resize must not add or remove logical passes, only rebuild
// physical resources against the new extent.
func TestResizePreservesPassCount(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	g.AddPass("main", func(b *Builder) {
		b.CreateAttachment("sceneColor", colorDesc())
	})
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	passCountBefore := len(g.passes)

	if err := g.Resize(vk.Extent2D{Width: 1280, Height: 720}); err != nil {
		t.Fatalf("Resize() error: %v", err)
	}
	if len(g.passes) != passCountBefore {
		t.Fatalf("pass count changed across Resize: %d != %d", len(g.passes), passCountBefore)
	}
	if len(g.physicalImages) != 1 {
		t.Fatalf("physicalImages after resize = %d, want 1", len(g.physicalImages))
	}
	img := g.physicalImages[0]
	if img.Extent.Width != 1280 || img.Extent.Height != 720 {
		t.Fatalf("physical image extent = %dx%d, want 1280x720", img.Extent.Width, img.Extent.Height)
	}
}

// TestResolveExtentAbsolute covers the absolute size policy path.
func TestResolveExtentAbsolute(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	w, h := g.resolveExtent(ImageDescription{SizePolicy: SizeAbsolute, Width: 64, Height: 32})
	if w != 64 || h != 32 {
		t.Fatalf("resolveExtent absolute = %dx%d, want 64x32", w, h)
	}
}

// TestResolveExtentRelativeHalf covers a fractional swap-chain-relative
// size policy, e.g. a half-resolution bloom target.
func TestResolveExtentRelativeHalf(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	w, h := g.resolveExtent(ImageDescription{SizePolicy: SizeSwapChainRelative, RelativeFactor: 0.5})
	if w != 960 || h != 540 {
		t.Fatalf("resolveExtent half = %dx%d, want 960x540", w, h)
	}
}

// TestTimelinesCoverReadsPastProducer ensures a resource's LastRead
// reflects the furthest pass that reads it, not just its producer.
func TestTimelinesCoverReadsPastProducer(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	var tex ResourceHandle
	g.AddPass("produce", func(b *Builder) {
		tex = b.CreateAttachment("gbuffer", colorDesc())
	})
	g.AddPass("consumeA", func(b *Builder) {
		b.ReadTexture(tex)
	})
	g.AddPass("consumeB", func(b *Builder) {
		b.ReadTexture(tex)
	})

	tl := g.timelines()[tex.Index]
	if tl.FirstWrite != 0 {
		t.Fatalf("FirstWrite = %d, want 0", tl.FirstWrite)
	}
	if tl.LastRead != 2 {
		t.Fatalf("LastRead = %d, want 2 (furthest reader)", tl.LastRead)
	}
}

// TestDisjointTimelines is a direct unit check on the disjoint helper.
func TestDisjointTimelines(t *testing.T) {
	cases := []struct {
		a, b Timeline
		want bool
	}{
		{Timeline{0, 1}, Timeline{2, 3}, true},
		{Timeline{0, 2}, Timeline{2, 3}, false},
		{Timeline{3, 5}, Timeline{0, 1}, true},
	}
	for _, c := range cases {
		if got := disjoint(c.a, c.b); got != c.want {
			t.Fatalf("disjoint(%+v, %+v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

// TestExecuteBeforeCompileErrors ensures Execute refuses to run against
// an uncompiled graph rather than dereferencing absent physical state.
func TestExecuteBeforeCompileErrors(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	g.AddPass("main", func(b *Builder) {
		b.CreateAttachment("sceneColor", colorDesc())
	})
	if err := g.Execute(nil); err == nil {
		t.Fatal("Execute before Compile should return an error")
	}
}
