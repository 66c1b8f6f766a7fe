package rendergraph

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/blackboard"
)

func TestWriteAttachmentBumpsVersion(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())

	var first, second ResourceHandle
	g.AddPass("clear", func(b *Builder) {
		first = b.CreateAttachment("sceneColor", colorDesc())
	})
	g.AddPass("overlay", func(b *Builder) {
		second = b.WriteAttachment(first)
	})

	if second.Index != first.Index {
		t.Fatalf("WriteAttachment changed resource index: %d != %d", second.Index, first.Index)
	}
	if second.Version != first.Version+1 {
		t.Fatalf("WriteAttachment version = %d, want %d", second.Version, first.Version+1)
	}
	if g.resources[first.Index].ProducerPass != 1 {
		t.Fatalf("producer pass after WriteAttachment = %d, want 1", g.resources[first.Index].ProducerPass)
	}
}

func TestImportBufferMarksExternal(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	g.AddPass("upload", func(b *Builder) {
		h := b.ImportBuffer("streamingRing", vk.Buffer(vk.NullHandle), 4096)
		if !g.resources[h.Index].External {
			t.Fatal("ImportBuffer did not mark the resource External")
		}
	})
}

func TestBlackboardRoundTripsThroughBuilder(t *testing.T) {
	g := New(nil, nil, vk.PhysicalDeviceMemoryProperties{}, swapExtent())
	type forwardLightingData struct{ HDRImage ResourceHandle }

	g.AddPass("forward", func(b *Builder) {
		h := b.CreateAttachment("hdr", colorDesc())
		blackboard.Put(b.Blackboard(), forwardLightingData{HDRImage: h})
	})

	got, ok := blackboard.Get[forwardLightingData](g.Blackboard())
	if !ok {
		t.Fatal("blackboard value set by one pass was not visible afterward")
	}
	if got.HDRImage.Index != 0 {
		t.Fatalf("HDRImage.Index = %d, want 0", got.HDRImage.Index)
	}
}
