package layout

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func fullRange(layers, mips uint32) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{LayerCount: layers, LevelCount: mips}
}

func TestNewInitializesAllSubresources(t *testing.T) {
	l := New(2, 3, vk.ImageLayoutUndefined, Scope{})
	for layer := uint32(0); layer < 2; layer++ {
		for mip := uint32(0); mip < 3; mip++ {
			if got := l.Layout(layer, mip); got != vk.ImageLayoutUndefined {
				t.Fatalf("Layout(%d,%d) = %v, want Undefined", layer, mip, got)
			}
		}
	}
}

func TestTransitionIsNoopWhenLayoutUnchanged(t *testing.T) {
	l := New(1, 1, vk.ImageLayoutColorAttachmentOptimal, Scope{})
	b, err := l.Transition(fullRange(1, 1), Scope{}, vk.ImageLayoutColorAttachmentOptimal)
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if b != nil {
		t.Fatalf("Transition = %+v, want nil barrier for no-op", b)
	}
}

func TestTransitionUpdatesLedger(t *testing.T) {
	l := New(1, 1, vk.ImageLayoutUndefined, Scope{})
	b, err := l.Transition(fullRange(1, 1), Scope{}, vk.ImageLayoutShaderReadOnlyOptimal)
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if b == nil {
		t.Fatal("Transition = nil, want a barrier")
	}
	if b.OldLayout != vk.ImageLayoutUndefined || b.NewLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("barrier = %+v, want Undefined->ShaderReadOnlyOptimal", b)
	}
	if got := l.Layout(0, 0); got != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("Layout after transition = %v, want ShaderReadOnlyOptimal", got)
	}
}

func TestTransitionRejectsHeterogeneousRange(t *testing.T) {
	l := New(1, 2, vk.ImageLayoutUndefined, Scope{})
	// Put mip 0 into a different layout than mip 1.
	if _, err := l.Transition(vk.ImageSubresourceRange{LayerCount: 1, LevelCount: 1}, Scope{}, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		t.Fatalf("setup transition failed: %v", err)
	}
	_, err := l.Transition(fullRange(1, 2), Scope{}, vk.ImageLayoutGeneral)
	if err == nil {
		t.Fatal("Transition over a heterogeneous range succeeded, want error")
	}
}

func TestTransitionMipChainStep(t *testing.T) {
	l := New(1, 2, vk.ImageLayoutUndefined, Scope{})
	// Level 0 was filled as a transfer destination already.
	_, err := l.Transition(vk.ImageSubresourceRange{LayerCount: 1, BaseMipLevel: 0, LevelCount: 1},
		Scope{Stage: vk.PipelineStageFlagBits(vk.PipelineStageTransferBit), Access: vk.AccessFlagBits(vk.AccessTransferWriteBit)},
		vk.ImageLayoutTransferDstOptimal)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	filled, next, err := l.TransitionMipChainStep(0, 0)
	if err != nil {
		t.Fatalf("TransitionMipChainStep returned error: %v", err)
	}
	if filled == nil || filled.NewLayout != vk.ImageLayoutTransferSrcOptimal {
		t.Fatalf("filled barrier = %+v, want ->TransferSrcOptimal", filled)
	}
	if next == nil || next.NewLayout != vk.ImageLayoutTransferDstOptimal {
		t.Fatalf("next barrier = %+v, want ->TransferDstOptimal", next)
	}
	if got := l.Layout(0, 0); got != vk.ImageLayoutTransferSrcOptimal {
		t.Fatalf("level 0 layout = %v, want TransferSrcOptimal", got)
	}
	if got := l.Layout(0, 1); got != vk.ImageLayoutTransferDstOptimal {
		t.Fatalf("level 1 layout = %v, want TransferDstOptimal", got)
	}
}
