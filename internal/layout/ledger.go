// Package layout tracks the current VkImageLayout of every (layer, mip)
// subresource of a physical image and synthesizes the pipeline barriers
// needed to move between layouts. It replaces the file-scope
// glastPipelineStage/glastAccessFlags globals the reference implementation
// carried at module scope: a Ledger is a value owned by whichever physical
// image it describes, never package state.
package layout

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Scope is a (pipeline-stage, access-mask) pair, the unit barriers are
// expressed in.
type Scope struct {
	Stage  vk.PipelineStageFlagBits
	Access vk.AccessFlagBits
}

// Barrier describes a single image memory barrier synthesized by a
// Transition. The caller is responsible for recording it with
// vkCmdPipelineBarrier2 (or the non-2 equivalent); Ledger only computes
// what the barrier should say.
type Barrier struct {
	Src       Scope
	Dst       Scope
	OldLayout vk.ImageLayout
	NewLayout vk.ImageLayout
	Range     vk.ImageSubresourceRange
}

// Ledger is a flat layerCount*mipLevels table of layouts for one physical
// image.
type Ledger struct {
	layers   uint32
	mips     uint32
	layouts  []vk.ImageLayout
	stages   []vk.PipelineStageFlagBits
	accesses []vk.AccessFlagBits
}

// New creates a ledger for an image with the given layer and mip counts,
// with every subresource initialized to initial.
func New(layerCount, mipLevels uint32, initial vk.ImageLayout, scope Scope) *Ledger {
	n := int(layerCount) * int(mipLevels)
	l := &Ledger{
		layers:   layerCount,
		mips:     mipLevels,
		layouts:  make([]vk.ImageLayout, n),
		stages:   make([]vk.PipelineStageFlagBits, n),
		accesses: make([]vk.AccessFlagBits, n),
	}
	for i := range l.layouts {
		l.layouts[i] = initial
		l.stages[i] = scope.Stage
		l.accesses[i] = scope.Access
	}
	return l
}

func (l *Ledger) index(layer, mip uint32) int {
	return int(layer)*int(l.mips) + int(mip)
}

// Layout returns the current layout of (layer, mip).
func (l *Ledger) Layout(layer, mip uint32) vk.ImageLayout {
	return l.layouts[l.index(layer, mip)]
}

// uniform reports whether every subresource in the range shares one
// layout, returning that layout and the first subresource's stage/access
// scope if so. Stage/access are not compared across the range.
func (l *Ledger) uniform(r vk.ImageSubresourceRange) (vk.ImageLayout, Scope, bool) {
	layerCount := r.LayerCount
	if layerCount == 0 || layerCount == vk.RemainingArrayLayers {
		layerCount = l.layers - r.BaseArrayLayer
	}
	mipCount := r.LevelCount
	if mipCount == 0 || mipCount == vk.RemainingMipLevels {
		mipCount = l.mips - r.BaseMipLevel
	}
	first := l.index(r.BaseArrayLayer, r.BaseMipLevel)
	layout := l.layouts[first]
	scope := Scope{Stage: l.stages[first], Access: l.accesses[first]}
	for layer := r.BaseArrayLayer; layer < r.BaseArrayLayer+layerCount; layer++ {
		for mip := r.BaseMipLevel; mip < r.BaseMipLevel+mipCount; mip++ {
			idx := l.index(layer, mip)
			if l.layouts[idx] != layout {
				return 0, Scope{}, false
			}
		}
	}
	return layout, scope, true
}

// Transition asserts that r currently holds one uniform layout, and returns
// the barrier needed to move it to newLayout under dst's scope. The
// barrier's Src scope is the range's last-recorded (stage, access) — the
// producer or reader that brought it to its current layout — not supplied
// by the caller, so a barrier can never desync from what the ledger
// actually last wrote. It returns (nil, nil) when newLayout already matches
// the current layout (a no-op transition, per spec). The ledger is updated
// unconditionally except in the no-op case, where there is nothing to
// update.
func (l *Ledger) Transition(r vk.ImageSubresourceRange, dst Scope, newLayout vk.ImageLayout) (*Barrier, error) {
	current, prevScope, ok := l.uniform(r)
	if !ok {
		return nil, fmt.Errorf("layout: subresource range crosses heterogeneous layouts")
	}
	if current == newLayout {
		return nil, nil
	}
	b := &Barrier{Src: prevScope, Dst: dst, OldLayout: current, NewLayout: newLayout, Range: r}
	l.set(r, newLayout, dst)
	return b, nil
}

func (l *Ledger) set(r vk.ImageSubresourceRange, newLayout vk.ImageLayout, scope Scope) {
	layerCount := r.LayerCount
	if layerCount == 0 || layerCount == vk.RemainingArrayLayers {
		layerCount = l.layers - r.BaseArrayLayer
	}
	mipCount := r.LevelCount
	if mipCount == 0 || mipCount == vk.RemainingMipLevels {
		mipCount = l.mips - r.BaseMipLevel
	}
	for layer := r.BaseArrayLayer; layer < r.BaseArrayLayer+layerCount; layer++ {
		for mip := r.BaseMipLevel; mip < r.BaseMipLevel+mipCount; mip++ {
			idx := l.index(layer, mip)
			l.layouts[idx] = newLayout
			l.stages[idx] = scope.Stage
			l.accesses[idx] = scope.Access
		}
	}
}

// TransitionMipChainStep computes the two transitions a mip-chain blit step
// needs: level k moves DST->SRC after being filled (it becomes the blit
// source for level k+1), and level k+1 moves UNDEFINED->DST before being
// blitted into. Grounded on the inline level-by-level transitions described
// for mip-chain generation.
func (l *Ledger) TransitionMipChainStep(layer, level uint32) (filled, next *Barrier, err error) {
	filledRange := vk.ImageSubresourceRange{BaseArrayLayer: layer, LayerCount: 1, BaseMipLevel: level, LevelCount: 1}
	nextRange := vk.ImageSubresourceRange{BaseArrayLayer: layer, LayerCount: 1, BaseMipLevel: level + 1, LevelCount: 1}

	readScope := Scope{Stage: vk.PipelineStageFlagBits(vk.PipelineStageTransferBit), Access: vk.AccessFlagBits(vk.AccessTransferReadBit)}

	filled, err = l.Transition(filledRange, readScope, vk.ImageLayoutTransferSrcOptimal)
	if err != nil {
		return nil, nil, err
	}
	transferScope := Scope{Stage: vk.PipelineStageFlagBits(vk.PipelineStageTransferBit), Access: vk.AccessFlagBits(vk.AccessTransferWriteBit)}
	next, err = l.Transition(nextRange, transferScope, vk.ImageLayoutTransferDstOptimal)
	if err != nil {
		return nil, nil, err
	}
	return filled, next, nil
}
