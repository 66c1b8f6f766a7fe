// Package rendergraph is the canonical render graph: a DAG of rasterizer,
// compute, and ray-tracing passes over logical image/buffer resources,
// compiled into aliased physical resources and physical render passes,
// and executed with synthesized synchronization. Grounded on
// original_source's Crisp/Crisp/Renderer/RenderGraph/RenderGraph.cpp (the
// `crisp::rg` namespace) — SPEC_FULL.md §10.1 resolves the spec's two
// coexisting implementations in favor of this one; the other (the
// per-pass DependencyCallback style) survives as a thin shim over this
// package in rendergraph/legacy.
package rendergraph

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/blackboard"
	"github.com/crispgfx/crisp/internal/layout"
)

// ResourceType distinguishes image and buffer logical resources.
type ResourceType int

const (
	ResourceImage ResourceType = iota
	ResourceBuffer
)

// SizePolicy decides how an image description's extent is resolved:
// either an absolute width/height, or a factor of the current swap-chain
// extent.
type SizePolicy int

const (
	SizeAbsolute SizePolicy = iota
	SizeSwapChainRelative
)

// ImageDescription is a logical image's shape; two descriptions are
// alias-compatible iff they match in format, sample count, layer, mip and
// depth-slice counts, create flags, size policy, width, height and relative
// factor (see CanAlias). UsageFlags, HasClear and ClearValue are not
// compared.
type ImageDescription struct {
	Format          vk.Format
	SampleCount     vk.SampleCountFlagBits
	LayerCount      uint32
	MipLevelCount   uint32
	DepthSliceCount uint32
	CreateFlags     vk.ImageCreateFlagBits
	UsageFlags      vk.ImageUsageFlagBits // accumulated during build
	SizePolicy      SizePolicy
	Width           uint32
	Height          uint32
	RelativeFactor  float32
	HasClear        bool
	ClearValue      vk.ClearValue
}

// CanAlias reports whether d and other are alias-compatible image
// descriptions, per spec §3: identical format, samples, layers, mips,
// depth, (create) flags, and size.
func (d ImageDescription) CanAlias(other ImageDescription) bool {
	return d.Format == other.Format &&
		d.SampleCount == other.SampleCount &&
		d.LayerCount == other.LayerCount &&
		d.MipLevelCount == other.MipLevelCount &&
		d.DepthSliceCount == other.DepthSliceCount &&
		d.CreateFlags == other.CreateFlags &&
		d.SizePolicy == other.SizePolicy &&
		d.Width == other.Width &&
		d.Height == other.Height &&
		d.RelativeFactor == other.RelativeFactor
}

// BufferDescription is a logical buffer's shape; two descriptions are
// alias-compatible iff identical in size and usage bits, and neither is
// external.
type BufferDescription struct {
	Size            vk.DeviceSize
	UsageFlags      vk.BufferUsageFlagBits
	ExternalHandle  vk.Buffer
	IsExternal      bool
}

// CanAlias reports whether d and other are alias-compatible buffer
// descriptions.
func (d BufferDescription) CanAlias(other BufferDescription) bool {
	if d.IsExternal || other.IsExternal {
		return false
	}
	return d.Size == other.Size && d.UsageFlags == other.UsageFlags
}

// UsageKind classifies how a pass accesses a resource.
type UsageKind int

const (
	UsageAttachment UsageKind = iota
	UsageTexture
	UsageStorage
)

// AccessDescriptor records the (usage kind, pipeline stage, access mask)
// triple attached to every read and to every produced resource's
// producer access.
type AccessDescriptor struct {
	Kind   UsageKind
	Stage  vk.PipelineStageFlagBits
	Access vk.AccessFlagBits
}

// PassType distinguishes the three kinds of GPU work a pass can record.
type PassType int

const (
	PassRasterizer PassType = iota
	PassCompute
	PassRayTracing
)

// ResourceHandle is a stable 32-bit index into a Graph's logical resource
// table.
type ResourceHandle struct {
	Index   uint32
	Version uint32
}

// LogicalResource is one entry in the graph's resource table.
type LogicalResource struct {
	Name            string
	Type            ResourceType
	DescriptionIdx  int
	Version         uint32
	ProducerPass    int
	ReadPasses      []int
	ProducerAccess  AccessDescriptor
	External        bool
	Exported        bool
	PhysicalIndex   int // valid after Compile
}

// Pass is one node of the graph.
type Pass struct {
	Name                  string
	Type                  PassType
	Inputs                []ResourceHandle
	InputAccesses         []AccessDescriptor
	Outputs               []ResourceHandle
	ColorAttachments      []ResourceHandle
	DepthStencilAttachment *ResourceHandle
	Execute               func(cmd vk.CommandBuffer)
	Tag                   string

	physicalIndex    int
	hasPhysicalPass  bool
}

// PhysicalIndexValid reports whether Compile assigned this rasterizer
// pass a PhysicalPass (false for compute/ray-tracing passes, which have
// no VkRenderPass).
func (p *Pass) PhysicalIndexValid() bool { return p.hasPhysicalPass }

// Timeline is a logical resource's [firstWrite, lastRead] lifetime in
// pass-declaration-order indices.
type Timeline struct {
	FirstWrite int
	LastRead   int
}

// PhysicalImage owns a Vulkan image/view/memory allocation and the layout
// ledger for it, shared by every logical resource aliased onto it.
type PhysicalImage struct {
	Tag                    string
	Handle                 vk.Image
	View                   vk.ImageView
	Memory                 vk.DeviceMemory
	Format                 vk.Format
	Extent                 vk.Extent3D
	LayerCount             uint32
	MipLevelCount          uint32
	Ledger                 *layout.Ledger
	AliasedResourceIndices []int
}

// PhysicalBuffer owns a Vulkan buffer/memory allocation, or references one
// it does not own.
type PhysicalBuffer struct {
	Tag                    string
	Handle                 vk.Buffer
	Memory                 vk.DeviceMemory
	Size                   vk.DeviceSize
	External               bool
	AliasedResourceIndices []int
}

// PhysicalPass owns the VkRenderPass, its render area, clear values and
// subpass dependencies, for rasterizer passes only. It does not keep the
// attachment descriptions, and Framebuffers holds a single framebuffer that
// Execute uses for every virtual frame.
type PhysicalPass struct {
	RenderPass   vk.RenderPass
	RenderArea   vk.Rect2D
	Framebuffers []vk.Framebuffer
	ClearValues  []vk.ClearValue
	Dependencies []vk.SubpassDependency
}

// Blackboard is re-exported so callers don't need to import
// internal/blackboard directly when using a Builder.
type Blackboard = blackboard.Board
