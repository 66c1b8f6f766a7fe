package rendergraph

import (
	vk "github.com/vulkan-go/vulkan"
)

// Builder accumulates one Pass's reads and writes against a Graph. A
// Builder is only valid during the callback passed to Graph.AddPass.
type Builder struct {
	graph *Graph
	pass  *Pass
	index int
}

// ReadTexture declares a sampled-image read of handle and returns handle;
// the access descriptor {Texture, FRAGMENT_SHADER, SHADER_READ} is recorded
// on the pass for synchronization. Accumulates the sampled
// usage bit onto the resource's description so createPhysicalPasses can
// derive an attachment's initialLayout from its accumulated usage (spec
// §4.6.5).
func (b *Builder) ReadTexture(handle ResourceHandle) ResourceHandle {
	res := &b.graph.resources[handle.Index]
	if res.Type == ResourceImage {
		b.graph.imageDescriptions[res.DescriptionIdx].UsageFlags |= vk.ImageUsageFlagBits(vk.ImageUsageSampledBit)
	}
	return b.read(handle, AccessDescriptor{
		Kind:   UsageTexture,
		Stage:  vk.PipelineStageFlagBits(vk.PipelineStageFragmentShaderBit),
		Access: vk.AccessFlagBits(vk.AccessShaderReadBit),
	})
}

// ReadStorageImage declares a storage-image read, typically from a
// compute pass.
func (b *Builder) ReadStorageImage(handle ResourceHandle) ResourceHandle {
	return b.read(handle, AccessDescriptor{
		Kind:   UsageStorage,
		Stage:  vk.PipelineStageFlagBits(vk.PipelineStageComputeShaderBit),
		Access: vk.AccessFlagBits(vk.AccessShaderReadBit),
	})
}

// ReadBuffer declares a buffer read (uniform or storage buffer), recording
// access {Storage, COMPUTE_SHADER, SHADER_READ} per spec §4.6.1.
func (b *Builder) ReadBuffer(handle ResourceHandle) ResourceHandle {
	return b.read(handle, AccessDescriptor{
		Kind:   UsageStorage,
		Stage:  vk.PipelineStageFlagBits(vk.PipelineStageComputeShaderBit),
		Access: vk.AccessFlagBits(vk.AccessShaderReadBit),
	})
}

// ReadAttachment declares an input-attachment read (subpass self-read).
func (b *Builder) ReadAttachment(handle ResourceHandle) ResourceHandle {
	return b.read(handle, AccessDescriptor{
		Kind:   UsageAttachment,
		Stage:  vk.PipelineStageFlagBits(vk.PipelineStageFragmentShaderBit),
		Access: vk.AccessFlagBits(vk.AccessInputAttachmentReadBit),
	})
}

func (b *Builder) read(handle ResourceHandle, access AccessDescriptor) ResourceHandle {
	res := &b.graph.resources[handle.Index]
	res.ReadPasses = append(res.ReadPasses, b.index)
	b.pass.Inputs = append(b.pass.Inputs, handle)
	b.pass.InputAccesses = append(b.pass.InputAccesses, access)
	return handle
}

// CreateAttachment creates a new logical color or depth-stencil image
// resource and declares this pass as its producer (an attachment write).
func (b *Builder) CreateAttachment(name string, desc ImageDescription) ResourceHandle {
	desc.UsageFlags |= vk.ImageUsageFlagBits(vk.ImageUsageColorAttachmentBit)
	if isDepthFormat(desc.Format) {
		desc.UsageFlags = vk.ImageUsageFlagBits(vk.ImageUsageDepthStencilAttachmentBit)
	}
	handle := b.graph.addImageResource(name, desc, b.index)
	if isDepthFormat(desc.Format) {
		h := handle
		b.pass.DepthStencilAttachment = &h
	} else {
		b.pass.ColorAttachments = append(b.pass.ColorAttachments, handle)
	}
	b.pass.Outputs = append(b.pass.Outputs, handle)
	return handle
}

// WriteAttachment re-declares handle (created by an earlier pass) as
// written again by this pass, bumping its version and chaining the
// producer edge.
func (b *Builder) WriteAttachment(handle ResourceHandle) ResourceHandle {
	res := &b.graph.resources[handle.Index]
	res.Version++
	next := ResourceHandle{Index: handle.Index, Version: res.Version}
	res.ProducerPass = b.index
	if isDepthFormat(b.graph.imageDescriptions[res.DescriptionIdx].Format) {
		b.pass.DepthStencilAttachment = &next
	} else {
		b.pass.ColorAttachments = append(b.pass.ColorAttachments, next)
	}
	b.pass.Outputs = append(b.pass.Outputs, next)
	return next
}

// CreateStorageImage creates a new logical image meant for compute
// read/write access rather than rasterizer attachment use.
func (b *Builder) CreateStorageImage(name string, desc ImageDescription) ResourceHandle {
	desc.UsageFlags |= vk.ImageUsageFlagBits(vk.ImageUsageStorageBit)
	handle := b.graph.addImageResource(name, desc, b.index)
	b.pass.Outputs = append(b.pass.Outputs, handle)
	return handle
}

// CreateBuffer creates a new logical buffer owned by the graph.
func (b *Builder) CreateBuffer(name string, desc BufferDescription) ResourceHandle {
	handle := b.graph.addBufferResource(name, desc, b.index)
	b.pass.Outputs = append(b.pass.Outputs, handle)
	return handle
}

// ImportBuffer registers an externally-owned buffer (e.g. a streaming
// ring buffer) as a logical resource the graph can read without owning
// its lifetime.
func (b *Builder) ImportBuffer(name string, handle vk.Buffer, size vk.DeviceSize) ResourceHandle {
	desc := BufferDescription{Size: size, ExternalHandle: handle, IsExternal: true}
	rh := b.graph.addBufferResource(name, desc, -1)
	b.graph.resources[rh.Index].External = true
	return rh
}

// ExportTexture marks handle as used outside the graph (e.g. the final
// color target presented to the swapchain): it is excluded from aliasing,
// and as an attachment it gets STORE even with no reader in the graph. Its
// physical image is still destroyed by Resize like any other.
func (b *Builder) ExportTexture(handle ResourceHandle) {
	b.graph.resources[handle.Index].Exported = true
}

// Blackboard returns the graph's shared typed keyed store for passing
// resource handles between passes without threading them through
// function signatures.
func (b *Builder) Blackboard() *Blackboard {
	return b.graph.blackboard
}

// SetType overrides the pass's declared type; rasterizer is the default.
func (b *Builder) SetType(t PassType) {
	b.pass.Type = t
}

func isDepthFormat(f vk.Format) bool {
	switch f {
	case vk.FormatD16Unorm, vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint,
		vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatX8D24UnormPack32:
		return true
	default:
		return false
	}
}
