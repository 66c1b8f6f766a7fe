package rendergraph

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// attachmentLoadOp is CLEAR iff the description carries a clear value,
// else DONT_CARE (never LOAD: a freshly compiled attachment has nothing
// worth preserving from before this pass ran), per spec §4.6.5.
func attachmentLoadOp(desc ImageDescription) vk.AttachmentLoadOp {
	if desc.HasClear {
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

// attachmentStoreOp is STORE iff the resource has a downstream reader or
// survives past the graph (ExportTexture), else DONT_CARE, per spec
// §4.6.5 and the "only written, never read" boundary behavior.
func attachmentStoreOp(res *LogicalResource) vk.AttachmentStoreOp {
	if len(res.ReadPasses) > 0 || res.Exported {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

// attachmentInitialLayout is SHADER_READ_ONLY_OPTIMAL when the resource's
// accumulated usage includes sampled (it was read as a texture by some
// pass, so some pass may hand it to this one already in that layout),
// else the attachment-optimal layout this attachment itself uses, per
// spec §4.6.5.
func attachmentInitialLayout(desc ImageDescription, attachmentOptimal vk.ImageLayout) vk.ImageLayout {
	if desc.UsageFlags&vk.ImageUsageFlagBits(vk.ImageUsageSampledBit) != 0 {
		return vk.ImageLayoutShaderReadOnlyOptimal
	}
	return attachmentOptimal
}

// createPhysicalPasses builds one VkRenderPass per rasterizer Pass that
// declares at least one attachment, per spec §4.6.5. Compute and
// ray-tracing passes get no physical pass. A depth attachment that
// clears on load additionally needs an external->0 dependency gating the
// clear on nothing but ordering it before the depth tests, plus the
// self-dependency the reference implementation adds to avoid a
// write-after-write hazard between the implicit clear and the first
// fragment's depth test.
func (g *Graph) createPhysicalPasses() error {
	for i := range g.physicalPasses {
		destroyPhysicalPass(g.device, &g.physicalPasses[i])
	}
	g.physicalPasses = g.physicalPasses[:0]

	for pi := range g.passes {
		pass := &g.passes[pi]
		pass.hasPhysicalPass = false
		if pass.Type != PassRasterizer {
			continue
		}
		if len(pass.ColorAttachments) == 0 && pass.DepthStencilAttachment == nil {
			continue
		}

		var attachments []vk.AttachmentDescription
		var colorRefs []vk.AttachmentReference
		var depthRef *vk.AttachmentReference
		var renderArea vk.Rect2D
		var clearValues []vk.ClearValue

		for _, handle := range pass.ColorAttachments {
			res := &g.resources[handle.Index]
			img := &g.physicalImages[res.PhysicalIndex]
			desc := g.imageDescriptions[res.DescriptionIdx]
			attachments = append(attachments, vk.AttachmentDescription{
				Format:         img.Format,
				Samples:        desc.SampleCount,
				LoadOp:         attachmentLoadOp(desc),
				StoreOp:        attachmentStoreOp(res),
				StencilLoadOp:  vk.AttachmentLoadOpDontCare,
				StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout:  attachmentInitialLayout(desc, vk.ImageLayoutColorAttachmentOptimal),
				FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
			})
			colorRefs = append(colorRefs, vk.AttachmentReference{
				Attachment: uint32(len(attachments) - 1),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			})
			renderArea = vk.Rect2D{Extent: vk.Extent2D{Width: img.Extent.Width, Height: img.Extent.Height}}
			clearValues = append(clearValues, desc.ClearValue)
		}

		clearsDepth := false
		if pass.DepthStencilAttachment != nil {
			res := &g.resources[pass.DepthStencilAttachment.Index]
			img := &g.physicalImages[res.PhysicalIndex]
			desc := g.imageDescriptions[res.DescriptionIdx]
			clearsDepth = desc.HasClear
			attachments = append(attachments, vk.AttachmentDescription{
				Format:         img.Format,
				Samples:        desc.SampleCount,
				LoadOp:         attachmentLoadOp(desc),
				StoreOp:        attachmentStoreOp(res),
				StencilLoadOp:  vk.AttachmentLoadOpDontCare,
				StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout:  attachmentInitialLayout(desc, vk.ImageLayoutDepthStencilAttachmentOptimal),
				FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
			})
			depthRef = &vk.AttachmentReference{
				Attachment: uint32(len(attachments) - 1),
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			}
			if renderArea.Extent.Width == 0 {
				renderArea = vk.Rect2D{Extent: vk.Extent2D{Width: img.Extent.Width, Height: img.Extent.Height}}
			}
			clearValues = append(clearValues, desc.ClearValue)
		}

		subpass := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(colorRefs)),
		}
		if len(colorRefs) > 0 {
			subpass.PColorAttachments = colorRefs
		}
		if depthRef != nil {
			subpass.PDepthStencilAttachment = depthRef
		}

		// VK_SUBPASS_EXTERNAL -> 0: whatever previously sampled these
		// attachments in a fragment shader must finish before this pass
		// writes them, per spec §4.6.5.
		deps := []vk.SubpassDependency{
			{
				SrcSubpass:    vk.MaxUint32,
				DstSubpass:    0,
				SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
				DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
				SrcAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
				DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			},
		}
		if clearsDepth {
			// VK_SUBPASS_EXTERNAL -> 0: the implicit depth clear at
			// subpass load must wait on nothing upstream but must
			// complete before the depth tests begin, per spec §4.6.5.
			deps = append(deps, vk.SubpassDependency{
				SrcSubpass:    vk.MaxUint32,
				DstSubpass:    0,
				SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
				DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
				SrcAccessMask: 0,
				DstAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			})
			// Self-dependency so the implicit depth clear at subpass load
			// happens-before the first fragment's depth test in the same
			// subpass, matching the reference's extra dependency for
			// depth attachments that clear on load.
			deps = append(deps, vk.SubpassDependency{
				SrcSubpass:    0,
				DstSubpass:    0,
				SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
				DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
				SrcAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
				DstAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			})
		}

		createInfo := vk.RenderPassCreateInfo{
			SType:           vk.StructureTypeRenderPassCreateInfo,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			SubpassCount:    1,
			PSubpasses:      []vk.SubpassDescription{subpass},
			DependencyCount: uint32(len(deps)),
			PDependencies:   deps,
		}

		var renderPass vk.RenderPass
		if g.device != nil {
			ret := vk.CreateRenderPass(g.device, &createInfo, nil, &renderPass)
			if ret != vk.Success {
				return fmt.Errorf("rendergraph: create render pass %q: result %d", pass.Name, int32(ret))
			}
		}

		physIdx := len(g.physicalPasses)
		phys := PhysicalPass{RenderPass: renderPass, RenderArea: renderArea, ClearValues: clearValues, Dependencies: deps}
		if g.device != nil {
			fb, err := buildFramebuffer(g.device, renderPass, renderArea, pass, g)
			if err != nil {
				return err
			}
			phys.Framebuffers = []vk.Framebuffer{fb}
		}
		g.physicalPasses = append(g.physicalPasses, phys)
		pass.physicalIndex = physIdx
		pass.hasPhysicalPass = true
	}
	return nil
}

func buildFramebuffer(device vk.Device, renderPass vk.RenderPass, area vk.Rect2D, pass *Pass, g *Graph) (vk.Framebuffer, error) {
	var views []vk.ImageView
	for _, handle := range pass.ColorAttachments {
		res := &g.resources[handle.Index]
		views = append(views, g.physicalImages[res.PhysicalIndex].View)
	}
	if pass.DepthStencilAttachment != nil {
		res := &g.resources[pass.DepthStencilAttachment.Index]
		views = append(views, g.physicalImages[res.PhysicalIndex].View)
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           area.Extent.Width,
		Height:          area.Extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(device, &info, nil, &fb)
	if ret != vk.Success {
		return vk.NullFramebuffer, fmt.Errorf("rendergraph: create framebuffer: result %d", int32(ret))
	}
	return fb, nil
}

func destroyPhysicalPass(device vk.Device, p *PhysicalPass) {
	if device == nil {
		return
	}
	for _, fb := range p.Framebuffers {
		vk.DestroyFramebuffer(device, fb, nil)
	}
	if p.RenderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(device, p.RenderPass, nil)
	}
}
