package rendergraph

import (
	"fmt"
	"io"
	"log"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/blackboard"
	"github.com/crispgfx/crisp/internal/layout"
)

// Graph owns the logical resource table, the pass list, the compiled
// physical resources/passes, and the per-physical-image layout ledgers.
// There is deliberately no package-level mutable state here (spec §9's
// Open Question #2): every ledger is a field reachable only through a
// Graph instance.
type Graph struct {
	device   vk.Device
	gpu      vk.PhysicalDevice
	memProps vk.PhysicalDeviceMemoryProperties

	resources         []LogicalResource
	imageDescriptions []ImageDescription
	bufferDescriptions []BufferDescription
	passes            []Pass

	physicalImages  []PhysicalImage
	physicalBuffers []PhysicalBuffer
	physicalPasses  []PhysicalPass

	blackboard *blackboard.Board

	swapChainExtent vk.Extent2D
	compiled        bool

	// Logger receives compile diagnostics (one summary line per Compile).
	// Nil means silent. Generalized from BaseCore's info_log/error_log/warn_log
	// trio (one hardcoded log file each) into a single caller-supplied
	// logger.
	Logger *log.Logger
}

func (g *Graph) logf(format string, args ...any) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
	}
}

// New creates an empty Graph bound to device/gpu, with memProps cached
// for physical resource allocation.
func New(device vk.Device, gpu vk.PhysicalDevice, memProps vk.PhysicalDeviceMemoryProperties, swapChainExtent vk.Extent2D) *Graph {
	return &Graph{
		device:          device,
		gpu:             gpu,
		memProps:        memProps,
		blackboard:      blackboard.New(nil),
		swapChainExtent: swapChainExtent,
	}
}

// Blackboard returns the graph's shared keyed store.
func (g *Graph) Blackboard() *blackboard.Board { return g.blackboard }

func (g *Graph) addImageResource(name string, desc ImageDescription, producer int) ResourceHandle {
	idx := len(g.imageDescriptions)
	g.imageDescriptions = append(g.imageDescriptions, desc)
	ri := len(g.resources)
	g.resources = append(g.resources, LogicalResource{
		Name:           name,
		Type:           ResourceImage,
		DescriptionIdx: idx,
		ProducerPass:   producer,
		ProducerAccess: AccessDescriptor{Kind: UsageAttachment},
	})
	return ResourceHandle{Index: uint32(ri)}
}

func (g *Graph) addBufferResource(name string, desc BufferDescription, producer int) ResourceHandle {
	idx := len(g.bufferDescriptions)
	g.bufferDescriptions = append(g.bufferDescriptions, desc)
	ri := len(g.resources)
	g.resources = append(g.resources, LogicalResource{
		Name:           name,
		Type:           ResourceBuffer,
		DescriptionIdx: idx,
		ProducerPass:   producer,
	})
	return ResourceHandle{Index: uint32(ri)}
}

// AddPass declares a new pass. build is called immediately with a Builder
// scoped to the new pass, so reads/writes are declared in the same call
// that creates the pass, matching the teacher's immediate-callback
// registration style (context.go's per-frame callback pattern) rather
// than a deferred two-phase declare/build split.
func (g *Graph) AddPass(name string, build func(b *Builder)) {
	index := len(g.passes)
	g.passes = append(g.passes, Pass{Name: name, Type: PassRasterizer})
	b := &Builder{graph: g, pass: &g.passes[index], index: index}
	build(b)
}

// timelines computes each logical resource's [firstWrite, lastRead] span
// in pass-declaration order, per spec §4.6.2's determineAliasedResources
// first step (original_source's calculateResourceTimelines).
func (g *Graph) timelines() []Timeline {
	out := make([]Timeline, len(g.resources))
	for i, r := range g.resources {
		out[i] = Timeline{FirstWrite: r.ProducerPass, LastRead: r.ProducerPass}
		for _, rp := range r.ReadPasses {
			if rp > out[i].LastRead {
				out[i].LastRead = rp
			}
		}
	}
	return out
}

// DumpTimeline writes one line per logical resource in the form
// "{index}. {name}-{version}: W: {firstWrite} ({pass}), R: {lastRead}
// ({pass})", matching calculateResourceTimelines's log output in the
// original renderer.
func (g *Graph) DumpTimeline(w io.Writer) {
	timelines := g.timelines()
	passName := func(pi int) string {
		if pi < 0 || pi >= len(g.passes) {
			return "external"
		}
		return g.passes[pi].Name
	}
	for i, r := range g.resources {
		tl := timelines[i]
		fmt.Fprintf(w, "%d. %s-%d: W: %d (%s), R: %d (%s)\n",
			i, r.Name, r.Version,
			tl.FirstWrite, passName(tl.FirstWrite),
			tl.LastRead, passName(tl.LastRead))
	}
}

// disjoint reports whether timelines a and b never overlap.
func disjoint(a, b Timeline) bool {
	return a.LastRead < b.FirstWrite || b.LastRead < a.FirstWrite
}

// determineAliasedResources groups logical resources into alias classes:
// resources with compatible descriptions and disjoint timelines share one
// physical resource. Exported and external resources never alias.
func (g *Graph) determineAliasedResources() (imageGroups, bufferGroups [][]int) {
	timelines := g.timelines()

	imageIdx := make([]int, 0)
	bufferIdx := make([]int, 0)
	for i, r := range g.resources {
		if r.Type == ResourceImage {
			imageIdx = append(imageIdx, i)
		} else {
			bufferIdx = append(bufferIdx, i)
		}
	}

	assign := func(candidates []int, canAlias func(i, j int) bool) [][]int {
		placed := make([]bool, len(candidates))
		var groups [][]int
		for gi, i := range candidates {
			if placed[gi] {
				continue
			}
			group := []int{i}
			placed[gi] = true
			if g.resources[i].Exported || g.resources[i].External {
				groups = append(groups, group)
				continue
			}
			for gj := gi + 1; gj < len(candidates); gj++ {
				if placed[gj] {
					continue
				}
				j := candidates[gj]
				if g.resources[j].Exported || g.resources[j].External {
					continue
				}
				if !disjoint(timelines[i], timelines[j]) {
					continue
				}
				if !canAlias(i, j) {
					continue
				}
				group = append(group, j)
				placed[gj] = true
				i = j // chain: next candidate must be disjoint from the newest member too
			}
			groups = append(groups, group)
		}
		return groups
	}

	imageGroups = assign(imageIdx, func(i, j int) bool {
		di := g.imageDescriptions[g.resources[i].DescriptionIdx]
		dj := g.imageDescriptions[g.resources[j].DescriptionIdx]
		return di.CanAlias(dj)
	})
	bufferGroups = assign(bufferIdx, func(i, j int) bool {
		di := g.bufferDescriptions[g.resources[i].DescriptionIdx]
		dj := g.bufferDescriptions[g.resources[j].DescriptionIdx]
		return di.CanAlias(dj)
	})
	return imageGroups, bufferGroups
}

// resolveExtent turns a SizePolicy into a concrete width/height.
func (g *Graph) resolveExtent(desc ImageDescription) (uint32, uint32) {
	if desc.SizePolicy == SizeAbsolute {
		return desc.Width, desc.Height
	}
	factor := desc.RelativeFactor
	if factor == 0 {
		factor = 1
	}
	return uint32(float32(g.swapChainExtent.Width) * factor), uint32(float32(g.swapChainExtent.Height) * factor)
}

// createPhysicalResources allocates one PhysicalImage/PhysicalBuffer per
// alias group, per spec §4.6.2's second step.
func (g *Graph) createPhysicalResources(imageGroups, bufferGroups [][]int) error {
	g.physicalImages = g.physicalImages[:0]
	g.physicalBuffers = g.physicalBuffers[:0]

	for _, group := range imageGroups {
		first := g.resources[group[0]]
		desc := g.imageDescriptions[first.DescriptionIdx]
		width, height := g.resolveExtent(desc)

		var handle vk.Image
		var view vk.ImageView
		var memory vk.DeviceMemory

		if g.device != nil {
			img, err := createVkImage(g.device, g.memProps, desc, width, height)
			if err != nil {
				return fmt.Errorf("rendergraph: create physical image %q: %w", first.Name, err)
			}
			handle, view, memory = img.Handle, img.View, img.Memory
		}

		ledger := layout.New(desc.LayerCount, desc.MipLevelCount, vk.ImageLayoutUndefined, layout.Scope{
			Stage:  vk.PipelineStageFlagBits(vk.PipelineStageTopOfPipeBit),
			Access: 0,
		})

		physIdx := len(g.physicalImages)
		g.physicalImages = append(g.physicalImages, PhysicalImage{
			Tag:                    first.Name,
			Handle:                 handle,
			View:                   view,
			Memory:                 memory,
			Format:                 desc.Format,
			Extent:                 vk.Extent3D{Width: width, Height: height, Depth: 1},
			LayerCount:             desc.LayerCount,
			MipLevelCount:          desc.MipLevelCount,
			Ledger:                 ledger,
			AliasedResourceIndices: group,
		})
		for _, ri := range group {
			g.resources[ri].PhysicalIndex = physIdx
		}
	}

	for _, group := range bufferGroups {
		first := g.resources[group[0]]
		desc := g.bufferDescriptions[first.DescriptionIdx]

		physIdx := len(g.physicalBuffers)
		if desc.IsExternal {
			g.physicalBuffers = append(g.physicalBuffers, PhysicalBuffer{
				Tag:                    first.Name,
				Handle:                 desc.ExternalHandle,
				Size:                   desc.Size,
				External:               true,
				AliasedResourceIndices: group,
			})
		} else {
			var handle vk.Buffer
			var memory vk.DeviceMemory
			if g.device != nil {
				buf, err := createVkBuffer(g.device, g.memProps, desc)
				if err != nil {
					return fmt.Errorf("rendergraph: create physical buffer %q: %w", first.Name, err)
				}
				handle, memory = buf.Handle, buf.Memory
			}
			g.physicalBuffers = append(g.physicalBuffers, PhysicalBuffer{
				Tag:                    first.Name,
				Handle:                 handle,
				Memory:                 memory,
				Size:                   desc.Size,
				AliasedResourceIndices: group,
			})
		}
		for _, ri := range group {
			g.resources[ri].PhysicalIndex = physIdx
		}
	}
	return nil
}

// Compile runs the three-step compilation pipeline (spec §4.6.2):
// determineAliasedResources, createPhysicalResources, createPhysicalPasses.
// Must be called once after every AddPass call; Resize calls it itself.
func (g *Graph) Compile() error {
	imageGroups, bufferGroups := g.determineAliasedResources()
	g.logf("rendergraph: compiling %d passes into %d image groups, %d buffer groups", len(g.passes), len(imageGroups), len(bufferGroups))
	if err := g.createPhysicalResources(imageGroups, bufferGroups); err != nil {
		return err
	}
	if err := g.createPhysicalPasses(); err != nil {
		return err
	}
	g.compiled = true
	return nil
}

// Resize re-resolves swap-chain-relative extents and recompiles,
// preserving pass declaration order and topology (spec's resize-
// preserves-topology scenario): only the physical resources and passes
// are rebuilt, the logical graph (passes, reads, writes) is untouched.
func (g *Graph) Resize(swapChainExtent vk.Extent2D) error {
	g.swapChainExtent = swapChainExtent
	g.destroyPhysicalResources()
	return g.Compile()
}

func (g *Graph) destroyPhysicalResources() {
	if g.device == nil {
		return
	}
	for i := range g.physicalImages {
		destroyVkImage(g.device, &g.physicalImages[i])
	}
	for i := range g.physicalPasses {
		destroyPhysicalPass(g.device, &g.physicalPasses[i])
	}
}

// Execute records every pass's synchronization barriers and Execute
// callback into cmd, in declaration order, updating each physical
// image's layout ledger as it goes (spec §4.6.6).
func (g *Graph) Execute(cmd vk.CommandBuffer) error {
	if !g.compiled {
		return fmt.Errorf("rendergraph: Execute called before Compile")
	}
	for pi := range g.passes {
		if err := g.executePass(cmd, pi); err != nil {
			return fmt.Errorf("rendergraph: execute pass %q: %w", g.passes[pi].Name, err)
		}
	}
	return nil
}

func (g *Graph) executePass(cmd vk.CommandBuffer, pi int) error {
	pass := &g.passes[pi]

	for ai, handle := range pass.Inputs {
		res := &g.resources[handle.Index]
		if res.Type != ResourceImage {
			continue
		}
		img := &g.physicalImages[res.PhysicalIndex]
		access := pass.InputAccesses[ai]
		newLayout := vk.ImageLayoutShaderReadOnlyOptimal
		if access.Kind == UsageStorage {
			newLayout = vk.ImageLayoutGeneral
		}
		full := vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     img.MipLevelCount,
			BaseArrayLayer: 0,
			LayerCount:     img.LayerCount,
		}
		barrier, err := img.Ledger.Transition(full, layout.Scope{Stage: access.Stage, Access: access.Access}, newLayout)
		if err != nil {
			return err
		}
		if barrier != nil {
			recordImageBarrier(cmd, img.Handle, *barrier)
		}
	}

	for _, handle := range pass.ColorAttachments {
		res := &g.resources[handle.Index]
		img := &g.physicalImages[res.PhysicalIndex]
		full := vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: img.MipLevelCount,
			LayerCount: img.LayerCount,
		}
		scope := layout.Scope{
			Stage:  vk.PipelineStageFlagBits(vk.PipelineStageColorAttachmentOutputBit),
			Access: vk.AccessFlagBits(vk.AccessColorAttachmentWriteBit),
		}
		barrier, err := img.Ledger.Transition(full, scope, vk.ImageLayoutColorAttachmentOptimal)
		if err != nil {
			return err
		}
		if barrier != nil {
			recordImageBarrier(cmd, img.Handle, *barrier)
		}
	}
	if pass.DepthStencilAttachment != nil {
		res := &g.resources[pass.DepthStencilAttachment.Index]
		img := &g.physicalImages[res.PhysicalIndex]
		full := vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
			LevelCount: img.MipLevelCount,
			LayerCount: img.LayerCount,
		}
		scope := layout.Scope{
			Stage:  vk.PipelineStageFlagBits(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
			Access: vk.AccessFlagBits(vk.AccessDepthStencilAttachmentWriteBit),
		}
		barrier, err := img.Ledger.Transition(full, scope, vk.ImageLayoutDepthStencilAttachmentOptimal)
		if err != nil {
			return err
		}
		if barrier != nil {
			recordImageBarrier(cmd, img.Handle, *barrier)
		}
	}

	if pass.Type == PassRasterizer && pass.PhysicalIndexValid() {
		phys := &g.physicalPasses[pass.physicalIndex]
		beginInfo := vk.RenderPassBeginInfo{
			SType:           vk.StructureTypeRenderPassBeginInfo,
			RenderPass:      phys.RenderPass,
			RenderArea:      phys.RenderArea,
			ClearValueCount: uint32(len(phys.ClearValues)),
			PClearValues:    phys.ClearValues,
		}
		if len(phys.Framebuffers) > 0 {
			beginInfo.Framebuffer = phys.Framebuffers[0]
		}
		vk.CmdBeginRenderPass(cmd, &beginInfo, vk.SubpassContentsInline)
	}

	if pass.Execute != nil {
		pass.Execute(cmd)
	}

	if pass.Type == PassRasterizer && pass.PhysicalIndexValid() {
		vk.CmdEndRenderPass(cmd)
	}

	return nil
}

func recordImageBarrier(cmd vk.CommandBuffer, img vk.Image, b layout.Barrier) {
	vkb := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(b.Src.Access),
		DstAccessMask:       vk.AccessFlags(b.Dst.Access),
		OldLayout:           b.OldLayout,
		NewLayout:           b.NewLayout,
		SrcQueueFamilyIndex: vk.MaxUint32,
		DstQueueFamilyIndex: vk.MaxUint32,
		Image:               img,
		SubresourceRange:    b.Range,
	}
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(b.Src.Stage), vk.PipelineStageFlags(b.Dst.Stage), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{vkb})
}

func createVkImage(device vk.Device, memProps vk.PhysicalDeviceMemoryProperties, desc ImageDescription, width, height uint32) (*vkImage, error) {
	return newVkImage(device, memProps, desc, width, height)
}

func createVkBuffer(device vk.Device, memProps vk.PhysicalDeviceMemoryProperties, desc BufferDescription) (*vkBuffer, error) {
	return newVkBuffer(device, memProps, desc)
}
