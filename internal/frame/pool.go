// Package frame implements the virtual-frame pool: a ring of N in-flight
// frames, each with its own fence, image-available/render-finished
// semaphores, command pool, and primary command buffer. Grounded on the
// teacher's PerFrame/CoreRenderInstance.Update (instance.go) and the
// fence/semaphore handling in context.go, and on the recycle pattern in
// managers.go's FenceManager/CommandBufferManager.
package frame

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/vkerror"
)

// DefaultDepth is the default pipelined depth (N), double-buffered virtual
// frames.
const DefaultDepth = 2

// Slot is one virtual-frame slot: its synchronization primitives and
// command recording state. Unexported; callers only see it through
// Context.
type slot struct {
	fence                 vk.Fence
	imageAvailable        vk.Semaphore
	renderFinished        vk.Semaphore
	pool                  vk.CommandPool
	cmd                   vk.CommandBuffer
}

// Context is handed to the caller by BeginFrame and back to EndFrame; it
// names the virtual slot in use and the swap image it targets this frame.
type Context struct {
	FrameIndex    uint64
	VirtualIndex  int
	SwapImage     uint32
	CommandBuffer vk.CommandBuffer
}

// Pool is the virtual frame pool: N slots cycling over the monotonic frame
// counter, `virtual = frame mod N`.
type Pool struct {
	device      vk.Device
	queue       vk.Queue
	queueFamily uint32
	swapchain   vk.Swapchain

	depth   int
	slots   []slot
	counter uint64

	// OnSwapchainStale is invoked whenever acquire or present reports
	// VK_ERROR_OUT_OF_DATE_KHR so the caller can recreate the swap chain;
	// VK_SUBOPTIMAL_KHR is logged by the caller (via Logf) and otherwise
	// ignored, matching the policy in spec §4.1.
	OnSwapchainStale func() error
	Logf             func(format string, args ...any)
}

// New creates a Pool of depth virtual frames (DefaultDepth if depth <= 0),
// each with its own fence (created signalled, so the first BeginFrame does
// not block), semaphores, and one-time-submit-ready command pool/buffer.
func New(device vk.Device, queue vk.Queue, queueFamily uint32, swapchain vk.Swapchain, depth int) (*Pool, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	p := &Pool{device: device, queue: queue, queueFamily: queueFamily, swapchain: swapchain, depth: depth, slots: make([]slot, depth)}

	for i := range p.slots {
		s := &p.slots[i]
		var fence vk.Fence
		if ret := vk.CreateFence(device, &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}, nil, &fence); ret != vk.Success {
			p.Destroy()
			return nil, fmt.Errorf("frame: create fence: %w", vkerror.New(ret))
		}
		s.fence = fence

		for _, sem := range [2]*vk.Semaphore{&s.imageAvailable, &s.renderFinished} {
			if ret := vk.CreateSemaphore(device, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, sem); ret != vk.Success {
				p.Destroy()
				return nil, fmt.Errorf("frame: create semaphore: %w", vkerror.New(ret))
			}
		}

		var pool vk.CommandPool
		if ret := vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
			QueueFamilyIndex: queueFamily,
		}, nil, &pool); ret != vk.Success {
			p.Destroy()
			return nil, fmt.Errorf("frame: create command pool: %w", vkerror.New(ret))
		}
		s.pool = pool

		cmds := make([]vk.CommandBuffer, 1)
		if ret := vk.AllocateCommandBuffers(device, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}, cmds); ret != vk.Success {
			p.Destroy()
			return nil, fmt.Errorf("frame: allocate command buffer: %w", vkerror.New(ret))
		}
		s.cmd = cmds[0]
	}
	return p, nil
}

// BeginFrame waits on the current slot's fence (blocking), acquires a swap
// image, resets and begins that slot's command buffer, and returns a
// Context for the caller to record into.
func (p *Pool) BeginFrame() (Context, error) {
	v := int(p.counter % uint64(p.depth))
	s := &p.slots[v]

	if ret := vk.WaitForFences(p.device, 1, []vk.Fence{s.fence}, vk.True, ^uint64(0)); ret != vk.Success {
		return Context{}, fmt.Errorf("frame: wait for fence: %w", vkerror.New(ret))
	}

	var imageIndex uint32
	ret := vk.AcquireNextImage(p.device, p.swapchain, ^uint64(0), s.imageAvailable, vk.NullFence, &imageIndex)
	switch ret {
	case vk.Success:
	case vk.Suboptimal:
		if p.Logf != nil {
			p.Logf("frame: swapchain suboptimal on acquire, proceeding")
		}
	case vk.ErrorOutOfDateKhr:
		if p.OnSwapchainStale != nil {
			if err := p.OnSwapchainStale(); err != nil {
				return Context{}, err
			}
		}
		return Context{}, errOutOfDate
	default:
		return Context{}, fmt.Errorf("frame: acquire next image: %w", vkerror.New(ret))
	}

	if ret := vk.ResetFences(p.device, 1, []vk.Fence{s.fence}); ret != vk.Success {
		return Context{}, fmt.Errorf("frame: reset fence: %w", vkerror.New(ret))
	}
	if ret := vk.ResetCommandBuffer(s.cmd, 0); ret != vk.Success {
		return Context{}, fmt.Errorf("frame: reset command buffer: %w", vkerror.New(ret))
	}
	if ret := vk.BeginCommandBuffer(s.cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}); ret != vk.Success {
		return Context{}, fmt.Errorf("frame: begin command buffer: %w", vkerror.New(ret))
	}

	return Context{FrameIndex: p.counter, VirtualIndex: v, SwapImage: imageIndex, CommandBuffer: s.cmd}, nil
}

// errOutOfDate signals BeginFrame's caller that the frame was dropped
// because the swap chain needed recreation; it is not a fatal condition.
var errOutOfDate = fmt.Errorf("frame: swapchain out of date, frame dropped")

// IsOutOfDate reports whether err is the sentinel returned when a frame was
// dropped due to swap-chain recreation.
func IsOutOfDate(err error) bool { return err == errOutOfDate }

// EndFrame ends ctx's command buffer, submits it waiting on image-available
// and signalling render-finished plus the slot's fence, then presents the
// acquired swap image waiting on render-finished. It advances the frame
// counter once the submit succeeds, before presenting (so also on a
// recoverable present failure); an end or submit failure returns without
// advancing it.
func (p *Pool) EndFrame(ctx Context) error {
	s := &p.slots[ctx.VirtualIndex]
	if ret := vk.EndCommandBuffer(s.cmd); ret != vk.Success {
		return fmt.Errorf("frame: end command buffer: %w", vkerror.New(ret))
	}

	waitStages := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	ret := vk.QueueSubmit(p.queue, 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{s.imageAvailable},
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{s.cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{s.renderFinished},
	}}, s.fence)
	if ret != vk.Success {
		return fmt.Errorf("frame: submit: %w", vkerror.New(ret))
	}

	p.counter++

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount:  1,
		PWaitSemaphores:     []vk.Semaphore{s.renderFinished},
		SwapchainCount:      1,
		PSwapchains:         []vk.Swapchain{p.swapchain},
		PImageIndices:       []uint32{ctx.SwapImage},
	}
	ret = vk.QueuePresent(p.queue, &presentInfo)
	switch ret {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		if p.Logf != nil {
			p.Logf("frame: swapchain suboptimal on present, proceeding")
		}
		return nil
	case vk.ErrorOutOfDateKhr:
		if p.OnSwapchainStale != nil {
			return p.OnSwapchainStale()
		}
		return nil
	default:
		return fmt.Errorf("frame: present: %w", vkerror.New(ret))
	}
}

// Depth returns the pool's pipelined depth N.
func (p *Pool) Depth() int { return p.depth }

// Destroy waits for the device to go idle, then destroys every slot's
// synchronization primitives and command pool.
func (p *Pool) Destroy() {
	if p.device != nil {
		vk.DeviceWaitIdle(p.device)
	}
	for i := range p.slots {
		s := &p.slots[i]
		if s.pool != vk.NullCommandPool {
			vk.DestroyCommandPool(p.device, s.pool, nil)
		}
		if s.imageAvailable != vk.NullSemaphore {
			vk.DestroySemaphore(p.device, s.imageAvailable, nil)
		}
		if s.renderFinished != vk.NullSemaphore {
			vk.DestroySemaphore(p.device, s.renderFinished, nil)
		}
		if s.fence != vk.NullFence {
			vk.DestroyFence(p.device, s.fence, nil)
		}
	}
}
