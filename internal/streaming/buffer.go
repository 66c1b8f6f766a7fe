// Package streaming implements the uniform/storage/ring streaming buffer
// contract: one device-local buffer of N*perFrameRegion bytes plus a
// host-visible staging buffer of perFrameRegion bytes, rotated by virtual
// frame index. Grounded on the teacher's CoreBuffer/NewCoreUniformBuffer
// (buffers.go), generalized from a single hardcoded uniform buffer into the
// general per-frame-region/staging contract.
package streaming

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/vkresource"
)

// Kind distinguishes the three variants sharing this contract; they differ
// only in the buffer usage flags applied to the device-local buffer.
type Kind int

const (
	Uniform Kind = iota
	Storage
	Ring
)

func (k Kind) usage() vk.BufferUsageFlagBits {
	switch k {
	case Storage:
		return vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit
	case Ring:
		return vk.BufferUsageUniformBufferBit | vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit
	default:
		return vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferDstBit
	}
}

// Buffer is one streaming buffer: N device-local per-frame regions plus a
// single staging region used to upload into whichever region is live this
// frame.
type Buffer struct {
	kind            Kind
	perFrameRegion  vk.DeviceSize
	depth           int
	device          *vkresource.Buffer
	staging         *vkresource.Buffer
	pendingOffset   vk.DeviceSize
	pendingLen      vk.DeviceSize
	hasPending      bool
}

// New creates a streaming buffer of the given kind with depth virtual-frame
// regions of perFrameRegion bytes each.
func New(deviceHandle vk.Device, memProps vk.PhysicalDeviceMemoryProperties, kind Kind, perFrameRegion vk.DeviceSize, depth int) (*Buffer, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("streaming: depth must be positive, got %d", depth)
	}
	deviceBuf, err := vkresource.CreateBuffer(deviceHandle, memProps, vkresource.BufferParams{
		Size:       perFrameRegion * vk.DeviceSize(depth),
		Usage:      kind.usage(),
		Properties: vk.MemoryPropertyDeviceLocalBit,
	})
	if err != nil {
		return nil, fmt.Errorf("streaming: device buffer: %w", err)
	}
	stagingBuf, err := vkresource.CreateBuffer(deviceHandle, memProps, vkresource.BufferParams{
		Size:       perFrameRegion,
		Usage:      vk.BufferUsageTransferSrcBit,
		Properties: vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit,
	})
	if err != nil {
		deviceBuf.Destroy()
		return nil, fmt.Errorf("streaming: staging buffer: %w", err)
	}
	return &Buffer{kind: kind, perFrameRegion: perFrameRegion, depth: depth, device: deviceBuf, staging: stagingBuf}, nil
}

// DynamicOffset returns the byte offset used when binding a dynamic-offset
// descriptor for virtual slot v: v * perFrameRegion.
func (b *Buffer) DynamicOffset(virtualIndex int) uint32 {
	return uint32(vk.DeviceSize(virtualIndex) * b.perFrameRegion)
}

// DeviceHandle returns the underlying device-local vk.Buffer, for binding.
func (b *Buffer) DeviceHandle() vk.Buffer { return b.device.Handle }

// PerFrameRegion returns the size in bytes of one virtual frame's region.
func (b *Buffer) PerFrameRegion() vk.DeviceSize { return b.perFrameRegion }

// UpdateStaging writes data into the host-visible staging buffer at
// offset. It must be followed by UpdateDevice before the data is visible to
// the GPU.
func (b *Buffer) UpdateStaging(data []byte, offset vk.DeviceSize) error {
	if offset+vk.DeviceSize(len(data)) > b.perFrameRegion {
		return fmt.Errorf("streaming: write of %d bytes at offset %d exceeds per-frame region of %d", len(data), offset, b.perFrameRegion)
	}
	if err := b.staging.Map(data, offset); err != nil {
		return fmt.Errorf("streaming: update staging: %w", err)
	}
	b.pendingOffset = offset
	b.pendingLen = vk.DeviceSize(len(data))
	b.hasPending = true
	return nil
}

// UpdateDevice records a copy from the staging buffer into virtualIndex's
// sub-region of the device buffer. It is a no-op if nothing was staged
// since the last call.
func (b *Buffer) UpdateDevice(cmd vk.CommandBuffer, virtualIndex int) {
	if !b.hasPending {
		return
	}
	dstOffset := vk.DeviceSize(virtualIndex)*b.perFrameRegion + b.pendingOffset
	regions := []vk.BufferCopy{{SrcOffset: b.pendingOffset, DstOffset: dstOffset, Size: b.pendingLen}}
	vk.CmdCopyBuffer(cmd, b.staging.Handle, b.device.Handle, 1, regions)
	b.hasPending = false
}

// Destroy releases both the device and staging buffers.
func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	b.device.Destroy()
	b.staging.Destroy()
}

// Registry tracks every live streaming buffer so the frame controller can
// transfer all of them once per frame behind a single
// TRANSFER_WRITE->SHADER_READ barrier before the first user draw/dispatch,
// per the register/unregister contract.
type Registry struct {
	buffers map[*Buffer]struct{}
}

// NewRegistry creates an empty streaming-buffer registry.
func NewRegistry() *Registry {
	return &Registry{buffers: make(map[*Buffer]struct{})}
}

// Register adds b to the set of buffers transferred each frame.
func (r *Registry) Register(b *Buffer) { r.buffers[b] = struct{}{} }

// Unregister removes b from the set.
func (r *Registry) Unregister(b *Buffer) { delete(r.buffers, b) }

// TransferAll calls UpdateDevice on every registered buffer for
// virtualIndex, then records the single barrier that covers all of them.
func (r *Registry) TransferAll(cmd vk.CommandBuffer, virtualIndex int) {
	if len(r.buffers) == 0 {
		return
	}
	for b := range r.buffers {
		b.UpdateDevice(cmd, virtualIndex)
	}
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)|vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)|vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}
