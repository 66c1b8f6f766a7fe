// Package vkresource wraps Vulkan buffers and images with their backing
// memory allocation, grounded on the teacher's Buffer/CreateBuffer
// (extensions.go) and CoreBuffer (buffers.go).
package vkresource

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/vkcore"
)

// Buffer owns a vk.Buffer and the vk.DeviceMemory bound to it, or wraps an
// externally owned buffer it does not own and will not destroy.
type Buffer struct {
	Device   vk.Device
	Handle   vk.Buffer
	Memory   vk.DeviceMemory
	Size     vk.DeviceSize
	External bool
}

// BufferParams describes a buffer to create.
type BufferParams struct {
	Size       vk.DeviceSize
	Usage      vk.BufferUsageFlagBits
	Properties vk.MemoryPropertyFlagBits
}

// CreateBuffer allocates and binds a buffer, mirroring the teacher's
// CreateBuffer in extensions.go generalized to take arbitrary usage and
// memory property flags instead of a single hardcoded combination.
func CreateBuffer(device vk.Device, memProps vk.PhysicalDeviceMemoryProperties, p BufferParams) (*Buffer, error) {
	var handle vk.Buffer
	ret := vk.CreateBuffer(device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        p.Size,
		Usage:       vk.BufferUsageFlags(p.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &handle)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkresource: create buffer: %d", int32(ret))
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, handle, &req)
	req.Deref()

	typeIndex, err := vkcore.FindMemoryType(memProps, req.MemoryTypeBits, vk.MemoryPropertyFlags(p.Properties))
	if err != nil {
		vk.DestroyBuffer(device, handle, nil)
		return nil, fmt.Errorf("vkresource: %w", err)
	}

	var mem vk.DeviceMemory
	ret = vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &mem)
	if ret != vk.Success {
		vk.DestroyBuffer(device, handle, nil)
		return nil, fmt.Errorf("vkresource: allocate buffer memory: %d", int32(ret))
	}

	if ret := vk.BindBufferMemory(device, handle, mem, 0); ret != vk.Success {
		vk.FreeMemory(device, mem, nil)
		vk.DestroyBuffer(device, handle, nil)
		return nil, fmt.Errorf("vkresource: bind buffer memory: %d", int32(ret))
	}

	return &Buffer{Device: device, Handle: handle, Memory: mem, Size: p.Size}, nil
}

// ImportBuffer wraps an externally owned buffer that vkresource will never
// destroy, used for the render graph's ImportBuffer operation.
func ImportBuffer(device vk.Device, handle vk.Buffer, size vk.DeviceSize) *Buffer {
	return &Buffer{Device: device, Handle: handle, Size: size, External: true}
}

// Destroy frees the buffer and its memory. It is a no-op for external
// buffers, since those are owned by their original creator.
func (b *Buffer) Destroy() {
	if b == nil || b.External {
		return
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(b.Device, b.Handle, nil)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.Device, b.Memory, nil)
		b.Memory = vk.NullDeviceMemory
	}
}

// Map maps the buffer's memory and copies data into it at offset, then
// unmaps. Grounded on the teacher's CoreBuffer.MapMemory.
func (b *Buffer) Map(data []byte, offset vk.DeviceSize) error {
	if b.External {
		return fmt.Errorf("vkresource: cannot map externally owned buffer")
	}
	var ptr unsafe.Pointer
	ret := vk.MapMemory(b.Device, b.Memory, offset, vk.DeviceSize(len(data)), 0, &ptr)
	if ret != vk.Success {
		return fmt.Errorf("vkresource: map buffer memory: %d", int32(ret))
	}
	n := vk.Memcopy(ptr, data)
	vk.UnmapMemory(b.Device, b.Memory)
	if n != len(data) {
		return fmt.Errorf("vkresource: short copy into mapped memory: %d != %d", n, len(data))
	}
	return nil
}
