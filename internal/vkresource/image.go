package vkresource

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/vkcore"
)

// Image owns a vk.Image, its memory allocation, and a default view
// covering all subresources. Grounded on the teacher's Texture/Depth
// structs (context.go) and CreateFrameBuffer's depth-image creation
// (swapchain.go), generalized from those two hardcoded uses into a single
// reusable wrapper any physical resource can be built from.
type Image struct {
	Device      vk.Device
	Handle      vk.Image
	Memory      vk.DeviceMemory
	View        vk.ImageView
	Format      vk.Format
	Extent      vk.Extent3D
	MipLevels   uint32
	LayerCount  uint32
}

// ImageParams describes an image to create.
type ImageParams struct {
	Format      vk.Format
	Extent      vk.Extent3D
	MipLevels   uint32
	LayerCount  uint32
	Samples     vk.SampleCountFlagBits
	Usage       vk.ImageUsageFlagBits
	CreateFlags vk.ImageCreateFlagBits
	Aspect      vk.ImageAspectFlagBits
}

// CreateImage allocates a device-local image and a default view over all
// of its subresources: 2D for a single layer, 2D-array when LayerCount > 1.
func CreateImage(device vk.Device, memProps vk.PhysicalDeviceMemoryProperties, p ImageParams) (*Image, error) {
	if p.MipLevels == 0 {
		p.MipLevels = 1
	}
	if p.LayerCount == 0 {
		p.LayerCount = 1
	}
	if p.Samples == 0 {
		p.Samples = vk.SampleCount1Bit
	}
	if p.Aspect == 0 {
		p.Aspect = vk.ImageAspectColorBit
	}

	var handle vk.Image
	ret := vk.CreateImage(device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		Flags:         vk.ImageCreateFlags(p.CreateFlags),
		ImageType:     vk.ImageType2d,
		Format:        p.Format,
		Extent:        p.Extent,
		MipLevels:     p.MipLevels,
		ArrayLayers:   p.LayerCount,
		Samples:       p.Samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(p.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &handle)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkresource: create image: %d", int32(ret))
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, handle, &req)
	req.Deref()

	typeIndex, err := vkcore.FindMemoryType(memProps, req.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(device, handle, nil)
		return nil, fmt.Errorf("vkresource: %w", err)
	}

	var mem vk.DeviceMemory
	ret = vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &mem)
	if ret != vk.Success {
		vk.DestroyImage(device, handle, nil)
		return nil, fmt.Errorf("vkresource: allocate image memory: %d", int32(ret))
	}
	if ret := vk.BindImageMemory(device, handle, mem, 0); ret != vk.Success {
		vk.FreeMemory(device, mem, nil)
		vk.DestroyImage(device, handle, nil)
		return nil, fmt.Errorf("vkresource: bind image memory: %d", int32(ret))
	}

	viewType := vk.ImageViewType2d
	if p.LayerCount > 1 {
		viewType = vk.ImageViewType2dArray
	}
	var view vk.ImageView
	ret = vk.CreateImageView(device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: viewType,
		Format:   p.Format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(p.Aspect),
			LevelCount:     p.MipLevels,
			LayerCount:     p.LayerCount,
		},
	}, nil, &view)
	if ret != vk.Success {
		vk.FreeMemory(device, mem, nil)
		vk.DestroyImage(device, handle, nil)
		return nil, fmt.Errorf("vkresource: create image view: %d", int32(ret))
	}

	return &Image{
		Device:     device,
		Handle:     handle,
		Memory:     mem,
		View:       view,
		Format:     p.Format,
		Extent:     p.Extent,
		MipLevels:  p.MipLevels,
		LayerCount: p.LayerCount,
	}, nil
}

// Destroy releases the view, image, and memory, in that order.
func (img *Image) Destroy() {
	if img == nil {
		return
	}
	if img.View != vk.NullImageView {
		vk.DestroyImageView(img.Device, img.View, nil)
		img.View = vk.NullImageView
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(img.Device, img.Handle, nil)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(img.Device, img.Memory, nil)
		img.Memory = vk.NullDeviceMemory
	}
}
