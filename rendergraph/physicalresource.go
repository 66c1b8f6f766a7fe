package rendergraph

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/internal/vkresource"
)

// vkImage and vkBuffer are thin aliases so graph.go's physical-resource
// construction reads in terms of the render graph's own vocabulary while
// delegating actual allocation to internal/vkresource.
type vkImage = vkresource.Image
type vkBuffer = vkresource.Buffer

func newVkImage(device vk.Device, memProps vk.PhysicalDeviceMemoryProperties, desc ImageDescription, width, height uint32) (*vkImage, error) {
	aspect := vk.ImageAspectFlagBits(vk.ImageAspectColorBit)
	if isDepthFormat(desc.Format) {
		aspect = vk.ImageAspectFlagBits(vk.ImageAspectDepthBit)
	}
	return vkresource.CreateImage(device, memProps, vkresource.ImageParams{
		Format:      desc.Format,
		Extent:      vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:   maxu(desc.MipLevelCount, 1),
		LayerCount:  maxu(desc.LayerCount, 1),
		Samples:     sampleCountOr1(desc.SampleCount),
		CreateFlags: desc.CreateFlags,
		Usage:       desc.UsageFlags,
		Aspect:      aspect,
	})
}

func newVkBuffer(device vk.Device, memProps vk.PhysicalDeviceMemoryProperties, desc BufferDescription) (*vkBuffer, error) {
	return vkresource.CreateBuffer(device, memProps, vkresource.BufferParams{
		Size:       desc.Size,
		Usage:      vk.BufferUsageFlagBits(desc.UsageFlags),
		Properties: vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit),
	})
}

func destroyVkImage(device vk.Device, p *PhysicalImage) {
	if p.Handle == vk.NullImage {
		return
	}
	img := &vkresource.Image{Device: device, Handle: p.Handle, View: p.View, Memory: p.Memory}
	img.Destroy()
	p.Handle = vk.NullImage
	p.View = vk.NullImageView
	p.Memory = vk.NullDeviceMemory
}

func maxu(v, floor uint32) uint32 {
	if v == 0 {
		return floor
	}
	return v
}

func sampleCountOr1(s vk.SampleCountFlagBits) vk.SampleCountFlagBits {
	if s == 0 {
		return vk.SampleCountFlagBits(vk.SampleCount1Bit)
	}
	return s
}
