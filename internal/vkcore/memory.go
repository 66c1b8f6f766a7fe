package vkcore

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// FindMemoryType searches memProps for a memory type within typeBits whose
// property flags fully contain required, grounded on the teacher's
// FindRequiredMemoryType/FindRequiredMemoryTypeFallback pair.
func FindMemoryType(memProps vk.PhysicalDeviceMemoryProperties, typeBits uint32, required vk.MemoryPropertyFlags) (uint32, error) {
	memProps.Deref()
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		memProps.MemoryTypes[i].Deref()
		if memProps.MemoryTypes[i].PropertyFlags&required == required {
			return i, nil
		}
	}
	return 0, fmt.Errorf("vkcore: no memory type matches bits=%#x required=%#x", typeBits, required)
}

// FindMemoryTypeFallback behaves like FindMemoryType but retries with
// fallback if the primary required flags cannot be satisfied, matching the
// teacher's two-step device-local-with-host-visible-fallback search.
func FindMemoryTypeFallback(memProps vk.PhysicalDeviceMemoryProperties, typeBits uint32, required, fallback vk.MemoryPropertyFlags) (uint32, error) {
	if idx, err := FindMemoryType(memProps, typeBits, required); err == nil {
		return idx, nil
	}
	return FindMemoryType(memProps, typeBits, fallback)
}
