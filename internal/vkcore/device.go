package vkcore

import (
	"errors"

	vk "github.com/vulkan-go/vulkan"
)

// QueueFamilies records the graphics and present queue family indices
// chosen for a physical device, and whether presentation needs a queue
// separate from the general/graphics one.
type QueueFamilies struct {
	Graphics       uint32
	Present        uint32
	HasSeparate    bool
	SupportsCompute bool
}

// SelectQueueFamilies walks gpu's queue family properties and picks a
// graphics(+compute) family plus, if surface is non-null, a family that
// supports presentation to it (falling back to a separate present-only
// family when the graphics family cannot present). Grounded on the queue
// family search in the teacher's platform/device bootstrap.
func SelectQueueFamilies(gpu vk.PhysicalDevice, surface vk.Surface) (QueueFamilies, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	if count == 0 {
		return QueueFamilies{}, errors.New("vkcore: physical device exposes no queue families")
	}
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)

	needsPresent := surface != vk.NullSurface
	var fam QueueFamilies
	var graphicsFound bool

	for i := uint32(0); i < count; i++ {
		props[i].Deref()
		flags := props[i].QueueFlags
		hasGraphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			fam.SupportsCompute = true
		}
		if !hasGraphics {
			continue
		}
		var supportsPresent vk.Bool32
		if needsPresent {
			vk.GetPhysicalDeviceSurfaceSupport(gpu, i, surface, &supportsPresent)
		}
		if !graphicsFound {
			fam.Graphics = i
			graphicsFound = true
			if !needsPresent || supportsPresent.B() {
				fam.Present = i
				return fam, nil
			}
		}
	}
	if !graphicsFound {
		return QueueFamilies{}, errors.New("vkcore: no suitable graphics queue family found")
	}
	if !needsPresent {
		fam.Present = fam.Graphics
		return fam, nil
	}

	// Graphics family cannot present; search for a dedicated present family.
	for i := uint32(0); i < count; i++ {
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, i, surface, &supportsPresent)
		if supportsPresent.B() {
			fam.Present = i
			fam.HasSeparate = i != fam.Graphics
			return fam, nil
		}
	}
	return QueueFamilies{}, errors.New("vkcore: no queue family supports presentation to surface")
}

// PickPhysicalDevice enumerates instance's physical devices and returns the
// first one satisfying suitable. Multi-GPU selection is left to suitable;
// the core itself has no opinion beyond "first suitable device", matching
// the teacher's single-GPU assumption.
func PickPhysicalDevice(instance vk.Instance, suitable func(vk.PhysicalDevice) bool) (vk.PhysicalDevice, error) {
	var count uint32
	ret := vk.EnumeratePhysicalDevices(instance, &count, nil)
	if IsErr(ret) {
		return nil, errors.New("vkcore: enumerate physical devices failed")
	}
	if count == 0 {
		return nil, errors.New("vkcore: no physical devices found")
	}
	devices := make([]vk.PhysicalDevice, count)
	ret = vk.EnumeratePhysicalDevices(instance, &count, devices)
	if IsErr(ret) {
		return nil, errors.New("vkcore: enumerate physical devices failed")
	}
	for _, d := range devices {
		if suitable == nil || suitable(d) {
			return d, nil
		}
	}
	return nil, errors.New("vkcore: no suitable physical device found")
}

// IsErr reports whether ret is a Vulkan failure code. Declared locally so
// vkcore does not need to import vkerror for this one predicate, avoiding a
// dependency cycle risk between the two low-level packages.
func IsErr(ret vk.Result) bool {
	return ret != vk.Success
}
