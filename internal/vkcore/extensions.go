// Package vkcore selects the physical device and its queue families,
// negotiates instance/device extensions and validation layers, and picks
// memory types. It does not create the logical device or its queues; the
// caller does that. It is the single canonical home for
// extension enumeration: the teacher repo this module is built from
// defined InstanceExtensions/DeviceExtensions/ValidationLayers twice, once
// in an "asche" package and once in a "dieselvk" package; that duplication
// is resolved here in one place.
package vkcore

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// InstanceExtensions returns the instance extensions reported as available
// by the loader, NUL-terminated for direct use in VkInstanceCreateInfo.
func InstanceExtensions() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkcore: enumerate instance extensions: %d", int32(ret))
	}
	if count == 0 {
		return nil, nil
	}
	props := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, props)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkcore: enumerate instance extensions: %d", int32(ret))
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:])+"\x00")
	}
	return names, nil
}

// DeviceExtensions returns the device extensions reported as available by
// gpu.
func DeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkcore: enumerate device extensions: %d", int32(ret))
	}
	if count == 0 {
		return nil, nil
	}
	props := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, props)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkcore: enumerate device extensions: %d", int32(ret))
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:])+"\x00")
	}
	return names, nil
}

// ValidationLayers returns the instance layers reported as available.
func ValidationLayers() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceLayerProperties(&count, nil)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkcore: enumerate instance layers: %d", int32(ret))
	}
	if count == 0 {
		return nil, nil
	}
	props := make([]vk.LayerProperties, count)
	ret = vk.EnumerateInstanceLayerProperties(&count, props)
	if ret != vk.Success {
		return nil, fmt.Errorf("vkcore: enumerate instance layers: %d", int32(ret))
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].LayerName[:])+"\x00")
	}
	return names, nil
}

// Negotiate returns the intersection of wanted with the actual set reported
// by the platform, plus a count of wanted entries that were missing. Order
// of wanted is preserved so the caller gets a stable, deduplicated result.
func Negotiate(actual, wanted []string) (negotiated []string, missing int) {
	have := make(map[string]bool, len(actual))
	for _, a := range actual {
		have[a] = true
	}
	seen := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		name := w
		if len(name) == 0 || name[len(name)-1] != 0 {
			name += "\x00"
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if have[name] {
			negotiated = append(negotiated, name)
		} else {
			missing++
		}
	}
	return negotiated, missing
}

// Union returns the deduplicated union of required and wanted, required
// entries first. This generalizes the "required ∪ wanted" merge the
// teacher performed separately for instance and device extension sets.
func Union(required, wanted []string) []string {
	seen := make(map[string]bool, len(required)+len(wanted))
	out := make([]string, 0, len(required)+len(wanted))
	add := func(names []string) {
		for _, n := range names {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	add(required)
	add(wanted)
	return out
}
