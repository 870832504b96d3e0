package hephaistos

import (
	vk "github.com/goki/vulkan"
)

// queueFamily is what adapter selection needs to know about a family.
type queueFamily struct {
	flags   vk.QueueFlags
	count   uint32
	present bool
}

// queueFamilies lists the families of gpu. With a surface, each family's
// ability to present to it is queried.
func queueFamilies(gpu vk.PhysicalDevice, surface vk.Surface) []queueFamily {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)

	families := make([]queueFamily, count)
	for i := range props {
		props[i].Deref()
		families[i] = queueFamily{flags: props[i].QueueFlags, count: props[i].QueueCount}
		if surface != vk.NullSurface {
			var supported vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), surface, &supported)
			families[i].present = supported == vk.True
		}
	}
	return families
}

// findQueueFamily returns the first family with every bit of want and, when
// needPresent is set, presentation support.
func findQueueFamily(families []queueFamily, want vk.QueueFlags, needPresent bool) (uint32, bool) {
	for i, f := range families {
		if f.count == 0 || f.flags&want != want {
			continue
		}
		if needPresent && !f.present {
			continue
		}
		return uint32(i), true
	}
	return 0, false
}
