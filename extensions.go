package hephaistos

import (
	"strings"

	vk "github.com/goki/vulkan"
)

// InstanceExtensions gets a list of instance extensions available on the platform.
func InstanceExtensions() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	if err := checkResult(ret, "enumerate instance extensions"); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, list)
	if err := checkResult(ret, "enumerate instance extensions"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// DeviceExtensions gets a list of extensions available on the provided physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	if err := checkResult(ret, "enumerate device extensions"); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)
	if err := checkResult(ret, "enumerate device extensions"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// ValidationLayers gets a list of validation layers available on the platform.
func ValidationLayers() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceLayerProperties(&count, nil)
	if err := checkResult(ret, "enumerate instance layers"); err != nil {
		return nil, err
	}
	list := make([]vk.LayerProperties, count)
	ret = vk.EnumerateInstanceLayerProperties(&count, list)
	if err := checkResult(ret, "enumerate instance layers"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// checkExisting splits wanted into the names present in actual and the missing ones.
// Duplicates in wanted are reported once.
func checkExisting(actual, wanted []string) (existing, missing []string) {
	have := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		have[trimNull(name)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(wanted))
	for _, name := range wanted {
		name = trimNull(name)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := have[name]; ok {
			existing = append(existing, name)
		} else {
			missing = append(missing, name)
		}
	}
	return existing, missing
}

func trimNull(s string) string {
	return strings.TrimRight(s, "\x00")
}

// safeString null-terminates s for the C side.
func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}
