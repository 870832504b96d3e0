package hephaistos

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/slog"
)

// AdapterDesc narrows adapter selection. A zero QueueFlags asks for graphics.
type AdapterDesc struct {
	CompatibleSurface *Surface
	QueueFlags        vk.QueueFlags
}

// Adapter is a physical device and the queue family chosen on it.
type Adapter struct {
	Physical         vk.PhysicalDevice
	QueueFamilyIndex uint32
	Properties       vk.PhysicalDeviceProperties
	MemoryProperties vk.PhysicalDeviceMemoryProperties

	instance *Instance
	logger   *slog.Logger
}

// Name is the driver-reported device name.
func (a *Adapter) Name() string {
	return vk.ToString(a.Properties.DeviceName[:])
}

func (a *Adapter) Type() vk.PhysicalDeviceType {
	return a.Properties.DeviceType
}

// adapterRank orders device types, lower is preferred.
func adapterRank(t vk.PhysicalDeviceType) int {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 0
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 1
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 2
	case vk.PhysicalDeviceTypeCpu:
		return 3
	default:
		return 4
	}
}

type adapterCandidate struct {
	deviceType vk.PhysicalDeviceType
	families   []queueFamily
}

// pickAdapter returns the index of the best-ranked candidate with a suitable
// queue family, and that family. Ties keep enumeration order.
func pickAdapter(candidates []adapterCandidate, want vk.QueueFlags, needPresent bool) (int, uint32, bool) {
	best, bestFamily, bestRank := -1, uint32(0), 0
	for i, c := range candidates {
		family, ok := findQueueFamily(c.families, want, needPresent)
		if !ok {
			continue
		}
		rank := adapterRank(c.deviceType)
		if best < 0 || rank < bestRank {
			best, bestFamily, bestRank = i, family, rank
		}
	}
	return best, bestFamily, best >= 0
}

func (inst *Instance) physicalDevices() ([]vk.PhysicalDevice, error) {
	var count uint32
	ret := vk.EnumeratePhysicalDevices(inst.Raw, &count, nil)
	if err := checkResult(ret, "enumerate physical devices"); err != nil {
		return nil, err
	}
	gpus := make([]vk.PhysicalDevice, count)
	ret = vk.EnumeratePhysicalDevices(inst.Raw, &count, gpus)
	if err := checkResult(ret, "enumerate physical devices"); err != nil {
		return nil, err
	}
	return gpus[:count], nil
}

// RequestAdapter picks a physical device: discrete over integrated over
// virtual over CPU over anything else, among those with a queue family
// supporting desc.QueueFlags and presentation to desc.CompatibleSurface.
func (inst *Instance) RequestAdapter(desc AdapterDesc) (*Adapter, error) {
	want := desc.QueueFlags
	if want == 0 {
		want = vk.QueueFlags(vk.QueueGraphicsBit)
	}
	surface := vk.NullSurface
	if desc.CompatibleSurface != nil {
		surface = desc.CompatibleSurface.Raw
	}

	gpus, err := inst.physicalDevices()
	if err != nil {
		return nil, err
	}
	candidates := make([]adapterCandidate, len(gpus))
	props := make([]vk.PhysicalDeviceProperties, len(gpus))
	for i, gpu := range gpus {
		vk.GetPhysicalDeviceProperties(gpu, &props[i])
		props[i].Deref()
		candidates[i] = adapterCandidate{
			deviceType: props[i].DeviceType,
			families:   queueFamilies(gpu, surface),
		}
	}

	index, family, ok := pickAdapter(candidates, want, surface != vk.NullSurface)
	if !ok {
		return nil, withKind(errors.Wrapf(ErrNoSuitableAdapter,
			"%d physical devices, none with queue flags %#x", len(gpus), want), ErrFatal)
	}

	adapter := &Adapter{
		Physical:         gpus[index],
		QueueFamilyIndex: family,
		Properties:       props[index],
		instance:         inst,
		logger:           inst.logger,
	}
	vk.GetPhysicalDeviceMemoryProperties(adapter.Physical, &adapter.MemoryProperties)
	adapter.MemoryProperties.Deref()
	inst.logger.Info("selected adapter",
		slog.String("name", adapter.Name()),
		slog.Int("type", int(adapter.Type())),
		slog.Int("queueFamily", int(family)))
	return adapter, nil
}
