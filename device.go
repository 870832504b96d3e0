package hephaistos

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/slog"
)

const swapchainExtension = "VK_KHR_swapchain"

// ResourceFactory creates the GPU resources of a device.
type ResourceFactory interface {
	CreateBuffer(desc BufferDesc, initial []byte) (*Buffer, error)
	CreateImage(desc ImageDesc, mips [][]byte) (*Image, error)
	CreateRenderPass(desc RenderPassDesc) (*RenderPass, error)
	CreateCommandBuffer() (*CommandBuffer, error)
}

var _ ResourceFactory = (*Device)(nil)

// Device is the logical device shared by every resource created from it.
// It owns the memory allocator and the single graphics queue.
//
// Submission and presentation through the device serialize on an internal
// queue lock. Code using Queue directly must hold LockQueue.
type Device struct {
	Raw              vk.Device
	Adapter          *Adapter
	Queue            vk.Queue
	QueueFamilyIndex uint32
	Allocator        *Allocator

	logger  *slog.Logger
	cfg     Config
	queueMu sync.Mutex
	// setupCB records image uploads; setupMu serializes them.
	setupMu sync.Mutex
	setupCB *CommandBuffer
	live    atomic.Int64
}

// RequestDevice creates the logical device on the adapter's queue family,
// with imageless framebuffers enabled, and wraps it for frame pacing.
func (a *Adapter) RequestDevice(cfg Config) (*RenderDevice, error) {
	available, err := DeviceExtensions(a.Physical)
	if err != nil {
		return nil, err
	}
	wanted := append([]string{swapchainExtension}, cfg.DeviceExtensions...)
	extensions, missing := checkExisting(available, wanted)
	if len(missing) > 0 {
		a.logger.Warn("device extensions unavailable", slog.Any("extensions", missing))
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: a.QueueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	var device vk.Device
	ret := vk.CreateDevice(a.Physical, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:                vk.StructureTypePhysicalDeviceVulkan12Features,
			ImagelessFramebuffer: vk.True,
		}),
	}, nil, &device)
	if err := checkResult(ret, "create device"); err != nil {
		return nil, err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, a.QueueFamilyIndex, 0, &queue)

	dev := &Device{
		Raw:              device,
		Adapter:          a,
		Queue:            queue,
		QueueFamilyIndex: a.QueueFamilyIndex,
		logger:           a.logger,
		cfg:              cfg,
	}
	dev.Allocator = newAllocator(deviceMemory{device: device},
		memoryTypeFlags(a.MemoryProperties), cfg, a.logger)

	dev.setupCB, err = newCommandBuffer(device, a.QueueFamilyIndex)
	if err != nil {
		vk.DestroyDevice(device, nil)
		return nil, err
	}
	render, err := newRenderDevice(dev)
	if err != nil {
		dev.setupCB.Destroy()
		vk.DestroyDevice(device, nil)
		return nil, err
	}
	a.logger.Info("created device", slog.Int("extensions", len(extensions)))
	return render, nil
}

func (d *Device) Logger() *slog.Logger {
	return d.logger
}

func (d *Device) track() {
	d.live.Add(1)
}

func (d *Device) untrack() {
	d.live.Add(-1)
}

// LiveResources is the number of resources created from d and not yet destroyed.
func (d *Device) LiveResources() int {
	return int(d.live.Load())
}

// LockQueue takes the queue lock and returns its release.
func (d *Device) LockQueue() (unlock func()) {
	d.queueMu.Lock()
	return d.queueMu.Unlock
}

// Submit submits to the graphics queue, signaling fence when all work completes.
func (d *Device) Submit(submits []vk.SubmitInfo, fence vk.Fence) error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	ret := vk.QueueSubmit(d.Queue, uint32(len(submits)), submits, fence)
	return checkResult(ret, "queue submit")
}

func (d *Device) present(info *vk.PresentInfo) vk.Result {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return vk.QueuePresent(d.Queue, info)
}

// WaitIdle blocks until the device has finished all work.
func (d *Device) WaitIdle() error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return checkResult(vk.DeviceWaitIdle(d.Raw), "device wait idle")
}

// CreateCommandBuffer creates a command buffer on the graphics queue family.
func (d *Device) CreateCommandBuffer() (*CommandBuffer, error) {
	cb, err := newCommandBuffer(d.Raw, d.QueueFamilyIndex)
	if err != nil {
		return nil, err
	}
	cb.owner = d
	d.track()
	return cb, nil
}

// Destroy releases the device. It fails with ErrResourcesAlive while
// resources created from it still exist.
func (d *Device) Destroy() error {
	if d.Raw == nil {
		return nil
	}
	if n := d.LiveResources(); n > 0 {
		return errors.Wrapf(ErrResourcesAlive, "%d resources", n)
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	d.setupCB.Destroy()
	d.Allocator.Destroy()
	vk.DestroyDevice(d.Raw, nil)
	d.Raw = nil
	return nil
}
