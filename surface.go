package hephaistos

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// SurfaceProvider is a native window that can host a Vulkan surface.
// *glfw.Window implements it.
type SurfaceProvider interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetRequiredInstanceExtensions() []string
	GetFramebufferSize() (width, height int)
}

// Surface is a presentation target with an optional swapchain.
type Surface struct {
	Raw vk.Surface

	provider  SurfaceProvider
	instance  *Instance
	swapchain *Swapchain
}

// CreateSurface creates a surface for provider's window.
func (inst *Instance) CreateSurface(provider SurfaceProvider) (*Surface, error) {
	ptr, err := provider.CreateWindowSurface(inst.Raw, nil)
	if err != nil {
		return nil, fatalf(err, "create window surface")
	}
	return &Surface{
		Raw:      vk.SurfaceFromPointer(ptr),
		provider: provider,
		instance: inst,
	}, nil
}

// CreateSwapchain creates the swapchain for dev, replacing an existing one.
// A replaced swapchain is handed to the driver as the old swapchain and
// destroyed once the device is idle.
func (s *Surface) CreateSwapchain(dev *RenderDevice, adapter *Adapter) error {
	old := vk.NullSwapchain
	if s.swapchain != nil {
		if err := dev.WaitIdle(); err != nil {
			return err
		}
		old = s.swapchain.Raw
	}
	sc, err := newSwapchain(dev.Device, s, adapter, old)
	if err != nil {
		return err
	}
	if s.swapchain != nil {
		s.swapchain.Destroy()
	}
	s.swapchain = sc
	return nil
}

// Swapchain returns the current swapchain, or nil before CreateSwapchain.
func (s *Surface) Swapchain() *Swapchain {
	return s.swapchain
}

var errNoSwapchain = errors.New("surface has no swapchain")

// AcquireNextImage acquires from the current swapchain. See Swapchain.AcquireNextImage.
func (s *Surface) AcquireNextImage() (*SwapchainImage, error) {
	if s.swapchain == nil {
		return nil, errNoSwapchain
	}
	return s.swapchain.AcquireNextImage()
}

func (s *Surface) PresentImage(img *SwapchainImage) error {
	if s.swapchain == nil {
		return errNoSwapchain
	}
	return s.swapchain.PresentImage(img)
}

// Destroy releases the swapchain, then the surface.
func (s *Surface) Destroy() {
	if s.swapchain != nil {
		s.swapchain.Destroy()
		s.swapchain = nil
	}
	if s.Raw != vk.NullSurface {
		vk.DestroySurface(s.instance.Raw, s.Raw, nil)
		s.Raw = vk.NullSurface
	}
}
