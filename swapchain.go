package hephaistos

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/slog"
)

// SwapchainImage is an acquired presentation image. It is valid from
// AcquireNextImage until it is passed to PresentImage.
type SwapchainImage struct {
	Image *Image
	// Index of the image in the swapchain.
	Index uint32
	// Slot is the semaphore pair used for this acquisition.
	Slot                       uint32
	AcquireSemaphore           vk.Semaphore
	RenderingFinishedSemaphore vk.Semaphore
}

// Swapchain is the presentation image ring of a surface. It holds one
// acquire and one rendering-finished semaphore per image and rotates over
// them on every successful acquire.
type Swapchain struct {
	Raw    vk.Swapchain
	Format vk.SurfaceFormat
	Width  uint32
	Height uint32
	Images []*Image

	acquireSemaphores           []vk.Semaphore
	renderingFinishedSemaphores []vk.Semaphore

	mu   sync.Mutex
	next uint32

	acquire func(semaphore vk.Semaphore) (uint32, vk.Result)
	present func(info *vk.PresentInfo) vk.Result
	device  *Device
}

// chooseImageCount is max(want, min) clamped to max when the surface
// declares one.
func chooseImageCount(want, min, max uint32) uint32 {
	count := want
	if count < min {
		count = min
	}
	if max > 0 && count > max {
		count = max
	}
	return count
}

// choosePresentMode prefers mailbox when asked and available. FIFO is
// always supported.
func choosePresentMode(modes []vk.PresentMode, preferMailbox bool) vk.PresentMode {
	if preferMailbox {
		for _, m := range modes {
			if m == vk.PresentModeMailbox {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

func chooseTransform(supported vk.SurfaceTransformFlags, current vk.SurfaceTransformFlagBits) vk.SurfaceTransformFlagBits {
	if supported&vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit) != 0 {
		return vk.SurfaceTransformIdentityBit
	}
	return current
}

func chooseCompositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

type extentLimits struct {
	currentWidth, currentHeight uint32
	minWidth, minHeight         uint32
	maxWidth, maxHeight         uint32
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// chooseExtent uses the surface's current extent, or, when the surface
// leaves it to the swapchain, the framebuffer size clamped to the limits.
func chooseExtent(l extentLimits, fbWidth, fbHeight int) (uint32, uint32) {
	if l.currentWidth != vk.MaxUint32 {
		return l.currentWidth, l.currentHeight
	}
	if fbWidth < 0 {
		fbWidth = 0
	}
	if fbHeight < 0 {
		fbHeight = 0
	}
	return clamp(uint32(fbWidth), l.minWidth, l.maxWidth), clamp(uint32(fbHeight), l.minHeight, l.maxHeight)
}

// presentResult maps acquire and present results: staleness is
// recoverable, everything else but success is fatal.
func presentResult(ret vk.Result, op string) error {
	switch ret {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return errors.Wrapf(ErrSwapchainStale, "%s: %s", op, resultString(ret))
	default:
		return checkResult(ret, op)
	}
}

func surfaceFormats(gpu vk.PhysicalDevice, surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	ret := vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, nil)
	if err := checkResult(ret, "get surface formats"); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	ret = vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, formats)
	if err := checkResult(ret, "get surface formats"); err != nil {
		return nil, err
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func presentModes(gpu vk.PhysicalDevice, surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	ret := vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, nil)
	if err := checkResult(ret, "get present modes"); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	ret = vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, modes)
	if err := checkResult(ret, "get present modes"); err != nil {
		return nil, err
	}
	return modes, nil
}

func newSwapchain(dev *Device, surface *Surface, adapter *Adapter, old vk.Swapchain) (*Swapchain, error) {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(adapter.Physical, surface.Raw, &caps)
	if err := checkResult(ret, "get surface capabilities"); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	formats, err := surfaceFormats(adapter.Physical, surface.Raw)
	if err != nil {
		return nil, err
	}
	if len(formats) == 0 {
		return nil, fatalf(errors.New("surface reports no formats"), "create swapchain")
	}
	format := formats[0]
	modes, err := presentModes(adapter.Physical, surface.Raw)
	if err != nil {
		return nil, err
	}

	fbWidth, fbHeight := surface.provider.GetFramebufferSize()
	width, height := chooseExtent(extentLimits{
		currentWidth:  caps.CurrentExtent.Width,
		currentHeight: caps.CurrentExtent.Height,
		minWidth:      caps.MinImageExtent.Width,
		minHeight:     caps.MinImageExtent.Height,
		maxWidth:      caps.MaxImageExtent.Width,
		maxHeight:     caps.MaxImageExtent.Height,
	}, fbWidth, fbHeight)
	minImages := chooseImageCount(dev.cfg.SwapchainImages, caps.MinImageCount, caps.MaxImageCount)
	mode := choosePresentMode(modes, dev.cfg.PreferMailbox)

	var raw vk.Swapchain
	ret = vk.CreateSwapchain(dev.Raw, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface.Raw,
		MinImageCount:    minImages,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      vk.Extent2D{Width: width, Height: height},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     chooseTransform(caps.SupportedTransforms, caps.CurrentTransform),
		CompositeAlpha:   chooseCompositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:      mode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}, nil, &raw)
	if err := checkResult(ret, "create swapchain"); err != nil {
		return nil, err
	}

	var count uint32
	ret = vk.GetSwapchainImages(dev.Raw, raw, &count, nil)
	if err := checkResult(ret, "get swapchain images"); err != nil {
		vk.DestroySwapchain(dev.Raw, raw, nil)
		return nil, err
	}
	handles := make([]vk.Image, count)
	ret = vk.GetSwapchainImages(dev.Raw, raw, &count, handles)
	if err := checkResult(ret, "get swapchain images"); err != nil {
		vk.DestroySwapchain(dev.Raw, raw, nil)
		return nil, err
	}

	sc := &Swapchain{
		Raw:    raw,
		Format: format,
		Width:  width,
		Height: height,
		device: dev,
	}
	sc.acquire = func(semaphore vk.Semaphore) (uint32, vk.Result) {
		var index uint32
		ret := vk.AcquireNextImage(dev.Raw, sc.Raw, vk.MaxUint64, semaphore, vk.NullFence, &index)
		return index, ret
	}
	sc.present = dev.present

	desc := ImageDesc{
		Label:         "swapchain",
		Type:          Tex2d,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		Format:        format.Format,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		Tiling:        vk.ImageTilingOptimal,
		MipLevels:     1,
		ArrayElements: 1,
	}
	for _, h := range handles[:count] {
		img := newImage(h, desc, dev)
		img.device = dev
		img.swapchain = true
		sc.Images = append(sc.Images, img)

		acquire, err := dev.createSemaphore()
		if err != nil {
			sc.destroy()
			return nil, err
		}
		sc.acquireSemaphores = append(sc.acquireSemaphores, acquire)
		finished, err := dev.createSemaphore()
		if err != nil {
			sc.destroy()
			return nil, err
		}
		sc.renderingFinishedSemaphores = append(sc.renderingFinishedSemaphores, finished)
	}
	dev.track()
	dev.logger.Info("created swapchain",
		slog.Int("images", len(sc.Images)),
		slog.Int("width", int(width)),
		slog.Int("height", int(height)),
		slog.Int("presentMode", int(mode)))
	return sc, nil
}

func (d *Device) createSemaphore() (vk.Semaphore, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(d.Raw, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if err := checkResult(ret, "create semaphore"); err != nil {
		return vk.NullSemaphore, err
	}
	return sem, nil
}

// AcquireNextImage blocks until an image is available. When the swapchain
// no longer matches its surface it returns ErrSwapchainStale and the
// rotation does not advance.
func (s *Swapchain) AcquireNextImage() (*SwapchainImage, error) {
	s.mu.Lock()
	slot := s.next
	s.mu.Unlock()

	acquire := s.acquireSemaphores[slot]
	index, ret := s.acquire(acquire)
	if err := presentResult(ret, "acquire next image"); err != nil {
		return nil, err
	}
	if int(index) >= len(s.Images) {
		return nil, fatalf(errors.Newf("image index %d of %d", index, len(s.Images)), "acquire next image")
	}

	s.mu.Lock()
	s.next = (slot + 1) % uint32(len(s.acquireSemaphores))
	s.mu.Unlock()

	return &SwapchainImage{
		Image:                      s.Images[index],
		Index:                      index,
		Slot:                       slot,
		AcquireSemaphore:           acquire,
		RenderingFinishedSemaphore: s.renderingFinishedSemaphores[slot],
	}, nil
}

// PresentImage queues img for presentation once its rendering-finished
// semaphore is signaled.
func (s *Swapchain) PresentImage(img *SwapchainImage) error {
	ret := s.present(&vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{img.RenderingFinishedSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.Raw},
		PImageIndices:      []uint32{img.Index},
	})
	return presentResult(ret, "present image")
}

func (s *Swapchain) destroy() {
	for _, img := range s.Images {
		img.Destroy()
	}
	for _, sem := range s.acquireSemaphores {
		vk.DestroySemaphore(s.device.Raw, sem, nil)
	}
	for _, sem := range s.renderingFinishedSemaphores {
		vk.DestroySemaphore(s.device.Raw, sem, nil)
	}
	s.Images = nil
	s.acquireSemaphores = nil
	s.renderingFinishedSemaphores = nil
	vk.DestroySwapchain(s.device.Raw, s.Raw, nil)
	s.Raw = vk.NullSwapchain
}

// Destroy releases the views of the swapchain images, the semaphores and
// the swapchain. The images belong to the presentation engine.
func (s *Swapchain) Destroy() {
	if s.Raw == vk.NullSwapchain {
		return
	}
	s.destroy()
	s.device.untrack()
}
