// Command hephclear opens a window and clears it every frame, recreating the
// swapchain whenever the window stops matching it.
package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/andewx/hephaistos"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/slog"
)

const (
	width  = 800
	height = 600
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	flag.Parse()

	cfg := hephaistos.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = hephaistos.LoadConfig(*configPath); err != nil {
			slog.Error("load config", slog.Any("err", err))
			os.Exit(1)
		}
	}
	logger := hephaistos.NewLogger(os.Stderr, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("hephclear failed", slog.Any("err", err), slog.Bool("fatal", hephaistos.IsFatal(err)))
		os.Exit(1)
	}
}

func run(cfg hephaistos.Config, logger *slog.Logger) error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	defer glfw.Terminate()
	if !glfw.VulkanSupported() {
		return hephaistos.ErrVulkanUnavailable
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(width, height, cfg.AppName, nil, nil)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	defer window.Destroy()

	if err := hephaistos.InitLoader(glfw.GetVulkanGetInstanceProcAddress()); err != nil {
		return err
	}
	instance, err := hephaistos.NewInstance(cfg, window, logger)
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := instance.CreateSurface(window)
	if err != nil {
		return err
	}
	defer surface.Destroy()

	adapter, err := instance.RequestAdapter(hephaistos.AdapterDesc{CompatibleSurface: surface})
	if err != nil {
		return err
	}
	device, err := adapter.RequestDevice(cfg)
	if err != nil {
		return err
	}
	defer func() {
		// the swapchain is tracked by the device and must go first
		surface.Destroy()
		if err := device.Destroy(); err != nil {
			logger.Error("destroy device", slog.Any("err", err))
		}
	}()

	if err := surface.CreateSwapchain(device, adapter); err != nil {
		return err
	}
	if err := uploadAssets(device); err != nil {
		return err
	}

	pass, err := device.CreateRenderPass(hephaistos.RenderPassDesc{
		ColorAttachments: []vk.AttachmentDescription{{
			Format:         surface.Swapchain().Format.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		}},
	})
	if err != nil {
		return err
	}
	defer pass.Destroy()

	var frameIndex uint64
	for !window.ShouldClose() {
		glfw.PollEvents()
		if w, h := window.GetFramebufferSize(); w == 0 || h == 0 {
			continue
		}
		err := drawFrame(device, surface, pass, frameIndex)
		if hephaistos.IsStale(err) {
			logger.Debug("swapchain stale, recreating")
			if err := surface.CreateSwapchain(device, adapter); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		frameIndex++
	}
	return device.WaitIdle()
}

// uploadAssets pushes a vertex buffer and a two-mip texture through the
// upload paths and releases them again.
func uploadAssets(device *hephaistos.RenderDevice) error {
	vertices := make([]byte, 64)
	for i := range vertices {
		vertices[i] = byte(i)
	}
	buffer, err := device.CreateBuffer(hephaistos.BufferDesc{
		Label:    "vertices",
		Size:     uint64(len(vertices)),
		Usage:    vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		Location: hephaistos.MemoryGpuOnly,
	}, vertices)
	if err != nil {
		return err
	}
	defer buffer.Destroy()

	desc := hephaistos.NewImageDesc2D(vk.FormatR8g8b8a8Unorm, 4, 4)
	desc.Label = "checker"
	desc.MipLevels = 2
	mip0 := make([]byte, 4*4*4)
	mip1 := make([]byte, 2*2*4)
	for i := range mip0 {
		mip0[i] = 0xff
	}
	texture, err := device.CreateImage(desc, [][]byte{mip0, mip1})
	if err != nil {
		return err
	}
	defer texture.Destroy()
	_, err = texture.View(hephaistos.ImageViewDesc{})
	return err
}

func drawFrame(device *hephaistos.RenderDevice, surface *hephaistos.Surface, pass *hephaistos.RenderPass, frameIndex uint64) error {
	image, err := surface.AcquireNextImage()
	if err != nil {
		return err
	}
	frame, err := device.BeginFrame()
	if err != nil {
		return err
	}
	defer device.FinishFrame(frame)

	cb := frame.CommandBuffer
	if err := cb.Begin(vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)); err != nil {
		return err
	}
	attachment, err := image.Image.Attachment(hephaistos.ImageViewDesc{})
	if err != nil {
		return err
	}
	sc := surface.Swapchain()
	shade := float32(frameIndex%240) / 240
	err = pass.Begin(cb.Raw, hephaistos.RenderPassBeginDesc{
		ColorAttachments: []hephaistos.RenderPassAttachment{attachment},
		Area: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: vk.Extent2D{Width: sc.Width, Height: sc.Height},
		},
		ClearValues: []vk.ClearValue{vk.NewClearValue([]float32{0.1, shade, 0.3, 1})},
	})
	if err != nil {
		return err
	}
	pass.End(cb.Raw)
	if err := cb.End(); err != nil {
		return err
	}

	err = device.SubmitFrame(frame, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{image.AcquireSemaphore},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Raw},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{image.RenderingFinishedSemaphore},
	}})
	if err != nil {
		return err
	}
	return surface.PresentImage(image)
}
