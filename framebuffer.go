package hephaistos

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// MaxColorAttachments bounds the color attachments of one render pass.
const MaxColorAttachments = 8

// FramebufferAttachmentDesc is the image shape an imageless framebuffer is
// created for.
type FramebufferAttachmentDesc struct {
	Flags      vk.ImageCreateFlags
	Usage      vk.ImageUsageFlags
	LayerCount uint32
}

// framebufferKey identifies a framebuffer by extent and attachment shapes,
// colors first and depth last. count entries of attachments are used.
type framebufferKey struct {
	width, height uint32
	count         int
	attachments   [MaxColorAttachments + 1]FramebufferAttachmentDesc
}

func (k framebufferKey) shapes() []FramebufferAttachmentDesc {
	return k.attachments[:k.count]
}

// framebufferFactory creates and destroys imageless framebuffers.
type framebufferFactory interface {
	createFramebuffer(pass vk.RenderPass, key framebufferKey, formats []vk.Format) (vk.Framebuffer, error)
	destroyFramebuffer(fb vk.Framebuffer)
}

// FramebufferCache memoizes the imageless framebuffers of one render pass.
// Entries live until the cache is destroyed with its render pass.
type FramebufferCache struct {
	renderPass vk.RenderPass
	// formats of the render pass attachments, colors then depth
	formats    []vk.Format
	colorCount int
	hasDepth   bool

	factory framebufferFactory
	entries *handleCache[framebufferKey, vk.Framebuffer]
}

func newFramebufferCache(pass vk.RenderPass, desc RenderPassDesc, factory framebufferFactory) *FramebufferCache {
	formats := make([]vk.Format, 0, len(desc.ColorAttachments)+1)
	for _, a := range desc.ColorAttachments {
		formats = append(formats, a.Format)
	}
	if desc.DepthAttachment != nil {
		formats = append(formats, desc.DepthAttachment.Format)
	}
	return &FramebufferCache{
		renderPass: pass,
		formats:    formats,
		colorCount: len(desc.ColorAttachments),
		hasDepth:   desc.DepthAttachment != nil,
		factory:    factory,
		entries:    newHandleCache[framebufferKey, vk.Framebuffer](),
	}
}

// key checks the attachment set against the render pass shape.
func (c *FramebufferCache) key(width, height uint32, color []FramebufferAttachmentDesc, depth *FramebufferAttachmentDesc) (framebufferKey, error) {
	if len(color) != c.colorCount || (depth != nil) != c.hasDepth {
		return framebufferKey{}, errors.Wrapf(ErrAttachmentMismatch,
			"got %d color attachments (depth %t), render pass has %d (depth %t)",
			len(color), depth != nil, c.colorCount, c.hasDepth)
	}
	k := framebufferKey{width: width, height: height}
	for _, a := range color {
		k.attachments[k.count] = a
		k.count++
	}
	if depth != nil {
		k.attachments[k.count] = *depth
		k.count++
	}
	return k, nil
}

func (c *FramebufferCache) getOrCreate(k framebufferKey) (vk.Framebuffer, error) {
	return c.entries.getOrCreate(k, func() (vk.Framebuffer, error) {
		return c.factory.createFramebuffer(c.renderPass, k, c.formats)
	})
}

// Len is the number of cached framebuffers.
func (c *FramebufferCache) Len() int {
	return c.entries.len()
}

func (c *FramebufferCache) destroy() {
	c.entries.drain(c.factory.destroyFramebuffer)
}

func (d *Device) createFramebuffer(pass vk.RenderPass, key framebufferKey, formats []vk.Format) (vk.Framebuffer, error) {
	shapes := key.shapes()
	images := make([]vk.FramebufferAttachmentImageInfo, len(shapes))
	for i, shape := range shapes {
		images[i] = vk.FramebufferAttachmentImageInfo{
			SType:           vk.StructureTypeFramebufferAttachmentImageInfo,
			Flags:           shape.Flags,
			Usage:           shape.Usage,
			Width:           key.width,
			Height:          key.height,
			LayerCount:      shape.LayerCount,
			ViewFormatCount: 1,
			PViewFormats:    []vk.Format{formats[i]},
		}
	}
	attachments := vk.FramebufferAttachmentsCreateInfo{
		SType:                    vk.StructureTypeFramebufferAttachmentsCreateInfo,
		AttachmentImageInfoCount: uint32(len(images)),
		PAttachmentImageInfos:    images,
	}
	ref, _ := attachments.PassRef()
	defer attachments.Free()

	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.Raw, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		PNext:           unsafe.Pointer(ref),
		Flags:           vk.FramebufferCreateFlags(vk.FramebufferCreateImagelessBit),
		RenderPass:      pass,
		AttachmentCount: uint32(len(images)),
		Width:           key.width,
		Height:          key.height,
		Layers:          1,
	}, nil, &fb)
	if err := checkResult(ret, "create framebuffer"); err != nil {
		return vk.NullFramebuffer, err
	}
	return fb, nil
}

func (d *Device) destroyFramebuffer(fb vk.Framebuffer) {
	vk.DestroyFramebuffer(d.Raw, fb, nil)
}
