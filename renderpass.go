package hephaistos

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// RenderPassDesc fixes the attachment shape of a single-subpass graphics
// pass. Color attachment i is referenced at index i and the depth
// attachment, if any, after the colors.
type RenderPassDesc struct {
	ColorAttachments []vk.AttachmentDescription
	DepthAttachment  *vk.AttachmentDescription
}

// RenderPassAttachment is a concrete view bound at render pass begin.
type RenderPassAttachment struct {
	View vk.ImageView
	Desc FramebufferAttachmentDesc
}

// RenderPassBeginDesc supplies the views, area and clear values of one
// render pass instance.
type RenderPassBeginDesc struct {
	ColorAttachments []RenderPassAttachment
	DepthAttachment  *RenderPassAttachment
	Area             vk.Rect2D
	ClearValues      []vk.ClearValue
}

// RenderPass owns the pass object and its framebuffer cache.
type RenderPass struct {
	Raw          vk.RenderPass
	Desc         RenderPassDesc
	Framebuffers *FramebufferCache

	device *Device
}

func renderPassCreateInfo(desc RenderPassDesc) vk.RenderPassCreateInfo {
	attachments := make([]vk.AttachmentDescription, 0, len(desc.ColorAttachments)+1)
	attachments = append(attachments, desc.ColorAttachments...)

	colorRefs := make([]vk.AttachmentReference, len(desc.ColorAttachments))
	for i := range colorRefs {
		colorRefs[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if desc.DepthAttachment != nil {
		attachments = append(attachments, *desc.DepthAttachment)
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(desc.ColorAttachments)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}
	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
}

// CreateRenderPass creates a render pass with an empty framebuffer cache.
func (d *Device) CreateRenderPass(desc RenderPassDesc) (*RenderPass, error) {
	if len(desc.ColorAttachments) > MaxColorAttachments {
		return nil, errors.Newf("%d color attachments, at most %d supported",
			len(desc.ColorAttachments), MaxColorAttachments)
	}
	info := renderPassCreateInfo(desc)
	var pass vk.RenderPass
	ret := vk.CreateRenderPass(d.Raw, &info, nil, &pass)
	if err := checkResult(ret, "create render pass"); err != nil {
		return nil, err
	}
	d.track()
	return &RenderPass{
		Raw:          pass,
		Desc:         desc,
		Framebuffers: newFramebufferCache(pass, desc, d),
		device:       d,
	}, nil
}

func (rp *RenderPass) framebufferKey(desc RenderPassBeginDesc) (framebufferKey, error) {
	color := make([]FramebufferAttachmentDesc, len(desc.ColorAttachments))
	for i, a := range desc.ColorAttachments {
		color[i] = a.Desc
	}
	var depth *FramebufferAttachmentDesc
	if desc.DepthAttachment != nil {
		depth = &desc.DepthAttachment.Desc
	}
	return rp.Framebuffers.key(desc.Area.Extent.Width, desc.Area.Extent.Height, color, depth)
}

// Begin starts the pass on cb with the concrete views of desc, using the
// cached framebuffer for their shape.
func (rp *RenderPass) Begin(cb vk.CommandBuffer, desc RenderPassBeginDesc) error {
	key, err := rp.framebufferKey(desc)
	if err != nil {
		return err
	}
	fb, err := rp.Framebuffers.getOrCreate(key)
	if err != nil {
		return err
	}

	views := make([]vk.ImageView, 0, key.count)
	for _, a := range desc.ColorAttachments {
		views = append(views, a.View)
	}
	if desc.DepthAttachment != nil {
		views = append(views, desc.DepthAttachment.View)
	}
	attachments := vk.RenderPassAttachmentBeginInfo{
		SType:           vk.StructureTypeRenderPassAttachmentBeginInfo,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
	}
	ref, _ := attachments.PassRef()
	defer attachments.Free()

	vk.CmdBeginRenderPass(cb, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		PNext:           unsafe.Pointer(ref),
		RenderPass:      rp.Raw,
		Framebuffer:     fb,
		RenderArea:      desc.Area,
		ClearValueCount: uint32(len(desc.ClearValues)),
		PClearValues:    desc.ClearValues,
	}, vk.SubpassContentsInline)
	return nil
}

func (rp *RenderPass) End(cb vk.CommandBuffer) {
	vk.CmdEndRenderPass(cb)
}

// Destroy releases every cached framebuffer, then the pass.
func (rp *RenderPass) Destroy() {
	if rp.Raw == vk.NullRenderPass {
		return
	}
	rp.Framebuffers.destroy()
	vk.DestroyRenderPass(rp.device.Raw, rp.Raw, nil)
	rp.Raw = vk.NullRenderPass
	rp.device.untrack()
}
