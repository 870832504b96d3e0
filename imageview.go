package hephaistos

import (
	vk "github.com/goki/vulkan"
)

// ImageViewDesc selects a view of an image. It is a comparable value and is
// used directly as the view cache key. Zero fields fall back to the image:
// no view type means the image's own, FormatUndefined its format, a zero
// aspect mask the format's aspects and a zero level count all of its mips.
type ImageViewDesc struct {
	ViewType     vk.ImageViewType
	HasViewType  bool
	Format       vk.Format
	AspectMask   vk.ImageAspectFlags
	BaseMipLevel uint32
	LevelCount   uint32
}

func viewTypeFor(t ImageType) vk.ImageViewType {
	switch t {
	case Tex1d:
		return vk.ImageViewType1d
	case Tex1dArray:
		return vk.ImageViewType1dArray
	case Tex2dArray:
		return vk.ImageViewType2dArray
	case Tex3d:
		return vk.ImageViewType3d
	case Cube:
		return vk.ImageViewTypeCube
	case CubeArray:
		return vk.ImageViewTypeCubeArray
	default:
		return vk.ImageViewType2d
	}
}

func viewLayerCount(t ImageType) uint32 {
	if t == Cube || t == CubeArray {
		return 6
	}
	return 1
}

func (img *Image) viewCreateInfo(desc ImageViewDesc) vk.ImageViewCreateInfo {
	viewType := viewTypeFor(img.Desc.Type)
	if desc.HasViewType {
		viewType = desc.ViewType
	}
	format := desc.Format
	if format == vk.FormatUndefined {
		format = img.Desc.Format
	}
	aspect := desc.AspectMask
	if aspect == 0 {
		aspect = ImageAspectMaskFromFormat(format)
	}
	levels := desc.LevelCount
	if levels == 0 {
		levels = vk.RemainingMipLevels
		if desc.BaseMipLevel < img.Desc.MipLevels {
			levels = img.Desc.MipLevels - desc.BaseMipLevel
		}
	}
	return vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Raw,
		ViewType: viewType,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   desc.BaseMipLevel,
			LevelCount:     levels,
			BaseArrayLayer: 0,
			LayerCount:     viewLayerCount(img.Desc.Type),
		},
	}
}

// View returns the view for desc, creating it on first use.
func (img *Image) View(desc ImageViewDesc) (vk.ImageView, error) {
	return img.views.getOrCreate(desc, func() (vk.ImageView, error) {
		info := img.viewCreateInfo(desc)
		return img.viewer.createImageView(&info)
	})
}

// Attachment returns the view for desc described for render pass begin.
func (img *Image) Attachment(desc ImageViewDesc) (RenderPassAttachment, error) {
	view, err := img.View(desc)
	if err != nil {
		return RenderPassAttachment{}, err
	}
	return RenderPassAttachment{
		View: view,
		Desc: FramebufferAttachmentDesc{
			Flags:      img.Desc.Flags,
			Usage:      img.Desc.Usage,
			LayerCount: viewLayerCount(img.Desc.Type),
		},
	}, nil
}

func (d *Device) createImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(d.Raw, info, nil, &view)
	if err := checkResult(ret, "create image view"); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (d *Device) destroyImageView(view vk.ImageView) {
	vk.DestroyImageView(d.Raw, view, nil)
}
