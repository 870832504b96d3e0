package hephaistos

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// ImageType is the dimensionality and arrayness of an image.
type ImageType int

const (
	Tex1d ImageType = iota
	Tex1dArray
	Tex2d
	Tex2dArray
	Tex3d
	Cube
	CubeArray
)

func (t ImageType) String() string {
	switch t {
	case Tex1d:
		return "Tex1d"
	case Tex1dArray:
		return "Tex1dArray"
	case Tex2d:
		return "Tex2d"
	case Tex2dArray:
		return "Tex2dArray"
	case Tex3d:
		return "Tex3d"
	case Cube:
		return "Cube"
	case CubeArray:
		return "CubeArray"
	}
	return "Unknown"
}

// ImageDesc describes an image to create.
type ImageDesc struct {
	Label         string
	Type          ImageType
	Usage         vk.ImageUsageFlags
	Flags         vk.ImageCreateFlags
	Format        vk.Format
	Extent        vk.Extent3D
	Tiling        vk.ImageTiling
	MipLevels     uint32
	ArrayElements uint32
}

// NewImageDesc2D is a sampled single-mip 2D image.
func NewImageDesc2D(format vk.Format, width, height uint32) ImageDesc {
	return ImageDesc{
		Type:          Tex2d,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		Format:        format,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		Tiling:        vk.ImageTilingOptimal,
		MipLevels:     1,
		ArrayElements: 1,
	}
}

// imageCreateInfo shapes desc for its image type. Cube images get six layers
// per element and the cube-compatible flag.
func imageCreateInfo(desc ImageDesc, initialData bool) vk.ImageCreateInfo {
	elements := desc.ArrayElements
	if elements == 0 {
		elements = 1
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	width, height, depth := desc.Extent.Width, desc.Extent.Height, uint32(1)
	imageType := vk.ImageType2d
	layers := uint32(1)
	flags := desc.Flags

	switch desc.Type {
	case Tex1d:
		imageType, height = vk.ImageType1d, 1
	case Tex1dArray:
		imageType, height, layers = vk.ImageType1d, 1, elements
	case Tex2dArray:
		layers = elements
	case Tex3d:
		imageType, depth = vk.ImageType3d, desc.Extent.Depth
	case Cube:
		layers = 6
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	case CubeArray:
		layers = 6 * elements
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	usage := desc.Usage
	if initialData {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		Flags:         flags,
		ImageType:     imageType,
		Format:        desc.Format,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: depth},
		MipLevels:     mips,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        desc.Tiling,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
}

const stagingAlignment = 16

func mipExtent(dim, mip uint32) uint32 {
	if v := dim >> mip; v > 0 {
		return v
	}
	return 1
}

// stagedCopy is one buffer to image copy with the payload bytes it reads.
type stagedCopy struct {
	region vk.BufferImageCopy
	data   []byte
}

// stagingLayout packs the mip payloads into one staging buffer with one copy
// per mip and aspect, and returns the copies with the staging size. A
// combined depth stencil payload holds the depth plane followed by the
// stencil plane. Payloads shorter than their mip are rejected.
func stagingLayout(format vk.Format, extent vk.Extent3D, layers uint32, mask vk.ImageAspectFlags, mips [][]byte) ([]stagedCopy, uint64, error) {
	aspects := copyAspects(mask)
	var copies []stagedCopy
	var offset uint64
	for i, data := range mips {
		mip := uint32(i)
		size := vk.Extent3D{
			Width:  mipExtent(extent.Width, mip),
			Height: mipExtent(extent.Height, mip),
			Depth:  mipExtent(extent.Depth, mip),
		}
		var need uint64
		planes := make([]texelBlock, len(aspects))
		for j, aspect := range aspects {
			block, ok := copyBlock(format, aspect)
			if !ok {
				return nil, 0, errors.Newf("no copy size for format %d aspect %#x", format, aspect)
			}
			planes[j] = block
			need += block.planeSize(size, layers)
		}
		if uint64(len(data)) < need {
			return nil, 0, errors.Newf("mip %d holds %d bytes, needs %d", i, len(data), need)
		}

		var read uint64
		for j, aspect := range aspects {
			n := planes[j].planeSize(size, layers)
			offset = alignUp(offset, copyAlignment(planes[j]))
			copies = append(copies, stagedCopy{
				region: vk.BufferImageCopy{
					BufferOffset: vk.DeviceSize(offset),
					ImageSubresource: vk.ImageSubresourceLayers{
						AspectMask:     vk.ImageAspectFlags(aspect),
						MipLevel:       mip,
						BaseArrayLayer: 0,
						LayerCount:     layers,
					},
					ImageExtent: size,
				},
				data: data[read : read+n],
			})
			offset += n
			read += n
		}
	}
	return copies, offset, nil
}

// imageViewer creates and destroys the views cached on an image.
type imageViewer interface {
	createImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error)
	destroyImageView(view vk.ImageView)
}

// Image is a GPU image with its cache of derived views.
type Image struct {
	Raw        vk.Image
	Desc       ImageDesc
	Allocation *Allocation

	viewer imageViewer
	views  *handleCache[ImageViewDesc, vk.ImageView]
	device *Device
	// swapchain images are owned by the presentation engine
	swapchain bool
}

func newImage(raw vk.Image, desc ImageDesc, viewer imageViewer) *Image {
	return &Image{
		Raw:    raw,
		Desc:   desc,
		viewer: viewer,
		views:  newHandleCache[ImageViewDesc, vk.ImageView](),
	}
}

// CreateImage creates an image and uploads one payload per supplied mip
// level. Upload runs on the device setup command buffer and blocks until
// the device is idle. The image is left ready for shader reads.
func (d *Device) CreateImage(desc ImageDesc, mips [][]byte) (*Image, error) {
	info := imageCreateInfo(desc, len(mips) > 0)
	if uint32(len(mips)) > info.MipLevels {
		return nil, errors.Newf("image %q: %d mip payloads for %d levels", desc.Label, len(mips), info.MipLevels)
	}
	aspect := uploadAspect(desc.Format)
	var copies []stagedCopy
	var staged uint64
	if len(mips) > 0 {
		var err error
		copies, staged, err = stagingLayout(desc.Format, info.Extent, info.ArrayLayers, aspect, mips)
		if err != nil {
			return nil, errors.Wrapf(err, "image %q", desc.Label)
		}
	}
	// keep the stored description in step with what was created
	desc.MipLevels = info.MipLevels
	desc.Flags = info.Flags
	desc.Usage = info.Usage

	var raw vk.Image
	ret := vk.CreateImage(d.Raw, &info, nil, &raw)
	if err := checkResult(ret, "create image "+desc.Label); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.Raw, raw, &reqs)
	alloc, err := d.Allocator.Allocate(requestFromRequirements(desc.Label, reqs, MemoryGpuOnly,
		desc.Tiling == vk.ImageTilingLinear))
	if err != nil {
		vk.DestroyImage(d.Raw, raw, nil)
		return nil, err
	}
	ret = vk.BindImageMemory(d.Raw, raw, alloc.Memory, vk.DeviceSize(alloc.Offset))
	if err := checkResult(ret, "bind image memory "+desc.Label); err != nil {
		d.Allocator.Free(alloc)
		vk.DestroyImage(d.Raw, raw, nil)
		return nil, err
	}

	img := newImage(raw, desc, d)
	img.Allocation = alloc
	img.device = d
	d.track()

	if len(mips) > 0 {
		if err := d.uploadImage(img, aspect, copies, staged); err != nil {
			img.Destroy()
			return nil, err
		}
	}
	return img, nil
}

func uploadAspect(format vk.Format) vk.ImageAspectFlags {
	aspect, ok := ImageAspectMaskFromAccessTypeAndFormat(AccessTransferWrite, format)
	if !ok {
		aspect = ImageAspectMaskFromFormat(format)
	}
	return aspect
}

func (d *Device) uploadImage(img *Image, aspect vk.ImageAspectFlags, copies []stagedCopy, total uint64) error {
	staging, err := d.createBuffer(BufferDesc{
		Label:    img.Desc.Label + " staging",
		Size:     total,
		Usage:    vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		Location: MemoryCpuToGpu,
	})
	if err != nil {
		return err
	}
	defer staging.Destroy()
	mapped := staging.Mapped()
	regions := make([]vk.BufferImageCopy, len(copies))
	for i, c := range copies {
		copy(mapped[uint64(c.region.BufferOffset):], c.data)
		regions[i] = c.region
	}

	d.setupMu.Lock()
	defer d.setupMu.Unlock()
	return WithCommandBufferWaitIdle(d, d.setupCB, func(cmd vk.CommandBuffer) error {
		RecordImageBarrier(cmd,
			NewImageBarrier(img.Raw, AccessNothing, AccessTransferWrite, aspect).WithDiscard(true))
		vk.CmdCopyBufferToImage(cmd, staging.Raw, img.Raw, vk.ImageLayoutTransferDstOptimal,
			uint32(len(regions)), regions)
		RecordImageBarrier(cmd,
			NewImageBarrier(img.Raw, AccessTransferWrite, AccessAnyShaderReadSampledImageOrUniformTexelBuffer, aspect))
		return nil
	})
}

// Destroy releases the cached views, then the allocation and the image.
// Swapchain images only lose their views.
func (img *Image) Destroy() {
	img.views.drain(img.viewer.destroyImageView)
	if img.swapchain || img.Raw == vk.NullImage {
		return
	}
	img.device.Allocator.Free(img.Allocation)
	img.Allocation = nil
	vk.DestroyImage(img.device.Raw, img.Raw, nil)
	img.Raw = vk.NullImage
	img.device.untrack()
}
