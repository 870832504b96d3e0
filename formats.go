package hephaistos

import (
	vk "github.com/goki/vulkan"
)

// texelBlock is the buffer footprint of one aspect of a format in buffer to
// image copies. Uncompressed formats use 1x1 blocks.
type texelBlock struct {
	width, height uint32
	bytes         uint64
}

func (b texelBlock) planeSize(extent vk.Extent3D, layers uint32) uint64 {
	bx := (extent.Width + b.width - 1) / b.width
	by := (extent.Height + b.height - 1) / b.height
	return uint64(bx) * uint64(by) * uint64(extent.Depth) * uint64(layers) * b.bytes
}

func texels(n uint64) texelBlock { return texelBlock{width: 1, height: 1, bytes: n} }

func blocks4x4(n uint64) texelBlock { return texelBlock{width: 4, height: 4, bytes: n} }

// copyBlock returns the copy footprint of a single aspect of format.
func copyBlock(format vk.Format, aspect vk.ImageAspectFlagBits) (texelBlock, bool) {
	switch aspect {
	case vk.ImageAspectDepthBit:
		switch format {
		case vk.FormatD16Unorm, vk.FormatD16UnormS8Uint:
			return texels(2), true
		case vk.FormatX8D24UnormPack32, vk.FormatD24UnormS8Uint, vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint:
			return texels(4), true
		}
		return texelBlock{}, false
	case vk.ImageAspectStencilBit:
		switch format {
		case vk.FormatS8Uint, vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
			return texels(1), true
		}
		return texelBlock{}, false
	case vk.ImageAspectColorBit:
	default:
		return texelBlock{}, false
	}

	switch {
	case format == vk.FormatR4g4UnormPack8:
		return texels(1), true
	case format >= vk.FormatR4g4b4a4UnormPack16 && format <= vk.FormatA1r5g5b5UnormPack16:
		return texels(2), true
	case format >= vk.FormatR8Unorm && format <= vk.FormatR8Srgb:
		return texels(1), true
	case format >= vk.FormatR8g8Unorm && format <= vk.FormatR8g8Srgb:
		return texels(2), true
	case format >= vk.FormatR8g8b8Unorm && format <= vk.FormatB8g8r8Srgb:
		return texels(3), true
	case format >= vk.FormatR8g8b8a8Unorm && format <= vk.FormatA2b10g10r10SintPack32:
		return texels(4), true
	case format >= vk.FormatR16Unorm && format <= vk.FormatR16Sfloat:
		return texels(2), true
	case format >= vk.FormatR16g16Unorm && format <= vk.FormatR16g16Sfloat:
		return texels(4), true
	case format >= vk.FormatR16g16b16Unorm && format <= vk.FormatR16g16b16Sfloat:
		return texels(6), true
	case format >= vk.FormatR16g16b16a16Unorm && format <= vk.FormatR16g16b16a16Sfloat:
		return texels(8), true
	case format >= vk.FormatR32Uint && format <= vk.FormatR32Sfloat:
		return texels(4), true
	case format >= vk.FormatR32g32Uint && format <= vk.FormatR32g32Sfloat:
		return texels(8), true
	case format >= vk.FormatR32g32b32Uint && format <= vk.FormatR32g32b32Sfloat:
		return texels(12), true
	case format >= vk.FormatR32g32b32a32Uint && format <= vk.FormatR32g32b32a32Sfloat:
		return texels(16), true
	case format >= vk.FormatR64Uint && format <= vk.FormatR64Sfloat:
		return texels(8), true
	case format >= vk.FormatR64g64Uint && format <= vk.FormatR64g64Sfloat:
		return texels(16), true
	case format >= vk.FormatR64g64b64Uint && format <= vk.FormatR64g64b64Sfloat:
		return texels(24), true
	case format >= vk.FormatR64g64b64a64Uint && format <= vk.FormatR64g64b64a64Sfloat:
		return texels(32), true
	case format == vk.FormatB10g11r11UfloatPack32, format == vk.FormatE5b9g9r9UfloatPack32:
		return texels(4), true
	case format >= vk.FormatBc1RgbUnormBlock && format <= vk.FormatBc1RgbaSrgbBlock:
		return blocks4x4(8), true
	case format >= vk.FormatBc2UnormBlock && format <= vk.FormatBc3SrgbBlock:
		return blocks4x4(16), true
	case format == vk.FormatBc4UnormBlock, format == vk.FormatBc4SnormBlock:
		return blocks4x4(8), true
	case format >= vk.FormatBc5UnormBlock && format <= vk.FormatBc7SrgbBlock:
		return blocks4x4(16), true
	case format >= vk.FormatEtc2R8g8b8UnormBlock && format <= vk.FormatEtc2R8g8b8a1SrgbBlock:
		return blocks4x4(8), true
	case format == vk.FormatEtc2R8g8b8a8UnormBlock, format == vk.FormatEtc2R8g8b8a8SrgbBlock:
		return blocks4x4(16), true
	case format == vk.FormatEacR11UnormBlock, format == vk.FormatEacR11SnormBlock:
		return blocks4x4(8), true
	case format == vk.FormatEacR11g11UnormBlock, format == vk.FormatEacR11g11SnormBlock:
		return blocks4x4(16), true
	case format == vk.FormatAstc4x4UnormBlock, format == vk.FormatAstc4x4SrgbBlock:
		return blocks4x4(16), true
	}
	return texelBlock{}, false
}

// copyAspects splits mask into the single aspects a buffer copy accepts,
// color first, then depth, then stencil.
func copyAspects(mask vk.ImageAspectFlags) []vk.ImageAspectFlagBits {
	var out []vk.ImageAspectFlagBits
	for _, bit := range []vk.ImageAspectFlagBits{vk.ImageAspectColorBit, vk.ImageAspectDepthBit, vk.ImageAspectStencilBit} {
		if mask&vk.ImageAspectFlags(bit) != 0 {
			out = append(out, bit)
		}
	}
	return out
}

// copyAlignment is the smallest multiple of stagingAlignment that is also a
// multiple of the block size.
func copyAlignment(block texelBlock) uint64 {
	a := uint64(stagingAlignment)
	for block.bytes > 0 && a%block.bytes != 0 {
		a += stagingAlignment
	}
	return a
}
