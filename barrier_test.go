package hephaistos

import (
	"strings"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestAccessTypeString(t *testing.T) {
	for a := AccessNothing; a < accessTypeCount; a++ {
		name := a.String()
		assert.NotEmpty(t, name)
		assert.False(t, strings.HasPrefix(name, "AccessType("), "access %d has no name", int(a))
	}
	assert.Equal(t, "TransferWrite", AccessTransferWrite.String())
	assert.Equal(t, "AccessType(-1)", AccessType(-1).String())
	assert.Equal(t, "AccessType(99)", AccessType(99).String())
}

func TestAccessTypeIsWrite(t *testing.T) {
	assert.False(t, AccessNothing.isWrite())
	assert.False(t, AccessPresent.isWrite())
	assert.False(t, AccessTransferRead.isWrite())
	assert.True(t, AccessCommandBufferWriteNVX.isWrite())
	assert.True(t, AccessTransferWrite.isWrite())
	assert.True(t, AccessGeneral.isWrite())
}

func TestGetAccessInfo(t *testing.T) {
	info := GetAccessInfo(AccessTransferWrite)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), info.StageMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), info.AccessMask)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, info.ImageLayout)

	info = GetAccessInfo(AccessPresent)
	assert.Zero(t, info.StageMask)
	assert.Zero(t, info.AccessMask)
	assert.Equal(t, vk.ImageLayoutPresentSrc, info.ImageLayout)

	info = GetAccessInfo(AccessDepthStencilAttachmentWrite)
	assert.Equal(t, vk.PipelineStageFlags(fragmentTests), info.StageMask)
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, info.ImageLayout)

	assert.Equal(t, GetAccessInfo(AccessGeneral), GetAccessInfo(accessTypeCount))
	assert.Equal(t, GetAccessInfo(AccessGeneral), GetAccessInfo(-3))
}

func TestImageAspectMaskFromFormat(t *testing.T) {
	depth := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	stencil := vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	color := vk.ImageAspectFlags(vk.ImageAspectColorBit)

	tests := []struct {
		format vk.Format
		want   vk.ImageAspectFlags
	}{
		{vk.FormatD16Unorm, depth},
		{vk.FormatX8D24UnormPack32, depth},
		{vk.FormatD32Sfloat, depth},
		{vk.FormatS8Uint, stencil},
		{vk.FormatD16UnormS8Uint, depth | stencil},
		{vk.FormatD24UnormS8Uint, depth | stencil},
		{vk.FormatD32SfloatS8Uint, depth | stencil},
		{vk.FormatR8g8b8a8Unorm, color},
		{vk.FormatB8g8r8a8Srgb, color},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImageAspectMaskFromFormat(tt.format), "format %d", tt.format)
	}
}

func TestImageAspectMaskFromAccessTypeAndFormat(t *testing.T) {
	for a := AccessNothing; a < accessTypeCount; a++ {
		mask, ok := ImageAspectMaskFromAccessTypeAndFormat(a, vk.FormatD24UnormS8Uint)
		layout := GetAccessInfo(a).ImageLayout
		switch layout {
		case vk.ImageLayoutUndefined, vk.ImageLayoutPreinitialized, vk.ImageLayoutPresentSrc:
			assert.False(t, ok, "%s", a)
			assert.Zero(t, mask, "%s", a)
		default:
			assert.True(t, ok, "%s", a)
			assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), mask, "%s", a)
		}
	}

	mask, ok := ImageAspectMaskFromAccessTypeAndFormat(AccessTransferWrite, vk.FormatR8g8b8a8Unorm)
	assert.True(t, ok)
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), mask)

	_, ok = ImageAspectMaskFromAccessTypeAndFormat(AccessVertexBuffer, vk.FormatR8g8b8a8Unorm)
	assert.False(t, ok)
}

func TestImageBarrierInfo(t *testing.T) {
	image := vk.Image(fakeHandle(8))
	color := vk.ImageAspectFlags(vk.ImageAspectColorBit)

	m, b := imageBarrierInfo(NewImageBarrier(image, AccessTransferWrite,
		AccessFragmentShaderReadSampledImageOrUniformTexelBuffer, color))
	assert.Equal(t, image, b.Image)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), b.SrcAccessMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), b.DstAccessMask)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, b.OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, b.NewLayout)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.SrcQueueFamilyIndex)
	assert.Equal(t, uint32(vk.RemainingMipLevels), b.SubresourceRange.LevelCount)
	assert.Equal(t, uint32(vk.RemainingArrayLayers), b.SubresourceRange.LayerCount)
	assert.Equal(t, color, b.SubresourceRange.AspectMask)

	src, dst := m.stages()
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), dst)
}

func TestImageBarrierDiscard(t *testing.T) {
	barrier := NewImageBarrier(vk.Image(fakeHandle(8)), AccessColorAttachmentWrite, AccessTransferWrite,
		vk.ImageAspectFlags(vk.ImageAspectColorBit))

	_, kept := imageBarrierInfo(barrier)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, kept.OldLayout)

	_, discarded := imageBarrierInfo(barrier.WithDiscard(true))
	assert.Equal(t, vk.ImageLayoutUndefined, discarded.OldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, discarded.NewLayout)
	assert.False(t, barrier.Discard, "WithDiscard must not modify the receiver")
}

func TestImageBarrierSubresource(t *testing.T) {
	barrier := NewImageBarrier(vk.Image(fakeHandle(8)), AccessNothing, AccessTransferWrite,
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	barrier.BaseMipLevel, barrier.LevelCount = 2, 3
	barrier.BaseArrayLayer, barrier.LayerCount = 1, 4

	_, b := imageBarrierInfo(barrier)
	assert.Equal(t, uint32(2), b.SubresourceRange.BaseMipLevel)
	assert.Equal(t, uint32(3), b.SubresourceRange.LevelCount)
	assert.Equal(t, uint32(1), b.SubresourceRange.BaseArrayLayer)
	assert.Equal(t, uint32(4), b.SubresourceRange.LayerCount)
}

func TestBarrierSourceAccessOnlyFromWrites(t *testing.T) {
	m := accessMasks([]AccessType{AccessTransferRead, AccessVertexBuffer}, []AccessType{AccessTransferWrite})
	assert.Zero(t, m.srcAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit|vk.PipelineStageVertexInputBit), m.srcStage)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), m.dstAccess)

	m = accessMasks([]AccessType{AccessTransferRead, AccessHostWrite}, nil)
	assert.Equal(t, vk.AccessFlags(vk.AccessHostWriteBit), m.srcAccess)
}

func TestBarrierEmptyStages(t *testing.T) {
	m := accessMasks([]AccessType{AccessNothing}, []AccessType{AccessPresent})
	src, dst := m.stages()
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), dst)

	var merged barrierMasks
	merged.merge(m)
	merged.merge(accessMasks([]AccessType{AccessTransferWrite}, []AccessType{AccessHostRead}))
	src, dst = merged.stages()
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageHostBit), dst)
}

func TestBufferBarrierInfo(t *testing.T) {
	buffer := vk.Buffer(fakeHandle(16))

	_, b := bufferBarrierInfo(BufferBarrier{
		Buffer: buffer,
		Prev:   []AccessType{AccessTransferWrite},
		Next:   []AccessType{AccessVertexBuffer},
	})
	assert.Equal(t, buffer, b.Buffer)
	assert.Equal(t, vk.DeviceSize(vk.WholeSize), b.Size)
	assert.Zero(t, b.Offset)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), b.SrcAccessMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessVertexAttributeReadBit), b.DstAccessMask)

	_, b = bufferBarrierInfo(BufferBarrier{Buffer: buffer, Offset: 64, Size: 128})
	assert.Equal(t, vk.DeviceSize(64), b.Offset)
	assert.Equal(t, vk.DeviceSize(128), b.Size)
}
