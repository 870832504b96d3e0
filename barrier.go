package hephaistos

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// AccessType describes how a resource is accessed between two barriers.
// The set and its stage/access/layout translation follow vk_sync.
type AccessType int

const (
	AccessNothing AccessType = iota
	AccessCommandBufferReadNVX
	AccessIndirectBuffer
	AccessIndexBuffer
	AccessVertexBuffer
	AccessVertexShaderReadUniformBuffer
	AccessVertexShaderReadSampledImageOrUniformTexelBuffer
	AccessVertexShaderReadOther
	AccessTessellationControlShaderReadUniformBuffer
	AccessTessellationControlShaderReadSampledImageOrUniformTexelBuffer
	AccessTessellationControlShaderReadOther
	AccessTessellationEvaluationShaderReadUniformBuffer
	AccessTessellationEvaluationShaderReadSampledImageOrUniformTexelBuffer
	AccessTessellationEvaluationShaderReadOther
	AccessGeometryShaderReadUniformBuffer
	AccessGeometryShaderReadSampledImageOrUniformTexelBuffer
	AccessGeometryShaderReadOther
	AccessFragmentShaderReadUniformBuffer
	AccessFragmentShaderReadSampledImageOrUniformTexelBuffer
	AccessFragmentShaderReadColorInputAttachment
	AccessFragmentShaderReadDepthStencilInputAttachment
	AccessFragmentShaderReadOther
	AccessColorAttachmentRead
	AccessDepthStencilAttachmentRead
	AccessComputeShaderReadUniformBuffer
	AccessComputeShaderReadSampledImageOrUniformTexelBuffer
	AccessComputeShaderReadOther
	AccessAnyShaderReadUniformBuffer
	AccessAnyShaderReadUniformBufferOrVertexBuffer
	AccessAnyShaderReadSampledImageOrUniformTexelBuffer
	AccessAnyShaderReadOther
	AccessTransferRead
	AccessHostRead
	AccessPresent

	// Writes. Everything from here on makes prior accesses visible.
	AccessCommandBufferWriteNVX
	AccessVertexShaderWrite
	AccessTessellationControlShaderWrite
	AccessTessellationEvaluationShaderWrite
	AccessGeometryShaderWrite
	AccessFragmentShaderWrite
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentWrite
	AccessDepthAttachmentWriteStencilReadOnly
	AccessStencilAttachmentWriteDepthReadOnly
	AccessComputeShaderWrite
	AccessAnyShaderWrite
	AccessTransferWrite
	AccessHostWrite
	AccessColorAttachmentReadWrite
	AccessGeneral

	accessTypeCount
)

var accessTypeNames = [accessTypeCount]string{
	"Nothing",
	"CommandBufferReadNVX",
	"IndirectBuffer",
	"IndexBuffer",
	"VertexBuffer",
	"VertexShaderReadUniformBuffer",
	"VertexShaderReadSampledImageOrUniformTexelBuffer",
	"VertexShaderReadOther",
	"TessellationControlShaderReadUniformBuffer",
	"TessellationControlShaderReadSampledImageOrUniformTexelBuffer",
	"TessellationControlShaderReadOther",
	"TessellationEvaluationShaderReadUniformBuffer",
	"TessellationEvaluationShaderReadSampledImageOrUniformTexelBuffer",
	"TessellationEvaluationShaderReadOther",
	"GeometryShaderReadUniformBuffer",
	"GeometryShaderReadSampledImageOrUniformTexelBuffer",
	"GeometryShaderReadOther",
	"FragmentShaderReadUniformBuffer",
	"FragmentShaderReadSampledImageOrUniformTexelBuffer",
	"FragmentShaderReadColorInputAttachment",
	"FragmentShaderReadDepthStencilInputAttachment",
	"FragmentShaderReadOther",
	"ColorAttachmentRead",
	"DepthStencilAttachmentRead",
	"ComputeShaderReadUniformBuffer",
	"ComputeShaderReadSampledImageOrUniformTexelBuffer",
	"ComputeShaderReadOther",
	"AnyShaderReadUniformBuffer",
	"AnyShaderReadUniformBufferOrVertexBuffer",
	"AnyShaderReadSampledImageOrUniformTexelBuffer",
	"AnyShaderReadOther",
	"TransferRead",
	"HostRead",
	"Present",
	"CommandBufferWriteNVX",
	"VertexShaderWrite",
	"TessellationControlShaderWrite",
	"TessellationEvaluationShaderWrite",
	"GeometryShaderWrite",
	"FragmentShaderWrite",
	"ColorAttachmentWrite",
	"DepthStencilAttachmentWrite",
	"DepthAttachmentWriteStencilReadOnly",
	"StencilAttachmentWriteDepthReadOnly",
	"ComputeShaderWrite",
	"AnyShaderWrite",
	"TransferWrite",
	"HostWrite",
	"ColorAttachmentReadWrite",
	"General",
}

func (a AccessType) String() string {
	if a < 0 || a >= accessTypeCount {
		return fmt.Sprintf("AccessType(%d)", int(a))
	}
	return accessTypeNames[a]
}

func (a AccessType) isWrite() bool {
	return a >= AccessCommandBufferWriteNVX && a < accessTypeCount
}

// AccessInfo is the concrete synchronization triple for an AccessType.
type AccessInfo struct {
	StageMask   vk.PipelineStageFlags
	AccessMask  vk.AccessFlags
	ImageLayout vk.ImageLayout
}

// VK_NV_device_generated_commands bits.
const (
	pipelineStageCommandPreprocessNV = vk.PipelineStageFlagBits(0x00020000)
	accessCommandPreprocessReadNV    = vk.AccessFlagBits(0x00020000)
	accessCommandPreprocessWriteNV   = vk.AccessFlagBits(0x00040000)
)

func access(stage vk.PipelineStageFlagBits, mask vk.AccessFlagBits, layout vk.ImageLayout) AccessInfo {
	return AccessInfo{
		StageMask:   vk.PipelineStageFlags(stage),
		AccessMask:  vk.AccessFlags(mask),
		ImageLayout: layout,
	}
}

const fragmentTests = vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit

var accessInfos = [accessTypeCount]AccessInfo{
	AccessNothing:              access(0, 0, vk.ImageLayoutUndefined),
	AccessCommandBufferReadNVX: access(pipelineStageCommandPreprocessNV, accessCommandPreprocessReadNV, vk.ImageLayoutUndefined),
	AccessIndirectBuffer:       access(vk.PipelineStageDrawIndirectBit, vk.AccessIndirectCommandReadBit, vk.ImageLayoutUndefined),
	AccessIndexBuffer:          access(vk.PipelineStageVertexInputBit, vk.AccessIndexReadBit, vk.ImageLayoutUndefined),
	AccessVertexBuffer:         access(vk.PipelineStageVertexInputBit, vk.AccessVertexAttributeReadBit, vk.ImageLayoutUndefined),

	AccessVertexShaderReadUniformBuffer:                    access(vk.PipelineStageVertexShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutUndefined),
	AccessVertexShaderReadSampledImageOrUniformTexelBuffer: access(vk.PipelineStageVertexShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessVertexShaderReadOther:                            access(vk.PipelineStageVertexShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutGeneral),

	AccessTessellationControlShaderReadUniformBuffer:                    access(vk.PipelineStageTessellationControlShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined),
	AccessTessellationControlShaderReadSampledImageOrUniformTexelBuffer: access(vk.PipelineStageTessellationControlShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessTessellationControlShaderReadOther:                            access(vk.PipelineStageTessellationControlShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutGeneral),

	AccessTessellationEvaluationShaderReadUniformBuffer:                    access(vk.PipelineStageTessellationEvaluationShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined),
	AccessTessellationEvaluationShaderReadSampledImageOrUniformTexelBuffer: access(vk.PipelineStageTessellationEvaluationShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessTessellationEvaluationShaderReadOther:                            access(vk.PipelineStageTessellationEvaluationShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutGeneral),

	AccessGeometryShaderReadUniformBuffer:                    access(vk.PipelineStageGeometryShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined),
	AccessGeometryShaderReadSampledImageOrUniformTexelBuffer: access(vk.PipelineStageGeometryShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessGeometryShaderReadOther:                            access(vk.PipelineStageGeometryShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutGeneral),

	AccessFragmentShaderReadUniformBuffer:                    access(vk.PipelineStageFragmentShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined),
	AccessFragmentShaderReadSampledImageOrUniformTexelBuffer: access(vk.PipelineStageFragmentShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessFragmentShaderReadColorInputAttachment:             access(vk.PipelineStageFragmentShaderBit, vk.AccessInputAttachmentReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessFragmentShaderReadDepthStencilInputAttachment:      access(vk.PipelineStageFragmentShaderBit, vk.AccessInputAttachmentReadBit, vk.ImageLayoutDepthStencilReadOnlyOptimal),
	AccessFragmentShaderReadOther:                            access(vk.PipelineStageFragmentShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutGeneral),

	AccessColorAttachmentRead:        access(vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentReadBit, vk.ImageLayoutColorAttachmentOptimal),
	AccessDepthStencilAttachmentRead: access(fragmentTests, vk.AccessDepthStencilAttachmentReadBit, vk.ImageLayoutDepthStencilReadOnlyOptimal),

	AccessComputeShaderReadUniformBuffer:                    access(vk.PipelineStageComputeShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined),
	AccessComputeShaderReadSampledImageOrUniformTexelBuffer: access(vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessComputeShaderReadOther:                            access(vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutGeneral),

	AccessAnyShaderReadUniformBuffer:                    access(vk.PipelineStageAllCommandsBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined),
	AccessAnyShaderReadUniformBufferOrVertexBuffer:      access(vk.PipelineStageAllCommandsBit, vk.AccessUniformReadBit|vk.AccessVertexAttributeReadBit, vk.ImageLayoutUndefined),
	AccessAnyShaderReadSampledImageOrUniformTexelBuffer: access(vk.PipelineStageAllCommandsBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal),
	AccessAnyShaderReadOther:                            access(vk.PipelineStageAllCommandsBit, vk.AccessShaderReadBit, vk.ImageLayoutGeneral),

	AccessTransferRead: access(vk.PipelineStageTransferBit, vk.AccessTransferReadBit, vk.ImageLayoutTransferSrcOptimal),
	AccessHostRead:     access(vk.PipelineStageHostBit, vk.AccessHostReadBit, vk.ImageLayoutGeneral),
	AccessPresent:      access(0, 0, vk.ImageLayoutPresentSrc),

	AccessCommandBufferWriteNVX:             access(pipelineStageCommandPreprocessNV, accessCommandPreprocessWriteNV, vk.ImageLayoutUndefined),
	AccessVertexShaderWrite:                 access(vk.PipelineStageVertexShaderBit, vk.AccessShaderWriteBit, vk.ImageLayoutGeneral),
	AccessTessellationControlShaderWrite:    access(vk.PipelineStageTessellationControlShaderBit, vk.AccessShaderWriteBit, vk.ImageLayoutGeneral),
	AccessTessellationEvaluationShaderWrite: access(vk.PipelineStageTessellationEvaluationShaderBit, vk.AccessShaderWriteBit, vk.ImageLayoutGeneral),
	AccessGeometryShaderWrite:               access(vk.PipelineStageGeometryShaderBit, vk.AccessShaderWriteBit, vk.ImageLayoutGeneral),
	AccessFragmentShaderWrite:               access(vk.PipelineStageFragmentShaderBit, vk.AccessShaderWriteBit, vk.ImageLayoutGeneral),
	AccessColorAttachmentWrite:              access(vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentWriteBit, vk.ImageLayoutColorAttachmentOptimal),
	AccessDepthStencilAttachmentWrite:       access(fragmentTests, vk.AccessDepthStencilAttachmentWriteBit, vk.ImageLayoutDepthStencilAttachmentOptimal),
	AccessDepthAttachmentWriteStencilReadOnly: access(fragmentTests,
		vk.AccessDepthStencilAttachmentWriteBit|vk.AccessDepthStencilAttachmentReadBit,
		vk.ImageLayoutDepthAttachmentStencilReadOnlyOptimal),
	AccessStencilAttachmentWriteDepthReadOnly: access(fragmentTests,
		vk.AccessDepthStencilAttachmentWriteBit|vk.AccessDepthStencilAttachmentReadBit,
		vk.ImageLayoutDepthReadOnlyStencilAttachmentOptimal),
	AccessComputeShaderWrite: access(vk.PipelineStageComputeShaderBit, vk.AccessShaderWriteBit, vk.ImageLayoutGeneral),
	AccessAnyShaderWrite:     access(vk.PipelineStageAllCommandsBit, vk.AccessShaderWriteBit, vk.ImageLayoutGeneral),
	AccessTransferWrite:      access(vk.PipelineStageTransferBit, vk.AccessTransferWriteBit, vk.ImageLayoutTransferDstOptimal),
	AccessHostWrite:          access(vk.PipelineStageHostBit, vk.AccessHostWriteBit, vk.ImageLayoutGeneral),
	AccessColorAttachmentReadWrite: access(vk.PipelineStageColorAttachmentOutputBit,
		vk.AccessColorAttachmentReadBit|vk.AccessColorAttachmentWriteBit,
		vk.ImageLayoutColorAttachmentOptimal),
	AccessGeneral: access(vk.PipelineStageAllCommandsBit, vk.AccessMemoryReadBit|vk.AccessMemoryWriteBit, vk.ImageLayoutGeneral),
}

// GetAccessInfo returns the stage, access mask and layout for a. Values
// outside the enumeration map to AccessGeneral.
func GetAccessInfo(a AccessType) AccessInfo {
	if a < 0 || a >= accessTypeCount {
		return accessInfos[AccessGeneral]
	}
	return accessInfos[a]
}

// ImageAspectMaskFromFormat returns depth and/or stencil for depth formats and color otherwise.
func ImageAspectMaskFromFormat(format vk.Format) vk.ImageAspectFlags {
	switch format {
	case vk.FormatD16Unorm, vk.FormatX8D24UnormPack32, vk.FormatD32Sfloat:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case vk.FormatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

// aspectLayout reports whether layout addresses image aspects. Undefined,
// preinitialized and present layouts do not.
func aspectLayout(layout vk.ImageLayout) bool {
	switch layout {
	case vk.ImageLayoutGeneral,
		vk.ImageLayoutColorAttachmentOptimal,
		vk.ImageLayoutDepthStencilAttachmentOptimal,
		vk.ImageLayoutDepthStencilReadOnlyOptimal,
		vk.ImageLayoutDepthAttachmentStencilReadOnlyOptimal,
		vk.ImageLayoutDepthReadOnlyStencilAttachmentOptimal,
		vk.ImageLayoutShaderReadOnlyOptimal,
		vk.ImageLayoutTransferSrcOptimal,
		vk.ImageLayoutTransferDstOptimal:
		return true
	}
	return false
}

// ImageAspectMaskFromAccessTypeAndFormat returns the aspect mask of format
// when the layout required by a addresses aspects, and false otherwise.
func ImageAspectMaskFromAccessTypeAndFormat(a AccessType, format vk.Format) (vk.ImageAspectFlags, bool) {
	if !aspectLayout(GetAccessInfo(a).ImageLayout) {
		return 0, false
	}
	return ImageAspectMaskFromFormat(format), true
}

// ImageBarrier transitions an image subresource range between access types.
// A zero LevelCount or LayerCount covers the remaining levels or layers.
type ImageBarrier struct {
	Image          vk.Image
	Prev           []AccessType
	Next           []AccessType
	AspectMask     vk.ImageAspectFlags
	Discard        bool
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// NewImageBarrier is a whole-image barrier from prev to next.
func NewImageBarrier(image vk.Image, prev, next AccessType, aspect vk.ImageAspectFlags) ImageBarrier {
	return ImageBarrier{
		Image:      image,
		Prev:       []AccessType{prev},
		Next:       []AccessType{next},
		AspectMask: aspect,
	}
}

// WithDiscard makes the barrier drop the previous contents.
func (b ImageBarrier) WithDiscard(discard bool) ImageBarrier {
	b.Discard = discard
	return b
}

// BufferBarrier makes a buffer range written by Prev visible to Next.
// A zero Size covers the rest of the buffer.
type BufferBarrier struct {
	Buffer vk.Buffer
	Prev   []AccessType
	Next   []AccessType
	Offset uint64
	Size   uint64
}

type barrierMasks struct {
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
}

func accessMasks(prev, next []AccessType) barrierMasks {
	var m barrierMasks
	for _, a := range prev {
		info := GetAccessInfo(a)
		m.srcStage |= info.StageMask
		if a.isWrite() {
			m.srcAccess |= info.AccessMask
		}
	}
	for _, a := range next {
		info := GetAccessInfo(a)
		m.dstStage |= info.StageMask
		m.dstAccess |= info.AccessMask
	}
	return m
}

func (m *barrierMasks) merge(o barrierMasks) {
	m.srcStage |= o.srcStage
	m.dstStage |= o.dstStage
	m.srcAccess |= o.srcAccess
	m.dstAccess |= o.dstAccess
}

func (m barrierMasks) stages() (src, dst vk.PipelineStageFlags) {
	src, dst = m.srcStage, m.dstStage
	if src == 0 {
		src = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if dst == 0 {
		dst = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return src, dst
}

func layoutOf(list []AccessType) vk.ImageLayout {
	if len(list) == 0 {
		return vk.ImageLayoutUndefined
	}
	return GetAccessInfo(list[0]).ImageLayout
}

func orRemaining(n, all uint32) uint32 {
	if n == 0 {
		return all
	}
	return n
}

func imageBarrierInfo(b ImageBarrier) (barrierMasks, vk.ImageMemoryBarrier) {
	m := accessMasks(b.Prev, b.Next)
	oldLayout := layoutOf(b.Prev)
	if b.Discard {
		oldLayout = vk.ImageLayoutUndefined
	}
	return m, vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       m.srcAccess,
		DstAccessMask:       m.dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           layoutOf(b.Next),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               b.Image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     b.AspectMask,
			BaseMipLevel:   b.BaseMipLevel,
			LevelCount:     orRemaining(b.LevelCount, vk.RemainingMipLevels),
			BaseArrayLayer: b.BaseArrayLayer,
			LayerCount:     orRemaining(b.LayerCount, vk.RemainingArrayLayers),
		},
	}
}

func bufferBarrierInfo(b BufferBarrier) (barrierMasks, vk.BufferMemoryBarrier) {
	m := accessMasks(b.Prev, b.Next)
	size := b.Size
	if size == 0 {
		size = vk.WholeSize
	}
	return m, vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       m.srcAccess,
		DstAccessMask:       m.dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.Buffer,
		Offset:              vk.DeviceSize(b.Offset),
		Size:                vk.DeviceSize(size),
	}
}

// RecordImageBarrier records one pipeline barrier covering all barriers.
func RecordImageBarrier(cb vk.CommandBuffer, barriers ...ImageBarrier) {
	if len(barriers) == 0 {
		return
	}
	var masks barrierMasks
	list := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		m, info := imageBarrierInfo(b)
		masks.merge(m)
		list = append(list, info)
	}
	src, dst := masks.stages()
	vk.CmdPipelineBarrier(cb, src, dst, 0, 0, nil, 0, nil, uint32(len(list)), list)
}

// RecordBufferBarrier records one pipeline barrier covering all barriers.
func RecordBufferBarrier(cb vk.CommandBuffer, barriers ...BufferBarrier) {
	if len(barriers) == 0 {
		return
	}
	var masks barrierMasks
	list := make([]vk.BufferMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		m, info := bufferBarrierInfo(b)
		masks.merge(m)
		list = append(list, info)
	}
	src, dst := masks.stages()
	vk.CmdPipelineBarrier(cb, src, dst, 0, 0, nil, uint32(len(list)), list, 0, nil)
}
