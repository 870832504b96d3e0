package hephaistos

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// VK_BUFFER_USAGE_SHADER_BINDING_TABLE_BIT_KHR
const bufferUsageShaderBindingTable = vk.BufferUsageFlagBits(0x00000400)

// shaderBindingTableAlignment is the minimum base alignment of shader
// binding table buffers.
const shaderBindingTableAlignment = 64

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label    string
	Size     uint64
	Usage    vk.BufferUsageFlags
	Location MemoryLocation
}

// Buffer is a linear GPU memory region bound to its own allocation.
type Buffer struct {
	Raw        vk.Buffer
	Desc       BufferDesc
	Allocation *Allocation

	device *Device
}

func bufferAlignment(usage vk.BufferUsageFlags, required uint64) uint64 {
	if usage&vk.BufferUsageFlags(bufferUsageShaderBindingTable) != 0 && required < shaderBindingTableAlignment {
		return shaderBindingTableAlignment
	}
	return required
}

// Mapped returns the host view of the buffer memory, or nil when the buffer
// is not host visible.
func (b *Buffer) Mapped() []byte {
	return b.Allocation.Mapped()
}

// CreateBuffer creates a buffer and, when initial is given, fills it with a
// device-side copy from a scratch upload buffer. The call blocks until the
// copy has finished.
func (d *Device) CreateBuffer(desc BufferDesc, initial []byte) (*Buffer, error) {
	if uint64(len(initial)) > desc.Size {
		return nil, errors.Newf("buffer %q: %d bytes of initial data exceed size %d", desc.Label, len(initial), desc.Size)
	}
	if len(initial) > 0 {
		desc.Usage |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	buffer, err := d.createBuffer(desc)
	if err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		return buffer, nil
	}
	if err := d.uploadBuffer(buffer, initial); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

func (d *Device) uploadBuffer(dst *Buffer, data []byte) error {
	scratch, err := d.createBuffer(BufferDesc{
		Label:    dst.Desc.Label + " scratch",
		Size:     uint64(len(data)),
		Usage:    vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		Location: MemoryCpuToGpu,
	})
	if err != nil {
		return err
	}
	defer scratch.Destroy()
	copy(scratch.Mapped(), data)

	cb, err := newCommandBuffer(d.Raw, d.QueueFamilyIndex)
	if err != nil {
		return err
	}
	defer cb.Destroy()

	return WithCommandBufferWaitIdle(d, cb, func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBuffer(cmd, scratch.Raw, dst.Raw, 1, []vk.BufferCopy{{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      vk.DeviceSize(len(data)),
		}})
		return nil
	})
}

func (d *Device) createBuffer(desc BufferDesc) (*Buffer, error) {
	var raw vk.Buffer
	ret := vk.CreateBuffer(d.Raw, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       desc.Usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &raw)
	if err := checkResult(ret, "create buffer "+desc.Label); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.Raw, raw, &reqs)
	req := requestFromRequirements(desc.Label, reqs, desc.Location, true)
	req.Alignment = bufferAlignment(desc.Usage, req.Alignment)

	alloc, err := d.Allocator.Allocate(req)
	if err != nil {
		vk.DestroyBuffer(d.Raw, raw, nil)
		return nil, err
	}
	ret = vk.BindBufferMemory(d.Raw, raw, alloc.Memory, vk.DeviceSize(alloc.Offset))
	if err := checkResult(ret, "bind buffer memory "+desc.Label); err != nil {
		d.Allocator.Free(alloc)
		vk.DestroyBuffer(d.Raw, raw, nil)
		return nil, err
	}
	d.track()
	return &Buffer{Raw: raw, Desc: desc, Allocation: alloc, device: d}, nil
}

// Destroy frees the allocation, then the buffer handle.
func (b *Buffer) Destroy() {
	if b.Raw == vk.NullBuffer {
		return
	}
	b.device.Allocator.Free(b.Allocation)
	b.Allocation = nil
	vk.DestroyBuffer(b.device.Raw, b.Raw, nil)
	b.Raw = vk.NullBuffer
	b.device.untrack()
}
