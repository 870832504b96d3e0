package hephaistos

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Fence tracks completion of one submission.
type Fence struct {
	Raw    vk.Fence
	device vk.Device
}

func newFence(device vk.Device, signaled bool) (*Fence, error) {
	info := &vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	ret := vk.CreateFence(device, info, nil, &fence)
	if err := checkResult(ret, "create fence"); err != nil {
		return nil, err
	}
	return &Fence{Raw: fence, device: device}, nil
}

// Wait blocks without a timeout until the fence is signaled.
func (f *Fence) Wait() error {
	ret := vk.WaitForFences(f.device, 1, []vk.Fence{f.Raw}, vk.True, vk.MaxUint64)
	return checkResult(ret, "wait for fence")
}

// Reset returns the fence to the unsignaled state.
func (f *Fence) Reset() error {
	ret := vk.ResetFences(f.device, 1, []vk.Fence{f.Raw})
	return checkResult(ret, "reset fence")
}

// Signaled polls the fence.
func (f *Fence) Signaled() (bool, error) {
	switch ret := vk.GetFenceStatus(f.device, f.Raw); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, checkResult(ret, "get fence status")
	}
}

func (f *Fence) Handle() vk.Fence {
	return f.Raw
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.device, f.Raw, nil)
	f.Raw = vk.NullFence
}

// CommandBuffer is a primary command buffer with its own pool and a
// submission fence. The fence starts signaled so the first wait returns at once.
type CommandBuffer struct {
	Raw   vk.CommandBuffer
	Pool  vk.CommandPool
	Fence *Fence

	device vk.Device
	owner  *Device
}

func newCommandBuffer(device vk.Device, queueFamily uint32) (*CommandBuffer, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		// ResetCommandBufferBit allows command buffers to be reset individually.
		Flags: vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if err := checkResult(ret, "create command pool"); err != nil {
		return nil, err
	}

	buffers := make([]vk.CommandBuffer, 1)
	ret = vk.AllocateCommandBuffers(device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers)
	if err := checkResult(ret, "allocate command buffer"); err != nil {
		vk.DestroyCommandPool(device, pool, nil)
		return nil, err
	}

	fence, err := newFence(device, true)
	if err != nil {
		vk.DestroyCommandPool(device, pool, nil)
		return nil, err
	}
	return &CommandBuffer{
		Raw:    buffers[0],
		Pool:   pool,
		Fence:  fence,
		device: device,
	}, nil
}

// Begin starts recording. The buffer is reset implicitly.
func (cb *CommandBuffer) Begin(flags vk.CommandBufferUsageFlags) error {
	ret := vk.BeginCommandBuffer(cb.Raw, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	})
	return checkResult(ret, "begin command buffer")
}

func (cb *CommandBuffer) End() error {
	return checkResult(vk.EndCommandBuffer(cb.Raw), "end command buffer")
}

// Destroy frees the pool, which frees the buffer, and the fence.
func (cb *CommandBuffer) Destroy() {
	if cb.Pool == vk.NullCommandPool {
		return
	}
	vk.DestroyCommandPool(cb.device, cb.Pool, nil)
	cb.Pool = vk.NullCommandPool
	cb.Raw = nil
	cb.Fence.Destroy()
	if cb.owner != nil {
		cb.owner.untrack()
	}
}

// Queue accepts submissions and can drain all outstanding work.
// *Device implements it.
type Queue interface {
	Submit(submits []vk.SubmitInfo, fence vk.Fence) error
	WaitIdle() error
}

// recordFailure keeps the record error first and attaches a failure to end
// the buffer behind it.
func recordFailure(err, endErr error) error {
	if endErr == nil {
		return err
	}
	return errors.CombineErrors(errors.Wrap(err, "record"), endErr)
}

// WithCommandBufferWaitIdle records cb through record, submits it without
// semaphores and blocks until the device is idle. It is meant for setup and
// upload work, not per-frame rendering.
func WithCommandBufferWaitIdle(q Queue, cb *CommandBuffer, record func(cmd vk.CommandBuffer) error) error {
	if err := cb.Begin(vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)); err != nil {
		return err
	}
	if err := record(cb.Raw); err != nil {
		// leave the buffer in a state the next Begin can reset
		return recordFailure(err, cb.End())
	}
	if err := cb.End(); err != nil {
		return err
	}
	err := q.Submit([]vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Raw},
	}}, vk.NullFence)
	if err != nil {
		return err
	}
	return q.WaitIdle()
}
