package hephaistos

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// frameFence is the part of a Fence the frame ring needs.
type frameFence interface {
	Wait() error
	Reset() error
	Handle() vk.Fence
}

// DeviceFrame is one slot of per-frame recording state.
type DeviceFrame struct {
	CommandBuffer *CommandBuffer

	fence frameFence
}

func newDeviceFrame(cb *CommandBuffer) *DeviceFrame {
	return &DeviceFrame{CommandBuffer: cb, fence: cb.Fence}
}

type frameSlot struct {
	mu    sync.Mutex
	frame *DeviceFrame
}

// RenderDevice paces rendering over two frame slots on top of the shared
// device. At most two frames are ever in flight.
//
// Any code locking both slots takes slot 0 before slot 1.
type RenderDevice struct {
	*Device

	frames [2]frameSlot
}

func newRenderDevice(dev *Device) (*RenderDevice, error) {
	r := &RenderDevice{Device: dev}
	for i := range r.frames {
		cb, err := dev.CreateCommandBuffer()
		if err != nil {
			r.destroyFrames()
			return nil, err
		}
		r.frames[i].frame = newDeviceFrame(cb)
	}
	return r, nil
}

// BeginFrame waits until the GPU has finished the work last submitted from
// the current slot, then hands the slot out for recording.
func (r *RenderDevice) BeginFrame() (*DeviceFrame, error) {
	slot := &r.frames[0]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	frame := slot.frame
	if err := frame.fence.Wait(); err != nil {
		return nil, err
	}
	if err := frame.fence.Reset(); err != nil {
		return nil, err
	}
	return frame, nil
}

// SubmitFrame submits work recorded for frame, signaling its fence on completion.
func (r *RenderDevice) SubmitFrame(frame *DeviceFrame, submits []vk.SubmitInfo) error {
	return r.Submit(submits, frame.fence.Handle())
}

// FinishFrame swaps the two slots. frame must not be used afterwards.
func (r *RenderDevice) FinishFrame(frame *DeviceFrame) {
	r.frames[0].mu.Lock()
	defer r.frames[0].mu.Unlock()
	r.frames[1].mu.Lock()
	defer r.frames[1].mu.Unlock()
	r.frames[0].frame, r.frames[1].frame = r.frames[1].frame, r.frames[0].frame
}

func (r *RenderDevice) destroyFrames() {
	for i := range r.frames {
		r.frames[i].mu.Lock()
		if f := r.frames[i].frame; f != nil && f.CommandBuffer != nil {
			f.CommandBuffer.Destroy()
		}
		r.frames[i].frame = nil
		r.frames[i].mu.Unlock()
	}
}

// frameResources counts the device resources held by the frame slots.
func (r *RenderDevice) frameResources() int {
	n := 0
	for i := range r.frames {
		r.frames[i].mu.Lock()
		if f := r.frames[i].frame; f != nil && f.CommandBuffer != nil && f.CommandBuffer.owner != nil {
			n++
		}
		r.frames[i].mu.Unlock()
	}
	return n
}

// Destroy waits for the device to idle, releases both frames and then the
// shared device. While other resources are alive it fails with
// ErrResourcesAlive and leaves the frames usable.
func (r *RenderDevice) Destroy() error {
	if r.Device.Raw == nil {
		return nil
	}
	if n := r.LiveResources() - r.frameResources(); n > 0 {
		return errors.Wrapf(ErrResourcesAlive, "%d resources", n)
	}
	if err := r.WaitIdle(); err != nil {
		return err
	}
	r.destroyFrames()
	return r.Device.Destroy()
}
