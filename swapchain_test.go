package hephaistos

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAcquire struct {
	results []vk.Result
	indices []uint32
	waited  []vk.Semaphore
}

func (s *scriptedAcquire) acquire(semaphore vk.Semaphore) (uint32, vk.Result) {
	s.waited = append(s.waited, semaphore)
	i := len(s.waited) - 1
	ret, index := vk.Success, uint32(0)
	if i < len(s.results) {
		ret = s.results[i]
	}
	if i < len(s.indices) {
		index = s.indices[i]
	}
	return index, ret
}

func testSwapchain(n int, script *scriptedAcquire) *Swapchain {
	viewer := &fakeViewer{}
	sc := &Swapchain{
		Raw:     vk.Swapchain(fakeHandle(500)),
		acquire: script.acquire,
	}
	for i := 0; i < n; i++ {
		img := newImage(vk.Image(fakeHandle(100+i)), NewImageDesc2D(vk.FormatB8g8r8a8Unorm, 4, 4), viewer)
		img.swapchain = true
		sc.Images = append(sc.Images, img)
		sc.acquireSemaphores = append(sc.acquireSemaphores, vk.Semaphore(fakeHandle(200+i)))
		sc.renderingFinishedSemaphores = append(sc.renderingFinishedSemaphores, vk.Semaphore(fakeHandle(300+i)))
	}
	return sc
}

func TestSwapchainSemaphoreRotation(t *testing.T) {
	script := &scriptedAcquire{indices: []uint32{2, 0, 1, 2}}
	sc := testSwapchain(3, script)

	for i, wantSlot := range []uint32{0, 1, 2, 0} {
		img, err := sc.AcquireNextImage()
		require.NoError(t, err)
		assert.Equal(t, wantSlot, img.Slot, "acquire %d", i)
		assert.Equal(t, script.indices[i], img.Index)
		assert.Same(t, sc.Images[img.Index], img.Image)
		assertSameHandle(t, sc.acquireSemaphores[wantSlot], img.AcquireSemaphore)
		assertSameHandle(t, sc.renderingFinishedSemaphores[wantSlot], img.RenderingFinishedSemaphore)
		assertSameHandle(t, img.AcquireSemaphore, script.waited[i])
	}
}

func TestSwapchainStaleDoesNotAdvance(t *testing.T) {
	script := &scriptedAcquire{
		results: []vk.Result{vk.Success, vk.ErrorOutOfDate, vk.Suboptimal, vk.Success},
		indices: []uint32{0, 0, 0, 1},
	}
	sc := testSwapchain(3, script)

	img, err := sc.AcquireNextImage()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), img.Slot)

	for i := 0; i < 2; i++ {
		_, err = sc.AcquireNextImage()
		require.Error(t, err)
		assert.True(t, IsStale(err))
		assert.False(t, IsFatal(err))
	}

	img, err = sc.AcquireNextImage()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), img.Slot)
	assertSameHandle(t, sc.acquireSemaphores[1], script.waited[1])
	assertSameHandle(t, sc.acquireSemaphores[1], script.waited[2])
}

func TestSwapchainAcquireFatal(t *testing.T) {
	sc := testSwapchain(2, &scriptedAcquire{results: []vk.Result{vk.ErrorDeviceLost}})
	_, err := sc.AcquireNextImage()
	assert.True(t, IsFatal(err))
	assert.False(t, IsStale(err))

	sc = testSwapchain(2, &scriptedAcquire{indices: []uint32{5}})
	_, err = sc.AcquireNextImage()
	assert.True(t, IsFatal(err))
}

func TestSwapchainPresent(t *testing.T) {
	script := &scriptedAcquire{indices: []uint32{1}}
	sc := testSwapchain(2, script)
	var got *vk.PresentInfo
	ret := vk.Success
	sc.present = func(info *vk.PresentInfo) vk.Result {
		got = info
		return ret
	}

	img, err := sc.AcquireNextImage()
	require.NoError(t, err)
	require.NoError(t, sc.PresentImage(img))
	require.NotNil(t, got)
	assert.Equal(t, []uint32{1}, got.PImageIndices)
	assertHandles(t, []vk.Semaphore{sc.renderingFinishedSemaphores[0]}, got.PWaitSemaphores)
	assertHandles(t, []vk.Swapchain{sc.Raw}, got.PSwapchains)

	ret = vk.ErrorOutOfDate
	assert.True(t, IsStale(sc.PresentImage(img)))
	ret = vk.ErrorSurfaceLost
	assert.True(t, IsFatal(sc.PresentImage(img)))
}

func TestPresentResult(t *testing.T) {
	assert.NoError(t, presentResult(vk.Success, "present"))
	assert.ErrorIs(t, presentResult(vk.Suboptimal, "present"), ErrSwapchainStale)
	assert.ErrorIs(t, presentResult(vk.ErrorOutOfDate, "present"), ErrSwapchainStale)
	err := presentResult(vk.ErrorOutOfDeviceMemory, "present")
	assert.ErrorIs(t, err, ErrFatal)
	assert.NotErrorIs(t, err, ErrSwapchainStale)
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(3, 2, 0))
	assert.Equal(t, uint32(4), chooseImageCount(3, 4, 8))
	assert.Equal(t, uint32(4), chooseImageCount(6, 2, 4))
	assert.Equal(t, uint32(2), chooseImageCount(1, 2, 3))
}

func TestChoosePresentMode(t *testing.T) {
	modes := []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo, vk.PresentModeMailbox}
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(modes, true))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(modes, false))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo}, true))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(nil, true))
}

func TestChooseTransformAndAlpha(t *testing.T) {
	assert.Equal(t, vk.SurfaceTransformIdentityBit, chooseTransform(
		vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit|vk.SurfaceTransformRotate90Bit),
		vk.SurfaceTransformRotate90Bit))
	assert.Equal(t, vk.SurfaceTransformRotate90Bit, chooseTransform(
		vk.SurfaceTransformFlags(vk.SurfaceTransformRotate90Bit), vk.SurfaceTransformRotate90Bit))

	assert.Equal(t, vk.CompositeAlphaOpaqueBit, chooseCompositeAlpha(
		vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit|vk.CompositeAlphaInheritBit)))
	assert.Equal(t, vk.CompositeAlphaInheritBit, chooseCompositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit)))
	assert.Equal(t, vk.CompositeAlphaOpaqueBit, chooseCompositeAlpha(0))
}

func TestChooseExtent(t *testing.T) {
	w, h := chooseExtent(extentLimits{currentWidth: 1024, currentHeight: 768}, 10, 10)
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), h)

	limits := extentLimits{
		currentWidth: vk.MaxUint32, currentHeight: vk.MaxUint32,
		minWidth: 16, minHeight: 16,
		maxWidth: 4096, maxHeight: 2048,
	}
	w, h = chooseExtent(limits, 800, 600)
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)

	w, h = chooseExtent(limits, 8, 9000)
	assert.Equal(t, uint32(16), w)
	assert.Equal(t, uint32(2048), h)

	w, h = chooseExtent(limits, -1, 0)
	assert.Equal(t, uint32(16), w)
	assert.Equal(t, uint32(16), h)
}
