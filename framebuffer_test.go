package hephaistos

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFramebuffers struct {
	created   []framebufferKey
	formats   [][]vk.Format
	destroyed []vk.Framebuffer
}

func (f *fakeFramebuffers) createFramebuffer(pass vk.RenderPass, key framebufferKey, formats []vk.Format) (vk.Framebuffer, error) {
	f.created = append(f.created, key)
	f.formats = append(f.formats, formats)
	return vk.Framebuffer(fakeHandle(len(f.created))), nil
}

func (f *fakeFramebuffers) destroyFramebuffer(fb vk.Framebuffer) {
	f.destroyed = append(f.destroyed, fb)
}

func colorDepthDesc() RenderPassDesc {
	return RenderPassDesc{
		ColorAttachments: []vk.AttachmentDescription{
			{Format: vk.FormatR8g8b8a8Unorm},
			{Format: vk.FormatR16g16b16a16Sfloat},
		},
		DepthAttachment: &vk.AttachmentDescription{Format: vk.FormatD32Sfloat},
	}
}

var (
	colorShape = FramebufferAttachmentDesc{
		Usage:      vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		LayerCount: 1,
	}
	depthShape = FramebufferAttachmentDesc{
		Usage:      vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		LayerCount: 1,
	}
)

func TestFramebufferKeyShape(t *testing.T) {
	cache := newFramebufferCache(vk.RenderPass(fakeHandle(1)), colorDepthDesc(), &fakeFramebuffers{})

	k, err := cache.key(640, 480, []FramebufferAttachmentDesc{colorShape, colorShape}, &depthShape)
	require.NoError(t, err)
	assert.Equal(t, 3, k.count)
	assert.Equal(t, []FramebufferAttachmentDesc{colorShape, colorShape, depthShape}, k.shapes())
	assert.Equal(t, uint32(640), k.width)
	assert.Equal(t, uint32(480), k.height)

	colorOnly := newFramebufferCache(vk.RenderPass(fakeHandle(2)), RenderPassDesc{
		ColorAttachments: []vk.AttachmentDescription{{Format: vk.FormatB8g8r8a8Unorm}},
	}, &fakeFramebuffers{})
	k, err = colorOnly.key(1, 1, []FramebufferAttachmentDesc{colorShape}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, k.count)
}

func TestFramebufferKeyMismatch(t *testing.T) {
	cache := newFramebufferCache(vk.RenderPass(fakeHandle(1)), colorDepthDesc(), &fakeFramebuffers{})

	_, err := cache.key(8, 8, []FramebufferAttachmentDesc{colorShape}, &depthShape)
	assert.ErrorIs(t, err, ErrAttachmentMismatch)

	_, err = cache.key(8, 8, []FramebufferAttachmentDesc{colorShape, colorShape}, nil)
	assert.ErrorIs(t, err, ErrAttachmentMismatch)

	_, err = cache.key(8, 8, []FramebufferAttachmentDesc{colorShape, colorShape, colorShape}, &depthShape)
	assert.ErrorIs(t, err, ErrAttachmentMismatch)
}

func TestFramebufferCacheReuse(t *testing.T) {
	factory := &fakeFramebuffers{}
	pass := vk.RenderPass(fakeHandle(1))
	cache := newFramebufferCache(pass, colorDepthDesc(), factory)
	color := []FramebufferAttachmentDesc{colorShape, colorShape}

	k1, err := cache.key(640, 480, color, &depthShape)
	require.NoError(t, err)
	fb1, err := cache.getOrCreate(k1)
	require.NoError(t, err)

	k2, err := cache.key(640, 480, color, &depthShape)
	require.NoError(t, err)
	fb2, err := cache.getOrCreate(k2)
	require.NoError(t, err)
	assertSameHandle(t, fb1, fb2)
	assert.Equal(t, 1, cache.Len())

	resized, err := cache.key(800, 600, color, &depthShape)
	require.NoError(t, err)
	fb3, err := cache.getOrCreate(resized)
	require.NoError(t, err)
	assertDifferentHandle(t, fb1, fb3)

	storage := colorShape
	storage.Usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	reshaped, err := cache.key(640, 480, []FramebufferAttachmentDesc{colorShape, storage}, &depthShape)
	require.NoError(t, err)
	fb4, err := cache.getOrCreate(reshaped)
	require.NoError(t, err)
	assertDifferentHandle(t, fb1, fb4)

	assert.Equal(t, 3, cache.Len())
	require.Len(t, factory.formats, 3)
	assert.Equal(t, []vk.Format{vk.FormatR8g8b8a8Unorm, vk.FormatR16g16b16a16Sfloat, vk.FormatD32Sfloat}, factory.formats[0])

	cache.destroy()
	assertHandlesMatch(t, []vk.Framebuffer{fb1, fb3, fb4}, factory.destroyed)
	assert.Zero(t, cache.Len())
}
