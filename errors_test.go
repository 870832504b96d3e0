package hephaistos

import (
	stderrors "errors"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestCheckResult(t *testing.T) {
	assert.NoError(t, checkResult(vk.Success, "create buffer"))

	err := checkResult(vk.ErrorOutOfDeviceMemory, "create buffer")
	assert.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.False(t, IsStale(err))
	assert.Contains(t, err.Error(), "create buffer")
	assert.Contains(t, err.Error(), "vulkan error")
}

func TestNewError(t *testing.T) {
	assert.NoError(t, newError(vk.Success))
	assert.Error(t, newError(vk.ErrorDeviceLost))
	assert.True(t, isError(vk.ErrorInitializationFailed))
	assert.False(t, isError(vk.Success))
}

func TestFatalf(t *testing.T) {
	cause := errors.New("driver said no")
	err := fatalf(cause, "bind %s", "image")
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bind image")

	assert.True(t, IsFatal(fatalf(nil, "nothing")))
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := errors.Wrap(errors.Wrapf(ErrSwapchainStale, "acquire"), "frame 12")
	assert.True(t, IsStale(err))
	assert.False(t, IsFatal(err))

	err = errors.Wrapf(ErrResourcesAlive, "%d resources", 3)
	assert.ErrorIs(t, err, ErrResourcesAlive)
	assert.Contains(t, err.Error(), "3 resources")
}

func TestErrorKindsWithStandardLibrary(t *testing.T) {
	err := checkResult(vk.ErrorOutOfDeviceMemory, "allocate memory")
	assert.True(t, stderrors.Is(err, ErrFatal))
	assert.ErrorIs(t, err, ErrFatal)
	assert.False(t, stderrors.Is(err, ErrSwapchainStale))

	wrapped := errors.Wrap(err, "upload mesh")
	assert.True(t, stderrors.Is(wrapped, ErrFatal))
	assert.True(t, IsFatal(wrapped))

	adapter := withKind(errors.Wrapf(ErrNoSuitableAdapter, "2 physical devices"), ErrFatal)
	assert.ErrorIs(t, adapter, ErrNoSuitableAdapter)
	assert.ErrorIs(t, adapter, ErrFatal)
	assert.Equal(t, "2 physical devices: "+ErrNoSuitableAdapter.Error(), adapter.Error())

	loader := withKind(errors.New("libvulkan.so.1 missing"), ErrVulkanUnavailable)
	assert.ErrorIs(t, loader, ErrVulkanUnavailable)
	assert.False(t, IsFatal(loader))

	assert.NoError(t, withKind(nil, ErrFatal))
}
