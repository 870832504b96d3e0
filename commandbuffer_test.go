package hephaistos

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestRecordFailure(t *testing.T) {
	cause := errors.New("bad draw")
	assert.Same(t, cause, recordFailure(cause, nil))

	endErr := checkResult(vk.ErrorOutOfDeviceMemory, "end command buffer")
	err := recordFailure(cause, endErr)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "record: bad draw")
	assert.Contains(t, fmt.Sprintf("%+v", err), "end command buffer")
}
