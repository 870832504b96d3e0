package hephaistos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckExisting(t *testing.T) {
	actual := []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface", "VK_EXT_debug_report\x00"}
	existing, missing := checkExisting(actual, []string{
		"VK_KHR_surface", "VK_EXT_debug_report\x00", "VK_KHR_surface", "VK_KHR_wayland_surface",
	})
	assert.Equal(t, []string{"VK_KHR_surface", "VK_EXT_debug_report"}, existing)
	assert.Equal(t, []string{"VK_KHR_wayland_surface"}, missing)

	existing, missing = checkExisting(actual, nil)
	assert.Empty(t, existing)
	assert.Empty(t, missing)
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "abc\x00", safeString("abc"))
	assert.Equal(t, "abc\x00", safeString("abc\x00"))
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}
