package hephaistos

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var (
	// ErrFatal marks failures the layer cannot recover from: object creation,
	// memory allocation or binding, fence waits and presentation errors other
	// than swapchain staleness. Callers decide whether to log, retry or shut down.
	ErrFatal = errors.New("hephaistos: fatal vulkan failure")

	// ErrNoSuitableAdapter is returned when no physical device exposes a queue
	// family with the requested capabilities.
	ErrNoSuitableAdapter = errors.New("hephaistos: no suitable adapter")

	// ErrSwapchainStale is returned by acquire and present when the surface no
	// longer matches the swapchain. The swapchain must be recreated.
	ErrSwapchainStale = errors.New("hephaistos: swapchain out of date")

	// ErrVulkanUnavailable is returned when the Vulkan loader cannot be initialised.
	ErrVulkanUnavailable = errors.New("hephaistos: vulkan loader unavailable")

	// ErrResourcesAlive is returned by Device.Destroy while resources created
	// from the device have not been destroyed.
	ErrResourcesAlive = errors.New("hephaistos: device still owns live resources")

	// ErrAttachmentMismatch is returned when a render pass is begun with
	// attachments that do not match its shape.
	ErrAttachmentMismatch = errors.New("hephaistos: attachments do not match render pass")
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// newError converts a vulkan result into an error carrying a stack trace.
// Success yields nil.
func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return errors.WithStackDepth(errors.Newf("vulkan error: %s (%d)", resultString(ret), ret), 1)
}

func resultString(ret vk.Result) string {
	if err := vk.Error(ret); err != nil {
		return err.Error()
	}
	return "success"
}

// kindError tags a chain with one of the sentinel kinds above. Is makes the
// kind visible to both the standard library and cockroachdb errors.Is, while
// Unwrap keeps the cause reachable.
type kindError struct {
	cause error
	kind  error
}

func (e *kindError) Error() string { return e.cause.Error() }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Cause() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

func withKind(err, kind error) error {
	if err == nil {
		return nil
	}
	return &kindError{cause: err, kind: kind}
}

// fatalf wraps err with context and marks it as ErrFatal.
func fatalf(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return withKind(errors.Wrapf(err, format, args...), ErrFatal)
}

// checkResult turns ret into a fatal error annotated with the operation name.
func checkResult(ret vk.Result, op string) error {
	if !isError(ret) {
		return nil
	}
	return fatalf(newError(ret), "%s", op)
}

// IsFatal reports whether err is marked fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsStale reports whether err signals swapchain staleness.
func IsStale(err error) bool {
	return errors.Is(err, ErrSwapchainStale)
}
