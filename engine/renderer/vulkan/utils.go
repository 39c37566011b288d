package vulkan

import (
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// unsafePtr returns a pointer to the first byte of data, or nil for an
// empty slice. Used at the handful of cgo call sites (push constants,
// specialization data) that take a raw unsafe.Pointer instead of a typed
// slice.
func unsafePtr(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Pointer(&data[0])
}

// VulkanResultIsSuccess reports whether a vk.Result represents success.
// Several non-VK_SUCCESS codes (Suboptimal chief among them) are still
// successes as far as the caller's control flow is concerned.
func VulkanResultIsSuccess(result vk.Result) bool {
	switch result {
	case vk.Success,
		vk.NotReady,
		vk.Timeout,
		vk.EventSet,
		vk.EventReset,
		vk.Incomplete,
		vk.Suboptimal:
		return true
	default:
		return false
	}
}

// VulkanResultString renders a vk.Result into a human-readable string,
// optionally extended with a short remediation hint.
func VulkanResultString(result vk.Result, getExtended bool) string {
	var base, extended string
	switch result {
	case vk.Success:
		base, extended = "VK_SUCCESS", "command completed successfully"
	case vk.NotReady:
		base, extended = "VK_NOT_READY", "a fence or query has not yet completed"
	case vk.Timeout:
		base, extended = "VK_TIMEOUT", "a wait operation has not completed in the specified time"
	case vk.EventSet:
		base, extended = "VK_EVENT_SET", "an event is signaled"
	case vk.EventReset:
		base, extended = "VK_EVENT_RESET", "an event is unsignaled"
	case vk.Incomplete:
		base, extended = "VK_INCOMPLETE", "a return array was too small for the result"
	case vk.ErrorOutOfHostMemory:
		base, extended = "VK_ERROR_OUT_OF_HOST_MEMORY", "host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		base, extended = "VK_ERROR_OUT_OF_DEVICE_MEMORY", "device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		base, extended = "VK_ERROR_INITIALIZATION_FAILED", "initialization of an object could not be completed"
	case vk.ErrorDeviceLost:
		base, extended = "VK_ERROR_DEVICE_LOST", "the logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		base, extended = "VK_ERROR_MEMORY_MAP_FAILED", "mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		base, extended = "VK_ERROR_LAYER_NOT_PRESENT", "a requested layer is not present"
	case vk.ErrorExtensionNotPresent:
		base, extended = "VK_ERROR_EXTENSION_NOT_PRESENT", "a requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		base, extended = "VK_ERROR_FEATURE_NOT_PRESENT", "a requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		base, extended = "VK_ERROR_INCOMPATIBLE_DRIVER", "no driver can support the requested Vulkan version"
	case vk.ErrorTooManyObjects:
		base, extended = "VK_ERROR_TOO_MANY_OBJECTS", "too many objects of this type have already been created"
	case vk.ErrorFormatNotSupported:
		base, extended = "VK_ERROR_FORMAT_NOT_SUPPORTED", "a requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		base, extended = "VK_ERROR_FRAGMENTED_POOL", "a pool allocation failed due to fragmentation"
	case vk.ErrorOutOfDateKhr:
		base, extended = "VK_ERROR_OUT_OF_DATE_KHR", "the surface no longer matches the swapchain"
	case vk.ErrorSurfaceLostKhr:
		base, extended = "VK_ERROR_SURFACE_LOST_KHR", "the surface is no longer available"
	case vk.ErrorNativeWindowInUseKhr:
		base, extended = "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "the native window is already in use"
	case vk.Suboptimal:
		base, extended = "VK_SUBOPTIMAL_KHR", "the swapchain no longer matches the surface properties exactly, but can still present"
	case vk.ErrorOutOfPoolMemory:
		base, extended = "VK_ERROR_OUT_OF_POOL_MEMORY", "a descriptor pool creation or allocation has failed due to exhaustion"
	case vk.ErrorInvalidExternalHandle:
		base, extended = "VK_ERROR_INVALID_EXTERNAL_HANDLE", "an external handle is not a valid handle of the specified type"
	case vk.ErrorValidationFailedExt:
		base, extended = "VK_ERROR_VALIDATION_FAILED_EXT", "a validation layer found an error"
	default:
		base, extended = fmt.Sprintf("UNKNOWN_RESULT(%d)", int32(result)), "unrecognized vk.Result"
	}
	if getExtended {
		return fmt.Sprintf("%s: %s", base, extended)
	}
	return base
}

// ConditionalOperator mirrors a ternary: returns res1 when condition holds,
// res2 otherwise.
func ConditionalOperator(condition bool, res1, res2 string) string {
	if condition {
		return res1
	}
	return res2
}

// VulkanSafeString null-terminates a Go string for passage across cgo as a
// C string, leaving already null-terminated strings untouched.
func VulkanSafeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

// VulkanSafeStrings null-terminates every string in list.
func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = VulkanSafeString(s)
	}
	return out
}

// FindFirstZeroInByteArray returns the index of the first zero byte in arr,
// or -1 if none is found. Used when scanning fixed-size generation/id arrays.
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return -1
}

// clipIndex is the single shared per-frame clipping helper: a resource with
// `count` frame-indexed copies (1 for a standalone resource, N for one
// fanned out across swapchain images) maps a raw frame counter onto a valid
// slice index. Every piece of code touching a per-frame resource array goes
// through this helper rather than open-coding the clamp, so the `count == 1
// always means index 0` invariant can't drift out of sync between call
// sites.
func clipIndex(count, frame uint32) uint32 {
	if count <= 1 {
		return 0
	}
	if frame > count-1 {
		return count - 1
	}
	return frame
}
