package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestVulkanResultIsSuccess(t *testing.T) {
	successes := []vk.Result{vk.Success, vk.Suboptimal, vk.Timeout, vk.Incomplete}
	for _, r := range successes {
		if !VulkanResultIsSuccess(r) {
			t.Errorf("expected %v to be a success", r)
		}
	}

	failures := []vk.Result{vk.ErrorDeviceLost, vk.ErrorOutOfHostMemory, vk.ErrorInitializationFailed}
	for _, r := range failures {
		if VulkanResultIsSuccess(r) {
			t.Errorf("expected %v to be a failure", r)
		}
	}
}

func TestVulkanResultString(t *testing.T) {
	if s := VulkanResultString(vk.Success, false); s != "VK_SUCCESS" {
		t.Errorf("got %q", s)
	}
	if s := VulkanResultString(vk.Success, true); s == "VK_SUCCESS" {
		t.Errorf("extended form should add detail, got %q", s)
	}
}

func TestVulkanSafeString(t *testing.T) {
	if got := VulkanSafeString("hello"); got != "hello\x00" {
		t.Errorf("got %q", got)
	}
	if got := VulkanSafeString("hello\x00"); got != "hello\x00" {
		t.Errorf("should not double null-terminate, got %q", got)
	}
}

func TestFindFirstZeroInByteArray(t *testing.T) {
	if idx := FindFirstZeroInByteArray([]byte{1, 2, 0, 3}); idx != 2 {
		t.Errorf("got %d, want 2", idx)
	}
	if idx := FindFirstZeroInByteArray([]byte{1, 2, 3}); idx != -1 {
		t.Errorf("got %d, want -1", idx)
	}
}

func TestClipIndex(t *testing.T) {
	cases := []struct {
		count, frame, want uint32
	}{
		{1, 0, 0},
		{1, 5, 0},
		{3, 0, 0},
		{3, 1, 1},
		{3, 2, 2},
		{3, 5, 2},
		{0, 5, 0},
	}
	for _, c := range cases {
		if got := clipIndex(c.count, c.frame); got != c.want {
			t.Errorf("clipIndex(%d, %d) = %d, want %d", c.count, c.frame, got, c.want)
		}
	}
}
