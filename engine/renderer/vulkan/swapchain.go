package vulkan

import (
	"math"
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vizcore/engine/core"
)

// presentModeFromString maps a config file's present_mode string onto a
// vk.PresentMode, returning 0 ("use default preference order") for an
// empty or unrecognized value rather than failing config load over it.
func presentModeFromString(s string) vk.PresentMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return vk.PresentModeImmediate
	case "fifo":
		return vk.PresentModeFifo
	case "fifo_relaxed", "fifo-relaxed":
		return vk.PresentModeFifoRelaxed
	case "mailbox":
		return vk.PresentModeMailbox
	default:
		return 0
	}
}

// SwapchainSupportInfo captures the surface capabilities/formats/present
// modes a physical device advertises for a given surface.
type SwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (SwapchainSupportInfo, error) {
	var info SwapchainSupportInfo

	var caps vk.SurfaceCapabilities
	result := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &caps)
	if !VulkanResultIsSuccess(result) {
		return info, errUnknownf("vkGetPhysicalDeviceSurfaceCapabilitiesKHR failed: %s", VulkanResultString(result, true))
	}
	caps.Deref()
	info.Capabilities = caps

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)
	if formatCount > 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, formats)
		info.Formats = formats
	}

	var presentModeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)
	if presentModeCount > 0 {
		modes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, modes)
		info.PresentModes = modes
	}

	return info, nil
}

// Swapchain owns the presentable image chain, its depth attachment, and
// the framebuffers built on top of them.
type Swapchain struct {
	Lifecycle

	gpu     *GPU
	surface vk.Surface

	ImageFormat       vk.SurfaceFormat
	MaxFramesInFlight uint32
	Handle            vk.SwapchainKHR
	Images            []vk.Image
	Views             []vk.ImageView
	Depth             *ImageSet

	PresentModePreference vk.PresentMode
}

// SwapchainConfig configures (re)creation.
type SwapchainConfig struct {
	Width, Height         uint32
	PresentModePreference vk.PresentMode // 0 means "use default preference order"
}

func NewSwapchain(g *GPU, surface vk.Surface, cfg SwapchainConfig) (*Swapchain, error) {
	s := &Swapchain{
		Lifecycle:             NewLifecycle(KindSwapchain),
		gpu:                   g,
		surface:               surface,
		PresentModePreference: cfg.PresentModePreference,
	}
	s.SetInit()
	if err := s.create(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	s.SetCreated()
	return s, nil
}

func (s *Swapchain) create(width, height uint32) error {
	g := s.gpu
	support, err := querySwapchainSupport(g.PhysicalDevice, s.surface)
	if err != nil {
		return err
	}
	if len(support.Formats) == 0 {
		return errUnknownf("surface has no supported formats")
	}

	format := support.Formats[0]
	for _, f := range support.Formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			format = f
			break
		}
	}
	s.ImageFormat = format

	presentMode := vk.PresentModeFifo
	preference := s.PresentModePreference
	if preference == 0 {
		preference = vk.PresentModeMailbox
	}
	for _, m := range support.PresentModes {
		if m == preference {
			presentMode = m
			break
		}
	}

	caps := support.Capabilities
	caps.Deref()
	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	} else {
		extent.Width = clampU32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
		extent.Height = clampU32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	sharingMode := vk.SharingModeExclusive
	var queueFamilyIndices []uint32
	if g.GraphicsFamilyIndex != g.PresentFamilyIndex {
		sharingMode = vk.SharingModeConcurrent
		queueFamilyIndices = []uint32{g.GraphicsFamilyIndex, g.PresentFamilyIndex}
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               s.surface,
		MinImageCount:         imageCount,
		ImageFormat:           format.Format,
		ImageColorSpace:       format.ColorSpace,
		ImageExtent:           extent,
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode:      sharingMode,
		QueueFamilyIndexCount: uint32(len(queueFamilyIndices)),
		PQueueFamilyIndices:   queueFamilyIndices,
		PreTransform:          caps.CurrentTransform,
		CompositeAlpha:        vk.CompositeAlphaOpaqueBit,
		PresentMode:           presentMode,
		Clipped:               vk.True,
	}

	err = g.locks.SafeCall(LockSwapchainManagement, func() error {
		var handle vk.SwapchainKHR
		result := vk.CreateSwapchain(g.Device, &createInfo, nil, &handle)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateSwapchainKHR failed: %s", VulkanResultString(result, true))
		}
		s.Handle = handle
		return nil
	})
	if err != nil {
		return err
	}

	var count uint32
	vk.GetSwapchainImages(g.Device, s.Handle, &count, nil)
	images := make([]vk.Image, count)
	vk.GetSwapchainImages(g.Device, s.Handle, &count, images)
	s.Images = images
	s.MaxFramesInFlight = count

	s.Views = make([]vk.ImageView, count)
	for i, img := range images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   format.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		result := vk.CreateImageView(g.Device, &viewInfo, nil, &s.Views[i])
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateImageView failed: %s", VulkanResultString(result, true))
		}
	}

	depth, err := NewImageSet(g, 1, ImageConfig{
		Shape:       ImageShape2D,
		Width:       extent.Width,
		Height:      extent.Height,
		Format:      g.DepthFormat,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageDepthStencilAttachmentBit,
		MemoryFlags: vk.MemoryPropertyDeviceLocalBit,
		AspectFlags: vk.ImageAspectDepthBit,
		CreateView:  true,
	})
	if err != nil {
		return err
	}
	s.Depth = depth

	return nil
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Recreate tears down and rebuilds the swapchain at the new size. Called
// whenever AcquireNextImage or Present reports the surface no longer
// matches, including the Suboptimal case, which this core always treats as
// a recreate trigger rather than a hard failure.
func (s *Swapchain) Recreate(width, height uint32) error {
	s.destroy()
	return s.create(width, height)
}

func (s *Swapchain) destroy() {
	g := s.gpu
	vk.DeviceWaitIdle(g.Device)
	if s.Depth != nil {
		s.Depth.Destroy()
	}
	for _, v := range s.Views {
		if v != vk.NullImageView {
			vk.DestroyImageView(g.Device, v, nil)
		}
	}
	s.Views = nil
	s.Images = nil
	if s.Handle != vk.NullSwapchainKHR {
		vk.DestroySwapchain(g.Device, s.Handle, nil)
	}
}

// AcquireResult reports the outcome of an acquire attempt.
type AcquireResult int

const (
	AcquireOK AcquireResult = iota
	AcquireNeedRecreate
)

// AcquireNextImage acquires the next presentable image index. A
// VK_ERROR_OUT_OF_DATE or VK_SUBOPTIMAL result both map to
// AcquireNeedRecreate; the caller recreates and retries rather than
// treating either as fatal.
func (s *Swapchain) AcquireNextImage(timeoutNs uint64, imageAvailable vk.Semaphore, fence vk.Fence) (uint32, AcquireResult, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(s.gpu.Device, s.Handle, timeoutNs, imageAvailable, fence, &imageIndex)
	outcome, err := classifyPresentResult(result)
	if err != nil {
		return 0, AcquireOK, errUnknownf("vkAcquireNextImageKHR failed: %s", VulkanResultString(result, true))
	}
	if outcome == AcquireNeedRecreate && result == vk.ErrorOutOfDateKhr {
		return 0, outcome, nil
	}
	return imageIndex, outcome, nil
}

// classifyPresentResult maps a raw vk.Result from acquire/present into the
// reactive AcquireResult outcome. Suboptimal and out-of-date both signal
// need-recreate rather than a hard failure; everything else that isn't
// VK_SUCCESS is a real error. Split out as a pure function so the mapping
// can be exercised without a live swapchain.
func classifyPresentResult(result vk.Result) (AcquireResult, error) {
	switch result {
	case vk.Success:
		return AcquireOK, nil
	case vk.Suboptimal, vk.ErrorOutOfDateKhr:
		return AcquireNeedRecreate, nil
	default:
		return AcquireOK, errUnknownf("unexpected result: %s", VulkanResultString(result, true))
	}
}

// Present presents imageIndex after waiting on renderComplete. Like
// AcquireNextImage, Suboptimal and OutOfDate both map to
// AcquireNeedRecreate instead of an error.
func (s *Swapchain) Present(presentQueue vk.Queue, renderComplete vk.Semaphore, imageIndex uint32) (AcquireResult, error) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.SwapchainKHR{s.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	var result vk.Result
	err := s.gpu.locks.SafeQueueCall(s.gpu.PresentFamilyIndex, func() error {
		result = vk.QueuePresent(presentQueue, &presentInfo)
		return nil
	})
	if err != nil {
		return AcquireOK, err
	}

	outcome, classifyErr := classifyPresentResult(result)
	if classifyErr != nil {
		return AcquireOK, errUnknownf("vkQueuePresentKHR failed: %s", VulkanResultString(result, true))
	}
	if outcome == AcquireNeedRecreate {
		core.LogDebug("swapchain present reported suboptimal/out-of-date, recreate scheduled")
	}
	return outcome, nil
}

// Destroy tears the swapchain down. Idempotent.
func (s *Swapchain) Destroy() {
	if !s.SetDestroyed() {
		return
	}
	s.destroy()
}
