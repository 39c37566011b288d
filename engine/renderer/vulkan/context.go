package vulkan

import (
	"errors"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vizcore/engine/core"
	"github.com/spaghettifunk/vizcore/engine/platform"
)

// Context is the top-level object a caller creates: it owns the Host, the
// selected GPU, the window surface (when running the native backend), the
// swapchain, per-frame synchronization primitives, and the resources
// registry and transfer engine every other piece of the API is built on.
type Context struct {
	Lifecycle

	Host *Host
	GPU  *GPU

	platform *platform.Platform
	surface  vk.Surface

	Swapchain *Swapchain
	Resources *Resources
	Transfer  *Transfer

	ImageAvailable *SemaphoreSet
	QueueComplete  *SemaphoreSet
	InFlightFences *FenceSet
	ImagesInFlight []*Fence

	FramebufferWidth, FramebufferHeight       uint32
	FramebufferSizeGeneration                 uint64
	lastFramebufferSizeGenerationSynchronized uint64

	CurrentFrame       uint32
	ImageIndex         uint32
	RecreatingSwapchain bool
	FrameDeltaTime     float64

	clock              *core.Clock
	lastClockElapsedNs float64
}

// ContextCreateInfo configures Context creation.
type ContextCreateInfo struct {
	ApplicationName   string
	ValidationEnabled bool
	Platform          *platform.Platform
	Width, Height     uint32

	// ConfigPath, when set, is loaded via core.LoadConfig and used to seed
	// any of the fields above left at their zero value (Width, Height) or
	// to force validation on (ValidationEnabled is OR'd, never cleared by
	// config), plus the swapchain's present mode preference.
	ConfigPath string
}

// NewContext creates a Host, picks the best GPU, creates a window surface
// (skipped entirely for the offscreen/none backends), then the swapchain,
// sync primitives, resources registry, and transfer engine.
func NewContext(info ContextCreateInfo) (*Context, error) {
	cfg := core.DefaultConfig()
	if info.ConfigPath != "" {
		loaded, err := core.LoadConfig(info.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if info.Width == 0 {
		info.Width = cfg.WindowWidth
	}
	if info.Height == 0 {
		info.Height = cfg.WindowHeight
	}
	validationEnabled := info.ValidationEnabled || cfg.ValidationEnabled

	c := &Context{
		Lifecycle:         NewLifecycle(KindWindow),
		platform:          info.Platform,
		FramebufferWidth:  info.Width,
		FramebufferHeight: info.Height,
	}
	c.SetInit()

	var requiredExtensions []string
	if info.Platform != nil {
		requiredExtensions = info.Platform.GetRequiredExtensionNames()
	}

	host, err := NewHost(HostCreateInfo{
		ApplicationName:    info.ApplicationName,
		ValidationEnabled:  validationEnabled,
		RequiredExtensions: requiredExtensions,
	})
	if err != nil {
		return nil, err
	}
	c.Host = host

	var surface vk.Surface
	if info.Platform != nil && info.Platform.Backend == platform.BackendNative {
		raw, err := info.Platform.CreateWindowSurface(host.Instance)
		if err != nil {
			return nil, err
		}
		surface = vk.Surface(raw)
	}
	c.surface = surface

	gpu, err := NewGPU(host, vk.NullPhysicalDevice, surface, GPURequirements{
		Graphics:          true,
		Present:           surface != vk.NullSurface,
		Transfer:          true,
		SamplerAnisotropy: true,
	})
	if err != nil {
		return nil, err
	}
	c.GPU = gpu

	if surface != vk.NullSurface {
		swapchain, err := NewSwapchain(gpu, surface, SwapchainConfig{
			Width:                 info.Width,
			Height:                info.Height,
			PresentModePreference: presentModeFromString(cfg.PresentMode),
		})
		if err != nil {
			return nil, err
		}
		c.Swapchain = swapchain
	}

	framesInFlight := uint32(2)
	if c.Swapchain != nil {
		framesInFlight = c.Swapchain.MaxFramesInFlight
	}

	imageAvailable, err := NewSemaphoreSet(gpu, int(framesInFlight))
	if err != nil {
		return nil, err
	}
	c.ImageAvailable = imageAvailable

	queueComplete, err := NewSemaphoreSet(gpu, int(framesInFlight))
	if err != nil {
		return nil, err
	}
	c.QueueComplete = queueComplete

	inFlightFences, err := NewFenceSet(gpu, int(framesInFlight), true)
	if err != nil {
		return nil, err
	}
	c.InFlightFences = inFlightFences
	c.ImagesInFlight = make([]*Fence, framesInFlight)

	c.Resources = NewResources(gpu)

	transfer, err := NewTransfer(gpu, framesInFlight)
	if err != nil {
		return nil, err
	}
	c.Transfer = transfer

	if err := core.MetricsInitialize(); err != nil {
		return nil, err
	}
	c.clock = core.NewClock()
	c.clock.Start()

	c.SetCreated()
	core.LogInfo("vulkan context created (host=%s, gpu=%s)", host.ID, vk.ToString(gpu.Properties.DeviceName[:]))
	return c, nil
}

// OnResize records a new framebuffer size and bumps the resize generation
// counter; the caller observes RequiresSwapchainRecreate() on its next
// frame and recreates accordingly, rather than recreating synchronously
// inside the resize event handler.
func (c *Context) OnResize(width, height uint32) {
	c.FramebufferWidth = width
	c.FramebufferHeight = height
	c.FramebufferSizeGeneration++
}

// RequiresSwapchainRecreate reports whether a resize has been observed
// since the last successful swapchain (re)creation.
func (c *Context) RequiresSwapchainRecreate() bool {
	return c.FramebufferSizeGeneration != c.lastFramebufferSizeGenerationSynchronized
}

// RecreateSwapchain rebuilds the swapchain at the current framebuffer size.
// Called both on an explicit resize and whenever an acquire/present
// reports AcquireNeedRecreate (including the Suboptimal case).
func (c *Context) RecreateSwapchain() error {
	if c.Swapchain == nil {
		return errors.New("context has no swapchain (offscreen context)")
	}
	if c.FramebufferWidth == 0 || c.FramebufferHeight == 0 {
		// Minimized: defer until the window reports a real size again.
		return core.ErrSwapchainBooting
	}
	c.RecreatingSwapchain = true
	defer func() { c.RecreatingSwapchain = false }()

	if err := c.Swapchain.Recreate(c.FramebufferWidth, c.FramebufferHeight); err != nil {
		return err
	}
	c.lastFramebufferSizeGenerationSynchronized = c.FramebufferSizeGeneration
	return nil
}

// BeginFrame acquires the next swapchain image, transparently recreating
// the swapchain and retrying once if the acquire reports
// AcquireNeedRecreate.
func (c *Context) BeginFrame() (uint32, error) {
	c.clock.Update()
	elapsed := c.clock.Elapsed()
	c.FrameDeltaTime = (elapsed - c.lastClockElapsedNs) / 1e9
	c.lastClockElapsedNs = elapsed
	if err := core.InputUpdate(c.FrameDeltaTime); err != nil {
		return 0, err
	}

	if c.RequiresSwapchainRecreate() {
		if err := c.RecreateSwapchain(); err != nil {
			return 0, err
		}
	}

	fence := c.InFlightFences.At(c.CurrentFrame)
	if !c.InFlightFences.Wait(fence, ^uint64(0)) {
		return 0, errUnknownf("timed out waiting for in-flight fence")
	}

	imageIndex, result, err := c.Swapchain.AcquireNextImage(^uint64(0), c.ImageAvailable.At(c.CurrentFrame), vk.NullFence)
	if err != nil {
		return 0, err
	}
	if result == AcquireNeedRecreate {
		if err := c.RecreateSwapchain(); err != nil {
			return 0, err
		}
		imageIndex, _, err = c.Swapchain.AcquireNextImage(^uint64(0), c.ImageAvailable.At(c.CurrentFrame), vk.NullFence)
		if err != nil {
			return 0, err
		}
	}

	c.ImageIndex = imageIndex
	if c.ImagesInFlight[imageIndex] != nil {
		c.InFlightFences.Wait(c.ImagesInFlight[imageIndex], ^uint64(0))
	}
	c.ImagesInFlight[imageIndex] = fence
	c.InFlightFences.Reset(fence)
	return imageIndex, nil
}

// EndFrame presents imageIndex, transparently recreating the swapchain on
// AcquireNeedRecreate, and advances the frame counter.
func (c *Context) EndFrame(imageIndex uint32) error {
	result, err := c.Swapchain.Present(c.GPU.PresentQueue, c.QueueComplete.At(c.CurrentFrame), imageIndex)
	if err != nil {
		return err
	}
	if result == AcquireNeedRecreate {
		if err := c.RecreateSwapchain(); err != nil {
			return err
		}
	}
	core.MetricsUpdate(c.FrameDeltaTime)
	if c.Transfer != nil {
		c.Transfer.MarkFrameObserved(int(c.CurrentFrame))
	}
	c.CurrentFrame = (c.CurrentFrame + 1) % uint32(len(c.InFlightFences.Fences))
	return nil
}

// FPS reports the most recently computed frames-per-second figure,
// refreshed once per second of accumulated frame time by EndFrame.
func (c *Context) FPS() float64 {
	return core.MetricsFPS()
}

// FrameTimeMS reports the rolling average frame time in milliseconds,
// refreshed every AVG_COUNT frames by EndFrame.
func (c *Context) FrameTimeMS() float64 {
	return core.MetricsFrameTime()
}

// Destroy tears down every owned object in reverse dependency order.
// Idempotent.
func (c *Context) Destroy() {
	if !c.SetDestroyed() {
		return
	}
	if c.GPU != nil && c.GPU.Device != vk.NullDevice {
		vk.DeviceWaitIdle(c.GPU.Device)
	}
	if c.Transfer != nil {
		c.Transfer.Destroy()
	}
	if c.Resources != nil {
		c.Resources.Destroy()
	}
	if c.InFlightFences != nil {
		c.InFlightFences.Destroy()
	}
	if c.QueueComplete != nil {
		c.QueueComplete.Destroy()
	}
	if c.ImageAvailable != nil {
		c.ImageAvailable.Destroy()
	}
	if c.Swapchain != nil {
		c.Swapchain.Destroy()
	}
	if c.GPU != nil {
		c.GPU.Destroy()
	}
	if c.surface != vk.NullSurface && c.Host != nil {
		vk.DestroySurface(c.Host.Instance, c.surface, nil)
	}
	if c.Host != nil {
		if errCount := c.Host.Destroy(); errCount > 0 {
			core.LogWarn("host observed %d validation error(s) over its lifetime", errCount)
		}
	}
}
