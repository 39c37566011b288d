// Package platform is the windowing shim the GPU core consumes as an
// external collaborator (native surface creation, event polling) without
// depending on any particular windowing toolkit beyond this package.
package platform

import (
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/vizcore/engine/core"
)

// Backend selects which windowing implementation a Platform uses.
type Backend int

const (
	BackendNative Backend = iota
	BackendOffscreen
	BackendNone
)

// DefaultBackend honors DVZ_DEFAULT_BACKEND: when set to "offscreen" the
// engine runs without creating any native window or surface.
func DefaultBackend() Backend {
	if os.Getenv("DVZ_DEFAULT_BACKEND") == "offscreen" {
		return BackendOffscreen
	}
	return BackendNative
}

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

var glfwInitialized bool

// GetAbsoluteTime returns a monotonically increasing time value in seconds,
// used to seed math/random utilities. Returns 0 before any native Platform
// has started up.
func GetAbsoluteTime() float64 {
	if !glfwInitialized {
		return 0
	}
	return glfw.GetTime()
}

// Platform owns the native window (when running the native backend) and
// forwards its events onto the core event bus.
type Platform struct {
	Backend   Backend
	Window    *glfw.Window
	startTime float64

	offscreenWidth  uint32
	offscreenHeight uint32
}

func New(backend Backend) (*Platform, error) {
	return &Platform{Backend: backend}, nil
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if p.Backend == BackendOffscreen || p.Backend == BackendNone {
		p.startTime = 0
		return nil
	}

	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}
	if err := core.InputInitialize(); err != nil {
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetMouseButtonCallback(mouseButtonCallback)
	p.Window.SetCursorPosCallback(cursorPosCallback)
	p.Window.SetScrollCallback(scrollCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	glfwInitialized = true

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Backend == BackendNative {
		if err := core.InputShutdown(); err != nil {
			return err
		}
		glfw.Terminate()
	}
	return nil
}

// PumpMessages drains pending OS/window events, dispatching them onto the
// core event bus. A no-op for the offscreen backend.
func (p *Platform) PumpMessages() {
	if p.Backend != BackendNative {
		return
	}
	glfw.PollEvents()
}

// FramebufferSize reports the drawable size in pixels, which differs from
// the window's screen size on high-DPI displays. Offscreen backends report
// a caller-fixed size via SetOffscreenSize.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Backend != BackendNative || p.Window == nil {
		return p.offscreenWidth, p.offscreenHeight
	}
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// SetOffscreenSize fixes the reported framebuffer size for the offscreen
// backend, which has no window to query.
func (p *Platform) SetOffscreenSize(width, height uint32) {
	p.offscreenWidth = width
	p.offscreenHeight = height
}

// GetAbsoluteTime returns seconds elapsed since Startup was called,
// matching glfw's monotonic clock; used to seed math/random utilities.
func (p *Platform) GetAbsoluteTime() float64 {
	if p.Backend != BackendNative {
		return 0
	}
	return glfw.GetTime() - p.startTime
}

// GetRequiredExtensionNames returns the Vulkan instance extensions the
// windowing backend needs in order to create a surface later.
func (p *Platform) GetRequiredExtensionNames() []string {
	if p.Backend != BackendNative {
		return nil
	}
	return glfw.GetRequiredInstanceExtensions()
}

// CreateWindowSurface creates a native Vulkan surface for the current
// window, returning the raw VkSurfaceKHR handle as a uintptr. instance is
// passed through to glfw's CreateWindowSurface as-is (it accepts any
// Vulkan binding's Instance type via reflection), so callers pass their
// vk.Instance value directly without converting it first.
func (p *Platform) CreateWindowSurface(instance interface{}) (uintptr, error) {
	if p.Backend != BackendNative || p.Window == nil {
		return 0, nil
	}
	return p.Window.CreateWindowSurface(instance, nil)
}

// keyCallback, mouseButtonCallback, cursorPosCallback and scrollCallback
// route through input.go's InputProcess* functions rather than firing
// events directly: that keeps InputState's current/previous snapshots (and
// InputIsKeyDown/InputWasButtonUp/etc.) in sync with what the event bus
// reports, instead of the two diverging.
func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	pressed := action == glfw.Press || action == glfw.Repeat
	if err := core.InputProcessKey(core.KeyCode(key), pressed); err != nil {
		core.LogWarn("input: failed to process key event: %s", err)
	}
}

func mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	pressed := action == glfw.Press
	if err := core.InputProcessButton(core.Button(button), pressed); err != nil {
		core.LogWarn("input: failed to process mouse button event: %s", err)
	}
}

func cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	if err := core.InputProcessMouseMove(uint16(xpos), uint16(ypos)); err != nil {
		core.LogWarn("input: failed to process mouse move event: %s", err)
	}
}

func scrollCallback(w *glfw.Window, xoff, yoff float64) {
	if err := core.InputProcessMouseWheel(int8(yoff)); err != nil {
		core.LogWarn("input: failed to process mouse wheel event: %s", err)
	}
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	var ctx core.EventContext
	ctx.Data.U16[0] = uint16(width)
	ctx.Data.U16[1] = uint16(height)
	core.EventFire(core.EVENT_CODE_RESIZED, w, ctx)
}
