package vulkan

import (
	"strings"
	"unsafe"

	"github.com/google/uuid"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vizcore/engine/core"
)

// validationIgnoreSubstrings mutes debug-messenger noise known to be
// harmless on common drivers, rather than letting validation chatter
// drown out genuine errors.
var validationIgnoreSubstrings = []string{
	"Device Extension:",
	"Instance Extension:",
	"loader_get_json",
}

// GPUInfo is a read-only snapshot of one enumerated physical device, taken
// once at Host creation so GPU selection doesn't need to re-query the
// driver on every call.
type GPUInfo struct {
	Name           string
	IsDiscrete     bool
	VRAMBytes      uint64
	PhysicalDevice vk.PhysicalDevice
}

// Host owns the Vulkan instance and (optionally) the validation debug
// messenger. It is the root object every other resource in this package is
// created from.
type Host struct {
	Lifecycle

	ID uuid.UUID

	Instance   vk.Instance
	DebugMessenger vk.DebugReportCallback

	ValidationEnabled    bool
	ValidationErrorCount int

	GPUs []GPUInfo
}

// HostCreateInfo configures instance creation.
type HostCreateInfo struct {
	ApplicationName    string
	ValidationEnabled  bool
	RequiredExtensions []string
}

// NewHost creates a Vulkan instance, enumerates physical devices, and
// optionally installs a debug report callback when validation is enabled.
func NewHost(info HostCreateInfo) (*Host, error) {
	core.SetLevelFromEnv()

	h := &Host{
		Lifecycle:         NewLifecycle(KindHost),
		ID:                uuid.New(),
		ValidationEnabled: info.ValidationEnabled,
	}
	h.SetInit()

	if err := vk.Init(); err != nil {
		return nil, err
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   VulkanSafeString(info.ApplicationName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        VulkanSafeString("vizcore"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion11,
	}

	extensions := append([]string{}, info.RequiredExtensions...)
	extensions = append(extensions, "VK_EXT_debug_report")
	layers := []string{}
	if info.ValidationEnabled {
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		core.LogInfo("validation layers enabled")
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     VulkanSafeStrings(layers),
	}

	var instance vk.Instance
	result := vk.CreateInstance(&createInfo, nil, &instance)
	if !VulkanResultIsSuccess(result) {
		core.LogFatal("failed to create vulkan instance: %s", VulkanResultString(result, true))
		return nil, errUnknownf("vkCreateInstance failed: %s", VulkanResultString(result, true))
	}
	h.Instance = instance
	vk.InitInstance(instance)

	if info.ValidationEnabled {
		if err := h.installDebugMessenger(); err != nil {
			core.LogWarn("failed to install debug messenger: %s", err)
		}
	}

	if err := h.enumerateGPUs(); err != nil {
		return nil, err
	}

	h.SetCreated()
	return h, nil
}

func (h *Host) installDebugMessenger() error {
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: func(flags vk.DebugReportFlags, objType vk.DebugReportObjectType, obj uint64, location uint, msgCode int32,
			pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
			for _, ignore := range validationIgnoreSubstrings {
				if strings.Contains(pMessage, ignore) {
					return vk.Bool32(vk.False)
				}
			}
			if flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0 {
				h.ValidationErrorCount++
				core.LogError("validation: %s", pMessage)
			} else {
				core.LogWarn("validation: %s", pMessage)
			}
			return vk.Bool32(vk.False)
		},
	}
	var cb vk.DebugReportCallback
	result := vk.CreateDebugReportCallback(h.Instance, &createInfo, nil, &cb)
	if !VulkanResultIsSuccess(result) {
		return errUnknownf("vkCreateDebugReportCallbackEXT failed: %s", VulkanResultString(result, true))
	}
	h.DebugMessenger = cb
	return nil
}

func (h *Host) enumerateGPUs() error {
	var count uint32
	result := vk.EnumeratePhysicalDevices(h.Instance, &count, nil)
	if !VulkanResultIsSuccess(result) || count == 0 {
		return errUnknownf("no vulkan-capable GPUs found")
	}
	devices := make([]vk.PhysicalDevice, count)
	result = vk.EnumeratePhysicalDevices(h.Instance, &count, devices)
	if !VulkanResultIsSuccess(result) {
		return errUnknownf("vkEnumeratePhysicalDevices failed: %s", VulkanResultString(result, true))
	}

	h.GPUs = make([]GPUInfo, 0, count)
	for _, dev := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()

		var mem vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(dev, &mem)
		mem.Deref()

		var vram uint64
		for i := uint32(0); i < mem.MemoryHeapCount; i++ {
			heap := mem.MemoryHeaps[i]
			heap.Deref()
			if heap.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 && heap.Size > vram {
				vram = heap.Size
			}
		}

		name := vk.ToString(props.DeviceName[:])
		h.GPUs = append(h.GPUs, GPUInfo{
			Name:           name,
			IsDiscrete:     props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
			VRAMBytes:      vram,
			PhysicalDevice: dev,
		})
		core.LogInfo("found GPU: %s (discrete=%v, vram=%d MB)", name, props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu, vram/(1024*1024))
	}
	return nil
}

// GPUBest picks the best enumerated GPU: the discrete device with the most
// local VRAM, falling back to the device with the most VRAM overall (which
// may be integrated) when no discrete device is present. Ties are broken
// by enumeration order.
func (h *Host) GPUBest() (GPUInfo, bool) {
	var bestDiscrete, bestOverall GPUInfo
	haveDiscrete, haveAny := false, false
	for _, g := range h.GPUs {
		if !haveAny || g.VRAMBytes > bestOverall.VRAMBytes {
			bestOverall = g
			haveAny = true
		}
		if !g.IsDiscrete {
			continue
		}
		if !haveDiscrete || g.VRAMBytes > bestDiscrete.VRAMBytes {
			bestDiscrete = g
			haveDiscrete = true
		}
	}
	if haveDiscrete {
		return bestDiscrete, true
	}
	if haveAny {
		return bestOverall, true
	}
	return GPUInfo{}, false
}

// Destroy tears down the debug messenger (if installed) and the instance,
// returning how many validation errors the debug messenger observed over
// the Host's lifetime. Idempotent: a repeat call is a no-op and returns 0.
func (h *Host) Destroy() int {
	if !h.SetDestroyed() {
		return 0
	}
	if h.DebugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(h.Instance, h.DebugMessenger, nil)
	}
	if h.Instance != vk.NullInstance {
		vk.DestroyInstance(h.Instance, nil)
	}
	return h.ValidationErrorCount
}
