package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vizcore/engine/core"
)

// QueueSlot names the logical queue roles a caller can request from a GPU.
// Several slots may resolve to the same underlying vk.Queue family when a
// device exposes fewer families than roles.
type QueueSlot int

const (
	QueueSlotGraphics QueueSlot = iota
	QueueSlotCompute
	QueueSlotTransfer
	QueueSlotPresent
)

// QueueRequest declares one queue slot: the capability mask it needs, and
// whether it additionally needs presentation support. This mirrors
// dvz_gpu_queue's bitmask-tagged slot request, scored against every queue
// family rather than hardcoded to a single family per role.
type QueueRequest struct {
	Slot         QueueSlot
	Mask         vk.QueueFlagBits
	NeedsPresent bool
}

// queueAssignment records which family (and which queue within it) a slot
// resolved to. Reused is set when every eligible family was already at
// capacity and this slot had to share a queue another slot was assigned.
type queueAssignment struct {
	family uint32
	index  uint32
	reused bool
}

// queueFamilyInfo records the family+queue-index chosen for each role
// during physical device evaluation.
type queueFamilyInfo struct {
	graphics uint32
	present  uint32
	compute  uint32
	transfer uint32

	graphicsIndex uint32
	presentIndex  uint32
	computeIndex  uint32
	transferIndex uint32
}

const familyUnset = ^uint32(0)

// GPU wraps a physical device, its logical device, and the queues/command
// pools requested against it. Every resource downstream of device creation
// (buffers, images, pipelines, commands) is created against a GPU.
type GPU struct {
	Lifecycle

	host *Host

	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	GraphicsFamilyIndex uint32
	PresentFamilyIndex  uint32
	ComputeFamilyIndex  uint32
	TransferFamilyIndex uint32

	// Queue index within each family, as resolved by the capacity-aware
	// slot assignment in scoreQueueFamilies. Nonzero when an earlier slot
	// already took queue 0 of the same family and the family had room for
	// another distinct queue; a slot that falls back to reuse gets the
	// family's most recently assigned index.
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32
	ComputeQueueIndex  uint32
	TransferQueueIndex uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	ComputeQueue  vk.Queue
	TransferQueue vk.Queue

	SupportsDeviceLocalHostVisible bool

	GraphicsCommandPool vk.CommandPool
	TransferCommandPool vk.CommandPool

	locks *LockPool

	DepthFormat        vk.Format
	DepthChannelCount  uint32
}

// GPURequirements narrows which physical devices are acceptable.
type GPURequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	Transfer             bool
	SamplerAnisotropy    bool
	DiscreteGPU          bool
	DeviceExtensionNames []string
}

// NewGPU selects a physical device meeting requirements (or uses the one
// named by physicalDevice if non-nil), creates the logical device, and
// pulls out the requested queues.
func NewGPU(h *Host, physicalDevice vk.PhysicalDevice, surface vk.Surface, reqs GPURequirements) (*GPU, error) {
	g := &GPU{
		Lifecycle: NewLifecycle(KindDevice),
		host:      h,
		locks:     NewLockPool(),
	}
	g.SetInit()

	if physicalDevice == vk.NullPhysicalDevice {
		best, ok := h.GPUBest()
		if !ok {
			return nil, errUnknownf("no suitable GPU found")
		}
		physicalDevice = best.PhysicalDevice
	}
	g.PhysicalDevice = physicalDevice

	vk.GetPhysicalDeviceProperties(physicalDevice, &g.Properties)
	g.Properties.Deref()
	vk.GetPhysicalDeviceFeatures(physicalDevice, &g.Features)
	g.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &g.Memory)
	g.Memory.Deref()

	families, err := scoreQueueFamilies(physicalDevice, surface, reqs, g.locks)
	if err != nil {
		return nil, err
	}
	g.GraphicsFamilyIndex = families.graphics
	g.PresentFamilyIndex = families.present
	g.ComputeFamilyIndex = families.compute
	g.TransferFamilyIndex = families.transfer
	g.GraphicsQueueIndex = families.graphicsIndex
	g.PresentQueueIndex = families.presentIndex
	g.ComputeQueueIndex = families.computeIndex
	g.TransferQueueIndex = families.transferIndex

	if err := g.createLogicalDevice(reqs); err != nil {
		return nil, err
	}

	g.DepthFormat, g.DepthChannelCount = detectDepthFormat(physicalDevice)

	if err := g.createCommandPools(); err != nil {
		return nil, err
	}

	g.SetCreated()
	return g, nil
}

// scoreQueueFamilies implements the queue-slot assignment algorithm: each
// requested slot is scored against every queue family and handed to the
// lowest-scoring family (fewest other capabilities advertised, i.e. most
// "dedicated" to that slot's mask) that still has queue capacity left;
// when every eligible family is already full, the slot falls back to
// reusing the lowest-scoring family already assigned to another slot.
func scoreQueueFamilies(physicalDevice vk.PhysicalDevice, surface vk.Surface, reqs GPURequirements, locks *LockPool) (queueFamilyInfo, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &count, families)
	for i := range families {
		families[i].Deref()
		if locks != nil {
			locks.SetQueueFamily(uint32(i))
		}
	}

	presentSupport := func(i uint32) bool {
		if surface == vk.NullSurface {
			return false
		}
		var support vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(physicalDevice, i, surface, &support)
		return support.B()
	}

	return scoreQueueFamiliesFromProps(families, presentSupport, surface != vk.NullSurface, reqs)
}

// queueFamilyCapabilityScore counts every capability bit a family
// advertises. Families compared for one role all carry that role's bits,
// so fewer bits means the family is more "dedicated" to the role.
func queueFamilyCapabilityScore(flags vk.QueueFlags) uint32 {
	score := uint32(0)
	for f := uint32(flags); f != 0; f &= f - 1 {
		score++
	}
	return score
}

// assignQueues resolves a set of declarative QueueRequest slots against a
// queue-family topology. It is the capacity-aware core of the spec's
// dvz_gpu_queue model: every family's vk.QueueFamilyProperties.QueueCount
// caps how many distinct queues can be handed out from it, and once every
// eligible family is at capacity, a slot reuses the lowest-scoring family
// already assigned rather than failing outright.
func assignQueues(families []vk.QueueFamilyProperties, presentSupport func(uint32) bool, requests []QueueRequest) (map[QueueSlot]queueAssignment, error) {
	used := make([]uint32, len(families))
	result := make(map[QueueSlot]queueAssignment, len(requests))

	eligible := func(i uint32, req QueueRequest) bool {
		if vk.QueueFlagBits(families[i].QueueFlags)&req.Mask != req.Mask {
			return false
		}
		if req.NeedsPresent && (presentSupport == nil || !presentSupport(i)) {
			return false
		}
		return true
	}

	for _, req := range requests {
		bestFamily, bestScore := familyUnset, ^uint32(0)
		for i := uint32(0); i < uint32(len(families)); i++ {
			if !eligible(i, req) || used[i] >= families[i].QueueCount {
				continue
			}
			if s := queueFamilyCapabilityScore(families[i].QueueFlags); s < bestScore {
				bestScore, bestFamily = s, i
			}
		}
		if bestFamily != familyUnset {
			result[req.Slot] = queueAssignment{family: bestFamily, index: used[bestFamily]}
			used[bestFamily]++
			continue
		}

		// Every eligible family is already at capacity: reuse the
		// lowest-scoring family already handed out instead of failing.
		bestFamily, bestScore = familyUnset, ^uint32(0)
		for i := uint32(0); i < uint32(len(families)); i++ {
			if !eligible(i, req) || used[i] == 0 {
				continue
			}
			if s := queueFamilyCapabilityScore(families[i].QueueFlags); s < bestScore {
				bestScore, bestFamily = s, i
			}
		}
		if bestFamily == familyUnset {
			return result, errUnknownf("no queue family satisfies slot %d", req.Slot)
		}
		result[req.Slot] = queueAssignment{family: bestFamily, index: used[bestFamily] - 1, reused: true}
	}
	return result, nil
}

// scoreQueueFamiliesFromProps is the pure queue-assignment algorithm,
// expressing the four fixed roles this GPU abstraction needs (graphics,
// compute, transfer, present) as QueueRequest slots and resolving them
// through assignQueues. Transfer is requested first so a dedicated
// transfer-only family, when present, is claimed before graphics/compute
// exhaust it; this preserves the "most dedicated wins transfer" behavior.
// Split out from scoreQueueFamilies so the algorithm can be exercised
// against a synthetic queue-family topology without a real physical
// device.
func scoreQueueFamiliesFromProps(families []vk.QueueFamilyProperties, presentSupport func(uint32) bool, haveSurface bool, reqs GPURequirements) (queueFamilyInfo, error) {
	info := queueFamilyInfo{graphics: familyUnset, present: familyUnset, compute: familyUnset, transfer: familyUnset}

	var requests []QueueRequest
	if reqs.Transfer {
		requests = append(requests, QueueRequest{Slot: QueueSlotTransfer, Mask: vk.QueueTransferBit})
	}
	if reqs.Graphics {
		requests = append(requests, QueueRequest{Slot: QueueSlotGraphics, Mask: vk.QueueGraphicsBit})
	}
	if reqs.Compute {
		requests = append(requests, QueueRequest{Slot: QueueSlotCompute, Mask: vk.QueueComputeBit})
	}
	if reqs.Present && haveSurface {
		requests = append(requests, QueueRequest{Slot: QueueSlotPresent, NeedsPresent: true})
	}

	assignments, err := assignQueues(families, presentSupport, requests)
	if err != nil {
		return info, errUnknownf("queue slot assignment failed: %v", err)
	}

	if a, ok := assignments[QueueSlotGraphics]; ok {
		info.graphics, info.graphicsIndex = a.family, a.index
	}
	if a, ok := assignments[QueueSlotCompute]; ok {
		info.compute, info.computeIndex = a.family, a.index
	}
	if a, ok := assignments[QueueSlotTransfer]; ok {
		info.transfer, info.transferIndex = a.family, a.index
	}
	if a, ok := assignments[QueueSlotPresent]; ok {
		info.present, info.presentIndex = a.family, a.index
	}

	if reqs.Graphics && info.graphics == familyUnset {
		return info, errUnknownf("device has no graphics-capable queue family")
	}
	if reqs.Compute && info.compute == familyUnset {
		return info, errUnknownf("device has no compute-capable queue family")
	}
	if reqs.Transfer && info.transfer == familyUnset {
		return info, errUnknownf("device has no transfer-capable queue family")
	}
	if reqs.Present && haveSurface && info.present == familyUnset {
		return info, errUnknownf("device has no present-capable queue family")
	}
	return info, nil
}

func (g *GPU) createLogicalDevice(reqs GPURequirements) error {
	// Each family needs enough distinct queues to cover the highest queue
	// index any role resolved to within it (roles that fell back to
	// reusing a queue share an index and don't grow the count further).
	queueCounts := map[uint32]uint32{}
	grow := func(family, index uint32) {
		if family == familyUnset {
			return
		}
		if index+1 > queueCounts[family] {
			queueCounts[family] = index + 1
		}
	}
	grow(g.GraphicsFamilyIndex, g.GraphicsQueueIndex)
	grow(g.PresentFamilyIndex, g.PresentQueueIndex)
	grow(g.ComputeFamilyIndex, g.ComputeQueueIndex)
	grow(g.TransferFamilyIndex, g.TransferQueueIndex)

	priority := float32(1.0)
	var queueCreateInfos []vk.DeviceQueueCreateInfo
	for idx, count := range queueCounts {
		priorities := make([]float32, count)
		for i := range priorities {
			priorities[i] = priority
		}
		queueCreateInfos = append(queueCreateInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       count,
			PQueuePriorities: priorities,
		})
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	if reqs.SamplerAnisotropy {
		deviceFeatures.SamplerAnisotropy = vk.True
	}

	extensions := VulkanSafeStrings(append([]string{"VK_KHR_swapchain"}, reqs.DeviceExtensionNames...))

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var device vk.Device
	err := g.locks.SafeCall(LockDeviceManagement, func() error {
		result := vk.CreateDevice(g.PhysicalDevice, &createInfo, nil, &device)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateDevice failed: %s", VulkanResultString(result, true))
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.Device = device
	vk.InitDevice(device)

	err = g.locks.SafeCall(LockQueueManagement, func() error {
		if g.GraphicsFamilyIndex != familyUnset {
			vk.GetDeviceQueue(device, g.GraphicsFamilyIndex, g.GraphicsQueueIndex, &g.GraphicsQueue)
		}
		if g.PresentFamilyIndex != familyUnset {
			vk.GetDeviceQueue(device, g.PresentFamilyIndex, g.PresentQueueIndex, &g.PresentQueue)
		}
		if g.ComputeFamilyIndex != familyUnset {
			vk.GetDeviceQueue(device, g.ComputeFamilyIndex, g.ComputeQueueIndex, &g.ComputeQueue)
		}
		if g.TransferFamilyIndex != familyUnset {
			vk.GetDeviceQueue(device, g.TransferFamilyIndex, g.TransferQueueIndex, &g.TransferQueue)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := uint32(0); i < g.Memory.MemoryTypeCount; i++ {
		t := g.Memory.MemoryTypes[i]
		t.Deref()
		props := t.PropertyFlags
		if props&vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit) != 0 &&
			props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
			g.SupportsDeviceLocalHostVisible = true
			break
		}
	}

	core.LogInfo("logical device created: %s", vk.ToString(g.Properties.DeviceName[:]))
	return nil
}

func (g *GPU) createCommandPools() error {
	return g.locks.SafeCall(LockCommandPoolManagement, func() error {
		poolInfo := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: g.GraphicsFamilyIndex,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}
		var pool vk.CommandPool
		result := vk.CreateCommandPool(g.Device, &poolInfo, nil, &pool)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateCommandPool (graphics) failed: %s", VulkanResultString(result, true))
		}
		g.GraphicsCommandPool = pool

		transferPoolInfo := poolInfo
		transferPoolInfo.QueueFamilyIndex = g.TransferFamilyIndex
		var transferPool vk.CommandPool
		result = vk.CreateCommandPool(g.Device, &transferPoolInfo, nil, &transferPool)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateCommandPool (transfer) failed: %s", VulkanResultString(result, true))
		}
		g.TransferCommandPool = transferPool
		return nil
	})
}

// sharingQueueFamilies reports the sharing mode and, for concurrent
// sharing, the distinct queue family indices that resources created
// against this GPU (buffers, images) should declare. Exclusive sharing is
// correct only when every accessing role resolved to the same family;
// since the transfer engine and the render/compute path can land on
// different families, resources default to whatever access pattern this
// GPU actually has rather than assuming a single family.
func (g *GPU) sharingQueueFamilies() (vk.SharingMode, []uint32) {
	seen := map[uint32]bool{}
	var indices []uint32
	for _, idx := range []uint32{g.GraphicsFamilyIndex, g.ComputeFamilyIndex, g.TransferFamilyIndex} {
		if idx == familyUnset || seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	if len(indices) <= 1 {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, indices
}

// detectDepthFormat tries known depth formats in order of preference,
// returning the first one whose device supports optimal-tiling depth
// attachment usage.
func detectDepthFormat(physicalDevice vk.PhysicalDevice) (vk.Format, uint32) {
	candidates := []struct {
		format  vk.Format
		channels uint32
	}{
		{vk.FormatD32Sfloat, 4},
		{vk.FormatD32SfloatS8Uint, 4},
		{vk.FormatD24UnormS8Uint, 3},
	}
	for _, c := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(physicalDevice, c.format, &props)
		props.Deref()
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
			return c.format, c.channels
		}
	}
	return vk.FormatUndefined, 0
}

// FindMemoryIndex finds a memory type index matching typeFilter (a bitmask
// of acceptable memory type indices) and carrying all of propertyFlags.
func (g *GPU) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	for i := uint32(0); i < g.Memory.MemoryTypeCount; i++ {
		t := g.Memory.MemoryTypes[i]
		t.Deref()
		if typeFilter&(1<<i) != 0 && t.PropertyFlags&vk.MemoryPropertyFlags(propertyFlags) == vk.MemoryPropertyFlags(propertyFlags) {
			return int32(i)
		}
	}
	core.LogWarn("unable to find suitable memory type")
	return -1
}

// Destroy waits for the device to go idle, then releases the command pools
// and the logical device. Idempotent.
func (g *GPU) Destroy() {
	if !g.SetDestroyed() {
		return
	}
	if g.Device == vk.NullDevice {
		return
	}
	vk.DeviceWaitIdle(g.Device)
	if g.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(g.Device, g.GraphicsCommandPool, nil)
	}
	if g.TransferCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(g.Device, g.TransferCommandPool, nil)
	}
	vk.DestroyDevice(g.Device, nil)
}
