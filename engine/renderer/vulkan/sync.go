package vulkan

import vk "github.com/goki/vulkan"

// SemaphoreSet is a fixed-size array of binary semaphores, one per frame in
// flight.
type SemaphoreSet struct {
	Lifecycle
	gpu     *GPU
	Handles []vk.Semaphore
}

func NewSemaphoreSet(g *GPU, count int) (*SemaphoreSet, error) {
	s := &SemaphoreSet{Lifecycle: NewLifecycle(KindSemaphores), gpu: g}
	s.SetInit()

	err := g.locks.SafeCall(LockSynchronizationManagement, func() error {
		createInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		for i := 0; i < count; i++ {
			var handle vk.Semaphore
			result := vk.CreateSemaphore(g.Device, &createInfo, nil, &handle)
			if !VulkanResultIsSuccess(result) {
				return errUnknownf("vkCreateSemaphore failed: %s", VulkanResultString(result, true))
			}
			s.Handles = append(s.Handles, handle)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.SetCreated()
	return s, nil
}

func (s *SemaphoreSet) At(frame uint32) vk.Semaphore {
	return s.Handles[clipIndex(uint32(len(s.Handles)), frame)]
}

func (s *SemaphoreSet) Destroy() {
	if !s.SetDestroyed() {
		return
	}
	for _, h := range s.Handles {
		if h != vk.NullSemaphore {
			vk.DestroySemaphore(s.gpu.Device, h, nil)
		}
	}
}

// Fence wraps a vk.Fence with a cached signaled flag so callers don't need
// to requery the driver to know whether a wait would block.
type Fence struct {
	Handle     vk.Fence
	IsSignaled bool
}

// FenceSet is a fixed-size array of fences, one per frame in flight.
type FenceSet struct {
	Lifecycle
	gpu    *GPU
	Fences []*Fence
}

func NewFenceSet(g *GPU, count int, createSignaled bool) (*FenceSet, error) {
	fs := &FenceSet{Lifecycle: NewLifecycle(KindFences), gpu: g}
	fs.SetInit()

	flags := vk.FenceCreateFlags(0)
	if createSignaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	err := g.locks.SafeCall(LockSynchronizationManagement, func() error {
		createInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo, Flags: flags}
		for i := 0; i < count; i++ {
			var handle vk.Fence
			result := vk.CreateFence(g.Device, &createInfo, nil, &handle)
			if !VulkanResultIsSuccess(result) {
				return errUnknownf("vkCreateFence failed: %s", VulkanResultString(result, true))
			}
			fs.Fences = append(fs.Fences, &Fence{Handle: handle, IsSignaled: createSignaled})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fs.SetCreated()
	return fs, nil
}

func (fs *FenceSet) At(frame uint32) *Fence {
	return fs.Fences[clipIndex(uint32(len(fs.Fences)), frame)]
}

// Wait blocks on f until signaled or timeoutNs elapses, updating
// f.IsSignaled on success.
func (fs *FenceSet) Wait(f *Fence, timeoutNs uint64) bool {
	if f.IsSignaled {
		return true
	}
	result := vk.WaitForFences(fs.gpu.Device, 1, []vk.Fence{f.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		f.IsSignaled = true
		return true
	case vk.Timeout:
		return false
	default:
		return false
	}
}

func (fs *FenceSet) Reset(f *Fence) {
	if !f.IsSignaled {
		return
	}
	vk.ResetFences(fs.gpu.Device, 1, []vk.Fence{f.Handle})
	f.IsSignaled = false
}

func (fs *FenceSet) Destroy() {
	if !fs.SetDestroyed() {
		return
	}
	for _, f := range fs.Fences {
		if f.Handle != vk.NullFence {
			vk.DestroyFence(fs.gpu.Device, f.Handle, nil)
		}
	}
}

// SubmitBuilder assembles a single vkQueueSubmit call from command buffers,
// wait semaphores (with per-wait stage masks), and signal semaphores.
type SubmitBuilder struct {
	commands        []vk.CommandBuffer
	waitSemaphores  []vk.Semaphore
	waitStages      []vk.PipelineStageFlags
	signalSemaphores []vk.Semaphore
}

func NewSubmit() *SubmitBuilder {
	return &SubmitBuilder{}
}

func (b *SubmitBuilder) AddCommands(cb ...vk.CommandBuffer) *SubmitBuilder {
	b.commands = append(b.commands, cb...)
	return b
}

func (b *SubmitBuilder) AddWait(sem vk.Semaphore, stage vk.PipelineStageFlagBits) *SubmitBuilder {
	b.waitSemaphores = append(b.waitSemaphores, sem)
	b.waitStages = append(b.waitStages, vk.PipelineStageFlags(stage))
	return b
}

func (b *SubmitBuilder) AddSignal(sem vk.Semaphore) *SubmitBuilder {
	b.signalSemaphores = append(b.signalSemaphores, sem)
	return b
}

// Submit submits the assembled batch to queue, signaling fence on
// completion.
func (b *SubmitBuilder) Submit(g *GPU, queue vk.Queue, fence vk.Fence) error {
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(b.commands)),
		PCommandBuffers:      b.commands,
		WaitSemaphoreCount:   uint32(len(b.waitSemaphores)),
		PWaitSemaphores:      b.waitSemaphores,
		PWaitDstStageMask:    b.waitStages,
		SignalSemaphoreCount: uint32(len(b.signalSemaphores)),
		PSignalSemaphores:    b.signalSemaphores,
	}
	return g.locks.SafeQueueCall(0, func() error {
		result := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkQueueSubmit failed: %s", VulkanResultString(result, true))
		}
		return nil
	})
}
