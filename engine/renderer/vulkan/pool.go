package vulkan

import "sync"

// LockGroup names a concern guarded by its own mutex, so unrelated Vulkan
// calls on different subsystems never contend on a single global lock.
type LockGroup string

const (
	LockSamplerManagement       LockGroup = "sampler-management"
	LockResourceManagement      LockGroup = "resource-management"
	LockCommandBufferManagement LockGroup = "command-buffer-management"
	LockRenderpassManagement    LockGroup = "renderpass-management"
	LockBufferManagement        LockGroup = "buffer-management"
	LockImageManagement         LockGroup = "image-management"
	LockDeviceManagement        LockGroup = "device-management"
	LockCommandPoolManagement   LockGroup = "command-pool-management"
	LockQueueManagement         LockGroup = "queue-management"
	LockPipelineManagement      LockGroup = "pipeline-management"
	LockMemoryManagement        LockGroup = "memory-management"
	LockShaderManagement        LockGroup = "shader-management"
	LockSynchronizationManagement LockGroup = "synchronization-management"
	LockSwapchainManagement     LockGroup = "swapchain-management"
	LockInstanceManagement      LockGroup = "instance-management"
)

// LockPool hands out one mutex per named concern plus one per queue family,
// so every entry point that touches shared Vulkan state can be made safe
// for concurrent callers without serializing unrelated subsystems behind a
// single lock.
type LockPool struct {
	mu           sync.Mutex
	locks        map[LockGroup]*sync.Mutex
	queueMutexes map[uint32]*sync.Mutex
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (p *LockPool) setLock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.locks[group]
	if !ok {
		m = &sync.Mutex{}
		p.locks[group] = m
	}
	return m
}

// SafeCall runs fn while holding the mutex for group.
func (p *LockPool) SafeCall(group LockGroup, fn func() error) error {
	m := p.setLock(group)
	m.Lock()
	defer m.Unlock()
	return fn()
}

// SetQueueFamily registers a mutex for the given queue family index if one
// does not already exist, without acquiring it.
func (p *LockPool) SetQueueFamily(index uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queueMutexes[index]; !ok {
		p.queueMutexes[index] = &sync.Mutex{}
	}
}

// SafeQueueCall runs fn while holding the mutex for the given queue family,
// serializing submissions against that specific vkQueue.
func (p *LockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	p.mu.Lock()
	m, ok := p.queueMutexes[queueFamilyIndex]
	if !ok {
		m = &sync.Mutex{}
		p.queueMutexes[queueFamilyIndex] = m
	}
	p.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn()
}
