package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// BufferRole tags what a Buffer is used for, driving its default usage and
// memory-property flags.
type BufferRole int

const (
	BufferRoleStaging BufferRole = iota
	BufferRoleVertex
	BufferRoleIndex
	BufferRoleStorage
	BufferRoleUniform
	BufferRoleMappableUniform
	BufferRoleIndirect
)

func (r BufferRole) usage() vk.BufferUsageFlagBits {
	switch r {
	case BufferRoleStaging:
		return vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	case BufferRoleVertex:
		return vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
	case BufferRoleIndex:
		return vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
	case BufferRoleStorage:
		return vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
	case BufferRoleUniform:
		return vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	case BufferRoleMappableUniform:
		return vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	case BufferRoleIndirect:
		return vk.BufferUsageIndirectBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	default:
		return vk.BufferUsageTransferDstBit
	}
}

func (r BufferRole) memoryFlags() vk.MemoryPropertyFlagBits {
	switch r {
	case BufferRoleStaging, BufferRoleMappableUniform:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	default:
		return vk.MemoryPropertyDeviceLocalBit
	}
}

// Buffer wraps a vk.Buffer, its backing memory, and a sub-allocator over
// that memory so many logical regions (vertex runs, per-draw uniforms) can
// share one Vulkan allocation.
type Buffer struct {
	Lifecycle

	gpu  *GPU
	Role BufferRole

	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	Size    uint64
	Locked  bool

	memoryIndex int32
	alloc       *subAllocator
}

// NewBuffer creates a buffer of size bytes for the given role and binds
// device memory to it. alignment governs the sub-allocator's region
// alignment (e.g. minUniformBufferOffsetAlignment for uniform buffers).
func NewBuffer(g *GPU, role BufferRole, size uint64, alignment uint64) (*Buffer, error) {
	b := &Buffer{
		Lifecycle: NewLifecycle(KindBuffer),
		gpu:       g,
		Role:      role,
		Size:      size,
	}
	b.SetInit()

	if err := b.create(size); err != nil {
		return nil, err
	}
	b.alloc = newSubAllocator(size, alignment)
	b.SetCreated()
	return b, nil
}

func (b *Buffer) create(size uint64) error {
	g := b.gpu
	sharingMode, queueFamilyIndices := g.sharingQueueFamilies()
	createInfo := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(size),
		Usage:                 vk.BufferUsageFlags(b.Role.usage()),
		SharingMode:           sharingMode,
		QueueFamilyIndexCount: uint32(len(queueFamilyIndices)),
		PQueueFamilyIndices:   queueFamilyIndices,
	}

	return g.locks.SafeCall(LockBufferManagement, func() error {
		var handle vk.Buffer
		result := vk.CreateBuffer(g.Device, &createInfo, nil, &handle)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateBuffer failed: %s", VulkanResultString(result, true))
		}

		var reqs vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(g.Device, handle, &reqs)
		reqs.Deref()

		memIndex := g.FindMemoryIndex(reqs.MemoryTypeBits, b.Role.memoryFlags())
		if memIndex < 0 {
			vk.DestroyBuffer(g.Device, handle, nil)
			return errUnknownf("no suitable memory type for buffer")
		}

		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  reqs.Size,
			MemoryTypeIndex: uint32(memIndex),
		}
		var memory vk.DeviceMemory
		result = vk.AllocateMemory(g.Device, &allocInfo, nil, &memory)
		if !VulkanResultIsSuccess(result) {
			vk.DestroyBuffer(g.Device, handle, nil)
			return errUnknownf("vkAllocateMemory failed: %s", VulkanResultString(result, true))
		}

		if result := vk.BindBufferMemory(g.Device, handle, memory, 0); !VulkanResultIsSuccess(result) {
			vk.FreeMemory(g.Device, memory, nil)
			vk.DestroyBuffer(g.Device, handle, nil)
			return errUnknownf("vkBindBufferMemory failed: %s", VulkanResultString(result, true))
		}

		b.Handle = handle
		b.Memory = memory
		b.memoryIndex = memIndex
		return nil
	})
}

// Region is a sub-allocated, aligned slice of a Buffer.
type Region struct {
	Offset uint64
	Length uint64
}

// RegionSet allocates `count` aligned regions of `size` bytes each out of
// b, growing the buffer (doubling) when the sub-allocator can't satisfy the
// request.
func (b *Buffer) RegionSet(count int, size uint64) ([]Region, error) {
	regions := make([]Region, 0, count)
	for i := 0; i < count; i++ {
		off, ok := b.alloc.Alloc(size)
		if !ok {
			if err := b.grow(b.Size * 2); err != nil {
				return nil, err
			}
			off, ok = b.alloc.Alloc(size)
			if !ok {
				return nil, errUnknownf("buffer sub-allocator could not satisfy request even after growth")
			}
		}
		regions = append(regions, Region{Offset: off, Length: size})
	}
	return regions, nil
}

// FreeRegion returns a region to the sub-allocator's free list.
func (b *Buffer) FreeRegion(r Region) {
	b.alloc.Free(r.Offset, r.Length)
}

// Resize grows the buffer to newSize, copying existing contents with a
// synchronous buffer-to-buffer copy on the GPU's transfer queue and
// transfer command pool. transferQueue and pool are not used. A newSize
// not above the current size leaves the buffer unchanged.
func (b *Buffer) Resize(newSize uint64, transferQueue vk.Queue, pool vk.CommandPool) error {
	return b.grow(newSize)
}

func (b *Buffer) grow(newSize uint64) error {
	if newSize <= b.Size {
		return nil
	}
	g := b.gpu
	old := b.Handle
	oldMemory := b.Memory
	oldSize := b.Size

	if err := b.create(newSize); err != nil {
		return err
	}

	if err := copyBufferRange(g, old, b.Handle, 0, 0, oldSize); err != nil {
		return err
	}

	vk.DestroyBuffer(g.Device, old, nil)
	vk.FreeMemory(g.Device, oldMemory, nil)

	b.Size = newSize
	b.alloc.Grow(newSize)
	return nil
}

// LoadData maps the buffer's memory (it must be host-visible) and copies
// data into it at offset.
func (b *Buffer) LoadData(offset uint64, data []byte) error {
	g := b.gpu
	var ptr unsafe.Pointer
	result := vk.MapMemory(g.Device, b.Memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr)
	if !VulkanResultIsSuccess(result) {
		return errUnknownf("vkMapMemory failed: %s", VulkanResultString(result, true))
	}
	dst := unsafe.Slice((*byte)(ptr), len(data))
	copy(dst, data)
	vk.UnmapMemory(g.Device, b.Memory)
	return nil
}

// ReadData maps the buffer's memory and copies length bytes starting at
// offset back into a new slice.
func (b *Buffer) ReadData(offset, length uint64) ([]byte, error) {
	g := b.gpu
	var ptr unsafe.Pointer
	result := vk.MapMemory(g.Device, b.Memory, vk.DeviceSize(offset), vk.DeviceSize(length), 0, &ptr)
	if !VulkanResultIsSuccess(result) {
		return nil, errUnknownf("vkMapMemory failed: %s", VulkanResultString(result, true))
	}
	out := make([]byte, length)
	copy(out, unsafe.Slice((*byte)(ptr), length))
	vk.UnmapMemory(g.Device, b.Memory)
	return out, nil
}

// Destroy frees the buffer's memory and handle. Idempotent.
func (b *Buffer) Destroy() {
	if !b.SetDestroyed() {
		return
	}
	g := b.gpu
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(g.Device, b.Handle, nil)
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(g.Device, b.Memory, nil)
	}
}
