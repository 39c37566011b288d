package vulkan

import vk "github.com/goki/vulkan"

const maxDescriptorBindings = 16

// DescriptorSlots declares the ordered descriptor-type bindings and
// push-constant ranges a pipeline expects, and owns the resulting
// descriptor-set layout and pipeline layout.
type DescriptorSlots struct {
	Lifecycle

	gpu *GPU

	SetLayout      vk.DescriptorSetLayout
	PipelineLayout vk.PipelineLayout

	bindings []vk.DescriptorSetLayoutBinding
	pool     vk.DescriptorPool
}

// BindingConfig describes one descriptor binding.
type BindingConfig struct {
	Binding uint32
	Type    vk.DescriptorType
	Count   uint32
	Stages  vk.ShaderStageFlagBits
}

// DescriptorSlotsConfig configures slot creation.
type DescriptorSlotsConfig struct {
	Bindings           []BindingConfig
	PushConstantRanges []vk.PushConstantRange
	MaxSets            uint32
}

func NewDescriptorSlots(g *GPU, cfg DescriptorSlotsConfig) (*DescriptorSlots, error) {
	if len(cfg.Bindings) > maxDescriptorBindings {
		return nil, errUnknownf("descriptor binding count %d exceeds max %d", len(cfg.Bindings), maxDescriptorBindings)
	}

	bindings := make([]vk.DescriptorSetLayoutBinding, len(cfg.Bindings))
	poolSizes := make([]vk.DescriptorPoolSize, len(cfg.Bindings))
	for i, b := range cfg.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            b.Type,
			DescriptorCount: b.Count * cfg.MaxSets,
		}
	}

	ds := &DescriptorSlots{Lifecycle: NewLifecycle(KindDescriptorSlots), gpu: g, bindings: bindings}
	ds.SetInit()

	err := g.locks.SafeCall(LockPipelineManagement, func() error {
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		var setLayout vk.DescriptorSetLayout
		result := vk.CreateDescriptorSetLayout(g.Device, &layoutInfo, nil, &setLayout)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateDescriptorSetLayout failed: %s", VulkanResultString(result, true))
		}
		ds.SetLayout = setLayout

		pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
			SType:                  vk.StructureTypePipelineLayoutCreateInfo,
			SetLayoutCount:         1,
			PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
			PushConstantRangeCount: uint32(len(cfg.PushConstantRanges)),
			PPushConstantRanges:    cfg.PushConstantRanges,
		}
		var pipelineLayout vk.PipelineLayout
		result = vk.CreatePipelineLayout(g.Device, &pipelineLayoutInfo, nil, &pipelineLayout)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreatePipelineLayout failed: %s", VulkanResultString(result, true))
		}
		ds.PipelineLayout = pipelineLayout

		if cfg.MaxSets > 0 {
			poolInfo := vk.DescriptorPoolCreateInfo{
				SType:         vk.StructureTypeDescriptorPoolCreateInfo,
				PoolSizeCount: uint32(len(poolSizes)),
				PPoolSizes:    poolSizes,
				MaxSets:       cfg.MaxSets,
			}
			var pool vk.DescriptorPool
			result = vk.CreateDescriptorPool(g.Device, &poolInfo, nil, &pool)
			if !VulkanResultIsSuccess(result) {
				return errUnknownf("vkCreateDescriptorPool failed: %s", VulkanResultString(result, true))
			}
			ds.pool = pool
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ds.SetCreated()
	return ds, nil
}

func (ds *DescriptorSlots) Destroy() {
	if !ds.SetDestroyed() {
		return
	}
	g := ds.gpu
	if ds.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(g.Device, ds.pool, nil)
	}
	if ds.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(g.Device, ds.PipelineLayout, nil)
	}
	if ds.SetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(g.Device, ds.SetLayout, nil)
	}
}

// bindingState tracks, per binding and per fanned-out descriptor set copy,
// a generation counter and the resource id it was last written with. A
// mismatch between the resource's current generation and the recorded one
// marks the binding dirty and due for an update write.
type bindingState struct {
	generation uint32
	resourceID uint32
}

// Descriptors is an N-deep fanout of descriptor sets allocated from one
// DescriptorSlots layout (N == 1 for a standalone resource, N ==
// swapchain-image-count for a per-frame-fanned resource), with dirty
// tracking per binding per copy so updates only touch what actually
// changed.
type Descriptors struct {
	Lifecycle

	gpu   *GPU
	slots *DescriptorSlots

	Sets  []vk.DescriptorSet
	state [][]bindingState // [copyIndex][bindingIndex]
}

func NewDescriptors(g *GPU, slots *DescriptorSlots, count int) (*Descriptors, error) {
	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = slots.SetLayout
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     slots.pool,
		DescriptorSetCount: uint32(count),
		PSetLayouts:        layouts,
	}

	sets := make([]vk.DescriptorSet, count)
	result := vk.AllocateDescriptorSets(g.Device, &allocInfo, sets)
	if !VulkanResultIsSuccess(result) {
		return nil, errUnknownf("vkAllocateDescriptorSets failed: %s", VulkanResultString(result, true))
	}

	d := &Descriptors{
		Lifecycle: NewLifecycle(KindDescriptors),
		gpu:       g,
		slots:     slots,
		Sets:      sets,
		state:     make([][]bindingState, count),
	}
	for i := range d.state {
		d.state[i] = make([]bindingState, len(slots.bindings))
	}
	d.SetInit()
	d.SetCreated()
	return d, nil
}

// At returns the descriptor set for the given frame, clipped per the
// shared helper.
func (d *Descriptors) At(frame uint32) vk.DescriptorSet {
	return d.Sets[clipIndex(uint32(len(d.Sets)), frame)]
}

// SetBuffer writes a buffer binding into the descriptor set for frame if
// the binding's generation/resourceID pair indicates it is stale,
// returning whether a write actually happened.
func (d *Descriptors) SetBuffer(frame uint32, binding uint32, buf vk.Buffer, offset, size uint64, generation, resourceID uint32) bool {
	idx := clipIndex(uint32(len(d.Sets)), frame)
	st := &d.state[idx][binding]
	if st.generation == generation && st.resourceID == resourceID {
		return false
	}

	bufferInfo := vk.DescriptorBufferInfo{
		Buffer: buf,
		Offset: vk.DeviceSize(offset),
		Range:  vk.DeviceSize(size),
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          d.Sets[idx],
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  d.slots.bindings[binding].DescriptorType,
		PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
	}
	vk.UpdateDescriptorSets(d.gpu.Device, 1, []vk.WriteDescriptorSet{write}, 0, nil)

	st.generation = generation
	st.resourceID = resourceID
	return true
}

// SetTexture writes a combined image sampler binding, subject to the same
// dirty-tracking as SetBuffer.
func (d *Descriptors) SetTexture(frame uint32, binding uint32, view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout, generation, resourceID uint32) bool {
	idx := clipIndex(uint32(len(d.Sets)), frame)
	st := &d.state[idx][binding]
	if st.generation == generation && st.resourceID == resourceID {
		return false
	}

	imageInfo := vk.DescriptorImageInfo{
		Sampler:     sampler,
		ImageView:   view,
		ImageLayout: layout,
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          d.Sets[idx],
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  d.slots.bindings[binding].DescriptorType,
		PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
	}
	vk.UpdateDescriptorSets(d.gpu.Device, 1, []vk.WriteDescriptorSet{write}, 0, nil)

	st.generation = generation
	st.resourceID = resourceID
	return true
}
