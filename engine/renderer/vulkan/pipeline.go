package vulkan

import (
	"path/filepath"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vizcore/engine/core"
)

// FaceCullMode selects rasterizer culling, reused unchanged across the
// domain: the cull behavior a graphics pipeline wants doesn't vary with
// what it's rendering.
type FaceCullMode int

const (
	FaceCullNone FaceCullMode = iota
	FaceCullFront
	FaceCullBack
	FaceCullFrontAndBack
)

func (m FaceCullMode) vkCullMode() vk.CullModeFlagBits {
	switch m {
	case FaceCullFront:
		return vk.CullModeFrontBit
	case FaceCullBack:
		return vk.CullModeBackBit
	case FaceCullFrontAndBack:
		return vk.CullModeFrontAndBackBit
	default:
		return vk.CullModeNone
	}
}

// SpecializationConstants lays out per-stage specialization data in an
// aligned constant buffer, matching the constant-ID/offset/size map a
// shader module declares. Alignment is fixed at 8 bytes: the widest scalar
// type (double/int64) Vulkan spec constants commonly carry.
type SpecializationConstants struct {
	Data    []byte
	Entries []vk.SpecializationMapEntry
}

// AddConstant appends one constant, padding Data up to 8-byte alignment
// before writing.
func (s *SpecializationConstants) AddConstant(constantID uint32, value []byte) {
	offset := alignUp(uint64(len(s.Data)), 8)
	for uint64(len(s.Data)) < offset {
		s.Data = append(s.Data, 0)
	}
	s.Entries = append(s.Entries, vk.SpecializationMapEntry{
		ConstantID: constantID,
		Offset:     uint32(offset),
		Size:       uint(len(value)),
	})
	s.Data = append(s.Data, value...)
}

func (s *SpecializationConstants) info() *vk.SpecializationInfo {
	if len(s.Entries) == 0 {
		return nil
	}
	return &vk.SpecializationInfo{
		MapEntryCount: uint32(len(s.Entries)),
		PMapEntries:   s.Entries,
		Dataword:      uint(len(s.Data)),
		PData:         unsafePtr(s.Data),
	}
}

// StageConfig configures one shader stage in a pipeline.
type StageConfig struct {
	Stage          vk.ShaderStageFlagBits
	Module         vk.ShaderModule
	EntryPoint     string
	Specialization *SpecializationConstants

	// ShaderPath, when set, is the .spv file Module was compiled from. A
	// pipeline watches it (via a core.ShaderWatcher) and flags itself
	// StateNeedRecreate whenever the file changes on disk, leaving actual
	// module/pipeline rebuilding to the caller's next recreate pass.
	ShaderPath string
}

// watchStages starts one core.ShaderWatcher per distinct directory among
// stages with a non-empty ShaderPath, each invoking onChange on any write
// to that directory. A directory whose watcher can't be created (e.g. one
// fsnotify can't watch) is logged as a warning and skipped, since
// hot-reload is a development convenience, not a requirement for the
// pipeline to function.
func watchStages(stages []StageConfig, onChange func(path string, spirv []byte)) []*core.ShaderWatcher {
	seen := map[string]bool{}
	var watchers []*core.ShaderWatcher
	for _, st := range stages {
		if st.ShaderPath == "" {
			continue
		}
		dir := filepath.Dir(st.ShaderPath)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		w, err := core.NewShaderWatcher(dir, onChange)
		if err != nil {
			core.LogWarn("shader watcher unavailable for %s: %s", dir, err)
			continue
		}
		watchers = append(watchers, w)
	}
	return watchers
}

func newShaderModule(g *GPU, spirv []byte) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv)),
		PCode:    spirvWords(spirv),
	}
	var module vk.ShaderModule
	result := vk.CreateShaderModule(g.Device, &createInfo, nil, &module)
	if !VulkanResultIsSuccess(result) {
		return vk.NullShaderModule, errUnknownf("vkCreateShaderModule failed: %s", VulkanResultString(result, true))
	}
	return module, nil
}

func spirvWords(spirv []byte) []uint32 {
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) | uint32(spirv[i*4+1])<<8 | uint32(spirv[i*4+2])<<16 | uint32(spirv[i*4+3])<<24
	}
	return words
}

func buildStages(stages []StageConfig) []vk.PipelineShaderStageCreateInfo {
	out := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, st := range stages {
		entry := st.EntryPoint
		if entry == "" {
			entry = "main"
		}
		info := vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  st.Stage,
			Module: st.Module,
			PName:  VulkanSafeString(entry),
		}
		if st.Specialization != nil {
			info.PSpecializationInfo = st.Specialization.info()
		}
		out[i] = info
	}
	return out
}

// ComputePipeline wraps a single compute shader stage bound to a
// DescriptorSlots pipeline layout.
type ComputePipeline struct {
	Lifecycle
	gpu      *GPU
	Handle   vk.Pipeline
	Layout   vk.PipelineLayout
	watchers []*core.ShaderWatcher
}

func NewComputePipeline(g *GPU, slots *DescriptorSlots, stage StageConfig) (*ComputePipeline, error) {
	stages := buildStages([]StageConfig{stage})
	createInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stages[0],
		Layout: slots.PipelineLayout,
	}

	p := &ComputePipeline{Lifecycle: NewLifecycle(KindCompute), gpu: g, Layout: slots.PipelineLayout}
	p.SetInit()

	err := g.locks.SafeCall(LockPipelineManagement, func() error {
		handles := make([]vk.Pipeline, 1)
		result := vk.CreateComputePipelines(g.Device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, nil, handles)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateComputePipelines failed: %s", VulkanResultString(result, true))
		}
		p.Handle = handles[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.SetCreated()
	p.watchers = watchStages([]StageConfig{stage}, func(path string, spirv []byte) {
		core.LogInfo("compute shader %s changed, flagging pipeline for recreate", path)
		p.SetNeedRecreate()
	})
	return p, nil
}

func (p *ComputePipeline) Destroy() {
	if !p.SetDestroyed() {
		return
	}
	for _, w := range p.watchers {
		w.Close()
	}
	if p.Handle != vk.NullPipeline {
		vk.DestroyPipeline(p.gpu.Device, p.Handle, nil)
	}
}

// GraphicsPipelineConfig configures graphics pipeline assembly.
type GraphicsPipelineConfig struct {
	Renderpass            *Renderpass
	Stages                []StageConfig
	Slots                 *DescriptorSlots
	VertexStride          uint32
	VertexAttributes      []vk.VertexInputAttributeDescription
	Viewport              vk.Viewport
	Scissor               vk.Rect2D
	CullMode              FaceCullMode
	Wireframe             bool
	DepthTestEnabled      bool
	ColorAttachmentCount  uint32
	BlendEnable           bool
}

// GraphicsPipeline assembles the fixed-function stages (viewport,
// rasterizer, multisample, depth-stencil, color blend, dynamic state,
// vertex input, input assembly) plus shader stages and layout into one
// vk.Pipeline.
type GraphicsPipeline struct {
	Lifecycle
	gpu      *GPU
	Handle   vk.Pipeline
	Layout   vk.PipelineLayout
	watchers []*core.ShaderWatcher
}

func NewGraphicsPipeline(g *GPU, cfg GraphicsPipelineConfig) (*GraphicsPipeline, error) {
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{cfg.Viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{cfg.Scissor},
	}

	polygonMode := vk.PolygonModeFill
	if cfg.Wireframe {
		polygonMode = vk.PolygonModeLine
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             polygonMode,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(cfg.CullMode.vkCullMode()),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:               vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable: vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	var depthStencil *vk.PipelineDepthStencilStateCreateInfo
	if cfg.DepthTestEnabled {
		depthStencil = &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: vk.True,
			DepthCompareOp:   vk.CompareOpLess,
		}
	}

	colorBlendAttachments := make([]vk.PipelineColorBlendAttachmentState, cfg.ColorAttachmentCount)
	for i := range colorBlendAttachments {
		state := vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			BlendEnable:    vk.False,
		}
		if cfg.BlendEnable {
			state.BlendEnable = vk.True
			state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			state.ColorBlendOp = vk.BlendOpAdd
			state.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
			state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			state.AlphaBlendOp = vk.BlendOpAdd
		}
		colorBlendAttachments[i] = state
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		AttachmentCount: uint32(len(colorBlendAttachments)),
		PAttachments:    colorBlendAttachments,
	}

	// Only {viewport, scissor} are dynamic. Unlike a fixed-function
	// renderer that also toggles line width dynamically, line width here
	// stays pinned to 1.0 above since nothing in this core varies it.
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindingDesc := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    cfg.VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDesc},
		VertexAttributeDescriptionCount: uint32(len(cfg.VertexAttributes)),
		PVertexAttributeDescriptions:    cfg.VertexAttributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	stages := buildStages(cfg.Stages)

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              cfg.Slots.PipelineLayout,
		RenderPass:          cfg.Renderpass.Handle,
		Subpass:             0,
	}

	p := &GraphicsPipeline{Lifecycle: NewLifecycle(KindGraphics), gpu: g, Layout: cfg.Slots.PipelineLayout}
	p.SetInit()

	err := g.locks.SafeCall(LockPipelineManagement, func() error {
		handles := make([]vk.Pipeline, 1)
		result := vk.CreateGraphicsPipelines(g.Device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, nil, handles)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateGraphicsPipelines failed: %s", VulkanResultString(result, true))
		}
		p.Handle = handles[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.SetCreated()
	p.watchers = watchStages(cfg.Stages, func(path string, spirv []byte) {
		core.LogInfo("graphics shader %s changed, flagging pipeline for recreate", path)
		p.SetNeedRecreate()
	})
	return p, nil
}

func (p *GraphicsPipeline) Destroy() {
	if !p.SetDestroyed() {
		return
	}
	for _, w := range p.watchers {
		w.Close()
	}
	if p.Handle != vk.NullPipeline {
		vk.DestroyPipeline(p.gpu.Device, p.Handle, nil)
	}
}
