package vulkan

import vk "github.com/goki/vulkan"

// RenderpassState tracks where a renderpass-bound command buffer sits in
// its begin/record/end/submit cycle, mirrored from CommandBufferState.
// Begin and End update it; nothing checks the order of calls.
type RenderpassState int

const (
	RenderpassStateReady RenderpassState = iota
	RenderpassStateRecording
	RenderpassStateInRenderPass
	RenderpassStateRecordingEnded
	RenderpassStateSubmitted
	RenderpassStateNotAllocated
)

// AttachmentConfig declaratively describes one color or depth attachment:
// arbitrary load/store behavior and layout transitions, rather than the
// hardcoded single-color/single-depth shape of a fixed-function renderer.
type AttachmentConfig struct {
	Format         vk.Format
	Samples        vk.SampleCountFlagBits
	LoadOp         vk.AttachmentLoadOp
	StoreOp        vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	InitialLayout  vk.ImageLayout
	FinalLayout    vk.ImageLayout
	IsDepth        bool
	ClearValue     vk.ClearValue
}

// SubpassConfig names which attachment indices a subpass writes as color
// and (optionally) depth.
type SubpassConfig struct {
	ColorAttachments []uint32
	DepthAttachment  *uint32
}

// Renderpass is an ordered attachment list plus ordered subpasses and their
// explicit stage/access dependencies.
type Renderpass struct {
	Lifecycle

	gpu    *GPU
	Handle vk.RenderPass

	Attachments []AttachmentConfig
	State       RenderpassState
}

// RenderpassConfig configures renderpass creation.
type RenderpassConfig struct {
	Attachments  []AttachmentConfig
	Subpasses    []SubpassConfig
	Dependencies []vk.SubpassDependency
}

// NewRenderpass builds a vk.RenderPass from an arbitrary attachment list
// and ordered subpasses, generalizing the fixed single-color/single-depth
// shape into a declarative one driven entirely by cfg.
func NewRenderpass(g *GPU, cfg RenderpassConfig) (*Renderpass, error) {
	attachmentDescs := make([]vk.AttachmentDescription, len(cfg.Attachments))
	for i, a := range cfg.Attachments {
		samples := a.Samples
		if samples == 0 {
			samples = vk.SampleCount1Bit
		}
		attachmentDescs[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        samples,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		}
	}

	var subpasses []vk.SubpassDescription
	// refs must outlive the loop that builds subpasses (cgo holds pointers).
	var colorRefsPerSubpass [][]vk.AttachmentReference
	var depthRefsPerSubpass []*vk.AttachmentReference

	for _, sp := range cfg.Subpasses {
		colorRefs := make([]vk.AttachmentReference, len(sp.ColorAttachments))
		for i, idx := range sp.ColorAttachments {
			colorRefs[i] = vk.AttachmentReference{
				Attachment: idx,
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			}
		}
		colorRefsPerSubpass = append(colorRefsPerSubpass, colorRefs)

		desc := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(colorRefs)),
			PColorAttachments:    colorRefs,
		}
		if sp.DepthAttachment != nil {
			depthRef := &vk.AttachmentReference{
				Attachment: *sp.DepthAttachment,
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			}
			depthRefsPerSubpass = append(depthRefsPerSubpass, depthRef)
			desc.PDepthStencilAttachment = depthRef
		}
		subpasses = append(subpasses, desc)
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescs)),
		PAttachments:    attachmentDescs,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(cfg.Dependencies)),
		PDependencies:   cfg.Dependencies,
	}

	rp := &Renderpass{
		Lifecycle:   NewLifecycle(KindRenderpass),
		gpu:         g,
		Attachments: cfg.Attachments,
		State:       RenderpassStateNotAllocated,
	}
	rp.SetInit()

	err := g.locks.SafeCall(LockRenderpassManagement, func() error {
		var handle vk.RenderPass
		result := vk.CreateRenderPass(g.Device, &createInfo, nil, &handle)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateRenderPass failed: %s", VulkanResultString(result, true))
		}
		rp.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}

	rp.State = RenderpassStateReady
	rp.SetCreated()
	return rp, nil
}

// ClearValues assembles the vk.ClearValue vector for this renderpass, in
// attachment order, from each attachment's configured clear value.
func (rp *Renderpass) ClearValues() []vk.ClearValue {
	values := make([]vk.ClearValue, len(rp.Attachments))
	for i, a := range rp.Attachments {
		values[i] = a.ClearValue
	}
	return values
}

func (rp *Renderpass) Begin(cb *CommandBuffer, fb vk.Framebuffer, renderArea vk.Rect2D) {
	cb.BeginRenderPass(rp, fb, renderArea, rp.ClearValues())
	rp.State = RenderpassStateInRenderPass
}

func (rp *Renderpass) End(cb *CommandBuffer) {
	cb.EndRenderPass()
	rp.State = RenderpassStateRecordingEnded
}

// Destroy releases the renderpass handle. Idempotent.
func (rp *Renderpass) Destroy() {
	if !rp.SetDestroyed() {
		return
	}
	if rp.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(rp.gpu.Device, rp.Handle, nil)
	}
}
