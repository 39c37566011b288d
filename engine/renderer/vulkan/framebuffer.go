package vulkan

import vk "github.com/goki/vulkan"

// Framebuffer wraps a single vk.Framebuffer and the attachment views it was
// built from.
type Framebuffer struct {
	Handle          vk.Framebuffer
	AttachmentCount uint32
	Attachments     []vk.ImageView
}

// FramebufferSet is one framebuffer per frame: a single entry for an
// offscreen target, or one per swapchain image when presenting.
type FramebufferSet struct {
	Lifecycle

	gpu        *GPU
	renderpass *Renderpass
	Width      uint32
	Height     uint32
	Buffers    []*Framebuffer
}

// NewFramebufferSet creates one framebuffer per entry in attachmentSets,
// each built from the corresponding slice of image views. Every
// framebuffer uses the given width and height.
func NewFramebufferSet(g *GPU, rp *Renderpass, width, height uint32, attachmentSets [][]vk.ImageView) (*FramebufferSet, error) {
	fs := &FramebufferSet{
		Lifecycle:  NewLifecycle(KindFramebuffers),
		gpu:        g,
		renderpass: rp,
		Width:      width,
		Height:     height,
	}
	fs.SetInit()

	err := g.locks.SafeCall(LockRenderpassManagement, func() error {
		for _, attachments := range attachmentSets {
			createInfo := vk.FramebufferCreateInfo{
				SType:           vk.StructureTypeFramebufferCreateInfo,
				RenderPass:      rp.Handle,
				AttachmentCount: uint32(len(attachments)),
				PAttachments:    attachments,
				Width:           width,
				Height:          height,
				Layers:          1,
			}
			var handle vk.Framebuffer
			result := vk.CreateFramebuffer(g.Device, &createInfo, nil, &handle)
			if !VulkanResultIsSuccess(result) {
				return errUnknownf("vkCreateFramebuffer failed: %s", VulkanResultString(result, true))
			}
			fs.Buffers = append(fs.Buffers, &Framebuffer{
				Handle:          handle,
				AttachmentCount: uint32(len(attachments)),
				Attachments:     attachments,
			})
		}
		return nil
	})
	if err != nil {
		fs.Destroy()
		return nil, err
	}

	fs.SetCreated()
	return fs, nil
}

// At returns the framebuffer for the given frame, clipped through the
// shared per-frame helper.
func (fs *FramebufferSet) At(frame uint32) *Framebuffer {
	return fs.Buffers[clipIndex(uint32(len(fs.Buffers)), frame)]
}

// Destroy releases every framebuffer in the set. Idempotent.
func (fs *FramebufferSet) Destroy() {
	if !fs.SetDestroyed() {
		return
	}
	for _, fb := range fs.Buffers {
		if fb.Handle != vk.NullFramebuffer {
			vk.DestroyFramebuffer(fs.gpu.Device, fb.Handle, nil)
		}
	}
}
