package vulkan

import vk "github.com/goki/vulkan"

// CommandBufferState mirrors the lifecycle a single vk.CommandBuffer moves
// through between allocation and submission.
type CommandBufferState int

const (
	CommandBufferStateReady CommandBufferState = iota
	CommandBufferStateRecording
	CommandBufferStateInRenderPass
	CommandBufferStateRecordingEnded
	CommandBufferStateSubmitted
	CommandBufferStateNotAllocated
)

// CommandBuffer wraps one vk.CommandBuffer plus the state needed to keep
// begin/end/submit calls honest.
type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
}

// Commands is an N-deep fanout of command buffers allocated from one queue
// family's pool, e.g. one per swapchain image.
type Commands struct {
	Lifecycle

	gpu     *GPU
	pool    vk.CommandPool
	Buffers []*CommandBuffer
}

// NewCommands allocates count command buffers from pool, primary or
// secondary according to primary.
func NewCommands(g *GPU, pool vk.CommandPool, count int, primary bool) (*Commands, error) {
	level := vk.CommandBufferLevelPrimary
	if !primary {
		level = vk.CommandBufferLevelSecondary
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: uint32(count),
	}

	handles := make([]vk.CommandBuffer, count)
	result := vk.AllocateCommandBuffers(g.Device, &allocInfo, handles)
	if !VulkanResultIsSuccess(result) {
		return nil, errUnknownf("vkAllocateCommandBuffers failed: %s", VulkanResultString(result, true))
	}

	c := &Commands{
		Lifecycle: NewLifecycle(KindCommands),
		gpu:       g,
		pool:      pool,
	}
	c.SetInit()
	for _, h := range handles {
		c.Buffers = append(c.Buffers, &CommandBuffer{Handle: h, State: CommandBufferStateReady})
	}
	c.SetAllocated()
	return c, nil
}

// At returns the command buffer for the given frame, clipped through the
// shared clipIndex helper so a Commands with count==1 always hands back
// its single buffer regardless of the raw frame counter.
func (c *Commands) At(frame uint32) *CommandBuffer {
	return c.Buffers[clipIndex(uint32(len(c.Buffers)), frame)]
}

func (cb *CommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	var flags vk.CommandBufferUsageFlagBits
	if isSingleUse {
		flags |= vk.CommandBufferUsageOneTimeSubmitBit
	}
	if isRenderpassContinue {
		flags |= vk.CommandBufferUsageRenderPassContinueBit
	}
	if isSimultaneousUse {
		flags |= vk.CommandBufferUsageSimultaneousUseBit
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(flags),
	}
	result := vk.BeginCommandBuffer(cb.Handle, &beginInfo)
	if !VulkanResultIsSuccess(result) {
		return errUnknownf("vkBeginCommandBuffer failed: %s", VulkanResultString(result, true))
	}
	cb.State = CommandBufferStateRecording
	return nil
}

func (cb *CommandBuffer) End() error {
	result := vk.EndCommandBuffer(cb.Handle)
	if !VulkanResultIsSuccess(result) {
		return errUnknownf("vkEndCommandBuffer failed: %s", VulkanResultString(result, true))
	}
	cb.State = CommandBufferStateRecordingEnded
	return nil
}

func (cb *CommandBuffer) BeginRenderPass(rp *Renderpass, fb vk.Framebuffer, renderArea vk.Rect2D, clearValues []vk.ClearValue) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.Handle,
		Framebuffer:     fb,
		RenderArea:      renderArea,
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb.Handle, &beginInfo, vk.SubpassContentsInline)
	cb.State = CommandBufferStateInRenderPass
}

func (cb *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(cb.Handle)
	cb.State = CommandBufferStateRecording
}

func (cb *CommandBuffer) SetViewport(viewport vk.Viewport) {
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{viewport})
}

func (cb *CommandBuffer) SetScissor(scissor vk.Rect2D) {
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (cb *CommandBuffer) BindGraphicsPipeline(p *GraphicsPipeline) {
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, p.Handle)
}

func (cb *CommandBuffer) BindComputePipeline(p *ComputePipeline) {
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointCompute, p.Handle)
}

func (cb *CommandBuffer) BindDescriptorSet(layout vk.PipelineLayout, bindPoint vk.PipelineBindPoint, set vk.DescriptorSet, dynamicOffsets []uint32) {
	vk.CmdBindDescriptorSets(cb.Handle, bindPoint, layout, 0, 1, []vk.DescriptorSet{set}, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (cb *CommandBuffer) BindVertexBuffer(buf vk.Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{buf}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (cb *CommandBuffer) BindIndexBuffer(buf vk.Buffer, offset uint64, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(cb.Handle, buf, vk.DeviceSize(offset), indexType)
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cb.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cb.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (cb *CommandBuffer) DrawIndirect(buf vk.Buffer, offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndirect(cb.Handle, buf, vk.DeviceSize(offset), drawCount, stride)
}

func (cb *CommandBuffer) DrawIndexedIndirect(buf vk.Buffer, offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndexedIndirect(cb.Handle, buf, vk.DeviceSize(offset), drawCount, stride)
}

func (cb *CommandBuffer) Dispatch(groupCountX, groupCountY, groupCountZ uint32) {
	vk.CmdDispatch(cb.Handle, groupCountX, groupCountY, groupCountZ)
}

func (cb *CommandBuffer) PushConstants(layout vk.PipelineLayout, stages vk.ShaderStageFlagBits, offset uint32, data []byte) {
	vk.CmdPushConstants(cb.Handle, layout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafePtr(data))
}

func (cb *CommandBuffer) PipelineBarrier(srcStage, dstStage vk.PipelineStageFlagBits, barriers []vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(cb.Handle, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
}

func (cb *CommandBuffer) CopyBuffer(src, dst vk.Buffer, regions []vk.BufferCopy) {
	vk.CmdCopyBuffer(cb.Handle, src, dst, uint32(len(regions)), regions)
}

func (cb *CommandBuffer) CopyBufferToImage(src vk.Buffer, dst vk.Image, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	vk.CmdCopyBufferToImage(cb.Handle, src, dst, layout, uint32(len(regions)), regions)
}

func (cb *CommandBuffer) CopyImageToBuffer(src vk.Image, layout vk.ImageLayout, dst vk.Buffer, regions []vk.BufferImageCopy) {
	vk.CmdCopyImageToBuffer(cb.Handle, src, layout, dst, uint32(len(regions)), regions)
}

func (cb *CommandBuffer) CopyImage(src vk.Image, srcLayout vk.ImageLayout, dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	vk.CmdCopyImage(cb.Handle, src, srcLayout, dst, dstLayout, uint32(len(regions)), regions)
}

// AllocateAndBeginSingleUse allocates one primary command buffer from pool
// and begins it flagged one-time-submit, for the synchronous
// submit/wait/free transfer pattern.
func AllocateAndBeginSingleUse(g *GPU, pool vk.CommandPool) (*CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	result := vk.AllocateCommandBuffers(g.Device, &allocInfo, handles)
	if !VulkanResultIsSuccess(result) {
		return nil, errUnknownf("vkAllocateCommandBuffers failed: %s", VulkanResultString(result, true))
	}
	cb := &CommandBuffer{Handle: handles[0], State: CommandBufferStateReady}
	if err := cb.Begin(true, false, false); err != nil {
		vk.FreeCommandBuffers(g.Device, pool, 1, handles)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to queue, waits for completion, and
// frees the command buffer: the full synchronous round-trip used by the
// transfer engine and by one-shot setup copies.
func EndSingleUse(g *GPU, pool vk.CommandPool, cb *CommandBuffer, queue vk.Queue) error {
	if err := cb.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}

	err := g.locks.SafeQueueCall(0, func() error {
		result := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkQueueSubmit failed: %s", VulkanResultString(result, true))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if result := vk.QueueWaitIdle(queue); !VulkanResultIsSuccess(result) {
		return errUnknownf("vkQueueWaitIdle failed: %s", VulkanResultString(result, true))
	}

	vk.FreeCommandBuffers(g.Device, pool, 1, []vk.CommandBuffer{cb.Handle})
	cb.State = CommandBufferStateNotAllocated
	return nil
}

// copyBufferRange performs a synchronous buffer-to-buffer copy using the
// GPU's transfer queue and transfer command pool.
func copyBufferRange(g *GPU, src, dst vk.Buffer, srcOffset, dstOffset, size uint64) error {
	if size == 0 {
		return nil
	}
	cb, err := AllocateAndBeginSingleUse(g, g.TransferCommandPool)
	if err != nil {
		return err
	}
	cb.CopyBuffer(src, dst, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
	return EndSingleUse(g, g.TransferCommandPool, cb, g.TransferQueue)
}
