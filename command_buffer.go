package kiln

import "github.com/cogentcore/webgpu/wgpu"

// CommandBufferRecording pairs a raw command encoder with the lifetime
// tracker for that recording and the fence gating its reuse. Every bind
// and upload routed through it lands in the tracker, so nothing the GPU
// may still touch can be released early.
type CommandBufferRecording struct {
	enc       CommandEncoder
	allocator *BufferAllocator
	trackers  *LifetimeTrackers
	fence     Fence
}

func newCommandBufferRecording(device Device, allocator *BufferAllocator) *CommandBufferRecording {
	return &CommandBufferRecording{
		enc:       device.CreateCommandEncoder(),
		allocator: allocator,
		trackers:  NewLifetimeTrackers(),
		fence:     device.CreateFence(true),
	}
}

// resetForReuse clears the tracker and rewinds the encoder. The fence must
// have signaled first; reusing a recording the GPU still owns is a
// programming error.
func (c *CommandBufferRecording) resetForReuse() {
	if !c.fence.IsSignaled() {
		panic("command buffer reset before its fence signaled")
	}
	c.trackers.Reset()
	c.enc.Reset()
}

func (c *CommandBufferRecording) begin() {
	c.enc.Begin()
	c.trackers.TrackFence(c.fence)
}

func (c *CommandBufferRecording) end() {
	c.enc.End()
}

func (c *CommandBufferRecording) beginRenderPass(rp RenderPass, fb Framebuffer, backbuffer TextureView) {
	c.trackers.TrackRenderPass(rp)
	c.trackers.TrackFramebuffer(fb)
	if backbuffer != nil {
		c.trackers.TrackTextureView(backbuffer)
	}
	c.enc.BeginRenderPass(rp, fb, backbuffer)
}

func (c *CommandBufferRecording) endRenderPass() {
	c.enc.EndRenderPass()
}

func (c *CommandBufferRecording) barrier(b Barrier) {
	c.enc.PipelineBarrier(b)
}

func (c *CommandBufferRecording) SetPipeline(p Pipeline) {
	c.trackers.TrackPipeline(p)
	c.enc.SetPipeline(p)
}

func (c *CommandBufferRecording) SetViewports(viewports []Viewport) {
	c.enc.SetViewports(viewports)
}

func (c *CommandBufferRecording) SetScissors(scissors []Scissor) {
	c.enc.SetScissors(scissors)
}

func (c *CommandBufferRecording) SetVertexBuffer(buf GpuBuffer) {
	c.enc.SetVertexBuffer(buf, 0)
}

func (c *CommandBufferRecording) SetIndexBuffer(buf GpuBuffer) {
	c.enc.SetIndexBuffer(buf, 0)
}

func (c *CommandBufferRecording) BindUniformSlice(frequency BindingFrequency, binding uint32, slice *BufferSlice) {
	c.trackers.TrackBuffer(slice)
	c.enc.BindUniformBuffer(frequency, binding, slice.Buffer(), slice.Offset(), slice.Length())
}

func (c *CommandBufferRecording) BindStorageBuffer(frequency BindingFrequency, binding uint32, buf GpuBuffer) {
	c.enc.BindStorageBuffer(frequency, binding, buf, 0, buf.Size())
}

func (c *CommandBufferRecording) BindUniformBuffer(frequency BindingFrequency, binding uint32, buf GpuBuffer) {
	c.enc.BindUniformBuffer(frequency, binding, buf, 0, buf.Size())
}

func (c *CommandBufferRecording) BindTextureView(frequency BindingFrequency, binding uint32, view TextureView) {
	c.trackers.TrackTextureView(view)
	c.enc.BindTextureView(frequency, binding, view)
}

func (c *CommandBufferRecording) BindSampler(frequency BindingFrequency, binding uint32, sampler Sampler) {
	c.trackers.TrackSampler(sampler)
	c.enc.BindSampler(frequency, binding, sampler)
}

// UploadDynamicData grabs a pooled slice, fills it and returns it already
// tracked by this recording. The returned slice is valid until the
// recording's fence signals.
func (c *CommandBufferRecording) UploadDynamicData(data []byte, usage wgpu.BufferUsage) *BufferSlice {
	slice := c.allocator.GetSlice(MemoryUsageCpuToGpu, usage, len(data))
	slice.Write(data)
	c.trackers.TrackOwnedBuffer(slice)
	return slice
}

func (c *CommandBufferRecording) Draw(vertexCount, firstVertex uint32) {
	c.enc.Draw(vertexCount, firstVertex)
}

func (c *CommandBufferRecording) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) {
	c.enc.DrawIndexed(indexCount, firstIndex, vertexOffset)
}

func (c *CommandBufferRecording) Dispatch(x, y, z uint32) {
	c.enc.Dispatch(x, y, z)
}

// Trackers exposes the recording's tracker, mainly for tests asserting
// release behavior.
func (c *CommandBufferRecording) Trackers() *LifetimeTrackers {
	return c.trackers
}
