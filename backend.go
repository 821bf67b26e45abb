package kiln

import (
	"errors"

	"github.com/cogentcore/webgpu/wgpu"
)

// The renderer drives the GPU exclusively through the interfaces in this
// file. Device/adapter/instance bootstrap lives with the embedding
// application; the renderer only consumes the finished Device and Swapchain.

// ErrSurfaceLost and ErrOutOfDate are the two transient presentation
// failures. Both are recovered by recreating the swapchain and the render
// graph; everything else returned by a backend is treated as fatal for the
// current frame.
var (
	ErrSurfaceLost = errors.New("presentation surface lost")
	ErrOutOfDate   = errors.New("swapchain out of date")
)

func IsSwapchainError(err error) bool {
	return errors.Is(err, ErrSurfaceLost) || errors.Is(err, ErrOutOfDate)
}

// MemoryUsage selects the memory class a buffer allocation lives in.
type MemoryUsage uint8

const (
	MemoryUsageGpuOnly MemoryUsage = iota
	MemoryUsageCpuToGpu
	MemoryUsageGpuToCpu
)

// ResourceUsage describes how a render graph resource is accessed by a
// pass. Transitions between usages are what barriers are derived from.
type ResourceUsage uint8

const (
	ResourceUsageNone ResourceUsage = iota
	ResourceUsageShaderRead
	ResourceUsageShaderWrite
	ResourceUsageColorAttachment
	ResourceUsageDepthStencil
	ResourceUsagePresent
)

// BindingFrequency groups shader bindings by update rate.
type BindingFrequency uint8

const (
	BindingFrequencyPerFrame BindingFrequency = iota
	BindingFrequencyPerMaterial
	BindingFrequencyPerDraw
)

type DeviceLimits struct {
	MinUniformBufferOffsetAlignment int
	MinStorageBufferOffsetAlignment int
}

// GPU object handles. The renderer never inspects these beyond the methods
// below; it only creates them, binds them and keeps them alive while the
// GPU may still read them.
type GpuBuffer interface {
	Size() int
	Write(offset int, data []byte)
	Destroy()
}

type Texture interface {
	Destroy()
}

type TextureView interface{}

type Sampler interface{}

type Pipeline interface{}

type RenderPass interface{}

type Framebuffer interface{}

type Semaphore interface{}

type Fence interface {
	IsSignaled() bool
	Wait()
}

type TextureDescriptor struct {
	Label       string
	Width       uint32
	Height      uint32
	Format      wgpu.TextureFormat
	SampleCount uint32
	Usage       ResourceUsage
}

// AttachmentDescription describes one render pass attachment. Backbuffer
// attachments have no format of their own; they take the swapchain's.
type AttachmentDescription struct {
	Format         wgpu.TextureFormat
	SampleCount    uint32
	LoadOp         wgpu.LoadOp
	StoreOp        wgpu.StoreOp
	StencilLoadOp  wgpu.LoadOp
	StencilStoreOp wgpu.StoreOp
	Backbuffer     bool
}

type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []AttachmentDescription
	DepthStencil     *AttachmentDescription
}

type FramebufferDescriptor struct {
	Label       string
	RenderPass  RenderPass
	Attachments []TextureView
	// Backbuffer framebuffers additionally bind the per-frame swapchain
	// view passed to CommandEncoder.BeginRenderPass.
	Backbuffer bool
	Width      uint32
	Height     uint32
}

type GraphicsPipelineDescriptor struct {
	Label        string
	RenderPass   RenderPass
	Subpass      int
	VertexStride uint64
}

// Barrier is a single resource state transition recorded between passes.
type Barrier struct {
	Buffer  GpuBuffer
	Texture Texture
	From    ResourceUsage
	To      ResourceUsage
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

type Scissor struct {
	X, Y          int32
	Width, Height uint32
}

// CommandEncoder records raw GPU commands. Object lifetime is not its
// concern; CommandBufferRecording wraps it and tracks everything touched.
type CommandEncoder interface {
	Begin()
	End()
	Reset()

	BeginRenderPass(rp RenderPass, fb Framebuffer, backbuffer TextureView)
	EndRenderPass()

	SetPipeline(p Pipeline)
	SetViewports(viewports []Viewport)
	SetScissors(scissors []Scissor)
	SetVertexBuffer(buf GpuBuffer, offset int)
	SetIndexBuffer(buf GpuBuffer, offset int)
	BindUniformBuffer(frequency BindingFrequency, binding uint32, buf GpuBuffer, offset, length int)
	BindStorageBuffer(frequency BindingFrequency, binding uint32, buf GpuBuffer, offset, length int)
	BindTextureView(frequency BindingFrequency, binding uint32, view TextureView)
	BindSampler(frequency BindingFrequency, binding uint32, sampler Sampler)

	Draw(vertexCount, firstVertex uint32)
	DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32)
	Dispatch(x, y, z uint32)

	PipelineBarrier(barrier Barrier)
}

// Device is the single concrete backend surface. It folds the per-backend
// type-family abstraction of classic graphics layers into one interface;
// a backend implements exactly this, nothing more.
type Device interface {
	Limits() DeviceLimits

	CreateBuffer(label string, size int, memory MemoryUsage, usage wgpu.BufferUsage) GpuBuffer
	CreateTexture(desc TextureDescriptor) Texture
	CreateTextureView(tex Texture) TextureView
	CreateSampler(label string) Sampler
	CreateRenderPass(desc RenderPassDescriptor) RenderPass
	CreateFramebuffer(desc FramebufferDescriptor) Framebuffer
	CreateGraphicsPipeline(desc GraphicsPipelineDescriptor) Pipeline
	CreateComputePipeline(label string) Pipeline
	CreateSemaphore() Semaphore
	CreateFence(signaled bool) Fence
	CreateCommandEncoder() CommandEncoder

	Submit(enc CommandEncoder, waits []Semaphore, signals []Semaphore, fence Fence) error
	WaitIdle()
}

// Surface is an opaque native window surface handle, produced by the
// windowing collaborator and consumed only by Swapchain recreation.
type Surface interface{}

// Swapchain is the presentation contract. PrepareBackBuffer returns the
// view to render into for this frame, or a transient swapchain error;
// the semaphore is signaled when the image is ready.
type Swapchain interface {
	Width() uint32
	Height() uint32
	Format() wgpu.TextureFormat
	SampleCount() uint32

	Recreate(width, height uint32) (Swapchain, error)
	RecreateOnSurface(surface Surface, width, height uint32) (Swapchain, error)

	PrepareBackBuffer(sem Semaphore) (TextureView, error)
	Present(wait Semaphore) error
}
