package kiln

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
)

// Headless backend. Implements the full Device and Swapchain contracts
// against plain memory so the frame loop, the graph and the allocator
// can run without a GPU. Tests and CI use it exclusively; it also
// records enough bookkeeping to assert on recorded command streams and
// to inject presentation failures.

type HeadlessDevice struct {
	limits DeviceLimits

	mu           sync.Mutex
	fences       []*HeadlessFence
	manualFences bool

	submits atomic.Int64
}

func NewHeadlessDevice() *HeadlessDevice {
	return &HeadlessDevice{
		limits: DeviceLimits{
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 64,
		},
	}
}

// SetManualFences stops Submit from signaling fences on its own; tests
// drive completion explicitly through SignalAllFences.
func (d *HeadlessDevice) SetManualFences(manual bool) {
	d.mu.Lock()
	d.manualFences = manual
	d.mu.Unlock()
}

func (d *HeadlessDevice) SignalAllFences() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.fences {
		f.signaled.Store(true)
	}
}

func (d *HeadlessDevice) Submits() int64 {
	return d.submits.Load()
}

func (d *HeadlessDevice) Limits() DeviceLimits { return d.limits }

func (d *HeadlessDevice) CreateBuffer(label string, size int, memory MemoryUsage, usage wgpu.BufferUsage) GpuBuffer {
	return &HeadlessBuffer{label: label, data: make([]byte, size)}
}

func (d *HeadlessDevice) CreateTexture(desc TextureDescriptor) Texture {
	return &headlessTexture{desc: desc}
}

func (d *HeadlessDevice) CreateTextureView(tex Texture) TextureView {
	return &headlessTextureView{texture: tex.(*headlessTexture)}
}

func (d *HeadlessDevice) CreateSampler(label string) Sampler {
	return &headlessSampler{label: label}
}

func (d *HeadlessDevice) CreateRenderPass(desc RenderPassDescriptor) RenderPass {
	return &headlessRenderPass{desc: desc}
}

func (d *HeadlessDevice) CreateFramebuffer(desc FramebufferDescriptor) Framebuffer {
	return &headlessFramebuffer{desc: desc}
}

func (d *HeadlessDevice) CreateGraphicsPipeline(desc GraphicsPipelineDescriptor) Pipeline {
	return &headlessPipeline{label: desc.Label}
}

func (d *HeadlessDevice) CreateComputePipeline(label string) Pipeline {
	return &headlessPipeline{label: label}
}

func (d *HeadlessDevice) CreateSemaphore() Semaphore {
	return &headlessSemaphore{}
}

func (d *HeadlessDevice) CreateFence(signaled bool) Fence {
	f := &HeadlessFence{}
	f.signaled.Store(signaled)
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f
}

func (d *HeadlessDevice) CreateCommandEncoder() CommandEncoder {
	return &HeadlessEncoder{}
}

// Submit completes immediately unless manual fences are on.
func (d *HeadlessDevice) Submit(enc CommandEncoder, waits []Semaphore, signals []Semaphore, fence Fence) error {
	d.submits.Add(1)
	d.mu.Lock()
	manual := d.manualFences
	d.mu.Unlock()
	if !manual && fence != nil {
		fence.(*HeadlessFence).signaled.Store(true)
	}
	return nil
}

func (d *HeadlessDevice) WaitIdle() {
	d.SignalAllFences()
}

type HeadlessBuffer struct {
	label string

	mu        sync.Mutex
	data      []byte
	destroyed bool
}

func (b *HeadlessBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *HeadlessBuffer) Write(offset int, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		panic("write to destroyed buffer " + b.label)
	}
	copy(b.data[offset:], data)
}

func (b *HeadlessBuffer) Destroy() {
	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()
}

// Bytes copies out the current contents, for assertions.
func (b *HeadlessBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

type headlessTexture struct {
	desc      TextureDescriptor
	destroyed bool
}

func (t *headlessTexture) Destroy() { t.destroyed = true }

type headlessTextureView struct {
	texture *headlessTexture
}

type headlessSampler struct{ label string }

type headlessPipeline struct{ label string }

type headlessRenderPass struct{ desc RenderPassDescriptor }

type headlessFramebuffer struct{ desc FramebufferDescriptor }

type headlessSemaphore struct{}

type HeadlessFence struct {
	signaled atomic.Bool
}

func (f *HeadlessFence) IsSignaled() bool { return f.signaled.Load() }

func (f *HeadlessFence) Wait() {
	for !f.signaled.Load() {
		runtime.Gosched()
	}
}

func (f *HeadlessFence) Signal() { f.signaled.Store(true) }

// HeadlessEncoder counts what gets recorded so tests can assert on the
// shape of a frame without a real command stream.
type HeadlessEncoder struct {
	Began        bool
	Ended        bool
	RenderPasses int
	Draws        int
	IndexedDraws int
	Dispatches   int
	Barriers     int
	Bindings     int

	inRenderPass bool
}

func (e *HeadlessEncoder) Begin() { e.Began = true }
func (e *HeadlessEncoder) End()   { e.Ended = true }

func (e *HeadlessEncoder) Reset() {
	*e = HeadlessEncoder{}
}

func (e *HeadlessEncoder) BeginRenderPass(rp RenderPass, fb Framebuffer, backbuffer TextureView) {
	if e.inRenderPass {
		panic("nested render pass")
	}
	e.inRenderPass = true
	e.RenderPasses++
}

func (e *HeadlessEncoder) EndRenderPass() {
	if !e.inRenderPass {
		panic("render pass end without begin")
	}
	e.inRenderPass = false
}

func (e *HeadlessEncoder) SetPipeline(p Pipeline)                    {}
func (e *HeadlessEncoder) SetViewports(viewports []Viewport)         {}
func (e *HeadlessEncoder) SetScissors(scissors []Scissor)            {}
func (e *HeadlessEncoder) SetVertexBuffer(buf GpuBuffer, offset int) {}
func (e *HeadlessEncoder) SetIndexBuffer(buf GpuBuffer, offset int)  {}

func (e *HeadlessEncoder) BindUniformBuffer(frequency BindingFrequency, binding uint32, buf GpuBuffer, offset, length int) {
	e.Bindings++
}

func (e *HeadlessEncoder) BindStorageBuffer(frequency BindingFrequency, binding uint32, buf GpuBuffer, offset, length int) {
	e.Bindings++
}

func (e *HeadlessEncoder) BindTextureView(frequency BindingFrequency, binding uint32, view TextureView) {
	e.Bindings++
}

func (e *HeadlessEncoder) BindSampler(frequency BindingFrequency, binding uint32, sampler Sampler) {
	e.Bindings++
}

func (e *HeadlessEncoder) Draw(vertexCount, firstVertex uint32) { e.Draws++ }

func (e *HeadlessEncoder) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) {
	e.IndexedDraws++
}

func (e *HeadlessEncoder) Dispatch(x, y, z uint32) { e.Dispatches++ }

func (e *HeadlessEncoder) PipelineBarrier(barrier Barrier) { e.Barriers++ }

// HeadlessSwapchain presents into the void. Errors for PrepareBackBuffer
// and Recreate can be queued up front to exercise the recovery path, and
// the format of the next recreation can be overridden to simulate a
// driver changing its mind.
type HeadlessSwapchain struct {
	width  uint32
	height uint32
	format wgpu.TextureFormat

	mu             sync.Mutex
	acquireErrs    []error
	recreateErr    error
	recreateFormat wgpu.TextureFormat
	presented      int
	recreations    int

	backbuffer *headlessTextureView
}

func NewHeadlessSwapchain(width, height uint32) *HeadlessSwapchain {
	return &HeadlessSwapchain{
		width:  width,
		height: height,
		format: wgpu.TextureFormatBGRA8Unorm,
		backbuffer: &headlessTextureView{
			texture: &headlessTexture{},
		},
	}
}

func (s *HeadlessSwapchain) Width() uint32              { return s.width }
func (s *HeadlessSwapchain) Height() uint32             { return s.height }
func (s *HeadlessSwapchain) Format() wgpu.TextureFormat { return s.format }
func (s *HeadlessSwapchain) SampleCount() uint32        { return 1 }

// InjectAcquireError queues an error for an upcoming PrepareBackBuffer.
func (s *HeadlessSwapchain) InjectAcquireError(err error) {
	s.mu.Lock()
	s.acquireErrs = append(s.acquireErrs, err)
	s.mu.Unlock()
}

// FailNextRecreate makes the next Recreate return the given error.
func (s *HeadlessSwapchain) FailNextRecreate(err error) {
	s.mu.Lock()
	s.recreateErr = err
	s.mu.Unlock()
}

// DriftFormatOnRecreate makes recreated swapchains report a different
// format, which the renderer treats as fatal.
func (s *HeadlessSwapchain) DriftFormatOnRecreate(format wgpu.TextureFormat) {
	s.mu.Lock()
	s.recreateFormat = format
	s.mu.Unlock()
}

func (s *HeadlessSwapchain) Presented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

func (s *HeadlessSwapchain) Recreations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recreations
}

func (s *HeadlessSwapchain) Recreate(width, height uint32) (Swapchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recreateErr != nil {
		err := s.recreateErr
		s.recreateErr = nil
		return nil, err
	}
	s.recreations++

	next := NewHeadlessSwapchain(width, height)
	next.format = s.format
	if s.recreateFormat != 0 {
		next.format = s.recreateFormat
	}
	return next, nil
}

func (s *HeadlessSwapchain) RecreateOnSurface(surface Surface, width, height uint32) (Swapchain, error) {
	return s.Recreate(width, height)
}

func (s *HeadlessSwapchain) PrepareBackBuffer(sem Semaphore) (TextureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.acquireErrs) > 0 {
		err := s.acquireErrs[0]
		s.acquireErrs = s.acquireErrs[1:]
		return nil, err
	}
	return s.backbuffer, nil
}

func (s *HeadlessSwapchain) Present(wait Semaphore) error {
	s.mu.Lock()
	s.presented++
	s.mu.Unlock()
	return nil
}
