package kiln

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// PassCallback records one subpass worth of commands. Callbacks only see
// precompiled objects; they must not create GPU resources mid-frame
// beyond pooled dynamic uploads.
type PassCallback func(cmd *CommandBufferRecording, resources *GraphResources)

// GraphInfo binds a compiled template to its recording callbacks and to
// externally owned resources, injected by name and excluded from the
// graph's own lifetime management.
type GraphInfo struct {
	// One callback per graphics subpass, a single one for compute.
	PassCallbacks   map[string][]PassCallback
	ExternalBuffers map[string]GpuBuffer
}

// GraphResources resolves named graph resources during recording.
// Referencing an undeclared name is a contract violation.
type GraphResources struct {
	buffers map[string]GpuBuffer
	views   map[string]TextureView
}

func (r *GraphResources) Buffer(name string) GpuBuffer {
	buf, ok := r.buffers[name]
	if !ok {
		panic(fmt.Sprintf("render graph: unknown buffer resource %q", name))
	}
	return buf
}

func (r *GraphResources) TextureView(name string) TextureView {
	view, ok := r.views[name]
	if !ok {
		panic(fmt.Sprintf("render graph: unknown texture resource %q", name))
	}
	return view
}

type compiledGraphicsPass struct {
	renderPass     RenderPass
	framebuffer    Framebuffer
	usesBackbuffer bool
}

type frameContext struct {
	recording  *CommandBufferRecording
	acquireSem Semaphore
	renderSem  Semaphore
}

// RenderGraph executes a compiled template against one swapchain. All GPU
// objects are built once here; Render only records and submits.
type RenderGraph struct {
	device    Device
	template  *GraphTemplate
	info      GraphInfo
	swapchain Swapchain
	allocator *BufferAllocator

	resources     *GraphResources
	ownedBuffers  []GpuBuffer
	ownedTextures []Texture
	compiled      map[string]*compiledGraphicsPass

	frames     []*frameContext
	frameIndex uint64
}

const framesInFlight = 3

// NewRenderGraph builds backing GPU objects for every graph-owned
// resource and validates that all external inputs are bound and all
// callbacks name a declared pass.
func NewRenderGraph(device Device, template *GraphTemplate, info GraphInfo, swapchain Swapchain, allocator *BufferAllocator) *RenderGraph {
	if swapchain.Format() != template.Format() || swapchain.SampleCount() != template.SampleCount() {
		panic("render graph: swapchain format or sample count does not match the compiled template")
	}

	g := &RenderGraph{
		device:    device,
		template:  template,
		info:      info,
		swapchain: swapchain,
		allocator: allocator,
		resources: &GraphResources{
			buffers: make(map[string]GpuBuffer),
			views:   make(map[string]TextureView),
		},
		compiled: make(map[string]*compiledGraphicsPass),
	}

	knownPasses := make(map[string]struct{}, len(template.passes))
	for i := range template.passes {
		knownPasses[template.passes[i].Name] = struct{}{}
	}
	for name := range info.PassCallbacks {
		if _, ok := knownPasses[name]; !ok {
			panic(fmt.Sprintf("render graph: callback for undeclared pass %q", name))
		}
	}
	for _, name := range template.ExternalResources() {
		buf, ok := info.ExternalBuffers[name]
		if !ok {
			panic(fmt.Sprintf("render graph: external resource %q not bound", name))
		}
		g.resources.buffers[name] = buf
	}

	g.buildResources()
	g.buildPasses()

	for i := 0; i < framesInFlight; i++ {
		g.frames = append(g.frames, &frameContext{
			recording:  newCommandBufferRecording(device, allocator),
			acquireSem: device.CreateSemaphore(),
			renderSem:  device.CreateSemaphore(),
		})
	}
	return g
}

func (g *RenderGraph) buildResources() {
	for name, res := range g.template.resources {
		switch res.kind {
		case resourceBuffer:
			buf := g.device.CreateBuffer(name, int(res.size), MemoryUsageGpuOnly,
				wgpu.BufferUsageStorage|wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
			g.resources.buffers[name] = buf
			g.ownedBuffers = append(g.ownedBuffers, buf)
		case resourceTexture:
			width, height := res.extent.resolve(g.swapchain.Width(), g.swapchain.Height())
			usage := ResourceUsageColorAttachment
			if res.depthStencil {
				usage = ResourceUsageDepthStencil
			}
			tex := g.device.CreateTexture(TextureDescriptor{
				Label:       name,
				Width:       width,
				Height:      height,
				Format:      res.format,
				SampleCount: res.samples,
				Usage:       usage,
			})
			g.ownedTextures = append(g.ownedTextures, tex)
			g.resources.views[name] = g.device.CreateTextureView(tex)
		}
	}
}

func (g *RenderGraph) buildPasses() {
	for i := range g.template.passes {
		pass := &g.template.passes[i]
		if pass.Type != PassTypeGraphics {
			continue
		}

		var desc RenderPassDescriptor
		var attachments []TextureView
		usesBackbuffer := false
		desc.Label = pass.Name

		for _, subpass := range pass.Subpasses {
			for _, out := range subpass.Outputs {
				if out.Kind == SubpassOutputBackbuffer {
					usesBackbuffer = true
					loadOp := wgpu.LoadOpLoad
					if out.Clear {
						loadOp = wgpu.LoadOpClear
					}
					desc.ColorAttachments = append(desc.ColorAttachments, AttachmentDescription{
						Format:      g.swapchain.Format(),
						SampleCount: g.swapchain.SampleCount(),
						LoadOp:      loadOp,
						StoreOp:     wgpu.StoreOpStore,
						Backbuffer:  true,
					})
					continue
				}
				desc.ColorAttachments = append(desc.ColorAttachments, AttachmentDescription{
					Format:      out.Format,
					SampleCount: out.Samples,
					LoadOp:      out.LoadOp,
					StoreOp:     out.StoreOp,
				})
				attachments = append(attachments, g.resources.views[out.Name])
			}
			if ds := subpass.DepthStencil; ds != nil {
				desc.DepthStencil = &AttachmentDescription{
					Format:         ds.Format,
					SampleCount:    ds.Samples,
					LoadOp:         ds.DepthLoadOp,
					StoreOp:        ds.DepthStoreOp,
					StencilLoadOp:  ds.StencilLoadOp,
					StencilStoreOp: ds.StencilStoreOp,
				}
				attachments = append(attachments, g.resources.views[ds.Name])
			}
		}

		rp := g.device.CreateRenderPass(desc)
		fb := g.device.CreateFramebuffer(FramebufferDescriptor{
			Label:       pass.Name,
			RenderPass:  rp,
			Attachments: attachments,
			Backbuffer:  usesBackbuffer,
			Width:       g.swapchain.Width(),
			Height:      g.swapchain.Height(),
		})
		g.compiled[pass.Name] = &compiledGraphicsPass{
			renderPass:     rp,
			framebuffer:    fb,
			usesBackbuffer: usesBackbuffer,
		}
	}
}

// GraphicsPass exposes the compiled render pass object of a graphics
// pass so callers can build pipelines against it. Handles go stale when
// the graph is recreated.
func (g *RenderGraph) GraphicsPass(name string) RenderPass {
	cp, ok := g.compiled[name]
	if !ok {
		panic(fmt.Sprintf("render graph: unknown graphics pass %q", name))
	}
	return cp.renderPass
}

// Render records one frame against the precompiled objects and submits
// it. Transient presentation failures come back as errors; contract
// violations (unknown resources) panic inside the callbacks.
func (g *RenderGraph) Render() error {
	ctx := g.frames[g.frameIndex%uint64(len(g.frames))]
	g.frameIndex++

	rec := ctx.recording
	if !rec.fence.IsSignaled() {
		rec.fence.Wait()
	}
	rec.resetForReuse()

	backbuffer, err := g.swapchain.PrepareBackBuffer(ctx.acquireSem)
	if err != nil {
		return err
	}

	rec.begin()
	rec.trackers.TrackSemaphore(ctx.acquireSem)
	rec.trackers.TrackSemaphore(ctx.renderSem)

	for i := range g.template.passes {
		pass := &g.template.passes[i]

		for _, tb := range g.template.passBarriers[pass.Name] {
			rec.barrier(Barrier{
				Buffer: g.resources.Buffer(tb.resource),
				From:   tb.from,
				To:     tb.to,
			})
		}

		callbacks := g.info.PassCallbacks[pass.Name]
		switch pass.Type {
		case PassTypeCompute:
			for _, cb := range callbacks {
				cb(rec, g.resources)
			}
		case PassTypeGraphics:
			cp := g.compiled[pass.Name]
			var bb TextureView
			if cp.usesBackbuffer {
				bb = backbuffer
			}
			rec.beginRenderPass(cp.renderPass, cp.framebuffer, bb)
			for si := range pass.Subpasses {
				if si < len(callbacks) {
					callbacks[si](rec, g.resources)
				}
			}
			rec.endRenderPass()
		}
	}

	rec.end()
	if err := g.device.Submit(rec.enc, []Semaphore{ctx.acquireSem}, []Semaphore{ctx.renderSem}, rec.fence); err != nil {
		return err
	}
	return g.swapchain.Present(ctx.renderSem)
}

// RecreateGraph rebuilds the graph against a freshly recreated swapchain.
// The template stays; its topology is locked to the original format and
// sample count, so drift is fatal and caught by NewRenderGraph. The
// caller must have waited for the device to go idle.
func RecreateGraph(old *RenderGraph, swapchain Swapchain) *RenderGraph {
	old.destroyOwned()
	return NewRenderGraph(old.device, old.template, old.info, swapchain, old.allocator)
}

func (g *RenderGraph) destroyOwned() {
	for _, buf := range g.ownedBuffers {
		buf.Destroy()
	}
	for _, tex := range g.ownedTextures {
		tex.Destroy()
	}
	g.ownedBuffers = nil
	g.ownedTextures = nil
}
