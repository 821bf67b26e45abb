package kiln

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// rendererInternal owns everything the render goroutine touches: the
// scene, the view, the render graph and the per-frame pipeline state.
// Nothing in here is shared with the simulation side except through the
// command queue and the frontend's atomics.
type rendererInternal struct {
	frontend  *Renderer
	device    Device
	swapchain Swapchain
	assets    *RendererAssets
	allocator *BufferAllocator
	logger    Logger

	scene *Scene
	view  *View
	graph *RenderGraph

	primaryCamera GpuBuffer
	geometryPipe  Pipeline

	tickDuration time.Duration
	lastTick     time.Time
}

func newRendererInternal(frontend *Renderer, device Device, swapchain Swapchain, assets *RendererAssets, opts RendererOptions) *rendererInternal {
	i := &rendererInternal{
		frontend:     frontend,
		device:       device,
		swapchain:    swapchain,
		assets:       assets,
		allocator:    NewBufferAllocator(device),
		logger:       opts.Logger,
		scene:        NewScene(),
		view:         NewView(),
		tickDuration: time.Second / time.Duration(opts.TickRate),
		lastTick:     time.Now(),
	}

	i.primaryCamera = device.CreateBuffer("PrimaryCamera", 64, MemoryUsageCpuToGpu,
		wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)

	template := DefaultTemplate(swapchain)
	i.graph = NewRenderGraph(device, template, GraphInfo{
		PassCallbacks: map[string][]PassCallback{
			"CameraCopy": {i.recordCameraCopy},
			"Geometry":   {i.recordGeometry},
		},
		ExternalBuffers: map[string]GpuBuffer{
			ExternalPrimaryCamera: i.primaryCamera,
		},
	}, swapchain, i.allocator)
	i.buildPipeline()
	return i
}

func (i *rendererInternal) buildPipeline() {
	i.geometryPipe = i.device.CreateGraphicsPipeline(GraphicsPipelineDescriptor{
		Label:        "Geometry",
		RenderPass:   i.graph.GraphicsPass("Geometry"),
		Subpass:      0,
		VertexStride: 32,
	})
}

// receiveMessages drains the command queue in FIFO order. An EndFrame
// command closes the drain window: everything behind it belongs to the
// next simulation tick and stays queued.
func (i *rendererInternal) receiveMessages() {
	for {
		cmd, ok := i.frontend.queue.tryRecv()
		if !ok {
			return
		}

		switch cmd.kind {
		case cmdRegisterStatic:
			model, found := i.assets.Model(cmd.modelPath)
			if !found {
				i.logger.Warnf("dropping drawable for entity %d: model %q not registered", cmd.entity, cmd.modelPath)
				continue
			}
			i.scene.registerDrawable(Drawable{
				Entity:         cmd.entity,
				Transform:      cmd.transform,
				PrevTransform:  cmd.transform,
				Model:          model,
				ReceiveShadows: cmd.receiveShadows,
				CastShadows:    cmd.castShadows,
				CanMove:        cmd.canMove,
				interpolated:   cmd.transform,
			})

		case cmdUnregisterStatic:
			i.scene.unregisterDrawable(cmd.entity)

		case cmdRegisterPointLight:
			i.scene.registerLight(PointLight{
				Entity:    cmd.entity,
				Position:  cmd.transform.Col(3).Vec3(),
				Intensity: cmd.intensity,
			})

		case cmdUnregisterPointLight:
			i.scene.unregisterLight(cmd.entity)

		case cmdUpdateCameraTransform:
			i.view.CameraTransform = cmd.transform
			i.view.CameraFov = cmd.fov

		case cmdUpdateTransform:
			i.scene.updateTransform(cmd.entity, cmd.transform)

		case cmdEndFrame:
			i.frontend.queuedFrames.Add(-1)
			i.lastTick = time.Now()
			i.scene.promoteTransforms()
			i.view.PrevCameraTransform = i.view.CameraTransform
			i.view.PrevCameraFov = i.view.CameraFov
			return
		}
	}
}

// interpolate refreshes every movable drawable's scratch transform and
// the camera for the current point between the last two simulation
// ticks, then writes the resulting view-projection into the primary
// camera buffer.
func (i *rendererInternal) interpolate(now time.Time, aspect float32) {
	frac := float32(now.Sub(i.lastTick)) / float32(i.tickDuration)
	if frac > 1 {
		frac = 1
	}

	for idx := range i.scene.drawables {
		d := &i.scene.drawables[idx]
		if d.CanMove {
			d.interpolated = interpolateTransform(d.PrevTransform, d.Transform, frac)
		}
	}

	i.view.interpolatedCamera = interpolateTransform(i.view.PrevCameraTransform, i.view.CameraTransform, frac)
	i.view.interpolatedFov = i.view.PrevCameraFov + (i.view.CameraFov-i.view.PrevCameraFov)*frac

	viewProj := mgl32.Perspective(i.view.interpolatedFov, aspect, i.view.NearPlane, i.view.FarPlane).
		Mul4(i.view.interpolatedCamera.Inv())
	i.primaryCamera.Write(0, matrixBytes(viewProj))
}

func (i *rendererInternal) recordCameraCopy(cmd *CommandBufferRecording, resources *GraphResources) {
	cmd.BindUniformBuffer(BindingFrequencyPerFrame, 0, resources.Buffer(ExternalPrimaryCamera))
	cmd.BindStorageBuffer(BindingFrequencyPerFrame, 1, resources.Buffer("Camera"))
	cmd.Dispatch(1, 1, 1)
}

// recordGeometry draws the sorted visible set. Material state is only
// rebound on key changes, which is what the sort pays for.
func (i *rendererInternal) recordGeometry(cmd *CommandBufferRecording, resources *GraphResources) {
	cmd.SetPipeline(i.geometryPipe)
	cmd.SetViewports([]Viewport{{
		Width:    float32(i.swapchain.Width()),
		Height:   float32(i.swapchain.Height()),
		MaxDepth: 1,
	}})
	cmd.SetScissors([]Scissor{{
		Width:  i.swapchain.Width(),
		Height: i.swapchain.Height(),
	}})
	cmd.BindStorageBuffer(BindingFrequencyPerFrame, 0, resources.Buffer("Camera"))

	var boundMaterial MaterialHandle
	var boundMesh *Mesh
	materialBound := false

	for _, part := range i.view.DrawableParts {
		d := &i.scene.drawables[part.DrawableIndex]
		mesh := d.Model.Mesh

		handle := partMaterialKey(part, i.scene)
		if !materialBound || handle != boundMaterial {
			if material, ok := i.assets.Material(handle); ok && material.Albedo != nil {
				cmd.BindTextureView(BindingFrequencyPerMaterial, 0, material.Albedo)
			}
			boundMaterial = handle
			materialBound = true
		}

		if mesh != boundMesh {
			cmd.SetVertexBuffer(mesh.Vertices)
			if mesh.Indices != nil {
				cmd.SetIndexBuffer(mesh.Indices)
			}
			boundMesh = mesh
		}

		slice := cmd.UploadDynamicData(matrixBytes(d.interpolated), wgpu.BufferUsageUniform)
		cmd.BindUniformSlice(BindingFrequencyPerDraw, 0, slice)

		p := mesh.Parts[part.PartIndex]
		if mesh.Indices != nil {
			cmd.DrawIndexed(p.Count, p.Start, 0)
		} else {
			cmd.Draw(p.Count, p.Start)
		}
	}
}

// render produces one presented frame, or decides not to. Transient
// presentation failures trigger one swapchain and graph rebuild followed
// by a single retry; a second failure drops the frame.
func (i *rendererInternal) render() {
	state := i.frontend.currentWindowState()
	switch state.Kind {
	case WindowMinimized:
		time.Sleep(time.Second)
		return
	case WindowExited:
		i.frontend.running.Store(false)
		return
	}

	if state.Surface != nil || state.Width != i.swapchain.Width() || state.Height != i.swapchain.Height() {
		if !i.recreateSwapchain(state.Width, state.Height, state.Surface) {
			return
		}
		i.frontend.clearPendingSurface()
	}

	i.receiveMessages()

	aspect := float32(i.swapchain.Width()) / float32(i.swapchain.Height())
	i.interpolate(time.Now(), aspect)
	updateVisibility(i.scene, i.view, aspect)
	sortDrawableParts(i.view.DrawableParts, i.scene)

	err := i.graph.Render()
	if err == nil {
		return
	}
	if !IsSwapchainError(err) {
		i.logger.Errorf("dropping frame: %v", err)
		return
	}

	i.logger.Debugf("swapchain rebuild after: %v", err)
	if !i.recreateSwapchain(state.Width, state.Height, nil) {
		return
	}
	if err := i.graph.Render(); err != nil {
		i.logger.Warnf("dropping frame after swapchain rebuild: %v", err)
	}
}

// recreateSwapchain rebuilds the swapchain at the given extent, against
// a new native surface when one is handed over, and the graph on top of
// it. The graph template is immutable, so a backend that hands back a
// different format or sample count cannot be recovered from.
func (i *rendererInternal) recreateSwapchain(width, height uint32, surface Surface) bool {
	i.device.WaitIdle()

	var swapchain Swapchain
	var err error
	if surface != nil {
		swapchain, err = i.swapchain.RecreateOnSurface(surface, width, height)
	} else {
		swapchain, err = i.swapchain.Recreate(width, height)
	}
	if err != nil {
		i.logger.Errorf("swapchain recreation failed, dropping frame: %v", err)
		return false
	}
	if swapchain.Format() != i.swapchain.Format() || swapchain.SampleCount() != i.swapchain.SampleCount() {
		panic("swapchain format or sample count changed during recreation")
	}

	i.swapchain = swapchain
	i.graph = RecreateGraph(i.graph, swapchain)
	i.buildPipeline()
	return true
}

// shutdown waits out in-flight work and releases everything the render
// thread owns.
func (i *rendererInternal) shutdown() {
	i.device.WaitIdle()
	i.graph.destroyOwned()
	i.primaryCamera.Destroy()
}

// matrixBytes serializes a column-major matrix for buffer upload.
func matrixBytes(m mgl32.Mat4) []byte {
	out := make([]byte, 64)
	for idx, v := range m {
		binary.LittleEndian.PutUint32(out[idx*4:], math.Float32bits(v))
	}
	return out
}
