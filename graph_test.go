package kiln

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraphSetup(t *testing.T) (*HeadlessDevice, *HeadlessSwapchain, *BufferAllocator) {
	t.Helper()
	device := NewHeadlessDevice()
	return device, NewHeadlessSwapchain(640, 480), NewBufferAllocator(device)
}

func cameraGraphInfo(device Device, callbacks map[string][]PassCallback) GraphInfo {
	return GraphInfo{
		PassCallbacks: callbacks,
		ExternalBuffers: map[string]GpuBuffer{
			ExternalPrimaryCamera: device.CreateBuffer("camera", 64, MemoryUsageCpuToGpu, wgpu.BufferUsageUniform),
		},
	}
}

func TestGraphRejectsUnboundExternal(t *testing.T) {
	device, swapchain, allocator := testGraphSetup(t)
	tmpl := DefaultTemplate(swapchain)

	assert.Panics(t, func() {
		NewRenderGraph(device, tmpl, GraphInfo{}, swapchain, allocator)
	})
}

func TestGraphRejectsCallbackForUnknownPass(t *testing.T) {
	device, swapchain, allocator := testGraphSetup(t)
	tmpl := DefaultTemplate(swapchain)

	info := cameraGraphInfo(device, map[string][]PassCallback{
		"Bloom": {func(cmd *CommandBufferRecording, resources *GraphResources) {}},
	})
	assert.Panics(t, func() {
		NewRenderGraph(device, tmpl, info, swapchain, allocator)
	})
}

func TestGraphRejectsMismatchedSwapchain(t *testing.T) {
	device, swapchain, allocator := testGraphSetup(t)
	tmpl := DefaultTemplate(swapchain)

	drifted := NewHeadlessSwapchain(640, 480)
	drifted.format = wgpu.TextureFormatRGBA8Unorm
	assert.Panics(t, func() {
		NewRenderGraph(device, tmpl, cameraGraphInfo(device, nil), drifted, allocator)
	})
}

func TestGraphResourcesPanicOnUnknownName(t *testing.T) {
	r := &GraphResources{
		buffers: map[string]GpuBuffer{},
		views:   map[string]TextureView{},
	}
	assert.Panics(t, func() { r.Buffer("nope") })
	assert.Panics(t, func() { r.TextureView("nope") })
}

func TestGraphRenderExecutesPassesInOrder(t *testing.T) {
	device, swapchain, allocator := testGraphSetup(t)
	tmpl := DefaultTemplate(swapchain)

	var order []string
	info := cameraGraphInfo(device, map[string][]PassCallback{
		"CameraCopy": {func(cmd *CommandBufferRecording, resources *GraphResources) {
			// The compute pass can see both its external input and its
			// own output buffer.
			resources.Buffer(ExternalPrimaryCamera)
			resources.Buffer("Camera")
			cmd.Dispatch(1, 1, 1)
			order = append(order, "CameraCopy")
		}},
		"Geometry": {func(cmd *CommandBufferRecording, resources *GraphResources) {
			cmd.Draw(3, 0)
			order = append(order, "Geometry")
		}},
	})

	g := NewRenderGraph(device, tmpl, info, swapchain, allocator)
	require.NoError(t, g.Render())

	assert.Equal(t, []string{"CameraCopy", "Geometry"}, order)
	assert.Equal(t, 1, swapchain.Presented())

	enc := g.frames[0].recording.enc.(*HeadlessEncoder)
	assert.True(t, enc.Began)
	assert.True(t, enc.Ended)
	assert.Equal(t, 1, enc.Dispatches)
	assert.Equal(t, 1, enc.Draws)
	assert.Equal(t, 1, enc.RenderPasses)
	// Camera transitions to write before the copy and to read before
	// the geometry pass.
	assert.Equal(t, 2, enc.Barriers)
}

func TestGraphRenderReturnsAcquireError(t *testing.T) {
	device, swapchain, allocator := testGraphSetup(t)
	g := NewRenderGraph(device, DefaultTemplate(swapchain), cameraGraphInfo(device, nil), swapchain, allocator)

	swapchain.InjectAcquireError(ErrOutOfDate)
	err := g.Render()
	require.Error(t, err)
	assert.True(t, IsSwapchainError(err))
	assert.Zero(t, swapchain.Presented())
}

func TestGraphRotatesFrameContexts(t *testing.T) {
	device, swapchain, allocator := testGraphSetup(t)
	g := NewRenderGraph(device, DefaultTemplate(swapchain), cameraGraphInfo(device, nil), swapchain, allocator)

	for i := 0; i < framesInFlight*2; i++ {
		require.NoError(t, g.Render())
	}
	assert.Equal(t, framesInFlight*2, swapchain.Presented())
}

func TestRecreateGraphKeepsTemplateAndCallbacks(t *testing.T) {
	device, swapchain, allocator := testGraphSetup(t)

	calls := 0
	info := cameraGraphInfo(device, map[string][]PassCallback{
		"Geometry": {func(cmd *CommandBufferRecording, resources *GraphResources) { calls++ }},
	})
	g := NewRenderGraph(device, DefaultTemplate(swapchain), info, swapchain, allocator)
	require.NoError(t, g.Render())

	recreated, err := swapchain.Recreate(800, 600)
	require.NoError(t, err)
	g = RecreateGraph(g, recreated)
	require.NoError(t, g.Render())

	assert.Equal(t, 2, calls)
}
