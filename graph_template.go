package kiln

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Declarative render graph description. A template is compiled once into a
// fixed execution order with precomputed barrier transitions; per-frame
// work only records against it.

type PassType uint8

const (
	PassTypeGraphics PassType = iota
	PassTypeCompute
)

// RenderPassTextureExtent sizes a graph-owned attachment either relative
// to the swapchain or absolutely.
type RenderPassTextureExtent struct {
	RelativeToSwapchain bool
	Width               float32
	Height              float32
}

func (e RenderPassTextureExtent) resolve(swapchainWidth, swapchainHeight uint32) (uint32, uint32) {
	if e.RelativeToSwapchain {
		return uint32(float32(swapchainWidth) * e.Width), uint32(float32(swapchainHeight) * e.Height)
	}
	return uint32(e.Width), uint32(e.Height)
}

type PassInput struct {
	Name    string
	IsLocal bool
}

type SubpassOutputKind uint8

const (
	SubpassOutputBackbuffer SubpassOutputKind = iota
	SubpassOutputRenderTarget
)

type SubpassOutput struct {
	Kind    SubpassOutputKind
	Clear   bool
	Name    string
	Format  wgpu.TextureFormat
	Samples uint32
	Extent  RenderPassTextureExtent
	LoadOp  wgpu.LoadOp
	StoreOp wgpu.StoreOp
}

type DepthStencilOutput struct {
	Name           string
	Format         wgpu.TextureFormat
	Samples        uint32
	Extent         RenderPassTextureExtent
	DepthLoadOp    wgpu.LoadOp
	DepthStoreOp   wgpu.StoreOp
	StencilLoadOp  wgpu.LoadOp
	StencilStoreOp wgpu.StoreOp
}

type GraphicsSubpassInfo struct {
	Inputs       []PassInput
	Outputs      []SubpassOutput
	DepthStencil *DepthStencilOutput
}

type ComputeOutput struct {
	Name  string
	Size  uint32
	Clear bool
}

type PassInfo struct {
	Name string
	Type PassType

	// Graphics passes.
	Subpasses []GraphicsSubpassInfo

	// Compute passes.
	Inputs  []PassInput
	Outputs []ComputeOutput
}

type GraphTemplateInfo struct {
	Passes               []PassInfo
	SwapchainFormat      wgpu.TextureFormat
	SwapchainSampleCount uint32
}

type resourceKind uint8

const (
	resourceBuffer resourceKind = iota
	resourceTexture
	resourceExternal
)

type resourceInfo struct {
	name         string
	kind         resourceKind
	producer     string
	size         uint32
	format       wgpu.TextureFormat
	samples      uint32
	extent       RenderPassTextureExtent
	depthStencil bool
}

// templateBarrier is one precomputed usage transition, attached to the
// pass that needs it before executing.
type templateBarrier struct {
	resource string
	from     ResourceUsage
	to       ResourceUsage
}

// GraphTemplate is the compiled, immutable form of a pass list. Its
// topology is locked to the swapchain format and sample count it was
// compiled against.
type GraphTemplate struct {
	passes       []PassInfo
	resources    map[string]*resourceInfo
	externals    []string
	passBarriers map[string][]templateBarrier
	format       wgpu.TextureFormat
	sampleCount  uint32
}

func (t *GraphTemplate) Format() wgpu.TextureFormat { return t.format }
func (t *GraphTemplate) SampleCount() uint32        { return t.sampleCount }

// ExternalResources lists input names no pass produces; the graph binds
// them at build time.
func (t *GraphTemplate) ExternalResources() []string { return t.externals }

// PassOrder reports the compiled execution order.
func (t *GraphTemplate) PassOrder() []string {
	names := make([]string, len(t.passes))
	for i, p := range t.passes {
		names[i] = p.Name
	}
	return names
}

// NewGraphTemplate compiles a declarative pass list. Duplicate pass or
// resource names and dependency cycles are contract violations and panic.
func NewGraphTemplate(info GraphTemplateInfo) *GraphTemplate {
	t := &GraphTemplate{
		resources:    make(map[string]*resourceInfo),
		passBarriers: make(map[string][]templateBarrier),
		format:       info.SwapchainFormat,
		sampleCount:  info.SwapchainSampleCount,
	}

	passByName := make(map[string]*PassInfo, len(info.Passes))
	for i := range info.Passes {
		pass := &info.Passes[i]
		if _, dup := passByName[pass.Name]; dup {
			panic(fmt.Sprintf("render graph: duplicate pass name %q", pass.Name))
		}
		passByName[pass.Name] = pass
		t.collectOutputs(pass)
	}

	// Inputs that no pass produces are external by definition.
	seenExternal := make(map[string]struct{})
	for i := range info.Passes {
		for _, input := range passInputs(&info.Passes[i]) {
			if _, produced := t.resources[input.Name]; produced {
				continue
			}
			if _, seen := seenExternal[input.Name]; seen {
				continue
			}
			seenExternal[input.Name] = struct{}{}
			t.externals = append(t.externals, input.Name)
			t.resources[input.Name] = &resourceInfo{name: input.Name, kind: resourceExternal}
		}
	}

	t.passes = topoSortPasses(info.Passes, t.resources)
	t.compileBarriers()
	return t
}

func (t *GraphTemplate) collectOutputs(pass *PassInfo) {
	declare := func(res *resourceInfo) {
		if _, dup := t.resources[res.name]; dup {
			panic(fmt.Sprintf("render graph: resource %q declared by multiple passes", res.name))
		}
		t.resources[res.name] = res
	}

	switch pass.Type {
	case PassTypeGraphics:
		for _, subpass := range pass.Subpasses {
			for _, out := range subpass.Outputs {
				if out.Kind == SubpassOutputBackbuffer {
					continue
				}
				declare(&resourceInfo{
					name:     out.Name,
					kind:     resourceTexture,
					producer: pass.Name,
					format:   out.Format,
					samples:  out.Samples,
					extent:   out.Extent,
				})
			}
			if ds := subpass.DepthStencil; ds != nil {
				declare(&resourceInfo{
					name:         ds.Name,
					kind:         resourceTexture,
					producer:     pass.Name,
					format:       ds.Format,
					samples:      ds.Samples,
					extent:       ds.Extent,
					depthStencil: true,
				})
			}
		}
	case PassTypeCompute:
		for _, out := range pass.Outputs {
			declare(&resourceInfo{
				name:     out.Name,
				kind:     resourceBuffer,
				producer: pass.Name,
				size:     out.Size,
			})
		}
	}
}

func passInputs(pass *PassInfo) []PassInput {
	if pass.Type == PassTypeCompute {
		return pass.Inputs
	}
	var inputs []PassInput
	for _, subpass := range pass.Subpasses {
		inputs = append(inputs, subpass.Inputs...)
	}
	return inputs
}

// topoSortPasses orders passes so every producer runs before its
// consumers, keeping declaration order among independent passes.
func topoSortPasses(passes []PassInfo, resources map[string]*resourceInfo) []PassInfo {
	indexByName := make(map[string]int, len(passes))
	for i, p := range passes {
		indexByName[p.Name] = i
	}

	indegree := make([]int, len(passes))
	dependents := make([][]int, len(passes))
	for i := range passes {
		for _, input := range passInputs(&passes[i]) {
			res := resources[input.Name]
			if res.kind == resourceExternal {
				continue
			}
			producer := indexByName[res.producer]
			if producer == i {
				continue
			}
			dependents[producer] = append(dependents[producer], i)
			indegree[i]++
		}
	}

	order := make([]PassInfo, 0, len(passes))
	ready := make([]int, 0, len(passes))
	for i := range passes {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, passes[i])
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(order) != len(passes) {
		panic("render graph: pass dependency cycle")
	}
	return order
}

// compileBarriers walks the execution order tracking the last usage of
// every buffer resource and records a transition wherever a pass needs
// the resource in a different state. Attachment transitions are carried
// by the render pass objects themselves.
func (t *GraphTemplate) compileBarriers() {
	state := make(map[string]ResourceUsage, len(t.resources))
	for i := range t.passes {
		pass := &t.passes[i]
		var barriers []templateBarrier

		for _, input := range passInputs(pass) {
			res := t.resources[input.Name]
			if res.kind != resourceBuffer {
				continue
			}
			if cur := state[input.Name]; cur != ResourceUsageShaderRead {
				barriers = append(barriers, templateBarrier{
					resource: input.Name,
					from:     cur,
					to:       ResourceUsageShaderRead,
				})
				state[input.Name] = ResourceUsageShaderRead
			}
		}
		if pass.Type == PassTypeCompute {
			for _, out := range pass.Outputs {
				if cur := state[out.Name]; cur != ResourceUsageShaderWrite {
					barriers = append(barriers, templateBarrier{
						resource: out.Name,
						from:     cur,
						to:       ResourceUsageShaderWrite,
					})
					state[out.Name] = ResourceUsageShaderWrite
				}
			}
		}
		if len(barriers) > 0 {
			t.passBarriers[pass.Name] = barriers
		}
	}
}

// DefaultTemplate is the built-in two-pass frame: a compute pass copying
// the primary camera into a graph-owned constant buffer, then a geometry
// pass drawing the visible set into the backbuffer with a depth buffer.
func DefaultTemplate(swapchain Swapchain) *GraphTemplate {
	return NewGraphTemplate(GraphTemplateInfo{
		Passes: []PassInfo{
			{
				Name: "CameraCopy",
				Type: PassTypeCompute,
				Inputs: []PassInput{
					{Name: ExternalPrimaryCamera},
				},
				Outputs: []ComputeOutput{
					{Name: "Camera", Size: 64},
				},
			},
			{
				Name: "Geometry",
				Type: PassTypeGraphics,
				Subpasses: []GraphicsSubpassInfo{
					{
						Inputs: []PassInput{
							{Name: "Camera"},
						},
						Outputs: []SubpassOutput{
							{Kind: SubpassOutputBackbuffer, Clear: true},
						},
						DepthStencil: &DepthStencilOutput{
							Name:           "DS",
							Format:         wgpu.TextureFormatDepth24PlusStencil8,
							Samples:        1,
							Extent:         RenderPassTextureExtent{RelativeToSwapchain: true, Width: 1, Height: 1},
							DepthLoadOp:    wgpu.LoadOpClear,
							DepthStoreOp:   wgpu.StoreOpDiscard,
							StencilLoadOp:  wgpu.LoadOpClear,
							StencilStoreOp: wgpu.StoreOpDiscard,
						},
					},
				},
			},
		},
		SwapchainFormat:      swapchain.Format(),
		SwapchainSampleCount: swapchain.SampleCount(),
	})
}

// ExternalPrimaryCamera names the externally owned camera constant buffer
// consumed by the default template.
const ExternalPrimaryCamera = "PrimaryCamera"
