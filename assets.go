package kiln

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Renderer-side asset registry. File parsing happens in the asset
// collaborator; by the time anything lands here it is GPU-ready. Models
// are registered under the path the simulation refers to them by, so a
// RegisterStatic command can resolve its model without touching disk.

type MaterialHandle string

func NewMaterialHandle() MaterialHandle {
	return MaterialHandle(uuid.NewString())
}

type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

type MeshPart struct {
	Start uint32
	Count uint32
}

type Mesh struct {
	Vertices    GpuBuffer
	Indices     GpuBuffer
	Parts       []MeshPart
	BoundingBox *AABB
}

type Material struct {
	Albedo TextureView
}

// Model pairs a mesh with one material per mesh part.
type Model struct {
	Mesh      *Mesh
	Materials []MaterialHandle
}

type RendererAssets struct {
	mu        sync.RWMutex
	models    map[string]*Model
	materials map[MaterialHandle]*Material
}

func NewRendererAssets() *RendererAssets {
	return &RendererAssets{
		models:    make(map[string]*Model),
		materials: make(map[MaterialHandle]*Material),
	}
}

func (a *RendererAssets) RegisterModel(path string, model *Model) {
	a.mu.Lock()
	a.models[path] = model
	a.mu.Unlock()
}

func (a *RendererAssets) Model(path string) (*Model, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	model, ok := a.models[path]
	return model, ok
}

func (a *RendererAssets) RegisterMaterial(material *Material) MaterialHandle {
	handle := NewMaterialHandle()
	a.mu.Lock()
	a.materials[handle] = material
	a.mu.Unlock()
	return handle
}

func (a *RendererAssets) Material(handle MaterialHandle) (*Material, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	material, ok := a.materials[handle]
	return material, ok
}
