package kiln

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Scene is the render thread's authoritative drawable and light registry.
// Drawables live in a dense arena indexed by an entity-id map; removal
// swaps the last element in and fixes the map, so iteration stays tight
// and indices stay dense for the per-frame visible-part list.
//
// Mutation is confined to the render thread. The mutex exists for exactly
// one reason: the culling fan-out takes it for the duration of its
// read-only window.
type Scene struct {
	mu sync.Mutex

	drawables     []Drawable
	drawableIndex map[EntityId]int

	lights     []PointLight
	lightIndex map[EntityId]int
}

func NewScene() *Scene {
	return &Scene{
		drawableIndex: make(map[EntityId]int),
		lightIndex:    make(map[EntityId]int),
	}
}

func (s *Scene) lock()   { s.mu.Lock() }
func (s *Scene) unlock() { s.mu.Unlock() }

func (s *Scene) DrawableCount() int {
	return len(s.drawables)
}

func (s *Scene) LightCount() int {
	return len(s.lights)
}

func (s *Scene) Drawable(entity EntityId) (*Drawable, bool) {
	idx, ok := s.drawableIndex[entity]
	if !ok {
		return nil, false
	}
	return &s.drawables[idx], true
}

func (s *Scene) Light(entity EntityId) (*PointLight, bool) {
	idx, ok := s.lightIndex[entity]
	if !ok {
		return nil, false
	}
	return &s.lights[idx], true
}

// registerDrawable inserts or replaces; an entity id maps to at most one
// drawable.
func (s *Scene) registerDrawable(d Drawable) {
	if idx, ok := s.drawableIndex[d.Entity]; ok {
		s.drawables[idx] = d
		return
	}
	s.drawableIndex[d.Entity] = len(s.drawables)
	s.drawables = append(s.drawables, d)
}

func (s *Scene) unregisterDrawable(entity EntityId) {
	idx, ok := s.drawableIndex[entity]
	if !ok {
		return
	}
	last := len(s.drawables) - 1
	if idx != last {
		s.drawables[idx] = s.drawables[last]
		s.drawableIndex[s.drawables[idx].Entity] = idx
	}
	s.drawables = s.drawables[:last]
	delete(s.drawableIndex, entity)
}

func (s *Scene) registerLight(l PointLight) {
	if idx, ok := s.lightIndex[l.Entity]; ok {
		s.lights[idx] = l
		return
	}
	s.lightIndex[l.Entity] = len(s.lights)
	s.lights = append(s.lights, l)
}

func (s *Scene) unregisterLight(entity EntityId) {
	idx, ok := s.lightIndex[entity]
	if !ok {
		return
	}
	last := len(s.lights) - 1
	if idx != last {
		s.lights[idx] = s.lights[last]
		s.lightIndex[s.lights[idx].Entity] = idx
	}
	s.lights = s.lights[:last]
	delete(s.lightIndex, entity)
}

// updateTransform is a silent no-op for unknown ids: the Register for
// that entity may still be in flight behind this message.
func (s *Scene) updateTransform(entity EntityId, transform mgl32.Mat4) {
	if idx, ok := s.drawableIndex[entity]; ok {
		s.drawables[idx].Transform = transform
	}
	if idx, ok := s.lightIndex[entity]; ok {
		s.lights[idx].Position = transform.Col(3).Vec3()
	}
}

// promoteTransforms runs at an EndFrame boundary: every movable
// drawable's current transform becomes its previous one. Immovable
// drawables skip interpolation entirely, so their scratch transform is
// pinned here instead.
func (s *Scene) promoteTransforms() {
	for i := range s.drawables {
		d := &s.drawables[i]
		if d.CanMove {
			d.PrevTransform = d.Transform
		} else {
			d.interpolated = d.Transform
		}
	}
}
