package kiln

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func testModel(parts int, box *AABB) *Model {
	device := NewHeadlessDevice()
	meshParts := make([]MeshPart, parts)
	for i := range meshParts {
		meshParts[i] = MeshPart{Start: uint32(i * 36), Count: 36}
	}
	return &Model{
		Mesh: &Mesh{
			Vertices:    device.CreateBuffer("v", 1024, MemoryUsageGpuOnly, 0),
			Parts:       meshParts,
			BoundingBox: box,
		},
	}
}

func unitBox() *AABB {
	return &AABB{Min: mgl32.Vec3{-0.5, -0.5, -0.5}, Max: mgl32.Vec3{0.5, 0.5, 0.5}}
}

func testView() *View {
	v := NewView()
	// Camera at origin looking down -Z, mid-interpolation state pinned.
	v.interpolatedCamera = mgl32.Ident4()
	v.interpolatedFov = math.Pi / 2
	return v
}

func TestVisibilityCullsBehindCamera(t *testing.T) {
	s := NewScene()
	model := testModel(1, unitBox())

	inFront := mgl32.Translate3D(0, 0, -5)
	behind := mgl32.Translate3D(0, 0, 5)
	s.registerDrawable(Drawable{Entity: 1, Model: model, Transform: inFront, interpolated: inFront})
	s.registerDrawable(Drawable{Entity: 2, Model: model, Transform: behind, interpolated: behind})

	view := testView()
	updateVisibility(s, view, 16.0/9.0)

	assert.Len(t, view.DrawableParts, 1)
	d := &s.drawables[view.DrawableParts[0].DrawableIndex]
	assert.Equal(t, EntityId(1), d.Entity)
}

func TestVisibilityEmitsOnePartPerMeshPart(t *testing.T) {
	s := NewScene()
	model := testModel(3, unitBox())
	at := mgl32.Translate3D(0, 0, -5)
	s.registerDrawable(Drawable{Entity: 1, Model: model, Transform: at, interpolated: at})

	view := testView()
	updateVisibility(s, view, 1)

	assert.Len(t, view.DrawableParts, 3)
	seen := map[int]bool{}
	for _, p := range view.DrawableParts {
		seen[p.PartIndex] = true
	}
	assert.Len(t, seen, 3)
}

func TestVisibilityMissingBoundsMeansVisible(t *testing.T) {
	s := NewScene()
	model := testModel(1, nil)
	behind := mgl32.Translate3D(0, 0, 100)
	s.registerDrawable(Drawable{Entity: 1, Model: model, Transform: behind, interpolated: behind})

	view := testView()
	updateVisibility(s, view, 1)

	assert.Len(t, view.DrawableParts, 1)
}

func TestVisibilitySkipsDrawablesWithoutModel(t *testing.T) {
	s := NewScene()
	s.registerDrawable(Drawable{Entity: 1})

	view := testView()
	updateVisibility(s, view, 1)

	assert.Empty(t, view.DrawableParts)
}

func TestVisibilityManyDrawablesSpanChunks(t *testing.T) {
	s := NewScene()
	model := testModel(1, unitBox())

	// Enough drawables for several culling chunks, alternating visible
	// and culled.
	const n = cullChunkSize*3 + 7
	visible := 0
	for i := 0; i < n; i++ {
		z := float32(-5)
		if i%2 == 1 {
			z = 50
		} else {
			visible++
		}
		at := mgl32.Translate3D(0, 0, z)
		s.registerDrawable(Drawable{Entity: EntityId(i + 1), Model: model, Transform: at, interpolated: at})
	}

	view := testView()
	updateVisibility(s, view, 1)

	assert.Len(t, view.DrawableParts, visible)
}

func TestFrustumLargeObjectStraddlingPlane(t *testing.T) {
	f := newFrustum(mgl32.Perspective(math.Pi/2, 1, 0.1, 100))

	// Center behind the near plane, but the box extends well past it.
	box := AABB{Min: mgl32.Vec3{-10, -10, -10}, Max: mgl32.Vec3{10, 10, 10}}
	assert.True(t, f.intersectsAABB(mgl32.Translate3D(0, 0, 5), box))
}
