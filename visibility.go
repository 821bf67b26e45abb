package kiln

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Parallel frustum culling. Drawables are split into fixed chunks and
// each chunk is tested on its own goroutine; workers batch results
// locally and flush into the shared list in blocks to keep lock traffic
// low. The whole fan-out happens inside one exclusive scene window, joins
// before returning and leaves nothing running across frames.
const (
	cullChunkSize = 64
	cullFlushSize = 32
)

// frustum holds the six view-space clip planes of a projection matrix,
// extracted row-wise (Gribb/Hartmann) and normalized.
type frustum struct {
	planes [6]mgl32.Vec4
}

func newFrustum(proj mgl32.Mat4) frustum {
	r0 := proj.Row(0)
	r1 := proj.Row(1)
	r2 := proj.Row(2)
	r3 := proj.Row(3)

	var f frustum
	f.planes[0] = normalizePlane(r3.Add(r0)) // left
	f.planes[1] = normalizePlane(r3.Sub(r0)) // right
	f.planes[2] = normalizePlane(r3.Add(r1)) // bottom
	f.planes[3] = normalizePlane(r3.Sub(r1)) // top
	f.planes[4] = normalizePlane(r3.Add(r2)) // near
	f.planes[5] = normalizePlane(r3.Sub(r2)) // far
	return f
}

func normalizePlane(p mgl32.Vec4) mgl32.Vec4 {
	l := p.Vec3().Len()
	if l == 0 {
		return p
	}
	return p.Mul(1 / l)
}

// intersectsAABB tests a model-space box against the frustum after
// transforming it into view space with the given model-view matrix. The
// transformed box is conservatively re-axis-aligned, so the test never
// culls a visible drawable.
func (f *frustum) intersectsAABB(modelView mgl32.Mat4, box AABB) bool {
	center := box.Min.Add(box.Max).Mul(0.5)
	extent := box.Max.Sub(box.Min).Mul(0.5)

	viewCenter := modelView.Mul4x1(center.Vec4(1)).Vec3()

	var viewExtent mgl32.Vec3
	for row := 0; row < 3; row++ {
		viewExtent[row] = absf(modelView.At(row, 0))*extent.X() +
			absf(modelView.At(row, 1))*extent.Y() +
			absf(modelView.At(row, 2))*extent.Z()
	}

	for _, plane := range f.planes {
		dist := plane.X()*viewCenter.X() + plane.Y()*viewCenter.Y() + plane.Z()*viewCenter.Z() + plane.W()
		radius := absf(plane.X())*viewExtent.X() + absf(plane.Y())*viewExtent.Y() + absf(plane.Z())*viewExtent.Z()
		if dist+radius < 0 {
			return false
		}
	}
	return true
}

func absf(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

// updateVisibility rebuilds the view's visible-part list in place.
// Drawables without a bounding box are treated as always visible.
func updateVisibility(scene *Scene, view *View, aspect float32) {
	scene.lock()
	defer scene.unlock()

	viewMatrix := view.interpolatedCamera.Inv()
	f := newFrustum(mgl32.Perspective(view.interpolatedFov, aspect, view.NearPlane, view.FarPlane))

	view.DrawableParts = view.DrawableParts[:0]

	var wg sync.WaitGroup
	var mu sync.Mutex
	for start := 0; start < len(scene.drawables); start += cullChunkSize {
		end := min(start+cullChunkSize, len(scene.drawables))
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			local := make([]DrawablePart, 0, cullFlushSize)
			flush := func() {
				if len(local) == 0 {
					return
				}
				mu.Lock()
				view.DrawableParts = append(view.DrawableParts, local...)
				mu.Unlock()
				local = local[:0]
			}

			for i := start; i < end; i++ {
				d := &scene.drawables[i]
				if d.Model == nil || d.Model.Mesh == nil {
					continue
				}
				mesh := d.Model.Mesh
				if mesh.BoundingBox != nil {
					modelView := viewMatrix.Mul4(d.interpolated)
					if !f.intersectsAABB(modelView, *mesh.BoundingBox) {
						continue
					}
				}
				for part := range mesh.Parts {
					local = append(local, DrawablePart{DrawableIndex: i, PartIndex: part})
					if len(local) >= cullFlushSize {
						flush()
					}
				}
			}
			flush()
		}(start, end)
	}
	wg.Wait()
}
