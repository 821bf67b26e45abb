package kiln

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type EntityId uint64

// Drawable is one registered renderable instance. Transform is the value
// most recently received from the simulation; PrevTransform is snapshotted
// at EndFrame boundaries and only for movable drawables, so interpolation
// always spans exactly one simulation tick.
type Drawable struct {
	Entity        EntityId
	Transform     mgl32.Mat4
	PrevTransform mgl32.Mat4
	Model         *Model

	ReceiveShadows bool
	CastShadows    bool
	CanMove        bool

	// Render-thread scratch, refreshed every presented frame.
	interpolated mgl32.Mat4
}

type PointLight struct {
	Entity    EntityId
	Position  mgl32.Vec3
	Intensity float32
}

// DrawablePart identifies one visible draw call: a mesh part of a
// drawable that survived culling this frame.
type DrawablePart struct {
	DrawableIndex int
	PartIndex     int
}

// View holds the camera state and the per-frame visible set. The part
// list is rebuilt every frame but keeps its capacity.
type View struct {
	CameraTransform     mgl32.Mat4
	PrevCameraTransform mgl32.Mat4
	CameraFov           float32
	PrevCameraFov       float32
	NearPlane           float32
	FarPlane            float32

	interpolatedCamera mgl32.Mat4
	interpolatedFov    float32

	DrawableParts []DrawablePart
}

func NewView() *View {
	return &View{
		CameraTransform:     mgl32.Ident4(),
		PrevCameraTransform: mgl32.Ident4(),
		interpolatedCamera:  mgl32.Ident4(),
		interpolatedFov:     math.Pi / 2,
		CameraFov:           math.Pi / 2,
		PrevCameraFov:       math.Pi / 2,
		NearPlane:           0.1,
		FarPlane:            100,
	}
}
