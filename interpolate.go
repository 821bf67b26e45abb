package kiln

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform interpolation between two simulation ticks. Matrices are
// decomposed into translation, rotation and scale, blended separately and
// recomposed; blending raw matrix cells would shear under rotation.

func deconstructTransform(m mgl32.Mat4) (translation mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) {
	c0 := m.Col(0).Vec3()
	c1 := m.Col(1).Vec3()
	c2 := m.Col(2).Vec3()

	scale = mgl32.Vec3{c0.Len(), c1.Len(), c2.Len()}
	translation = m.Col(3).Vec3()

	b0 := safeScale(c0, scale.X())
	b1 := safeScale(c1, scale.Y())
	b2 := safeScale(c2, scale.Z())
	rotMat := mgl32.Mat4{
		b0.X(), b0.Y(), b0.Z(), 0,
		b1.X(), b1.Y(), b1.Z(), 0,
		b2.X(), b2.Y(), b2.Z(), 0,
		0, 0, 0, 1,
	}
	rotation = mgl32.Mat4ToQuat(rotMat)
	return
}

func composeTransform(translation mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(translation.X(), translation.Y(), translation.Z()).
		Mul4(rotation.Mat4()).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// interpolateTransform blends two transforms. The boundaries are exact:
// frac 0 returns from, frac 1 returns to, bit for bit.
func interpolateTransform(from, to mgl32.Mat4, frac float32) mgl32.Mat4 {
	if frac <= 0 {
		return from
	}
	if frac >= 1 {
		return to
	}

	fromPos, fromRot, fromScale := deconstructTransform(from)
	toPos, toRot, toScale := deconstructTransform(to)

	return composeTransform(
		lerpVec3(fromPos, toPos, frac),
		mgl32.QuatNlerp(fromRot, toRot, frac),
		lerpVec3(fromScale, toScale, frac),
	)
}

func lerpVec3(from, to mgl32.Vec3, frac float32) mgl32.Vec3 {
	return from.Add(to.Sub(from).Mul(frac))
}

func safeScale(v mgl32.Vec3, s float32) mgl32.Vec3 {
	if s == 0 {
		return v
	}
	return v.Mul(1 / s)
}
