package kiln

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneRegisterReplacesExisting(t *testing.T) {
	s := NewScene()
	s.registerDrawable(Drawable{Entity: 1, CanMove: false})
	s.registerDrawable(Drawable{Entity: 1, CanMove: true})

	assert.Equal(t, 1, s.DrawableCount())
	d, ok := s.Drawable(1)
	require.True(t, ok)
	assert.True(t, d.CanMove)
}

func TestSceneUnregisterSwapsLastIn(t *testing.T) {
	s := NewScene()
	s.registerDrawable(Drawable{Entity: 1})
	s.registerDrawable(Drawable{Entity: 2})
	s.registerDrawable(Drawable{Entity: 3})

	s.unregisterDrawable(1)

	assert.Equal(t, 2, s.DrawableCount())
	// The last drawable moved into the freed slot and its index entry
	// must follow it.
	d, ok := s.Drawable(3)
	require.True(t, ok)
	assert.Equal(t, EntityId(3), d.Entity)
	_, ok = s.Drawable(1)
	assert.False(t, ok)
}

func TestSceneUnregisterUnknownIsNoop(t *testing.T) {
	s := NewScene()
	s.registerDrawable(Drawable{Entity: 1})
	s.unregisterDrawable(42)
	assert.Equal(t, 1, s.DrawableCount())
}

func TestSceneUpdateTransformUnknownIsNoop(t *testing.T) {
	s := NewScene()
	s.updateTransform(42, mgl32.Translate3D(1, 2, 3))
	assert.Equal(t, 0, s.DrawableCount())
}

func TestSceneUpdateTransformMovesLight(t *testing.T) {
	s := NewScene()
	s.registerLight(PointLight{Entity: 7, Intensity: 2})
	s.updateTransform(7, mgl32.Translate3D(1, 2, 3))

	l, ok := s.Light(7)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, l.Position)
	assert.Equal(t, float32(2), l.Intensity)
}

func TestScenePromoteTransforms(t *testing.T) {
	s := NewScene()
	moved := mgl32.Translate3D(5, 0, 0)
	s.registerDrawable(Drawable{Entity: 1, CanMove: true, Transform: moved})
	s.registerDrawable(Drawable{Entity: 2, CanMove: false, Transform: moved})

	s.promoteTransforms()

	movable, _ := s.Drawable(1)
	assert.Equal(t, moved, movable.PrevTransform)

	// Immovable drawables skip interpolation; their scratch transform is
	// pinned at the tick boundary instead.
	static, _ := s.Drawable(2)
	assert.Equal(t, moved, static.interpolated)
}
