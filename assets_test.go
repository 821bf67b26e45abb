package kiln

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetsModelRegistry(t *testing.T) {
	assets := NewRendererAssets()

	_, ok := assets.Model("models/chair")
	assert.False(t, ok)

	model := testModel(2, unitBox())
	assets.RegisterModel("models/chair", model)

	got, ok := assets.Model("models/chair")
	require.True(t, ok)
	assert.Same(t, model, got)
}

func TestAssetsMaterialHandlesAreUnique(t *testing.T) {
	assets := NewRendererAssets()

	first := assets.RegisterMaterial(&Material{})
	second := assets.RegisterMaterial(&Material{})
	assert.NotEqual(t, first, second)

	_, ok := assets.Material(first)
	assert.True(t, ok)
	_, ok = assets.Material("not-a-handle")
	assert.False(t, ok)
}
