package kiln

import "sort"

// sortDrawableParts orders the visible set by material handle so that
// consecutive draws share pipeline and material state. Only contiguity of
// equal keys matters; order within a key is unspecified.
func sortDrawableParts(parts []DrawablePart, scene *Scene) {
	sort.Slice(parts, func(i, j int) bool {
		return partMaterialKey(parts[i], scene) < partMaterialKey(parts[j], scene)
	})
}

func partMaterialKey(part DrawablePart, scene *Scene) MaterialHandle {
	d := &scene.drawables[part.DrawableIndex]
	if d.Model == nil || part.PartIndex >= len(d.Model.Materials) {
		return ""
	}
	return d.Model.Materials[part.PartIndex]
}
