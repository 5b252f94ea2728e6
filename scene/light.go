package scene

import (
	"math"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

// An analytic point light emitting uniformly in all directions.
type PointLight struct {
	Position types.Vec3

	// Radiant intensity.
	Intensity types.Vec3
}

// Total emitted flux.
func (l *PointLight) Flux() types.Vec3 {
	return l.Intensity.Mul(4 * math.Pi)
}

// An emissive triangle eligible for photon emission.
type MeshLightTriangle struct {
	// Index into Scene.Triangles.
	TriangleIndex uint32

	// Emitted flux (RGB).
	Flux types.Vec3

	// Scalar flux used for photon budget distribution.
	Power float32

	Area float32
}

// Build the mesh light list from all triangles with emissive materials.
// Diffuse emitters radiate pi * L * A.
func collectMeshLights(triangles []Triangle, materials []Material) []MeshLightTriangle {
	var lights []MeshLightTriangle
	for triIndex := range triangles {
		tri := &triangles[triIndex]
		mat := &materials[tri.Material]
		if !mat.IsEmissive() {
			continue
		}

		area := tri.Area()
		flux := mat.Emission.Mul(math.Pi * area)
		lights = append(lights, MeshLightTriangle{
			TriangleIndex: uint32(triIndex),
			Flux:          flux,
			Power:         flux.Luminance(),
			Area:          area,
		})
	}
	return lights
}
