package tracer

import (
	"github.com/SirKero/RTProgressivePhotonMapper/lighttable"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
)

// Describe the scene lights for the light table builder. Triangle i of the
// result is scene.ActiveMeshLights()[i].
func LightsFromScene(sc *scene.Scene) lighttable.Lights {
	meshLights := sc.ActiveMeshLights()
	lights := lighttable.Lights{
		Analytic:   len(sc.Lights),
		MeshLights: sc.MeshLightCount(),
		Triangles:  make([]lighttable.TriangleLight, len(meshLights)),
	}
	for i, ml := range meshLights {
		lights.Triangles[i] = lighttable.TriangleLight{Flux: ml.Power, Area: ml.Area}
	}
	return lights
}

// Build the light sample table for numPhotons photons.
func BuildLightTable(sc *scene.Scene, numPhotons uint32, mode lighttable.Mode) (*lighttable.Table, error) {
	return lighttable.Build(numPhotons, LightsFromScene(sc), mode)
}
