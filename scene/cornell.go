package scene

import "github.com/SirKero/RTProgressivePhotonMapper/types"

// Options for the built-in Cornell box.
type CornellBoxOptions struct {
	// Emissive quad just below the ceiling.
	CeilingLight bool

	// Analytic point light near the ceiling.
	PointLight bool

	// Use a mirror block and a glass block instead of two diffuse blocks.
	Caustics bool
}

func DefaultCornellBoxOptions() CornellBoxOptions {
	return CornellBoxOptions{
		CeilingLight: true,
		Caustics:     true,
	}
}

const (
	cornellWhite uint32 = iota
	cornellRed
	cornellGreen
	cornellLight
	cornellTallBlock
	cornellShortBlock
)

// Create a Cornell box spanning [-1, 1] x [0, 2] x [-1, 1] that is open
// towards +z where the camera sits.
func NewCornellBox(opts CornellBoxOptions) (*Scene, error) {
	materials := []Material{
		cornellWhite:      Diffuse(types.Vec3{0.73, 0.73, 0.73}),
		cornellRed:        Diffuse(types.Vec3{0.65, 0.05, 0.05}),
		cornellGreen:      Diffuse(types.Vec3{0.12, 0.45, 0.15}),
		cornellLight:      Emissive(types.Vec3{0.78, 0.78, 0.78}, types.Vec3{17, 12, 4}),
		cornellTallBlock:  Diffuse(types.Vec3{0.73, 0.73, 0.73}),
		cornellShortBlock: Diffuse(types.Vec3{0.73, 0.73, 0.73}),
	}
	if opts.Caustics {
		materials[cornellTallBlock] = Mirror(types.Vec3{0.95, 0.95, 0.95})
		materials[cornellShortBlock] = Glass(types.Vec3{1, 1, 1}, 1.5)
	}

	var tris []Triangle

	// Floor, ceiling and back wall
	tris = addQuad(tris, cornellWhite, types.XYZ(-1, 0, -1), types.XYZ(-1, 0, 1), types.XYZ(1, 0, 1), types.XYZ(1, 0, -1))
	tris = addQuad(tris, cornellWhite, types.XYZ(-1, 2, -1), types.XYZ(1, 2, -1), types.XYZ(1, 2, 1), types.XYZ(-1, 2, 1))
	tris = addQuad(tris, cornellWhite, types.XYZ(-1, 0, -1), types.XYZ(1, 0, -1), types.XYZ(1, 2, -1), types.XYZ(-1, 2, -1))

	// Side walls
	tris = addQuad(tris, cornellRed, types.XYZ(-1, 0, -1), types.XYZ(-1, 2, -1), types.XYZ(-1, 2, 1), types.XYZ(-1, 0, 1))
	tris = addQuad(tris, cornellGreen, types.XYZ(1, 0, -1), types.XYZ(1, 0, 1), types.XYZ(1, 2, 1), types.XYZ(1, 2, -1))

	tris = addBox(tris, cornellTallBlock, types.XYZ(-0.65, 0, -0.6), types.XYZ(-0.15, 1.2, -0.1))
	tris = addBox(tris, cornellShortBlock, types.XYZ(0.15, 0, 0), types.XYZ(0.65, 0.6, 0.5))

	if opts.CeilingLight {
		// Wound so the face normal points down
		const s, h = 0.25, 1.98
		tris = addQuad(tris, cornellLight, types.XYZ(-s, h, -s), types.XYZ(s, h, -s), types.XYZ(s, h, s), types.XYZ(-s, h, s))
	}

	var lights []PointLight
	if opts.PointLight {
		lights = append(lights, PointLight{
			Position:  types.XYZ(0, 1.7, 0.2),
			Intensity: types.Vec3{2, 2, 2},
		})
	}

	camera := NewCamera(40)
	camera.Move(types.XYZ(0, 1, 3.8), types.XYZ(0, 1, 0))

	return NewScene(camera, materials, tris, lights)
}

// Append quad (a, b, c, d) as two triangles sharing the a-c diagonal.
func addQuad(tris []Triangle, material uint32, a, b, c, d types.Vec3) []Triangle {
	return append(tris,
		Triangle{Vertices: [3]types.Vec3{a, b, c}, Material: material},
		Triangle{Vertices: [3]types.Vec3{a, c, d}, Material: material},
	)
}

// Append an axis aligned box with outward facing normals.
func addBox(tris []Triangle, material uint32, min, max types.Vec3) []Triangle {
	x0, y0, z0 := min[0], min[1], min[2]
	x1, y1, z1 := max[0], max[1], max[2]

	// -y, +y
	tris = addQuad(tris, material, types.XYZ(x0, y0, z0), types.XYZ(x1, y0, z0), types.XYZ(x1, y0, z1), types.XYZ(x0, y0, z1))
	tris = addQuad(tris, material, types.XYZ(x0, y1, z0), types.XYZ(x0, y1, z1), types.XYZ(x1, y1, z1), types.XYZ(x1, y1, z0))
	// -z, +z
	tris = addQuad(tris, material, types.XYZ(x0, y0, z0), types.XYZ(x0, y1, z0), types.XYZ(x1, y1, z0), types.XYZ(x1, y0, z0))
	tris = addQuad(tris, material, types.XYZ(x0, y0, z1), types.XYZ(x1, y0, z1), types.XYZ(x1, y1, z1), types.XYZ(x0, y1, z1))
	// -x, +x
	tris = addQuad(tris, material, types.XYZ(x0, y0, z0), types.XYZ(x0, y0, z1), types.XYZ(x0, y1, z1), types.XYZ(x0, y1, z0))
	tris = addQuad(tris, material, types.XYZ(x1, y0, z0), types.XYZ(x1, y1, z0), types.XYZ(x1, y1, z1), types.XYZ(x1, y0, z1))
	return tris
}
