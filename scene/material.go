package scene

import "github.com/SirKero/RTProgressivePhotonMapper/types"

type MaterialType uint8

const (
	DiffuseMaterial MaterialType = iota
	SpecularMaterial
	RefractiveMaterial
)

func (t MaterialType) String() string {
	switch t {
	case DiffuseMaterial:
		return "diffuse"
	case SpecularMaterial:
		return "specular"
	case RefractiveMaterial:
		return "refractive"
	}
	return "unknown"
}

// Defines a scene material.
type Material struct {
	// The type of the material.
	Type MaterialType

	// Diffuse color.
	Diffuse types.Vec3

	// Mirror reflectance (specular materials only).
	Specular types.Vec3

	// Transmittance (refractive materials only).
	Transmission types.Vec3

	// Index of refraction (refractive materials only).
	IOR float32

	// Emitted radiance; any material with non-zero emission is a light.
	Emission types.Vec3
}

// A lambertian material.
func Diffuse(albedo types.Vec3) Material {
	return Material{Type: DiffuseMaterial, Diffuse: albedo}
}

// A perfect mirror.
func Mirror(reflectance types.Vec3) Material {
	return Material{Type: SpecularMaterial, Specular: reflectance}
}

// A smooth dielectric.
func Glass(transmission types.Vec3, ior float32) Material {
	return Material{Type: RefractiveMaterial, Transmission: transmission, Specular: types.Vec3{1, 1, 1}, IOR: ior}
}

// A diffuse emitter.
func Emissive(albedo, radiance types.Vec3) Material {
	return Material{Type: DiffuseMaterial, Diffuse: albedo, Emission: radiance}
}

// Photons are only stored on and gathered from diffuse surfaces.
func (m *Material) IsDiffuse() bool {
	return m.Type == DiffuseMaterial
}

func (m *Material) IsEmissive() bool {
	return !m.Emission.IsZero()
}
