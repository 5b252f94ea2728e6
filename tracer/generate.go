package tracer

import (
	"math"
	"strings"

	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/pkg/errors"
	"pgregory.net/rand"
)

// Selects which photon paths end up in the caustic map.
type CausticMapMode uint8

const (
	// L S+ D: only specular interactions between light and surface.
	CausticSpecularOnly CausticMapMode = iota

	// L (S|D)* S D: any path whose last interaction was specular.
	CausticLastSpecular
)

func (m CausticMapMode) String() string {
	switch m {
	case CausticSpecularOnly:
		return "LS+D"
	case CausticLastSpecular:
		return "L(S|D)*SD"
	}
	return "unknown"
}

// Parse a caustic map mode name.
func ParseCausticMapMode(name string) (CausticMapMode, error) {
	switch strings.ToUpper(name) {
	case "LS+D", "LSD":
		return CausticSpecularOnly, nil
	case "L(S|D)*SD", "LSDSD":
		return CausticLastSpecular, nil
	}
	return 0, errors.Errorf("tracer: unknown caustic map mode %q", name)
}

// Implements encoding.TextMarshaler.
func (m CausticMapMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Implements encoding.TextUnmarshaler.
func (m *CausticMapMode) UnmarshalText(text []byte) error {
	v, err := ParseCausticMapMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m CausticMapMode) isCaustic(lastSpecular, diffuseSeen bool) bool {
	if m == CausticSpecularOnly {
		return lastSpecular && !diffuseSeen
	}
	return lastSpecular
}

type GenerateOptions struct {
	// Maximum number of surface interactions per photon path.
	MaxBounces uint32

	// Probability of dropping a global photon instead of storing it. The
	// flux of stored global photons is scaled by 1/(1-p).
	GlobalRejection float32

	// Scale applied to the flux of emissive triangles.
	EmissiveScale float32

	CausticMode CausticMapMode
}

func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		MaxBounces:      10,
		GlobalRejection: 0.3,
		EmissiveScale:   1,
		CausticMode:     CausticSpecularOnly,
	}
}

// Emit the photon assigned to light table texel (x, y). Returns false for
// unused texels.
func (tr *Tracer) emitPhoton(x, y int, opts *GenerateOptions, rng *rand.Rand) (types.Ray, types.Vec3, bool) {
	sample, ok := tr.table.Lookup(x, y)
	if !ok {
		return types.Ray{}, types.Vec3{}, false
	}

	if sample.Analytic {
		light := &tr.scene.Lights[sample.Light]
		flux := light.Flux().Mul(tr.table.AnalyticInvPdf / float32(tr.table.TotalPhotons))
		ray := types.Ray{
			Origin: light.Position,
			Dir:    uniformSphere(rng.Float32(), rng.Float32()),
			TMax:   math.MaxFloat32,
		}
		return ray, flux, true
	}

	meshLights := tr.scene.ActiveMeshLights()
	lightIndex := tr.table.ActiveTriangles[sample.Light]
	if int(lightIndex) >= len(meshLights) {
		return types.Ray{}, types.Vec3{}, false
	}
	ml := &meshLights[lightIndex]
	tri := &tr.scene.Triangles[ml.TriangleIndex]

	perTriangle := max(1, tr.table.PhotonsPerTriangle[sample.Light])
	flux := ml.Flux.Mul(opts.EmissiveScale / float32(perTriangle))

	n := tri.FaceNormal()
	pos := tri.SamplePoint(rng.Float32(), rng.Float32())
	dir := cosineHemisphere(n, rng.Float32(), rng.Float32())
	return spawnRay(pos, n, dir), flux, true
}

// Follow a photon path and append a photon for every diffuse interaction.
func (tr *Tracer) tracePhoton(ray types.Ray, flux types.Vec3, opts *GenerateOptions, rng *rand.Rand, batch []photon.Photon) []photon.Photon {
	var lastSpecular, diffuseSeen bool
	for bounce := uint32(0); bounce < opts.MaxBounces; bounce++ {
		hit, ok := tr.scene.Intersect(ray)
		if !ok {
			break
		}

		mat := hit.Material
		switch mat.Type {
		case scene.DiffuseMaterial:
			cat := photon.Global
			if opts.CausticMode.isCaustic(lastSpecular, diffuseSeen) {
				cat = photon.Caustic
			}
			batch = tr.deposit(batch, &hit, ray.Dir, flux, cat, opts, rng)

			// Russian roulette on the albedo
			survive := min(1, mat.Diffuse.MaxComponent())
			if survive <= 0 || rng.Float32() >= survive {
				return batch
			}
			flux = flux.MulVec(mat.Diffuse).Mul(1 / survive)
			dir := cosineHemisphere(hit.Normal, rng.Float32(), rng.Float32())
			ray = spawnRay(hit.Position, hit.Normal, dir)
			lastSpecular = false
			diffuseSeen = true
		case scene.SpecularMaterial:
			flux = flux.MulVec(mat.Specular)
			ray = spawnRay(hit.Position, hit.Normal, ray.Dir.Reflect(hit.Normal))
			lastSpecular = true
		case scene.RefractiveMaterial:
			dir, weight := scatterDielectric(ray.Dir, &hit, rng.Float32())
			flux = flux.MulVec(weight)
			ray = spawnRay(hit.Position, hit.Normal, dir)
			lastSpecular = true
		}

		if flux.IsZero() {
			break
		}
	}
	return batch
}

// Apply global rejection and culling to a diffuse interaction and append the
// surviving photon.
func (tr *Tracer) deposit(batch []photon.Photon, hit *scene.Hit, dir, flux types.Vec3, cat photon.Category, opts *GenerateOptions, rng *rand.Rand) []photon.Photon {
	if cat == photon.Global && opts.GlobalRejection > 0 {
		if rng.Float32() < opts.GlobalRejection {
			tr.counters.rejected.Add(1)
			return batch
		}
		flux = flux.Mul(1 / (1 - opts.GlobalRejection))
	}
	if tr.culling != nil && !tr.culling.Keep(hit.Position) {
		tr.counters.culled.Add(1)
		return batch
	}

	return append(batch, photon.Photon{
		Position:   hit.Position,
		Dir:        dir,
		Flux:       flux,
		FaceNormal: hit.Normal,
		Category:   cat,
	})
}

// Pick reflection or refraction at a smooth dielectric proportionally to the
// Fresnel reflectance. Returns the new direction and the path weight.
func scatterDielectric(dir types.Vec3, hit *scene.Hit, u float32) (types.Vec3, types.Vec3) {
	mat := hit.Material
	etaI, etaT := float32(1), mat.IOR
	if !hit.FrontFace {
		etaI, etaT = etaT, etaI
	}

	cosI := -dir.Dot(hit.Normal)
	refracted, ok := refract(dir, hit.Normal, etaI/etaT)
	if !ok || u < schlick(cosI, etaI, etaT) {
		return dir.Reflect(hit.Normal), mat.Specular
	}
	return refracted, mat.Transmission
}
