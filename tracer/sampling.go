package tracer

import (
	"math"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

// Offset applied along the surface normal when spawning secondary rays.
const rayEpsilon = 1e-4

// Uniformly distributed direction on the unit sphere.
func uniformSphere(r1, r2 float32) types.Vec3 {
	z := 1 - 2*r1
	r := float32(math.Sqrt(float64(max(0, 1-z*z))))
	phi := 2 * math.Pi * float64(r2)
	return types.XYZ(r*float32(math.Cos(phi)), r*float32(math.Sin(phi)), z)
}

// Cosine weighted direction in the hemisphere around n.
func cosineHemisphere(n types.Vec3, r1, r2 float32) types.Vec3 {
	r := float32(math.Sqrt(float64(r1)))
	phi := 2 * math.Pi * float64(r2)
	x := r * float32(math.Cos(phi))
	y := r * float32(math.Sin(phi))
	z := float32(math.Sqrt(float64(max(0, 1-r1))))

	u, v := types.OrthonormalBasis(n)
	return u.Mul(x).Add(v.Mul(y)).Add(n.Mul(z)).Normalize()
}

// Schlick approximation of the dielectric reflectance.
func schlick(cosI, etaI, etaT float32) float32 {
	r0 := (etaI - etaT) / (etaI + etaT)
	r0 *= r0
	c := 1 - cosI
	return r0 + (1-r0)*c*c*c*c*c
}

// Refract dir (pointing towards the surface) through a surface with normal
// n facing the incoming ray. Returns false on total internal reflection.
func refract(dir, n types.Vec3, eta float32) (types.Vec3, bool) {
	cosI := -dir.Dot(n)
	sin2T := eta * eta * (1 - cosI*cosI)
	if sin2T > 1 {
		return types.Vec3{}, false
	}
	cosT := float32(math.Sqrt(float64(1 - sin2T)))
	return dir.Mul(eta).Add(n.Mul(eta*cosI - cosT)).Normalize(), true
}

// Spawn a ray leaving a surface at p along dir. The origin is pushed off the
// side of the surface dir points to.
func spawnRay(p, n, dir types.Vec3) types.Ray {
	offset := n.Mul(rayEpsilon)
	if dir.Dot(n) < 0 {
		offset = offset.Mul(-1)
	}
	return types.Ray{
		Origin: p.Add(offset),
		Dir:    dir,
		TMin:   0,
		TMax:   math.MaxFloat32,
	}
}
