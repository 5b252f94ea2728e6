package scene

import (
	"math"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

// Rays closer to parallel with the triangle plane than this are treated as misses.
const parallelEpsilon = 1e-8

// A scene triangle.
type Triangle struct {
	Vertices [3]types.Vec3

	// Index into Scene.Materials.
	Material uint32
}

// Intersect ray with triangle using the Möller-Trumbore algorithm. Returns the
// hit distance, the barycentric coordinates of the hit and whether a hit in
// [ray.TMin, ray.TMax] occurred.
func (t *Triangle) Intersect(ray *types.Ray) (dist, u, v float32, hit bool) {
	e1 := t.Vertices[1].Sub(t.Vertices[0])
	e2 := t.Vertices[2].Sub(t.Vertices[0])

	p := ray.Dir.Cross(e2)
	det := e1.Dot(p)
	if det > -parallelEpsilon && det < parallelEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := ray.Origin.Sub(t.Vertices[0])
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = ray.Dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	dist = e2.Dot(q) * invDet
	if dist < ray.TMin || dist > ray.TMax {
		return 0, 0, 0, false
	}
	return dist, u, v, true
}

// Unnormalized geometric normal following the vertex winding.
func (t *Triangle) cross() types.Vec3 {
	return t.Vertices[1].Sub(t.Vertices[0]).Cross(t.Vertices[2].Sub(t.Vertices[0]))
}

// Geometric normal following the vertex winding.
func (t *Triangle) FaceNormal() types.Vec3 {
	return t.cross().Normalize()
}

func (t *Triangle) Area() float32 {
	return 0.5 * t.cross().Len()
}

// Map two uniform random numbers to a uniformly distributed point on the
// triangle surface.
func (t *Triangle) SamplePoint(r1, r2 float32) types.Vec3 {
	su := float32(math.Sqrt(float64(r1)))
	b0 := 1 - su
	b1 := r2 * su
	return t.Vertices[0].Mul(b0).Add(t.Vertices[1].Mul(b1)).Add(t.Vertices[2].Mul(1 - b0 - b1))
}

// Point at barycentric coordinates (u, v).
func (t *Triangle) Point(u, v float32) types.Vec3 {
	return t.Vertices[0].Mul(1 - u - v).Add(t.Vertices[1].Mul(u)).Add(t.Vertices[2].Mul(v))
}

func (t *Triangle) BBox() types.AABB {
	return types.EmptyAABB().Expand(t.Vertices[0]).Expand(t.Vertices[1]).Expand(t.Vertices[2])
}

func (t *Triangle) Center() types.Vec3 {
	return t.Vertices[0].Add(t.Vertices[1]).Add(t.Vertices[2]).Mul(1.0 / 3.0)
}
