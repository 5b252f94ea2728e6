package types

import "math"

// An axis aligned bounding box.
type AABB struct {
	Min Vec3
	Max Vec3
}

// A ray segment. Hits are only reported for TMin <= t <= TMax.
type Ray struct {
	Origin Vec3
	Dir    Vec3
	TMin   float32
	TMax   float32
}

// An inverted box that any Expand call will snap to.
func EmptyAABB() AABB {
	return AABB{
		Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// The box enclosing a sphere.
func AABBFromSphere(center Vec3, radius float32) AABB {
	r := Vec3{radius, radius, radius}
	return AABB{Min: center.Sub(r), Max: center.Add(r)}
}

// Grow box to include point p.
func (b AABB) Expand(p Vec3) AABB {
	return AABB{Min: MinVec3(b.Min, p), Max: MaxVec3(b.Max, p)}
}

// Grow box to include b2.
func (b AABB) Union(b2 AABB) AABB {
	return AABB{Min: MinVec3(b.Min, b2.Min), Max: MaxVec3(b.Max, b2.Max)}
}

func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Check whether p lies inside the box (inclusive).
func (b AABB) Contains(p Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Half of the box surface area.
func (b AABB) HalfArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	s := b.Max.Sub(b.Min)
	return s[0]*s[1] + s[1]*s[2] + s[0]*s[2]
}

// Axis with the largest extent.
func (b AABB) LongestAxis() int {
	s := b.Max.Sub(b.Min)
	if s[0] >= s[1] && s[0] >= s[2] {
		return 0
	}
	if s[1] >= s[2] {
		return 1
	}
	return 2
}

// Slab test. Returns the entry distance and whether the segment
// [ray.TMin, ray.TMax] overlaps the box.
func (b AABB) IntersectRay(ray Ray, invDir Vec3) (float32, bool) {
	tMin, tMax := ray.TMin, ray.TMax
	for axis := 0; axis < 3; axis++ {
		t0 := (b.Min[axis] - ray.Origin[axis]) * invDir[axis]
		t1 := (b.Max[axis] - ray.Origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0*Inf (origin on a slab plane, axis-parallel ray) is
		// treated as overlap.
		if t0 == t0 {
			tMin = max(tMin, t0)
		}
		if t1 == t1 {
			tMax = min(tMax, t1)
		}
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}

// Reciprocal of a ray direction for slab tests.
func InvDir(dir Vec3) Vec3 {
	return Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
}
