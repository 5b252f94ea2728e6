package accel

import (
	"strings"

	"github.com/SirKero/RTProgressivePhotonMapper/bvh"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Flags attached to the procedural geometry of a BLAS.
type GeometryFlags uint8

const (
	// Invoke the any-hit callback at most once per primitive and ray.
	NoDuplicateAnyHit GeometryFlags = 1 << iota
)

// Acceleration structure build preference.
type BuildFlags uint8

const (
	FastTrace BuildFlags = iota
	FastBuild
)

func (f BuildFlags) String() string {
	switch f {
	case FastTrace:
		return "fastTrace"
	case FastBuild:
		return "fastBuild"
	}
	return "unknown"
}

// Parse a build flag name ("fastTrace" or "fastBuild").
func ParseBuildFlags(name string) (BuildFlags, error) {
	switch strings.ToLower(name) {
	case "fasttrace", "trace":
		return FastTrace, nil
	case "fastbuild", "build":
		return FastBuild, nil
	}
	return 0, errors.Errorf("accel: unknown build flags %q", name)
}

// Implements encoding.TextMarshaler.
func (f BuildFlags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Implements encoding.TextUnmarshaler.
func (f *BuildFlags) UnmarshalText(text []byte) error {
	v, err := ParseBuildFlags(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Split strategy and leaf size per build preference.
func (f BuildFlags) strategy() (bvh.ScoreStrategy, int) {
	if f == FastBuild {
		return bvh.MedianSplit, 4
	}
	return bvh.SurfaceAreaHeuristic, 1
}

type boxList []types.AABB

func (l boxList) Len() int                   { return len(l) }
func (l boxList) BBox(item int) types.AABB   { return l[item] }
func (l boxList) Center(item int) types.Vec3 { return l[item].Center() }

// A bottom level acceleration structure over procedural AABB primitives.
type BLAS struct {
	Flags GeometryFlags

	boxes boxList
	tree  *bvh.Tree
}

// Build a BLAS over boxes. The slice is referenced, not copied.
func BuildBLAS(boxes []types.AABB, geomFlags GeometryFlags, buildFlags BuildFlags) *BLAS {
	strategy, leafItems := buildFlags.strategy()
	return &BLAS{
		Flags: geomFlags,
		boxes: boxes,
		tree:  bvh.Build(boxList(boxes), leafItems, nil, strategy),
	}
}

// Number of primitives.
func (b *BLAS) Len() int {
	return len(b.boxes)
}

func (b *BLAS) Bounds() types.AABB {
	return b.tree.Bounds()
}

// Visit the primitives whose box overlaps the ray segment. Each primitive
// lives in exactly one leaf so NoDuplicateAnyHit always holds.
func (b *BLAS) trace(ray *types.Ray, anyHit func(prim uint32) bool) bool {
	invDir := types.InvDir(ray.Dir)
	stopped := false
	b.tree.Intersect(ray, func(prim uint32) bool {
		if _, hit := b.boxes[prim].IntersectRay(*ray, invDir); !hit {
			return true
		}
		if !anyHit(prim) {
			stopped = true
			return false
		}
		return true
	})
	return !stopped
}

// A BLAS placed in the TLAS.
type Instance struct {
	BLAS       *BLAS
	InstanceID uint32

	// Rays only visit instances whose mask overlaps the ray mask.
	Mask photon.CategoryMask

	// Object to world transform.
	Transform mgl32.Mat4
}

// A top level acceleration structure over BLAS instances.
type TLAS struct {
	instances  []Instance
	worldToObj []mgl32.Mat4
	tree       *bvh.Tree
}

// Build a TLAS over instances.
func BuildTLAS(instances []Instance) *TLAS {
	t := &TLAS{
		instances:  instances,
		worldToObj: make([]mgl32.Mat4, len(instances)),
	}

	bounds := make(boxList, len(instances))
	for i, inst := range instances {
		t.worldToObj[i] = inst.Transform.Inv()
		if inst.BLAS == nil || inst.BLAS.Len() == 0 {
			bounds[i] = types.EmptyAABB()
			continue
		}
		bounds[i] = transformAABB(inst.Transform, inst.BLAS.Bounds())
	}
	t.tree = bvh.Build(bounds, 1, nil, bvh.SurfaceAreaHeuristic)
	return t
}

// Number of instances.
func (t *TLAS) Len() int {
	return len(t.instances)
}

// Trace a ray against all instances matching mask. anyHit receives the
// instance id and primitive index of every overlapped primitive and returns
// false to terminate the ray.
func (t *TLAS) Trace(ray types.Ray, mask photon.CategoryMask, anyHit func(instanceID, prim uint32) bool) {
	worldRay := ray
	t.tree.Intersect(&worldRay, func(item uint32) bool {
		inst := &t.instances[item]
		if inst.Mask&mask == 0 || inst.BLAS == nil || inst.BLAS.Len() == 0 {
			return true
		}

		objRay := transformRay(t.worldToObj[item], ray)
		return inst.BLAS.trace(&objRay, func(prim uint32) bool {
			return anyHit(inst.InstanceID, prim)
		})
	})
}

func transformRay(m mgl32.Mat4, ray types.Ray) types.Ray {
	o := m.Mul4x1(mgl32.Vec4{ray.Origin[0], ray.Origin[1], ray.Origin[2], 1})
	d := m.Mul4x1(mgl32.Vec4{ray.Dir[0], ray.Dir[1], ray.Dir[2], 0})
	ray.Origin = types.XYZ(o[0], o[1], o[2])
	ray.Dir = types.XYZ(d[0], d[1], d[2])
	return ray
}

func transformAABB(m mgl32.Mat4, box types.AABB) types.AABB {
	out := types.EmptyAABB()
	for corner := 0; corner < 8; corner++ {
		p := box.Min
		for axis := 0; axis < 3; axis++ {
			if corner&(1<<axis) != 0 {
				p[axis] = box.Max[axis]
			}
		}
		w := m.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
		out = out.Expand(types.XYZ(w[0], w[1], w[2]))
	}
	return out
}
