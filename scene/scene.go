package scene

import (
	"sync"

	"github.com/SirKero/RTProgressivePhotonMapper/bvh"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/pkg/errors"
)

// Scene changes observed by renderers since the last ConsumeUpdates call.
type UpdateFlags uint8

const (
	CameraMoved UpdateFlags = 1 << iota
	GeometryChanged
)

// Triangles per BVH leaf.
const minLeafTriangles = 4

// A ray/scene intersection.
type Hit struct {
	Dist     float32
	Position types.Vec3

	// Geometric normal following the triangle winding.
	FaceNormal types.Vec3

	// Geometric normal flipped to face the incoming ray.
	Normal types.Vec3

	Triangle uint32
	Material *Material

	// True if the ray hit the side the face normal points to.
	FrontFace bool
}

type Scene struct {
	Camera *Camera

	Materials []Material
	Triangles []Triangle

	// Analytic lights.
	Lights []PointLight

	// Emissive triangles derived from the scene materials.
	MeshLights []MeshLightTriangle

	// Emit photons from emissive triangles.
	UseEmissiveLights bool

	BgColor types.Vec3

	tree *bvh.Tree

	mu      sync.Mutex
	updates UpdateFlags
}

// Create a scene and build its acceleration structure.
func NewScene(camera *Camera, materials []Material, triangles []Triangle, lights []PointLight) (*Scene, error) {
	if camera == nil {
		return nil, ErrNoCamera
	}
	for triIndex, tri := range triangles {
		if int(tri.Material) >= len(materials) {
			return nil, errors.Wrapf(ErrUnknownMaterial, "triangle %d uses material %d", triIndex, tri.Material)
		}
	}

	s := &Scene{
		Camera:            camera,
		Materials:         materials,
		Triangles:         triangles,
		Lights:            lights,
		UseEmissiveLights: true,
	}
	s.rebuild()
	return s, nil
}

func (s *Scene) rebuild() {
	s.tree = bvh.Build(triangleList(s.Triangles), minLeafTriangles, nil, bvh.SurfaceAreaHeuristic)
	s.MeshLights = collectMeshLights(s.Triangles, s.Materials)
}

// Mesh lights taking part in photon emission.
func (s *Scene) ActiveMeshLights() []MeshLightTriangle {
	if !s.UseEmissiveLights {
		return nil
	}
	return s.MeshLights
}

// Bounds of the scene geometry.
func (s *Scene) Bounds() types.AABB {
	return s.tree.Bounds()
}

// Find the closest hit along ray.
func (s *Scene) Intersect(ray types.Ray) (Hit, bool) {
	closest := -1
	var hitU, hitV float32
	s.tree.Intersect(&ray, func(item uint32) bool {
		if dist, u, v, hit := s.Triangles[item].Intersect(&ray); hit {
			// Shrink the segment so farther nodes get culled
			ray.TMax = dist
			closest = int(item)
			hitU, hitV = u, v
		}
		return true
	})
	if closest < 0 {
		return Hit{}, false
	}

	tri := &s.Triangles[closest]
	faceNormal := tri.FaceNormal()
	hit := Hit{
		Dist:       ray.TMax,
		Position:   tri.Point(hitU, hitV),
		FaceNormal: faceNormal,
		Normal:     faceNormal,
		Triangle:   uint32(closest),
		Material:   &s.Materials[tri.Material],
		FrontFace:  ray.Dir.Dot(faceNormal) < 0,
	}
	if !hit.FrontFace {
		hit.Normal = faceNormal.Mul(-1)
	}
	return hit, true
}

// Move the scene camera.
func (s *Scene) MoveCamera(pos, lookAt types.Vec3) {
	s.Camera.Move(pos, lookAt)
	s.raise(CameraMoved)
}

// Apply fn to the scene triangles, then rebuild the BVH and mesh lights.
func (s *Scene) UpdateGeometry(fn func(triangles []Triangle)) {
	fn(s.Triangles)
	s.rebuild()
	s.raise(GeometryChanged)
}

func (s *Scene) raise(flags UpdateFlags) {
	s.mu.Lock()
	s.updates |= flags
	s.mu.Unlock()
}

// Return and clear the pending update flags.
func (s *Scene) ConsumeUpdates() UpdateFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := s.updates
	s.updates = 0
	return flags
}

// Adapts a triangle slice to bvh.BoundedVolumes.
type triangleList []Triangle

func (l triangleList) Len() int                   { return len(l) }
func (l triangleList) BBox(item int) types.AABB   { return l[item].BBox() }
func (l triangleList) Center(item int) types.Vec3 { return l[item].Center() }

// Number of distinct emissive materials among the active mesh lights. Each
// emissive material counts as one mesh light.
func (s *Scene) MeshLightCount() int {
	seen := make(map[uint32]struct{})
	for _, light := range s.ActiveMeshLights() {
		seen[s.Triangles[light.TriangleIndex].Material] = struct{}{}
	}
	return len(seen)
}
