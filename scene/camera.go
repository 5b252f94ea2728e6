package scene

import (
	"fmt"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/go-gl/mathgl/mgl32"
)

// Stores the ray directions at the four corners of the camera frustrum. Per
// pixel rays are generated by interpolating the corner rays.
type Frustrum [4]types.Vec3

func (fr Frustrum) String() string {
	return fmt.Sprintf(
		"Frustrum Rays:\nTL : (%3.3f, %3.3f, %3.3f)\nTR : (%3.3f, %3.3f, %3.3f)\nBL : (%3.3f, %3.3f, %3.3f)\nBR : (%3.3f, %3.3f, %3.3f)",
		fr[0][0], fr[0][1], fr[0][2],
		fr[1][0], fr[1][1], fr[1][2],
		fr[2][0], fr[2][1], fr[2][2],
		fr[3][0], fr[3][1], fr[3][2],
	)
}

// The camera type controls the scene camera.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3

	ViewMat  mgl32.Mat4
	ProjMat  mgl32.Mat4
	Frustrum Frustrum

	// Vertical field of view in degrees.
	FOV float32

	// Image width / height.
	Aspect float32

	// Near and far clip planes.
	Near, Far float32
}

func NewCamera(fov float32) *Camera {
	c := &Camera{
		ViewMat:  mgl32.Ident4(),
		ProjMat:  mgl32.Ident4(),
		Position: types.Vec3{0, 0, 0},
		LookAt:   types.Vec3{0, 0, -1},
		Up:       types.Vec3{0, 1, 0},
		FOV:      fov,
		Aspect:   1,
		Near:     0.01,
		Far:      1000,
	}
	c.Update()
	return c
}

// Setup camera projection matrix.
func (c *Camera) SetupProjection(aspect float32) {
	c.Aspect = aspect
	c.Update()
}

// Place camera at pos looking at lookAt.
func (c *Camera) Move(pos, lookAt types.Vec3) {
	c.Position = pos
	c.LookAt = lookAt
	c.Update()
}

// Update camera matrices and frustrum rays.
func (c *Camera) Update() {
	c.ProjMat = mgl32.Perspective(mgl32.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
	c.ViewMat = mgl32.LookAtV(mgl32.Vec3(c.Position), mgl32.Vec3(c.LookAt), mgl32.Vec3(c.Up))
	c.updateFrustrum()
}

func (c *Camera) ViewProjMat() mgl32.Mat4 {
	return c.ProjMat.Mul4(c.ViewMat)
}

func (c *Camera) InvViewProjMat() mgl32.Mat4 {
	return c.ViewProjMat().Inv()
}

// Project a world space point to normalized device coordinates. Returns false
// for points behind the camera.
func (c *Camera) Project(p types.Vec3) (types.Vec3, bool) {
	clip := c.ViewProjMat().Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
	if clip[3] <= 0 {
		return types.Vec3{}, false
	}
	return types.Vec3{clip[0] / clip[3], clip[1] / clip[3], clip[2] / clip[3]}, true
}

// Generate the primary ray through image coordinates (u, v) in [0, 1] with
// (0, 0) at the top-left corner.
func (c *Camera) GenerateRay(u, v float32) types.Ray {
	top := lerp(c.Frustrum[0], c.Frustrum[1], u)
	bottom := lerp(c.Frustrum[2], c.Frustrum[3], u)
	return types.Ray{
		Origin: c.Position,
		Dir:    lerp(top, bottom, v).Normalize(),
		TMin:   0,
		TMax:   c.Far,
	}
}

// Generate a ray vector for each corner of the camera frustrum by
// multiplying clip space vectors for each corner with the inv proj/view
// matrix, applying perspective and subtracting the camera eye position.
func (c *Camera) updateFrustrum() {
	invProjViewMat := c.InvViewProjMat()
	corners := [4][2]float32{{-1, 1}, {1, 1}, {-1, -1}, {1, -1}}
	for i, corner := range corners {
		v := invProjViewMat.Mul4x1(mgl32.Vec4{corner[0], corner[1], -1, 1})
		c.Frustrum[i] = types.Vec3(v.Mul(1.0 / v[3]).Vec3()).Sub(c.Position)
	}
}

func lerp(a, b types.Vec3, t float32) types.Vec3 {
	return a.Mul(1 - t).Add(b.Mul(t))
}
