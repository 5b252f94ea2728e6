package photon

import (
	"math"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

// Photons whose face normal deviates more than this (cosine) from the query
// face normal are rejected when face normal rejection is enabled.
const FaceNormalThreshold = 0.8

// Accumulates photon contributions for a query and turns them into a
// radiance estimate for a lambertian surface.
type Estimator struct {
	q        *Query
	radiusSq [NumCategories]float32
	flux     [NumCategories]types.Vec3
	count    [NumCategories]uint32
}

func NewEstimator(q *Query) Estimator {
	e := Estimator{q: q}
	for c := range e.radiusSq {
		e.radiusSq[c] = q.Radius[c] * q.Radius[c]
	}
	return e
}

// Check whether a photon of category c stored at pos may contribute.
func (e *Estimator) Accept(c Category, pos, faceNormal types.Vec3) bool {
	if !e.q.Mask.Has(c) {
		return false
	}
	if pos.Sub(e.q.Position).LenSq() > e.radiusSq[c] {
		return false
	}
	if e.q.FaceNormalRejection && faceNormal.Dot(e.q.FaceNormal) < FaceNormalThreshold {
		return false
	}
	return true
}

// Add an accepted photon scaled by weight.
func (e *Estimator) Add(c Category, flux types.Vec3, weight float32) {
	e.flux[c] = e.flux[c].Add(flux.Mul(weight))
	e.count[c]++
}

// Number of photons added for category c.
func (e *Estimator) Count(c Category) uint32 {
	return e.count[c]
}

// Density estimate: sum(flux) * albedo/pi / (pi * r^2).
func (e *Estimator) Radiance() Radiance {
	var out Radiance
	brdf := e.q.Albedo.Mul(1 / math.Pi)
	for c := range out {
		if e.count[c] == 0 || e.radiusSq[c] == 0 {
			continue
		}
		out[c] = e.flux[c].MulVec(brdf).Mul(1 / (math.Pi * e.radiusSq[c]))
	}
	return out
}
