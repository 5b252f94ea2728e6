// Package photon defines the photon record, the gather query and the Store
// interface implemented by the photon map variants.
package photon

import (
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"pgregory.net/rand"
)

// Photon map a photon is stored in.
type Category uint8

const (
	// Photons whose path hit at least one specular surface before the
	// first diffuse one.
	Caustic Category = iota

	// All other photons.
	Global

	NumCategories = 2
)

func (c Category) String() string {
	switch c {
	case Caustic:
		return "caustic"
	case Global:
		return "global"
	}
	return "unknown"
}

// Mask bit of the category. It doubles as the TLAS instance mask.
func (c Category) Mask() CategoryMask {
	return CategoryMask(1) << c
}

// A set of categories.
type CategoryMask uint8

const (
	MaskCaustic CategoryMask = 1 << iota
	MaskGlobal

	MaskAll = MaskCaustic | MaskGlobal
)

func (m CategoryMask) Has(c Category) bool {
	return m&c.Mask() != 0
}

// A photon deposited on a diffuse surface.
type Photon struct {
	Position types.Vec3

	// Direction of travel when the photon hit the surface.
	Dir types.Vec3

	Flux types.Vec3

	// Geometric normal of the hit surface facing the incoming photon.
	FaceNormal types.Vec3

	Category Category
}

// Per frame store parameters.
type FrameParams struct {
	// Current gather radius per category.
	Radius [NumCategories]float32

	// Progressive iteration (0 after a reset).
	Iteration uint32

	// Photons written per category by the previous frame. Stores that size
	// their index from it are handed the count by the caller so it survives
	// store recreation.
	LastPhotonCount [NumCategories]uint32
}

// A gather request issued for one visible surface point.
type Query struct {
	Position   types.Vec3
	FaceNormal types.Vec3
	Albedo     types.Vec3

	Radius [NumCategories]float32

	// Categories to gather from.
	Mask CategoryMask

	// Skip photons whose face normal disagrees with FaceNormal.
	FaceNormalRejection bool

	// Random stream for stochastic collection. May be nil for stores that
	// do not collect stochastically.
	Rand *rand.Rand
}

// Reflected radiance estimate per category.
type Radiance [NumCategories]types.Vec3

func (r Radiance) Total() types.Vec3 {
	return r[Caustic].Add(r[Global])
}

// Occupancy counters of a store for the last frame.
type StoreStats struct {
	// Photons retained per category.
	Stored [NumCategories]uint32

	// Insert attempts that were not retained per category.
	Dropped [NumCategories]uint32

	// Maximum number of photons the store can hold per category.
	Capacity [NumCategories]uint32
}

// The Store interface is implemented by all photon map variants.
//
// A frame runs Clear, then any number of concurrent InsertBatch calls, then
// BuildIndex, then any number of concurrent QueryRadiance calls. Each call
// acts as a barrier for the previous phase.
type Store interface {
	// Drop all photons and prepare for a new frame.
	Clear(params FrameParams) error

	// Insert photons. Photons that do not fit are counted as dropped;
	// running out of space is not an error.
	InsertBatch(photons []Photon)

	// Make the inserted photons searchable.
	BuildIndex() error

	// Estimate the radiance reflected towards the viewer at the query point.
	QueryRadiance(q *Query) Radiance

	// Occupancy counters for the current frame.
	Stats() StoreStats

	// Release all device memory.
	Release()
}
