package accel

import (
	"math"
	"sync/atomic"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/pkg/errors"
)

const (
	MinCullingHashBits     = 10
	MaxCullingHashBits     = 32
	DefaultCullingHashBits = 22

	DefaultProjectionTest = 1.01
)

type CullingOptions struct {
	Enabled bool

	// The culling table holds roughly 1<<HashBits cells.
	HashBits uint32

	// Use max(global radius, CellRadius) as the culling cell radius.
	UseFixedCellRadius bool
	CellRadius         float32

	// Also cull photons whose projected position lies outside
	// [-ProjectionTest, ProjectionTest] in NDC.
	UseProjection  bool
	ProjectionTest float32
}

func DefaultCullingOptions() CullingOptions {
	return CullingOptions{
		HashBits:       DefaultCullingHashBits,
		CellRadius:     0.1,
		ProjectionTest: DefaultProjectionTest,
	}
}

func (o CullingOptions) Validate() error {
	if o.HashBits < MinCullingHashBits || o.HashBits > MaxCullingHashBits {
		return errors.Wrapf(ErrInvalidCullingBits, "got %d, expected [%d, %d]", o.HashBits, MinCullingHashBits, MaxCullingHashBits)
	}
	return nil
}

// Projects world positions to normalized device coordinates.
type Projector interface {
	Project(p types.Vec3) (types.Vec3, bool)
}

// A table of hash cells that may receive a gather query this frame.
// Photons landing outside the marked cells can never be collected.
type Culling struct {
	opts CullingOptions

	// One flag per texel. Marking happens from many threads so texels are
	// 32-bit words accessed atomically.
	table *device.Texture2D[uint32]
	size  uint32
	scale float32

	projector Projector
}

// Allocate a culling table with a square texture of side sqrt(1<<HashBits).
func NewCulling(dev *device.Device, opts CullingOptions) (*Culling, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	side := int(math.Sqrt(float64(uint64(1) << opts.HashBits)))
	c := &Culling{
		opts:  opts,
		table: device.NewTexture2D[uint32](dev, "culling.table"),
		size:  uint32(side * side),
	}
	if err := c.table.Allocate(side, side); err != nil {
		return nil, errors.Wrap(err, "accel: allocating culling table")
	}
	return c, nil
}

func (c *Culling) Options() CullingOptions {
	return c.opts
}

// Side of the square culling texture.
func (c *Culling) Side() int {
	return c.table.Width()
}

// Radius of a culling cell for the given global radius.
func (c *Culling) HashRadius(globalRadius float32) float32 {
	if c.opts.UseFixedCellRadius {
		return max(globalRadius, c.opts.CellRadius)
	}
	return globalRadius
}

// Clear all marks and set the cell size for this frame. Cells are twice the
// hash radius wide so a gather sphere overlaps at most 2x2x2 cells.
func (c *Culling) Reset(globalRadius float32, projector Projector) {
	c.table.Clear()
	c.scale = 1 / (2 * c.HashRadius(globalRadius))
	c.projector = projector
}

func (c *Culling) slot(cell photon.Cell) uint32 {
	return photon.HashCell(cell) % c.size
}

// Mark every cell the gather sphere (p, radius) can reach. Safe for
// concurrent use.
func (c *Culling) Mark(p types.Vec3, radius float32) {
	data := c.table.Data()
	photon.ForEachNeighborCell(p, radius, c.scale, func(cell photon.Cell) bool {
		atomic.StoreUint32(&data[c.slot(cell)], 1)
		return true
	})
}

// Check whether a photon at p may be gathered this frame.
func (c *Culling) Keep(p types.Vec3) bool {
	if atomic.LoadUint32(&c.table.Data()[c.slot(photon.CellOf(p, c.scale))]) == 0 {
		return false
	}
	if c.opts.UseProjection && c.projector != nil {
		ndc, inFront := c.projector.Project(p)
		limit := c.opts.ProjectionTest
		if !inFront || ndc[0] < -limit || ndc[0] > limit || ndc[1] < -limit || ndc[1] > limit {
			return false
		}
	}
	return true
}

// Number of marked texels.
func (c *Culling) Marked() int {
	count := 0
	data := c.table.Data()
	for i := range data {
		if atomic.LoadUint32(&data[i]) != 0 {
			count++
		}
	}
	return count
}

func (c *Culling) Release() {
	c.table.Release()
}
