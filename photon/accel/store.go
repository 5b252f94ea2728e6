// Package accel implements a photon map that stores one AABB per photon and
// gathers by tracing short rays through a two level acceleration structure.
package accel

import (
	"context"
	"sync/atomic"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// Extent of the gather ray. The ray starts at the query point and only
	// needs to land inside the photon boxes that contain it.
	GatherTMin = 1e-6
	GatherTMax = 2e-6

	DefaultOverestimate         = 1.1
	DefaultMaxPhotons           = 3
	DefaultStochasticIterations = 10000
)

type Options struct {
	// Maximum photons per category.
	Capacity [photon.NumCategories]uint32

	// BLAS build size is last frame's photon count times this factor.
	Overestimate float32

	Build    BuildFlags
	Geometry GeometryFlags

	InfoFormat photon.InfoFormat

	// Keep at most MaxPhotons per category and gather ray, chosen
	// uniformly, and rescale the estimate.
	StochasticCollect bool
	MaxPhotons        [photon.NumCategories]uint32

	// Stochastic collection is used for the first StochasticIterations
	// frames; 0 keeps it on forever.
	StochasticIterations uint32
}

func DefaultOptions() Options {
	return Options{
		Capacity:             [photon.NumCategories]uint32{200000, 1000000},
		Overestimate:         DefaultOverestimate,
		Build:                FastTrace,
		Geometry:             NoDuplicateAnyHit,
		InfoFormat:           photon.Float16,
		MaxPhotons:           [photon.NumCategories]uint32{DefaultMaxPhotons, DefaultMaxPhotons},
		StochasticIterations: DefaultStochasticIterations,
	}
}

type categoryBuffers struct {
	aabbs   *device.Buffer[types.AABB]
	info    *photon.InfoTexture
	normals *device.Buffer[uint32]
}

// A photon store that gathers through a TLAS with one instance per category.
type Store struct {
	logger log.Logger
	device *device.Device
	opts   Options

	buffers [photon.NumCategories]categoryBuffers

	// Photons written per category this frame.
	counter *device.CounterBuffer

	// Number of photons the BLAS of each category indexes this frame.
	buildSize [photon.NumCategories]uint32

	capacityDrops [photon.NumCategories]atomic.Uint32

	radius    [photon.NumCategories]float32
	iteration uint32

	blas [photon.NumCategories]*BLAS
	tlas *TLAS
}

// Create an AS store. The device must support ray tracing and every
// category needs a non-zero capacity.
func New(dev *device.Device, opts Options) (*Store, error) {
	if !dev.Supports(device.FeatureRaytracing) {
		return nil, ErrRaytracingUnsupported
	}
	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		if opts.Capacity[cat] == 0 {
			return nil, errors.Wrapf(ErrEmptyPhotonBuffer, "%s map", cat)
		}
	}
	if opts.Overestimate < 1 {
		opts.Overestimate = 1
	}

	s := &Store{
		logger:  log.New("accel"),
		device:  dev,
		opts:    opts,
		counter: device.NewCounterBuffer(dev, "accel.counter"),
	}
	if err := s.counter.Allocate(photon.NumCategories); err != nil {
		return nil, err
	}

	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		name := "accel." + cat.String()
		buf := categoryBuffers{
			aabbs:   device.NewBuffer[types.AABB](dev, name+".aabb"),
			info:    photon.NewInfoTexture(dev, name+".info", opts.InfoFormat),
			normals: device.NewBuffer[uint32](dev, name+".normal"),
		}
		s.buffers[cat] = buf

		capacity := int(opts.Capacity[cat])
		if err := buf.aabbs.Allocate(capacity); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "accel: allocating %s aabbs", cat)
		}
		if err := buf.info.Allocate(capacity); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "accel: allocating %s info", cat)
		}
		if err := buf.normals.Allocate(capacity); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "accel: allocating %s normals", cat)
		}
	}

	return s, nil
}

func (s *Store) Options() Options {
	return s.opts
}

// Reset the counters, latch the radii and size this frame's BLAS builds
// from the previous frame's photon count. The first iteration after a reset
// builds over the full capacity.
func (s *Store) Clear(params photon.FrameParams) error {
	s.counter.Reset()
	s.radius = params.Radius
	s.iteration = params.Iteration
	s.tlas = nil
	for cat := range s.buildSize {
		s.capacityDrops[cat].Store(0)
		s.blas[cat] = nil

		maxSize := s.opts.Capacity[cat]
		if params.Iteration == 0 {
			s.buildSize[cat] = maxSize
			continue
		}
		fit := uint32(float32(params.LastPhotonCount[cat]) * s.opts.Overestimate)
		s.buildSize[cat] = min(max(fit, 1), maxSize)
	}
	return nil
}

// Write one AABB centered at each photon with the category radius as its
// half extent. Safe for concurrent use.
func (s *Store) InsertBatch(photons []photon.Photon) {
	for i := range photons {
		p := &photons[i]
		cat := p.Category
		idx, ok := s.counter.IncrementBelow(int(cat), s.opts.Capacity[cat])
		if !ok {
			s.capacityDrops[cat].Add(1)
			continue
		}

		buf := &s.buffers[cat]
		buf.aabbs.Data()[idx] = types.AABBFromSphere(p.Position, s.radius[cat])
		buf.info.Store(int(idx), p.Flux, p.Dir)
		buf.normals.Data()[idx] = photon.EncodeNormal(p.FaceNormal)
	}
}

// Build the per category BLAS concurrently followed by the TLAS. Photons
// beyond this frame's build size stay in the buffers but are not indexed.
func (s *Store) BuildIndex() error {
	g, _ := errgroup.WithContext(context.Background())
	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		count := min(s.counter.Load(int(cat)), s.buildSize[cat])
		boxes := s.buffers[cat].aabbs.Data()[:count]
		cat := cat
		g.Go(func() error {
			s.blas[cat] = BuildBLAS(boxes, s.opts.Geometry, s.opts.Build)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	instances := make([]Instance, photon.NumCategories)
	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		instances[cat] = Instance{
			BLAS:       s.blas[cat],
			InstanceID: uint32(cat),
			Mask:       cat.Mask(),
			Transform:  mgl32.Ident4(),
		}
	}
	s.tlas = BuildTLAS(instances)

	s.logger.Debugf(
		"built AS: caustic %d/%d global %d/%d (%s)",
		s.blas[photon.Caustic].Len(), s.counter.Load(int(photon.Caustic)),
		s.blas[photon.Global].Len(), s.counter.Load(int(photon.Global)),
		s.opts.Build,
	)
	return nil
}

// Whether gather rays keep a bounded random subset of photons this frame.
func (s *Store) StochasticActive() bool {
	return s.opts.StochasticCollect && (s.iteration < s.opts.StochasticIterations || s.opts.StochasticIterations == 0)
}

// Gather by casting an epsilon length ray from the query point and
// collecting every photon box it starts in.
func (s *Store) QueryRadiance(q *photon.Query) photon.Radiance {
	est := photon.NewEstimator(q)
	if s.tlas == nil {
		return est.Radiance()
	}

	ray := types.Ray{
		Origin: q.Position,
		Dir:    q.FaceNormal,
		TMin:   GatherTMin,
		TMax:   GatherTMax,
	}
	if ray.Dir.IsZero() {
		ray.Dir = types.XYZ(0, 1, 0)
	}

	if !s.StochasticActive() || q.Rand == nil {
		s.tlas.Trace(ray, q.Mask, func(instanceID, prim uint32) bool {
			cat := photon.Category(instanceID)
			if s.candidate(&est, cat, prim) {
				flux, _ := s.buffers[cat].info.Load(int(prim))
				est.Add(cat, flux, 1)
			}
			return true
		})
		return est.Radiance()
	}

	var reservoirs [photon.NumCategories]reservoir
	for cat := range reservoirs {
		reservoirs[cat].slots = make([]uint32, 0, max(1, s.opts.MaxPhotons[cat]))
	}
	s.tlas.Trace(ray, q.Mask, func(instanceID, prim uint32) bool {
		cat := photon.Category(instanceID)
		if s.candidate(&est, cat, prim) {
			reservoirs[cat].offer(prim, q.Rand.Float32())
		}
		return true
	})

	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		r := &reservoirs[cat]
		if len(r.slots) == 0 {
			continue
		}
		weight := float32(r.seen) / float32(len(r.slots))
		for _, prim := range r.slots {
			flux, _ := s.buffers[cat].info.Load(int(prim))
			est.Add(cat, flux, weight)
		}
	}
	return est.Radiance()
}

// Apply the exact distance and face normal tests to a primitive hit.
func (s *Store) candidate(est *photon.Estimator, cat photon.Category, prim uint32) bool {
	buf := &s.buffers[cat]
	return est.Accept(cat, buf.aabbs.Data()[prim].Center(), photon.DecodeNormal(buf.normals.Data()[prim]))
}

// Sum the flux of photons whose sphere the ray passes through. Used by the
// debug view.
func (s *Store) DebugRadiance(ray types.Ray, mask photon.CategoryMask) types.Vec3 {
	var out types.Vec3
	if s.tlas == nil {
		return out
	}
	dir := ray.Dir.Normalize()
	s.tlas.Trace(ray, mask, func(instanceID, prim uint32) bool {
		cat := photon.Category(instanceID)
		buf := &s.buffers[cat]
		center := buf.aabbs.Data()[prim].Center()
		toCenter := center.Sub(ray.Origin)
		t := toCenter.Dot(dir)
		if t < ray.TMin || t > ray.TMax {
			return true
		}
		r := s.radius[cat]
		if toCenter.Sub(dir.Mul(t)).LenSq() > r*r {
			return true
		}
		flux, _ := buf.info.Load(int(prim))
		out = out.Add(flux)
		return true
	})
	return out
}

func (s *Store) Stats() photon.StoreStats {
	var stats photon.StoreStats
	for cat := range stats.Stored {
		written := s.counter.Load(cat)
		indexed := written
		if blas := s.blas[cat]; blas != nil {
			indexed = uint32(blas.Len())
		}
		stats.Stored[cat] = indexed
		stats.Dropped[cat] = written - indexed + s.capacityDrops[cat].Load()
		stats.Capacity[cat] = s.opts.Capacity[cat]
	}
	return stats
}

// Primitive count each BLAS was sized for this frame.
func (s *Store) BuildSizes() [photon.NumCategories]uint32 {
	return s.buildSize
}

// Copy the per category photon counters into out.
func (s *Store) ReadCounters(out []uint32) error {
	return s.counter.ReadData(out)
}

func (s *Store) Release() {
	s.counter.Release()
	s.tlas = nil
	for cat := range s.buffers {
		buf := &s.buffers[cat]
		s.blas[cat] = nil
		if buf.aabbs == nil {
			continue
		}
		buf.aabbs.Release()
		buf.info.Release()
		buf.normals.Release()
	}
}

// Uniform random subset of bounded size over a stream of primitives.
type reservoir struct {
	slots []uint32
	seen  uint32
}

func (r *reservoir) offer(prim uint32, u float32) {
	r.seen++
	if len(r.slots) < cap(r.slots) {
		r.slots = append(r.slots, prim)
		return
	}
	// Replace a random slot with probability cap/seen
	if j := uint32(u * float32(r.seen)); j < uint32(cap(r.slots)) {
		r.slots[j] = prim
	}
}
