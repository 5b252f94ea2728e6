// Package hashgrid implements a photon map on top of a fixed size spatial
// hash grid with quadratic probing.
package hashgrid

import (
	"sync/atomic"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/pkg/errors"
)

const (
	// Header words in front of each bucket's photon slots. Word 0 holds the
	// fill count.
	bucketHeaderWords = 4

	// Visited bucket lists larger than this switch to a map.
	maxLinearVisited = 64
)

type Options struct {
	// Maximum photons per category.
	Capacity [photon.NumCategories]uint32

	// The grid has 1<<BucketBits buckets per category.
	BucketBits uint32

	// Photon slots per bucket.
	PhotonsPerBucket uint32

	// Extra buckets probed (bucket + k*k) once the home bucket is full.
	ProbeIterations uint32

	InfoFormat photon.InfoFormat

	// Probability of evaluating a candidate photon at gather time. Values
	// >= 1 evaluate every photon.
	CollectProbability float32
}

// Photon buffers of one category.
type categoryBuffers struct {
	position *device.Texture2D[photon.PackedPosition]
	info     *photon.InfoTexture
	buckets  *device.CounterBuffer
}

// A photon store backed by a hash grid per category.
type Store struct {
	logger log.Logger
	device *device.Device
	opts   Options

	numBuckets   uint32
	bucketMask   uint32
	bucketStride uint32

	buffers [photon.NumCategories]categoryBuffers

	// Photons written per category this frame.
	counter *device.CounterBuffer

	// Photons written but not indexed because the probe chain was full.
	probeDrops [photon.NumCategories]atomic.Uint32

	// Photons rejected because the category buffer was full.
	capacityDrops [photon.NumCategories]atomic.Uint32

	scale [photon.NumCategories]float32
}

// Create a hash grid store and allocate its buffers.
func New(dev *device.Device, opts Options) (*Store, error) {
	if opts.Capacity[photon.Caustic] == 0 && opts.Capacity[photon.Global] == 0 {
		return nil, photon.ErrInvalidCapacity
	}

	stride := opts.PhotonsPerBucket + bucketHeaderWords
	words, err := photon.GridWords(opts.BucketBits, stride)
	if err != nil {
		return nil, errors.Wrap(err, "hashgrid")
	}

	s := &Store{
		logger:       log.New("hashgrid"),
		device:       dev,
		opts:         opts,
		numBuckets:   uint32(1) << opts.BucketBits,
		bucketMask:   uint32(1)<<opts.BucketBits - 1,
		bucketStride: stride,
		counter:      device.NewCounterBuffer(dev, "hashgrid.counter"),
	}

	if err := s.counter.Allocate(photon.NumCategories); err != nil {
		return nil, err
	}

	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		name := "hashgrid." + cat.String()
		buf := categoryBuffers{
			position: device.NewTexture2D[photon.PackedPosition](dev, name+".position"),
			info:     photon.NewInfoTexture(dev, name+".info", opts.InfoFormat),
			buckets:  device.NewCounterBuffer(dev, name+".buckets"),
		}
		s.buffers[cat] = buf

		capacity := int(opts.Capacity[cat])
		if err := buf.position.Allocate(photon.TextureWidth(capacity), photon.InfoTextureHeight); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "hashgrid: allocating %s positions", cat)
		}
		if err := buf.info.Allocate(capacity); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "hashgrid: allocating %s info", cat)
		}
		if err := buf.buckets.Allocate(words); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "hashgrid: allocating %s buckets", cat)
		}
	}

	s.logger.Debugf(
		"allocated %d buckets x %d slots per category, capacity caustic %d global %d (%s info)",
		s.numBuckets, opts.PhotonsPerBucket, opts.Capacity[photon.Caustic], opts.Capacity[photon.Global], opts.InfoFormat,
	)
	return s, nil
}

// Reset counters and bucket fill counts and latch the cell scale.
func (s *Store) Clear(params photon.FrameParams) error {
	s.counter.Reset()
	for cat := range s.buffers {
		s.scale[cat] = 1 / params.Radius[cat]
		s.probeDrops[cat].Store(0)
		s.capacityDrops[cat].Store(0)

		// Slots are only read up to the fill count so the headers suffice
		buckets := s.buffers[cat].buckets
		for b := uint32(0); b < s.numBuckets; b++ {
			buckets.Store(int(b*s.bucketStride), 0)
		}
	}
	return nil
}

// Insert photons. Safe for concurrent use.
func (s *Store) InsertBatch(photons []photon.Photon) {
	for i := range photons {
		s.insert(&photons[i])
	}
}

func (s *Store) insert(p *photon.Photon) {
	cat := p.Category
	idx, ok := s.counter.IncrementBelow(int(cat), s.opts.Capacity[cat])
	if !ok {
		s.capacityDrops[cat].Add(1)
		return
	}

	buf := &s.buffers[cat]
	buf.position.Data()[idx] = photon.PackPosition(p.Position, p.FaceNormal)
	buf.info.Store(int(idx), p.Flux, p.Dir)

	home := photon.BucketIndex(photon.CellOf(p.Position, s.scale[cat]), s.opts.BucketBits)
	for k := uint32(0); k <= s.opts.ProbeIterations; k++ {
		base := int(((home + k*k) & s.bucketMask) * s.bucketStride)
		if slot, ok := buf.buckets.IncrementBelow(base, s.opts.PhotonsPerBucket); ok {
			buf.buckets.Store(base+bucketHeaderWords+int(slot), idx)
			return
		}
	}

	s.probeDrops[cat].Add(1)
}

// Inserts go straight into the buckets so there is nothing to build.
func (s *Store) BuildIndex() error {
	return nil
}

// Gather photons from the buckets of every cell the query sphere overlaps.
// Each cell follows its probe chain up to the first bucket that is not full.
func (s *Store) QueryRadiance(q *photon.Query) photon.Radiance {
	est := photon.NewEstimator(q)
	stochastic := s.opts.CollectProbability > 0 && s.opts.CollectProbability < 1 && q.Rand != nil
	weight := float32(1)
	if stochastic {
		weight = 1 / s.opts.CollectProbability
	}

	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		if !q.Mask.Has(cat) || s.opts.Capacity[cat] == 0 {
			continue
		}

		buf := &s.buffers[cat]
		var visited visitedSet
		photon.ForEachNeighborCell(q.Position, q.Radius[cat], s.scale[cat], func(cell photon.Cell) bool {
			home := photon.BucketIndex(cell, s.opts.BucketBits)
			for k := uint32(0); k <= s.opts.ProbeIterations; k++ {
				bucket := (home + k*k) & s.bucketMask
				base := int(bucket * s.bucketStride)
				fill := min(buf.buckets.Load(base), s.opts.PhotonsPerBucket)

				if visited.add(bucket) {
					for slot := uint32(0); slot < fill; slot++ {
						if stochastic && q.Rand.Float32() >= s.opts.CollectProbability {
							continue
						}
						idx := buf.buckets.Load(base + bucketHeaderWords + int(slot))
						pos := buf.position.Data()[idx]
						if !est.Accept(cat, pos.Position, pos.FaceNormal()) {
							continue
						}
						flux, _ := buf.info.Load(int(idx))
						est.Add(cat, flux, weight)
					}
				}

				if fill < s.opts.PhotonsPerBucket {
					break
				}
			}
			return true
		})
	}

	return est.Radiance()
}

func (s *Store) Stats() photon.StoreStats {
	var stats photon.StoreStats
	for cat := range stats.Stored {
		written := s.counter.Load(cat)
		probeDrops := s.probeDrops[cat].Load()
		stats.Stored[cat] = written - probeDrops
		stats.Dropped[cat] = probeDrops + s.capacityDrops[cat].Load()
		stats.Capacity[cat] = s.opts.Capacity[cat]
	}
	return stats
}

// Copy the per category photon counters into out.
func (s *Store) ReadCounters(out []uint32) error {
	return s.counter.ReadData(out)
}

func (s *Store) Release() {
	s.counter.Release()
	for cat := range s.buffers {
		buf := &s.buffers[cat]
		if buf.position == nil {
			continue
		}
		buf.position.Release()
		buf.info.Release()
		buf.buckets.Release()
	}
}

// Buckets already scanned by a query. Probe chains of neighbouring cells may
// share buckets and each photon must be counted once.
type visitedSet struct {
	list []uint32
	set  map[uint32]struct{}
}

// Record bucket and report whether it was not seen before.
func (v *visitedSet) add(bucket uint32) bool {
	if v.set != nil {
		if _, seen := v.set[bucket]; seen {
			return false
		}
		v.set[bucket] = struct{}{}
		return true
	}

	for _, b := range v.list {
		if b == bucket {
			return false
		}
	}
	v.list = append(v.list, bucket)
	if len(v.list) > maxLinearVisited {
		v.set = make(map[uint32]struct{}, 2*len(v.list))
		for _, b := range v.list {
			v.set[b] = struct{}{}
		}
	}
	return true
}
