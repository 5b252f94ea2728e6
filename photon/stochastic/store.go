// Package stochastic implements a photon map on a hash grid whose buckets
// keep a uniform random sample of the photons hashed to them.
package stochastic

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/pkg/errors"
	"pgregory.net/rand"
)

const (
	DefaultBucketBits     = 18
	DefaultSlotsPerBucket = 1
	DefaultDecay          = 1

	lockShards = 64
)

type Options struct {
	// The grid has 1<<BucketBits buckets per category.
	BucketBits uint32

	// Photons retained per bucket.
	SlotsPerBucket uint32

	// Exponent applied to the replacement probability slots/(k+1) of the
	// k-th photon hashed to a full bucket. 1 keeps an exact uniform sample;
	// larger values favour early photons.
	Decay float32

	InfoFormat photon.InfoFormat

	// Seed of the replacement random streams.
	Seed uint64
}

func DefaultOptions() Options {
	return Options{
		BucketBits:     DefaultBucketBits,
		SlotsPerBucket: DefaultSlotsPerBucket,
		Decay:          DefaultDecay,
		InfoFormat:     photon.Float16,
	}
}

type categoryBuffers struct {
	position *device.Texture2D[photon.PackedPosition]
	info     *photon.InfoTexture

	// Photons hashed to each bucket this frame.
	counters *device.CounterBuffer

	// Attempts including photons rejected because the bucket was full.
	attempts atomic.Uint32
}

// A photon store backed by a stochastic hash grid per category.
type Store struct {
	logger log.Logger
	device *device.Device
	opts   Options

	numBuckets uint32
	buffers    [photon.NumCategories]*categoryBuffers

	// Slot writes of a bucket are serialized by shard bucket%lockShards.
	locks [lockShards]sync.Mutex

	scale [photon.NumCategories]float32

	// Each batch draws from its own stream keyed by this sequence.
	batchSeq atomic.Uint64
}

// Create a stochastic hash grid store and allocate its buffers.
func New(dev *device.Device, opts Options) (*Store, error) {
	if opts.SlotsPerBucket == 0 || opts.BucketBits == 0 {
		return nil, photon.ErrInvalidCapacity
	}
	if opts.Decay <= 0 {
		opts.Decay = DefaultDecay
	}

	capacity, err := photon.GridWords(opts.BucketBits, opts.SlotsPerBucket)
	if err != nil {
		return nil, errors.Wrap(err, "stochastic")
	}

	s := &Store{
		logger:     log.New("stochastic"),
		device:     dev,
		opts:       opts,
		numBuckets: uint32(1) << opts.BucketBits,
	}

	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		name := "stochastic." + cat.String()
		buf := &categoryBuffers{
			position: device.NewTexture2D[photon.PackedPosition](dev, name+".position"),
			info:     photon.NewInfoTexture(dev, name+".info", opts.InfoFormat),
			counters: device.NewCounterBuffer(dev, name+".counters"),
		}
		s.buffers[cat] = buf

		if err := buf.position.Allocate(photon.TextureWidth(capacity), photon.InfoTextureHeight); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "stochastic: allocating %s positions", cat)
		}
		if err := buf.info.Allocate(capacity); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "stochastic: allocating %s info", cat)
		}
		if err := buf.counters.Allocate(int(s.numBuckets)); err != nil {
			s.Release()
			return nil, errors.Wrapf(err, "stochastic: allocating %s counters", cat)
		}
	}

	s.logger.Debugf("allocated %d buckets x %d slots per category (%s info)", s.numBuckets, opts.SlotsPerBucket, opts.InfoFormat)
	return s, nil
}

// Reset the bucket counters and latch the cell scale.
func (s *Store) Clear(params photon.FrameParams) error {
	for cat, buf := range s.buffers {
		s.scale[cat] = 1 / params.Radius[cat]
		buf.counters.Reset()
		buf.attempts.Store(0)
	}
	return nil
}

// Insert photons. Safe for concurrent use.
func (s *Store) InsertBatch(photons []photon.Photon) {
	rng := rand.New(s.opts.Seed, s.batchSeq.Add(1))
	for i := range photons {
		s.insert(&photons[i], rng)
	}
}

func (s *Store) insert(p *photon.Photon, rng *rand.Rand) {
	cat := p.Category
	buf := s.buffers[cat]
	buf.attempts.Add(1)

	bucket := photon.BucketIndex(photon.CellOf(p.Position, s.scale[cat]), s.opts.BucketBits)
	k := buf.counters.Add(int(bucket), 1)

	slot := k
	if k >= s.opts.SlotsPerBucket {
		if rng.Float32() >= s.acceptProbability(k) {
			return
		}
		slot = uint32(rng.Uint64n(uint64(s.opts.SlotsPerBucket)))
	}

	idx := int(bucket*s.opts.SlotsPerBucket + slot)
	mu := &s.locks[bucket%lockShards]
	mu.Lock()
	buf.position.Data()[idx] = photon.PackPosition(p.Position, p.FaceNormal)
	buf.info.Store(idx, p.Flux, p.Dir)
	mu.Unlock()
}

// Probability of keeping the k-th (zero based) photon of a full bucket.
func (s *Store) acceptProbability(k uint32) float32 {
	p := float32(s.opts.SlotsPerBucket) / float32(k+1)
	if s.opts.Decay == 1 {
		return p
	}
	return float32(math.Pow(float64(p), float64(s.opts.Decay)))
}

// Inserts go straight into the buckets so there is nothing to build.
func (s *Store) BuildIndex() error {
	return nil
}

// Gather the retained photons of the bucket of every cell the query sphere
// overlaps. Each retained photon stands for attempts/retained photons.
func (s *Store) QueryRadiance(q *photon.Query) photon.Radiance {
	est := photon.NewEstimator(q)
	slots := s.opts.SlotsPerBucket

	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		if !q.Mask.Has(cat) {
			continue
		}
		buf := s.buffers[cat]

		var visited [27]uint32
		numVisited := 0
		photon.ForEachNeighborCell(q.Position, q.Radius[cat], s.scale[cat], func(cell photon.Cell) bool {
			bucket := photon.BucketIndex(cell, s.opts.BucketBits)
			for _, b := range visited[:numVisited] {
				if b == bucket {
					return true
				}
			}
			if numVisited < len(visited) {
				visited[numVisited] = bucket
				numVisited++
			}

			attempts := buf.counters.Load(int(bucket))
			if attempts == 0 {
				return true
			}
			retained := min(attempts, slots)
			weight := float32(attempts) / float32(retained)

			base := bucket * slots
			for slot := uint32(0); slot < retained; slot++ {
				idx := int(base + slot)
				pos := buf.position.Data()[idx]
				if !est.Accept(cat, pos.Position, pos.FaceNormal()) {
					continue
				}
				flux, _ := buf.info.Load(idx)
				est.Add(cat, flux, weight)
			}
			return true
		})
	}

	return est.Radiance()
}

func (s *Store) Stats() photon.StoreStats {
	var stats photon.StoreStats
	for cat, buf := range s.buffers {
		var stored uint32
		for b := 0; b < int(s.numBuckets); b++ {
			stored += min(buf.counters.Load(b), s.opts.SlotsPerBucket)
		}
		stats.Stored[cat] = stored
		stats.Dropped[cat] = buf.attempts.Load() - stored
		stats.Capacity[cat] = s.numBuckets * s.opts.SlotsPerBucket
	}
	return stats
}

func (s *Store) Release() {
	for _, buf := range s.buffers {
		if buf == nil {
			continue
		}
		buf.position.Release()
		buf.info.Release()
		buf.counters.Release()
	}
}
