package device

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"pgregory.net/rand"
)

const (
	// Threads claimed by a worker at once for 1D dispatches.
	chunkSize1D = 1024

	// Tile edge for 2D dispatches.
	TileSize = 16
)

// The per-thread state handed to a kernel body. Workers reuse Thread
// values, so kernels must not retain them.
type Thread struct {
	// Dispatch coordinates (including offsets).
	X, Y uint32

	// Linear index inside the dispatch: x + y * width.
	Index uint32

	// RNG seeded from the kernel seed and the linear index.
	Rand rand.Rand
}

// A kernel body.
type KernelFunc func(th *Thread)

// A kernel bound to a device.
type Kernel struct {
	device *Device
	name   string
	fn     KernelFunc
	seed   uint64
}

// Get kernel name.
func (k *Kernel) Name() string {
	return k.name
}

// Set the seed used to derive per-thread RNG state. Usually bumped once
// per frame.
func (k *Kernel) SetSeed(seed uint64) {
	k.seed = seed
}

// Execute 1D kernel over [offset, offset+globalWorkSize).
func (k *Kernel) Exec1D(offset, globalWorkSize int) (time.Duration, error) {
	if !k.device.Ready() {
		return 0, ErrDeviceNotInitialized
	}
	if globalWorkSize <= 0 {
		return 0, nil
	}

	tick := time.Now()
	numChunks := (globalWorkSize + chunkSize1D - 1) / chunkSize1D
	var nextChunk atomic.Int64

	err := k.dispatch(numChunks, func(th *Thread) error {
		for {
			chunk := int(nextChunk.Add(1) - 1)
			if chunk >= numChunks {
				return nil
			}
			first := chunk * chunkSize1D
			last := min(first+chunkSize1D, globalWorkSize)
			for i := first; i < last; i++ {
				th.X = uint32(offset + i)
				th.Y = 0
				th.Index = uint32(i)
				th.Rand.Seed(k.threadSeed(uint32(i)))
				k.fn(th)
			}
		}
	})
	if err != nil {
		return time.Since(tick), err
	}

	return time.Since(tick), nil
}

// Execute 2D kernel over a globalWorkSizeX x globalWorkSizeY grid.
func (k *Kernel) Exec2D(offsetX, offsetY, globalWorkSizeX, globalWorkSizeY int) (time.Duration, error) {
	if !k.device.Ready() {
		return 0, ErrDeviceNotInitialized
	}
	if globalWorkSizeX <= 0 || globalWorkSizeY <= 0 {
		return 0, nil
	}

	tick := time.Now()
	tilesX := (globalWorkSizeX + TileSize - 1) / TileSize
	tilesY := (globalWorkSizeY + TileSize - 1) / TileSize
	numTiles := tilesX * tilesY
	var nextTile atomic.Int64

	err := k.dispatch(numTiles, func(th *Thread) error {
		for {
			tile := int(nextTile.Add(1) - 1)
			if tile >= numTiles {
				return nil
			}
			x0 := (tile % tilesX) * TileSize
			y0 := (tile / tilesX) * TileSize
			for y := y0; y < min(y0+TileSize, globalWorkSizeY); y++ {
				for x := x0; x < min(x0+TileSize, globalWorkSizeX); x++ {
					index := uint32(x + y*globalWorkSizeX)
					th.X = uint32(offsetX + x)
					th.Y = uint32(offsetY + y)
					th.Index = index
					th.Rand.Seed(k.threadSeed(index))
					k.fn(th)
				}
			}
		}
	})

	return time.Since(tick), err
}

// Spawn min(workers, units) goroutines running loop and wait for all of them.
// A panicking kernel is reported as an error instead of crashing the host.
func (k *Kernel) dispatch(units int, loop func(th *Thread) error) error {
	var group errgroup.Group
	workers := min(k.device.Workers, units)
	for w := 0; w < workers; w++ {
		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("device (%s): kernel %s panicked: %v", k.device.Name, k.name, r)
				}
			}()
			return loop(&Thread{})
		})
	}
	return group.Wait()
}

// Mix the kernel seed with a thread index (splitmix64 finalizer).
func (k *Kernel) threadSeed(index uint32) uint64 {
	z := k.seed + uint64(index)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
