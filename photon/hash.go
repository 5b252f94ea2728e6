package photon

import (
	"fmt"
	"math"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

// Integer coordinates of a hash grid cell.
type Cell [3]int32

// Large primes for the spatial hash.
const (
	hashPrimeX = 73856093
	hashPrimeY = 19349663
	hashPrimeZ = 83492791
)

// Get the cell containing p for a grid with 1/scale sized cells.
func CellOf(p types.Vec3, scale float32) Cell {
	return Cell{
		int32(math.Floor(float64(p[0] * scale))),
		int32(math.Floor(float64(p[1] * scale))),
		int32(math.Floor(float64(p[2] * scale))),
	}
}

// Hash cell coordinates.
func HashCell(c Cell) uint32 {
	return uint32(c[0])*hashPrimeX ^ uint32(c[1])*hashPrimeY ^ uint32(c[2])*hashPrimeZ
}

// Map a cell to one of 1<<bits buckets.
func BucketIndex(c Cell, bits uint32) uint32 {
	return uint32(uint64(HashCell(c)) & (uint64(1)<<bits - 1))
}

// Number of words in a grid of 1<<bits buckets holding stride words each.
// Grids whose words cannot be indexed with a uint32 are rejected.
func GridWords(bits, stride uint32) (int, error) {
	words := uint64(stride)
	if bits < 32 {
		words <<= bits
	}
	if bits >= 32 || words > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d buckets of %d words", ErrGridTooLarge, uint64(1)<<min(bits, 63), stride)
	}
	return int(words), nil
}

// Invoke fn for every cell overlapped by the box enclosing the sphere
// (p, radius). Iteration stops when fn returns false.
func ForEachNeighborCell(p types.Vec3, radius, scale float32, fn func(c Cell) bool) {
	r := types.Vec3{radius, radius, radius}
	lo := CellOf(p.Sub(r), scale)
	hi := CellOf(p.Add(r), scale)
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				if !fn(Cell{x, y, z}) {
					return
				}
			}
		}
	}
}
