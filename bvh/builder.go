package bvh

import (
	"math"
	"sync"
	"time"

	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis

	// The BVH builder will not attempt to calculate split candidates
	// if the centroid bbox along an axis is less than this threshold.
	minSideLength float32 = 1e-6

	// Number of bins evaluated per axis by the SAH strategy.
	sahBins = 16

	// Work lists at least this large score their split candidates in parallel.
	parallelScoreItems = 4096

	// Nodes holding more than this many items are always split even if no
	// candidate improves their score.
	forcedSplitItems = 32
)

var (
	// A split scoring strategy that uses the surface area heuristic (SAH).
	SurfaceAreaHeuristic = surfaceAreaHeuristic{}

	// A split strategy that halves the centroid bounds along the longest axis.
	MedianSplit = medianSplit{}
)

// The BoundedVolumes interface is implemented by collections that can be
// partitioned by the bvh builder. Items are addressed by index.
type BoundedVolumes interface {
	Len() int
	BBox(item int) types.AABB
	Center(item int) types.Vec3
}

// A callback that is called whenever the BVH builder creates a new leaf.
type LeafCallback func(leaf *Node, items []uint32)

// A split scoring strategy.
type ScoreStrategy interface {
	// Generate the split points to evaluate along axis given the bounds of
	// the item centroids.
	SplitCandidates(centroidBounds types.AABB, axis Axis) []float32

	// Calculate a score for splitting items at splitPoint along a particular Axis.
	ScoreSplit(vols BoundedVolumes, items []uint32, splitAxis Axis, splitPoint float32) (leftCount, rightCount int, score float32)

	// Calculate a score for all items.
	ScorePartition(vols BoundedVolumes, items []uint32) (score float32)
}

type splitScore struct {
	axis       Axis
	splitPoint float32

	leftCount, rightCount int
	score                 float32
}

type stats struct {
	partitionedItems int
	totalItems       int
	nodes            int
	leafs            int
	maxDepth         int
}

type builder struct {
	logger log.Logger

	vols  BoundedVolumes
	nodes []Node

	// Optional callback invoked for each created leaf.
	leafCb LeafCallback

	// The minimum number of items that are required for creating a leaf.
	minLeafItems int

	// The split scoring strategy to use.
	scoreStrategy ScoreStrategy

	// Stats
	stats stats
}

// Construct a BVH over a set of bounded volumes.
//
// The minLeafItems param specifies the number of items at or below which
// the builder stops partitioning and emits a leaf.
func Build(vols BoundedVolumes, minLeafItems int, leafCb LeafCallback, scoreStrategy ScoreStrategy) *Tree {
	count := vols.Len()
	b := &builder{
		logger:        log.New("bvh"),
		vols:          vols,
		nodes:         make([]Node, 0, max(1, 2*count/max(1, minLeafItems))),
		leafCb:        leafCb,
		minLeafItems:  max(1, minLeafItems),
		scoreStrategy: scoreStrategy,
		stats: stats{
			totalItems: count,
		},
	}

	indices := make([]uint32, count)
	for i := range indices {
		indices[i] = uint32(i)
	}

	if count == 0 {
		return &Tree{Indices: indices}
	}

	start := time.Now()
	b.partition(indices, 0, 0)
	b.logger.Debugf(
		"BVH tree build time: %d ms, items: %d, maxDepth: %d, nodes: %d, leafs: %d",
		time.Since(start).Milliseconds(),
		count, b.stats.maxDepth, b.stats.nodes, b.stats.leafs,
	)

	return &Tree{Nodes: b.nodes, Indices: indices}
}

// Partition the items occupying indices[offset:offset+len(items)] and
// return the node index.
func (b *builder) partition(items []uint32, offset uint32, depth int) uint32 {
	if depth > b.stats.maxDepth {
		b.stats.maxDepth = depth
	}

	bounds := types.EmptyAABB()
	centroidBounds := types.EmptyAABB()
	for _, item := range items {
		bounds = bounds.Union(b.vols.BBox(int(item)))
		centroidBounds = centroidBounds.Expand(b.vols.Center(int(item)))
	}
	node := Node{Min: bounds.Min, Max: bounds.Max}

	// Do we have enough items for partitioning? If not create a leaf
	if len(items) <= b.minLeafItems {
		return b.createLeaf(&node, items, offset)
	}

	bestSplit := b.findSplit(items, centroidBounds)

	var leftCount int
	switch {
	case bestSplit != nil:
		leftCount = partitionItems(b.vols, items, bestSplit.axis, bestSplit.splitPoint)
	case len(items) > forcedSplitItems:
		// No candidate beats the leaf score but the node is too large to
		// keep. Split the work list in half.
		leftCount = len(items) / 2
	default:
		return b.createLeaf(&node, items, offset)
	}

	// Add node to list
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, node)
	b.stats.nodes++

	// Partition children and update node indices
	leftNodeIndex := b.partition(items[:leftCount], offset, depth+1)
	rightNodeIndex := b.partition(items[leftCount:], offset+uint32(leftCount), depth+1)
	b.nodes[nodeIndex].SetChildNodes(leftNodeIndex, rightNodeIndex)

	return uint32(nodeIndex)
}

// Evaluate the split candidates along each axis and return the one with the
// best score or nil if none improves the current node score.
func (b *builder) findSplit(items []uint32, centroidBounds types.AABB) *splitScore {
	type candidate struct {
		axis       Axis
		splitPoint float32
	}

	side := centroidBounds.Max.Sub(centroidBounds.Min)
	candidates := make([]candidate, 0, 3*sahBins)
	for axis := XAxis; axis <= ZAxis; axis++ {
		// Skip axis if all centroids are (almost) coplanar
		if side[axis] < minSideLength {
			continue
		}
		for _, splitPoint := range b.scoreStrategy.SplitCandidates(centroidBounds, axis) {
			candidates = append(candidates, candidate{axis, splitPoint})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	scores := make([]splitScore, len(candidates))
	score := func(i int) {
		c := candidates[i]
		lCount, rCount, s := b.scoreStrategy.ScoreSplit(b.vols, items, c.axis, c.splitPoint)
		scores[i] = splitScore{
			axis:       c.axis,
			splitPoint: c.splitPoint,
			leftCount:  lCount,
			rightCount: rCount,
			score:      s,
		}
	}

	// Run split tests in parallel for large work lists
	if len(items) >= parallelScoreItems {
		var wg sync.WaitGroup
		for i := range candidates {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				score(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range candidates {
			score(i)
		}
	}

	// Process all scores and pick the best split
	bestScore := b.scoreStrategy.ScorePartition(b.vols, items)
	var bestSplit *splitScore
	for i := range scores {
		if scores[i].score < bestScore {
			bestScore = scores[i].score
			bestSplit = &scores[i]
		}
	}
	return bestSplit
}

// Setup the given node item as a leaf node containing all items.
// Returns the index to the node in the bvh node array.
func (b *builder) createLeaf(node *Node, items []uint32, offset uint32) uint32 {
	node.SetLeaf(offset, uint32(len(items)))
	if b.leafCb != nil {
		b.leafCb(node, items)
	}

	// append node to list
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, *node)

	// update stats
	b.stats.nodes++
	b.stats.leafs++
	b.stats.partitionedItems += len(items)

	return uint32(nodeIndex)
}

// Reorder items in place so that items whose center lies below splitPoint
// come first. Returns the number of items on the left side.
func partitionItems(vols BoundedVolumes, items []uint32, axis Axis, splitPoint float32) int {
	left, right := 0, len(items)-1
	for left <= right {
		if vols.Center(int(items[left]))[axis] < splitPoint {
			left++
			continue
		}
		items[left], items[right] = items[right], items[left]
		right--
	}
	return left
}

// A score implementation that uses surface area heuristic for calculating split scores.
type surfaceAreaHeuristic struct{}

// Split points at the bin boundaries of the centroid bounds.
func (h surfaceAreaHeuristic) SplitCandidates(centroidBounds types.AABB, axis Axis) []float32 {
	lo := centroidBounds.Min[axis]
	step := (centroidBounds.Max[axis] - lo) / sahBins
	points := make([]float32, 0, sahBins-1)
	for bin := 1; bin < sahBins; bin++ {
		points = append(points, lo+step*float32(bin))
	}
	return points
}

// Score a BVH split based on the surface area heuristic. The SAH calculates
// the split score using the formula (lower score is better):
//
// left count * left BBOX area + rightCount * right BBOX area.
//
// SAH avoids splits that generate empty partitions by assigning the worst
// possible score (MaxFloat32) when it enounters such cases.
func (h surfaceAreaHeuristic) ScoreSplit(vols BoundedVolumes, items []uint32, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32) {
	lbox := types.EmptyAABB()
	rbox := types.EmptyAABB()
	for _, item := range items {
		if vols.Center(int(item))[axis] < splitPoint {
			leftCount++
			lbox = lbox.Union(vols.BBox(int(item)))
		} else {
			rightCount++
			rbox = rbox.Union(vols.BBox(int(item)))
		}
	}

	// Make sure that we don't generate empty partitions
	if leftCount == 0 || rightCount == 0 {
		return leftCount, rightCount, math.MaxFloat32
	}

	score = float32(leftCount)*lbox.HalfArea() + float32(rightCount)*rbox.HalfArea()
	return leftCount, rightCount, score
}

// Calculate score for a partitioned work list using formula:
// count * BBOX area
//
// If the work list is empty, then this method returns the worst possible
// score (MaxFloat32).
func (h surfaceAreaHeuristic) ScorePartition(vols BoundedVolumes, items []uint32) (score float32) {
	if len(items) == 0 {
		return math.MaxFloat32
	}

	box := types.EmptyAABB()
	for _, item := range items {
		box = box.Union(vols.BBox(int(item)))
	}
	return float32(len(items)) * box.HalfArea()
}

// A split strategy that trades tree quality for build speed. It proposes a
// single split at the centroid midpoint of the longest axis and accepts it
// whenever both sides are non-empty.
type medianSplit struct{}

func (m medianSplit) SplitCandidates(centroidBounds types.AABB, axis Axis) []float32 {
	if int(axis) != centroidBounds.LongestAxis() {
		return nil
	}
	return []float32{0.5 * (centroidBounds.Min[axis] + centroidBounds.Max[axis])}
}

func (m medianSplit) ScoreSplit(vols BoundedVolumes, items []uint32, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32) {
	for _, item := range items {
		if vols.Center(int(item))[axis] < splitPoint {
			leftCount++
		}
	}
	rightCount = len(items) - leftCount
	if leftCount == 0 || rightCount == 0 {
		return leftCount, rightCount, math.MaxFloat32
	}
	return leftCount, rightCount, 0
}

func (m medianSplit) ScorePartition(vols BoundedVolumes, items []uint32) (score float32) {
	return float32(len(items))
}
