package bvh

import "github.com/SirKero/RTProgressivePhotonMapper/types"

const leafFlag uint32 = 1 << 31

// Bvh node definition. Each node takes 32 bytes.
type Node struct {
	// Bounding box min extent.
	Min types.Vec3

	// Index of the left child for inner nodes or the offset of the first
	// item in Tree.Indices for leaves.
	First uint32

	// Bounding box max extent.
	Max types.Vec3

	// Index of the right child for inner nodes or the item count with
	// the leaf flag set for leaves.
	Second uint32
}

// Set the child nodes for an inner node.
func (n *Node) SetChildNodes(left, right uint32) {
	n.First = left
	n.Second = right
}

// Turn node into a leaf spanning count items starting at offset.
func (n *Node) SetLeaf(offset, count uint32) {
	n.First = offset
	n.Second = count | leafFlag
}

func (n *Node) IsLeaf() bool {
	return n.Second&leafFlag != 0
}

// Get the item range of a leaf node.
func (n *Node) Items() (offset, count uint32) {
	return n.First, n.Second &^ leafFlag
}

// Get the child indices of an inner node.
func (n *Node) Children() (left, right uint32) {
	return n.First, n.Second
}

func (n *Node) BBox() types.AABB {
	return types.AABB{Min: n.Min, Max: n.Max}
}

// A flattened BVH. The root is node 0; leaves reference contiguous ranges
// of Indices which hold item indices into the partitioned collection.
type Tree struct {
	Nodes   []Node
	Indices []uint32
}

// Bounds of the whole tree.
func (t *Tree) Bounds() types.AABB {
	if len(t.Nodes) == 0 {
		return types.EmptyAABB()
	}
	return t.Nodes[0].BBox()
}

// Visit every item whose leaf box overlaps the ray segment, nearest child
// first. visit may shrink ray.TMax to prune the remaining traversal and
// returns false to stop it.
func (t *Tree) Intersect(ray *types.Ray, visit func(item uint32) bool) {
	if len(t.Nodes) == 0 {
		return
	}

	invDir := types.InvDir(ray.Dir)
	if _, hit := t.Nodes[0].BBox().IntersectRay(*ray, invDir); !hit {
		return
	}

	var stackBuf [64]uint32
	stack := append(stackBuf[:0], 0)
	for len(stack) > 0 {
		nodeIndex := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &t.Nodes[nodeIndex]

		if node.IsLeaf() {
			offset, count := node.Items()
			for _, item := range t.Indices[offset : offset+count] {
				if !visit(item) {
					return
				}
			}
			continue
		}

		left, right := node.Children()
		tLeft, hitLeft := t.Nodes[left].BBox().IntersectRay(*ray, invDir)
		tRight, hitRight := t.Nodes[right].BBox().IntersectRay(*ray, invDir)
		switch {
		case hitLeft && hitRight:
			// Push the far child first so the near one is popped next
			if tLeft <= tRight {
				stack = append(stack, right, left)
			} else {
				stack = append(stack, left, right)
			}
		case hitLeft:
			stack = append(stack, left)
		case hitRight:
			stack = append(stack, right)
		}
	}
}

// Visit every item whose leaf box contains p.
func (t *Tree) QueryPoint(p types.Vec3, visit func(item uint32) bool) {
	if len(t.Nodes) == 0 || !t.Nodes[0].BBox().Contains(p) {
		return
	}

	var stackBuf [64]uint32
	stack := append(stackBuf[:0], 0)
	for len(stack) > 0 {
		node := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if node.IsLeaf() {
			offset, count := node.Items()
			for _, item := range t.Indices[offset : offset+count] {
				if !visit(item) {
					return
				}
			}
			continue
		}

		left, right := node.Children()
		if t.Nodes[left].BBox().Contains(p) {
			stack = append(stack, left)
		}
		if t.Nodes[right].BBox().Contains(p) {
			stack = append(stack, right)
		}
	}
}
