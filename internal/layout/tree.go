package layout

import "fmt"

// Key identifies the window held by a leaf. The pid+wid pair is unique while
// the window exists.
type Key struct {
	PID int32  `json:"pid" yaml:"pid"`
	WID uint32 `json:"wid" yaml:"wid"`
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool { return k.PID == 0 && k.WID == 0 }

func (k Key) String() string { return fmt.Sprintf("%d:%d", k.PID, k.WID) }

// Node is either a leaf holding one window or an internal node holding
// exactly two children. Internal nodes carry no geometry of their own.
type Node struct {
	Window      Key
	Orientation Orientation
	Ratio       float64
	Children    [2]*Node
}

// IsLeaf reports whether the node holds a window.
func (n *Node) IsLeaf() bool {
	return n != nil && n.Children[0] == nil
}

// Tree is a binary tiling tree.
type Tree struct {
	Root *Node
	// Orientation and Ratio seed internal nodes created by Insert.
	Orientation Orientation
	Ratio       float64
}

// Tile is a computed frame for one leaf.
type Tile struct {
	Window Key
	Frame  Rect
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return countLeaves(t.Root)
}

func countLeaves(n *Node) int {
	if n == nil {
		return 0
	}
	if n.IsLeaf() {
		return 1
	}
	return countLeaves(n.Children[0]) + countLeaves(n.Children[1])
}

// Leaves returns leaf windows in left-to-right tree order.
func (t *Tree) Leaves() []Key {
	var out []Key
	walkLeaves(t.Root, func(n *Node) { out = append(out, n.Window) })
	return out
}

func walkLeaves(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	if n.IsLeaf() {
		fn(n)
		return
	}
	walkLeaves(n.Children[0], fn)
	walkLeaves(n.Children[1], fn)
}

// Contains reports whether k occupies a leaf.
func (t *Tree) Contains(k Key) bool {
	leaf, _ := t.find(k)
	return leaf != nil
}

// find returns the leaf holding k and its parent (nil for the root).
func (t *Tree) find(k Key) (leaf, parent *Node) {
	var walk func(n, p *Node) bool
	walk = func(n, p *Node) bool {
		if n == nil {
			return false
		}
		if n.IsLeaf() {
			if n.Window == k {
				leaf, parent = n, p
				return true
			}
			return false
		}
		return walk(n.Children[0], n) || walk(n.Children[1], n)
	}
	walk(t.Root, nil)
	return leaf, parent
}

func lastLeaf(n *Node) *Node {
	for n != nil && !n.IsLeaf() {
		n = n.Children[1]
	}
	return n
}

// Insert adds k next to the leaf holding target, splitting that leaf. When
// target is absent the last leaf is split. The existing window keeps the
// first half. Returns false when k is already present.
func (t *Tree) Insert(k Key, target Key) bool {
	if t.Contains(k) {
		return false
	}
	leaf := &Node{Window: k}
	if t.Root == nil {
		t.Root = leaf
		return true
	}
	split, _ := t.find(target)
	if split == nil {
		split = lastLeaf(t.Root)
	}
	ratio := t.Ratio
	if ratio == 0 {
		ratio = DefaultRatio
	}
	existing := &Node{Window: split.Window}
	split.Window = Key{}
	split.Orientation = t.Orientation
	split.Ratio = ClampRatio(ratio)
	split.Children = [2]*Node{existing, leaf}
	return true
}

// Remove deletes the leaf holding k and promotes its sibling into the
// parent's place. Returns false when k is not in the tree.
func (t *Tree) Remove(k Key) bool {
	leaf, parent := t.find(k)
	if leaf == nil {
		return false
	}
	if parent == nil {
		t.Root = nil
		return true
	}
	sibling := parent.Children[0]
	if sibling == leaf {
		sibling = parent.Children[1]
	}
	*parent = *sibling
	return true
}

// ToggleSplit flips the orientation of the node that splits k from its
// sibling. Returns false when k is absent or alone in the tree.
func (t *Tree) ToggleSplit(k Key) bool {
	_, parent := t.find(k)
	if parent == nil {
		return false
	}
	parent.Orientation = parent.Orientation.Flip()
	return true
}

// AdjustRatio grows the share of k's side of its parent split by delta.
func (t *Tree) AdjustRatio(k Key, delta float64) bool {
	leaf, parent := t.find(k)
	if parent == nil {
		return false
	}
	if parent.Children[0] == leaf {
		parent.Ratio = ClampRatio(parent.Ratio + delta)
	} else {
		parent.Ratio = ClampRatio(parent.Ratio - delta)
	}
	return true
}

// Compute subdivides frame across the leaves. Leaves for which visible
// returns false keep their place in the tree but receive no tile; their
// sibling subtree takes the whole rectangle instead.
func (t *Tree) Compute(frame Rect, gaps Gaps, visible func(Key) bool) []Tile {
	if visible == nil {
		visible = func(Key) bool { return true }
	}
	var tiles []Tile
	var place func(n *Node, r Rect)
	place = func(n *Node, r Rect) {
		if n == nil {
			return
		}
		if n.IsLeaf() {
			if visible(n.Window) {
				tiles = append(tiles, Tile{Window: n.Window, Frame: r})
			}
			return
		}
		firstVisible := anyVisible(n.Children[0], visible)
		secondVisible := anyVisible(n.Children[1], visible)
		switch {
		case firstVisible && secondVisible:
			a, b := Split(r, n.Orientation, n.Ratio, gaps.Inner)
			place(n.Children[0], a)
			place(n.Children[1], b)
		case firstVisible:
			place(n.Children[0], r)
		case secondVisible:
			place(n.Children[1], r)
		}
	}
	place(t.Root, frame.Inset(gaps.Outer))
	return tiles
}

func anyVisible(n *Node, visible func(Key) bool) bool {
	if n == nil {
		return false
	}
	if n.IsLeaf() {
		return visible(n.Window)
	}
	return anyVisible(n.Children[0], visible) || anyVisible(n.Children[1], visible)
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{Root: cloneNode(t.Root), Orientation: t.Orientation, Ratio: t.Ratio}
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Children = [2]*Node{cloneNode(n.Children[0]), cloneNode(n.Children[1])}
	return &c
}
