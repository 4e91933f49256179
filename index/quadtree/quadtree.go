// Package quadtree implements a region quadtree over axis-aligned
// bounding boxes. Every node covers a rectangle and is either a leaf or
// split into exactly four children tiling it at the midpoint (NW, NE,
// SW, SE). An item lives in the deepest node whose region strictly
// contains its bounds; an item crossing a midpoint stays at the
// ancestor level. A side table maps each item to its holding node, so
// removal never searches the tree.
package quadtree

import (
	"fmt"

	"github.com/spatial-query-bench/qmark/index"
	"github.com/spatial-query-bench/qmark/persist"
)

var _ index.Index = (*Quadtree)(nil)

const (
	quadNW = iota
	quadNE
	quadSW
	quadSE
	quadNone = -1
)

type node struct {
	x1, y1, x2, y2 float64
	mx, my         float64

	// depth is the remaining subdivision budget; a node with depth 0
	// never splits no matter how many items it holds.
	depth  int
	parent *node

	// items is unordered: removal swaps the last element into the
	// gap, so positions are not stable.
	items []index.Item

	// children is nil for a leaf, or exactly four nodes in
	// NW, NE, SW, SE order. Never partially populated.
	children []*node
}

func newNode(x1, y1, x2, y2 float64, depth int, parent *node) *node {
	return &node{
		x1: x1, y1: y1, x2: x2, y2: y2,
		mx:     x1 + (x2-x1)/2,
		my:     y1 + (y2-y1)/2,
		depth:  depth,
		parent: parent,
	}
}

// Quadtree is the tree root plus the item→node back-reference table.
// It is not safe for concurrent use, and the tree must not be mutated
// while a Search is in progress.
type Quadtree struct {
	root        *node
	maxChildren int
	owners      map[index.Item]*node
}

// New creates a tree covering the region (x1,y1)-(x2,y2). A node splits
// once it directly holds more than maxChildren items, down to at most
// maxDepth levels below the root.
func New(x1, y1, x2, y2 float64, maxChildren, maxDepth int) (*Quadtree, error) {
	if x1 > x2 || y1 > y2 {
		return nil, fmt.Errorf("quadtree: region (%v,%v)-(%v,%v): %w", x1, y1, x2, y2, index.ErrInvalidBounds)
	}
	if maxChildren < 1 {
		return nil, fmt.Errorf("quadtree: maxChildren %d, must be >= 1", maxChildren)
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("quadtree: maxDepth %d, must be >= 0", maxDepth)
	}
	return &Quadtree{
		root:        newNode(x1, y1, x2, y2, maxDepth, nil),
		maxChildren: maxChildren,
		owners:      make(map[index.Item]*node),
	}, nil
}

// Insert adds an item to the deepest node that strictly contains its
// bounds, splitting leaves that overflow along the way.
func (t *Quadtree) Insert(it index.Item) error {
	r := it.Bounds()
	if !r.Valid() {
		return fmt.Errorf("quadtree: insert (%v,%v)-(%v,%v): %w", r.X1, r.Y1, r.X2, r.Y2, index.ErrInvalidBounds)
	}
	if _, ok := t.owners[it]; ok {
		return fmt.Errorf("quadtree: insert: %w", index.ErrDuplicate)
	}
	t.root.insert(t, it, r)
	return nil
}

// Remove takes an item out via its back-reference and eagerly merges
// nodes whose children are all empty leaves. Prefer this variant when
// the working set shrinks for good; use RemovePreserve under churn.
func (t *Quadtree) Remove(it index.Item) error {
	n, err := t.detach(it)
	if err != nil {
		return err
	}
	if n.children == nil && n.parent != nil {
		n.parent.clean()
	}
	return nil
}

// RemovePreserve takes an item out but keeps subdivisions that are
// still pulling their weight: an ancestor collapses only once its whole
// subtree fits in a single node again.
func (t *Quadtree) RemovePreserve(it index.Item) error {
	n, err := t.detach(it)
	if err != nil {
		return err
	}
	if n.parent != nil {
		n.parent.cleanPreserve(t)
	}
	return nil
}

func (t *Quadtree) detach(it index.Item) (*node, error) {
	n, ok := t.owners[it]
	if !ok {
		return nil, fmt.Errorf("quadtree: remove: %w", index.ErrUntracked)
	}
	for i := range n.items {
		if n.items[i] == it {
			n.removeAt(i)
			break
		}
	}
	delete(t.owners, it)
	return n, nil
}

// Search calls iter for every item whose bounds overlap the rectangle.
// Returning false from iter stops the whole traversal immediately.
func (t *Quadtree) Search(x1, y1, x2, y2 float64, iter func(item index.Item) bool) {
	q := index.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
	t.root.search(q, func(it index.Item) bool {
		if it.Bounds().Overlaps(q) {
			return iter(it)
		}
		return true
	})
}

// SearchFunc is Search with the rectangle test replaced by an arbitrary
// predicate: the rectangle still prunes whole subtrees, but each
// surviving item is passed to pred, which may test any shape (a circle,
// say). iter runs for items the predicate accepts; returning false from
// iter stops the whole traversal, same contract as Search.
func (t *Quadtree) SearchFunc(x1, y1, x2, y2 float64, pred func(item index.Item) bool, iter func(item index.Item) bool) {
	t.root.search(index.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}, func(it index.Item) bool {
		if pred(it) {
			return iter(it)
		}
		return true
	})
}

// Count returns the number of items in the whole tree.
func (t *Quadtree) Count() int {
	return t.root.count()
}

// Clear resets the tree to a single empty leaf covering the original
// region. Back-references to the old nodes are dropped wholesale.
func (t *Quadtree) Clear() {
	t.root.items = nil
	t.root.children = nil
	t.owners = make(map[index.Item]*node)
}

// SaveTo snapshots the bounds of every held item into a pebble store.
func (t *Quadtree) SaveTo(path string) error {
	items := make([]index.Item, 0, len(t.owners))
	for it := range t.owners {
		items = append(items, it)
	}
	return persist.Save(path, items)
}

// LoadFrom clears the tree and re-inserts every item found in the
// snapshot at path. Loaded items are persist.StoredItem values.
func (t *Quadtree) LoadFrom(path string) error {
	items, err := persist.Load(path)
	if err != nil {
		return err
	}
	t.Clear()
	for _, it := range items {
		if err := t.Insert(it); err != nil {
			return err
		}
	}
	return nil
}

// Close releases nothing; the tree is purely in-memory.
func (t *Quadtree) Close() error { return nil }

// ─── Node operations ──────────────────────────────────────────────────────────

// quadrantFor resolves which child contains r. Leaves always answer
// quadNone. Containment is strict at the midpoint on both axes: a
// bound touching or crossing it stays at this level as a straddler.
// The node's own outer edges are inclusive.
func (n *node) quadrantFor(r index.Rect) int {
	if n.children == nil {
		return quadNone
	}
	west := r.X1 >= n.x1 && r.X2 < n.mx
	east := r.X1 > n.mx && r.X2 <= n.x2
	north := r.Y1 >= n.y1 && r.Y2 < n.my
	south := r.Y1 > n.my && r.Y2 <= n.y2
	switch {
	case north && west:
		return quadNW
	case north && east:
		return quadNE
	case south && west:
		return quadSW
	case south && east:
		return quadSE
	}
	return quadNone
}

func (n *node) insert(t *Quadtree, it index.Item, r index.Rect) {
	if q := n.quadrantFor(r); q != quadNone {
		n.children[q].insert(t, it, r)
		return
	}
	n.items = append(n.items, it)
	t.owners[it] = n
	if n.children == nil && n.depth > 0 && len(n.items) > t.maxChildren {
		n.subdivide(t)
	}
}

// subdivide splits a leaf into four children and pushes down every held
// item that now fits one of them. It runs at most once per node: once
// children exist, growth happens inside them.
func (n *node) subdivide(t *Quadtree) {
	d := n.depth - 1
	n.children = []*node{
		newNode(n.x1, n.y1, n.mx, n.my, d, n), // NW
		newNode(n.mx, n.y1, n.x2, n.my, d, n), // NE
		newNode(n.x1, n.my, n.mx, n.y2, d, n), // SW
		newNode(n.mx, n.my, n.x2, n.y2, d, n), // SE
	}
	// Re-test every item. removeAt swaps the last element into slot i,
	// so i only advances when the item stays; the swapped-in element
	// gets its own turn.
	for i := 0; i < len(n.items); {
		it := n.items[i]
		q := n.quadrantFor(it.Bounds())
		if q == quadNone {
			i++
			continue
		}
		n.removeAt(i)
		n.children[q].insert(t, it, it.Bounds())
	}
}

// removeAt is the O(1) unordered delete: the last element takes the
// removed slot. Item order is not preserved.
func (n *node) removeAt(i int) {
	last := len(n.items) - 1
	n.items[i] = n.items[last]
	n.items[last] = nil
	n.items = n.items[:last]
}

// clean merges this node's children away when all four are empty
// leaves, then cascades to the parent. A child that is itself
// subdivided blocks the merge even with no direct items: its subtree
// may still hold items, and discarding it would orphan their
// back-references.
func (n *node) clean() {
	if n.children == nil {
		return
	}
	for _, c := range n.children {
		if len(c.items) > 0 || c.children != nil {
			return
		}
	}
	n.children = nil
	if n.parent != nil {
		n.parent.clean()
	}
}

// cleanPreserve keeps the partition while the subtree still holds more
// than maxChildren items. Below that, the whole subtree drains into
// this node and the cascade continues upward.
func (n *node) cleanPreserve(t *Quadtree) {
	if n.children == nil {
		return
	}
	if n.count() > t.maxChildren {
		return
	}
	n.collapse(t)
	if n.parent != nil {
		n.parent.cleanPreserve(t)
	}
}

// collapse flattens the entire subtree into n.items, rewriting the
// back-reference of every hoisted item. The count precondition in
// cleanPreserve guarantees the result fits a single node.
func (n *node) collapse(t *Quadtree) {
	for _, c := range n.children {
		if c.children != nil {
			c.collapse(t)
		}
		for _, it := range c.items {
			n.items = append(n.items, it)
			t.owners[it] = n
		}
		c.items = nil
	}
	n.children = nil
}

func (n *node) count() int {
	total := len(n.items)
	for _, c := range n.children {
		total += c.count()
	}
	return total
}

// search visits items under n whose node regions overlap q, in
// NW, NE, SW, SE order. visit returns false to unwind the whole
// traversal; search reports whether the caller should keep going.
func (n *node) search(q index.Rect, visit func(index.Item) bool) bool {
	if q.X1 > n.x2 || n.x1 > q.X2 || q.Y1 > n.y2 || n.y1 > q.Y2 {
		return true
	}
	for _, it := range n.items {
		if !visit(it) {
			return false
		}
	}
	for _, c := range n.children {
		if !c.search(q, visit) {
			return false
		}
	}
	return true
}
