package quadtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spatial-query-bench/qmark/index"
)

type box struct {
	r index.Rect
}

func (b *box) Bounds() index.Rect { return b.r }

func mkbox(x1, y1, x2, y2 float64) *box {
	return &box{r: index.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

func collect(t *Quadtree, x1, y1, x2, y2 float64) []index.Item {
	var out []index.Item
	t.Search(x1, y1, x2, y2, func(it index.Item) bool {
		out = append(out, it)
		return true
	})
	return out
}

// nwChain descends the NW children from the root and returns the
// deepest node on that path plus how many levels it walked.
func nwChain(t *Quadtree) (*node, int) {
	n := t.root
	levels := 0
	for n.children != nil {
		n = n.children[quadNW]
		levels++
	}
	return n, levels
}

func TestNewValidation(t *testing.T) {
	_, err := New(100, 0, 0, 100, 2, 4)
	assert.ErrorIs(t, err, index.ErrInvalidBounds)

	_, err = New(0, 0, 100, 100, 0, 4)
	assert.Error(t, err)

	_, err = New(0, 0, 100, 100, 2, -1)
	assert.Error(t, err)
}

func TestInsertSubdividesIntoNWCorner(t *testing.T) {
	tr, err := New(0, 0, 100, 100, 2, 4)
	require.NoError(t, err)

	boxes := []*box{mkbox(0, 0, 5, 5), mkbox(1, 1, 6, 6), mkbox(2, 2, 7, 7)}
	for _, b := range boxes {
		require.NoError(t, tr.Insert(b))
	}

	// Three items in one corner with maxChildren=2 force subdivision,
	// recursing down the NW chain until the depth budget runs out.
	require.NotNil(t, tr.root.children)
	assert.Empty(t, tr.root.items, "all items belong below the root")
	leaf, levels := nwChain(tr)
	assert.Equal(t, 4, levels)
	assert.Equal(t, 0, leaf.depth)

	// The two smallest boxes share the deepest leaf; (2,2,7,7) crosses
	// that leaf's parent midpoint and stays one level up.
	assert.Same(t, leaf, tr.owners[boxes[0]])
	assert.Same(t, leaf, tr.owners[boxes[1]])
	assert.Same(t, leaf.parent, tr.owners[boxes[2]])

	got := collect(tr, 0, 0, 100, 100)
	assert.Len(t, got, 3)
	for _, b := range boxes {
		assert.Contains(t, got, index.Item(b))
	}
}

func TestRemoveKeepsOccupiedChild(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	a, b, c := mkbox(0, 0, 5, 5), mkbox(1, 1, 6, 6), mkbox(2, 2, 7, 7)
	for _, it := range []*box{a, b, c} {
		require.NoError(t, tr.Insert(it))
	}

	require.NoError(t, tr.Remove(b))
	assert.Equal(t, 2, tr.Count())
	assert.NotNil(t, tr.root.children, "clean must not merge while a child still holds items")
}

func TestRemoveCascadesMergeToRoot(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	a, b, c := mkbox(0, 0, 5, 5), mkbox(1, 1, 6, 6), mkbox(2, 2, 7, 7)
	for _, it := range []*box{a, b, c} {
		require.NoError(t, tr.Insert(it))
	}

	require.NoError(t, tr.Remove(b))
	require.NoError(t, tr.Remove(a))
	require.NoError(t, tr.Remove(c))

	assert.Equal(t, 0, tr.Count())
	assert.Nil(t, tr.root.children, "empty tree must merge back to a single leaf")
}

func TestSearchDisjointRect(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	for _, it := range []*box{mkbox(0, 0, 5, 5), mkbox(1, 1, 6, 6), mkbox(2, 2, 7, 7)} {
		require.NoError(t, tr.Insert(it))
	}
	assert.Empty(t, collect(tr, 200, 200, 300, 300))
}

func TestStraddlerStaysAtAncestor(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 4)
	mid := mkbox(40, 40, 60, 60) // crosses the root midpoint on both axes
	nw := mkbox(1, 1, 2, 2)
	se := mkbox(60, 60, 61, 61)
	for _, it := range []*box{mid, nw, se} {
		require.NoError(t, tr.Insert(it))
	}

	require.NotNil(t, tr.root.children)
	assert.Contains(t, tr.root.items, index.Item(mid))

	// The straddler is still found by queries on either side.
	assert.Contains(t, collect(tr, 0, 0, 45, 45), index.Item(mid))
	assert.Contains(t, collect(tr, 55, 55, 100, 100), index.Item(mid))
}

func TestSubdivideRedistributesEveryItem(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	straddler := mkbox(40, 40, 60, 60)
	b := mkbox(1, 1, 2, 2)
	c := mkbox(3, 3, 4, 4)

	// Order matters: the straddler sits at slot 0 so the swap-remove
	// during redistribution moves c into a slot that was already
	// scanned. Both b and c must still end up below the root.
	require.NoError(t, tr.Insert(straddler))
	require.NoError(t, tr.Insert(b))
	require.NoError(t, tr.Insert(c))

	require.NotNil(t, tr.root.children)
	assert.Equal(t, []index.Item{straddler}, tr.root.items)
	assert.NotSame(t, tr.root, tr.owners[b])
	assert.NotSame(t, tr.root, tr.owners[c])
	assert.Equal(t, 3, tr.Count())
}

func TestDepthBudgetZeroNeverSubdivides(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 0)
	for i := 0; i < 32; i++ {
		require.NoError(t, tr.Insert(mkbox(float64(i), 0, float64(i)+0.5, 1)))
	}
	assert.Nil(t, tr.root.children)
	assert.Equal(t, 32, tr.Count())
}

func TestCleanBlockedBySubdividedChild(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 4)
	a := mkbox(1, 1, 2, 2)     // NW of NW
	b := mkbox(26, 26, 30, 30) // SE of NW
	c := mkbox(60, 1, 61, 2)   // NE
	for _, it := range []*box{a, b, c} {
		require.NoError(t, tr.Insert(it))
	}

	// The NW child is subdivided with no direct items of its own.
	nw := tr.root.children[quadNW]
	require.NotNil(t, nw.children)
	require.Empty(t, nw.items)

	// Removing c empties the NE leaf; the merge check at the root must
	// be blocked by the subdivided NW child, or a and b would be lost.
	require.NoError(t, tr.Remove(c))
	assert.NotNil(t, tr.root.children)
	assert.ElementsMatch(t, []index.Item{a, b}, collect(tr, 0, 0, 100, 100))

	// Draining the NW subtree merges everything back to a single leaf.
	require.NoError(t, tr.Remove(a))
	assert.NotNil(t, tr.root.children)
	require.NoError(t, tr.Remove(b))
	assert.Nil(t, tr.root.children)
}

func TestRemovePreserveKeepsWarrantedPartition(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	items := []*box{
		mkbox(1, 1, 2, 2), mkbox(3, 3, 4, 4), mkbox(5, 5, 6, 6),
		mkbox(60, 1, 61, 2), mkbox(63, 3, 64, 4), mkbox(65, 5, 66, 6),
	}
	for _, it := range items {
		require.NoError(t, tr.Insert(it))
	}
	require.NotNil(t, tr.root.children)

	// Six items minus one is still more than maxChildren: the
	// partition stays.
	require.NoError(t, tr.RemovePreserve(items[0]))
	assert.NotNil(t, tr.root.children)
	assert.Equal(t, 5, tr.Count())
}

func TestRemovePreserveCollapsesDeepSubtree(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 4)
	a := mkbox(1, 1, 2, 2)     // ends up two levels below the root
	b := mkbox(26, 26, 30, 30) // sibling subquadrant of NW
	require.NoError(t, tr.Insert(a))
	require.NoError(t, tr.Insert(b))
	require.NotNil(t, tr.root.children[quadNW].children)

	// After b goes, one item no longer justifies any partition; the
	// collapse must hoist a from two levels down, not just one.
	require.NoError(t, tr.RemovePreserve(b))
	assert.Nil(t, tr.root.children)
	assert.Equal(t, []index.Item{a}, tr.root.items)

	// The hoisted item's back-reference moved with it.
	require.NoError(t, tr.Remove(a))
	assert.Equal(t, 0, tr.Count())
}

func TestRemoveVariantsAgreeOnMembership(t *testing.T) {
	build := func() (*Quadtree, []*box) {
		tr, _ := New(0, 0, 100, 100, 2, 5)
		var items []*box
		for i := 0; i < 10; i++ {
			x := float64(i * 9)
			items = append(items, mkbox(x, x, x+4, x+4))
		}
		for _, it := range items {
			require.NoError(t, tr.Insert(it))
		}
		return tr, items
	}

	fast, items := build()
	preserve, items2 := build()
	for i := 0; i < len(items); i += 2 {
		require.NoError(t, fast.Remove(items[i]))
		require.NoError(t, preserve.RemovePreserve(items2[i]))
	}

	got := collect(fast, 0, 0, 100, 100)
	want := collect(preserve, 0, 0, 100, 100)
	assert.Equal(t, len(want), len(got))
	for i, it := range items {
		if i%2 == 0 {
			assert.NotContains(t, got, index.Item(it))
			assert.NotContains(t, want, index.Item(items2[i]))
		} else {
			assert.Contains(t, got, index.Item(it))
			assert.Contains(t, want, index.Item(items2[i]))
		}
	}
}

func TestCountReturnsToBaseline(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	require.Equal(t, 0, tr.Count())

	var items []*box
	for i := 0; i < 20; i++ {
		x := float64(i * 4)
		items = append(items, mkbox(x, 1, x+3, 3))
	}
	for _, it := range items {
		require.NoError(t, tr.Insert(it))
	}
	require.Equal(t, 20, tr.Count())

	for i, it := range items {
		if i%2 == 0 {
			require.NoError(t, tr.Remove(it))
		} else {
			require.NoError(t, tr.RemovePreserve(it))
		}
	}
	assert.Equal(t, 0, tr.Count())
}

func TestFullRegionSearchYieldsEachItemOnce(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 6)
	seen := make(map[index.Item]int)
	var items []*box
	for i := 0; i < 25; i++ {
		x := float64((i * 17) % 95)
		y := float64((i * 29) % 95)
		items = append(items, mkbox(x, y, x+2, y+2))
	}
	for _, it := range items {
		require.NoError(t, tr.Insert(it))
	}
	tr.Search(0, 0, 100, 100, func(it index.Item) bool {
		seen[it]++
		return true
	})
	require.Len(t, seen, 25)
	for it, n := range seen {
		assert.Equal(t, 1, n, "item %v visited more than once", it)
	}
}

func TestSearchEarlyStop(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 4)
	for _, it := range []*box{
		mkbox(1, 1, 2, 2), mkbox(60, 1, 61, 2),
		mkbox(1, 60, 2, 61), mkbox(60, 60, 61, 61),
	} {
		require.NoError(t, tr.Insert(it))
	}

	visited := 0
	tr.Search(0, 0, 100, 100, func(index.Item) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited, "false from the callback must unwind the whole traversal")
}

func TestSearchFunc(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 4)
	near := mkbox(10, 10, 12, 12)
	far := mkbox(40, 40, 42, 42)
	require.NoError(t, tr.Insert(near))
	require.NoError(t, tr.Insert(far))

	// Circle of radius 15 around (10,10), pre-pruned by its bounding
	// rectangle.
	inCircle := func(it index.Item) bool {
		r := it.Bounds()
		cx := r.X1 + (r.X2-r.X1)/2
		cy := r.Y1 + (r.Y2-r.Y1)/2
		dx, dy := cx-10, cy-10
		return dx*dx+dy*dy <= 15*15
	}
	var got []index.Item
	tr.SearchFunc(-5, -5, 25, 25, inCircle, func(it index.Item) bool {
		got = append(got, it)
		return true
	})
	assert.Equal(t, []index.Item{near}, got)
}

func TestSearchFuncEarlyStop(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 4)
	for i := 0; i < 8; i++ {
		x := float64(i * 12)
		require.NoError(t, tr.Insert(mkbox(x, 1, x+2, 3)))
	}
	visited := 0
	tr.SearchFunc(0, 0, 100, 100,
		func(index.Item) bool { return true },
		func(index.Item) bool {
			visited++
			return false
		})
	assert.Equal(t, 1, visited, "SearchFunc must honor the same early-stop contract as Search")
}

func TestClear(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	a := mkbox(1, 1, 2, 2)
	for _, it := range []*box{a, mkbox(3, 3, 4, 4), mkbox(5, 5, 6, 6)} {
		require.NoError(t, tr.Insert(it))
	}
	require.NotNil(t, tr.root.children)

	tr.Clear()
	assert.Equal(t, 0, tr.Count())
	assert.Nil(t, tr.root.children)
	assert.Empty(t, collect(tr, 0, 0, 100, 100))

	// Cleared items are untracked; the tree is reusable.
	assert.ErrorIs(t, tr.Remove(a), index.ErrUntracked)
	require.NoError(t, tr.Insert(a))
	assert.Equal(t, 1, tr.Count())
}

func TestInsertErrors(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)

	assert.ErrorIs(t, tr.Insert(mkbox(5, 5, 1, 1)), index.ErrInvalidBounds)

	a := mkbox(1, 1, 2, 2)
	require.NoError(t, tr.Insert(a))
	assert.ErrorIs(t, tr.Insert(a), index.ErrDuplicate)
}

func TestRemoveErrors(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 2, 4)
	a := mkbox(1, 1, 2, 2)

	assert.ErrorIs(t, tr.Remove(a), index.ErrUntracked)
	assert.ErrorIs(t, tr.RemovePreserve(a), index.ErrUntracked)

	require.NoError(t, tr.Insert(a))
	require.NoError(t, tr.Remove(a))
	assert.ErrorIs(t, tr.Remove(a), index.ErrUntracked)

	// A removed item can come back.
	require.NoError(t, tr.Insert(a))
	assert.Equal(t, 1, tr.Count())
}

func TestOutOfRegionItemHeldAtRoot(t *testing.T) {
	tr, _ := New(0, 0, 100, 100, 1, 4)
	outside := mkbox(200, 200, 210, 210)
	require.NoError(t, tr.Insert(outside))
	require.NoError(t, tr.Insert(mkbox(1, 1, 2, 2)))
	require.NoError(t, tr.Insert(mkbox(60, 60, 62, 62)))

	assert.Contains(t, tr.root.items, index.Item(outside))

	// Region pruning happens against the root's region, so a rect
	// beyond it finds nothing, even though the item is held.
	assert.Empty(t, collect(tr, 150, 150, 300, 300))
	assert.NotContains(t, collect(tr, 0, 0, 100, 100), index.Item(outside))

	require.NoError(t, tr.Remove(outside))
	assert.Equal(t, 2, tr.Count())
}
