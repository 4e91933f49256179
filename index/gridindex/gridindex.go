// Package gridindex implements a uniform grid over a fixed region.
// Every item is registered in each cell its bounds overlap, so a search
// only scans the cells under the query rectangle. Cheap and predictable
// when items are similarly sized; degrades when bounds span many cells.
package gridindex

import (
	"fmt"
	"math"

	"github.com/spatial-query-bench/qmark/index"
	"github.com/spatial-query-bench/qmark/persist"
)

var _ index.Index = (*GridIndex)(nil)

type cellKey struct {
	col, row int
}

type GridIndex struct {
	region   index.Rect
	cellSize float64
	cells    map[cellKey][]index.Item

	// tracked doubles as the membership check and the item count;
	// the cell lists can hold the same item several times over.
	tracked map[index.Item]struct{}
}

// New creates a grid over (x1,y1)-(x2,y2) with square cells of the
// given size. Bounds outside the region are clamped to the border
// cells.
func New(x1, y1, x2, y2, cellSize float64) (*GridIndex, error) {
	if x1 > x2 || y1 > y2 {
		return nil, fmt.Errorf("gridindex: region (%v,%v)-(%v,%v): %w", x1, y1, x2, y2, index.ErrInvalidBounds)
	}
	if cellSize <= 0 {
		return nil, fmt.Errorf("gridindex: cell size %v, must be > 0", cellSize)
	}
	return &GridIndex{
		region:   index.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
		cellSize: cellSize,
		cells:    make(map[cellKey][]index.Item),
		tracked:  make(map[index.Item]struct{}),
	}, nil
}

func (g *GridIndex) cellAt(x, y float64) cellKey {
	return cellKey{
		col: int(math.Floor((min(max(x, g.region.X1), g.region.X2) - g.region.X1) / g.cellSize)),
		row: int(math.Floor((min(max(y, g.region.Y1), g.region.Y2) - g.region.Y1) / g.cellSize)),
	}
}

// eachCell visits every cell key the rectangle overlaps.
func (g *GridIndex) eachCell(r index.Rect, f func(k cellKey)) {
	lo := g.cellAt(r.X1, r.Y1)
	hi := g.cellAt(r.X2, r.Y2)
	for col := lo.col; col <= hi.col; col++ {
		for row := lo.row; row <= hi.row; row++ {
			f(cellKey{col, row})
		}
	}
}

func (g *GridIndex) Insert(it index.Item) error {
	r := it.Bounds()
	if !r.Valid() {
		return fmt.Errorf("gridindex: insert: %w", index.ErrInvalidBounds)
	}
	if _, ok := g.tracked[it]; ok {
		return fmt.Errorf("gridindex: insert: %w", index.ErrDuplicate)
	}
	g.eachCell(r, func(k cellKey) {
		g.cells[k] = append(g.cells[k], it)
	})
	g.tracked[it] = struct{}{}
	return nil
}

func (g *GridIndex) Remove(it index.Item) error {
	if _, ok := g.tracked[it]; !ok {
		return fmt.Errorf("gridindex: remove: %w", index.ErrUntracked)
	}
	g.eachCell(it.Bounds(), func(k cellKey) {
		items := g.cells[k]
		for i := range items {
			if items[i] == it {
				items[i] = items[len(items)-1]
				items[len(items)-1] = nil
				g.cells[k] = items[:len(items)-1]
				break
			}
		}
		if len(g.cells[k]) == 0 {
			delete(g.cells, k)
		}
	})
	delete(g.tracked, it)
	return nil
}

// Search scans the cells under the query rectangle, deduplicating items
// that were registered in several of them. Returning false from iter
// stops the scan.
func (g *GridIndex) Search(x1, y1, x2, y2 float64, iter func(item index.Item) bool) {
	q := index.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if !q.Overlaps(g.region) {
		return
	}
	seen := make(map[index.Item]struct{})
	stopped := false
	g.eachCell(q, func(k cellKey) {
		if stopped {
			return
		}
		for _, it := range g.cells[k] {
			if _, dup := seen[it]; dup {
				continue
			}
			seen[it] = struct{}{}
			if it.Bounds().Overlaps(q) {
				if !iter(it) {
					stopped = true
					return
				}
			}
		}
	})
}

func (g *GridIndex) Count() int { return len(g.tracked) }

func (g *GridIndex) Clear() {
	g.cells = make(map[cellKey][]index.Item)
	g.tracked = make(map[index.Item]struct{})
}

func (g *GridIndex) SaveTo(path string) error {
	items := make([]index.Item, 0, len(g.tracked))
	for it := range g.tracked {
		items = append(items, it)
	}
	return persist.Save(path, items)
}

func (g *GridIndex) LoadFrom(path string) error {
	items, err := persist.Load(path)
	if err != nil {
		return err
	}
	g.Clear()
	for _, it := range items {
		if err := g.Insert(it); err != nil {
			return err
		}
	}
	return nil
}

func (g *GridIndex) Close() error { return nil }
