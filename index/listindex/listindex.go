// Package listindex is the brute-force baseline: a flat slice scanned
// linearly on every operation. It exists to give the benchmarks a
// floor, not to be used.
package listindex

import (
	"fmt"
	"slices"

	"github.com/spatial-query-bench/qmark/index"
	"github.com/spatial-query-bench/qmark/persist"
)

var _ index.Index = (*ListIndex)(nil)

type ListIndex struct {
	items []index.Item
}

func New() *ListIndex {
	return &ListIndex{
		items: make([]index.Item, 0),
	}
}

func (l *ListIndex) Insert(it index.Item) error {
	if !it.Bounds().Valid() {
		return fmt.Errorf("listindex: insert: %w", index.ErrInvalidBounds)
	}
	if slices.Contains(l.items, it) {
		return fmt.Errorf("listindex: insert: %w", index.ErrDuplicate)
	}
	l.items = append(l.items, it)
	return nil
}

func (l *ListIndex) Remove(it index.Item) error {
	for i := range l.items {
		if l.items[i] == it {
			l.items = slices.Delete(l.items, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("listindex: remove: %w", index.ErrUntracked)
}

func (l *ListIndex) Search(x1, y1, x2, y2 float64, iter func(item index.Item) bool) {
	q := index.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
	for _, it := range l.items {
		if it.Bounds().Overlaps(q) {
			if !iter(it) {
				return
			}
		}
	}
}

func (l *ListIndex) Count() int { return len(l.items) }

func (l *ListIndex) Clear() { l.items = l.items[:0] }

func (l *ListIndex) SaveTo(path string) error { return persist.Save(path, l.items) }

func (l *ListIndex) LoadFrom(path string) error {
	items, err := persist.Load(path)
	if err != nil {
		return err
	}
	l.items = items
	return nil
}

func (l *ListIndex) Close() error { return nil }
