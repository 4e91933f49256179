// Package index defines the shared types and the common interface every
// spatial index in this module implements, so the structures can be
// benchmarked against each other behind one surface.
package index

import "errors"

var (
	// ErrInvalidBounds reports an item whose rectangle is inverted
	// (x1 > x2 or y1 > y2) at insert time.
	ErrInvalidBounds = errors.New("index: invalid bounds")

	// ErrUntracked reports a remove of an item the index is not
	// currently holding.
	ErrUntracked = errors.New("index: item not tracked")

	// ErrDuplicate reports an insert of an item the index already
	// holds. Re-inserting would desynchronize the back-reference
	// table that constant-time removal depends on.
	ErrDuplicate = errors.New("index: item already tracked")
)

// Rect is an axis-aligned bounding box: (X1,Y1) is the top-left corner,
// (X2,Y2) the bottom-right, with X1 <= X2 and Y1 <= Y2.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Valid reports whether the corners are ordered.
func (r Rect) Valid() bool {
	return r.X1 <= r.X2 && r.Y1 <= r.Y2
}

// Overlaps reports whether r and o share any area. Edges count:
// rectangles that only touch still overlap.
func (r Rect) Overlaps(o Rect) bool {
	return r.X1 <= o.X2 && o.X1 <= r.X2 &&
		r.Y1 <= o.Y2 && o.Y1 <= r.Y2
}

// Item is a caller-owned value exposing a bounding box. Indexes read the
// bounds at insert time and never copy or mutate the item; identity (the
// interface value itself) is what tracks it through remove.
type Item interface {
	Bounds() Rect
}

// Index is the common surface of every spatial structure in this module.
// A Search callback returns false to stop the scan early.
type Index interface {
	Insert(item Item) error
	Remove(item Item) error
	Search(x1, y1, x2, y2 float64, iter func(item Item) bool)
	Count() int
	Clear()

	SaveTo(path string) error
	LoadFrom(path string) error
	Close() error
}
