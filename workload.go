package main

import (
	"math/rand"

	"github.com/spatial-query-bench/qmark/index"
)

type WorkloadType string

const (
	Streaming WorkloadType = "Streaming (90/10 insert/remove)"
	Churn     WorkloadType = "Churn (50/50 insert/remove)"
	Tracking  WorkloadType = "Tracking (90/10 query/move)"
	Sweep     WorkloadType = "Sweep (large range scans)"
)

// preserver is satisfied by structures offering the quality-preserving
// removal variant; workloads prefer it under churn when available.
type preserver interface {
	RemovePreserve(item index.Item) error
}

type worldItem struct {
	rect index.Rect
}

func (w *worldItem) Bounds() index.Rect { return w.rect }

// world generates items inside a fixed region and tracks which of them
// are currently inserted, so removals always target a live item.
type world struct {
	rng    *rand.Rand
	region index.Rect
	live   []*worldItem
}

func newWorld(seed int64, region index.Rect) *world {
	return &world{rng: rand.New(rand.NewSource(seed)), region: region}
}

func (w *world) randomItem() *worldItem {
	width := w.region.X2 - w.region.X1
	height := w.region.Y2 - w.region.Y1
	x := w.region.X1 + w.rng.Float64()*width*0.99
	y := w.region.Y1 + w.rng.Float64()*height*0.99
	return &worldItem{rect: index.Rect{
		X1: x,
		Y1: y,
		X2: x + 1 + w.rng.Float64()*width*0.01,
		Y2: y + 1 + w.rng.Float64()*height*0.01,
	}}
}

func (w *world) insert(idx index.Index) {
	it := w.randomItem()
	if idx.Insert(it) == nil {
		w.live = append(w.live, it)
	}
}

func (w *world) remove(idx index.Index) {
	if len(w.live) == 0 {
		return
	}
	i := w.rng.Intn(len(w.live))
	it := w.live[i]
	w.live[i] = w.live[len(w.live)-1]
	w.live = w.live[:len(w.live)-1]

	if p, ok := idx.(preserver); ok && w.rng.Intn(2) == 0 {
		_ = p.RemovePreserve(it)
		return
	}
	_ = idx.Remove(it)
}

func (w *world) query(idx index.Index, span float64) {
	x := w.region.X1 + w.rng.Float64()*(w.region.X2-w.region.X1-span)
	y := w.region.Y1 + w.rng.Float64()*(w.region.Y2-w.region.Y1-span)
	idx.Search(x, y, x+span, y+span, func(index.Item) bool { return true })
}

// move relocates a live item: remove, reposition, reinsert.
func (w *world) move(idx index.Index) {
	if len(w.live) == 0 {
		return
	}
	i := w.rng.Intn(len(w.live))
	it := w.live[i]
	if err := idx.Remove(it); err != nil {
		return
	}
	it.rect = w.randomItem().rect
	if idx.Insert(it) != nil {
		w.live[i] = w.live[len(w.live)-1]
		w.live = w.live[:len(w.live)-1]
	}
}

// ExecuteWorkload runs a mixed distribution of ops against the index.
func ExecuteWorkload(idx index.Index, w *world, wType WorkloadType, ops int) {
	span := (w.region.X2 - w.region.X1) * 0.05
	for i := 0; i < ops; i++ {
		choice := w.rng.Intn(100)

		switch wType {
		case Streaming:
			if choice < 90 {
				w.insert(idx)
			} else {
				w.remove(idx)
			}
		case Churn:
			if choice < 50 {
				w.insert(idx)
			} else {
				w.remove(idx)
			}
		case Tracking:
			if choice < 90 {
				w.query(idx, span)
			} else {
				w.move(idx)
			}
		case Sweep:
			w.query(idx, (w.region.X2-w.region.X1)*0.5)
		}
	}
}
