// Package persist snapshots spatial index contents into a Pebble
// (CockroachDB's LSM storage engine) database, backing the SaveTo and
// LoadFrom operations every index implementation shares. Only item
// bounds are stored: payloads are caller-owned and opaque to the
// indexes, so a reload yields StoredItem values.
package persist

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cockroachdb/pebble"

	"github.com/spatial-query-bench/qmark/index"
)

var _ index.Item = (*StoredItem)(nil)

// StoredItem is an item reconstructed from a snapshot: a sequence ID
// assigned at save time plus the saved bounds.
type StoredItem struct {
	ID   uint64
	Rect index.Rect
}

// Bounds returns the saved bounding box.
func (s *StoredItem) Bounds() index.Rect { return s.Rect }

func open(path string) (*pebble.DB, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	return db, nil
}

// Save writes the bounds of every item to the database at path,
// replacing any previous snapshot there. Items are keyed by their
// position in the slice.
func Save(path string, items []index.Item) error {
	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	b := db.NewBatch()
	defer b.Close()
	// Clear a previous snapshot before writing the new one.
	if err := b.DeleteRange(encodeKey(0), encodeKey(math.MaxUint64), nil); err != nil {
		return fmt.Errorf("persist: save: %w", err)
	}
	for i, it := range items {
		if err := b.Set(encodeKey(uint64(i)), encodeRect(it.Bounds()), nil); err != nil {
			return fmt.Errorf("persist: save item %d: %w", i, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("persist: save: commit: %w", err)
	}
	return nil
}

// Load reads every stored item from the database at path.
func Load(path string) ([]index.Item, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	iter, err := db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("persist: load: %w", err)
	}
	defer iter.Close()

	var items []index.Item
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) != 8 {
			return nil, fmt.Errorf("persist: load: unexpected key length %d", len(k))
		}
		r, err := decodeRect(iter.Value())
		if err != nil {
			return nil, err
		}
		items = append(items, &StoredItem{
			ID:   binary.BigEndian.Uint64(k),
			Rect: r,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("persist: load: %w", err)
	}
	return items, nil
}

// ─── Encoding ─────────────────────────────────────────────────────────────────

// encodeKey encodes an ID as a big-endian 8-byte slice; big-endian
// preserves sort order, which Pebble relies on.
func encodeKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// encodeRect packs the four corners as big-endian float64 bits.
func encodeRect(r index.Rect) []byte {
	b := make([]byte, 32)
	binary.BigEndian.PutUint64(b[0:], math.Float64bits(r.X1))
	binary.BigEndian.PutUint64(b[8:], math.Float64bits(r.Y1))
	binary.BigEndian.PutUint64(b[16:], math.Float64bits(r.X2))
	binary.BigEndian.PutUint64(b[24:], math.Float64bits(r.Y2))
	return b
}

func decodeRect(b []byte) (index.Rect, error) {
	if len(b) != 32 {
		return index.Rect{}, fmt.Errorf("persist: unexpected value length %d", len(b))
	}
	return index.Rect{
		X1: math.Float64frombits(binary.BigEndian.Uint64(b[0:])),
		Y1: math.Float64frombits(binary.BigEndian.Uint64(b[8:])),
		X2: math.Float64frombits(binary.BigEndian.Uint64(b[16:])),
		Y2: math.Float64frombits(binary.BigEndian.Uint64(b[24:])),
	}, nil
}
