package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/spatial-query-bench/qmark/index"
	"github.com/spatial-query-bench/qmark/index/gridindex"
	"github.com/spatial-query-bench/qmark/index/listindex"
	"github.com/spatial-query-bench/qmark/index/quadtree"
)

var benchRegion = index.Rect{X1: 0, Y1: 0, X2: 1000, Y2: 1000}

// runBench sweeps every structure/config pair and writes one CSV row
// per measured operation.
func runBench(out string, scale int) error {
	if scale < 1 {
		return fmt.Errorf("bench: scale %d, must be >= 1", scale)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("bench: create %s: %w", out, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"Structure", "Config", "TestType", "LatencyNs", "MemMB", "HeapObjects"})

	for _, mc := range []int{4, 16, 64} {
		qt, err := quadtree.New(benchRegion.X1, benchRegion.Y1, benchRegion.X2, benchRegion.Y2, mc, 8)
		if err != nil {
			return err
		}
		runSuite(w, "Quadtree", fmt.Sprintf("maxChildren=%d", mc), qt, scale)
	}

	for _, cell := range []float64{10, 50} {
		g, err := gridindex.New(benchRegion.X1, benchRegion.Y1, benchRegion.X2, benchRegion.Y2, cell)
		if err != nil {
			return err
		}
		runSuite(w, "Grid", fmt.Sprintf("cell=%v", cell), g, scale)
	}

	// The linear baseline gets a reduced scale: every operation is a
	// full scan and the full load would dominate the run time.
	runSuite(w, "List", "linear", listindex.New(), scale/20)

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("bench: write %s: %w", out, err)
	}
	log.Info().Str("out", out).Msg("benchmark complete")
	return nil
}

func runSuite(w *csv.Writer, name, conf string, idx index.Index, n int) {
	defer idx.Close()
	if n < 1 {
		n = 1 // reduced scales can round down to zero
	}
	log.Info().Str("structure", name).Str("config", conf).Int("scale", n).Msg("running suite")

	wld := newWorld(42, benchRegion)

	// 1. Pure insert (initial load).
	start := time.Now()
	for i := 0; i < n; i++ {
		wld.insert(idx)
	}
	insertLatency := time.Since(start).Nanoseconds() / int64(n)

	stats := GetDetailedMem()
	log.Info().
		Str("structure", name).
		Str("mem", humanize.IBytes(stats.AllocBytes)).
		Uint64("heap_objects", stats.HeapObjects).
		Msg("steady state after load")
	Record(w, BenchResult{
		Name:      name,
		Config:    conf,
		Operation: "Footprint_SteadyState",
		LatencyNs: insertLatency,
		MemMB:     stats.AllocMB,
		Objects:   stats.HeapObjects,
	})

	verifySuite(idx, name, conf)

	// 2. Mixed workloads.
	for _, wt := range []struct {
		typ   WorkloadType
		label string
	}{
		{Streaming, "Workload_Streaming"},
		{Tracking, "Workload_Tracking"},
		{Churn, "Workload_Churn"},
		{Sweep, "Workload_Sweep"},
	} {
		ops := n / 10
		if ops == 0 {
			ops = 1
		}
		start = time.Now()
		ExecuteWorkload(idx, wld, wt.typ, ops)
		Record(w, BenchResult{name, conf, wt.label, time.Since(start).Nanoseconds() / int64(ops), GetDetailedMem().AllocMB, 0})
	}

	// 3. Snapshot round trip through the pebble store.
	dir, err := os.MkdirTemp("", "qmark-snap")
	if err != nil {
		log.Error().Err(err).Msg("snapshot dir")
		return
	}
	defer os.RemoveAll(dir)

	held := idx.Count()
	if held == 0 {
		return
	}
	start = time.Now()
	if err := idx.SaveTo(dir + "/snap"); err != nil {
		log.Error().Err(err).Str("structure", name).Msg("snapshot save")
		return
	}
	Record(w, BenchResult{name, conf, "Snapshot_Save", time.Since(start).Nanoseconds() / int64(held), GetDetailedMem().AllocMB, 0})

	start = time.Now()
	if err := idx.LoadFrom(dir + "/snap"); err != nil {
		log.Error().Err(err).Str("structure", name).Msg("snapshot load")
		return
	}
	Record(w, BenchResult{name, conf, "Snapshot_Load", time.Since(start).Nanoseconds() / int64(held), GetDetailedMem().AllocMB, 0})
}

// verifySuite cross-checks Count against a full-region scan, so a
// broken structure fails loudly instead of producing pretty numbers.
func verifySuite(idx index.Index, name, conf string) {
	found := 0
	idx.Search(benchRegion.X1, benchRegion.Y1, benchRegion.X2+100, benchRegion.Y2+100, func(index.Item) bool {
		found++
		return true
	})
	if found != idx.Count() {
		log.Error().
			Str("structure", name).
			Str("config", conf).
			Int("count", idx.Count()).
			Int("scanned", found).
			Msg("verification mismatch")
	}
}
