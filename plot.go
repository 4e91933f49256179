package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

type resultRow struct {
	Name      string
	Config    string
	Operation string
	LatencyNs int64
}

func readResults(path string) ([]resultRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plot: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("plot: read %s: %w", path, err)
	}
	var rows []resultRow
	for i, rec := range records {
		if i == 0 || len(rec) < 4 {
			continue // header
		}
		lat, err := strconv.ParseInt(rec[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("plot: row %d: bad latency %q: %w", i, rec[3], err)
		}
		rows = append(rows, resultRow{Name: rec[0], Config: rec[1], Operation: rec[2], LatencyNs: lat})
	}
	return rows, nil
}

// renderCharts draws one bar chart per operation, with a bar for every
// structure/config pair.
func renderCharts(in, dir string) error {
	rows, err := readResults(in)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("plot: mkdir %s: %w", dir, err)
	}

	var ops []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.Operation] {
			seen[r.Operation] = true
			ops = append(ops, r.Operation)
		}
	}

	for _, op := range ops {
		var vals plotter.Values
		var labels []string
		for _, r := range rows {
			if r.Operation != op {
				continue
			}
			vals = append(vals, float64(r.LatencyNs))
			labels = append(labels, r.Name+"\n"+r.Config)
		}

		p := plot.New()
		p.Title.Text = op
		p.Y.Label.Text = "ns/op"

		bars, err := plotter.NewBarChart(vals, vg.Points(24))
		if err != nil {
			return fmt.Errorf("plot: %s: %w", op, err)
		}
		p.Add(bars)
		p.NominalX(labels...)

		out := filepath.Join(dir, chartFileName(op))
		if err := p.Save(8*vg.Inch, 4*vg.Inch, out); err != nil {
			return fmt.Errorf("plot: save %s: %w", out, err)
		}
		log.Info().Str("chart", out).Msg("rendered")
	}
	return nil
}

func chartFileName(op string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, op)
	return strings.ToLower(s) + ".png"
}
