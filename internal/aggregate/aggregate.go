// Package aggregate implements the national aggregator: union-all plus
// re-aggregation of every department's QA artifacts, tolerant of missing
// inputs, grounded on original_source/src/pipeline/aggregate.rs's
// AggregateOutcome/step_aggregate.
package aggregate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/parquetio"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/qa"
)

// Outcome reports what the aggregator produced and what it had to skip.
type Outcome struct {
	Generated     []string
	MissingInputs []string
	Partial       bool
}

func (o *Outcome) missing(name string) {
	o.MissingInputs = append(o.MissingInputs, name)
	o.Partial = true
}

// Aggregate reads every department Summary plus its parcelles_adresses
// parquet file under qaDir, and writes the national roll-ups to outDir:
// france_parcelles_adresses.{parquet,csv}, national_qa_distance_tiers.csv,
// national_qa_precision.csv, national_worst_communes_top100.csv.
func Aggregate(summaries []qa.Summary, qaDir, outDir string) (Outcome, error) {
	var out Outcome
	if len(summaries) == 0 {
		out.missing("qa_summaries")
		return out, nil
	}

	if err := aggregateParcellesAdresses(summaries, qaDir, outDir, &out); err != nil {
		return out, err
	}
	if err := aggregateDistanceTiers(summaries, outDir, &out); err != nil {
		return out, err
	}
	if err := aggregatePrecision(summaries, outDir, &out); err != nil {
		return out, err
	}
	if err := aggregateWorstCommunes(summaries, outDir, &out); err != nil {
		return out, err
	}
	return out, nil
}

// aggregateParcellesAdresses unions every department's
// parcelles_adresses_<dept>.parquet into france_parcelles_adresses, the
// same way original_source/src/pipeline/aggregate.rs's union-all glob
// step works, but over Go-loaded rows instead of DuckDB's read_parquet(glob).
// A department whose file is missing or unreadable is skipped, not fatal.
func aggregateParcellesAdresses(summaries []qa.Summary, qaDir, outDir string, out *Outcome) error {
	var rows []model.MatchOutput
	for _, s := range summaries {
		path := filepath.Join(qaDir, fmt.Sprintf("parcelles_adresses_%s.parquet", s.CodeDept))
		deptRows, err := parquetio.ReadMatches(path)
		if err != nil {
			continue
		}
		rows = append(rows, deptRows...)
	}
	if len(rows) == 0 {
		out.missing("france_parcelles_adresses.{parquet,csv}")
		return nil
	}

	parquetPath := filepath.Join(outDir, "france_parcelles_adresses.parquet")
	w, err := parquetio.NewMatchWriter(parquetPath, 0)
	if err != nil {
		return fmt.Errorf("aggregate: open %s: %w", parquetPath, err)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			w.Close()
			return fmt.Errorf("aggregate: write %s: %w", parquetPath, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("aggregate: close %s: %w", parquetPath, err)
	}

	csvPath := filepath.Join(outDir, "france_parcelles_adresses.csv")
	if err := writeCSV(csvPath, []string{"id_ban", "id_parcelle", "match_type", "distance_m", "confidence"}, func(w *csv.Writer) error {
		for _, r := range rows {
			if err := w.Write([]string{
				r.IDBan, r.IDParcelle, r.MatchType.String(),
				fmt.Sprintf("%g", r.DistanceM), fmt.Sprintf("%d", r.Confidence),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	out.Generated = append(out.Generated, parquetPath, csvPath)
	return nil
}

func aggregateDistanceTiers(summaries []qa.Summary, outDir string, out *Outcome) error {
	type acc struct {
		matched, total int
	}
	byThreshold := make(map[float64]*acc)
	var thresholds []float64
	for _, s := range summaries {
		if len(s.DistanceTiers) == 0 {
			continue
		}
		for _, r := range s.DistanceTiers {
			a, ok := byThreshold[r.ThresholdM]
			if !ok {
				a = &acc{}
				byThreshold[r.ThresholdM] = a
				thresholds = append(thresholds, r.ThresholdM)
			}
			a.matched += r.MatchedParcels
			a.total += r.TotalParcels
		}
	}
	if len(thresholds) == 0 {
		out.missing("national_qa_distance_tiers.csv")
		return nil
	}
	sort.Float64s(thresholds)

	path := filepath.Join(outDir, "national_qa_distance_tiers.csv")
	return writeCSV(path, []string{"threshold_m", "matched_parcels", "total_parcels", "coverage_pct"}, func(w *csv.Writer) error {
		for _, t := range thresholds {
			a := byThreshold[t]
			coverage := 0.0
			if a.total > 0 {
				coverage = 100.0 * float64(a.matched) / float64(a.total)
			}
			if err := w.Write([]string{
				fmt.Sprintf("%g", t), fmt.Sprintf("%d", a.matched), fmt.Sprintf("%d", a.total), fmt.Sprintf("%.4f", coverage),
			}); err != nil {
				return err
			}
		}
		out.Generated = append(out.Generated, path)
		return nil
	})
}

func aggregatePrecision(summaries []qa.Summary, outDir string, out *Outcome) error {
	counts := make(map[string]int)
	var order []string
	seen := make(map[string]bool)
	for _, s := range summaries {
		for _, r := range s.Precision {
			if !seen[r.Bin] {
				seen[r.Bin] = true
				order = append(order, r.Bin)
			}
			counts[r.Bin] += r.Count
		}
	}
	if len(order) == 0 {
		out.missing("national_qa_precision.csv")
		return nil
	}
	sort.Slice(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	path := filepath.Join(outDir, "national_qa_precision.csv")
	return writeCSV(path, []string{"bin", "count"}, func(w *csv.Writer) error {
		for _, bin := range order {
			if err := w.Write([]string{bin, fmt.Sprintf("%d", counts[bin])}); err != nil {
				return err
			}
		}
		out.Generated = append(out.Generated, path)
		return nil
	})
}

func aggregateWorstCommunes(summaries []qa.Summary, outDir string, out *Outcome) error {
	var rows []qa.CommuneRow
	for _, s := range summaries {
		rows = append(rows, s.WorstCommunes...)
	}
	if len(rows) == 0 {
		out.missing("national_worst_communes_top100.csv")
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CoveragePct != rows[j].CoveragePct {
			return rows[i].CoveragePct < rows[j].CoveragePct
		}
		return rows[i].TotalParcels > rows[j].TotalParcels
	})
	if len(rows) > 100 {
		rows = rows[:100]
	}

	path := filepath.Join(outDir, "national_worst_communes_top100.csv")
	return writeCSV(path, []string{"code_insee", "total_parcels", "matched_parcels", "coverage_pct"}, func(w *csv.Writer) error {
		for _, r := range rows {
			if err := w.Write([]string{
				r.CodeINSEE, fmt.Sprintf("%d", r.TotalParcels), fmt.Sprintf("%d", r.MatchedParcels), fmt.Sprintf("%.4f", r.CoveragePct),
			}); err != nil {
				return err
			}
		}
		out.Generated = append(out.Generated, path)
		return nil
	})
}

func writeCSV(path string, header []string, body func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("aggregate: create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("aggregate: write header %s: %w", path, err)
	}
	if err := body(w); err != nil {
		return fmt.Errorf("aggregate: write rows %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}
