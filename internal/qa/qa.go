// Package qa implements the per-department QA analyzer. The reference
// implementation (original_source/src/pipeline/qa.rs) delegates these
// aggregates to an embedded DuckDB instance; no SQL engine with a spatial
// extension is evidenced anywhere in the example pack (see DESIGN.md), so
// the same aggregates are computed directly over in-memory slices using
// Go maps/sorts, with identical output semantics.
package qa

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

// distanceTierThresholds mirrors original_source/src/pipeline/qa.rs's
// qa_distance_tiers thresholds.
var distanceTierThresholds = []float64{5, 50, 100, 250, 500, 1000, 1500}

// precisionBins mirrors spec.md's qa_precision.csv bin scheme (distinct
// from original_source's coarser qa_precision_{dept}.csv, see DESIGN.md).
var precisionBins = []struct {
	label    string
	lo, hi   float64 // hi is exclusive; hi<0 means "no upper bound"
}{
	{"0-1", 0, 1},
	{"1-2", 1, 2},
	{"2-5", 2, 5},
	{"5-10", 5, 10},
	{"10-15", 10, 15},
	{"15-25", 15, 25},
	{"25-50", 25, 50},
	{"50-100", 50, 100},
	{"100-250", 100, 250},
	{"250-500", 250, 500},
	{"500-1000", 500, 1000},
	{"1000-1500", 1000, 1500},
	{">1500", 1500, -1},
}

// distanceCategoryBins mirrors original_source's qa_distance_categories_{dept}.csv,
// kept as a supplemented artifact (see SPEC_FULL.md §4.6).
var distanceCategoryBins = []struct {
	label  string
	lo, hi float64
}{
	{"0-100", 0, 100},
	{"100-250", 100, 250},
	{"250-500", 250, 500},
	{"500-1000", 500, 1000},
	{"1000-1500", 1000, 1500},
	{">1500", 1500, -1},
}

// Summary is the in-memory result of analyzing one department, also
// serving as the building block for the national aggregator.
type Summary struct {
	CodeDept         string
	TotalParcels     int
	TotalAddresses   int
	MatchedParcels   int
	MatchedAddresses int
	AvgConfidence    float64
	MatchTypeCounts  map[model.MatchType]int
	DistanceTiers    []TierRow
	Precision        []BinRow
	DistanceCategory []BinRow
	WorstCommunes    []CommuneRow
	AddressSummary   AddressSummaryRow
}

// TierRow is one row of qa_distance_tiers.csv.
type TierRow struct {
	ThresholdM     float64
	MatchedParcels int
	TotalParcels   int
	CoveragePct    float64
}

// BinRow is one row of a distance-histogram CSV (qa_precision.csv or
// qa_distance_categories.csv).
type BinRow struct {
	Bin   string
	Count int
}

// CommuneRow is one row of qa_worst_communes.csv.
type CommuneRow struct {
	CodeINSEE    string
	TotalParcels int
	MatchedParcels int
	CoveragePct  float64
}

// bestPerParcel reduces matches to the single best row per parcel by
// priority tuple (priority, distance_m, id_ban), matching both the
// reference SQL's window function and spec.md §4.6.
func bestPerParcel(matches []model.MatchOutput) map[string]model.MatchOutput {
	best := make(map[string]model.MatchOutput)
	for _, m := range matches {
		if m.IDParcelle == "" {
			continue
		}
		cur, ok := best[m.IDParcelle]
		if !ok || isBetter(m, cur) {
			best[m.IDParcelle] = m
		}
	}
	return best
}

func isBetter(a, b model.MatchOutput) bool {
	if a.MatchType.Priority() != b.MatchType.Priority() {
		return a.MatchType.Priority() < b.MatchType.Priority()
	}
	if a.DistanceM != b.DistanceM {
		return a.DistanceM < b.DistanceM
	}
	return a.IDBan < b.IDBan
}

// Analyze computes the full Summary for one department.
func Analyze(codeDept string, parcels []model.Parcel, addresses []model.Address, matches []model.MatchOutput) Summary {
	s := Summary{
		CodeDept:        codeDept,
		TotalParcels:    len(parcels),
		TotalAddresses:  len(addresses),
		MatchTypeCounts: make(map[model.MatchType]int),
	}

	for _, m := range matches {
		s.MatchTypeCounts[m.MatchType]++
	}

	best := bestPerParcel(matches)
	s.MatchedParcels = len(best)

	bestAddr := bestPerAddressMatch(matches)
	s.MatchedAddresses = len(bestAddr)
	if len(bestAddr) > 0 {
		var confSum float64
		for _, m := range bestAddr {
			confSum += float64(m.Confidence)
		}
		s.AvgConfidence = confSum / float64(len(bestAddr))
	}

	s.DistanceTiers = distanceTiers(best, s.TotalParcels)
	s.Precision = precisionHistogram(best)
	s.DistanceCategory = distanceCategoryHistogram(best)
	s.WorstCommunes = worstCommunes(parcels, best)
	s.AddressSummary = summarizeAddresses(addresses, bestAddr)

	return s
}

// AddressSummaryRow is the single-row per-department summary written to
// qa_addresses_{dept}.csv: counts of addresses by best-per-address match
// type and by distance bin, matching
// original_source/src/pipeline/qa.rs's QA Addresses query.
type AddressSummaryRow struct {
	TotalAddresses     int
	MatchedAddresses   int
	UnmatchedAddresses int
	CoveragePct        float64
	ResPreExisting     int
	ResInside          int
	ResBorderNear      int
	ResFallbackNearest int
	ResNone            int
	Dist0To5           int
	Dist5To15          int
	Dist15To50         int
	DistGT50           int
}

// bestPerAddressMatch reduces matches to the single best row per address
// by priority tuple (priority, distance_m), matching the reference's
// ROW_NUMBER-over-priority window.
func bestPerAddressMatch(matches []model.MatchOutput) map[string]model.MatchOutput {
	best := make(map[string]model.MatchOutput)
	for _, m := range matches {
		cur, ok := best[m.IDBan]
		if !ok || isBetter(m, cur) {
			best[m.IDBan] = m
		}
	}
	return best
}

func summarizeAddresses(addresses []model.Address, best map[string]model.MatchOutput) AddressSummaryRow {
	var r AddressSummaryRow
	r.TotalAddresses = len(addresses)
	for _, a := range addresses {
		m, matched := best[a.ID]
		if !matched {
			r.UnmatchedAddresses++
			r.ResNone++
			continue
		}
		r.MatchedAddresses++
		switch m.MatchType {
		case model.MatchPreExisting:
			r.ResPreExisting++
		case model.MatchInside:
			r.ResInside++
		case model.MatchBorderNear:
			r.ResBorderNear++
		case model.MatchFallbackNearest:
			r.ResFallbackNearest++
		}
		d := float64(m.DistanceM)
		switch {
		case d <= 5:
			r.Dist0To5++
		case d <= 15:
			r.Dist5To15++
		case d <= 50:
			r.Dist15To50++
		default:
			r.DistGT50++
		}
	}
	if r.TotalAddresses > 0 {
		r.CoveragePct = 100.0 * float64(r.MatchedAddresses) / float64(r.TotalAddresses)
	}
	return r
}

func distanceTiers(best map[string]model.MatchOutput, totalParcels int) []TierRow {
	rows := make([]TierRow, 0, len(distanceTierThresholds))
	for _, t := range distanceTierThresholds {
		matched := 0
		for _, m := range best {
			if m.MatchType == model.MatchPreExisting || m.MatchType == model.MatchInside || float64(m.DistanceM) <= t {
				matched++
			}
		}
		coverage := 0.0
		if totalParcels > 0 {
			coverage = 100.0 * float64(matched) / float64(totalParcels)
		}
		rows = append(rows, TierRow{ThresholdM: t, MatchedParcels: matched, TotalParcels: totalParcels, CoveragePct: coverage})
	}
	return rows
}

// precisionHistogram bins best-per-parcel distances, excluding
// PreExisting/Inside matches (spec.md §4.6).
func precisionHistogram(best map[string]model.MatchOutput) []BinRow {
	counts := make([]int, len(precisionBins))
	for _, m := range best {
		if m.MatchType == model.MatchPreExisting || m.MatchType == model.MatchInside {
			continue
		}
		d := float64(m.DistanceM)
		for i, b := range precisionBins {
			if d >= b.lo && (b.hi < 0 || d < b.hi) {
				counts[i]++
				break
			}
		}
	}
	rows := make([]BinRow, len(precisionBins))
	for i, b := range precisionBins {
		rows[i] = BinRow{Bin: b.label, Count: counts[i]}
	}
	return rows
}

func distanceCategoryHistogram(best map[string]model.MatchOutput) []BinRow {
	counts := make([]int, len(distanceCategoryBins))
	for _, m := range best {
		d := float64(m.DistanceM)
		for i, b := range distanceCategoryBins {
			if d >= b.lo && (b.hi < 0 || d < b.hi) {
				counts[i]++
				break
			}
		}
	}
	rows := make([]BinRow, len(distanceCategoryBins))
	for i, b := range distanceCategoryBins {
		rows[i] = BinRow{Bin: b.label, Count: counts[i]}
	}
	return rows
}

func worstCommunes(parcels []model.Parcel, best map[string]model.MatchOutput) []CommuneRow {
	totalByCommune := make(map[string]int)
	for _, p := range parcels {
		totalByCommune[p.CodeINSEE]++
	}
	matchedByCommune := make(map[string]int)
	parcelCommune := make(map[string]string, len(parcels))
	for _, p := range parcels {
		parcelCommune[p.ID] = p.CodeINSEE
	}
	for pid := range best {
		matchedByCommune[parcelCommune[pid]]++
	}

	var rows []CommuneRow
	for commune, total := range totalByCommune {
		matched := matchedByCommune[commune]
		coverage := 0.0
		if total > 0 {
			coverage = 100.0 * float64(matched) / float64(total)
		}
		rows = append(rows, CommuneRow{CodeINSEE: commune, TotalParcels: total, MatchedParcels: matched, CoveragePct: coverage})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CoveragePct != rows[j].CoveragePct {
			return rows[i].CoveragePct < rows[j].CoveragePct
		}
		return rows[i].TotalParcels > rows[j].TotalParcels
	})
	return rows
}

// WriteCSVs writes qa_distance_tiers, qa_precision, qa_distance_categories,
// qa_worst_communes and qa_addresses CSVs to dir, following
// internal/engine/exporter.go's stdlib encoding/csv writer idiom.
func (s Summary) WriteCSVs(dir string) error {
	if err := writeCSV(fmt.Sprintf("%s/qa_distance_tiers_%s.csv", dir, s.CodeDept),
		[]string{"threshold_m", "matched_parcels", "total_parcels", "coverage_pct"},
		func(w *csv.Writer) error {
			for _, r := range s.DistanceTiers {
				if err := w.Write([]string{
					fmt.Sprintf("%g", r.ThresholdM),
					fmt.Sprintf("%d", r.MatchedParcels),
					fmt.Sprintf("%d", r.TotalParcels),
					fmt.Sprintf("%.4f", r.CoveragePct),
				}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
		return err
	}

	if err := writeCSV(fmt.Sprintf("%s/qa_precision_%s.csv", dir, s.CodeDept),
		[]string{"bin", "count"},
		func(w *csv.Writer) error {
			for _, r := range s.Precision {
				if err := w.Write([]string{r.Bin, fmt.Sprintf("%d", r.Count)}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
		return err
	}

	if err := writeCSV(fmt.Sprintf("%s/qa_distance_categories_%s.csv", dir, s.CodeDept),
		[]string{"bin", "count"},
		func(w *csv.Writer) error {
			for _, r := range s.DistanceCategory {
				if err := w.Write([]string{r.Bin, fmt.Sprintf("%d", r.Count)}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
		return err
	}

	if err := writeCSV(fmt.Sprintf("%s/qa_worst_communes_%s.csv", dir, s.CodeDept),
		[]string{"code_insee", "total_parcels", "matched_parcels", "coverage_pct"},
		func(w *csv.Writer) error {
			for _, r := range s.WorstCommunes {
				if err := w.Write([]string{
					r.CodeINSEE,
					fmt.Sprintf("%d", r.TotalParcels),
					fmt.Sprintf("%d", r.MatchedParcels),
					fmt.Sprintf("%.4f", r.CoveragePct),
				}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
		return err
	}

	return writeCSV(fmt.Sprintf("%s/qa_addresses_%s.csv", dir, s.CodeDept),
		[]string{
			"total_addresses", "matched_addresses", "unmatched_addresses", "coverage_pct",
			"res_pre", "res_inside", "res_border_near", "res_fallback", "res_none",
			"dist_0_5", "dist_5_15", "dist_15_50", "dist_gt_50",
		},
		func(w *csv.Writer) error {
			r := s.AddressSummary
			return w.Write([]string{
				fmt.Sprintf("%d", r.TotalAddresses),
				fmt.Sprintf("%d", r.MatchedAddresses),
				fmt.Sprintf("%d", r.UnmatchedAddresses),
				fmt.Sprintf("%.4f", r.CoveragePct),
				fmt.Sprintf("%d", r.ResPreExisting),
				fmt.Sprintf("%d", r.ResInside),
				fmt.Sprintf("%d", r.ResBorderNear),
				fmt.Sprintf("%d", r.ResFallbackNearest),
				fmt.Sprintf("%d", r.ResNone),
				fmt.Sprintf("%d", r.Dist0To5),
				fmt.Sprintf("%d", r.Dist5To15),
				fmt.Sprintf("%d", r.Dist15To50),
				fmt.Sprintf("%d", r.DistGT50),
			})
		})
}

func writeCSV(path string, header []string, body func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("qa: create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("qa: write header %s: %w", path, err)
	}
	if err := body(w); err != nil {
		return fmt.Errorf("qa: write rows %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}
