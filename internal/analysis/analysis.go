// Package analysis implements the manifest-driven national analysis
// summarizer, grounded on original_source/src/analysis/mod.rs
// (NationalSummary/RegionalStats, accepted-vs-any dual coverage view,
// weighted regional/national roll-up).
package analysis

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/parquetio"
)

// CoverageThresholdM is the "accepted" distance cutoff for the accepted
// coverage view, matching original_source's COVERAGE_THRESHOLD_M.
const CoverageThresholdM = 1500.0

// ManifestRow is one row of the departments manifest CSV.
type ManifestRow struct {
	CodeDept string
	Region   string
	Nom      string
}

// DeptStats is one department's contribution to the national/regional
// roll-up.
type DeptStats struct {
	CodeDept         string
	Region           string
	Nom              string
	TotalParcels     int
	TotalAddresses   int
	AcceptedMatched  int
	AnyMatched       int
	AcceptedConfSum  float64
	AnyConfSum       float64
}

// RegionalStats aggregates every department in one region.
type RegionalStats struct {
	Region           string
	TotalParcels     int
	TotalAddresses   int
	AcceptedMatched  int
	AnyMatched       int
	AcceptedCoverage float64
	AnyCoverage      float64
	AvgAcceptedConf  float64
	AvgAnyConf       float64
}

// NationalSummary is the top-level roll-up, serialized to
// national_summary.json.
type NationalSummary struct {
	TotalDepartments  int             `json:"total_departments"`
	SkippedMissingMatches  int        `json:"skipped_missing_matches"`
	SkippedMissingParcels  int        `json:"skipped_missing_parcels"`
	InvalidManifestRows    int        `json:"invalid_manifest_rows"`
	TotalParcels      int             `json:"total_parcels"`
	TotalAddresses    int             `json:"total_addresses"`
	AcceptedMatched   int             `json:"accepted_matched"`
	AnyMatched        int             `json:"any_matched"`
	AcceptedCoveragePct float64       `json:"accepted_coverage_pct"`
	AnyCoveragePct    float64         `json:"any_coverage_pct"`
	AvgAcceptedConfidence float64     `json:"avg_accepted_confidence"`
	AvgAnyConfidence  float64         `json:"avg_any_confidence"`
	Regions           []RegionalStats `json:"regions"`
}

// Outcome carries both the computed summary and the row-level defects
// encountered while reading the manifest and per-department inputs.
type Outcome struct {
	Summary               NationalSummary
	InvalidManifestRows   []int
	SkippedMissingMatches []string
	SkippedMissingParcels []string
	DeptRows              []DeptStats
}

// ReadManifest parses the departments manifest CSV. A header row whose
// first column is "dept" or "code_insee" is detected and skipped; rows
// missing dept/region/nom are reported by row number (1-based, excluding
// header) rather than aborting the read.
func ReadManifest(path string) ([]ManifestRow, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: open manifest %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: read manifest %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	start := 0
	if len(records[0]) > 0 {
		first := records[0][0]
		if first == "dept" || first == "code_insee" {
			start = 1
		}
	}

	var rows []ManifestRow
	var invalid []int
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 3 || rec[0] == "" || rec[1] == "" || rec[2] == "" {
			invalid = append(invalid, i-start+1)
			continue
		}
		rows = append(rows, ManifestRow{CodeDept: rec[0], Region: rec[1], Nom: rec[2]})
	}
	return rows, invalid, nil
}

// DeptInputs are the paths an analysis run needs per department.
type DeptInputs struct {
	MatchesParquetPath string
	// TotalParcelsFallback is the department's total parcel count, copied
	// into DeptStats.TotalParcels as given; AnalyzeDepartment does not read
	// a parcel count from any file.
	TotalParcelsFallback int
}

// AnalyzeDepartment computes one department's DeptStats from its matches
// file. Returns ok=false if the matches file is missing (caller should
// count it under SkippedMissingMatches).
func AnalyzeDepartment(row ManifestRow, in DeptInputs) (DeptStats, bool, error) {
	if _, err := os.Stat(in.MatchesParquetPath); err != nil {
		return DeptStats{}, false, nil
	}
	matches, err := parquetio.ReadMatches(in.MatchesParquetPath)
	if err != nil {
		return DeptStats{}, false, fmt.Errorf("analysis: read matches for %s: %w", row.CodeDept, err)
	}

	best := bestPerParcel(matches)
	stats := DeptStats{CodeDept: row.CodeDept, Region: row.Region, Nom: row.Nom, TotalParcels: in.TotalParcelsFallback}

	addrSeen := make(map[string]struct{})
	for _, m := range matches {
		addrSeen[m.IDBan] = struct{}{}
	}
	stats.TotalAddresses = len(addrSeen)

	for _, m := range best {
		stats.AnyMatched++
		stats.AnyConfSum += float64(m.Confidence)
		if isAccepted(m) {
			stats.AcceptedMatched++
			stats.AcceptedConfSum += float64(m.Confidence)
		}
	}
	return stats, true, nil
}

func isAccepted(m model.MatchOutput) bool {
	return m.MatchType == model.MatchPreExisting || m.MatchType == model.MatchInside || float64(m.DistanceM) <= CoverageThresholdM
}

func bestPerParcel(matches []model.MatchOutput) map[string]model.MatchOutput {
	best := make(map[string]model.MatchOutput)
	for _, m := range matches {
		if m.IDParcelle == "" {
			continue
		}
		cur, ok := best[m.IDParcelle]
		if !ok || isBetterMatch(m, cur) {
			best[m.IDParcelle] = m
		}
	}
	return best
}

func isBetterMatch(a, b model.MatchOutput) bool {
	if a.MatchType.Priority() != b.MatchType.Priority() {
		return a.MatchType.Priority() < b.MatchType.Priority()
	}
	if a.DistanceM != b.DistanceM {
		return a.DistanceM < b.DistanceM
	}
	return a.IDBan < b.IDBan
}

// Summarize rolls up per-department stats into regional and national
// summaries, weighting each region/nation's average confidence by matched
// count rather than a naive per-department average.
func Summarize(deptRows []DeptStats, invalidManifestRows, skippedMissingMatches, skippedMissingParcels int) NationalSummary {
	byRegion := make(map[string]*RegionalStats)
	var regionOrder []string

	var ns NationalSummary
	ns.TotalDepartments = len(deptRows)
	ns.InvalidManifestRows = invalidManifestRows
	ns.SkippedMissingMatches = skippedMissingMatches
	ns.SkippedMissingParcels = skippedMissingParcels

	var acceptedConfSum, anyConfSum float64

	for _, d := range deptRows {
		r, ok := byRegion[d.Region]
		if !ok {
			r = &RegionalStats{Region: d.Region}
			byRegion[d.Region] = r
			regionOrder = append(regionOrder, d.Region)
		}
		r.TotalParcels += d.TotalParcels
		r.TotalAddresses += d.TotalAddresses
		r.AcceptedMatched += d.AcceptedMatched
		r.AnyMatched += d.AnyMatched

		ns.TotalParcels += d.TotalParcels
		ns.TotalAddresses += d.TotalAddresses
		ns.AcceptedMatched += d.AcceptedMatched
		ns.AnyMatched += d.AnyMatched
		acceptedConfSum += d.AcceptedConfSum
		anyConfSum += d.AnyConfSum
	}

	sort.Strings(regionOrder)
	for _, region := range regionOrder {
		r := byRegion[region]
		if r.TotalParcels > 0 {
			r.AcceptedCoverage = 100.0 * float64(r.AcceptedMatched) / float64(r.TotalParcels)
			r.AnyCoverage = 100.0 * float64(r.AnyMatched) / float64(r.TotalParcels)
		}
		ns.Regions = append(ns.Regions, *r)
	}

	// regional average confidence requires re-summing per-region conf,
	// done in a second pass to keep the accumulation above simple.
	regionConf := make(map[string][2]float64) // [acceptedSum, anySum]
	for _, d := range deptRows {
		c := regionConf[d.Region]
		c[0] += d.AcceptedConfSum
		c[1] += d.AnyConfSum
		regionConf[d.Region] = c
	}
	for i, r := range ns.Regions {
		c := regionConf[r.Region]
		if r.AcceptedMatched > 0 {
			ns.Regions[i].AvgAcceptedConf = c[0] / float64(r.AcceptedMatched)
		}
		if r.AnyMatched > 0 {
			ns.Regions[i].AvgAnyConf = c[1] / float64(r.AnyMatched)
		}
	}

	if ns.TotalParcels > 0 {
		ns.AcceptedCoveragePct = 100.0 * float64(ns.AcceptedMatched) / float64(ns.TotalParcels)
		ns.AnyCoveragePct = 100.0 * float64(ns.AnyMatched) / float64(ns.TotalParcels)
	}
	if ns.AcceptedMatched > 0 {
		ns.AvgAcceptedConfidence = acceptedConfSum / float64(ns.AcceptedMatched)
	}
	if ns.AnyMatched > 0 {
		ns.AvgAnyConfidence = anyConfSum / float64(ns.AnyMatched)
	}

	return ns
}
