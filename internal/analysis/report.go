package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// WriteDepartmentsSummaryCSV writes departments_summary.csv, one row per
// department, in the teacher's stdlib-encoding/csv idiom
// (internal/engine/exporter.go).
func WriteDepartmentsSummaryCSV(path string, rows []DeptStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("analysis: create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	header := []string{
		"code_dept", "region", "nom", "total_parcels", "total_addresses",
		"accepted_matched", "any_matched", "accepted_coverage_pct", "any_coverage_pct",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, d := range rows {
		acceptedCov, anyCov := 0.0, 0.0
		if d.TotalParcels > 0 {
			acceptedCov = 100.0 * float64(d.AcceptedMatched) / float64(d.TotalParcels)
			anyCov = 100.0 * float64(d.AnyMatched) / float64(d.TotalParcels)
		}
		rec := []string{
			d.CodeDept, d.Region, d.Nom,
			fmt.Sprintf("%d", d.TotalParcels), fmt.Sprintf("%d", d.TotalAddresses),
			fmt.Sprintf("%d", d.AcceptedMatched), fmt.Sprintf("%d", d.AnyMatched),
			fmt.Sprintf("%.4f", acceptedCov), fmt.Sprintf("%.4f", anyCov),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteNationalSummaryJSON writes national_summary.json, pretty-printed.
func WriteNationalSummaryJSON(path string, summary NationalSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("analysis: marshal national summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("analysis: write %s: %w", path, err)
	}
	return nil
}

// WriteMarkdownReport writes analysis_report.md with the sections Executive
// Summary, Input Completeness, By Region, Top 10 and Bottom 10 Departments,
// and Artifacts, after original_source/src/analysis/mod.rs's hand-built
// report. It has no match-type distribution section.
func WriteMarkdownReport(path string, outcome Outcome, artifacts []string) error {
	var b strings.Builder
	ns := outcome.Summary

	fmt.Fprintf(&b, "# National Analysis Report\n\n")
	fmt.Fprintf(&b, "## Executive Summary\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Departments | %d |\n", ns.TotalDepartments)
	fmt.Fprintf(&b, "| Total parcels | %d |\n", ns.TotalParcels)
	fmt.Fprintf(&b, "| Total addresses | %d |\n", ns.TotalAddresses)
	fmt.Fprintf(&b, "| Accepted coverage | %.2f%% |\n", ns.AcceptedCoveragePct)
	fmt.Fprintf(&b, "| Any-match coverage | %.2f%% |\n", ns.AnyCoveragePct)
	fmt.Fprintf(&b, "| Avg accepted confidence | %.2f |\n", ns.AvgAcceptedConfidence)
	fmt.Fprintf(&b, "| Avg any-match confidence | %.2f |\n\n", ns.AvgAnyConfidence)

	fmt.Fprintf(&b, "## Input Completeness\n\n")
	fmt.Fprintf(&b, "- Invalid manifest rows: %d\n", ns.InvalidManifestRows)
	fmt.Fprintf(&b, "- Skipped (missing matches file): %d\n", ns.SkippedMissingMatches)
	fmt.Fprintf(&b, "- Skipped (missing parcel totals): %d\n\n", ns.SkippedMissingParcels)

	fmt.Fprintf(&b, "## By Region\n\n")
	fmt.Fprintf(&b, "| Region | Parcels | Accepted Coverage | Any Coverage |\n|---|---|---|---|\n")
	for _, r := range ns.Regions {
		fmt.Fprintf(&b, "| %s | %d | %.2f%% | %.2f%% |\n", r.Region, r.TotalParcels, r.AcceptedCoverage, r.AnyCoverage)
	}
	b.WriteString("\n")

	top, bottom := topBottom(outcome.DeptRows, 10)
	fmt.Fprintf(&b, "## Top 10 Departments (accepted coverage)\n\n")
	fmt.Fprintf(&b, "| Dept | Coverage |\n|---|---|\n")
	for _, d := range top {
		fmt.Fprintf(&b, "| %s | %.2f%% |\n", d.CodeDept, coveragePct(d))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Bottom 10 Departments (accepted coverage)\n\n")
	fmt.Fprintf(&b, "| Dept | Coverage |\n|---|---|\n")
	for _, d := range bottom {
		fmt.Fprintf(&b, "| %s | %.2f%% |\n", d.CodeDept, coveragePct(d))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Artifacts\n\n")
	for _, a := range artifacts {
		fmt.Fprintf(&b, "- %s\n", a)
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func coveragePct(d DeptStats) float64 {
	if d.TotalParcels == 0 {
		return 0
	}
	return 100.0 * float64(d.AcceptedMatched) / float64(d.TotalParcels)
}

func topBottom(rows []DeptStats, n int) (top, bottom []DeptStats) {
	sorted := make([]DeptStats, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return coveragePct(sorted[i]) > coveragePct(sorted[j]) })
	if len(sorted) <= n {
		return sorted, sorted
	}
	top = sorted[:n]
	bottom = sorted[len(sorted)-n:]
	return top, bottom
}
