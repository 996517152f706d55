package aggregate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/qa"
)

// LoadDepartmentSummaries globs qaDir for each department's
// qa_distance_tiers_*.csv / qa_precision_*.csv / qa_worst_communes_*.csv
// and reconstructs the minimal qa.Summary fields the aggregator needs,
// matching original_source/src/pipeline/aggregate.rs's
// list_matching_files glob-based discovery. Departments with no matching
// files are silently absent from the result; this is not an error.
func LoadDepartmentSummaries(qaDir string, depts []string) ([]qa.Summary, error) {
	var out []qa.Summary
	for _, dept := range depts {
		s := qa.Summary{CodeDept: dept}
		found := false

		tiersPath := filepath.Join(qaDir, fmt.Sprintf("qa_distance_tiers_%s.csv", dept))
		if rows, err := readTierRows(tiersPath); err == nil {
			s.DistanceTiers = rows
			found = true
		}

		precisionPath := filepath.Join(qaDir, fmt.Sprintf("qa_precision_%s.csv", dept))
		if rows, err := readBinRows(precisionPath); err == nil {
			s.Precision = rows
			found = true
		}

		communesPath := filepath.Join(qaDir, fmt.Sprintf("qa_worst_communes_%s.csv", dept))
		if rows, err := readCommuneRows(communesPath); err == nil {
			s.WorstCommunes = rows
			found = true
		}

		if found {
			out = append(out, s)
		}
	}
	return out, nil
}

func readTierRows(path string) ([]qa.TierRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var rows []qa.TierRow
	for _, rec := range records {
		threshold, _ := strconv.ParseFloat(rec[0], 64)
		matched, _ := strconv.Atoi(rec[1])
		total, _ := strconv.Atoi(rec[2])
		coverage, _ := strconv.ParseFloat(rec[3], 64)
		rows = append(rows, qa.TierRow{ThresholdM: threshold, MatchedParcels: matched, TotalParcels: total, CoveragePct: coverage})
	}
	return rows, nil
}

func readBinRows(path string) ([]qa.BinRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var rows []qa.BinRow
	for _, rec := range records {
		count, _ := strconv.Atoi(rec[1])
		rows = append(rows, qa.BinRow{Bin: rec[0], Count: count})
	}
	return rows, nil
}

func readCommuneRows(path string) ([]qa.CommuneRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var rows []qa.CommuneRow
	for _, rec := range records {
		total, _ := strconv.Atoi(rec[1])
		matched, _ := strconv.Atoi(rec[2])
		coverage, _ := strconv.ParseFloat(rec[3], 64)
		rows = append(rows, qa.CommuneRow{CodeINSEE: rec[0], TotalParcels: total, MatchedParcels: matched, CoveragePct: coverage})
	}
	return rows, nil
}

// readCSV reads path and returns its data rows (header skipped). Returns
// an error if the file does not exist, letting callers treat that
// department/artifact as missing.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("aggregate: read %s: %w", path, err)
	}
	if len(records) <= 1 {
		return nil, nil
	}
	return records[1:], nil
}
