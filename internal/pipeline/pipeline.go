// Package pipeline sequences link → QA per department for the `pipeline`
// CLI subcommand. It is intentionally thin: SPEC_FULL.md places full
// batch orchestration (resume, retries, scheduling) out of scope, so this
// only tracks per-department success/failure counts and a single status
// snapshot, matching the error-kind propagation policy of spec.md §7
// (per-department failures never abort the batch).
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/linkmatcher"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/loader"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/parquetio"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/qa"
)

// DepartmentJob names one department's input/output paths.
type DepartmentJob struct {
	CodeDept       string
	ParcelsPath    string
	AddressesPath  string
	MatchesOutPath string
	QAOutDir       string

	// FilterCommune, when non-empty, restricts matching to addresses (and
	// their candidate parcels) in a single commune code.
	FilterCommune string
	// LimitAddresses, when >0, truncates the loaded address set to this
	// many rows after any commune filtering.
	LimitAddresses int
}

func (job DepartmentJob) filterInputs(parcels []model.Parcel, addresses []model.Address) ([]model.Parcel, []model.Address) {
	if job.FilterCommune != "" {
		filteredAddresses := addresses[:0:0]
		for _, a := range addresses {
			if a.CodeINSEE == job.FilterCommune {
				filteredAddresses = append(filteredAddresses, a)
			}
		}
		addresses = filteredAddresses

		filteredParcels := parcels[:0:0]
		for _, p := range parcels {
			if p.CodeINSEE == job.FilterCommune {
				filteredParcels = append(filteredParcels, p)
			}
		}
		parcels = filteredParcels
	}
	if job.LimitAddresses > 0 && len(addresses) > job.LimitAddresses {
		addresses = addresses[:job.LimitAddresses]
	}
	return parcels, addresses
}

// DepartmentResult records what happened running one department.
type DepartmentResult struct {
	CodeDept string `json:"code_dept"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Matches  int    `json:"matches,omitempty"`
}

// Status is the snapshot written after each department, read back by the
// `status` CLI subcommand.
type Status struct {
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Failed    int                 `json:"failed"`
	Results   []DepartmentResult  `json:"results"`
}

// RunLink loads inputs, matches, and writes the matches parquet file for
// one department, following original_source/src/link_mode.rs's run_link.
func RunLink(job DepartmentJob, cfg model.MatchConfig, batchSize int) (int, error) {
	parcels, err := loader.LoadParcels(job.ParcelsPath)
	if err != nil {
		return 0, fmt.Errorf("pipeline: load parcels: %w", err)
	}
	addresses, err := loader.LoadAddresses(job.AddressesPath)
	if err != nil {
		return 0, fmt.Errorf("pipeline: load addresses: %w", err)
	}
	parcels, addresses = job.filterInputs(parcels, addresses)

	if err := os.MkdirAll(filepath.Dir(job.MatchesOutPath), 0o755); err != nil {
		return 0, fmt.Errorf("pipeline: create output dir: %w", err)
	}

	if len(parcels) == 0 || len(addresses) == 0 {
		w, err := parquetio.NewMatchWriter(job.MatchesOutPath, batchSize)
		if err != nil {
			return 0, err
		}
		return 0, w.Close()
	}

	matches := linkmatcher.Match(parcels, addresses, cfg)

	w, err := parquetio.NewMatchWriter(job.MatchesOutPath, batchSize)
	if err != nil {
		return 0, fmt.Errorf("pipeline: open writer: %w", err)
	}
	for _, m := range matches {
		if err := w.Write(m); err != nil {
			w.Close()
			return 0, fmt.Errorf("pipeline: write match: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("pipeline: close writer: %w", err)
	}

	return len(matches), nil
}

// RunQA loads the freshly-written matches back and writes the full QA
// artifact set for the department.
func RunQA(job DepartmentJob) (qa.Summary, error) {
	parcels, err := loader.LoadParcels(job.ParcelsPath)
	if err != nil {
		return qa.Summary{}, fmt.Errorf("pipeline: load parcels for qa: %w", err)
	}
	addresses, err := loader.LoadAddresses(job.AddressesPath)
	if err != nil {
		return qa.Summary{}, fmt.Errorf("pipeline: load addresses for qa: %w", err)
	}
	matches, err := parquetio.ReadMatches(job.MatchesOutPath)
	if err != nil {
		return qa.Summary{}, fmt.Errorf("pipeline: read matches for qa: %w", err)
	}

	summary := qa.Analyze(job.CodeDept, parcels, addresses, matches)

	if err := os.MkdirAll(job.QAOutDir, 0o755); err != nil {
		return summary, fmt.Errorf("pipeline: create qa dir: %w", err)
	}
	if err := summary.WriteCSVs(job.QAOutDir); err != nil {
		return summary, fmt.Errorf("pipeline: write qa csvs: %w", err)
	}
	if err := qa.WriteParcellesAdresses(job.QAOutDir, job.CodeDept, matches); err != nil {
		return summary, fmt.Errorf("pipeline: write parcelles_adresses: %w", err)
	}
	return summary, nil
}

// RunAll runs link then QA for every job, never aborting the batch on a
// single department's failure, and writes the status snapshot. It returns
// the QA summary for every department that completed QA, for the caller
// to feed into the national aggregator.
func RunAll(jobs []DepartmentJob, cfg model.MatchConfig, batchSize int, statusPath string) (Status, []qa.Summary) {
	status := Status{Total: len(jobs)}
	var summaries []qa.Summary
	for _, job := range jobs {
		res := DepartmentResult{CodeDept: job.CodeDept}
		n, err := RunLink(job, cfg, batchSize)
		if err != nil {
			res.Error = err.Error()
			status.Failed++
			status.Results = append(status.Results, res)
			writeStatus(statusPath, status)
			continue
		}
		res.Matches = n
		summary, err := RunQA(job)
		if err != nil {
			res.Error = err.Error()
			status.Failed++
			status.Results = append(status.Results, res)
			writeStatus(statusPath, status)
			continue
		}
		summaries = append(summaries, summary)
		res.OK = true
		status.Completed++
		status.Results = append(status.Results, res)
		writeStatus(statusPath, status)
	}
	return status, summaries
}

func writeStatus(path string, status Status) {
	if path == "" {
		return
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// ReadStatus reads back a status snapshot for the `status` CLI subcommand.
func ReadStatus(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, fmt.Errorf("pipeline: read status %s: %w", path, err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("pipeline: parse status %s: %w", path, err)
	}
	return s, nil
}
