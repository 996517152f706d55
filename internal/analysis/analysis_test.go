package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/parquetio"
)

func TestReadManifestSkipsHeaderAndFlagsInvalidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	contents := "dept,region,nom\n001,Region A,Ain\n,Region B,\n002,Region B,Aisne\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	rows, invalid, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d valid rows, want 2", len(rows))
	}
	if len(invalid) != 1 || invalid[0] != 2 {
		t.Errorf("invalid rows = %v, want [2]", invalid)
	}
}

func TestAnalyzeDepartmentMissingMatchesFileReturnsNotOK(t *testing.T) {
	row := ManifestRow{CodeDept: "001", Region: "Region A", Nom: "Ain"}
	in := DeptInputs{MatchesParquetPath: filepath.Join(t.TempDir(), "missing.parquet")}

	_, ok, err := AnalyzeDepartment(row, in)
	if err != nil {
		t.Fatalf("AnalyzeDepartment: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a missing matches file")
	}
}

func TestAnalyzeDepartmentComputesAcceptedAndAnyCoverage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.parquet")
	w, err := parquetio.NewMatchWriter(path, 10)
	if err != nil {
		t.Fatalf("NewMatchWriter: %v", err)
	}
	rows := []model.MatchOutput{
		model.NewMatchOutput("A1", "P1", model.MatchInside, 0),
		model.NewMatchOutput("A2", "P2", model.MatchFallbackNearest, 2000),
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	row := ManifestRow{CodeDept: "001", Region: "Region A", Nom: "Ain"}
	stats, ok, err := AnalyzeDepartment(row, DeptInputs{MatchesParquetPath: path, TotalParcelsFallback: 2})
	if err != nil {
		t.Fatalf("AnalyzeDepartment: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if stats.AnyMatched != 2 {
		t.Errorf("AnyMatched = %d, want 2", stats.AnyMatched)
	}
	// only the Inside match (distance 0) is accepted; the 2000m fallback
	// match exceeds CoverageThresholdM.
	if stats.AcceptedMatched != 1 {
		t.Errorf("AcceptedMatched = %d, want 1", stats.AcceptedMatched)
	}
}

func TestSummarizeWeightsConfidenceByMatchedCountNotDeptAverage(t *testing.T) {
	deptRows := []DeptStats{
		{CodeDept: "001", Region: "R", TotalParcels: 100, AcceptedMatched: 1, AcceptedConfSum: 100},
		{CodeDept: "002", Region: "R", TotalParcels: 100, AcceptedMatched: 9, AcceptedConfSum: 9 * 50},
	}
	ns := Summarize(deptRows, 0, 0, 0)

	if len(ns.Regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(ns.Regions))
	}
	// weighted avg = (100 + 450) / 10 = 55, not the naive (100+50)/2 = 75.
	if got := ns.Regions[0].AvgAcceptedConf; got != 55 {
		t.Errorf("AvgAcceptedConf = %v, want 55 (count-weighted, not per-department average)", got)
	}
	if ns.AcceptedCoveragePct != 5 {
		t.Errorf("AcceptedCoveragePct = %v, want 5 (10 matched / 200 total)", ns.AcceptedCoveragePct)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	ns := Summarize(nil, 3, 1, 2)
	if ns.TotalDepartments != 0 {
		t.Errorf("TotalDepartments = %d, want 0", ns.TotalDepartments)
	}
	if ns.InvalidManifestRows != 3 || ns.SkippedMissingMatches != 1 || ns.SkippedMissingParcels != 2 {
		t.Errorf("defect counters not propagated: %+v", ns)
	}
}
