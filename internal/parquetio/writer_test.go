package parquetio

import (
	"path/filepath"
	"testing"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.parquet")

	rows := []model.MatchOutput{
		model.NewMatchOutput("A1", "P1", model.MatchPreExisting, 0),
		model.NewMatchOutput("A2", "P2", model.MatchBorderNear, 4.2),
		model.NewMatchOutput("A3", "", model.MatchFallbackNearest, 1200),
	}

	w, err := NewMatchWriter(path, 2)
	if err != nil {
		t.Fatalf("NewMatchWriter: %v", err)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadMatches(path)
	if err != nil {
		t.Fatalf("ReadMatches: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(got), len(rows))
	}
	for i, r := range rows {
		if got[i].IDBan != r.IDBan || got[i].IDParcelle != r.IDParcelle ||
			got[i].MatchType != r.MatchType || got[i].Confidence != r.Confidence {
			t.Errorf("row %d = %+v, want %+v", i, got[i], r)
		}
	}
}

func TestEmptyWriterProducesValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	w, err := NewMatchWriter(path, 0)
	if err != nil {
		t.Fatalf("NewMatchWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := ReadMatches(path)
	if err != nil {
		t.Fatalf("ReadMatches: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no rows, got %d", len(got))
	}
}
