package qa

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

func parcel(id, commune string) model.Parcel {
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	return model.NewParcel(id, commune, model.ParcelGeometry{Polygon: orb.Polygon{ring}})
}

func TestBestPerParcelPicksHighestPriorityThenClosest(t *testing.T) {
	matches := []model.MatchOutput{
		model.NewMatchOutput("A1", "P1", model.MatchFallbackNearest, 900),
		model.NewMatchOutput("A2", "P1", model.MatchBorderNear, 10),
		model.NewMatchOutput("A3", "P1", model.MatchInside, 0),
	}
	best := bestPerParcel(matches)
	got, ok := best["P1"]
	if !ok {
		t.Fatal("expected a best match for P1")
	}
	if got.MatchType != model.MatchInside || got.IDBan != "A3" {
		t.Errorf("best = %+v, want Inside match from A3", got)
	}
}

func TestBestPerParcelTieBreaksByDistanceThenID(t *testing.T) {
	matches := []model.MatchOutput{
		model.NewMatchOutput("A2", "P1", model.MatchBorderNear, 10),
		model.NewMatchOutput("A1", "P1", model.MatchBorderNear, 10),
	}
	best := bestPerParcel(matches)
	if best["P1"].IDBan != "A1" {
		t.Errorf("expected tie-break to prefer lexicographically smaller id_ban, got %q", best["P1"].IDBan)
	}
}

func TestAnalyzeCountsAndCoverage(t *testing.T) {
	parcels := []model.Parcel{parcel("P1", "00001"), parcel("P2", "00001")}
	addresses := []model.Address{{ID: "A1", CodeINSEE: "00001"}, {ID: "A2", CodeINSEE: "00001"}}
	matches := []model.MatchOutput{
		model.NewMatchOutput("A1", "P1", model.MatchInside, 0),
	}

	s := Analyze("00001", parcels, addresses, matches)
	if s.TotalParcels != 2 {
		t.Errorf("TotalParcels = %d, want 2", s.TotalParcels)
	}
	if s.MatchedParcels != 1 {
		t.Errorf("MatchedParcels = %d, want 1", s.MatchedParcels)
	}
	if s.AvgConfidence != 90 {
		t.Errorf("AvgConfidence = %v, want 90", s.AvgConfidence)
	}
	// distance tier at 5m should count this Inside match (zero distance,
	// and Inside always counts regardless of threshold).
	for _, tier := range s.DistanceTiers {
		if tier.ThresholdM == 5 && tier.MatchedParcels != 1 {
			t.Errorf("tier 5m matched = %d, want 1", tier.MatchedParcels)
		}
	}
}

func TestPrecisionHistogramExcludesPreExistingAndInside(t *testing.T) {
	matches := []model.MatchOutput{
		model.NewMatchOutput("A1", "P1", model.MatchPreExisting, 0),
		model.NewMatchOutput("A2", "P2", model.MatchInside, 0),
		model.NewMatchOutput("A3", "P3", model.MatchBorderNear, 3),
	}
	best := bestPerParcel(matches)
	rows := precisionHistogram(best)

	var total int
	for _, r := range rows {
		total += r.Count
	}
	if total != 1 {
		t.Errorf("expected exactly 1 binned row (the BorderNear match), got %d", total)
	}
}

func TestWorstCommunesOrdering(t *testing.T) {
	parcels := []model.Parcel{
		parcel("P1", "A"), parcel("P2", "A"),
		parcel("P3", "B"),
	}
	best := map[string]model.MatchOutput{
		"P1": model.NewMatchOutput("addr", "P1", model.MatchInside, 0),
	}
	rows := worstCommunes(parcels, best)
	if len(rows) != 2 {
		t.Fatalf("expected 2 commune rows, got %d", len(rows))
	}
	// commune B has 0% coverage, should sort first.
	if rows[0].CodeINSEE != "B" {
		t.Errorf("expected commune B (0%% coverage) first, got %q", rows[0].CodeINSEE)
	}
}
