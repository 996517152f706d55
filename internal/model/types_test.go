package model

import "testing"

func TestMatchTypePriority(t *testing.T) {
	tests := []struct {
		name string
		mt   MatchType
		want int
	}{
		{"pre-existing wins", MatchPreExisting, 0},
		{"inside", MatchInside, 1},
		{"border near", MatchBorderNear, 2},
		{"fallback nearest", MatchFallbackNearest, 3},
		{"none sentinel", MatchNone, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mt.Priority(); got != tt.want {
				t.Errorf("Priority() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMatchTypeStringRoundTrip(t *testing.T) {
	for _, mt := range []MatchType{MatchPreExisting, MatchInside, MatchBorderNear, MatchFallbackNearest, MatchNone} {
		s := mt.String()
		got, err := ParseMatchType(s)
		if err != nil {
			t.Fatalf("ParseMatchType(%q) error: %v", s, err)
		}
		if got != mt {
			t.Errorf("round trip %v -> %q -> %v", mt, s, got)
		}
	}
}

func TestParseMatchTypeUnknown(t *testing.T) {
	if _, err := ParseMatchType("bogus"); err == nil {
		t.Fatal("expected error for unrecognized match_type")
	}
}

func TestNewMatchOutputConfidence(t *testing.T) {
	tests := []struct {
		name      string
		mt        MatchType
		distanceM float64
		want      uint32
	}{
		{"pre-existing", MatchPreExisting, 0, 100},
		{"inside", MatchInside, 0, 90},
		{"border near close", MatchBorderNear, 4.9, 80},
		{"border near at threshold", MatchBorderNear, 5.0, 70},
		{"border near far", MatchBorderNear, 40, 70},
		{"fallback nearest", MatchFallbackNearest, 900, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatchOutput("addr1", "parcel1", tt.mt, tt.distanceM)
			if m.Confidence != tt.want {
				t.Errorf("Confidence = %d, want %d", m.Confidence, tt.want)
			}
		})
	}
}

func TestDefaultMatchConfig(t *testing.T) {
	cfg := DefaultMatchConfig()
	if cfg.AddressMaxDistanceM != 50.0 {
		t.Errorf("AddressMaxDistanceM = %v, want 50.0", cfg.AddressMaxDistanceM)
	}
	if cfg.FallbackMaxDistanceM != 1500.0 {
		t.Errorf("FallbackMaxDistanceM = %v, want 1500.0", cfg.FallbackMaxDistanceM)
	}
	if cfg.FallbackEnvelopeExpandM != 50.0 {
		t.Errorf("FallbackEnvelopeExpandM = %v, want 50.0", cfg.FallbackEnvelopeExpandM)
	}
}
