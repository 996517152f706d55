// Package model holds the data types shared across the matching pipeline:
// parcels, addresses, match outputs, and the tunable matcher config.
package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

// InsideEpsilonM is the tolerance, in meters, used when deciding whether an
// address point lies on a parcel's boundary rather than strictly inside it.
const InsideEpsilonM = 0.01

// ParcelGeometry is the tagged union of cadastral geometry shapes this
// system understands. Unsupported WKB geometry types are dropped at load.
type ParcelGeometry struct {
	Polygon      orb.Polygon
	MultiPolygon orb.MultiPolygon
	IsMulti      bool
}

// Bound returns the geometry's axis-aligned bounding rectangle and whether
// the geometry carried any rings at all.
func (g ParcelGeometry) Bound() (orb.Bound, bool) {
	if g.IsMulti {
		if len(g.MultiPolygon) == 0 {
			return orb.Bound{}, false
		}
		return g.MultiPolygon.Bound(), true
	}
	if len(g.Polygon) == 0 {
		return orb.Bound{}, false
	}
	return g.Polygon.Bound(), true
}

// Parcel is one cadastral unit: an id, its commune code, and its geometry.
type Parcel struct {
	ID         string
	CodeINSEE  string
	Geometry   ParcelGeometry
	bound      orb.Bound
	hasBound   bool
}

// NewParcel builds a Parcel and precomputes its bounding envelope once.
func NewParcel(id, codeINSEE string, geom ParcelGeometry) Parcel {
	b, ok := geom.Bound()
	return Parcel{ID: id, CodeINSEE: codeINSEE, Geometry: geom, bound: b, hasBound: ok}
}

// Bound returns the parcel's precomputed bounding rectangle.
func (p Parcel) Bound() (orb.Bound, bool) { return p.bound, p.hasBound }

// Address is one address point, optionally carrying a pre-existing
// cadastral link supplied by the source dataset.
type Address struct {
	ID            string
	CodeINSEE     string
	Point         orb.Point
	ExistingLink  string // raw field, may contain several ids separated by ';', '|' or ','
}

// MatchType enumerates how an address/parcel pair came to be linked, in
// ascending priority order (lower value wins when several candidates tie).
type MatchType int

const (
	MatchPreExisting MatchType = iota
	MatchInside
	MatchBorderNear
	MatchFallbackNearest
	// MatchNone is a sentinel used only in QA reports for addresses that
	// never matched anything; it is never written to the matches file.
	MatchNone MatchType = 100
)

// Priority returns the tie-break rank for this match type: lower wins.
func (m MatchType) Priority() int {
	if m == MatchNone {
		return int(MatchNone)
	}
	return int(m)
}

func (m MatchType) String() string {
	switch m {
	case MatchPreExisting:
		return "PreExisting"
	case MatchInside:
		return "Inside"
	case MatchBorderNear:
		return "BorderNear"
	case MatchFallbackNearest:
		return "FallbackNearest"
	case MatchNone:
		return "None"
	default:
		return fmt.Sprintf("MatchType(%d)", int(m))
	}
}

// ParseMatchType parses the string form written to CSV/parquet files.
func ParseMatchType(s string) (MatchType, error) {
	switch s {
	case "PreExisting":
		return MatchPreExisting, nil
	case "Inside":
		return MatchInside, nil
	case "BorderNear":
		return MatchBorderNear, nil
	case "FallbackNearest":
		return MatchFallbackNearest, nil
	case "None":
		return MatchNone, nil
	default:
		return 0, fmt.Errorf("model: unrecognized match_type %q", s)
	}
}

// MatchOutput is one linked (or fallback-linked) address/parcel pair, the
// record written to the matches parquet file.
type MatchOutput struct {
	IDBan      string
	IDParcelle string // empty means "no parcel matched"
	MatchType  MatchType
	DistanceM  float32
	Confidence uint32
}

// NewMatchOutput derives the confidence score from match type and distance,
// following the scheme: PreExisting=100, Inside=90, BorderNear=80 if
// distance<5m else 70, FallbackNearest=50.
func NewMatchOutput(idBan, idParcelle string, mt MatchType, distanceM float64) MatchOutput {
	var confidence uint32
	switch mt {
	case MatchPreExisting:
		confidence = 100
	case MatchInside:
		confidence = 90
	case MatchBorderNear:
		if distanceM < 5.0 {
			confidence = 80
		} else {
			confidence = 70
		}
	case MatchFallbackNearest:
		confidence = 50
	}
	return MatchOutput{
		IDBan:      idBan,
		IDParcelle: idParcelle,
		MatchType:  mt,
		DistanceM:  float32(distanceM),
		Confidence: confidence,
	}
}

// MatchConfig holds the three tunables that govern stage behavior.
type MatchConfig struct {
	// AddressMaxDistanceM bounds Stage 2 (BorderNear) candidate search.
	AddressMaxDistanceM float64
	// FallbackMaxDistanceM bounds Stage 3 (FallbackNearest) acceptance.
	FallbackMaxDistanceM float64
	// FallbackEnvelopeExpandM is the initial envelope expansion radius of
	// Stage 3's expanding search (values below 5 are raised to 5).
	FallbackEnvelopeExpandM float64
}

// DefaultMatchConfig matches the reference implementation's defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		AddressMaxDistanceM:     50.0,
		FallbackMaxDistanceM:    1500.0,
		FallbackEnvelopeExpandM: 50.0,
	}
}
