// Package loader reads the input parcels/addresses parquet files, decoding
// WKB geometry via orb/encoding/wkb, grounded on
// original_source/src/loader.rs (column contract, get_string_or_long
// coercion, existing_link null handling).
package loader

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

// LoadParcels reads a parcels parquet file with columns id, code_insee,
// geom (WKB-encoded polygon/multipolygon). Rows with unsupported or empty
// geometry are dropped.
func LoadParcels(path string) ([]model.Parcel, error) {
	tbl, err := readTable(path)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, tbl.NumRows())
	defer tr.Release()

	var out []model.Parcel
	for tr.Next() {
		rec := tr.Record()
		idCol := rec.Column(0)
		codeCol := rec.Column(1)
		geomCol := rec.Column(2).(*array.Binary)

		for i := 0; i < int(rec.NumRows()); i++ {
			id, err := coerceID(idCol, i)
			if err != nil {
				return nil, fmt.Errorf("loader: parcels row %d: %w", i, err)
			}
			code, err := coerceID(codeCol, i)
			if err != nil {
				return nil, fmt.Errorf("loader: parcels row %d: %w", i, err)
			}
			if geomCol.IsNull(i) || len(geomCol.Value(i)) == 0 {
				continue
			}
			geom, err := decodeGeometry(geomCol.Value(i))
			if err != nil {
				// malformed/unsupported geometry: drop the parcel, not fatal.
				continue
			}
			parcel := model.NewParcel(id, code, geom)
			if _, ok := parcel.Bound(); !ok {
				// decoded to a recognized geometry type but with no rings,
				// so it has no finite bounding rectangle: drop it.
				continue
			}
			out = append(out, parcel)
		}
	}
	return out, nil
}

// LoadAddresses reads an addresses parquet file with columns id,
// code_insee, geom (WKB point), existing_link (nullable, may be the
// literal string "null" per the source producer).
func LoadAddresses(path string) ([]model.Address, error) {
	tbl, err := readTable(path)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, tbl.NumRows())
	defer tr.Release()

	var out []model.Address
	for tr.Next() {
		rec := tr.Record()
		idCol := rec.Column(0)
		codeCol := rec.Column(1)
		geomCol := rec.Column(2).(*array.Binary)
		var linkCol *array.String
		if rec.NumCols() > 3 {
			if c, ok := rec.Column(3).(*array.String); ok {
				linkCol = c
			}
		}

		for i := 0; i < int(rec.NumRows()); i++ {
			id, err := coerceID(idCol, i)
			if err != nil {
				return nil, fmt.Errorf("loader: addresses row %d: %w", i, err)
			}
			code, err := coerceID(codeCol, i)
			if err != nil {
				return nil, fmt.Errorf("loader: addresses row %d: %w", i, err)
			}
			if geomCol.IsNull(i) {
				continue
			}
			pt, err := decodePoint(geomCol.Value(i))
			if err != nil {
				continue
			}
			link := ""
			if linkCol != nil && !linkCol.IsNull(i) {
				v := linkCol.Value(i)
				if v != "null" {
					link = v
				}
			}
			out = append(out, model.Address{ID: id, CodeINSEE: code, Point: pt, ExistingLink: link})
		}
	}
	return out, nil
}

func coerceID(col interface{}, row int) (string, error) {
	switch c := col.(type) {
	case *array.String:
		if c.IsNull(row) {
			return "", nil
		}
		return c.Value(row), nil
	case *array.Int64:
		if c.IsNull(row) {
			return "", nil
		}
		return strconv.FormatInt(c.Value(row), 10), nil
	case *array.Int32:
		if c.IsNull(row) {
			return "", nil
		}
		return strconv.FormatInt(int64(c.Value(row)), 10), nil
	default:
		return "", fmt.Errorf("unsupported id column type %T", col)
	}
}

func decodeGeometry(b []byte) (model.ParcelGeometry, error) {
	geom, err := wkb.Unmarshal(b)
	if err != nil {
		return model.ParcelGeometry{}, err
	}
	switch g := geom.(type) {
	case orb.Polygon:
		return model.ParcelGeometry{Polygon: g}, nil
	case orb.MultiPolygon:
		return model.ParcelGeometry{MultiPolygon: g, IsMulti: true}, nil
	default:
		return model.ParcelGeometry{}, fmt.Errorf("loader: unsupported geometry type %T", geom)
	}
}

func decodePoint(b []byte) (orb.Point, error) {
	geom, err := wkb.Unmarshal(b)
	if err != nil {
		return orb.Point{}, err
	}
	pt, ok := geom.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("loader: expected point geometry, got %T", geom)
	}
	return pt, nil
}

func readTable(path string) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("loader: parquet reader %s: %w", path, err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, fmt.Errorf("loader: arrow reader %s: %w", path, err)
	}

	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loader: read table %s: %w", path, err)
	}
	return tbl, nil
}
