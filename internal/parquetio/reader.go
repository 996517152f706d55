package parquetio

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

// ReadMatches loads every row of a matches parquet file written by
// MatchWriter back into memory, used by the QA analyzer and aggregator.
func ReadMatches(path string) ([]model.MatchOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parquetio: open %s: %w", path, err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("parquetio: parquet reader %s: %w", path, err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, fmt.Errorf("parquetio: arrow reader %s: %w", path, err)
	}

	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("parquetio: read table %s: %w", path, err)
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, tbl.NumRows())
	defer tr.Release()

	var out []model.MatchOutput
	for tr.Next() {
		rec := tr.Record()
		idBan := rec.Column(0).(*array.String)
		idParcelle := rec.Column(1).(*array.String)
		matchType := rec.Column(2).(*array.String)
		distance := rec.Column(3).(*array.Float32)
		confidence := rec.Column(4).(*array.Uint32)

		for i := 0; i < int(rec.NumRows()); i++ {
			mt, err := model.ParseMatchType(matchType.Value(i))
			if err != nil {
				return nil, fmt.Errorf("parquetio: row %d: %w", i, err)
			}
			idp := ""
			if !idParcelle.IsNull(i) {
				idp = idParcelle.Value(i)
			}
			out = append(out, model.MatchOutput{
				IDBan:      idBan.Value(i),
				IDParcelle: idp,
				MatchType:  mt,
				DistanceM:  distance.Value(i),
				Confidence: confidence.Value(i),
			})
		}
	}
	return out, nil
}
