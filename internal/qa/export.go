package qa

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/parquetio"
)

// WriteParcellesAdresses writes every qualifying match row (match_type not
// None and id_parcelle set) as both parquet and CSV
// (parcelles_adresses_{dept}.{parquet,csv}), matching
// original_source/src/pipeline/qa.rs's export step
// (`WHERE match_type IS NOT NULL AND match_type != 'None' AND id_parcelle
// IS NOT NULL`, no per-parcel dedup).
func WriteParcellesAdresses(dir, codeDept string, matches []model.MatchOutput) error {
	rows := make([]model.MatchOutput, 0, len(matches))
	for _, m := range matches {
		if m.MatchType == model.MatchNone || m.IDParcelle == "" {
			continue
		}
		rows = append(rows, m)
	}

	parquetPath := fmt.Sprintf("%s/parcelles_adresses_%s.parquet", dir, codeDept)
	w, err := parquetio.NewMatchWriter(parquetPath, 0)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	csvPath := fmt.Sprintf("%s/parcelles_adresses_%s.csv", dir, codeDept)
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("qa: create %s: %w", csvPath, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"id_ban", "id_parcelle", "match_type", "distance_m", "confidence"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.IDBan, r.IDParcelle, r.MatchType.String(),
			fmt.Sprintf("%g", r.DistanceM), fmt.Sprintf("%d", r.Confidence),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
