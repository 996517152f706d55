// Package parquetio reads and writes the matches columnar file, grounded on
// original_source/src/writer.rs's ArrowWriter wrapper and
// internal/engine/exporter.go's buffered-writer/flush idiom, using
// github.com/apache/arrow-go/v18 (arrow + parquet/pqarrow), the one
// columnar-storage dependency evidenced in the pack (see manifests for
// malbeclabs-lake / xentoshi-lake).
package parquetio

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

// Schema is the fixed schema of the matches file: id_ban (non-null utf8),
// id_parcelle (nullable utf8), match_type (utf8), distance_m (float32),
// confidence (uint32).
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "id_ban", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "id_parcelle", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "match_type", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "distance_m", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
	{Name: "confidence", Type: arrow.PrimitiveTypes.Uint32, Nullable: false},
}, nil)

const defaultBatchSize = 10000

// MatchWriter buffers MatchOutput rows and flushes them as Arrow record
// batches, SNAPPY-compressed, matching original_source/src/writer.rs.
type MatchWriter struct {
	file      *os.File
	fw        *pqarrow.FileWriter
	batchSize int
	buf       []model.MatchOutput
	alloc     memory.Allocator
}

// NewMatchWriter creates (or truncates) path and opens a parquet writer
// with the fixed Schema. batchSize<=0 uses defaultBatchSize (10000).
func NewMatchWriter(path string, batchSize int) (*MatchWriter, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("parquetio: create %s: %w", path, err)
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	alloc := memory.NewGoAllocator()
	arrProps := pqarrow.DefaultWriterProps()
	fw, err := pqarrow.NewFileWriter(Schema, f, props, arrProps)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parquetio: new writer for %s: %w", path, err)
	}
	return &MatchWriter{file: f, fw: fw, batchSize: batchSize, alloc: alloc}, nil
}

// Write appends one row, flushing a batch once batchSize rows accumulate.
func (w *MatchWriter) Write(m model.MatchOutput) error {
	w.buf = append(w.buf, m)
	if len(w.buf) >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *MatchWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	rec := buildRecord(w.alloc, w.buf)
	defer rec.Release()
	if err := w.fw.WriteBuffered(rec); err != nil {
		return fmt.Errorf("parquetio: write batch: %w", err)
	}
	w.buf = w.buf[:0]
	return nil
}

// Close flushes any remaining buffered rows and finalizes the file footer.
func (w *MatchWriter) Close() error {
	if err := w.flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.fw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("parquetio: close writer: %w", err)
	}
	return w.file.Close()
}

func buildRecord(alloc memory.Allocator, rows []model.MatchOutput) arrow.Record {
	idBan := array.NewStringBuilder(alloc)
	defer idBan.Release()
	idParcelle := array.NewStringBuilder(alloc)
	defer idParcelle.Release()
	matchType := array.NewStringBuilder(alloc)
	defer matchType.Release()
	distance := array.NewFloat32Builder(alloc)
	defer distance.Release()
	confidence := array.NewUint32Builder(alloc)
	defer confidence.Release()

	for _, m := range rows {
		idBan.Append(m.IDBan)
		if m.IDParcelle == "" {
			idParcelle.AppendNull()
		} else {
			idParcelle.Append(m.IDParcelle)
		}
		matchType.Append(m.MatchType.String())
		distance.Append(m.DistanceM)
		confidence.Append(m.Confidence)
	}

	cols := []arrow.Array{idBan.NewArray(), idParcelle.NewArray(), matchType.NewArray(), distance.NewArray(), confidence.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecord(Schema, cols, int64(len(rows)))
}
