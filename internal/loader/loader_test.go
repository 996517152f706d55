package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

var parcelsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "code_insee", Type: arrow.BinaryTypes.String},
	{Name: "geom", Type: arrow.BinaryTypes.Binary},
}, nil)

var addressesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "code_insee", Type: arrow.BinaryTypes.String},
	{Name: "geom", Type: arrow.BinaryTypes.Binary},
	{Name: "existing_link", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func writeParcelsFixture(t *testing.T, path string, ids, codes []string, geoms [][]byte) {
	t.Helper()
	alloc := memory.NewGoAllocator()
	idB := array.NewStringBuilder(alloc)
	codeB := array.NewStringBuilder(alloc)
	geomB := array.NewBinaryBuilder(alloc, arrow.BinaryTypes.Binary)
	for i := range ids {
		idB.Append(ids[i])
		codeB.Append(codes[i])
		if geoms[i] == nil {
			geomB.AppendNull()
		} else {
			geomB.Append(geoms[i])
		}
	}
	cols := []arrow.Array{idB.NewArray(), codeB.NewArray(), geomB.NewArray()}
	rec := array.NewRecord(parcelsSchema, cols, int64(len(ids)))
	defer rec.Release()
	writeRecord(t, path, parcelsSchema, rec)
}

func writeAddressesFixture(t *testing.T, path string, ids, codes []string, geoms [][]byte, links []string) {
	t.Helper()
	alloc := memory.NewGoAllocator()
	idB := array.NewStringBuilder(alloc)
	codeB := array.NewStringBuilder(alloc)
	geomB := array.NewBinaryBuilder(alloc, arrow.BinaryTypes.Binary)
	linkB := array.NewStringBuilder(alloc)
	for i := range ids {
		idB.Append(ids[i])
		codeB.Append(codes[i])
		geomB.Append(geoms[i])
		if links[i] == "" {
			linkB.AppendNull()
		} else {
			linkB.Append(links[i])
		}
	}
	cols := []arrow.Array{idB.NewArray(), codeB.NewArray(), geomB.NewArray(), linkB.NewArray()}
	rec := array.NewRecord(addressesSchema, cols, int64(len(ids)))
	defer rec.Release()
	writeRecord(t, path, addressesSchema, rec)
}

func writeRecord(t *testing.T, path string, schema *arrow.Schema, rec arrow.Record) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	props := parquet.NewWriterProperties()
	fw, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	if err := fw.WriteBuffered(rec); err != nil {
		t.Fatalf("write buffered: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
}

func TestLoadParcelsDecodesWKBAndDropsMalformedGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels.parquet")
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	good, err := wkb.Marshal(orb.Polygon{ring})
	if err != nil {
		t.Fatalf("wkb.Marshal: %v", err)
	}
	empty, err := wkb.Marshal(orb.Polygon{})
	if err != nil {
		t.Fatalf("wkb.Marshal: %v", err)
	}

	writeParcelsFixture(t, path,
		[]string{"P1", "P2", "P3"},
		[]string{"00001", "00001", "00001"},
		[][]byte{good, nil, empty},
	)

	parcels, err := LoadParcels(path)
	if err != nil {
		t.Fatalf("LoadParcels: %v", err)
	}
	if len(parcels) != 1 {
		t.Fatalf("got %d parcels, want 1 (null geom and zero-ring polygon both dropped)", len(parcels))
	}
	if parcels[0].ID != "P1" {
		t.Errorf("ID = %q, want P1", parcels[0].ID)
	}
}

func TestLoadAddressesHandlesNullAndLiteralNullLink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.parquet")
	pt, err := wkb.Marshal(orb.Point{5, 5})
	if err != nil {
		t.Fatalf("wkb.Marshal: %v", err)
	}

	writeAddressesFixture(t, path,
		[]string{"A1", "A2", "A3"},
		[]string{"00001", "00001", "00001"},
		[][]byte{pt, pt, pt},
		[]string{"P1", "", "null"},
	)

	addresses, err := LoadAddresses(path)
	if err != nil {
		t.Fatalf("LoadAddresses: %v", err)
	}
	if len(addresses) != 3 {
		t.Fatalf("got %d addresses, want 3", len(addresses))
	}
	if addresses[0].ExistingLink != "P1" {
		t.Errorf("A1 ExistingLink = %q, want P1", addresses[0].ExistingLink)
	}
	if addresses[1].ExistingLink != "" {
		t.Errorf("A2 ExistingLink = %q, want empty", addresses[1].ExistingLink)
	}
	if addresses[2].ExistingLink != "" {
		t.Errorf("A3 ExistingLink = %q, want empty (literal \"null\" string treated as absent)", addresses[2].ExistingLink)
	}
}
