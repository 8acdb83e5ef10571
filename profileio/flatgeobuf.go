package profileio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/mstgis/geodata"
)

// ErrNoRecords is returned when there is nothing to write.
var ErrNoRecords = errors.New("profileio: no records")

// Options configures FlatGeobuf output.
type Options struct {
	Name         string // layer name
	IncludeIndex bool   // include a spatial index
	CRS          geodata.CRS
}

// fgbColumn pairs a fixed-schema column with its type; the write side and
// the property encoder must agree on the order.
type fgbColumn struct {
	name  string
	ctype flattypes.ColumnType
}

var fgbSchema = []fgbColumn{
	{"azimuth", flattypes.ColumnTypeInt},
	{"step", flattypes.ColumnTypeInt},
	{"elevation", flattypes.ColumnTypeDouble},
	{"category", flattypes.ColumnTypeInt},
	{"resistance", flattypes.ColumnTypeDouble},
	{"zone", flattypes.ColumnTypeInt},
}

// WriteFlatGeobuf writes the batch as a FlatGeobuf point layer with a fixed
// property schema.
func WriteFlatGeobuf(w io.Writer, records []geodata.Record, opts *Options) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	if opts == nil {
		opts = &Options{Name: "enriched_points", CRS: geodata.WGS84()}
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(flattypes.GeometryTypePoint)
	if opts.Name != "" {
		header.SetName(opts.Name)
	}

	columns := make([]*writer.Column, 0, len(fgbSchema))
	for _, c := range fgbSchema {
		col := writer.NewColumn(builder)
		col.SetName(c.name)
		col.SetTitle(c.name)
		col.SetType(c.ctype)
		col.SetNullable(false)
		columns = append(columns, col)
	}
	header.SetColumns(columns)

	if !opts.CRS.Undefined() {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		crs.SetCode(int32(opts.CRS.Code))
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		header.SetCrs(crs)
	}

	gen := &recordGenerator{records: records}
	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	_, err := fgbWriter.Write(w)
	return err
}

// recordGenerator emits one point feature per record.
type recordGenerator struct {
	records []geodata.Record
	index   int
}

func (g *recordGenerator) Generate() *writer.Feature {
	if g.index >= len(g.records) {
		return nil
	}
	r := g.records[g.index]
	g.index++

	builder := flatbuffers.NewBuilder(256)
	geom := writer.NewGeometry(builder)
	geom.SetType(flattypes.GeometryTypePoint)
	geom.SetXY([]float64{r.Lon, r.Lat})

	feature := writer.NewFeature(builder)
	feature.SetGeometry(geom)
	feature.SetProperties(encodeRecordProperties(r))
	return feature
}

// encodeRecordProperties encodes the fixed schema as the FlatGeobuf
// property stream: little-endian uint16 column index, then the value in the
// column's width.
func encodeRecordProperties(r geodata.Record) []byte {
	var buf bytes.Buffer
	writeInt := func(col int, v int) {
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], uint16(col))
		buf.Write(idx[:])
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
		buf.Write(b[:])
	}
	writeDouble := func(col int, v float64) {
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], uint16(col))
		buf.Write(idx[:])
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	}

	writeInt(0, r.ID.Azimuth)
	writeInt(1, r.ID.Step)
	writeDouble(2, r.Elevation)
	writeInt(3, r.Category)
	writeDouble(4, r.Resistance)
	writeInt(5, r.Zone)
	return buf.Bytes()
}
