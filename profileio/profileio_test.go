package profileio

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mstgis/geodata"
)

func testRecords() []geodata.Record {
	return []geodata.Record{
		{
			Point:      geodata.Point{Lon: 13.4, Lat: 52.5, ID: geodata.PointID{Azimuth: 0, Step: 1}},
			Elevation:  34.5,
			Category:   4,
			Resistance: 15,
			Zone:       3,
		},
		{
			Point:      geodata.Point{Lon: 13.41, Lat: 52.51, ID: geodata.PointID{Azimuth: 0, Step: 2}},
			Elevation:  geodata.Sentinel,
			Category:   1,
			Resistance: 0,
			Zone:       0,
		},
		{
			Point:      geodata.Point{Lon: 13.39, Lat: 52.49, ID: geodata.PointID{Azimuth: 18, Step: 1}},
			Elevation:  -2.25,
			Category:   3,
			Resistance: 10,
			Zone:       7,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testRecords()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header plus 3 records", len(rows))
	}
	for i, col := range csvHeader {
		if rows[0][i] != col {
			t.Errorf("header column %d = %q, want %q", i, rows[0][i], col)
		}
	}

	// Row 1: the full first record.
	want := []string{"0", "1", "13.4", "52.5", "34.5", "4", "15", "3"}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("row 1 column %d = %q, want %q", i, rows[1][i], want[i])
		}
	}
	// Unresolved elevation stays the sentinel, never empty.
	if rows[2][4] != strconv.FormatFloat(geodata.Sentinel, 'f', -1, 64) {
		t.Errorf("row 2 elevation = %q, want sentinel", rows[2][4])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("empty batch wrote %d rows, want header only", len(rows))
	}
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGeoJSON(&buf, testRecords()); err != nil {
		t.Fatalf("WriteGeoJSON: %v", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("got %d features, want 3", len(fc.Features))
	}

	f := fc.Features[0]
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		t.Fatalf("geometry is %T, want Point", f.Geometry)
	}
	if pt[0] != 13.4 || pt[1] != 52.5 {
		t.Errorf("point = %v, want (13.4, 52.5)", pt)
	}
	// Round-tripped property numbers come back as float64.
	checks := map[string]float64{
		"azimuth":    0,
		"step":       1,
		"elevation":  34.5,
		"category":   4,
		"resistance": 15,
		"zone":       3,
	}
	for key, want := range checks {
		got, ok := f.Properties[key].(float64)
		if !ok || got != want {
			t.Errorf("property %q = %v, want %g", key, f.Properties[key], want)
		}
	}

	// Order preserved.
	last := fc.Features[2]
	if az := last.Properties["azimuth"].(float64); az != 18 {
		t.Errorf("last feature azimuth = %g, want 18", az)
	}
}

func TestWriteFlatGeobuf(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFlatGeobuf(&buf, testRecords(), &Options{
		Name:         "test_points",
		IncludeIndex: true,
		CRS:          geodata.WGS84(),
	})
	if err != nil {
		t.Fatalf("WriteFlatGeobuf: %v", err)
	}

	data := buf.Bytes()
	magic := []byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62, 0x00}
	if len(data) < len(magic) {
		t.Fatal("output too short")
	}
	for i, b := range magic {
		if data[i] != b {
			t.Fatalf("magic byte %d = 0x%02x, want 0x%02x", i, data[i], b)
		}
	}
}

func TestWriteFlatGeobufEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFlatGeobuf(&buf, nil, nil); err != ErrNoRecords {
		t.Fatalf("err = %v, want ErrNoRecords", err)
	}
}

func TestEncodeRecordProperties(t *testing.T) {
	b := encodeRecordProperties(testRecords()[0])
	// 4 int columns at 6 bytes each plus 2 double columns at 10 bytes each.
	if len(b) != 4*6+2*10 {
		t.Fatalf("property stream is %d bytes, want %d", len(b), 4*6+2*10)
	}
	// First pair: column 0, azimuth 0.
	if b[0] != 0 || b[1] != 0 {
		t.Errorf("first column index = %d, want 0", uint16(b[0])|uint16(b[1])<<8)
	}
}
