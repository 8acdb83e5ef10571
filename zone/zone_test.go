package zone

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mstgis/geodata"
)

const zonesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"zone_id": 5, "name": "inner"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"zone_id": "8"},
      "geometry": {
        "type": "MultiPolygon",
        "coordinates": [[[[20,0],[30,0],[30,10],[20,10],[20,0]]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"zone_id": 99},
      "geometry": {"type": "Point", "coordinates": [50, 50]}
    }
  ]
}`

func writeZoneGeoJSON(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zones.geojson")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing geojson: %v", err)
	}
	return path
}

func TestLoadGeoJSON(t *testing.T) {
	l, err := LoadGeoJSON(writeZoneGeoJSON(t, zonesGeoJSON), "zone_id")
	if err != nil {
		t.Fatalf("LoadGeoJSON: %v", err)
	}
	// The point feature is skipped.
	if len(l.Features) != 2 {
		t.Fatalf("loaded %d features, want 2", len(l.Features))
	}
	if l.Features[0].ID != 5 || l.Features[1].ID != 8 {
		t.Errorf("ids = %d, %d, want 5, 8", l.Features[0].ID, l.Features[1].ID)
	}
	if !l.CRS.Equal(geodata.WGS84()) {
		t.Errorf("CRS = %v, want WGS84", l.CRS)
	}

	ids := l.Resolve([]orb.Point{{5, 5}, {25, 5}, {50, 50}})
	want := []int{5, 8, 0}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("point %d: zone %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestLoadGeoJSONMissingProperty(t *testing.T) {
	path := writeZoneGeoJSON(t, `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "properties": {"name": "unlabelled"},
    "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}
  }]
}`)
	_, err := LoadGeoJSON(path, "zone_id")
	if !errors.Is(err, geodata.ErrZoneLayerUnavailable) {
		t.Fatalf("err = %v, want ErrZoneLayerUnavailable", err)
	}
}

func TestLoadGeoJSONInvalid(t *testing.T) {
	path := writeZoneGeoJSON(t, "not geojson")
	if _, err := LoadGeoJSON(path, "zone_id"); !errors.Is(err, geodata.ErrZoneLayerUnavailable) {
		t.Fatalf("err = %v, want ErrZoneLayerUnavailable", err)
	}
}

func TestLoadDispatchUnknownFormat(t *testing.T) {
	_, err := Load("zones.gpkg", "zone_id")
	if !errors.Is(err, geodata.ErrZoneLayerUnavailable) {
		t.Fatalf("err = %v, want ErrZoneLayerUnavailable", err)
	}
}

func TestLoadDispatchGeoJSON(t *testing.T) {
	l, err := Load(writeZoneGeoJSON(t, zonesGeoJSON), "zone_id")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(l.Features) != 2 {
		t.Errorf("loaded %d features, want 2", len(l.Features))
	}
}

func TestIntProperty(t *testing.T) {
	props := geojson.Properties{
		"float":  float64(3),
		"int":    7,
		"string": "12",
		"bad":    "twelve",
		"nilval": nil,
	}
	tests := []struct {
		key  string
		want int
		ok   bool
	}{
		{"float", 3, true},
		{"int", 7, true},
		{"string", 12, true},
		{"bad", 0, false},
		{"nilval", 0, false},
		{"absent", 0, false},
	}
	for _, tc := range tests {
		got, ok := intProperty(props, tc.key)
		if got != tc.want || ok != tc.ok {
			t.Errorf("intProperty(%q) = (%d, %v), want (%d, %v)", tc.key, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLayerBound(t *testing.T) {
	l := NewLayer([]Feature{
		{Geometry: square(0, 0, 10), ID: 1},
		{Geometry: square(20, 20, 5), ID: 2},
	}, geodata.WGS84())
	b := l.Bound()
	if b.Min != (orb.Point{0, 0}) || b.Max != (orb.Point{25, 25}) {
		t.Errorf("bound = %v, want (0,0)-(25,25)", b)
	}
}
