package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	ch, err := cfg.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}

	// Spot-check the standard LCM10 grouping and its resistances.
	tests := []struct {
		class, category int
		resistance      float64
	}{
		{100, 1, 0},
		{80, 2, 0},
		{20, 3, 10},
		{10, 4, 15},
		{999, 1, 0}, // unmapped class falls to the default category
	}
	for _, tc := range tests {
		cat := ch.ClassToCategory.Lookup(tc.class)
		if cat != tc.category {
			t.Errorf("class %d: category %d, want %d", tc.class, cat, tc.category)
		}
		if r := ch.CategoryToResistance.Lookup(cat); r != tc.resistance {
			t.Errorf("class %d: resistance %g, want %g", tc.class, r, tc.resistance)
		}
	}
}

func TestFromFileJSON(t *testing.T) {
	path := writeConfig(t, "run.json", `{
  "transmitter": {"id": "TX_42", "longitude": 13.4, "latitude": 52.5},
  "receiver_grid": {"max_distance_km": 5, "distance_step_km": 0.5, "azimuth_step_deg": 45},
  "layers": {
    "elevation": "dem.tif",
    "landcover": "lcm.tif",
    "zones": "zones.shp",
    "zone_id_field": "district",
    "elevation_epsg": 32629
  },
  "mappings": {
    "class_to_category": {"1": 2, "7": 3},
    "category_default": 9,
    "category_to_resistance": {"2": 5.5, "3": 7},
    "resistance_default": 1
  }
}`)
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if cfg.Transmitter.ID != "TX_42" || cfg.Transmitter.Lat != 52.5 {
		t.Errorf("transmitter = %+v", cfg.Transmitter)
	}
	if cfg.Layers.ZoneIDField != "district" {
		t.Errorf("zone id field = %q, want district", cfg.Layers.ZoneIDField)
	}
	if cfg.Layers.ElevationEPSG != 32629 {
		t.Errorf("elevation EPSG = %d, want 32629", cfg.Layers.ElevationEPSG)
	}
	if cfg.Sentinel != 0 {
		t.Errorf("sentinel = %g, want unset", cfg.Sentinel)
	}

	ch, err := cfg.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if got := ch.ClassToCategory.Lookup(7); got != 3 {
		t.Errorf("class 7 category = %d, want 3", got)
	}
	if got := ch.ClassToCategory.Lookup(100); got != 9 {
		t.Errorf("unmapped class category = %d, want file default 9", got)
	}
	if got := ch.CategoryToResistance.Lookup(2); got != 5.5 {
		t.Errorf("category 2 resistance = %g, want 5.5", got)
	}
}

func TestFromFileYAML(t *testing.T) {
	path := writeConfig(t, "run.yaml", `
transmitter:
  id: TX_7
  longitude: -13.40694
  latitude: 9.345
receiver_grid:
  max_distance_km: 11
  distance_step_km: 0.03
  azimuth_step_deg: 10
layers:
  elevation: dem.asc
  landcover: lcm.tif
  zones: zones.geojson
  zone_id_field: zone
mappings:
  class_to_category:
    "10": 4
    "20": 3
  category_default: 1
  category_to_resistance:
    "3": 10
    "4": 15
  resistance_default: 0
`)
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if cfg.Transmitter.ID != "TX_7" {
		t.Errorf("transmitter id = %q", cfg.Transmitter.ID)
	}
	if cfg.ReceiverGrid.DistanceStepKm != 0.03 {
		t.Errorf("distance step = %g, want 0.03", cfg.ReceiverGrid.DistanceStepKm)
	}
	ch, err := cfg.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if got := ch.ClassToCategory.Lookup(10); got != 4 {
		t.Errorf("class 10 category = %d, want 4", got)
	}
}

// A file without a mappings section keeps the default tables; a file with
// one replaces them outright.
func TestFromFileTableReplacement(t *testing.T) {
	path := writeConfig(t, "run.json", `{
  "transmitter": {"longitude": 0, "latitude": 0},
  "receiver_grid": {"max_distance_km": 1, "distance_step_km": 1, "azimuth_step_deg": 90}
}`)
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	ch, err := cfg.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if got := ch.ClassToCategory.Lookup(100); got != 1 {
		t.Errorf("omitted mappings: class 100 category = %d, want default table's 1", got)
	}

	path = writeConfig(t, "own.json", `{
  "transmitter": {"longitude": 0, "latitude": 0},
  "receiver_grid": {"max_distance_km": 1, "distance_step_km": 1, "azimuth_step_deg": 90},
  "mappings": {"class_to_category": {"7": 3}, "category_default": 9}
}`)
	cfg, err = FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	ch, err = cfg.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if got := ch.ClassToCategory.Lookup(100); got != 9 {
		t.Errorf("file table: class 100 category = %d, want file default 9, no default-table bleed", got)
	}
}

func TestFromFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := FromFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeConfig(t, "run.toml", "")
		if _, err := FromFile(path); !errors.Is(err, ErrInvalid) {
			t.Fatalf("err = %v, want ErrInvalid", err)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeConfig(t, "run.json", "{")
		if _, err := FromFile(path); err == nil {
			t.Fatal("expected error for malformed json")
		}
	})

	t.Run("non-integer mapping key", func(t *testing.T) {
		path := writeConfig(t, "run.json", `{
  "transmitter": {"longitude": 0, "latitude": 0},
  "receiver_grid": {"max_distance_km": 1, "distance_step_km": 1, "azimuth_step_deg": 90},
  "mappings": {"class_to_category": {"forest": 1}}
}`)
		if _, err := FromFile(path); !errors.Is(err, ErrInvalid) {
			t.Fatalf("err = %v, want ErrInvalid", err)
		}
	})
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"latitude", func(c *Config) { c.Transmitter.Lat = 91 }},
		{"longitude", func(c *Config) { c.Transmitter.Lon = -181 }},
		{"max distance", func(c *Config) { c.ReceiverGrid.MaxDistanceKm = 0 }},
		{"distance step", func(c *Config) { c.ReceiverGrid.DistanceStepKm = -1 }},
		{"azimuth step", func(c *Config) { c.ReceiverGrid.AzimuthStepDeg = 400 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestRasterCRS(t *testing.T) {
	if crs := RasterCRS(0); crs != nil {
		t.Errorf("RasterCRS(0) = %v, want nil", crs)
	}
	crs := RasterCRS(32629)
	if crs == nil || crs.Code != 32629 {
		t.Errorf("RasterCRS(32629) = %v", crs)
	}
}
