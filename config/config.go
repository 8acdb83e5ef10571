// Package config loads and validates run configuration: the transmitter,
// receiver-grid parameters, data layer paths, and the code mapping tables
// with their defaults. JSON and YAML files are supported; mapping table
// keys are written as strings in either format and parsed to integers here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/mstgis/geodata"
	"github.com/mstgis/geodata/mapping"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("config: invalid configuration")

// Transmitter is the grid origin.
type Transmitter struct {
	ID  string  `json:"id" yaml:"id"`
	Lon float64 `json:"longitude" yaml:"longitude"`
	Lat float64 `json:"latitude" yaml:"latitude"`
}

// ReceiverGrid controls receiver point generation.
type ReceiverGrid struct {
	MaxDistanceKm  float64 `json:"max_distance_km" yaml:"max_distance_km"`
	DistanceStepKm float64 `json:"distance_step_km" yaml:"distance_step_km"`
	AzimuthStepDeg float64 `json:"azimuth_step_deg" yaml:"azimuth_step_deg"`
}

// Layers points at the three data layers on disk.
type Layers struct {
	ElevationPath string `json:"elevation" yaml:"elevation"`
	LandCoverPath string `json:"landcover" yaml:"landcover"`
	ZonePath      string `json:"zones" yaml:"zones"`
	ZoneIDField   string `json:"zone_id_field" yaml:"zone_id_field"`
	// EPSG codes for rasters whose format carries no CRS (ASCII grids).
	ElevationEPSG int `json:"elevation_epsg" yaml:"elevation_epsg"`
	LandCoverEPSG int `json:"landcover_epsg" yaml:"landcover_epsg"`
}

// Mappings holds the two code mapping tables. Keys are strings for the
// benefit of JSON and YAML, parsed to integers by Chain.
type Mappings struct {
	ClassToCategory      map[string]int     `json:"class_to_category" yaml:"class_to_category"`
	CategoryDefault      int                `json:"category_default" yaml:"category_default"`
	CategoryToResistance map[string]float64 `json:"category_to_resistance" yaml:"category_to_resistance"`
	ResistanceDefault    float64            `json:"resistance_default" yaml:"resistance_default"`
}

// Config is one run's configuration.
type Config struct {
	Transmitter  Transmitter  `json:"transmitter" yaml:"transmitter"`
	ReceiverGrid ReceiverGrid `json:"receiver_grid" yaml:"receiver_grid"`
	Layers       Layers       `json:"layers" yaml:"layers"`
	Mappings     Mappings     `json:"mappings" yaml:"mappings"`
	// Sentinel overrides the default value for unresolved samples when
	// non-zero.
	Sentinel float64 `json:"sentinel" yaml:"sentinel"`
}

// Default returns the configuration mirroring this system's standard run:
// the LCM10 class grouping and the category resistance table.
func Default() Config {
	return Config{
		Transmitter: Transmitter{
			ID:  "TX_0001",
			Lon: -13.40694,
			Lat: 9.345,
		},
		ReceiverGrid: ReceiverGrid{
			MaxDistanceKm:  11,
			DistanceStepKm: 0.03,
			AzimuthStepDeg: 10,
		},
		Layers: Layers{
			ZoneIDField: "zone",
		},
		Mappings: Mappings{
			ClassToCategory: map[string]int{
				"100": 1,
				"80":  2, "30": 2, "40": 2, "70": 2, "110": 2, "254": 2,
				"20": 3, "50": 3,
				"10": 4, "60": 4, "90": 4,
			},
			CategoryDefault: 1,
			CategoryToResistance: map[string]float64{
				"1": 0, "2": 0, "3": 10, "4": 15, "5": 20,
			},
			ResistanceDefault: 0,
		},
	}
}

// FromFile loads a configuration from a JSON or YAML file, validating it.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	base := Default()
	cfg := base
	// Decoders merge into pre-populated maps; a table given in the file must
	// replace the default table, not extend it.
	cfg.Mappings.ClassToCategory = nil
	cfg.Mappings.CategoryToResistance = nil
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("%w: unsupported file format %q", ErrInvalid, filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if cfg.Mappings.ClassToCategory == nil {
		cfg.Mappings.ClassToCategory = base.Mappings.ClassToCategory
	}
	if cfg.Mappings.CategoryToResistance == nil {
		cfg.Mappings.CategoryToResistance = base.Mappings.CategoryToResistance
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and the mapping tables' integer keys.
func (c Config) Validate() error {
	if c.Transmitter.Lat < -90 || c.Transmitter.Lat > 90 {
		return fmt.Errorf("%w: transmitter latitude %g out of range", ErrInvalid, c.Transmitter.Lat)
	}
	if c.Transmitter.Lon < -180 || c.Transmitter.Lon > 180 {
		return fmt.Errorf("%w: transmitter longitude %g out of range", ErrInvalid, c.Transmitter.Lon)
	}
	if c.ReceiverGrid.MaxDistanceKm <= 0 || c.ReceiverGrid.DistanceStepKm <= 0 {
		return fmt.Errorf("%w: receiver grid distances must be positive", ErrInvalid)
	}
	if c.ReceiverGrid.AzimuthStepDeg <= 0 || c.ReceiverGrid.AzimuthStepDeg > 360 {
		return fmt.Errorf("%w: azimuth step %g out of range", ErrInvalid, c.ReceiverGrid.AzimuthStepDeg)
	}
	if _, err := intKeys(c.Mappings.ClassToCategory); err != nil {
		return fmt.Errorf("%w: class_to_category: %v", ErrInvalid, err)
	}
	if _, err := intKeys(c.Mappings.CategoryToResistance); err != nil {
		return fmt.Errorf("%w: category_to_resistance: %v", ErrInvalid, err)
	}
	return nil
}

// Chain converts the file-form mapping tables into the extraction chain.
func (c Config) Chain() (mapping.Chain, error) {
	classes, err := intKeys(c.Mappings.ClassToCategory)
	if err != nil {
		return mapping.Chain{}, fmt.Errorf("%w: class_to_category: %v", ErrInvalid, err)
	}
	resistances, err := intKeys(c.Mappings.CategoryToResistance)
	if err != nil {
		return mapping.Chain{}, fmt.Errorf("%w: category_to_resistance: %v", ErrInvalid, err)
	}
	return mapping.Chain{
		ClassToCategory:      mapping.Table{Values: classes, Default: c.Mappings.CategoryDefault},
		CategoryToResistance: mapping.ResistanceTable{Values: resistances, Default: c.Mappings.ResistanceDefault},
	}, nil
}

// RasterCRS returns the declared CRS override for a configured EPSG code,
// or nil when the raster's own georeferencing should stand.
func RasterCRS(epsg int) *geodata.CRS {
	if epsg == 0 {
		return nil
	}
	return &geodata.CRS{Code: epsg}
}

func intKeys[V any](m map[string]V) (map[int]V, error) {
	out := make(map[int]V, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("key %q is not an integer", k)
		}
		out[i] = v
	}
	return out, nil
}
