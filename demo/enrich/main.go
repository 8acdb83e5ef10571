// Command enrich runs the full extraction pipeline from a configuration
// file: generate the receiver grid around the transmitter, enrich it from
// the configured elevation, land-cover and zone layers, and write the
// results as CSV and GeoJSON.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/mstgis/geodata"
	"github.com/mstgis/geodata/config"
	"github.com/mstgis/geodata/extract"
	"github.com/mstgis/geodata/pointgen"
	"github.com/mstgis/geodata/profileio"
	"github.com/mstgis/geodata/raster"
)

func main() {
	configPath := flag.String("config", "config.json", "run configuration (JSON or YAML)")
	csvPath := flag.String("csv", "enriched.csv", "CSV output path")
	geojsonPath := flag.String("geojson", "enriched.geojson", "GeoJSON output path")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.FromFile(*configPath)
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}
	chain, err := cfg.Chain()
	if err != nil {
		logger.Fatal("building mapping chain", zap.Error(err))
	}

	tx := pointgen.Transmitter{ID: cfg.Transmitter.ID, Lon: cfg.Transmitter.Lon, Lat: cfg.Transmitter.Lat}
	points := pointgen.Grid(tx, cfg.ReceiverGrid.MaxDistanceKm, cfg.ReceiverGrid.DistanceStepKm, cfg.ReceiverGrid.AzimuthStepDeg)
	logger.Info("generated receiver grid",
		zap.String("transmitter", tx.ID),
		zap.Int("points", len(points)))

	cache := raster.NewCache(8, nil)
	result, err := extract.Extract(context.Background(), extract.Request{
		Points:    points,
		CRS:       geodata.WGS84(),
		Elevation: extract.RasterFile{Path: cfg.Layers.ElevationPath, Cache: cache, CRS: config.RasterCRS(cfg.Layers.ElevationEPSG)},
		LandCover: extract.RasterFile{Path: cfg.Layers.LandCoverPath, Cache: cache, CRS: config.RasterCRS(cfg.Layers.LandCoverEPSG)},
		Zones:     extract.ZoneFile{Path: cfg.Layers.ZonePath, IDField: cfg.Layers.ZoneIDField},
		Mappings:  chain,
		Sentinel:  cfg.Sentinel,
	}, extract.WithLogger(logger))
	if err != nil {
		logger.Fatal("extraction", zap.Error(err))
	}
	logger.Info("extraction complete",
		zap.Int("records", len(result.Records)),
		zap.Int("degraded_pipelines", len(result.Degraded)))

	if err := writeFile(*csvPath, result.Records, profileio.WriteCSV); err != nil {
		logger.Fatal("writing CSV", zap.Error(err))
	}
	if err := writeFile(*geojsonPath, result.Records, profileio.WriteGeoJSON); err != nil {
		logger.Fatal("writing GeoJSON", zap.Error(err))
	}
	logger.Info("wrote outputs",
		zap.String("csv", *csvPath),
		zap.String("geojson", *geojsonPath))
}

func writeFile(path string, records []geodata.Record, write func(w io.Writer, records []geodata.Record) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
