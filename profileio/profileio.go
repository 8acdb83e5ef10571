// Package profileio formats enriched point batches for downstream
// consumers: GeoJSON and FlatGeobuf for mapping tools, CSV for the profile
// assembly step of the propagation calculator. Order and cardinality of the
// input batch are preserved 1:1 in every format.
package profileio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mstgis/geodata"
)

// csvHeader is the flat per-point schema consumed by profile assembly.
var csvHeader = []string{"azimuth", "step", "lon", "lat", "elevation", "category", "resistance", "zone"}

// WriteGeoJSON writes the batch as a GeoJSON FeatureCollection of points
// with the enriched attributes as feature properties.
func WriteGeoJSON(w io.Writer, records []geodata.Record) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		f := geojson.NewFeature(orb.Point{r.Lon, r.Lat})
		f.Properties = geojson.Properties{
			"azimuth":    r.ID.Azimuth,
			"step":       r.ID.Step,
			"elevation":  r.Elevation,
			"category":   r.Category,
			"resistance": r.Resistance,
			"zone":       r.Zone,
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("profileio: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteCSV writes the batch as one CSV row per point.
func WriteCSV(w io.Writer, records []geodata.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("profileio: %w", err)
	}
	row := make([]string, len(csvHeader))
	for _, r := range records {
		row[0] = strconv.Itoa(r.ID.Azimuth)
		row[1] = strconv.Itoa(r.ID.Step)
		row[2] = strconv.FormatFloat(r.Lon, 'f', -1, 64)
		row[3] = strconv.FormatFloat(r.Lat, 'f', -1, 64)
		row[4] = strconv.FormatFloat(r.Elevation, 'f', -1, 64)
		row[5] = strconv.Itoa(r.Category)
		row[6] = strconv.FormatFloat(r.Resistance, 'f', -1, 64)
		row[7] = strconv.Itoa(r.Zone)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("profileio: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
