// Package zone loads administrative/regulatory polygon layers and resolves
// which zone, if any, contains each point of a batch. Layers are loaded once
// and queried many times; the per-point hot path performs no I/O.
package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/mstgis/geodata"
)

// Feature is one zone polygon: a Polygon or MultiPolygon geometry tagged
// with its integer zone id.
type Feature struct {
	Geometry orb.Geometry
	ID       int

	bound orb.Bound
}

// contains reports exact containment of p in the feature's geometry.
// Unsupported geometry kinds contain nothing.
func (f *Feature) contains(p orb.Point) bool {
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Ring:
		return planar.RingContains(g, p)
	default:
		return false
	}
}

// Layer is an ordered zone polygon set. Feature order is the layer's storage
// order and decides ties when polygons overlap: the first containing feature
// wins. A Layer is read-only after construction and safe for concurrent
// resolution.
type Layer struct {
	Features []Feature
	CRS      geodata.CRS

	bound orb.Bound
}

// NewLayer builds a layer from features, caching per-feature and layer
// bounds for the resolver's prefilters.
func NewLayer(features []Feature, crs geodata.CRS) *Layer {
	l := &Layer{Features: features, CRS: crs}
	for i := range l.Features {
		f := &l.Features[i]
		if f.Geometry == nil {
			continue
		}
		f.bound = f.Geometry.Bound()
		if i == 0 {
			l.bound = f.bound
		} else {
			l.bound = l.bound.Union(f.bound)
		}
	}
	return l
}

// Bound returns the layer's combined bounding box.
func (l *Layer) Bound() orb.Bound {
	return l.bound
}

// Load opens a zone layer by path, dispatching on the file extension.
func Load(path, idField string) (*Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return LoadShapefile(path, idField)
	case ".fgb":
		return LoadFlatGeobuf(path, idField)
	case ".geojson", ".json":
		return LoadGeoJSON(path, idField)
	default:
		return nil, fmt.Errorf("%w: unrecognized zone layer format %q", geodata.ErrZoneLayerUnavailable, filepath.Ext(path))
	}
}

// LoadGeoJSON reads a zone layer from a GeoJSON FeatureCollection. Zone ids
// come from the idProperty of each feature; non-polygonal features are
// skipped. GeoJSON coordinates are WGS84 by convention.
func LoadGeoJSON(path, idProperty string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geodata.ErrZoneLayerUnavailable, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", geodata.ErrZoneLayerUnavailable, path, err)
	}

	features := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		id, ok := intProperty(f.Properties, idProperty)
		if !ok {
			return nil, fmt.Errorf("%w: %s: feature missing integer property %q", geodata.ErrZoneLayerUnavailable, path, idProperty)
		}
		features = append(features, Feature{Geometry: f.Geometry, ID: id})
	}
	return NewLayer(features, geodata.WGS84()), nil
}

// intProperty reads an integer out of the loosely typed property values a
// GeoJSON decode produces.
func intProperty(props geojson.Properties, key string) (int, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
