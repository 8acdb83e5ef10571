package zone

import (
	"fmt"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/mstgis/geodata"
)

// LoadShapefile reads a polygon shapefile into a zone layer. Zone ids come
// from the idField attribute of the accompanying DBF table; non-polygon
// shapes are skipped. Shapefiles carry their CRS in a sidecar .prj this
// loader does not parse, so the layer CRS defaults to WGS84; callers with
// projected layers must override it.
func LoadShapefile(path, idField string) (*Layer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geodata.ErrZoneLayerUnavailable, err)
	}
	defer r.Close()

	fieldIdx := -1
	for i, f := range r.Fields() {
		if strings.EqualFold(f.String(), idField) {
			fieldIdx = i
			break
		}
	}
	if fieldIdx < 0 {
		return nil, fmt.Errorf("%w: %s: no attribute field %q", geodata.ErrZoneLayerUnavailable, path, idField)
	}

	var features []Feature
	for r.Next() {
		row, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		geom := polygonGeometry(poly)
		if geom == nil {
			continue
		}
		// DBF values come back NUL-padded to the field width.
		attr := strings.TrimSpace(strings.Trim(r.ReadAttribute(row, fieldIdx), "\x00"))
		id, err := strconv.Atoi(attr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: row %d: attribute %q is not an integer: %q", geodata.ErrZoneLayerUnavailable, path, row, idField, attr)
		}
		features = append(features, Feature{Geometry: geom, ID: id})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", geodata.ErrZoneLayerUnavailable, path, err)
	}
	return NewLayer(features, geodata.WGS84()), nil
}

// polygonGeometry regroups a shapefile polygon's flat ring list into orb
// geometry. Shapefile exterior rings wind clockwise and hole rings
// counter-clockwise; each exterior starts a polygon and the holes that
// follow it belong to it.
func polygonGeometry(poly *shp.Polygon) orb.Geometry {
	rings := splitRings(poly)
	if len(rings) == 0 {
		return nil
	}

	var polys orb.MultiPolygon
	for _, ring := range rings {
		if signedArea(ring) <= 0 || len(polys) == 0 {
			// Clockwise: a new exterior. A leading hole with no exterior is
			// malformed; promote it rather than dropping it.
			polys = append(polys, orb.Polygon{ring})
			continue
		}
		polys[len(polys)-1] = append(polys[len(polys)-1], ring)
	}

	if len(polys) == 1 {
		return polys[0]
	}
	return polys
}

func splitRings(poly *shp.Polygon) []orb.Ring {
	rings := make([]orb.Ring, 0, len(poly.Parts))
	for i, start := range poly.Parts {
		end := len(poly.Points)
		if i+1 < len(poly.Parts) {
			end = int(poly.Parts[i+1])
		}
		if end-int(start) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, end-int(start))
		for _, p := range poly.Points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

// signedArea is the shoelace sum: positive for counter-clockwise rings.
func signedArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}
