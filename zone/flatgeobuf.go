package zone

import (
	"encoding/binary"
	"fmt"
	"math"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"

	"github.com/mstgis/geodata"
)

// LoadFlatGeobuf reads a polygon FlatGeobuf file into a zone layer. Zone ids
// come from the integer idProperty column. The file must carry a spatial
// index: the Go FlatGeobuf reader can only enumerate features by searching
// the index, so an unindexed file is unreadable here.
func LoadFlatGeobuf(path, idProperty string) (*Layer, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geodata.ErrZoneLayerUnavailable, err)
	}
	h := fgb.Header()
	if h == nil {
		return nil, fmt.Errorf("%w: %s: no header", geodata.ErrZoneLayerUnavailable, path)
	}
	if h.IndexNodeSize() == 0 {
		return nil, fmt.Errorf("%w: %s: missing spatial index", geodata.ErrZoneLayerUnavailable, path)
	}

	idCol, colTypes, err := columnSchema(h, idProperty)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", geodata.ErrZoneLayerUnavailable, path, err)
	}

	// Enumerate everything. A header without an envelope still answers a
	// whole-plane search through the index.
	minX, minY := -math.MaxFloat64, -math.MaxFloat64
	maxX, maxY := math.MaxFloat64, math.MaxFloat64
	if h.EnvelopeLength() >= 4 {
		minX, minY, maxX, maxY = h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)
	}
	raw, err := fgb.Search(minX, minY, maxX, maxY)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", geodata.ErrZoneLayerUnavailable, path, err)
	}

	features := make([]Feature, 0, len(raw))
	for i, ff := range raw {
		var geomObj flattypes.Geometry
		geom := ff.Geometry(&geomObj)
		if geom == nil {
			continue
		}
		var g orb.Geometry
		switch geom.Type() {
		case flattypes.GeometryTypePolygon:
			g = polygonFromXYEnds(geom)
		case flattypes.GeometryTypeMultiPolygon:
			g = multiPolygonFromParts(geom)
		default:
			continue
		}
		id, ok := featureZoneID(ff, idCol, colTypes)
		if !ok {
			return nil, fmt.Errorf("%w: %s: feature %d missing integer property %q", geodata.ErrZoneLayerUnavailable, path, i, idProperty)
		}
		features = append(features, Feature{Geometry: g, ID: id})
	}

	return NewLayer(features, headerCRS(h)), nil
}

func headerCRS(h *flattypes.Header) geodata.CRS {
	var crs flattypes.Crs
	if h.Crs(&crs) == nil {
		return geodata.CRS{}
	}
	return geodata.CRS{Code: int(crs.Code()), Name: string(crs.Name())}
}

// columnSchema locates the id column and records every column's type so the
// property stream can be walked past values this loader does not need.
func columnSchema(h *flattypes.Header, idProperty string) (int, []flattypes.ColumnType, error) {
	n := h.ColumnsLength()
	idCol := -1
	types := make([]flattypes.ColumnType, n)
	for i := 0; i < n; i++ {
		var col flattypes.Column
		if !h.Columns(&col, i) {
			return 0, nil, fmt.Errorf("unreadable column %d", i)
		}
		types[i] = col.Type()
		if string(col.Name()) == idProperty {
			idCol = i
		}
	}
	if idCol < 0 {
		return 0, nil, fmt.Errorf("no column %q", idProperty)
	}
	return idCol, types, nil
}

// featureZoneID walks the feature's property stream: repeated pairs of
// little-endian uint16 column index and a value sized by the column type.
// Values in columns other than the id column are skipped by width, whatever
// their type.
func featureZoneID(f *flattypes.Feature, idCol int, colTypes []flattypes.ColumnType) (int, bool) {
	n := f.PropertiesLength()
	if n == 0 {
		return 0, false
	}
	data := make([]byte, n)
	for i := 0; i < n; i++ {
		data[i] = byte(f.Properties(i))
	}

	offset := 0
	for offset+2 <= len(data) {
		col := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if col >= len(colTypes) {
			return 0, false
		}
		if col == idCol {
			value, _, ok := intValue(data[offset:], colTypes[col])
			return value, ok
		}
		width, ok := valueWidth(data[offset:], colTypes[col])
		if !ok {
			return 0, false
		}
		offset += width
	}
	return 0, false
}

// valueWidth returns the encoded width of the value at the head of data.
// Variable-width types (string, json, datetime, binary) carry a
// little-endian uint32 length prefix.
func valueWidth(data []byte, t flattypes.ColumnType) (int, bool) {
	var w int
	switch t {
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte, flattypes.ColumnTypeBool:
		w = 1
	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		w = 2
	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt, flattypes.ColumnTypeFloat:
		w = 4
	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong, flattypes.ColumnTypeDouble:
		w = 8
	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson,
		flattypes.ColumnTypeDateTime, flattypes.ColumnTypeBinary:
		if len(data) < 4 {
			return 0, false
		}
		w = 4 + int(binary.LittleEndian.Uint32(data))
	default:
		return 0, false
	}
	return w, len(data) >= w
}

// intValue decodes the property value at the head of data. Non-integer
// values are skipped by width; an id read from one of those fails.
func intValue(data []byte, t flattypes.ColumnType) (value, width int, ok bool) {
	switch t {
	case flattypes.ColumnTypeByte:
		if len(data) < 1 {
			return 0, 0, false
		}
		return int(int8(data[0])), 1, true
	case flattypes.ColumnTypeUByte, flattypes.ColumnTypeBool:
		if len(data) < 1 {
			return 0, 0, false
		}
		return int(data[0]), 1, true
	case flattypes.ColumnTypeShort:
		if len(data) < 2 {
			return 0, 0, false
		}
		return int(int16(binary.LittleEndian.Uint16(data))), 2, true
	case flattypes.ColumnTypeUShort:
		if len(data) < 2 {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint16(data)), 2, true
	case flattypes.ColumnTypeInt:
		if len(data) < 4 {
			return 0, 0, false
		}
		return int(int32(binary.LittleEndian.Uint32(data))), 4, true
	case flattypes.ColumnTypeUInt:
		if len(data) < 4 {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint32(data)), 4, true
	case flattypes.ColumnTypeLong:
		if len(data) < 8 {
			return 0, 0, false
		}
		return int(int64(binary.LittleEndian.Uint64(data))), 8, true
	case flattypes.ColumnTypeULong:
		if len(data) < 8 {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint64(data)), 8, true
	case flattypes.ColumnTypeFloat:
		if len(data) < 4 {
			return 0, 0, false
		}
		return int(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, true
	case flattypes.ColumnTypeDouble:
		if len(data) < 8 {
			return 0, 0, false
		}
		return int(math.Float64frombits(binary.LittleEndian.Uint64(data))), 8, true
	default:
		return 0, 0, false
	}
}

// polygonFromXYEnds converts a FlatGeobuf polygon's flat coordinate and ring
// end arrays to an orb.Polygon.
func polygonFromXYEnds(g *flattypes.Geometry) orb.Polygon {
	xyLen := g.XyLength()
	if xyLen < 2 {
		return orb.Polygon{}
	}
	endsLen := g.EndsLength()
	if endsLen == 0 {
		ring := make(orb.Ring, 0, xyLen/2)
		for i := 0; i+1 < xyLen; i += 2 {
			ring = append(ring, orb.Point{g.Xy(i), g.Xy(i + 1)})
		}
		return orb.Polygon{ring}
	}

	poly := make(orb.Polygon, 0, endsLen)
	start := uint32(0)
	for i := 0; i < endsLen; i++ {
		end := g.Ends(i)
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			idx := int(j) * 2
			if idx+1 < xyLen {
				ring = append(ring, orb.Point{g.Xy(idx), g.Xy(idx + 1)})
			}
		}
		poly = append(poly, ring)
		start = end
	}
	return poly
}

// multiPolygonFromParts converts a FlatGeobuf multipolygon, each part being
// a polygon, to an orb.MultiPolygon.
func multiPolygonFromParts(g *flattypes.Geometry) orb.MultiPolygon {
	partsLen := g.PartsLength()
	if partsLen == 0 {
		poly := polygonFromXYEnds(g)
		if len(poly) > 0 {
			return orb.MultiPolygon{poly}
		}
		return orb.MultiPolygon{}
	}
	mp := make(orb.MultiPolygon, 0, partsLen)
	for i := 0; i < partsLen; i++ {
		var part flattypes.Geometry
		if g.Parts(&part, i) {
			poly := polygonFromXYEnds(&part)
			if len(poly) > 0 {
				mp = append(mp, poly)
			}
		}
	}
	return mp
}
