// Package geodata enriches batches of geographic receiver points with the
// attributes needed for radio-propagation analysis: ground elevation, a
// land-cover-derived category and resistance, and an administrative zone id.
// It holds the contract types shared by the raster, zone, mapping and
// extract subpackages.
package geodata

import (
	"errors"
	"fmt"
)

// Common errors returned by this module.
var (
	ErrRasterUnavailable    = errors.New("geodata: raster unavailable")
	ErrZoneLayerUnavailable = errors.New("geodata: zone layer unavailable")
	ErrCRSMismatch          = errors.New("geodata: coordinate reference mismatch")
)

// Sentinel is the reserved value standing in for samples that could not be
// resolved: coordinates outside a raster's footprint, or cells equal to the
// raster's no-data value. It is distinct from every legitimate elevation and
// land-cover code in this domain.
const Sentinel = -9999.0

// CRS represents a coordinate reference system.
type CRS struct {
	Code int    // EPSG code (e.g., 4326 for WGS84)
	Name string // CRS name
	WKT  string // Well-Known Text representation, if known
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() CRS {
	return CRS{Code: 4326, Name: "WGS 84"}
}

// Undefined reports whether the CRS carries no EPSG code.
func (c CRS) Undefined() bool {
	return c.Code == 0
}

// Equal reports whether two CRSes identify the same system.
func (c CRS) Equal(o CRS) bool {
	return c.Code == o.Code
}

func (c CRS) String() string {
	if c.Undefined() {
		return "undefined"
	}
	return fmt.Sprintf("epsg:%d", c.Code)
}

// PointID correlates a receiver point to its position in the generated
// batch: the azimuth index of its profile and the distance step along it.
type PointID struct {
	Azimuth int
	Step    int
}

// Point is an immutable geographic coordinate plus its batch identifier.
// The CRS of a batch of points is declared alongside the batch, not per
// point.
type Point struct {
	Lon float64
	Lat float64
	ID  PointID
}

// Record is an enriched point: the original point plus the attributes
// resolved for it. A failed lookup for one attribute leaves the others
// intact.
type Record struct {
	Point
	Elevation  float64 // meters, Sentinel when unresolved
	Category   int     // land-cover category code
	Resistance float64 // surface resistance derived from the category
	Zone       int     // zone id, 0 when no containing polygon was found
}
