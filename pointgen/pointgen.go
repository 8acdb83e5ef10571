// Package pointgen generates the receiver point batches a propagation run
// enriches: polar azimuth/distance grids around a transmitter, and the
// golden-angle phyllotaxis pattern for uniform disc coverage. All points are
// WGS84.
package pointgen

import (
	"math"

	"github.com/mstgis/geodata"
)

const earthRadiusM = 6371000.0

// goldenAngle is 2π(1 − 1/φ) ≈ 137.5°, the divergence angle giving the most
// even disc packing.
var goldenAngle = 2 * math.Pi * (1 - 1/math.Sqrt(5))

// Transmitter is the origin of a receiver grid.
type Transmitter struct {
	ID  string
	Lon float64
	Lat float64
}

// Grid generates receiver points along radial profiles: one profile per
// azimuth step, sampled every stepKm out to maxDistanceKm. Each point's ID
// records its azimuth index and distance step, so downstream profile
// assembly can regroup the flat batch. Points are ordered profile-major
// with step index starting at 1 (the transmitter cell itself is not a
// receiver).
func Grid(tx Transmitter, maxDistanceKm, stepKm, azimuthStepDeg float64) []geodata.Point {
	if maxDistanceKm <= 0 || stepKm <= 0 || azimuthStepDeg <= 0 {
		return nil
	}
	numAzimuths := int(360 / azimuthStepDeg)
	steps := int(maxDistanceKm / stepKm)

	points := make([]geodata.Point, 0, numAzimuths*steps)
	for a := 0; a < numAzimuths; a++ {
		azimuth := float64(a) * azimuthStepDeg
		for s := 1; s <= steps; s++ {
			lat, lon := destination(tx.Lat, tx.Lon, azimuth, float64(s)*stepKm*1000)
			points = append(points, geodata.Point{
				Lon: lon,
				Lat: lat,
				ID:  geodata.PointID{Azimuth: a, Step: s},
			})
		}
	}
	return points
}

// Phyllotaxis generates n points spiraling out from (lat0, lon0) at the
// golden angle, radius scaled to scale meters. The √((i+0.5)/n) radius
// spreads points evenly over the disc.
func Phyllotaxis(lat0, lon0 float64, n int, scale float64) []geodata.Point {
	points := make([]geodata.Point, 0, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * goldenAngle
		radius := scale * math.Sqrt((float64(i)+0.5)/float64(n))

		x := radius * math.Cos(angle)
		y := radius * math.Sin(angle)

		// Small-area approximation; fine at the few-kilometer scales these
		// discs cover.
		lat := lat0 + y/111320
		lon := lon0 + x/(111320*math.Cos(lat0*math.Pi/180))

		points = append(points, geodata.Point{
			Lon: lon,
			Lat: lat,
			ID:  geodata.PointID{Azimuth: 0, Step: i},
		})
	}
	return points
}

// destination solves the direct geodesic problem on a sphere: the point
// reached from (lat, lon) on the given azimuth after distanceM meters.
func destination(lat, lon, azimuthDeg, distanceM float64) (destLat, destLon float64) {
	φ1 := lat * math.Pi / 180
	λ1 := lon * math.Pi / 180
	θ := azimuthDeg * math.Pi / 180
	δ := distanceM / earthRadiusM

	sinφ2 := math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ)
	φ2 := math.Asin(sinφ2)
	λ2 := λ1 + math.Atan2(
		math.Sin(θ)*math.Sin(δ)*math.Cos(φ1),
		math.Cos(δ)-math.Sin(φ1)*sinφ2,
	)

	destLat = φ2 * 180 / math.Pi
	destLon = math.Mod(λ2*180/math.Pi+540, 360) - 180
	return destLat, destLon
}
