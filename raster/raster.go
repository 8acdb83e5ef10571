// Package raster loads georeferenced single-band rasters fully into memory
// and samples them by batches of pixel indices. A raster is opened and read
// exactly once; every subsequent lookup runs against the in-memory grid.
// Rasters larger than available memory are out of scope: there is no
// internal tiling or streaming.
package raster

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/mstgis/geodata"
)

// Affine is a GDAL-style geotransform mapping fractional pixel positions to
// geographic coordinates:
//
//	X = C + A*col + B*row
//	Y = F + D*col + E*row
//
// For north-up rasters B and D are zero and E is negative.
type Affine struct {
	A, B, C, D, E, F float64
}

// Invert returns the inverse transform, mapping geographic coordinates back
// to fractional (col, row) positions. ok is false when the transform is
// singular.
func (t Affine) Invert() (inv Affine, ok bool) {
	det := t.A*t.E - t.B*t.D
	if det == 0 {
		return Affine{}, false
	}
	inv = Affine{
		A: t.E / det,
		B: -t.B / det,
		D: -t.D / det,
		E: t.A / det,
	}
	inv.C = -(inv.A*t.C + inv.B*t.F)
	inv.F = -(inv.D*t.C + inv.E*t.F)
	return inv, true
}

// Apply maps a fractional (col, row) position to geographic coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.C + t.A*col + t.B*row, t.F + t.D*col + t.E*row
}

// PixelIndices maps a batch of geographic coordinates to integer (row, col)
// pixel indices in one pass, inverting the transform once for the whole
// batch. Indices are the floor of the fractional position, so a coordinate
// anywhere inside a cell maps to that cell. Out-of-range indices are
// returned as computed; bounds are the sampler's concern.
func (t Affine) PixelIndices(xs, ys []float64) (rows, cols []int, err error) {
	inv, ok := t.Invert()
	if !ok {
		return nil, nil, fmt.Errorf("%w: singular transform", geodata.ErrRasterUnavailable)
	}
	rows = make([]int, len(xs))
	cols = make([]int, len(xs))
	for i := range xs {
		fcol := inv.C + inv.A*xs[i] + inv.B*ys[i]
		frow := inv.F + inv.D*xs[i] + inv.E*ys[i]
		cols[i] = int(math.Floor(fcol))
		rows[i] = int(math.Floor(frow))
	}
	return rows, cols, nil
}

// Grid is a fully materialized single-band raster. Data is row-major with
// row 0 at the top. A Grid is read-only after load and safe for concurrent
// sampling.
type Grid struct {
	Width, Height int
	Data          []float64
	Transform     Affine
	NoData        float64
	HasNoData     bool
	CRS           geodata.CRS
}

// At returns the cell value at (row, col). It panics when the index is out
// of bounds; use Sample for checked batch access.
func (g *Grid) At(row, col int) float64 {
	if row < 0 || row >= g.Height || col < 0 || col >= g.Width {
		panic(fmt.Sprintf("raster: index (%d, %d) out of %dx%d grid", row, col, g.Height, g.Width))
	}
	return g.Data[row*g.Width+col]
}

// Sample returns one value per (row, col) pair, in order. An out-of-bounds
// index or a cell equal to the grid's no-data value yields sentinel instead.
// A missing sample is data, not a failure: receiver points routinely fall
// just outside a raster's footprint near path extremities.
func (g *Grid) Sample(rows, cols []int, sentinel float64) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		r, c := rows[i], cols[i]
		if r < 0 || r >= g.Height || c < 0 || c >= g.Width {
			out[i] = sentinel
			continue
		}
		v := g.Data[r*g.Width+c]
		if g.HasNoData && v == g.NoData {
			out[i] = sentinel
			continue
		}
		out[i] = v
	}
	return out
}

// SampleCoords maps geographic coordinates to pixel indices and samples them
// in one call. Coordinates must already be in the grid's CRS.
func (g *Grid) SampleCoords(xs, ys []float64, sentinel float64) ([]float64, error) {
	rows, cols, err := g.Transform.PixelIndices(xs, ys)
	if err != nil {
		return nil, err
	}
	return g.Sample(rows, cols, sentinel), nil
}

// Load opens a raster by path, dispatching on the file extension.
func Load(path string) (*Grid, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".gtiff":
		return LoadGeoTIFF(path)
	case ".asc", ".agr", ".grd":
		return LoadASCIIGrid(path)
	default:
		return nil, fmt.Errorf("%w: unrecognized raster format %q", geodata.ErrRasterUnavailable, filepath.Ext(path))
	}
}
