// Package extract orchestrates the enrichment of one batch of receiver
// points: elevation and land-cover raster sampling, zone resolution, and the
// code mapping chain. Each data layer is loaded and reconciled to the
// points' CRS at most once per call; the per-point hot path touches only
// in-memory structures.
package extract

import (
	"context"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mstgis/geodata"
	"github.com/mstgis/geodata/mapping"
	"github.com/mstgis/geodata/raster"
	"github.com/mstgis/geodata/reproject"
	"github.com/mstgis/geodata/zone"
)

// Pipeline names the independent lookup pipelines of one extraction.
type Pipeline string

const (
	PipelineElevation Pipeline = "elevation"
	PipelineLandCover Pipeline = "landcover"
	PipelineZone      Pipeline = "zone"
)

// Degradation reports that one pipeline fell back to defaults for the whole
// batch, and why. The other pipelines' outputs are unaffected.
type Degradation struct {
	Pipeline Pipeline
	Err      error
}

// Request is one extraction batch: the points with their declared CRS, the
// three data layer sources, and the mapping chain.
type Request struct {
	Points []geodata.Point
	CRS    geodata.CRS

	Elevation RasterSource
	LandCover RasterSource
	Zones     ZoneSource

	Mappings mapping.Chain

	// Sentinel overrides geodata.Sentinel for unresolved samples when
	// non-zero.
	Sentinel float64
}

// Result is the enriched batch plus the structured degradation report.
// Records preserve the input's order and cardinality 1:1.
type Result struct {
	Records  []geodata.Record
	Degraded []Degradation
}

// Option configures an extraction call.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger makes the orchestrator log pipeline degradations at warn
// level. The default is silence.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Extract runs the three lookup pipelines over the batch concurrently and
// merges their outputs per point. A pipeline failure (unavailable layer,
// unreconcilable CRS) degrades that pipeline to defaults for every point
// and never aborts the others: downstream consumers tolerate partially
// populated records but not a missing batch. The only returned error is
// context cancellation.
func Extract(ctx context.Context, req Request, opts ...Option) (Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	sentinel := req.Sentinel
	if sentinel == 0 {
		sentinel = geodata.Sentinel
	}

	n := len(req.Points)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range req.Points {
		xs[i] = p.Lon
		ys[i] = p.Lat
	}

	var (
		mu       sync.Mutex
		degraded []Degradation

		elevations  []float64
		categories  []int
		resistances []float64
		zones       []int
	)
	degrade := func(p Pipeline, err error) {
		mu.Lock()
		degraded = append(degraded, Degradation{Pipeline: p, Err: err})
		mu.Unlock()
		o.logger.Warn("pipeline degraded to defaults",
			zap.String("pipeline", string(p)),
			zap.Int("points", n),
			zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := sampleRaster(req.Elevation, xs, ys, req.CRS, sentinel)
		if err != nil {
			degrade(PipelineElevation, err)
			vals = filled(n, sentinel)
		}
		elevations = vals
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := sampleRaster(req.LandCover, xs, ys, req.CRS, sentinel)
		if err != nil {
			degrade(PipelineLandCover, err)
			vals = filled(n, sentinel)
		}
		// The mapping chain consumes the land-cover output directly; with a
		// degraded raster every sample is the sentinel and both stages
		// resolve to their configured defaults.
		categories, resistances = req.Mappings.Apply(vals, sentinel)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := resolveZones(req.Zones, xs, ys, req.CRS)
		if err != nil {
			degrade(PipelineZone, err)
			ids = make([]int, n)
		}
		zones = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	records := make([]geodata.Record, n)
	for i, p := range req.Points {
		records[i] = geodata.Record{
			Point:      p,
			Elevation:  elevations[i],
			Category:   categories[i],
			Resistance: resistances[i],
			Zone:       zones[i],
		}
	}
	return Result{Records: records, Degraded: degraded}, nil
}

// sampleRaster runs one raster pipeline: load once, reconcile CRS once,
// index and sample the whole batch.
func sampleRaster(src RasterSource, xs, ys []float64, ptCRS geodata.CRS, sentinel float64) ([]float64, error) {
	if src == nil {
		return nil, geodata.ErrRasterUnavailable
	}
	grid, err := src.Load()
	if err != nil {
		return nil, err
	}
	cx, cy := xs, ys
	if !grid.CRS.Equal(ptCRS) {
		cx = append([]float64(nil), xs...)
		cy = append([]float64(nil), ys...)
		if err := reproject.Coords(cx, cy, ptCRS, grid.CRS); err != nil {
			return nil, err
		}
	}
	return grid.SampleCoords(cx, cy, sentinel)
}

// resolveZones runs the zone pipeline: load once, reconcile CRS once,
// resolve the whole batch.
func resolveZones(src ZoneSource, xs, ys []float64, ptCRS geodata.CRS) ([]int, error) {
	if src == nil {
		return nil, geodata.ErrZoneLayerUnavailable
	}
	layer, err := src.Load()
	if err != nil {
		return nil, err
	}
	cx, cy := xs, ys
	if !layer.CRS.Equal(ptCRS) {
		cx = append([]float64(nil), xs...)
		cy = append([]float64(nil), ys...)
		if err := reproject.Coords(cx, cy, ptCRS, layer.CRS); err != nil {
			return nil, err
		}
	}
	points := make([]orb.Point, len(cx))
	for i := range cx {
		points[i] = orb.Point{cx[i], cy[i]}
	}
	return layer.Resolve(points), nil
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// RasterSource supplies a preloaded raster grid to the orchestrator.
type RasterSource interface {
	Load() (*raster.Grid, error)
}

// RasterFile loads a raster from disk, optionally through a shared cache,
// optionally overriding the CRS for formats that do not carry one.
type RasterFile struct {
	Path  string
	Cache *raster.Cache
	CRS   *geodata.CRS
}

func (s RasterFile) Load() (*raster.Grid, error) {
	var g *raster.Grid
	var err error
	if s.Cache != nil {
		g, err = s.Cache.Load(s.Path)
	} else {
		g, err = raster.Load(s.Path)
	}
	if err != nil {
		return nil, err
	}
	if s.CRS != nil {
		clone := *g
		clone.CRS = *s.CRS
		return &clone, nil
	}
	return g, nil
}

// RasterGrid supplies an already materialized grid.
type RasterGrid struct {
	Grid *raster.Grid
}

func (s RasterGrid) Load() (*raster.Grid, error) {
	if s.Grid == nil {
		return nil, geodata.ErrRasterUnavailable
	}
	return s.Grid, nil
}

// ZoneSource supplies a loaded zone layer to the orchestrator.
type ZoneSource interface {
	Load() (*zone.Layer, error)
}

// ZoneFile loads a zone layer from disk, dispatching on extension.
type ZoneFile struct {
	Path    string
	IDField string
}

func (s ZoneFile) Load() (*zone.Layer, error) {
	return zone.Load(s.Path, s.IDField)
}

// ZoneLayer supplies an already loaded layer.
type ZoneLayer struct {
	Layer *zone.Layer
}

func (s ZoneLayer) Load() (*zone.Layer, error) {
	if s.Layer == nil {
		return nil, geodata.ErrZoneLayerUnavailable
	}
	return s.Layer, nil
}
