package zone

import (
	"fmt"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Resolve returns one zone id per point, in order, 0 when no feature
// contains the point. The strategy is chosen once per batch by a capability
// probe: the bulk join runs when every feature carries polygonal geometry,
// otherwise resolution falls back to an R-tree built once over the feature
// bounds and queried per point. Both strategies honor first-match-by-storage-
// order when polygons overlap.
func (l *Layer) Resolve(points []orb.Point) []int {
	var r resolver
	if br, err := newBulkResolver(l); err == nil {
		r = br
	} else {
		r = newIndexResolver(l)
	}
	return r.resolve(points)
}

type resolver interface {
	resolve(points []orb.Point) []int
}

// bulkResolver joins the whole batch against the layer in one polygon-major
// pass: per feature, a bounding-box prefilter narrows the batch before the
// exact containment test. Cost is linear in points plus features for layers
// whose polygons overlap few points.
type bulkResolver struct {
	layer *Layer
}

// newBulkResolver probes the layer for bulk-join capability. A feature with
// missing or non-polygonal geometry rejects the layer.
func newBulkResolver(l *Layer) (*bulkResolver, error) {
	for i := range l.Features {
		switch l.Features[i].Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon, orb.Ring:
		default:
			return nil, fmt.Errorf("zone: feature %d has unsupported geometry %T", i, l.Features[i].Geometry)
		}
	}
	return &bulkResolver{layer: l}, nil
}

func (r *bulkResolver) resolve(points []orb.Point) []int {
	ids := make([]int, len(points))
	assigned := make([]bool, len(points))
	remaining := len(points)

	for i := range r.layer.Features {
		if remaining == 0 {
			break
		}
		f := &r.layer.Features[i]
		for j, p := range points {
			if assigned[j] || !f.bound.Contains(p) {
				continue
			}
			if f.contains(p) {
				ids[j] = f.ID
				assigned[j] = true
				remaining--
			}
		}
	}
	return ids
}

// indexResolver builds an R-tree over feature bounds once, then answers each
// point with one index query plus exact containment tests on the candidates.
type indexResolver struct {
	layer *Layer
	tree  *rtreego.Rtree
}

// indexEntry adapts a feature to the R-tree's Spatial interface. The feature
// position is retained so candidate sets can be reduced to the first match
// in storage order.
type indexEntry struct {
	pos  int
	feat *Feature
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect {
	return e.rect
}

// rectTolerance pads degenerate bounds so point-like extents still form
// valid R-tree rectangles.
const rectTolerance = 1e-9

func boundRect(b orb.Bound) (rtreego.Rect, error) {
	lengths := []float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1]}
	for d := range lengths {
		if lengths[d] < rectTolerance {
			lengths[d] = rectTolerance
		}
	}
	return rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, lengths)
}

func newIndexResolver(l *Layer) *indexResolver {
	tree := rtreego.NewTree(2, 25, 50)
	for i := range l.Features {
		f := &l.Features[i]
		if f.Geometry == nil {
			continue
		}
		rect, err := boundRect(f.bound)
		if err != nil {
			continue
		}
		tree.Insert(&indexEntry{pos: i, feat: f, rect: rect})
	}
	return &indexResolver{layer: l, tree: tree}
}

func (r *indexResolver) resolve(points []orb.Point) []int {
	ids := make([]int, len(points))
	for i, p := range points {
		rect := rtreego.Point{p[0], p[1]}.ToRect(rectTolerance)
		// Candidates come back unordered; keep the first match in layer
		// storage order.
		best := -1
		for _, c := range r.tree.SearchIntersect(rect) {
			e := c.(*indexEntry)
			if best != -1 && e.pos >= best {
				continue
			}
			if e.feat.contains(p) {
				best = e.pos
			}
		}
		if best != -1 {
			ids[i] = r.layer.Features[best].ID
		}
	}
	return ids
}
