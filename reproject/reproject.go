// Package reproject reconciles coordinate reference systems between point
// batches and data layers. Transformations are created once per CRS pair
// and reused; the batch call hands every coordinate to PROJ in one slice
// operation rather than per point.
package reproject

import (
	"fmt"
	"sync"

	"github.com/twpayne/go-proj/v11"

	"github.com/mstgis/geodata"
)

var (
	mu         sync.Mutex
	transforms = map[[2]int]*proj.PJ{}
)

func transform(from, to geodata.CRS) (*proj.PJ, error) {
	mu.Lock()
	defer mu.Unlock()
	key := [2]int{from.Code, to.Code}
	if pj, ok := transforms[key]; ok {
		return pj, nil
	}
	pj, err := proj.NewCRSToCRS(from.String(), to.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s to %s: %v", geodata.ErrCRSMismatch, from, to, err)
	}
	transforms[key] = pj
	return pj, nil
}

// Coords reprojects xs/ys in place from one CRS to another, in one batched
// call. Equal CRSes are a no-op. An undefined CRS on either side cannot be
// reconciled and fails with ErrCRSMismatch.
//
// PROJ consumes coordinate pairs in each CRS's authority axis order, which
// for geographic systems is (lat, lon); pairs are swapped around the
// transform accordingly.
func Coords(xs, ys []float64, from, to geodata.CRS) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("reproject: coordinate slices differ in length: %d vs %d", len(xs), len(ys))
	}
	if from.Undefined() || to.Undefined() {
		return fmt.Errorf("%w: undefined CRS (%s to %s)", geodata.ErrCRSMismatch, from, to)
	}
	if from.Equal(to) {
		return nil
	}

	pj, err := transform(from, to)
	if err != nil {
		return err
	}

	flat := make([]float64, 2*len(xs))
	coords := make([][]float64, len(xs))
	for i := range xs {
		flat[2*i] = ys[i]
		flat[2*i+1] = xs[i]
		coords[i] = flat[2*i : 2*i+2]
	}
	if err := pj.ForwardFloat64Slices(coords); err != nil {
		return fmt.Errorf("%w: %s to %s: %v", geodata.ErrCRSMismatch, from, to, err)
	}
	for i := range xs {
		xs[i] = flat[2*i+1]
		ys[i] = flat[2*i]
	}
	return nil
}
