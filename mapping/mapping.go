// Package mapping applies the two-stage code mapping chain that turns raw
// land-cover class codes into category codes and categories into resistance
// values. Both stages are total: a key absent from a table yields the
// table's configured default, never an error. Sparse classification schemes
// make unmapped codes routine.
package mapping

import "math"

// Table maps integer codes to integer codes with an explicit default for
// absent keys.
type Table struct {
	Values  map[int]int
	Default int
}

// Lookup returns the mapped value for code, or the table default.
func (t Table) Lookup(code int) int {
	if v, ok := t.Values[code]; ok {
		return v
	}
	return t.Default
}

// LookupAll maps a whole batch of codes in order.
func (t Table) LookupAll(codes []int) []int {
	out := make([]int, len(codes))
	for i, c := range codes {
		out[i] = t.Lookup(c)
	}
	return out
}

// ResistanceTable maps category codes to resistance values with an explicit
// default for absent keys.
type ResistanceTable struct {
	Values  map[int]float64
	Default float64
}

// Lookup returns the resistance for category, or the table default.
func (t ResistanceTable) Lookup(category int) float64 {
	if v, ok := t.Values[category]; ok {
		return v
	}
	return t.Default
}

// LookupAll maps a whole batch of categories in order.
func (t ResistanceTable) LookupAll(categories []int) []float64 {
	out := make([]float64, len(categories))
	for i, c := range categories {
		out[i] = t.Lookup(c)
	}
	return out
}

// Chain is the composed class → category → resistance mapping.
type Chain struct {
	ClassToCategory      Table
	CategoryToResistance ResistanceTable
}

// Apply derives categories and resistances from raw land-cover samples in
// one batch pass. Samples equal to sentinel, and non-integral samples, fall
// to the first stage's default; the second stage then resolves that default
// category like any other.
func (c Chain) Apply(samples []float64, sentinel float64) (categories []int, resistances []float64) {
	categories = make([]int, len(samples))
	for i, s := range samples {
		if s == sentinel || s != math.Trunc(s) {
			categories[i] = c.ClassToCategory.Default
			continue
		}
		categories[i] = c.ClassToCategory.Lookup(int(s))
	}
	return categories, c.CategoryToResistance.LookupAll(categories)
}
