package mapping

import "testing"

func testChain() Chain {
	return Chain{
		ClassToCategory: Table{
			Values:  map[int]int{0: 4, 20: 5, 5: 2},
			Default: 1,
		},
		CategoryToResistance: ResistanceTable{
			Values:  map[int]float64{4: 90, 5: 75, 2: 15, 1: 0},
			Default: -1,
		},
	}
}

func TestTableLookup(t *testing.T) {
	tbl := Table{Values: map[int]int{10: 1, 20: 2}, Default: 9}
	tests := []struct {
		code, want int
	}{
		{10, 1},
		{20, 2},
		{30, 9},  // unmapped
		{-10, 9}, // unmapped negative
		{0, 9},   // zero is a key like any other
	}
	for _, tc := range tests {
		if got := tbl.Lookup(tc.code); got != tc.want {
			t.Errorf("Lookup(%d) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestTableLookupZeroKey(t *testing.T) {
	tbl := Table{Values: map[int]int{0: 7}, Default: 9}
	if got := tbl.Lookup(0); got != 7 {
		t.Errorf("Lookup(0) = %d, want mapped 7, not default", got)
	}
}

func TestLookupAllOrder(t *testing.T) {
	tbl := Table{Values: map[int]int{1: 10, 2: 20}, Default: 0}
	got := tbl.LookupAll([]int{2, 1, 3, 1})
	want := []int{20, 10, 0, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResistanceTableLookup(t *testing.T) {
	tbl := ResistanceTable{Values: map[int]float64{1: 0, 3: 10}, Default: 99.5}
	if got := tbl.Lookup(1); got != 0 {
		t.Errorf("Lookup(1) = %g, want 0", got)
	}
	if got := tbl.Lookup(7); got != 99.5 {
		t.Errorf("Lookup(7) = %g, want default 99.5", got)
	}
}

func TestChainApply(t *testing.T) {
	cats, res := testChain().Apply([]float64{0, 20, 5}, -9999)
	wantCats := []int{4, 5, 2}
	wantRes := []float64{90, 75, 15}
	for i := range wantCats {
		if cats[i] != wantCats[i] {
			t.Errorf("category %d = %d, want %d", i, cats[i], wantCats[i])
		}
		if res[i] != wantRes[i] {
			t.Errorf("resistance %d = %g, want %g", i, res[i], wantRes[i])
		}
	}
}

func TestChainApplySentinel(t *testing.T) {
	ch := testChain()
	cats, res := ch.Apply([]float64{-9999, 0.5, 20}, -9999)

	// Sentinel and non-integral samples fall to the first-stage default
	// category, which the second stage resolves normally.
	if cats[0] != 1 || cats[1] != 1 {
		t.Errorf("degraded categories = %d, %d, want 1, 1", cats[0], cats[1])
	}
	if res[0] != 0 || res[1] != 0 {
		t.Errorf("degraded resistances = %g, %g, want 0, 0", res[0], res[1])
	}
	if cats[2] != 5 || res[2] != 75 {
		t.Errorf("clean sample mapped to (%d, %g), want (5, 75)", cats[2], res[2])
	}
}

func TestChainApplyTotal(t *testing.T) {
	// Every input produces an output pair, whatever the sample value.
	samples := []float64{-9999, 0, 1e9, -3, 42.42, 20}
	cats, res := testChain().Apply(samples, -9999)
	if len(cats) != len(samples) || len(res) != len(samples) {
		t.Fatalf("got %d categories, %d resistances for %d samples", len(cats), len(res), len(samples))
	}
}

func TestChainApplyEmpty(t *testing.T) {
	cats, res := testChain().Apply(nil, -9999)
	if len(cats) != 0 || len(res) != 0 {
		t.Errorf("empty batch produced %d categories, %d resistances", len(cats), len(res))
	}
}
