package ad

// Optimizer tests: to_graph round trip, idempotence, and
// forward-equivalence before and after Optimize.

import "testing"

func dupModel(x []Base) []Base {
	// (x0+x1) appears twice; the second occurrence is a candidate for
	// Optimize's CSE pass to flag as a duplicate of the first.
	a := x[0].Add(x[1])
	b := x[0].Add(x[1])
	return []Base{a.Mul(b), a.Sub(x[0])}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	f := recordOrFatal(t, dupModel, []float64{2, 5})
	forwardOrFatal(t, f, []float64{2, 5})
	f.Optimize()
	first := len(f.duplicateOps)
	f.Optimize()
	second := len(f.duplicateOps)
	if first != second {
		t.Fatalf("duplicate count not stable across repeated Optimize calls: %d vs %d", first, second)
	}
}

func TestOptimizeFindsDuplicate(t *testing.T) {
	f := recordOrFatal(t, dupModel, []float64{2, 5})
	forwardOrFatal(t, f, []float64{2, 5})
	f.Optimize()
	if len(f.duplicateOps) == 0 {
		t.Fatal("expected Optimize to find at least one duplicate addvvOp")
	}
}

func TestOptimizePreservesForwardResult(t *testing.T) {
	f := recordOrFatal(t, dupModel, []float64{2, 5})
	before := forwardOrFatal(t, f, []float64{2, 5})
	f.Optimize()
	after := forwardOrFatal(t, f, []float64{2, 5})
	for i := range before {
		near(t, after[i], before[i], 1e-12, "forward result changed by Optimize")
	}
}

func TestGraphRoundTrip(t *testing.T) {
	f := recordOrFatal(t, dupModel, []float64{2, 5})
	forwardOrFatal(t, f, []float64{2, 5})
	want := forwardOrFatal(t, f, []float64{2, 5})

	g := f.ToGraph("dupModel")
	data, err := g.MarshalGraph()
	if err != nil {
		t.Fatalf("MarshalGraph: %v", err)
	}
	g2, err := UnmarshalGraph(data)
	if err != nil {
		t.Fatalf("UnmarshalGraph: %v", err)
	}
	f2, err := FromGraph(g2)
	if err != nil {
		t.Fatalf("FromGraph: %v", err)
	}
	got := forwardOrFatal(t, f2, []float64{2, 5})
	for i := range want {
		near(t, got[i], want[i], 1e-9, "graph round trip changed forward result")
	}
}
