package ad

import "testing"

// y0 = x0*x1, y1 = x2 (x1, x2 never interact): ForJacSparsity should
// show y0 depending on {x0,x1} and y1 on {x2} only, for both backends.
func TestForJacSparsityBackends(t *testing.T) {
	model := func(x []Base) []Base {
		return []Base{x[0].Mul(x[1]), x[2]}
	}
	f := recordOrFatal(t, model, []float64{1, 2, 3})
	forwardOrFatal(t, f, []float64{1, 2, 3})

	for _, useBits := range []bool{true, false} {
		s := f.RevJacSparsity(false, useBits)
		row0 := s.row(0)
		row1 := s.row(1)
		if !containsInt(row0, 0) || !containsInt(row0, 1) || containsInt(row0, 2) {
			t.Errorf("useBits=%v: y0 sparsity wrong: %v", useBits, row0)
		}
		if containsInt(row1, 0) || containsInt(row1, 1) || !containsInt(row1, 2) {
			t.Errorf("useBits=%v: y1 sparsity wrong: %v", useBits, row1)
		}
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// A nonlinear coupling (x0*x1) must show up in Hessian sparsity;
// a purely additive one (x0+x2) must not.
func TestForHesSparsity(t *testing.T) {
	model := func(x []Base) []Base {
		return []Base{x[0].Mul(x[1]).Add(x[2])}
	}
	f := recordOrFatal(t, model, []float64{1, 2, 3})
	forwardOrFatal(t, f, []float64{1, 2, 3})

	hes := f.ForHesSparsity(0, true)
	if !hes.has(0, 1) || !hes.has(1, 0) {
		t.Error("expected Hessian sparsity to mark (x0,x1) from the x0*x1 term")
	}
	if hes.has(0, 2) || hes.has(2, 0) {
		t.Error("did not expect Hessian sparsity to mark (x0,x2): no nonlinear coupling")
	}
}

// A comparison's operands should only feed ForJacSparsity's pattern
// when dependency tracking is requested.
func TestForJacSparsityDependencyFlag(t *testing.T) {
	model := func(x []Base) []Base {
		return []Base{CondAssign(CopLt, x[0], Float64(0), x[1], x[1])}
	}
	f := recordOrFatal(t, model, []float64{-1, 5})
	forwardOrFatal(t, f, []float64{-1, 5})

	withoutDep := f.RevJacSparsity(false, true)
	withDep := f.RevJacSparsity(true, true)
	if containsInt(withoutDep.row(0), 0) {
		t.Error("expected no dependency contribution from the comparison operand without the flag")
	}
	if !containsInt(withDep.row(0), 0) {
		t.Error("expected a dependency contribution from the comparison operand with the flag")
	}
}
