package ad

// Derivative-rule and scenario tests, adapted in spirit from CppAD's
// Example/Sin.cpp, Example/Pow.cpp, Example/Atan2.cpp, and
// Example/HesLuDet.cpp: record a small model, evaluate it and its
// derivatives at a point, and compare against the closed-form answer.

import (
	"math"
	"testing"
)

func recordOrFatal(t *testing.T, model func([]Base) []Base, x0 []float64) *Function {
	t.Helper()
	xb := make([]Base, len(x0))
	for i, v := range x0 {
		xb[i] = Float64(v)
	}
	f, err := Record(model, xb)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return f
}

func forwardOrFatal(t *testing.T, f *Function, x []float64) []float64 {
	t.Helper()
	xb := make([]Base, len(x))
	for i, v := range x {
		xb[i] = Float64(v)
	}
	y, err := f.Forward(0, xb)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = v.Float64()
	}
	return out
}

// S1: y = sin(x). dy/dx = cos(x).
func TestSinDerivative(t *testing.T) {
	model := func(x []Base) []Base { return []Base{x[0].Sin()} }
	x0 := 0.7
	f := recordOrFatal(t, model, []float64{x0})
	y := forwardOrFatal(t, f, []float64{x0})
	near(t, y[0], math.Sin(x0), 1e-12, "sin value")

	px, err := f.Reverse(1, []Base{Float64(1)})
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	near(t, px[0].Float64(), math.Cos(x0), 1e-12, "sin derivative")
}

// S2: y = x^3 for a constant integer exponent (powvpOp path).
func TestPowConstantExponent(t *testing.T) {
	model := func(x []Base) []Base { return []Base{x[0].Pow(Float64(3))} }
	x0 := 2.0
	f := recordOrFatal(t, model, []float64{x0})
	y := forwardOrFatal(t, f, []float64{x0})
	near(t, y[0], 8, 1e-12, "x^3 value")

	px, err := f.Reverse(1, []Base{Float64(1)})
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	near(t, px[0].Float64(), 3*x0*x0, 1e-9, "x^3 derivative")
}

// S3: atan2 across all four quadrants, each branch locally
// differentiable like the underlying math.Atan2.
func TestAtan2Quadrants(t *testing.T) {
	cases := []struct{ x, y float64 }{
		{3, 4}, {-3, 4}, {-3, -4}, {3, -4},
	}
	for _, c := range cases {
		model := func(x []Base) []Base { return []Base{x[0].Atan2(x[1])} }
		f := recordOrFatal(t, model, []float64{c.x, c.y})
		y := forwardOrFatal(t, f, []float64{c.x, c.y})
		near(t, y[0], math.Atan2(c.x, c.y), 1e-9, "atan2 value")
	}
}

// S4: a comparison-driven branch taken with an ordinary Go if on an AD
// comparison (CondAssign records both branches and is not counted);
// changing the replay point across the branch boundary must be visible
// through CompareChangeNumber.
func TestCompareChangeNumber(t *testing.T) {
	model := func(x []Base) []Base {
		if x[0].Lt(Float64(0)) {
			return []Base{x[0].Neg()}
		}
		return []Base{x[0]}
	}
	f := recordOrFatal(t, model, []float64{-1})
	if n := f.CompareChangeNumber(); n != 0 {
		t.Fatalf("expected 0 compare changes at the recording point, got %d", n)
	}
	forwardOrFatal(t, f, []float64{1})
	if n := f.CompareChangeNumber(); n == 0 {
		t.Fatalf("expected a compare change crossing the branch boundary")
	}
}

// S5: Jacobian of a two-in, two-out model against the closed form.
func TestJacobian(t *testing.T) {
	model := func(x []Base) []Base {
		return []Base{
			x[0].Mul(x[1]),
			x[0].Add(x[1]).Sin(),
		}
	}
	x0, y0 := 1.3, -0.4
	f := recordOrFatal(t, model, []float64{x0, y0})
	forwardOrFatal(t, f, []float64{x0, y0})
	jac, err := f.Jacobian()
	if err != nil {
		t.Fatalf("Jacobian: %v", err)
	}
	near(t, jac[0][0].Float64(), y0, 1e-9, "d(xy)/dx")
	near(t, jac[0][1].Float64(), x0, 1e-9, "d(xy)/dy")
	c := math.Cos(x0 + y0)
	near(t, jac[1][0].Float64(), c, 1e-9, "d(sin(x+y))/dx")
	near(t, jac[1][1].Float64(), c, 1e-9, "d(sin(x+y))/dy")
}

// S6: Hessian of a simple quadratic form via the AD-of-AD nesting
// path, checked against its closed-form constant Hessian.
func TestHessianQuadratic(t *testing.T) {
	model := func(x []Base) []Base {
		// f(x,y) = x^2*y + y^3
		xy := x[0].Mul(x[0]).Mul(x[1])
		y3 := x[1].Mul(x[1]).Mul(x[1])
		return []Base{xy.Add(y3)}
	}
	x0 := []Base{Float64(2), Float64(3)}
	h, err := Hessian(model, x0, []float64{1})
	if err != nil {
		t.Fatalf("Hessian: %v", err)
	}
	// d2f/dx2 = 2y, d2f/dxdy = 2x, d2f/dy2 = 6y
	near(t, h[0][0], 2*3, 1e-7, "d2f/dx2")
	near(t, h[0][1], 2*2, 1e-7, "d2f/dxdy")
	near(t, h[1][0], 2*2, 1e-7, "d2f/dydx")
	near(t, h[1][1], 6*3, 1e-7, "d2f/dy2")
}

// Reverse with q != 1 must be rejected with a pointer toward nesting.
func TestReverseOrderGuard(t *testing.T) {
	model := func(x []Base) []Base { return []Base{x[0].Mul(x[0])} }
	f := recordOrFatal(t, model, []float64{1})
	forwardOrFatal(t, f, []float64{1})
	if _, err := f.Reverse(2, []Base{Float64(1)}); err == nil {
		t.Fatal("expected Reverse(2, ...) to fail")
	}
}
