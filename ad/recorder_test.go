package ad

// Testing the recorder: tape identity, nesting, and the basic
// Independent/Dependent/Forward contract.

import (
	"math"
	"testing"
)

func near(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %v, want %v", what, got, want)
	}
}

// A simple two-variable model used throughout this file.
func sumSquares(x []Base) []Base {
	return []Base{x[0].Mul(x[0]).Add(x[1].Mul(x[1]))}
}

func TestRecordAndForward(t *testing.T) {
	f, err := Record(sumSquares, []Base{Float64(3), Float64(4)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	y, err := f.Forward(0, []Base{Float64(3), Float64(4)})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	near(t, y[0].Float64(), 25, 1e-12, "sumSquares(3,4)")
}

// Operators recorded on a tape that is not the active one must be
// rejected: mixing two tapes' values in one arithmetic call is a
// programming error, not a silent coercion.
func TestDifferentTapeError(t *testing.T) {
	a := Independent([]Base{Float64(1)})
	b := Independent([]Base{Float64(2)})
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic mixing values from two different tapes")
		}
		AbortRecording()
		AbortRecording()
	}()
	_ = a[0].Add(b[0])
}

// Independent may be called again before the outer recording's
// Dependent: this is what AD-of-AD (and Hessian) relies on, and it
// must not panic.
func TestNestedIndependent(t *testing.T) {
	outerModel := func(x []Base) []Base {
		inner, err := Record(func(z []Base) []Base {
			return []Base{z[0].Mul(z[0])}
		}, []Base{x[0]})
		if err != nil {
			t.Fatalf("inner Record: %v", err)
		}
		y, err := inner.Forward(0, []Base{x[0]})
		if err != nil {
			t.Fatalf("inner Forward: %v", err)
		}
		return []Base{y[0].Add(x[1])}
	}
	f, err := Record(outerModel, []Base{Float64(2), Float64(5)})
	if err != nil {
		t.Fatalf("outer Record: %v", err)
	}
	y, err := f.Forward(0, []Base{Float64(2), Float64(5)})
	if err != nil {
		t.Fatalf("outer Forward: %v", err)
	}
	near(t, y[0].Float64(), 9, 1e-12, "nested independent result")
}

// Dependent must reject a recording that was aborted.
func TestDependentAfterAbort(t *testing.T) {
	Independent([]Base{Float64(1)})
	AbortRecording()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Dependent to panic with no active recording")
		}
	}()
	Dependent(nil)
}

// A constant dependent (never touching a variable) must still replay.
func TestConstantDependent(t *testing.T) {
	model := func(x []Base) []Base {
		return []Base{Float64(7), x[0]}
	}
	f, err := Record(model, []Base{Float64(1)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	y, err := f.Forward(0, []Base{Float64(100)})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	near(t, y[0].Float64(), 7, 0, "constant dependent")
	near(t, y[1].Float64(), 100, 0, "variable dependent")
}
