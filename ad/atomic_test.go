package ad

// Testing the atomic/checkpoint extension (component C8) in
// isolation: a hand-registered AtomicFunction spliced into a
// recording, and a Checkpoint wrapping a *Function the same way.

import "testing"

// square is the simplest possible AtomicFunction: y = x^2, registered
// under its own name and differentiated via a 1x1 Jacobian.
type square struct{}

func (square) Name() string { return "square" }

func (square) Forward(x []Base) ([]Base, error) {
	return []Base{x[0].Mul(x[0])}, nil
}

func (square) Jacobian(x []Base) ([][]Base, error) {
	return [][]Base{{x[0].Add(x[0])}}, nil
}

func TestAtomicFunctionForwardAndReverse(t *testing.T) {
	RegisterAtomic(square{})

	model := func(x []Base) []Base {
		y, err := CallAtomic("square", []*AD{toAD(x[0])})
		if err != nil {
			panic(err)
		}
		return []Base{y[0]}
	}
	f, err := Record(model, []Base{Float64(3)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	y, err := f.Forward(0, []Base{Float64(5)})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	near(t, y[0].Float64(), 25, 1e-12, "atomic square(5)")

	dw, err := f.Reverse(1, []Base{Float64(1)})
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	near(t, dw[0].Float64(), 10, 1e-12, "d(square)/dx at x=5")
}

func TestCallAtomicUnregistered(t *testing.T) {
	_, err := CallAtomic("no-such-atomic-function", []*AD{Const(Float64(1))})
	if err == nil {
		t.Fatal("expected an error for an unregistered atomic function")
	}
}

// TestCheckpoint wraps a tiny recorded Function (z = 2*w) as a
// Checkpoint and calls it, as a unit, from a second recording.
func TestCheckpoint(t *testing.T) {
	inner, err := Record(func(w []Base) []Base {
		return []Base{w[0].Add(w[0])}
	}, []Base{Float64(0)})
	if err != nil {
		t.Fatalf("inner Record: %v", err)
	}
	NewCheckpoint("double", inner)

	outer := func(x []Base) []Base {
		y, err := CallAtomic("double", []*AD{toAD(x[0])})
		if err != nil {
			panic(err)
		}
		return []Base{y[0]}
	}
	f, err := Record(outer, []Base{Float64(4)})
	if err != nil {
		t.Fatalf("outer Record: %v", err)
	}
	y, err := f.Forward(0, []Base{Float64(4)})
	if err != nil {
		t.Fatalf("outer Forward: %v", err)
	}
	near(t, y[0].Float64(), 8, 1e-12, "checkpoint double(4)")
}
