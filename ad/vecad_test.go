package ad

// Testing VecAD (component C5) in isolation: constant and variable
// index load/store, replayed with values differing from the ones
// seen while recording.

import "testing"

func TestVecADConstantIndex(t *testing.T) {
	model := func(x []Base) []Base {
		v := NewVecAD([]Base{Float64(10), Float64(20), Float64(30)})
		v.Set(Float64(1), x[0])
		return []Base{v.Get(Float64(1))}
	}
	f, err := Record(model, []Base{Float64(5)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	y, err := f.Forward(0, []Base{Float64(99)})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	near(t, y[0].Float64(), 99, 0, "VecAD constant-index store/load")
}

func TestVecADVariableIndex(t *testing.T) {
	model := func(x []Base) []Base {
		v := NewVecAD([]Base{Float64(1), Float64(2), Float64(3)})
		return []Base{v.Get(x[1])}
	}
	f, err := Record(model, []Base{Float64(0), Float64(2)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Replay with a different index than the one seen while recording.
	y, err := f.Forward(0, []Base{Float64(0), Float64(0)})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	near(t, y[0].Float64(), 1, 0, "VecAD variable-index load at replay index 0")
}
