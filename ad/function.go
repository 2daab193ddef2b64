package ad

import "io"

// Function is the sealed, replayable result of a recording (component
// C7): the operator stream captured by Dependent, plus the scratch
// state (the Taylor-coefficient matrix) that Forward and Reverse read
// and write on every replay. It corresponds to CppAD's ADFun<Base>.
type Function struct {
	tape *Tape

	model func([]Base) []Base // nil unless built through Record
	x0    []Base

	n, m int

	taylor []([]Base) // taylor[addr] holds coefficients 0..curOrder
	curOrder int       // -1 until Forward(0, ...) has run

	zero Base // a same-type zero, used to grow taylor columns

	holdReverse bool

	compareAtRecord []bool // witness captured while recording
	compareAtReplay []bool // witness captured by the most recent Forward(0)

	vecadCur [][]Base // VecAD scratch, reset at the start of every Forward(0, ...)

	duplicateOps [][2]int // (earlier, later) operator index pairs found by Optimize's CSE pass

	out io.Writer // PrintFor destination; os.Stdout when nil
}

// SetOutput redirects PrintFor output recorded on this function's
// tape; the default is os.Stdout.
func (f *Function) SetOutput(w io.Writer) { f.out = w }

func newFunction(t *Tape) *Function {
	f := &Function{
		tape:     t,
		n:        len(t.indAddr),
		m:        len(t.depAddr),
		curOrder: -1,
		zero:     Float64(0),
	}
	f.taylor = make([][]Base, t.nVar)
	f.compareAtRecord = make([]bool, t.compareCount)
	return f
}

// Record builds a Function by running model once under a fresh
// recording: Independent(x0), then model, then Dependent. It recovers
// from the panics Independent/Dependent/the AD operators raise on
// tape-identity and ordering violations and turns them into an error,
// the usual Go boundary between an internally panic-driven fluent API
// (the operator overloads have no room for an error return) and the
// package's public, explicit-error surface.
func Record(model func(x []Base) []Base, x0 []Base) (f *Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				f = nil
				return
			}
			panic(r)
		}
	}()
	xad := Independent(x0)
	xb := make([]Base, len(xad))
	for i, v := range xad {
		xb[i] = v
	}
	y := model(xb)
	yad := make([]*AD, len(y))
	for i, v := range y {
		yad[i] = toAD(v)
	}
	f = Dependent(yad)
	f.model = model
	f.x0 = append([]Base(nil), x0...)
	return f, nil
}

// Size returns the number of independent and dependent variables.
func (f *Function) Size() (n, m int) { return f.n, f.m }

// HoldReverseMemory stores a flag, named after CppAD's hold_reverse
// (cppad/core/hold_reverse_memory.hpp), for keeping reverse-mode
// scratch between calls. Reverse does not consult the flag: it
// allocates a fresh adjoint buffer on every call, whatever the flag's
// value, so no scratch is kept between calls.
func (f *Function) HoldReverseMemory(hold bool) { f.holdReverse = hold }

// CompareChangeNumber counts how many comparisons recorded on the
// tape evaluate differently at the most recent Forward(0) replay
// point than they did while recording. A nonzero count means the
// control flow that produced this tape would not have been the same
// at the new point, so its derivatives cannot be trusted: the caller
// should re-record (retape) at the new x instead.
func (f *Function) CompareChangeNumber() int {
	n := 0
	for i := range f.compareAtRecord {
		if i < len(f.compareAtReplay) && f.compareAtRecord[i] != f.compareAtReplay[i] {
			n++
		}
	}
	return n
}

// NewDynamic rebinds the tape's dynamic parameters to new values
// without re-recording, and invalidates any Taylor coefficients from
// previous Forward/Reverse calls, since every dynamic parameter
// feeding into the tape may have changed.
func (f *Function) NewDynamic(values []Base) error {
	if err := f.tape.params.rebind(values); err != nil {
		return err
	}
	f.curOrder = -1
	for i := range f.taylor {
		f.taylor[i] = nil
	}
	return nil
}

func (f *Function) growColumn(addr uint32, q int) {
	col := f.taylor[addr]
	for len(col) <= q {
		col = append(col, f.zero)
	}
	f.taylor[addr] = col
}

func (f *Function) at(addr uint32, k int) Base {
	if k >= len(f.taylor[addr]) {
		return f.zero
	}
	return f.taylor[addr][k]
}

func (f *Function) set(addr uint32, k int, v Base) {
	f.growColumn(addr, k)
	f.taylor[addr][k] = v
}

// paramValue returns the Base-typed value bound to a parameter-pool
// address, defined at order 0 and zero (the constant is flat) above it.
func (f *Function) paramValue(addr uint32, k int) Base {
	if k == 0 {
		return f.tape.params.value[addr]
	}
	return f.zero
}
