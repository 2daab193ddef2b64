package ad

// The parameter pool (component C2). Every Base value that is not a
// recorded tape variable lives here: plain constants and dynamic
// parameters alike. Constants never change between Function.Forward
// calls; dynamic parameters can be rebound with Function.NewDynamic
// without re-recording the tape, exactly like CppAD's "dynamic"
// parameters (cppad/local/op_code_dyn.hpp).
//
// Addresses 0 and 1 are created with every pool: address 0 holds a
// NaN-valued constant and address 1 the constant 1. addConst returns
// address 1 for any value identical to 1, so every recorded use of the
// constant 1 shares it.
const (
	nanParamIndex uint32 = 0
	oneParamIndex uint32 = 1
)

// dynOpcode is the small, separate operator set used to replay
// dynamic parameters: a sub-graph of the parameter pool, not of the
// variable tape. Mirrors CppAD's op_code_dyn.hpp table.
type dynOpcode uint8

const (
	dynInv dynOpcode = iota // independent dynamic parameter, no args
	dynResult
	dynAddpp
	dynSubpp
	dynMulpp
	dynDivpp
	dynPowpp
	dynAzmulpp
	dynNeg
	dynAbs
	dynSign
	dynSqrt
	dynExp
	dynExpm1
	dynLog
	dynLog1p
	dynLog10
	dynSin
	dynCos
	dynTan
	dynSinh
	dynCosh
	dynTanh
	dynAsin
	dynAcos
	dynAtan
	dynAsinh
	dynAcosh
	dynAtanh
	dynErf
	dynErfc
)

var dynNArg = map[dynOpcode]int{
	dynInv: 0, dynResult: 1,
	dynAddpp: 2, dynSubpp: 2, dynMulpp: 2, dynDivpp: 2, dynPowpp: 2, dynAzmulpp: 2,
	dynNeg: 1, dynAbs: 1, dynSign: 1, dynSqrt: 1, dynExp: 1, dynExpm1: 1,
	dynLog: 1, dynLog1p: 1, dynLog10: 1,
	dynSin: 1, dynCos: 1, dynTan: 1, dynSinh: 1, dynCosh: 1, dynTanh: 1,
	dynAsin: 1, dynAcos: 1, dynAtan: 1, dynAsinh: 1, dynAcosh: 1, dynAtanh: 1,
	dynErf: 1, dynErfc: 1,
}

// paramKind tells the pool whether a given address is an ordinary
// constant, a dynamic parameter leaf (bound via IndependentDynamic),
// or the result of a dynamic operator.
type paramKind uint8

const (
	kindConstant paramKind = iota
	kindDynamicLeaf
	kindDynamicOp
)

// dynRecord is one step of the dynamic-parameter graph: a pool
// address produced by applying op to the pool addresses in args.
type dynRecord struct {
	addr uint32
	op   dynOpcode
	args [2]uint32
}

// paramPool holds every parameter (constant or dynamic) a tape
// references, plus the dynamic sub-graph needed to replay them after
// Function.NewDynamic rebinds the dynamic leaves.
type paramPool struct {
	value []Base
	kind  []paramKind
	dyn   []dynRecord // only kindDynamicOp addresses appear here, in creation order
	nLeaf int         // count of kindDynamicLeaf addresses
}

func newParamPool() *paramPool {
	p := &paramPool{}
	p.value = append(p.value, Float64(0).Div(Float64(0))) // NaN at address 0
	p.kind = append(p.kind, kindConstant)
	p.value = append(p.value, Float64(1))
	p.kind = append(p.kind, kindConstant)
	return p
}

// addConst interns v as a plain constant, returning its pool address.
// Apart from the constant 1, which always maps to oneParamIndex,
// constants are not deduplicated by value: CppAD does not either,
// since two operators recording the same numeric literal independently
// have no reason to share an address before optimization runs.
func (p *paramPool) addConst(v Base) uint32 {
	if v.IsIdenticalZero() {
		return p.findOrAppend(v, kindConstant)
	}
	if v.IsIdenticalOne() {
		return oneParamIndex
	}
	addr := uint32(len(p.value))
	p.value = append(p.value, v)
	p.kind = append(p.kind, kindConstant)
	return addr
}

func (p *paramPool) findOrAppend(v Base, k paramKind) uint32 {
	addr := uint32(len(p.value))
	p.value = append(p.value, v)
	p.kind = append(p.kind, k)
	return addr
}

// addDynamicLeaf records a new independent dynamic parameter with its
// initial value v, returning its pool address.
func (p *paramPool) addDynamicLeaf(v Base) uint32 {
	addr := uint32(len(p.value))
	p.value = append(p.value, v)
	p.kind = append(p.kind, kindDynamicLeaf)
	p.nLeaf++
	return addr
}

// addDynamicOp records a dynamic-parameter operator whose operands
// are already-bound pool addresses, computing its initial value
// eagerly so the pool stays consistent until NewDynamic next replays it.
func (p *paramPool) addDynamicOp(op dynOpcode, args ...uint32) uint32 {
	addr := uint32(len(p.value))
	var a [2]uint32
	copy(a[:], args)
	p.dyn = append(p.dyn, dynRecord{addr: addr, op: op, args: a})
	p.value = append(p.value, p.evalDyn(op, a))
	p.kind = append(p.kind, kindDynamicOp)
	return addr
}

func (p *paramPool) evalDyn(op dynOpcode, a [2]uint32) Base {
	switch op {
	case dynAddpp:
		return p.value[a[0]].Add(p.value[a[1]])
	case dynSubpp:
		return p.value[a[0]].Sub(p.value[a[1]])
	case dynMulpp:
		return p.value[a[0]].Mul(p.value[a[1]])
	case dynDivpp:
		return p.value[a[0]].Div(p.value[a[1]])
	case dynPowpp:
		return p.value[a[0]].Pow(p.value[a[1]])
	case dynAzmulpp:
		if p.value[a[0]].IsIdenticalZero() {
			return Float64(0)
		}
		return p.value[a[0]].Mul(p.value[a[1]])
	case dynNeg:
		return p.value[a[0]].Neg()
	case dynAbs:
		return p.value[a[0]].Abs()
	case dynSign:
		return p.value[a[0]].Sign()
	case dynSqrt:
		return p.value[a[0]].Sqrt()
	case dynExp:
		return p.value[a[0]].Exp()
	case dynExpm1:
		return p.value[a[0]].Expm1()
	case dynLog:
		return p.value[a[0]].Log()
	case dynLog1p:
		return p.value[a[0]].Log1p()
	case dynLog10:
		return p.value[a[0]].Log10()
	case dynSin:
		return p.value[a[0]].Sin()
	case dynCos:
		return p.value[a[0]].Cos()
	case dynTan:
		return p.value[a[0]].Tan()
	case dynSinh:
		return p.value[a[0]].Sinh()
	case dynCosh:
		return p.value[a[0]].Cosh()
	case dynTanh:
		return p.value[a[0]].Tanh()
	case dynAsin:
		return p.value[a[0]].Asin()
	case dynAcos:
		return p.value[a[0]].Acos()
	case dynAtan:
		return p.value[a[0]].Atan()
	case dynAsinh:
		return p.value[a[0]].Asinh()
	case dynAcosh:
		return p.value[a[0]].Acosh()
	case dynAtanh:
		return p.value[a[0]].Atanh()
	case dynErf:
		return p.value[a[0]].Erf()
	case dynErfc:
		return p.value[a[0]].Erfc()
	}
	assertUnknown(false, "evalDyn", "unrecognized dynamic opcode %d", op)
	return Float64(0)
}

// rebind assigns new leaf values (in creation order) and replays the
// dynamic op graph so every dynamic address reflects the new leaves.
func (p *paramPool) rebind(leaves []Base) error {
	n := 0
	for addr, k := range p.kind {
		if k == kindDynamicLeaf {
			if n >= len(leaves) {
				return knownf("rebind", "too few dynamic values: need %d, got %d", p.nLeaf, len(leaves))
			}
			p.value[addr] = leaves[n]
			n++
		}
	}
	if n != len(leaves) {
		return knownf("rebind", "too many dynamic values: need %d, got %d", p.nLeaf, len(leaves))
	}
	for _, r := range p.dyn {
		p.value[r.addr] = p.evalDyn(r.op, r.args)
	}
	return nil
}

func (p *paramPool) isDynamic(addr uint32) bool {
	return p.kind[addr] != kindConstant
}
