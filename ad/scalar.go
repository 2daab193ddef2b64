package ad

import "math"

// AD is the recording scalar (component C4): a value together with
// enough bookkeeping to know whether it is a tape variable, a dynamic
// parameter, or an ordinary constant, and which tape (if any) it
// belongs to. AD implements Base itself, so AD-of-AD works by ordinary
// interface composition and gives higher-order derivatives without
// any generic instantiation.
type AD struct {
	tape  *Tape
	isVar bool
	isDyn bool
	addr  uint32 // variable address (isVar) or parameter-pool address (isDyn)
	value Base
}

// DifferentTapeError is returned (and also panicked, since Base's
// arithmetic methods have no error return) when two AD operands that
// are both tape variables come from different tapes. Recording never
// silently mixes two tapes together: CppAD enforces the same
// restriction per-thread.
type DifferentTapeError struct{}

func (*DifferentTapeError) Error() string {
	return "gotape: operands recorded on different tapes"
}

// Const lifts a plain Base value into an AD constant: it never
// participates in any tape, and arithmetic on it folds eagerly.
func Const(v Base) *AD { return &AD{value: v} }

func toAD(b Base) *AD {
	if a, ok := b.(*AD); ok {
		return a
	}
	return &AD{value: b}
}

// Value returns the current numeric value carried by x, independent
// of whether x is a variable, a dynamic parameter, or a constant.
func (x *AD) Value() Base { return x.value }

// IsVariable reports whether x is bound to a tape variable address.
func (x *AD) IsVariable() bool { return x.isVar }

// IsDynamic reports whether x is bound to a dynamic parameter.
func (x *AD) IsDynamic() bool { return x.isDyn }

// Tape returns the tape x was recorded on, or nil for a constant.
func (x *AD) Tape() *Tape { return x.tape }

func commonTape(x, y *AD) (*Tape, error) {
	switch {
	case x.tape == nil:
		return y.tape, nil
	case y.tape == nil:
		return x.tape, nil
	case x.tape != y.tape:
		return nil, &DifferentTapeError{}
	default:
		return x.tape, nil
	}
}

func paramAddrOf(t *Tape, x *AD) uint32 {
	if x.isDyn {
		return x.addr
	}
	return t.params.addConst(x.value)
}

// recordArithmetic records a binary operator whose result is a tape
// variable because at least one operand is. vpOp and pvOp may be the
// same opcode for commutative operators, in which case the parameter
// operand is always canonicalised into the first argument slot.
func recordArithmetic(t *Tape, vvOp, pvOp, vpOp opcode, x, y *AD, compute func(a, b Base) Base) *AD {
	val := compute(x.value, y.value)
	switch {
	case x.isVar && y.isVar:
		if x.tape != y.tape {
			panic(&DifferentTapeError{})
		}
		addr := t.put_opArgs(vvOp, x.addr, y.addr)
		return &AD{tape: t, isVar: true, addr: addr, value: val}
	case x.isVar:
		p := paramAddrOf(t, y)
		var addr uint32
		if pvOp == vpOp {
			addr = t.put_opArgs(pvOp, p, x.addr)
		} else {
			addr = t.put_opArgs(vpOp, x.addr, p)
		}
		return &AD{tape: t, isVar: true, addr: addr, value: val}
	default: // y.isVar
		p := paramAddrOf(t, x)
		addr := t.put_opArgs(pvOp, p, y.addr)
		return &AD{tape: t, isVar: true, addr: addr, value: val}
	}
}

var dynBinary = map[opcode]dynOpcode{
	addpvOp: dynAddpp, subpvOp: dynSubpp, mulpvOp: dynMulpp, divpvOp: dynDivpp,
	powpvOp: dynPowpp, azmulpvOp: dynAzmulpp,
}

// recordDynamicBinary handles the case where neither operand is a
// tape variable but at least one is a dynamic parameter: the result
// must stay dynamic so Function.NewDynamic can recompute it later.
func recordDynamicBinary(t *Tape, op opcode, x, y *AD, compute func(a, b Base) Base) *AD {
	val := compute(x.value, y.value)
	dop, ok := dynBinary[op]
	assertUnknown(ok, "recordDynamicBinary", "opcode %d has no dynamic form", op)
	addr := t.params.addDynamicOp(dop, paramAddrOf(t, x), paramAddrOf(t, y))
	_ = val
	return &AD{tape: t, isDyn: true, addr: addr, value: t.params.value[addr]}
}

var dynUnary = map[opcode]dynOpcode{
	negOp: dynNeg, absOp: dynAbs, signOp: dynSign, sqrtOp: dynSqrt,
	expOp: dynExp, expm1Op: dynExpm1, logOp: dynLog, log1pOp: dynLog1p, log10Op: dynLog10,
	sinOp: dynSin, cosOp: dynCos, tanOp: dynTan,
	sinhOp: dynSinh, coshOp: dynCosh, tanhOp: dynTanh,
	asinOp: dynAsin, acosOp: dynAcos, atanOp: dynAtan,
	asinhOp: dynAsinh, acoshOp: dynAcosh, atanhOp: dynAtanh,
	erfOp: dynErf, erfcOp: dynErfc,
}

func recordDynamicUnary(t *Tape, op opcode, x *AD) *AD {
	dop, ok := dynUnary[op]
	assertUnknown(ok, "recordDynamicUnary", "opcode %d has no dynamic form", op)
	addr := t.params.addDynamicOp(dop, x.addr)
	return &AD{tape: t, isDyn: true, addr: addr, value: t.params.value[addr]}
}

// recordUnary records op(x) where x is known to be a tape variable.
func recordUnary(t *Tape, op opcode, x *AD, compute func(Base) Base) *AD {
	val := compute(x.value)
	addr := t.put_opArgs(op, x.addr)
	return &AD{tape: t, isVar: true, addr: addr, value: val}
}

// unary is the shared entry point for every one-operand Base method:
// constants fold eagerly, dynamic parameters stay dynamic, variables
// get a new tape operator.
func unary(op opcode, x *AD, compute func(Base) Base) *AD {
	if x.isVar {
		return recordUnary(x.tape, op, x, compute)
	}
	if x.isDyn {
		return recordDynamicUnary(x.tape, op, x)
	}
	return &AD{value: compute(x.value)}
}

// ---- Base interface ----

func (x *AD) Add(yb Base) Base {
	y := toAD(yb)
	if !y.isVar && y.value.IsIdenticalZero() {
		return x
	}
	if !x.isVar && x.value.IsIdenticalZero() {
		return y
	}
	t, err := commonTape(x, y)
	if err != nil {
		panic(err)
	}
	if !x.isVar && !y.isVar {
		return recordDynamicBinaryOrConst(t, addpvOp, x, y, func(a, b Base) Base { return a.Add(b) })
	}
	return recordArithmetic(t, addvvOp, addpvOp, addpvOp, x, y, func(a, b Base) Base { return a.Add(b) })
}

func (x *AD) Sub(yb Base) Base {
	y := toAD(yb)
	if !y.isVar && y.value.IsIdenticalZero() {
		return x
	}
	t, err := commonTape(x, y)
	if err != nil {
		panic(err)
	}
	if !x.isVar && x.value.IsIdenticalZero() {
		return y.Neg()
	}
	if !x.isVar && !y.isVar {
		return recordDynamicBinaryOrConst(t, subpvOp, x, y, func(a, b Base) Base { return a.Sub(b) })
	}
	return recordArithmetic(t, subvvOp, subpvOp, subvpOp, x, y, func(a, b Base) Base { return a.Sub(b) })
}

func (x *AD) Mul(yb Base) Base {
	y := toAD(yb)
	if !y.isVar && y.value.IsIdenticalZero() {
		return &AD{value: Float64(0)}
	}
	if !x.isVar && x.value.IsIdenticalZero() {
		return &AD{value: Float64(0)}
	}
	if !y.isVar && y.value.IsIdenticalOne() {
		return x
	}
	if !x.isVar && x.value.IsIdenticalOne() {
		return y
	}
	t, err := commonTape(x, y)
	if err != nil {
		panic(err)
	}
	if !x.isVar && !y.isVar {
		return recordDynamicBinaryOrConst(t, mulpvOp, x, y, func(a, b Base) Base { return a.Mul(b) })
	}
	return recordArithmetic(t, mulvvOp, mulpvOp, mulpvOp, x, y, func(a, b Base) Base { return a.Mul(b) })
}

func (x *AD) Div(yb Base) Base {
	y := toAD(yb)
	if !y.isVar && y.value.IsIdenticalOne() {
		return x
	}
	t, err := commonTape(x, y)
	if err != nil {
		panic(err)
	}
	if !x.isVar && x.value.IsIdenticalZero() {
		return &AD{value: Float64(0)}
	}
	if !x.isVar && !y.isVar {
		return recordDynamicBinaryOrConst(t, divpvOp, x, y, func(a, b Base) Base { return a.Div(b) })
	}
	return recordArithmetic(t, divvvOp, divpvOp, divvpOp, x, y, func(a, b Base) Base { return a.Div(b) })
}

// Azmul computes x*y, with the identity-preserving rule that the
// result is 0 whenever x is identically 0, regardless of y (even if y
// is NaN or infinite). Used internally by sparsity-safe products and
// exposed for the same reason CppAD exposes it.
func Azmul(xb, yb Base) Base {
	x, y := toAD(xb), toAD(yb)
	if !x.isVar && x.value.IsIdenticalZero() {
		return &AD{value: Float64(0)}
	}
	t, err := commonTape(x, y)
	if err != nil {
		panic(err)
	}
	if !x.isVar && !y.isVar {
		return recordDynamicBinaryOrConst(t, azmulpvOp, x, y, azmulCompute)
	}
	return recordArithmetic(t, azmulvvOp, azmulpvOp, azmulpvOp, x, y, azmulCompute)
}

func azmulCompute(a, b Base) Base {
	if a.IsIdenticalZero() {
		return Float64(0)
	}
	return a.Mul(b)
}

// recordDynamicBinaryOrConst is recordDynamicBinary's entry point for
// callers (Add/Sub/Mul/Div/Azmul) that have already special-cased
// identities and variables; it additionally folds two plain constants
// without touching the dynamic-parameter graph.
func recordDynamicBinaryOrConst(t *Tape, op opcode, x, y *AD, compute func(a, b Base) Base) *AD {
	if !x.isDyn && !y.isDyn {
		return &AD{value: compute(x.value, y.value)}
	}
	return recordDynamicBinary(t, op, x, y, compute)
}

func (x *AD) Neg() Base {
	return unary(negOp, x, func(a Base) Base { return a.Neg() })
}

func (x *AD) Abs() Base {
	return unary(absOp, x, func(a Base) Base { return a.Abs() })
}

func (x *AD) Sign() Base {
	return unary(signOp, x, func(a Base) Base { return a.Sign() })
}

func (x *AD) Sqrt() Base {
	return unary(sqrtOp, x, func(a Base) Base { return a.Sqrt() })
}

func (x *AD) Exp() Base {
	return unary(expOp, x, func(a Base) Base { return a.Exp() })
}

func (x *AD) Expm1() Base {
	return unary(expm1Op, x, func(a Base) Base { return a.Expm1() })
}

func (x *AD) Log() Base {
	return unary(logOp, x, func(a Base) Base { return a.Log() })
}

func (x *AD) Log1p() Base {
	return unary(log1pOp, x, func(a Base) Base { return a.Log1p() })
}

func (x *AD) Log10() Base {
	return unary(log10Op, x, func(a Base) Base { return a.Log10() })
}

func (x *AD) Sin() Base {
	return unary(sinOp, x, func(a Base) Base { return a.Sin() })
}

func (x *AD) Cos() Base {
	return unary(cosOp, x, func(a Base) Base { return a.Cos() })
}

func (x *AD) Tan() Base {
	return unary(tanOp, x, func(a Base) Base { return a.Tan() })
}

func (x *AD) Sinh() Base {
	return unary(sinhOp, x, func(a Base) Base { return a.Sinh() })
}

func (x *AD) Cosh() Base {
	return unary(coshOp, x, func(a Base) Base { return a.Cosh() })
}

func (x *AD) Tanh() Base {
	return unary(tanhOp, x, func(a Base) Base { return a.Tanh() })
}

func (x *AD) Asin() Base {
	return unary(asinOp, x, func(a Base) Base { return a.Asin() })
}

func (x *AD) Acos() Base {
	return unary(acosOp, x, func(a Base) Base { return a.Acos() })
}

func (x *AD) Atan() Base {
	return unary(atanOp, x, func(a Base) Base { return a.Atan() })
}

func (x *AD) Asinh() Base {
	return unary(asinhOp, x, func(a Base) Base { return a.Asinh() })
}

func (x *AD) Acosh() Base {
	return unary(acoshOp, x, func(a Base) Base { return a.Acosh() })
}

func (x *AD) Atanh() Base {
	return unary(atanhOp, x, func(a Base) Base { return a.Atanh() })
}

func (x *AD) Erf() Base {
	return unary(erfOp, x, func(a Base) Base { return a.Erf() })
}

func (x *AD) Erfc() Base {
	return unary(erfcOp, x, func(a Base) Base { return a.Erfc() })
}

// Pow records x**y. The variable/variable and parameter/variable
// forms are decomposed at record time into exp(y*log(x)), the same
// three-operator expansion CppAD's pow_op.hpp falls back to whenever
// the exponent is not a constant; the common variable-to-a-constant-
// power case is recorded as a single fused PowvpOp instead, since that
// is the case a Taylor recurrence can serve directly without a log.
func (x *AD) Pow(yb Base) Base {
	y := toAD(yb)
	if !y.isVar && !y.isDyn && y.value.IsIdenticalOne() {
		return x
	}
	if !y.isVar && !y.isDyn && y.value.IsIdenticalZero() {
		return &AD{value: Float64(1)}
	}
	t, err := commonTape(x, y)
	if err != nil {
		panic(err)
	}
	val := x.value.Pow(y.value)
	switch {
	case !x.isVar && !y.isVar:
		return recordDynamicBinaryOrConst(t, powpvOp, x, y, func(a, b Base) Base { return a.Pow(b) })
	case x.isVar && !y.isVar && !y.isDyn:
		addr := t.put_opArgs(powvpOp, x.addr, t.put_par(y.value))
		return &AD{tape: t, isVar: true, addr: addr, value: val}
	default:
		// x**y = exp(y*log(x)); only valid mathematically for x>0,
		// same restriction CppAD documents for the general pow case.
		lx := x.Log()
		p := lx.(*AD).Mul(y)
		return p.(*AD).Exp()
	}
}

// Atan2 is defined in terms of Atan the way the rest of the package
// defines every compound function: by ordinary AD arithmetic, so it
// never needs its own opcode. The branch on the quadrant is taken on
// the underlying values, exactly as math.Atan2 does, and is therefore
// only locally differentiable like the float64 function it wraps.
func (x *AD) Atan2(yb Base) Base {
	y := toAD(yb)
	xv, yv := x.value.Float64(), yb.Float64()
	switch {
	case yv > 0:
		return y.Atan2Quadrant1(x)
	case yv < 0 && xv >= 0:
		return addPi(y.Atan2Quadrant1(x))
	case yv < 0 && xv < 0:
		return subPi(y.Atan2Quadrant1(x))
	case yv == 0 && xv > 0:
		return &AD{value: Float64(math.Pi / 2)}
	case yv == 0 && xv < 0:
		return &AD{value: Float64(-math.Pi / 2)}
	default:
		return &AD{value: Float64(math.Atan2(xv, yv))}
	}
}

// Atan2Quadrant1 computes atan(y/x), the branch Atan2 uses when x>0.
func (x *AD) Atan2Quadrant1(y *AD) *AD {
	r := y.Div(x)
	return r.(*AD).Atan().(*AD)
}

func addPi(a *AD) Base { return a.Add(Const(Float64(math.Pi))) }
func subPi(a *AD) Base { return a.Sub(Const(Float64(math.Pi))) }

func (x *AD) Eq(yb Base) bool {
	return x.compare(toAD(yb), eqvvOp, eqpvOp, eqpvOp, func(a, b float64) bool { return a == b })
}
func (x *AD) Lt(yb Base) bool {
	return x.compare(toAD(yb), ltvvOp, ltpvOp, ltvpOp, func(a, b float64) bool { return a < b })
}
func (x *AD) Le(yb Base) bool {
	return x.compare(toAD(yb), levvOp, lepvOp, levpOp, func(a, b float64) bool { return a <= b })
}

// compare records a comparison's witness (for CompareChangeNumber)
// whenever at least one operand is a variable, and returns the answer
// computed on the current values either way. pvOp and vpOp may be
// equal for a commutative comparison (Eq), in which case the
// parameter operand is always canonicalised first.
func (x *AD) compare(y *AD, vvOp, pvOp, vpOp opcode, cmp func(a, b float64) bool) bool {
	result := cmp(x.value.Float64(), y.value.Float64())
	if !x.isVar && !y.isVar {
		return result
	}
	t, err := commonTape(x, y)
	if err != nil {
		panic(err)
	}
	t.nextCompareSlot()
	switch {
	case x.isVar && y.isVar:
		t.put_opArgs(vvOp, x.addr, y.addr)
	case x.isVar:
		if pvOp == vpOp {
			t.put_opArgs(pvOp, paramAddrOf(t, y), x.addr)
		} else {
			t.put_opArgs(vpOp, x.addr, paramAddrOf(t, y))
		}
	default:
		t.put_opArgs(pvOp, paramAddrOf(t, x), y.addr)
	}
	return result
}

func (x *AD) IsInteger() bool       { return x.value.IsInteger() }
func (x *AD) IsIdenticalZero() bool { return !x.isVar && !x.isDyn && x.value.IsIdenticalZero() }
func (x *AD) IsIdenticalOne() bool  { return !x.isVar && !x.isDyn && x.value.IsIdenticalOne() }
func (x *AD) LessThanZero() bool    { return x.value.LessThanZero() }
func (x *AD) Float64() float64      { return x.value.Float64() }
func (x *AD) String() string        { return x.value.String() }

// CondExpLt, CondExpLe, CondExpEq etc. would each need a distinct
// opcode in CppAD; gotape instead exposes a single CondAssign helper
// (ad/cond.go) built on cexpOp, parameterised by the comparison, which
// plays the same role without six near-identical opcodes.
