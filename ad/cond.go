package ad

// Conditional expressions (component C1's CExpOp). CppAD gives each
// comparison its own CondExpLt/Le/Eq/Ge/Gt/Ne entry point; gotape
// folds all six into one opcode parameterised by a comparison code,
// since the only thing that differs between them is which float64
// comparison decides the branch.
type CompareOp uint32

const (
	CopLt CompareOp = iota
	CopLe
	CopEq
	CopGe
	CopGt
	CopNe
)

func evalCop(cop CompareOp, a, b float64) bool {
	switch cop {
	case CopLt:
		return a < b
	case CopLe:
		return a <= b
	case CopEq:
		return a == b
	case CopGe:
		return a >= b
	case CopGt:
		return a > b
	default:
		return a != b
	}
}

// CondAssign returns ifTrue when cop(left, right) holds on their
// current values, else ifFalse — but unlike an ordinary Go if, it
// records BOTH branches onto the tape (when any operand is a
// variable) so that Forward/Reverse at a different point, where the
// comparison flips, still replays correctly. Use this instead of a Go
// if/else whenever the branch condition depends on a variable; a bare
// if/else silently bakes in whichever branch was live while recording
// and can only be caught after the fact via CompareChangeNumber.
func CondAssign(cop CompareOp, left, right, ifTrue, ifFalse Base) Base {
	l, r := toAD(left), toAD(right)
	tv, fv := toAD(ifTrue), toAD(ifFalse)

	cond := evalCop(cop, l.value.Float64(), r.value.Float64())

	var t *Tape
	for _, v := range []*AD{l, r, tv, fv} {
		if v.tape != nil {
			t = v.tape
			break
		}
	}
	if t == nil {
		if cond {
			return ifTrue
		}
		return ifFalse
	}

	var flag uint32
	addr := func(v *AD) uint32 {
		if v.isVar {
			return v.addr
		}
		return t.params.addConst(v.value)
	}
	if l.isVar {
		flag |= 1
	}
	if r.isVar {
		flag |= 2
	}
	if tv.isVar {
		flag |= 4
	}
	if fv.isVar {
		flag |= 8
	}

	resAddr := t.put_opArgs(cexpOp, uint32(cop), flag, addr(l), addr(r), addr(tv), addr(fv))
	var val Base
	if cond {
		val = tv.value
	} else {
		val = fv.value
	}
	return &AD{tape: t, isVar: true, addr: resAddr, value: val}
}

func (f *Function) forwardCexp(zAddr uint32, q int, args []uint32) {
	cop := CompareOp(args[0])
	flag := args[1]
	left := f.operand(flag&1 != 0, args[2], 0).Float64()
	right := f.operand(flag&2 != 0, args[3], 0).Float64()
	if evalCop(cop, left, right) {
		f.set(zAddr, q, f.operand(flag&4 != 0, args[4], q))
	} else {
		f.set(zAddr, q, f.operand(flag&8 != 0, args[5], q))
	}
}
