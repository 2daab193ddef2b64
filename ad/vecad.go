package ad

// VecAD (component C5) is an indexable vector whose elements may be
// loaded and stored with either a constant or a variable index and
// assigned either a constant or a variable value, replaying correctly
// even when the index's value differs from the one seen while
// recording. It is the tape-recordable analogue of a plain []Base
// slice: use it whenever a recorded program needs to index into a
// vector using a value that is itself part of the computation (a
// lookup table selected by a computed position, for instance).
//
// gotape keeps one current value per element, refreshed from the
// recorded initial values at the start of every Forward(0, ...) call;
// a subsequent Store replaces it for the remainder of that replay.
// This is a simplification of CppAD's VecAD bookkeeping (which tracks,
// per element, whether it is currently a parameter or a variable, and
// persists across Forward calls rather than resetting): gotape's
// version is sufficient for the common read-modify-replay pattern but
// does not carry element state across independent Forward(0,...) calls.
type VecAD struct {
	tape  *Tape
	index uint32
	n     int
}

// NewVecAD declares a VecAD of len(initial) elements with those
// starting values, on the tape currently being recorded.
func NewVecAD(initial []Base) *VecAD {
	t := activeTape()
	if t == nil {
		panic(knownf("NewVecAD", "no recording is active on this goroutine"))
	}
	idx := t.put_vecad(initial)
	return &VecAD{tape: t, index: idx, n: len(initial)}
}

func (v *VecAD) Len() int { return v.n }

// Get loads v[i], recording LdpOp or LdvOp depending on whether i is a
// tape variable.
func (v *VecAD) Get(i Base) *AD {
	ia := toAD(i)
	var op opcode
	var idxAddr uint32
	if ia.isVar {
		op = ldvOp
		idxAddr = ia.addr
	} else {
		op = ldpOp
		idxAddr = paramAddrOf(v.tape, ia)
	}
	addr := v.tape.put_opArgs(op, v.index, idxAddr)
	return &AD{tape: v.tape, isVar: true, addr: addr}
}

// Set stores val into v[i], recording the St*Op matching whether i
// and val are tape variables.
func (v *VecAD) Set(i Base, val Base) {
	ia, va := toAD(i), toAD(val)
	var op opcode
	switch {
	case !ia.isVar && !va.isVar:
		op = stppOp
	case !ia.isVar && va.isVar:
		op = stpvOp
	case ia.isVar && !va.isVar:
		op = stvpOp
	default:
		op = stvvOp
	}
	idxAddr := idxOrParam(v.tape, ia)
	valAddr := idxOrParam(v.tape, va)
	v.tape.put_opArgs(op, v.index, idxAddr, valAddr)
}

func idxOrParam(t *Tape, a *AD) uint32 {
	if a.isVar {
		return a.addr
	}
	return paramAddrOf(t, a)
}

func (f *Function) ensureVecadScratch() {
	if f.vecadCur != nil {
		return
	}
	f.resetVecadScratch()
}

func (f *Function) resetVecadScratch() {
	f.vecadCur = make([][]Base, len(f.tape.vecadInitial))
	for i, initial := range f.tape.vecadInitial {
		row := make([]Base, len(initial))
		copy(row, initial)
		f.vecadCur[i] = row
	}
}

func (f *Function) vecadIndex(addr uint32, isVar bool) int {
	return int(f.operand(isVar, addr, 0).Float64())
}

func (f *Function) baseCoefOf(v Base, q int) Base {
	if ad, ok := v.(*AD); ok && ad.isVar && ad.tape == f.tape {
		return f.at(ad.addr, q)
	}
	if q == 0 {
		return v
	}
	return f.zero
}

func (f *Function) forwardLoad(op opcode, zAddr uint32, q int, args []uint32) {
	f.ensureVecadScratch()
	idx := f.vecadIndex(args[1], op == ldvOp)
	val := f.vecadCur[args[0]][idx]
	f.set(zAddr, q, f.baseCoefOf(val, q))
}

func (f *Function) forwardStore(op opcode, args []uint32) {
	f.ensureVecadScratch()
	indexIsVar := op == stvpOp || op == stvvOp
	valueIsVar := op == stpvOp || op == stvvOp
	idx := f.vecadIndex(args[1], indexIsVar)
	var val Base
	if valueIsVar {
		val = &AD{tape: f.tape, isVar: true, addr: args[2], value: f.at(args[2], 0)}
	} else {
		val = f.paramValue(args[2], 0)
	}
	f.vecadCur[args[0]][idx] = val
}
