package ad

import "math"

// Reverse computes, for every independent variable x_j, the partial
// derivative of sum_i w[i]*y_i with respect to x_j (component C7,
// §4.7): the standard reverse-mode gradient, CppAD's Reverse(1, w).
//
// gotape only implements order-1 reverse: every adjoint rule below is
// the plain local derivative of one opcode, exact regardless of what
// Base instantiates to (including nested *AD, which is how Hessian
// gets its second derivative — see Hessian below). CppAD additionally
// supports reversing a whole Taylor order q>1 directly; gotape does
// not attempt those recurrences; compute a Hessian (or any second
// derivative) by nesting two Functions instead, never by calling
// Reverse with q>1.
func (f *Function) Reverse(q int, w []Base) ([]Base, error) {
	if q != 1 {
		return nil, knownf("Reverse", "only first-order reverse (q=1) is supported; nest two Functions (AD-of-AD) for higher derivatives")
	}
	if f.curOrder < 0 {
		return nil, knownf("Reverse", "Forward(0, ...) must be called before Reverse")
	}
	if len(w) != f.m {
		return nil, knownf("Reverse", "expected %d weights, got %d", f.m, len(w))
	}

	partial := make([]Base, f.tape.nVar)
	for i := range partial {
		partial[i] = f.zero
	}
	for i, addr := range f.tape.depAddr {
		if f.tape.depIsVar[i] {
			partial[addr] = partial[addr].Add(w[i])
		}
	}

	f.reverseSweep(partial)

	px := make([]Base, f.n)
	for j, addr := range f.tape.indAddr {
		px[j] = partial[addr]
	}
	return px, nil
}

// Jacobian returns the m x n matrix of partial derivatives dy_i/dx_j,
// computed with m reverse sweeps over the already-recorded Forward(0)
// point.
func (f *Function) Jacobian() ([][]Base, error) {
	if f.curOrder < 0 {
		return nil, knownf("Jacobian", "Forward(0, ...) must be called before Jacobian")
	}
	jac := make([][]Base, f.m)
	for i := 0; i < f.m; i++ {
		w := make([]Base, f.m)
		for k := range w {
			w[k] = f.zero
		}
		w[i] = Float64(1)
		row, err := f.Reverse(1, w)
		if err != nil {
			return nil, err
		}
		jac[i] = row
	}
	return jac, nil
}

// Hessian returns d2(sum_i w_i y_i)/dx_j dx_k by the AD-of-AD nesting
// technique: model is re-recorded with Base instantiated as *AD from a
// fresh inner tape (so every Base operation inside model is itself
// differentiable), x0's values seed the inner independent variables,
// a single Reverse(1, w) sweep over the inner Function gives the whole
// gradient as a function of x (recorded on the outer tape), and the
// outer Function's Jacobian differentiates that gradient again with
// one reverse sweep per gradient component. This is
// exactly "Forward then Reverse on the derivative of Reverse" — the
// same two-tape-level trick CppAD's own hessian() convenience routine
// documents as the general-purpose way to get second derivatives
// without hand-written second-order kernels per operator.
func Hessian(model func(x []Base) []Base, x0 []Base, w []float64) ([][]float64, error) {
	n := len(x0)
	h := make([][]float64, n)
	for j := range h {
		h[j] = make([]float64, n)
	}

	outerModel := func(xv []Base) []Base {
		g, err := gradBase(model, xv, w)
		if err != nil {
			panic(err)
		}
		return g
	}
	outer, err := Record(outerModel, x0)
	if err != nil {
		return nil, err
	}
	jac, err := outer.Jacobian()
	if err != nil {
		return nil, err
	}
	for j := 0; j < n; j++ {
		for k := 0; k < n; k++ {
			h[j][k] = jac[j][k].Float64()
		}
	}
	return h, nil
}

// gradBase evaluates the gradient of sum_i w_i*model(x)_i at x by
// recording model on its own inner tape and reversing it, returning
// the result as plain Base values (detached from the inner tape) so
// the outer recording in Hessian can record over them in turn.
func gradBase(model func([]Base) []Base, x []Base, w []float64) ([]Base, error) {
	inner, err := Record(model, x)
	if err != nil {
		return nil, err
	}
	wb := make([]Base, len(w))
	for i, wi := range w {
		wb[i] = Float64(wi)
	}
	g, err := inner.Reverse(1, wb)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func primaryAddr(op opcode, base uint32) uint32 {
	n := nRes(op)
	if n == 0 {
		return base
	}
	return base + uint32(n) - 1
}

// reverseSweep walks the operator stream back to front, accumulating
// each operator's contribution to partial[] from its own adjoint
// (partial[z], the slot it just finished filling) onto its operands'
// adjoints. It mirrors forwardSweep's argIdx/varIdx bookkeeping, run
// in reverse, rather than reusing the forward cursors directly, since
// the walk direction has flipped.
func (f *Function) reverseSweep(partial []Base) {
	t := f.tape
	n := len(t.ops)
	argStart := make([]int, n)
	varStart := make([]uint32, n)
	argIdx, varIdx := 0, uint32(0)
	for i, op := range t.ops {
		argStart[i] = argIdx
		varStart[i] = varIdx
		argIdx += nArg(op)
		varIdx += uint32(nRes(op))
	}

	for i := n - 1; i >= 0; i-- {
		op := t.ops[i]
		args := t.args[argStart[i] : argStart[i]+nArg(op)]
		base := varStart[i]
		zAddr := primaryAddr(op, base)
		var pz Base
		if zAddr < uint32(len(partial)) {
			pz = partial[zAddr]
		}

		switch op {
		case beginOp, endOp, invOp, parOp:
			// no operand to propagate to.

		case addvvOp:
			partial[args[0]] = partial[args[0]].Add(pz)
			partial[args[1]] = partial[args[1]].Add(pz)
		case addpvOp:
			partial[args[1]] = partial[args[1]].Add(pz)
		case subvvOp:
			partial[args[0]] = partial[args[0]].Add(pz)
			partial[args[1]] = partial[args[1]].Sub(pz)
		case subpvOp:
			partial[args[1]] = partial[args[1]].Sub(pz)
		case subvpOp:
			partial[args[0]] = partial[args[0]].Add(pz)
		case negOp:
			partial[args[0]] = partial[args[0]].Sub(pz)
		case absOp:
			partial[args[0]] = partial[args[0]].Add(scale(pz, signOf(f.at(args[0], 0))))
		case signOp:
			// derivative is 0 a.e.; nothing to propagate.

		case mulvvOp:
			x0, y0 := f.at(args[0], 0), f.at(args[1], 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(y0))
			partial[args[1]] = partial[args[1]].Add(pz.Mul(x0))
		case mulpvOp:
			p0 := f.paramValue(args[0], 0)
			partial[args[1]] = partial[args[1]].Add(pz.Mul(p0))

		case divvvOp:
			y0 := f.at(args[1], 0)
			z0 := f.at(zAddr, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Div(y0))
			partial[args[1]] = partial[args[1]].Sub(pz.Mul(z0).Div(y0))
		case divpvOp:
			y0 := f.at(args[1], 0)
			z0 := f.at(zAddr, 0)
			partial[args[1]] = partial[args[1]].Sub(pz.Mul(z0).Div(y0))
		case divvpOp:
			p0 := f.paramValue(args[1], 0)
			partial[args[0]] = partial[args[0]].Add(pz.Div(p0))

		case azmulvvOp:
			x0 := f.at(args[0], 0)
			if !x0.IsIdenticalZero() {
				y0 := f.at(args[1], 0)
				partial[args[0]] = partial[args[0]].Add(pz.Mul(y0))
				partial[args[1]] = partial[args[1]].Add(pz.Mul(x0))
			}
		case azmulpvOp:
			p0 := f.paramValue(args[0], 0)
			if !p0.IsIdenticalZero() {
				partial[args[1]] = partial[args[1]].Add(pz.Mul(p0))
			}

		case sqrtOp:
			z0 := f.at(zAddr, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Div(scale(z0, 2)))
		case expOp:
			z0 := f.at(zAddr, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(z0))
		case expm1Op:
			z0 := f.at(zAddr, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(z0.Add(Float64(1))))
		case logOp:
			x0 := f.at(args[0], 0)
			partial[args[0]] = partial[args[0]].Add(pz.Div(x0))
		case log1pOp:
			x0 := f.at(args[0], 0)
			partial[args[0]] = partial[args[0]].Add(pz.Div(x0.Add(Float64(1))))
		case log10Op:
			x0 := f.at(args[0], 0)
			partial[args[0]] = partial[args[0]].Add(pz.Div(scale(x0, math.Log(10))))

		case sinOp:
			cosAux := f.at(base, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(cosAux))
		case cosOp:
			sinAux := f.at(base, 0)
			partial[args[0]] = partial[args[0]].Sub(pz.Mul(sinAux))
		case sinhOp:
			coshAux := f.at(base, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(coshAux))
		case coshOp:
			sinhAux := f.at(base, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(sinhAux))
		case tanOp:
			w0 := f.at(base, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(w0))
		case tanhOp:
			w0 := f.at(base, 0)
			partial[args[0]] = partial[args[0]].Add(pz.Mul(w0))

		case asinOp, acosOp, atanOp, asinhOp, acoshOp, atanhOp:
			kind := map[opcode]int{
				asinOp: invAsin, acosOp: invAcos, atanOp: invAtan,
				asinhOp: invAsinh, acoshOp: invAcosh, atanhOp: invAtanh,
			}[op]
			d := invDescs[kind]
			aux := f.at(base, 0)
			term := pz.Div(aux)
			if d.sign < 0 {
				term = term.Neg()
			}
			partial[args[0]] = partial[args[0]].Add(term)

		case erfOp, erfcOp:
			eAux := f.at(base+1, 0)
			term := scale(pz.Mul(eAux), twoOverSqrtPi)
			if op == erfcOp {
				term = term.Neg()
			}
			partial[args[0]] = partial[args[0]].Add(term)

		case powvpOp:
			c := f.paramValue(args[1], 0).Float64()
			x0 := f.at(args[0], 0)
			z0 := f.at(zAddr, 0)
			partial[args[0]] = partial[args[0]].Add(scale(pz.Mul(z0).Div(x0), c))

		case eqvvOp, eqpvOp, nevvOp, nepvOp,
			ltvvOp, ltpvOp, ltvpOp, levvOp, lepvOp, levpOp:
			// comparisons carry no derivative.

		case cexpOp:
			cop := CompareOp(args[0])
			flag := args[1]
			left := f.operand(flag&1 != 0, args[2], 0).Float64()
			right := f.operand(flag&2 != 0, args[3], 0).Float64()
			if evalCop(cop, left, right) {
				if flag&4 != 0 {
					partial[args[4]] = partial[args[4]].Add(pz)
				}
			} else {
				if flag&8 != 0 {
					partial[args[5]] = partial[args[5]].Add(pz)
				}
			}

		case ldpOp, ldvOp, stppOp, stpvOp, stvpOp, stvvOp:
			// VecAD elements do not propagate adjoints in gotape's
			// simplified model (see vecad.go); nothing to do.

		case pripOp, privOp:
			// printing has no derivative.

		case afunOp:
			f.reverseAtomic(args[1], partial)
		case funapOp, funavOp, funrpOp, funrvOp:
			// handled as a unit by the afunOp case above.
		}
	}
}

const twoOverSqrtPi = 1.1283791670955126
