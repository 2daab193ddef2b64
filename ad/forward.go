package ad

import "math"

// scale multiplies b by the float64 constant c while keeping b's own
// structure (nested AD included): the constant always becomes the
// Mul argument, never the receiver, so AD.Mul's identity folds and
// recording logic apply to b, not to a throwaway Float64.
func scale(b Base, c float64) Base { return b.Mul(Float64(c)) }

func addAll(bs ...Base) Base {
	r := bs[0]
	for _, b := range bs[1:] {
		r = r.Add(b)
	}
	return r
}

// Forward computes the q-th order Taylor coefficient of every
// dependent variable from the q-th order coefficients xq of the
// independent variables, given that orders 0..q-1 were supplied by
// previous calls (component C7, §4.6). Forward(0, x) is the common
// "just evaluate the function" case.
func (f *Function) Forward(q int, xq []Base) ([]Base, error) {
	if len(xq) != f.n {
		return nil, knownf("Forward", "expected %d independent values, got %d", f.n, len(xq))
	}
	if q != 0 && q != f.curOrder+1 {
		return nil, knownf("Forward", "orders must be supplied in sequence: next expected order is %d, got %d", f.curOrder+1, q)
	}
	if f.n > 0 {
		f.zero = xq[0].Sub(xq[0])
	}
	for i, addr := range f.tape.indAddr {
		f.set(addr, q, xq[i])
	}
	f.set(0, q, f.zero) // phantom slot

	if q == 0 {
		f.compareAtReplay = make([]bool, f.tape.compareCount)
		f.resetVecadScratch()
	}
	f.forwardSweep(q)
	f.curOrder = q

	y := make([]Base, f.m)
	for i, addr := range f.tape.depAddr {
		if f.tape.depIsVar[i] {
			y[i] = f.at(addr, q)
		} else if q == 0 {
			y[i] = f.tape.params.value[addr]
		} else {
			y[i] = f.zero
		}
	}
	return y, nil
}

// ForwardDir evaluates order q simultaneously in r independent
// directions: xq[d] supplies the q-th order coefficients for
// direction d. It is forward(p=q,q=q,...) from C1 run r times against
// shared lower-order history, the same relationship CppAD's
// forward_dir has to its single-direction forward.
func (f *Function) ForwardDir(q, r int, xq [][]Base) ([][]Base, error) {
	y := make([][]Base, r)
	for d := 0; d < r; d++ {
		yd, err := f.Forward(q, xq[d])
		if err != nil {
			return nil, err
		}
		y[d] = yd
		if d != r-1 {
			f.curOrder = q - 1 // rewind so the next direction can overwrite order q
		}
	}
	return y, nil
}

func (f *Function) operand(isVar bool, addr uint32, k int) Base {
	if isVar {
		return f.at(addr, k)
	}
	return f.paramValue(addr, k)
}

// forwardSweep fills order q of every variable's Taylor coefficient
// column by walking the operator stream once, dispatching each
// opcode to its C1 forward kernel.
func (f *Function) forwardSweep(q int) {
	t := f.tape
	argIdx, varIdx, cmpIdx := 0, uint32(0), 0
	for _, op := range t.ops {
		args := t.args[argIdx : argIdx+nArg(op)]
		argIdx += nArg(op)
		base := varIdx
		varIdx += uint32(nRes(op))

		switch op {
		case beginOp, endOp:
			// no-op; beginOp's phantom slot is set by Forward itself.

		case invOp:
			// independent variable coefficients are bound by Forward.

		case parOp:
			f.set(base, q, f.paramValue(args[0], q))

		case addvvOp:
			f.set(base, q, f.at(args[0], q).Add(f.at(args[1], q)))
		case addpvOp:
			f.set(base, q, f.paramValue(args[0], q).Add(f.at(args[1], q)))
		case subvvOp:
			f.set(base, q, f.at(args[0], q).Sub(f.at(args[1], q)))
		case subpvOp:
			f.set(base, q, f.paramValue(args[0], q).Sub(f.at(args[1], q)))
		case subvpOp:
			f.set(base, q, f.at(args[0], q).Sub(f.paramValue(args[1], q)))
		case negOp:
			f.set(base, q, f.at(args[0], q).Neg())
		case absOp:
			x0 := f.at(args[0], 0)
			if q == 0 {
				f.set(base, q, x0.Abs())
			} else {
				f.set(base, q, scale(f.at(args[0], q), signOf(x0)))
			}
		case signOp:
			if q == 0 {
				f.set(base, q, f.at(args[0], 0).Sign())
			} else {
				f.set(base, q, f.zero)
			}

		case mulvvOp:
			f.forwardMul(base, q, f.coefFn(args[0], true), f.coefFn(args[1], true))
		case mulpvOp:
			f.forwardMul(base, q, f.coefFn(args[0], false), f.coefFn(args[1], true))
		case divvvOp:
			f.forwardDiv(base, q, f.coefFn(args[0], true), f.coefFn(args[1], true))
		case divpvOp:
			f.forwardDiv(base, q, f.coefFn(args[0], false), f.coefFn(args[1], true))
		case divvpOp:
			f.forwardDiv(base, q, f.coefFn(args[0], true), f.coefFn(args[1], false))

		case azmulvvOp:
			f.forwardAzmul(base, q, f.coefFn(args[0], true), f.coefFn(args[1], true))
		case azmulpvOp:
			f.forwardAzmul(base, q, f.coefFn(args[0], false), f.coefFn(args[1], true))

		case sqrtOp:
			f.forwardSqrt(base, q, f.coefFn(args[0], true))
		case expOp:
			f.forwardExpLike(base, q, f.coefFn(args[0], true), nil, math.Exp, false)
		case expm1Op:
			f.forwardExpm1(base, q, f.coefFn(args[0], true))
		case logOp:
			f.forwardLog(base, q, f.coefFn(args[0], true), 1)
		case log1pOp:
			f.forwardLog1p(base, q, f.coefFn(args[0], true))
		case log10Op:
			f.forwardLog10(base, q, f.coefFn(args[0], true))

		case sinOp:
			f.forwardSinCos(base, q, f.coefFn(args[0], true), true)
		case cosOp:
			f.forwardSinCos(base, q, f.coefFn(args[0], true), false)
		case sinhOp:
			f.forwardSinhCosh(base, q, f.coefFn(args[0], true), true)
		case coshOp:
			f.forwardSinhCosh(base, q, f.coefFn(args[0], true), false)
		case tanOp:
			f.forwardTanLike(base, q, f.coefFn(args[0], true), 1)
		case tanhOp:
			f.forwardTanLike(base, q, f.coefFn(args[0], true), -1)

		case asinOp:
			f.forwardInverse(base, q, f.coefFn(args[0], true), invAsin)
		case acosOp:
			f.forwardInverse(base, q, f.coefFn(args[0], true), invAcos)
		case atanOp:
			f.forwardInverse(base, q, f.coefFn(args[0], true), invAtan)
		case asinhOp:
			f.forwardInverse(base, q, f.coefFn(args[0], true), invAsinh)
		case acoshOp:
			f.forwardInverse(base, q, f.coefFn(args[0], true), invAcosh)
		case atanhOp:
			f.forwardInverse(base, q, f.coefFn(args[0], true), invAtanh)

		case erfOp:
			f.forwardErf(base, q, f.coefFn(args[0], true), false)
		case erfcOp:
			f.forwardErf(base, q, f.coefFn(args[0], true), true)

		case powvpOp:
			f.forwardPowvp(base, q, f.coefFn(args[0], true), f.paramValue(args[1], 0).Float64())

		case eqvvOp, eqpvOp, nevvOp, nepvOp, ltvvOp, ltpvOp, ltvpOp, levvOp, lepvOp, levpOp:
			if q == 0 {
				f.recordCompareWitness(op, args, cmpIdx)
			}
			cmpIdx++

		case cexpOp:
			f.forwardCexp(base, q, args)

		case ldpOp, ldvOp:
			f.forwardLoad(op, base, q, args)
		case stppOp, stpvOp, stvpOp, stvvOp:
			// stores mutate VecAD scratch at order 0 only; see vecad.go.
			if q == 0 {
				f.forwardStore(op, args)
			}
		case pripOp, privOp:
			if q == 0 {
				f.forwardPrint(op, args)
			}
		case afunOp:
			if err := f.forwardAtomic(args[1], q); err != nil {
				panic(err)
			}
		case funapOp, funavOp, funrpOp:
			// reserved markers; the simplified recorder in atomic.go carries
			// a call's arguments in a side table instead of emitting one of
			// these per argument, so they never appear in a recorded tape.
		case funrvOp:
			// result slot for an atomic call's output; afunOp already wrote
			// its order-q coefficient via forwardAtomic.
		}
	}
}

func signOf(x Base) float64 {
	v := x.Float64()
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// coefFn returns a function giving the k-th order coefficient of an
// operand that is either a variable address or a parameter address.
func (f *Function) coefFn(addr uint32, isVar bool) func(int) Base {
	if isVar {
		return func(k int) Base { return f.at(addr, k) }
	}
	return func(k int) Base { return f.paramValue(addr, k) }
}

// forwardMul fills order q of z = x*y via the Cauchy product
// z^(q) = sum_{j=0}^{q} x^(j) y^(q-j).
func (f *Function) forwardMul(zAddr uint32, q int, x, y func(int) Base) {
	var terms []Base
	for j := 0; j <= q; j++ {
		terms = append(terms, x(j).Mul(y(q-j)))
	}
	f.set(zAddr, q, addAll(terms...))
}

func (f *Function) forwardAzmul(zAddr uint32, q int, x, y func(int) Base) {
	if x(0).IsIdenticalZero() {
		f.set(zAddr, q, f.zero)
		return
	}
	f.forwardMul(zAddr, q, x, y)
}

// forwardDiv fills order q of z = x/y via z^(q) = (x^(q) - sum_{j=1}^q y^(j) z^(q-j)) / y^(0).
func (f *Function) forwardDiv(zAddr uint32, q int, x, y func(int) Base) {
	acc := x(q)
	for j := 1; j <= q; j++ {
		acc = acc.Sub(y(j).Mul(f.at(zAddr, q-j)))
	}
	f.set(zAddr, q, acc.Div(y(0)))
}

// forwardSqrt fills order q of z = sqrt(x) via the Cauchy product of
// z with itself: x^(q) = 2 z^(0) z^(q) + sum_{j=1}^{q-1} z^(j)z^(q-j).
func (f *Function) forwardSqrt(zAddr uint32, q int, x func(int) Base) {
	if q == 0 {
		f.set(zAddr, 0, x(0).Sqrt())
		return
	}
	acc := x(q)
	for j := 1; j < q; j++ {
		acc = acc.Sub(f.at(zAddr, j).Mul(f.at(zAddr, q-j)))
	}
	f.set(zAddr, q, acc.Div(scale(f.at(zAddr, 0), 2)))
}

// forwardExpLike implements the ODE-product recurrence shared by exp
// (and, via forwardTanLike/forwardSinCos, tan/tanh/sin/cos): for a
// relation z' = x' * w with w known up to order q-1,
// z^(q) = (1/q) sum_{j=1}^{q} j x^(j) w^(q-j). When w is nil, z itself
// plays the role of w (the exp case, z'=x'z).
func (f *Function) forwardExpLike(zAddr uint32, q int, x, w func(int) Base, base0 func(float64) float64, selfW bool) {
	if q == 0 {
		f.set(zAddr, 0, Float64(base0(x(0).Float64())))
		return
	}
	wv := w
	if selfW || wv == nil {
		wv = func(k int) Base { return f.at(zAddr, k) }
	}
	var terms []Base
	for j := 1; j <= q; j++ {
		terms = append(terms, scale(x(j).Mul(wv(q-j)), float64(j)))
	}
	f.set(zAddr, q, addAll(terms...).Div(Float64(float64(q))))
}

func (f *Function) forwardExpm1(zAddr uint32, q int, x func(int) Base) {
	if q == 0 {
		f.set(zAddr, 0, x(0).Expm1())
		return
	}
	// d/dx expm1 = exp(x), so orders >=1 match exp's recurrence with
	// w=z+1; reuse the exp kernel by biasing w only at order 0.
	w := func(k int) Base {
		if k == 0 {
			return f.at(zAddr, 0).Add(Float64(1))
		}
		return f.at(zAddr, k)
	}
	f.forwardExpLike(zAddr, q, x, w, nil, false)
}

// forwardLog fills order q of z = log(x)/ln(base) via the transposed
// ODE relation x z' = x' (scaled by 1/ln(base) for log10).
func (f *Function) forwardLog(zAddr uint32, q int, x func(int) Base, lnBase float64) {
	if q == 0 {
		v := x(0).Log()
		if lnBase != 1 {
			v = v.Div(Float64(lnBase))
		}
		f.set(zAddr, 0, v)
		return
	}
	var terms []Base
	for j := 1; j < q; j++ {
		terms = append(terms, scale(f.at(zAddr, j).Mul(x(q-j)), float64(j)*lnBase))
	}
	acc := x(q)
	if len(terms) > 0 {
		acc = acc.Sub(addAll(terms...).Div(Float64(float64(q))))
	}
	v := acc.Div(x(0))
	if lnBase != 1 {
		v = v.Div(Float64(lnBase))
	}
	f.set(zAddr, q, v)
}

func (f *Function) forwardLog1p(zAddr uint32, q int, x func(int) Base) {
	u := func(k int) Base {
		if k == 0 {
			return x(0).Add(Float64(1))
		}
		return x(k)
	}
	f.forwardLog(zAddr, q, u, 1)
}

func (f *Function) forwardLog10(zAddr uint32, q int, x func(int) Base) {
	f.forwardLog(zAddr, q, x, math.Log(10))
}

// forwardSinCos fills order q of the sin/cos pair recorded by sinOp
// (aux=cos) or cosOp (aux=sin). want=true asks for the sin slot as
// the primary result.
func (f *Function) forwardSinCos(base uint32, q int, x func(int) Base, want bool) {
	auxAddr, zAddr := base, base+1
	if q == 0 {
		f.set(auxAddr, 0, x(0).Cos())
		f.set(zAddr, 0, x(0).Sin())
		if !want {
			f.swapAux(auxAddr, zAddr, 0)
		}
		return
	}
	sAddr, cAddr := zAddr, auxAddr
	if !want {
		sAddr, cAddr = auxAddr, zAddr
	}
	s := func(k int) Base { return f.at(sAddr, k) }
	c := func(k int) Base { return f.at(cAddr, k) }
	var st, ct []Base
	for j := 1; j <= q; j++ {
		st = append(st, scale(x(j).Mul(c(q-j)), float64(j)))
		ct = append(ct, scale(x(j).Mul(s(q-j)), float64(j)))
	}
	f.set(sAddr, q, addAll(st...).Div(Float64(float64(q))))
	f.set(cAddr, q, addAll(ct...).Div(Float64(float64(q))).Neg())
}

// swapAux exchanges the primary/auxiliary roles: cosOp stores cos as
// the primary result and sin as the auxiliary, the mirror of sinOp.
func (f *Function) swapAux(a, b uint32, k int) {
	va, vb := f.at(a, k), f.at(b, k)
	f.set(a, k, vb)
	f.set(b, k, va)
}

func (f *Function) forwardSinhCosh(base uint32, q int, x func(int) Base, want bool) {
	auxAddr, zAddr := base, base+1
	if q == 0 {
		f.set(auxAddr, 0, x(0).Cosh())
		f.set(zAddr, 0, x(0).Sinh())
		if !want {
			f.swapAux(auxAddr, zAddr, 0)
		}
		return
	}
	sAddr, cAddr := zAddr, auxAddr
	if !want {
		sAddr, cAddr = auxAddr, zAddr
	}
	s := func(k int) Base { return f.at(sAddr, k) }
	c := func(k int) Base { return f.at(cAddr, k) }
	var st, ct []Base
	for j := 1; j <= q; j++ {
		st = append(st, scale(x(j).Mul(c(q-j)), float64(j)))
		ct = append(ct, scale(x(j).Mul(s(q-j)), float64(j)))
	}
	f.set(sAddr, q, addAll(st...).Div(Float64(float64(q))))
	f.set(cAddr, q, addAll(ct...).Div(Float64(float64(q))))
}

// forwardTanLike handles tan (sign=+1, w=1+z^2) and tanh (sign=-1,
// w=1-z^2): both satisfy z'=x'w with w itself a plain Cauchy square of z.
func (f *Function) forwardTanLike(base uint32, q int, x func(int) Base, sign float64) {
	zAddr, wAddr := base+1, base
	if q == 0 {
		var z0 Base
		if sign > 0 {
			z0 = x(0).Tan()
		} else {
			z0 = x(0).Tanh()
		}
		f.set(zAddr, 0, z0)
		f.set(wAddr, 0, Float64(1).Add(scale(z0.Mul(z0), sign)))
		return
	}
	w := func(k int) Base { return f.at(wAddr, k) }
	var zt []Base
	for j := 1; j <= q; j++ {
		zt = append(zt, scale(x(j).Mul(w(q-j)), float64(j)))
	}
	f.set(zAddr, q, addAll(zt...).Div(Float64(float64(q))))
	var terms []Base
	for j := 0; j <= q; j++ {
		terms = append(terms, f.at(zAddr, j).Mul(f.at(zAddr, q-j)))
	}
	f.set(wAddr, q, scale(addAll(terms...), sign))
}

func (f *Function) forwardPowvp(zAddr uint32, q int, x func(int) Base, c float64) {
	if q == 0 {
		f.set(zAddr, 0, x(0).Pow(Float64(c)))
		return
	}
	var terms []Base
	for j := 0; j < q; j++ {
		weight := c*float64(q-j) - float64(j)
		terms = append(terms, scale(x(q-j).Mul(f.at(zAddr, j)), weight))
	}
	f.set(zAddr, q, addAll(terms...).Div(Float64(float64(q))).Div(x(0)))
}
