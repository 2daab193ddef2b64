package ad

import "math"

// Forward kernels for the inverse trig/hyperbolic family. Each of
// these functions satisfies z' = sign * x' / b for an auxiliary b
// that is itself a simple function of x (a plain quadratic for atan
// and atanh, its square root for the rest); the auxiliary occupies
// the opcode's aux slot exactly as sin/cos share one, and the same
// division-style convolution used by forwardDiv drives z once b is
// known to the needed order.
const (
	invAsin = iota
	invAcos
	invAtan
	invAsinh
	invAcosh
	invAtanh
)

type invDesc struct {
	z0        func(x0 float64) float64
	uFn       func(x func(int) Base, k int) Base
	needsSqrt bool
	sign      float64
}

func squareConv(x func(int) Base, k int) Base {
	var terms []Base
	for j := 0; j <= k; j++ {
		terms = append(terms, x(j).Mul(x(k-j)))
	}
	return addAll(terms...)
}

func uOneMinusXX(x func(int) Base, k int) Base {
	if k == 0 {
		return Float64(1).Sub(squareConv(x, 0))
	}
	return squareConv(x, k).Neg()
}

func uOnePlusXX(x func(int) Base, k int) Base {
	if k == 0 {
		return Float64(1).Add(squareConv(x, 0))
	}
	return squareConv(x, k)
}

func uXXMinusOne(x func(int) Base, k int) Base {
	if k == 0 {
		return squareConv(x, 0).Sub(Float64(1))
	}
	return squareConv(x, k)
}

var invDescs = map[int]invDesc{
	invAsin:  {z0: math.Asin, uFn: uOneMinusXX, needsSqrt: true, sign: 1},
	invAcos:  {z0: math.Acos, uFn: uOneMinusXX, needsSqrt: true, sign: -1},
	invAtan:  {z0: math.Atan, uFn: uOnePlusXX, needsSqrt: false, sign: 1},
	invAsinh: {z0: math.Asinh, uFn: uOnePlusXX, needsSqrt: true, sign: 1},
	invAcosh: {z0: math.Acosh, uFn: uXXMinusOne, needsSqrt: true, sign: 1},
	invAtanh: {z0: math.Atanh, uFn: uOneMinusXX, needsSqrt: false, sign: 1},
}

func (f *Function) forwardInverse(base uint32, q int, x func(int) Base, kind int) {
	auxAddr, zAddr := base, base+1
	d := invDescs[kind]
	if q == 0 {
		f.set(zAddr, 0, Float64(d.z0(x(0).Float64())))
		u0 := d.uFn(x, 0)
		if d.needsSqrt {
			f.set(auxAddr, 0, u0.Sqrt())
		} else {
			f.set(auxAddr, 0, u0)
		}
		return
	}
	uq := d.uFn(x, q)
	if d.needsSqrt {
		var terms []Base
		for j := 1; j < q; j++ {
			terms = append(terms, f.at(auxAddr, j).Mul(f.at(auxAddr, q-j)))
		}
		acc := uq
		if len(terms) > 0 {
			acc = acc.Sub(addAll(terms...))
		}
		f.set(auxAddr, q, acc.Div(scale(f.at(auxAddr, 0), 2)))
	} else {
		f.set(auxAddr, q, uq)
	}

	var terms []Base
	for j := 1; j < q; j++ {
		terms = append(terms, scale(f.at(zAddr, j).Mul(f.at(auxAddr, q-j)), float64(j)))
	}
	acc := scale(x(q), d.sign*float64(q))
	if len(terms) > 0 {
		acc = acc.Sub(addAll(terms...))
	}
	f.set(zAddr, q, acc.Div(scale(f.at(auxAddr, 0), float64(q))))
}

// forwardErf fills the erf/erfc opcode's three slots: v = -x^2 (or
// the v/e layout makes erfc the negated variant), e = exp(v), and the
// primary result. erf' = (2/sqrt(pi)) exp(-x^2), the same ODE-product
// shape as exp with x replaced by -x^2 and scaled by the constant.
func (f *Function) forwardErf(base uint32, q int, x func(int) Base, complementary bool) {
	vAddr, eAddr, zAddr := base, base+1, base+2
	const twoOverSqrtPi = 1.1283791670955126

	if q == 0 {
		v0 := x(0).Mul(x(0)).Neg()
		f.set(vAddr, 0, v0)
		e0 := v0.Exp()
		f.set(eAddr, 0, e0)
		if complementary {
			f.set(zAddr, 0, x(0).Erfc())
		} else {
			f.set(zAddr, 0, x(0).Erf())
		}
		return
	}
	// v^(q) = -(x*x)^(q)
	f.set(vAddr, q, squareConv(x, q).Neg())
	// e = exp(v): standard ODE-product recurrence against v.
	v := func(k int) Base { return f.at(vAddr, k) }
	e := func(k int) Base { return f.at(eAddr, k) }
	var terms []Base
	for j := 1; j <= q; j++ {
		terms = append(terms, scale(v(j).Mul(e(q-j)), float64(j)))
	}
	f.set(eAddr, q, addAll(terms...).Div(Float64(float64(q))))
	// z' = (2/sqrt(pi)) x' e, again the ODE-product shape.
	var zt []Base
	for j := 1; j <= q; j++ {
		zt = append(zt, scale(x(j).Mul(e(q-j)), float64(j)))
	}
	zq := addAll(zt...).Div(Float64(float64(q))).Mul(Float64(twoOverSqrtPi))
	if complementary {
		zq = zq.Neg()
	}
	f.set(zAddr, q, zq)
}
