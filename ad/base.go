package ad

import (
	"math"
	"strconv"
)

// Base is the scalar numeric type the tape is generic over. Go has no
// operator overloading, so the overloaded arithmetic of CppAD's
// Base template parameter is rendered as a method set: any type that
// implements Base can stand as the scalar underneath an AD value,
// including AD itself (which implements Base), giving higher-order
// AD by composition without generics instantiation.
type Base interface {
	Add(Base) Base
	Sub(Base) Base
	Mul(Base) Base
	Div(Base) Base
	Neg() Base
	Abs() Base
	Sign() Base
	Sqrt() Base
	Pow(Base) Base
	Atan2(Base) Base
	Exp() Base
	Expm1() Base
	Log() Base
	Log1p() Base
	Log10() Base
	Sin() Base
	Cos() Base
	Tan() Base
	Sinh() Base
	Cosh() Base
	Tanh() Base
	Asin() Base
	Acos() Base
	Atan() Base
	Asinh() Base
	Acosh() Base
	Atanh() Base
	Erf() Base
	Erfc() Base

	Eq(Base) bool
	Lt(Base) bool
	Le(Base) bool

	IsInteger() bool
	IsIdenticalZero() bool
	IsIdenticalOne() bool
	LessThanZero() bool

	Float64() float64
	String() string
}

// Float64 is the Base adapter for the built-in float64 type, the
// leaf scalar of almost every recording. It has value semantics like
// float64 itself.
type Float64 float64

func f64(b Base) float64 { return b.Float64() }

func (x Float64) Add(y Base) Base { return Float64(float64(x) + f64(y)) }
func (x Float64) Sub(y Base) Base { return Float64(float64(x) - f64(y)) }
func (x Float64) Mul(y Base) Base { return Float64(float64(x) * f64(y)) }
func (x Float64) Div(y Base) Base { return Float64(float64(x) / f64(y)) }
func (x Float64) Neg() Base       { return Float64(-float64(x)) }
func (x Float64) Abs() Base       { return Float64(math.Abs(float64(x))) }

func (x Float64) Sign() Base {
	switch {
	case float64(x) > 0:
		return Float64(1)
	case float64(x) < 0:
		return Float64(-1)
	default:
		return Float64(0)
	}
}

func (x Float64) Sqrt() Base      { return Float64(math.Sqrt(float64(x))) }
func (x Float64) Pow(y Base) Base { return Float64(math.Pow(float64(x), f64(y))) }
func (x Float64) Atan2(y Base) Base {
	return Float64(math.Atan2(float64(x), f64(y)))
}
func (x Float64) Exp() Base   { return Float64(math.Exp(float64(x))) }
func (x Float64) Expm1() Base { return Float64(math.Expm1(float64(x))) }
func (x Float64) Log() Base   { return Float64(math.Log(float64(x))) }
func (x Float64) Log1p() Base { return Float64(math.Log1p(float64(x))) }
func (x Float64) Log10() Base { return Float64(math.Log10(float64(x))) }
func (x Float64) Sin() Base   { return Float64(math.Sin(float64(x))) }
func (x Float64) Cos() Base   { return Float64(math.Cos(float64(x))) }
func (x Float64) Tan() Base   { return Float64(math.Tan(float64(x))) }
func (x Float64) Sinh() Base  { return Float64(math.Sinh(float64(x))) }
func (x Float64) Cosh() Base  { return Float64(math.Cosh(float64(x))) }
func (x Float64) Tanh() Base  { return Float64(math.Tanh(float64(x))) }
func (x Float64) Asin() Base  { return Float64(math.Asin(float64(x))) }
func (x Float64) Acos() Base  { return Float64(math.Acos(float64(x))) }
func (x Float64) Atan() Base  { return Float64(math.Atan(float64(x))) }
func (x Float64) Asinh() Base { return Float64(math.Asinh(float64(x))) }
func (x Float64) Acosh() Base { return Float64(math.Acosh(float64(x))) }
func (x Float64) Atanh() Base { return Float64(math.Atanh(float64(x))) }
func (x Float64) Erf() Base   { return Float64(math.Erf(float64(x))) }
func (x Float64) Erfc() Base  { return Float64(math.Erfc(float64(x))) }

func (x Float64) Eq(y Base) bool { return float64(x) == f64(y) }
func (x Float64) Lt(y Base) bool { return float64(x) < f64(y) }
func (x Float64) Le(y Base) bool { return float64(x) <= f64(y) }

func (x Float64) IsInteger() bool        { return float64(x) == math.Trunc(float64(x)) }
func (x Float64) IsIdenticalZero() bool  { return float64(x) == 0 }
func (x Float64) IsIdenticalOne() bool   { return float64(x) == 1 }
func (x Float64) LessThanZero() bool     { return float64(x) < 0 }
func (x Float64) Float64() float64       { return float64(x) }
func (x Float64) String() string { return strconv.FormatFloat(float64(x), 'g', -1, 64) }
