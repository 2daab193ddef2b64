package ad

// The operator catalogue (component C1). Every atomic step the tape
// can record is named here. Each opcode has a fixed number of entries
// it consumes from the argument stream (nArg) and produces on the
// variable (value) stream (nRes). Multi-result opcodes place their
// primary result at the address returned to the recorder and any
// auxiliary results at the immediately preceding addresses, exactly
// as CppAD lays out Sin/Cos/Tan/erf results: the recorder advances its
// running address counter by nRes for every operator, in stream
// order, so no per-operator result address needs to be stored
// alongside the opcode itself.
type opcode uint8

const (
	// Markers
	beginOp opcode = iota // phantom result at address 0
	endOp                 // end of tape, no result
	invOp                 // independent variable
	parOp                 // bind a tape address to a parameter

	// Arithmetic, variable/variable and variable/parameter forms.
	// Addition and multiplication are commutative: the recorder
	// canonicalises a parameter operand into the "pv" slot so no
	// "vp" form is ever recorded for them.
	addvvOp
	addpvOp
	subvvOp
	subpvOp
	subvpOp
	mulvvOp
	mulpvOp
	divvvOp
	divpvOp
	divvpOp
	powvvOp // decomposed at record time into log/mul/exp (see scalar.go)
	powpvOp
	powvpOp // fused: x^c for constant parameter c

	azmulvvOp // a*b, defined as 0 when a is identically zero
	azmulpvOp

	negOp
	absOp
	signOp
	sqrtOp
	expOp
	expm1Op
	logOp
	log1pOp
	log10Op

	// Transcendentals with one auxiliary result slot.
	sinOp   // [sin, cos]
	cosOp   // [cos, sin]
	sinhOp  // [sinh, cosh]
	coshOp  // [cosh, sinh]
	tanOp   // [tan, 1+tan^2]
	tanhOp  // [tanh, 1-tanh^2]
	asinOp  // [asin, sqrt(1-x^2)]
	acosOp  // [acos, sqrt(1-x^2)]
	atanOp  // [atan, 1+x^2]
	asinhOp // [asinh, sqrt(1+x^2)]
	acoshOp // [acosh, sqrt(x^2-1)]
	atanhOp // [atanh, 1-x^2]

	// erf/erfc carry two auxiliary slots: v = -x^2, e = exp(v).
	erfOp
	erfcOp

	// Comparisons: no result slot, but a witness bit is recorded
	// for compare_change_number.
	eqvvOp
	eqpvOp
	nevvOp
	nepvOp
	ltvvOp
	ltpvOp
	ltvpOp
	levvOp
	lepvOp
	levpOp

	// Conditional expression.
	cexpOp

	// VecAD load/store.
	ldpOp
	ldvOp
	stppOp
	stpvOp
	stvpOp
	stvvOp

	// Print.
	pripOp
	privOp

	// Atomic/checkpoint call boundary.
	afunOp
	funapOp
	funavOp
	funrpOp
	funrvOp

	numOp // not a real opcode, used to size tables
)

// opInfo describes the fixed shape of an opcode: how many entries it
// consumes from the argument stream and how many result slots it
// produces on the value stream.
type opInfo struct {
	nArg int
	nRes int
}

var opTable = [numOp]opInfo{
	beginOp: {0, 1},
	endOp:   {0, 0},
	invOp:   {0, 1},
	parOp:   {1, 1},

	addvvOp: {2, 1},
	addpvOp: {2, 1},
	subvvOp: {2, 1},
	subpvOp: {2, 1},
	subvpOp: {2, 1},
	mulvvOp: {2, 1},
	mulpvOp: {2, 1},
	divvvOp: {2, 1},
	divpvOp: {2, 1},
	divvpOp: {2, 1},
	powvvOp: {2, 1},
	powpvOp: {2, 1},
	powvpOp: {2, 1},

	azmulvvOp: {2, 1},
	azmulpvOp: {2, 1},

	negOp:   {1, 1},
	absOp:   {1, 1},
	signOp:  {1, 1},
	sqrtOp:  {1, 1},
	expOp:   {1, 1},
	expm1Op: {1, 1},
	logOp:   {1, 1},
	log1pOp: {1, 1},
	log10Op: {1, 1},

	sinOp:   {1, 2},
	cosOp:   {1, 2},
	sinhOp:  {1, 2},
	coshOp:  {1, 2},
	tanOp:   {1, 2},
	tanhOp:  {1, 2},
	asinOp:  {1, 2},
	acosOp:  {1, 2},
	atanOp:  {1, 2},
	asinhOp: {1, 2},
	acoshOp: {1, 2},
	atanhOp: {1, 2},

	erfOp:  {1, 3},
	erfcOp: {1, 3},

	eqvvOp: {2, 0},
	eqpvOp: {2, 0},
	nevvOp: {2, 0},
	nepvOp: {2, 0},
	ltvvOp: {2, 0},
	ltpvOp: {2, 0},
	ltvpOp: {2, 0},
	levvOp: {2, 0},
	lepvOp: {2, 0},
	levpOp: {2, 0},

	cexpOp: {6, 1},

	ldpOp:  {2, 1},
	ldvOp:  {2, 1},
	stppOp: {3, 0},
	stpvOp: {3, 0},
	stvpOp: {3, 0},
	stvvOp: {3, 0},

	pripOp: {4, 0},
	privOp: {4, 0},

	afunOp:  {4, 0},
	funapOp: {1, 0},
	funavOp: {1, 0},
	funrpOp: {1, 0},
	funrvOp: {1, 1},
}

func nArg(op opcode) int { return opTable[op].nArg }
func nRes(op opcode) int { return opTable[op].nRes }

// isComparison reports whether op is one of the comparison opcodes,
// which carry a compare-change witness instead of a result slot.
func isComparison(op opcode) bool {
	switch op {
	case eqvvOp, eqpvOp, nevvOp, nepvOp,
		ltvvOp, ltpvOp, ltvpOp, levvOp, lepvOp, levpOp:
		return true
	}
	return false
}
