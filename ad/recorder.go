package ad

// The recorder (component C3). Tape is the operator stream + argument
// stream + parameter pool described in the package overview: a
// single-assignment DAG built by executing ordinary Go code with AD
// operands, one operator appended per arithmetic or math-library call.
//
// Tape identity matters: every AD value remembers the *Tape it was
// born on, and mixing values from two different tapes in one
// operation is a programming error (DifferentTapeError), the same
// restriction CppAD enforces per-thread.
type Tape struct {
	id uint64

	params *paramPool

	ops  []opcode
	args []uint32

	nVar      uint32 // running total of result slots (size_var)
	indAddr   []uint32
	indValues []Base // the x used while recording, replayed once by Dependent

	depAddr  []uint32
	depIsVar []bool

	text []string

	vecadLength  []uint32
	vecadInitial [][]Base
	vecadBase    []uint32 // per-VecAD storage offset; nothing fills or reads it

	compareCount int

	atomicCalls []atomicCall

	recording bool
	aborted   bool
}

var nextTapeID uint64

func newTapeID() uint64 {
	nextTapeID++
	return nextTapeID
}

// Independent starts a new recording, binds one independent variable
// per entry of x, and returns the corresponding AD values. Calling it
// while another recording is already active on this goroutine starts
// a nested, inner recording (the outer one resumes once the inner one
// ends with Dependent) rather than an error: this is how AD-of-AD
// (Hessian, in reverse.go) works, the same relationship CppAD's
// AD<Base> and AD<AD<Base>> independent/dependent pairs have to each
// other.
func Independent(x []Base) []*AD {
	parallelAD()
	t := &Tape{id: newTapeID(), params: newParamPool(), recording: true}
	t.put_op(beginOp)
	t.indValues = append([]Base(nil), x...)

	result := make([]*AD, len(x))
	for i, v := range x {
		addr := t.put_op(invOp)
		t.indAddr = append(t.indAddr, addr)
		result[i] = &AD{tape: t, isVar: true, addr: addr, value: v}
	}
	pushActiveTape(t)
	return result
}

// IndependentDynamic declares len(p) dynamic parameters on the
// currently-recording tape (which must already exist: call
// Independent first). Dynamic parameters behave like constants during
// Forward/Reverse but can be rebound between calls with
// Function.NewDynamic without re-recording, mirroring CppAD's
// independent dynamic parameter vector.
func IndependentDynamic(p []Base) []*AD {
	t := activeTape()
	if t == nil {
		panic(knownf("IndependentDynamic", "no recording is active on this goroutine"))
	}
	result := make([]*AD, len(p))
	for i, v := range p {
		addr := t.params.addDynamicLeaf(v)
		result[i] = &AD{tape: t, isVar: false, isDyn: true, addr: addr, value: v}
	}
	return result
}

// Dependent ends the recording and returns a *Function that can be
// played forward or reversed. y's entries may be variables, dynamic
// parameters, or plain constants: CppAD allows all three as dependent
// results, and the recorded function simply returns the constant in
// the cases that are not variables.
func Dependent(y []*AD) *Function {
	t := activeTape()
	if t == nil {
		panic(knownf("Dependent", "no recording is active on this goroutine"))
	}
	if t.aborted {
		panic(knownf("Dependent", "recording was aborted"))
	}
	t.depAddr = make([]uint32, len(y))
	t.depIsVar = make([]bool, len(y))
	for i, v := range y {
		if v.isVar && v.tape == t {
			t.depAddr[i] = v.addr
			t.depIsVar[i] = true
		} else {
			t.depAddr[i] = t.params.addConst(v.value)
			t.depIsVar[i] = false
		}
	}
	t.put_op(endOp)
	t.recording = false
	popActiveTape()

	f := newFunction(t)
	// Bootstrap: run the zero-order forward once at the recording
	// point so the comparison witnesses taken while recording are
	// available as a baseline for CompareChangeNumber, and so a
	// Function is immediately valid to Reverse against even before the
	// caller supplies its own Forward(0, ...).
	if _, err := f.Forward(0, t.indValues); err != nil {
		panic(err)
	}
	f.compareAtRecord = append([]bool(nil), f.compareAtReplay...)
	f.curOrder = 0
	f.compareAtReplay = nil
	return f
}

// AbortRecording discards the tape currently being recorded on this
// goroutine, freeing the caller to call Independent again. Used when
// an error partway through building the operation sequence means the
// in-progress tape can never be turned into a valid Function.
func AbortRecording() {
	t := activeTape()
	if t == nil {
		return
	}
	t.aborted = true
	t.recording = false
	popActiveTape()
}

// put_op appends op (with no arguments) to the operator stream and
// returns the address of its primary result (or, for nRes()==0
// operators, the next free address, which callers ignore).
func (t *Tape) put_op(op opcode) uint32 {
	t.ops = append(t.ops, op)
	addr := t.nVar + uint32(nRes(op))
	if nRes(op) > 0 {
		addr--
	}
	t.nVar += uint32(nRes(op))
	return addr
}

// put_arg appends one argument-stream entry for the most recently
// added operator.
func (t *Tape) put_arg(a uint32) {
	t.args = append(t.args, a)
}

// put_opArgs is the common case: record op together with all of its
// arguments in one call, returning the primary result address.
func (t *Tape) put_opArgs(op opcode, args ...uint32) uint32 {
	assertUnknown(len(args) == nArg(op), "put_opArgs", "opcode %d wants %d args, got %d", op, nArg(op), len(args))
	addr := t.put_op(op)
	for _, a := range args {
		t.put_arg(a)
	}
	return addr
}

func (t *Tape) put_par(v Base) uint32 {
	return t.params.addConst(v)
}

func (t *Tape) put_text(s string) uint32 {
	for i, existing := range t.text {
		if existing == s {
			return uint32(i)
		}
	}
	addr := uint32(len(t.text))
	t.text = append(t.text, s)
	return addr
}

// put_vecad reserves storage for a new VecAD of the given length and
// initial values, returning its index in the VecAD pool.
func (t *Tape) put_vecad(initial []Base) uint32 {
	idx := uint32(len(t.vecadLength))
	t.vecadLength = append(t.vecadLength, uint32(len(initial)))
	cp := make([]Base, len(initial))
	copy(cp, initial)
	t.vecadInitial = append(t.vecadInitial, cp)
	return idx
}

// nextCompareSlot allocates and returns the index a newly-recorded
// comparison operator should use when recording its compare-change
// witness in Function.CompareChangeNumber bookkeeping.
func (t *Tape) nextCompareSlot() int {
	slot := t.compareCount
	t.compareCount++
	return slot
}
