package ad

import (
	"math/bits"
	"sort"
)

// Sparsity patterns (§4.8). gotape offers the same two
// interchangeable backends CppAD does: a packed bitset for dense-ish
// patterns (CppAD's sparse_pack) and a sorted-list-per-row backend for
// sparse ones (CppAD's sparse_list). Both satisfy sparsityPattern, so
// Function's sparsity methods are backend-agnostic.
type sparsityPattern interface {
	nRow() int
	nCol() int
	set(row, col int)
	has(row, col int) bool
	unionInto(row int, cols []int)
	row(r int) []int
}

// bitSparsity packs each row into []uint64 words, exactly CppAD's
// sparse_pack representation; no pack example repo imports a bitset
// library, and packed-word-plus-popcount is the idiomatic hand-rolled
// shape for this, so it is the one documented stdlib exception for
// this component (math/bits for popcount, no third-party bitset).
type bitSparsity struct {
	rows, cols int
	words      int
	bitsRow    [][]uint64
}

func newBitSparsity(rows, cols int) *bitSparsity {
	words := (cols + 63) / 64
	s := &bitSparsity{rows: rows, cols: cols, words: words, bitsRow: make([][]uint64, rows)}
	for i := range s.bitsRow {
		s.bitsRow[i] = make([]uint64, words)
	}
	return s
}

func (s *bitSparsity) nRow() int { return s.rows }
func (s *bitSparsity) nCol() int { return s.cols }

func (s *bitSparsity) set(row, col int) {
	s.bitsRow[row][col/64] |= 1 << uint(col%64)
}

func (s *bitSparsity) has(row, col int) bool {
	return s.bitsRow[row][col/64]&(1<<uint(col%64)) != 0
}

func (s *bitSparsity) unionInto(row int, cols []int) {
	for _, c := range cols {
		s.set(row, c)
	}
}

func (s *bitSparsity) row(r int) []int {
	var out []int
	for w, word := range s.bitsRow[r] {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, w*64+b)
			word &= word - 1
		}
	}
	return out
}

// listSparsity keeps a sorted []int per row, CppAD's sparse_list.
type listSparsity struct {
	rows, cols int
	list       [][]int
}

func newListSparsity(rows, cols int) *listSparsity {
	return &listSparsity{rows: rows, cols: cols, list: make([][]int, rows)}
}

func (s *listSparsity) nRow() int { return s.rows }
func (s *listSparsity) nCol() int { return s.cols }

func (s *listSparsity) set(row, col int) {
	r := s.list[row]
	i := sort.SearchInts(r, col)
	if i < len(r) && r[i] == col {
		return
	}
	r = append(r, 0)
	copy(r[i+1:], r[i:])
	r[i] = col
	s.list[row] = r
}

func (s *listSparsity) has(row, col int) bool {
	r := s.list[row]
	i := sort.SearchInts(r, col)
	return i < len(r) && r[i] == col
}

func (s *listSparsity) unionInto(row int, cols []int) {
	for _, c := range cols {
		s.set(row, c)
	}
}

func (s *listSparsity) row(r int) []int {
	return append([]int(nil), s.list[r]...)
}

// nonlinearOpcode reports whether op combines its operands' values in
// a way that can make a Hessian entry nonzero (as opposed to a purely
// linear combination, which never does): used by ForHesSparsity's
// conservative pairing rule.
func nonlinearOpcode(op opcode) bool {
	switch op {
	case addvvOp, addpvOp, subvvOp, subpvOp, subvpOp, negOp:
		return false
	default:
		return true
	}
}

// varArgPositions reports which argument-stream positions of op hold
// tape-variable addresses (as opposed to parameter-pool addresses,
// which never carry independent-variable dependency and so never
// propagate Jacobian sparsity): the "vv"/"pv"/"vp" suffix on each
// arithmetic/comparison opcode, and the single operand of every unary
// opcode.
func varArgPositions(op opcode) []int {
	switch op {
	case addvvOp, subvvOp, mulvvOp, divvvOp, powvvOp, azmulvvOp,
		eqvvOp, nevvOp, ltvvOp, levvOp:
		return []int{0, 1}
	case addpvOp, subpvOp, mulpvOp, divpvOp, powpvOp, azmulpvOp,
		eqpvOp, nepvOp, ltpvOp, lepvOp:
		return []int{1}
	case subvpOp, divvpOp, powvpOp, ltvpOp, levpOp:
		return []int{0}
	case negOp, absOp, signOp, sqrtOp, expOp, expm1Op, logOp, log1pOp, log10Op,
		sinOp, cosOp, sinhOp, coshOp, tanOp, tanhOp,
		asinOp, acosOp, atanOp, asinhOp, acoshOp, atanhOp, erfOp, erfcOp:
		return []int{0}
	default:
		return nil
	}
}

// ForJacSparsity propagates a Jacobian sparsity pattern forward
// through the tape: row addr holds the set of independent-variable
// columns that variable addr's value can depend on. dependency, when
// true, additionally routes comparison and cexp operands' patterns
// into their (otherwise derivative-free) results, so a later
// dependency-only consumer (e.g. an optimizer deciding what to keep)
// sees the control-flow link even though the boolean/branch itself
// carries no derivative.
func (f *Function) ForJacSparsity(dependency bool, useBits bool) sparsityPattern {
	t := f.tape
	var s sparsityPattern
	if useBits {
		s = newBitSparsity(int(t.nVar), f.n)
	} else {
		s = newListSparsity(int(t.nVar), f.n)
	}
	for j, addr := range t.indAddr {
		s.set(int(addr), j)
	}

	argIdx, varIdx := 0, uint32(0)
	for _, op := range t.ops {
		args := t.args[argIdx : argIdx+nArg(op)]
		argIdx += nArg(op)
		base := varIdx
		varIdx += uint32(nRes(op))
		z := int(primaryAddr(op, base))

		switch op {
		case beginOp, endOp, invOp, parOp,
			pripOp, privOp, funapOp, funavOp, funrpOp, funrvOp:
			// no propagated dependency (inv's row was seeded above).
		case eqvvOp, nevvOp, ltvvOp, levvOp:
			if dependency {
				s.unionInto(z, s.row(int(args[0])))
				s.unionInto(z, s.row(int(args[1])))
			}
		case eqpvOp, nepvOp, ltpvOp, lepvOp:
			if dependency {
				s.unionInto(z, s.row(int(args[1])))
			}
		case ltvpOp, levpOp:
			if dependency {
				s.unionInto(z, s.row(int(args[0])))
			}
		case cexpOp:
			flag := args[1]
			if flag&4 != 0 {
				s.unionInto(z, s.row(int(args[4])))
			}
			if flag&8 != 0 {
				s.unionInto(z, s.row(int(args[5])))
			}
			if dependency {
				if flag&1 != 0 {
					s.unionInto(z, s.row(int(args[2])))
				}
				if flag&2 != 0 {
					s.unionInto(z, s.row(int(args[3])))
				}
			}
		case ldpOp, ldvOp, stppOp, stpvOp, stvpOp, stvvOp:
			// VecAD carries no cross-element sparsity in gotape's model.
		case afunOp:
			call := t.atomicCalls[args[1]]
			for j, in := range call.inAddr {
				if call.inIsVar[j] {
					s.unionInto(z, s.row(int(in)))
				}
			}
			for _, res := range call.resAddr {
				s.unionInto(int(res), s.row(z))
			}
		default:
			for _, pos := range varArgPositions(op) {
				s.unionInto(z, s.row(int(args[pos])))
			}
		}
	}
	return s
}

// RevJacSparsity returns, for each dependent variable, the set of
// independent columns it depends on: the same information
// ForJacSparsity already computed per tape address, simply selected
// at the dependent rows. CppAD computes this with its own backward
// sweep for a different complexity trade-off; gotape reuses the
// forward pattern instead, since it is already fully populated by the
// time any caller needs a dependent-indexed view.
func (f *Function) RevJacSparsity(dependency bool, useBits bool) sparsityPattern {
	full := f.ForJacSparsity(dependency, useBits)
	var out sparsityPattern
	if useBits {
		out = newBitSparsity(f.m, f.n)
	} else {
		out = newListSparsity(f.m, f.n)
	}
	for i, addr := range f.tape.depAddr {
		if f.tape.depIsVar[i] {
			out.unionInto(i, full.row(int(addr)))
		}
	}
	return out
}

// ForHesSparsity returns a conservative (never-missing, possibly
// over-including) Hessian sparsity pattern for dependent i: pair (j,k)
// is marked whenever some nonlinear opcode combines a value depending
// on independent j with one depending on independent k. This is the
// "easy" whole-function Hessian sparsity CppAD documents computing via
// ForJac run once then paired through every nonlinear operator, kept
// intentionally simple rather than CppAD's tighter two-pass
// forward-then-reverse Hessian sparsity.
func (f *Function) ForHesSparsity(dep int, useBits bool) sparsityPattern {
	t := f.tape
	forJac := f.ForJacSparsity(true, useBits)
	var hes sparsityPattern
	if useBits {
		hes = newBitSparsity(f.n, f.n)
	} else {
		hes = newListSparsity(f.n, f.n)
	}

	argIdx := 0
	for _, op := range t.ops {
		args := t.args[argIdx : argIdx+nArg(op)]
		argIdx += nArg(op)

		if !nonlinearOpcode(op) {
			continue
		}
		var cols []int
		if op == afunOp {
			call := t.atomicCalls[args[1]]
			for j, in := range call.inAddr {
				if call.inIsVar[j] {
					cols = append(cols, forJac.row(int(in))...)
				}
			}
		}
		for _, pos := range varArgPositions(op) {
			cols = append(cols, forJac.row(int(args[pos]))...)
		}
		for _, j := range cols {
			hes.unionInto(j, cols)
		}
	}
	return hes
}

// RevHesSparsity mirrors RevJacSparsity's relationship to
// ForJacSparsity: for the single dependent dep (CppAD's Hessian
// sparsity is always requested per weighted combination of
// dependents, and a single dependent is the common, sufficient case),
// it is exactly ForHesSparsity — gotape computes the whole pattern in
// one forward-leaning pass rather than a distinct reverse sweep.
func (f *Function) RevHesSparsity(dep int, useBits bool) sparsityPattern {
	return f.ForHesSparsity(dep, useBits)
}
