package ad

// recordCompareWitness re-evaluates a recorded comparison against the
// current order-0 coefficients and stores the answer at cmpIdx, so
// CompareChangeNumber can later report how many comparisons would
// have taken the other branch at this replay point.
func (f *Function) recordCompareWitness(op opcode, args []uint32, cmpIdx int) {
	var left, right float64
	var cop CompareOp
	switch op {
	case eqvvOp:
		cop, left, right = CopEq, f.at(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case eqpvOp:
		cop, left, right = CopEq, f.paramValue(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case nevvOp:
		cop, left, right = CopNe, f.at(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case nepvOp:
		cop, left, right = CopNe, f.paramValue(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case ltvvOp:
		cop, left, right = CopLt, f.at(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case ltpvOp:
		cop, left, right = CopLt, f.paramValue(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case ltvpOp:
		cop, left, right = CopLt, f.at(args[0], 0).Float64(), f.paramValue(args[1], 0).Float64()
	case levvOp:
		cop, left, right = CopLe, f.at(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case lepvOp:
		cop, left, right = CopLe, f.paramValue(args[0], 0).Float64(), f.at(args[1], 0).Float64()
	case levpOp:
		cop, left, right = CopLe, f.at(args[0], 0).Float64(), f.paramValue(args[1], 0).Float64()
	}
	f.growCompareReplay(cmpIdx)
	f.compareAtReplay[cmpIdx] = evalCop(cop, left, right)
}

func (f *Function) growCompareReplay(idx int) {
	for len(f.compareAtReplay) <= idx {
		f.compareAtReplay = append(f.compareAtReplay, false)
	}
}
