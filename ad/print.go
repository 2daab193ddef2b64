package ad

import (
	"fmt"
	"os"
)

// PrintFor records a conditional print: during Forward(0, ...), if
// pos's value is >= 0, it writes before, then value, then after to
// the function's output (os.Stdout by default, see
// Function.SetOutput). pos is stored on the tape as a parameter, so
// when pos is a variable the test uses the value it had while
// recording, not its value at the Forward(0, ...) point. It is a
// debugging aid with no effect on the recorded derivatives, mirroring
// CppAD's PrintFor.
func PrintFor(pos Base, before string, value Base, after string) {
	p, v := toAD(pos), toAD(value)
	t := p.tape
	if t == nil {
		t = v.tape
	}
	if t == nil {
		if p.value.Float64() >= 0 {
			fmt.Print(before, v.value.String(), after)
		}
		return
	}
	beforeIdx := t.put_text(before)
	afterIdx := t.put_text(after)
	posAddr := paramAddrOf(t, p)
	if v.isVar {
		t.put_opArgs(privOp, posAddr, beforeIdx, v.addr, afterIdx)
	} else {
		t.put_opArgs(pripOp, posAddr, beforeIdx, paramAddrOf(t, v), afterIdx)
	}
}

func (f *Function) forwardPrint(op opcode, args []uint32) {
	pos := f.paramValue(args[0], 0).Float64()
	if pos < 0 {
		return
	}
	before := f.tape.text[args[1]]
	after := f.tape.text[args[3]]
	var val Base
	if op == privOp {
		val = f.at(args[2], 0)
	} else {
		val = f.paramValue(args[2], 0)
	}
	w := f.out
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprint(w, before, val.String(), after)
}
