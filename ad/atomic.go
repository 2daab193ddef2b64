package ad

import "sync"

// AtomicFunction (component C8) lets a sub-computation be recorded
// once, outside the tape, and then called as a single opaque
// operator on any number of tapes — CppAD's atomic functions and
// checkpoint functions both reduce to this. gotape asks for a
// Jacobian rather than the full forward/reverse kernel pair CppAD's
// atomic_three interface requires: first and zero order are all the
// playback engine needs (Reverse is always order 1, per
// ad/reverse.go), and a dense Jacobian is the simplest contract an
// implementer can satisfy correctly.
type AtomicFunction interface {
	Name() string
	Forward(x []Base) ([]Base, error)
	Jacobian(x []Base) ([][]Base, error) // Jacobian[i][j] = dy_i/dx_j
}

var (
	atomicRegistryOnce sync.Once
	atomicMu           sync.Mutex
	atomicRegistry     map[string]AtomicFunction
	atomicOrder        []string
)

func initAtomicRegistry() {
	atomicRegistry = make(map[string]AtomicFunction)
}

// RegisterAtomic makes an AtomicFunction callable from recordings by
// its Name(). Registration is process-wide and should happen during
// init, before any goroutine starts recording with it, mirroring
// CppAD's single global atomic table.
func RegisterAtomic(af AtomicFunction) {
	atomicRegistryOnce.Do(initAtomicRegistry)
	atomicMu.Lock()
	defer atomicMu.Unlock()
	if _, exists := atomicRegistry[af.Name()]; !exists {
		atomicOrder = append(atomicOrder, af.Name())
	}
	atomicRegistry[af.Name()] = af
}

func lookupAtomic(name string) (AtomicFunction, bool) {
	atomicRegistryOnce.Do(initAtomicRegistry)
	atomicMu.Lock()
	defer atomicMu.Unlock()
	af, ok := atomicRegistry[name]
	return af, ok
}

func atomicNameIndex(name string) uint32 {
	atomicMu.Lock()
	defer atomicMu.Unlock()
	for i, n := range atomicOrder {
		if n == name {
			return uint32(i)
		}
	}
	atomicOrder = append(atomicOrder, name)
	return uint32(len(atomicOrder) - 1)
}

// atomicCall is the side-table entry afunOp's (atomicIndex, callID)
// arguments point to: the call's actual argument list, which opTable's
// fixed-arity opcodes cannot carry directly.
type atomicCall struct {
	name      string
	inAddr    []uint32
	inIsVar   []bool
	resAddr   []uint32
	jacobian  [][]Base // cached at the most recent Forward(0, ...)
}

// CallAtomic invokes the named AtomicFunction on x, recording the call
// on the currently active tape (or folding it to a constant if none
// of x is a variable and no recording is active).
func CallAtomic(name string, x []*AD) ([]*AD, error) {
	af, ok := lookupAtomic(name)
	if !ok {
		return nil, knownf("CallAtomic", "no atomic function registered as %q", name)
	}
	xb := make([]Base, len(x))
	for i, v := range x {
		xb[i] = v.value
	}
	y, err := af.Forward(xb)
	if err != nil {
		return nil, err
	}
	t := activeTape()
	for _, v := range x {
		if v.tape != nil {
			t = v.tape
			break
		}
	}
	if t == nil {
		result := make([]*AD, len(y))
		for i, v := range y {
			result[i] = &AD{value: v}
		}
		return result, nil
	}

	call := atomicCall{name: name, inAddr: make([]uint32, len(x)), inIsVar: make([]bool, len(x))}
	for i, v := range x {
		if v.isVar {
			call.inAddr[i], call.inIsVar[i] = v.addr, true
		} else {
			call.inAddr[i] = paramAddrOf(t, v)
		}
	}
	callID := uint32(len(t.atomicCalls))
	t.put_opArgs(afunOp, atomicNameIndex(name), callID, uint32(len(x)), uint32(len(y)))
	call.resAddr = make([]uint32, len(y))
	for i := range y {
		call.resAddr[i] = t.put_opArgs(funrvOp, uint32(i))
	}
	t.atomicCalls = append(t.atomicCalls, call)

	result := make([]*AD, len(y))
	for i, v := range y {
		result[i] = &AD{tape: t, isVar: true, addr: call.resAddr[i], value: v}
	}
	return result, nil
}

// Elemental invokes the named AtomicFunction and returns its single
// result, panicking (via assertKnown, the same "no natural error
// return" path a playback kernel uses) on an unregistered name or a
// result count other than one. It is the entry point cmd/gotapegen
// targets for a rewritten call to an elemental or vector-elemental
// function (§4.10, C8): the generated code splices it in as a single
// expression, so there is no room for an extra error return the way
// CallAtomic has one.
func Elemental(name string, args ...Base) Base {
	x := make([]*AD, len(args))
	for i, a := range args {
		x[i] = toAD(a)
	}
	y, err := CallAtomic(name, x)
	assertKnown(err == nil, "Elemental", "%v", err)
	assertKnown(len(y) == 1, "Elemental", "%q returned %d results, want 1", name, len(y))
	return y[0]
}

// forwardAtomic evaluates one atomic call in place during the
// forward sweep: order 0 calls Forward directly; order 1 applies the
// cached Jacobian to the input tangents.
func (f *Function) forwardAtomic(callID uint32, q int) error {
	call := &f.tape.atomicCalls[callID]
	af, ok := lookupAtomic(call.name)
	if !ok {
		return knownf("forwardAtomic", "atomic function %q is no longer registered", call.name)
	}
	x0 := make([]Base, len(call.inAddr))
	for i, addr := range call.inAddr {
		x0[i] = f.operand(call.inIsVar[i], addr, 0)
	}
	if q == 0 {
		y0, err := af.Forward(x0)
		if err != nil {
			return err
		}
		jac, err := af.Jacobian(x0)
		if err != nil {
			return err
		}
		call.jacobian = jac
		for i, addr := range call.resAddr {
			f.set(addr, 0, y0[i])
		}
		return nil
	}
	dx := make([]Base, len(call.inAddr))
	for i, addr := range call.inAddr {
		dx[i] = f.operand(call.inIsVar[i], addr, q)
	}
	for i, addr := range call.resAddr {
		var terms []Base
		for j := range dx {
			terms = append(terms, call.jacobian[i][j].Mul(dx[j]))
		}
		f.set(addr, q, addAll(terms...))
	}
	return nil
}

// reverseAtomic distributes one call's output adjoints back onto its
// inputs via the transpose of the cached Jacobian.
func (f *Function) reverseAtomic(callID uint32, partial []Base) {
	call := &f.tape.atomicCalls[callID]
	if call.jacobian == nil {
		return
	}
	for j, addr := range call.inAddr {
		if !call.inIsVar[j] {
			continue
		}
		var terms []Base
		for i, resAddr := range call.resAddr {
			terms = append(terms, call.jacobian[i][j].Mul(partial[resAddr]))
		}
		partial[addr] = partial[addr].Add(addAll(terms...))
	}
}

// Checkpoint wraps a *Function so it can be called, as a unit, from a
// different recording: a cheap way to bound tape size for a
// sub-computation that is reused many times, the same role CppAD's
// checkpoint<Base> plays for a sub-graph.
type Checkpoint struct {
	name string
	fn   *Function
}

// NewCheckpoint registers inner as an AtomicFunction named name,
// evaluating and differentiating it via its own Forward/Reverse.
func NewCheckpoint(name string, inner *Function) *Checkpoint {
	c := &Checkpoint{name: name, fn: inner}
	RegisterAtomic(c)
	return c
}

func (c *Checkpoint) Name() string { return c.name }

func (c *Checkpoint) Forward(x []Base) ([]Base, error) {
	return c.fn.Forward(0, x)
}

func (c *Checkpoint) Jacobian(x []Base) ([][]Base, error) {
	if _, err := c.fn.Forward(0, x); err != nil {
		return nil, err
	}
	n, m := c.fn.Size()
	jac := make([][]Base, m)
	for i := 0; i < m; i++ {
		w := make([]Base, m)
		for k := range w {
			w[k] = Float64(0)
		}
		w[i] = Float64(1)
		row, err := c.fn.Reverse(1, w)
		if err != nil {
			return nil, err
		}
		jac[i] = row[:n]
	}
	c.fn.curOrder = 0
	return jac, nil
}
