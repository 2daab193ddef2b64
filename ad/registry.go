package ad

import (
	"sync"

	"github.com/modern-go/gls"
)

// The active-tape registry (component C6). Recording is global state:
// every AD operator method needs to find "the tape currently being
// recorded" without a receiver to hang it off. CppAD keeps this as a
// thread_alloc-indexed global; gotape keeps one *Tape per goroutine,
// exactly as the original project's ad/gls.go meant to (it called an
// undefined goid() — here goroutine identity comes from
// github.com/modern-go/gls, which is also why that dependency is in
// go.mod).
//
// Single-threaded programs never need any of this: mtSafe defaults to
// false, and the registry collapses to a single stack guarded by
// nothing, just like CppAD's sequential build.
//
// The active tape is a STACK, not a single slot: CppAD's AD<Base>,
// AD<AD<Base>>, AD<AD<AD<Base>>>... are each a distinct recording
// type with their own independent/dependent pair, so nesting a second
// Independent inside a first is ordinary nested recording, not an
// error — it's exactly how Hessian (reverse.go) gets second
// derivatives, by recording an inner Function while an outer one is
// itself being recorded. activeTape always means "the innermost tape
// currently being built".
var (
	mtSafe    bool
	soleStack []*Tape

	mtMu    sync.RWMutex
	mtStore = map[int64][]*Tape{}
)

// MTSafeOn switches the registry from a single global tape to a
// per-goroutine map keyed by gls.GoID(). Call it once, before spawning
// goroutines that each record their own tape, mirroring CppAD's
// parallel_ad<Base>() priming step (cppad/local/parallel_ad.hpp):
// both exist because activating a thread-safe mode after a tape is
// already in flight is a known source of corruption, so callers
// should do it first.
func MTSafeOn() {
	mtMu.Lock()
	defer mtMu.Unlock()
	mtSafe = true
}

func activeTape() *Tape {
	if !mtSafe {
		if len(soleStack) == 0 {
			return nil
		}
		return soleStack[len(soleStack)-1]
	}
	id := gls.GoID()
	mtMu.RLock()
	defer mtMu.RUnlock()
	s := mtStore[id]
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// pushActiveTape makes t the innermost active recording, above
// whatever was active before it (nil, for a top-level recording).
func pushActiveTape(t *Tape) {
	if !mtSafe {
		soleStack = append(soleStack, t)
		return
	}
	id := gls.GoID()
	mtMu.Lock()
	defer mtMu.Unlock()
	mtStore[id] = append(mtStore[id], t)
}

// popActiveTape ends the innermost active recording, uncovering
// whatever tape (if any) was active before it.
func popActiveTape() {
	if !mtSafe {
		if len(soleStack) > 0 {
			soleStack = soleStack[:len(soleStack)-1]
		}
		return
	}
	id := gls.GoID()
	mtMu.Lock()
	defer mtMu.Unlock()
	s := mtStore[id]
	if len(s) > 0 {
		mtStore[id] = s[:len(s)-1]
	}
}

// parallelAD mirrors CppAD's parallel_ad<Base>(): a no-op call whose
// only purpose is to force one-time package-level initialization
// (e.g. the atomic function registry) before multiple goroutines
// start recording concurrently, so the lazy-init path never races.
func parallelAD() {
	atomicRegistryOnce.Do(initAtomicRegistry)
}
