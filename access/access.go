package access

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/FlorianSauer/fragstore/cmn/debug"
)

// Holder identifies the caller of a parallel/exclusive acquire for
// re-entrancy purposes. There is no notion of a goroutine ID in Go, so the caller
// supplies one explicitly — typically via NewHolder, once per logical
// writer/reader scope.
type Holder uint64

var holderCounter atomic.Uint64

// NewHolder mints a fresh Holder identity.
func NewHolder() Holder {
	return Holder(holderCounter.Add(1))
}

type mode int

const (
	modeNone mode = iota
	modeParallel
	modeExclusive
)

// access is the lock object for one namespace value: multiple holders in
// modeParallel, a single (but re-entrant) holder in modeExclusive. Mirrors
// ImageSaverLib/Helpers/ControlledAccess/Access.py, rebuilt on a
// sync.Cond instead of the original's pair of OS locks plus a thread-id
// set, since Go conditions compose more directly with a deadline.
type access struct {
	mu      sync.Mutex
	cond    *sync.Cond
	mode    mode
	holders map[Holder]int // holder -> re-entrant depth (exclusive only)
	parCnt  int            // number of parallel holders (depth 1 each, no re-entrant stacking)
}

func newAccess() *access {
	a := &access{holders: make(map[Holder]int)}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// wait blocks on a.cond until pred() is true, blocking is false (checked
// once, immediately), or the deadline (if non-zero) passes. It returns
// ErrNonBlocking / ErrTimeout / nil accordingly. Caller holds a.mu.
func (a *access) wait(pred func() bool, blocking bool, deadline time.Time) error {
	if pred() {
		return nil
	}
	if !blocking {
		return ErrNonBlocking
	}
	if deadline.IsZero() {
		for !pred() {
			a.cond.Wait()
		}
		return nil
	}
	// sync.Cond has no deadline-aware Wait, so a watchdog goroutine
	// broadcasts once the deadline passes to unstick the waiter.
	timer := time.AfterFunc(time.Until(deadline), func() {
		a.mu.Lock()
		a.cond.Broadcast()
		a.mu.Unlock()
	})
	defer timer.Stop()
	for !pred() {
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		a.cond.Wait()
	}
	return nil
}

func (a *access) acquireParallel(h Holder, blocking bool, deadline time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.wait(func() bool {
		return a.mode != modeExclusive || a.holders[h] > 0
	}, blocking, deadline)
	if err != nil {
		return err
	}
	a.mode = modeParallel
	a.parCnt++
	return nil
}

func (a *access) releaseParallel() {
	a.mu.Lock()
	debug.Assert(a.mode == modeParallel && a.parCnt > 0, "access: releaseParallel without a matching acquire")
	a.parCnt--
	if a.parCnt <= 0 && a.mode == modeParallel {
		a.parCnt = 0
		a.mode = modeNone
		a.cond.Broadcast()
	}
	a.mu.Unlock()
}

func (a *access) acquireExclusive(h Holder, blocking bool, deadline time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == modeExclusive && a.holders[h] > 0 {
		a.holders[h]++
		return nil
	}
	err := a.wait(func() bool {
		return a.mode == modeNone
	}, blocking, deadline)
	if err != nil {
		return err
	}
	a.mode = modeExclusive
	a.holders[h] = 1
	return nil
}

func (a *access) releaseExclusive(h Holder) {
	a.mu.Lock()
	depth := a.holders[h]
	debug.Assert(a.mode == modeExclusive && depth > 0, "access: releaseExclusive without a matching acquire")
	if depth <= 1 {
		delete(a.holders, h)
		a.mode = modeNone
		a.cond.Broadcast()
	} else {
		a.holders[h] = depth - 1
	}
	a.mu.Unlock()
}
