package tpl

import (
	"fmt"
	"sync/atomic"
)

// Mutex is a non-reentrant priority-ceiling lock. While held, the current
// level is at least the mutex ceiling.
type Mutex struct {
	ceiling Level
	name    string
	held    atomic.Bool
	ctl     Controller
}

// NewMutex returns a Mutex that raises ctl to ceiling while held. name
// appears in the panic raised on re-entry.
func NewMutex(ctl Controller, ceiling Level, name string) *Mutex {
	return &Mutex{ceiling: ceiling, name: name, ctl: ctl}
}

// Guard is returned by Acquire; Release gives the lock back.
type Guard struct {
	m    *Mutex
	prev Level
}

// Acquire raises to the ceiling and takes the lock. It panics if the lock is
// already held.
func (m *Mutex) Acquire() Guard {
	g, ok := m.TryAcquire()
	if !ok {
		panic(fmt.Sprintf("tpl: re-entrant acquire of %s", m.name))
	}
	return g
}

// TryAcquire is Acquire without the panic: it reports false, leaving the
// level untouched, if the lock is already held.
func (m *Mutex) TryAcquire() (Guard, bool) {
	prev := m.ctl.Raise(m.ceiling)
	if !m.held.CompareAndSwap(false, true) {
		m.ctl.Restore(prev)
		return Guard{}, false
	}
	return Guard{m: m, prev: prev}, true
}

// Held reports whether the lock is currently taken.
func (m *Mutex) Held() bool { return m.held.Load() }

// Name returns the diagnostic name of the lock.
func (m *Mutex) Name() string { return m.name }

// Release drops the lock and restores the level captured by Acquire. Deferred
// work becomes runnable only after the lock is free.
func (g Guard) Release() {
	if g.m == nil {
		return
	}
	g.m.held.Store(false)
	g.m.ctl.Restore(g.prev)
}
