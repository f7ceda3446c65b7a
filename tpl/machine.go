package tpl

import (
	"fmt"
	"sort"
)

type pending struct {
	level Level
	seq   uint64
	fn    func()
}

// Machine is a Controller that simulates interrupt delivery for a single
// logical thread. Work signalled at a level above the current one runs
// immediately; anything else is queued and dispatched, highest level first,
// as soon as Restore drops the level below it.
type Machine struct {
	current Level
	queue   []pending
	seq     uint64

	dispatched uint64
}

// NewMachine returns a Machine running at Application level.
func NewMachine() *Machine {
	return &Machine{current: Application}
}

// Level returns the current priority level.
func (m *Machine) Level() Level { return m.current }

// Pending returns the number of queued callbacks.
func (m *Machine) Pending() int { return len(m.queue) }

// Dispatched returns the number of callbacks run so far.
func (m *Machine) Dispatched() uint64 { return m.dispatched }

// Raise implements Controller. Raising to a level at or below the current one
// leaves the level unchanged.
func (m *Machine) Raise(l Level) Level {
	prev := m.current
	if l > m.current {
		m.current = l
	}
	return prev
}

// Restore implements Controller. Restoring to a level above the current one
// is a caller bug and panics.
func (m *Machine) Restore(l Level) {
	if l > m.current {
		panic(fmt.Sprintf("tpl: restore to %s above current %s", l, m.current))
	}
	m.current = l
	m.dispatch()
}

// Signal delivers fn at level l. It preempts immediately when l is above the
// current level; otherwise fn waits until the level drops below l.
func (m *Machine) Signal(l Level, fn func()) {
	m.seq++
	m.queue = append(m.queue, pending{level: l, seq: m.seq, fn: fn})
	// Keep highest level first, FIFO within a level.
	sort.SliceStable(m.queue, func(i, j int) bool {
		return m.queue[i].level > m.queue[j].level
	})
	m.dispatch()
}

func (m *Machine) dispatch() {
	for len(m.queue) > 0 && m.queue[0].level > m.current {
		p := m.queue[0]
		m.queue = m.queue[1:]

		prev := m.current
		m.current = p.level
		m.dispatched++
		p.fn()
		m.current = prev
	}
}
