package tpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutex_RaisesAndRestores(t *testing.T) {
	m := NewMachine()
	mu := NewMutex(m, Notify, "gcd")

	g := mu.Acquire()
	require.Equal(t, Notify, m.Level())
	require.True(t, mu.Held())

	g.Release()
	require.Equal(t, Application, m.Level())
	require.False(t, mu.Held())
}

func TestMutex_ReentryPanics(t *testing.T) {
	m := NewMachine()
	mu := NewMutex(m, Notify, "gcd")

	g := mu.Acquire()
	defer g.Release()

	require.PanicsWithValue(t, "tpl: re-entrant acquire of gcd", func() {
		mu.Acquire()
	})
	// Failed acquire restored the level it raised.
	require.Equal(t, Notify, m.Level())
}

func TestMutex_TryAcquire(t *testing.T) {
	m := NewMachine()
	mu := NewMutex(m, Callback, "heap")

	g, ok := mu.TryAcquire()
	require.True(t, ok)

	_, ok = mu.TryAcquire()
	require.False(t, ok)

	g.Release()
	g2, ok := mu.TryAcquire()
	require.True(t, ok)
	g2.Release()
}

func TestMutex_DefersCallbacksUntilRelease(t *testing.T) {
	m := NewMachine()
	mu := NewMutex(m, Notify, "gcd")

	var order []string
	g := mu.Acquire()
	m.Signal(Callback, func() { order = append(order, "callback") })
	require.Empty(t, order)
	require.Equal(t, 1, m.Pending())

	order = append(order, "release")
	g.Release()

	require.Equal(t, []string{"release", "callback"}, order)
	require.Equal(t, 0, m.Pending())
}

func TestMutex_HigherLevelPreempts(t *testing.T) {
	m := NewMachine()
	mu := NewMutex(m, Callback, "heap")

	ran := false
	g := mu.Acquire()
	m.Signal(HighLevel, func() {
		ran = true
		assert.Equal(t, HighLevel, m.Level())
	})
	require.True(t, ran)
	g.Release()
}

// A callback that preempts the holder and touches the same lock is the
// re-entry the lock exists to catch.
func TestMutex_PreemptingCallbackDetected(t *testing.T) {
	m := NewMachine()
	mu := NewMutex(m, Callback, "heap")

	g := mu.Acquire()
	defer g.Release()

	require.Panics(t, func() {
		m.Signal(Notify, func() { mu.Acquire() })
	})
}

func TestMachine_DispatchOrder(t *testing.T) {
	m := NewMachine()
	prev := m.Raise(HighLevel)

	var order []Level
	m.Signal(Callback, func() { order = append(order, Callback) })
	m.Signal(Notify, func() { order = append(order, Notify) })
	m.Signal(Callback, func() { order = append(order, Callback+1) })

	m.Restore(prev)
	require.Equal(t, []Level{Notify, Callback, Callback + 1}, order)
	require.Equal(t, uint64(3), m.Dispatched())
}

func TestMachine_RestoreAbovePanics(t *testing.T) {
	m := NewMachine()
	require.Panics(t, func() { m.Restore(HighLevel) })
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "NOTIFY", Notify.String())
	assert.Equal(t, "TPL(5)", Level(5).String())
}
