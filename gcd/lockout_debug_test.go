//go:build gcddebug

package gcd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLock_MutationPanicsInDebugBuild(t *testing.T) {
	d := newRAMDomain(t)
	d.Lock()

	require.PanicsWithValue(t, "gcd: allocate after lock-out", func() {
		_, _ = d.Allocate(anyReq(pages(1), ownerA))
	})
	// The lock was released before panicking.
	require.NotPanics(t, func() { _ = d.Snapshot() })
}
