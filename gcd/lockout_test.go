//go:build !gcddebug

package gcd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dxemem/pkg/types"
)

func TestLock_EveryMutationDenied(t *testing.T) {
	d := newRAMDomain(t)
	r, err := d.Allocate(anyReq(pages(1), ownerA))
	require.NoError(t, err)

	d.Lock()
	require.True(t, d.Locked())
	before := d.Snapshot()
	require.True(t, before.Locked)

	mutations := map[string]func() error{
		"add":      func() error { return d.AddRegion(0, pages(1), Reserved, 0) },
		"remove":   func() error { return d.RemoveRegion(ramBase+pages(8), pages(1)) },
		"allocate": func() error { _, err := d.Allocate(anyReq(pages(1), ownerA)); return err },
		"free":     func() error { return d.Free(r.Base, r.Length, ownerA) },
		"preserve": func() error { return d.FreePreservingOwnership(r.Base, r.Length, ownerA) },
		"attrs":    func() error { return d.SetAttributes(r.Base, r.Length, types.MemoryRO, types.CacheUnchanged) },
		"caps":     func() error { return d.SetCapabilities(r.Base, r.Length, allCaps) },
		"io":       func() error { return d.FreeIO(0, 1, ownerA) },
	}
	for name, fn := range mutations {
		err := fn()
		require.True(t, errors.Is(err, types.ErrAccessDenied), "%s: %v", name, err)
	}

	require.Equal(t, before, d.Snapshot())
	require.Equal(t, uint64(len(mutations)), d.Stats().Rejected)

	// Queries still work.
	_, err = d.GetAttributes(r.Base, r.Length)
	require.NoError(t, err)
	_, err = d.DescriptorFor(r.Base)
	require.NoError(t, err)
}

func TestLock_Idempotent(t *testing.T) {
	d := newRAMDomain(t)
	d.Lock()
	d.Lock()
	require.True(t, d.Locked())
}
