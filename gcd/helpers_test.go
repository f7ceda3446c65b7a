package gcd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dxemem/pkg/types"
)

const (
	ramBase = 0x10_0000
	ramSize = 0x100_0000

	allCaps = types.MemoryUC | types.MemoryWC | types.MemoryWT | types.MemoryWB |
		types.MemoryRP | types.MemoryXP | types.MemoryRO
)

var (
	ownerA = types.Owner{Agent: 0xA}
	ownerB = types.Owner{Agent: 0xB}
)

func newTestDomain(t *testing.T, opts Options) *Domain {
	t.Helper()
	d, err := New(opts)
	require.NoError(t, err)
	return d
}

// newRAMDomain returns a Domain with one system memory window.
func newRAMDomain(t *testing.T) *Domain {
	t.Helper()
	d := newTestDomain(t, Options{})
	require.NoError(t, d.AddRegion(ramBase, ramSize, SystemMemory, allCaps))
	return d
}

func pages(n uint64) uint64 { return n * 0x1000 }

func anyReq(length uint64, owner types.Owner) Request {
	return Request{Length: length, MemoryType: types.BootServicesData, Owner: owner}
}

// requireTotal checks that regions tile [0, limit) in order and that no two
// neighbours could have been merged.
func requireTotal(t *testing.T, regions []Region, limit uint64) {
	t.Helper()
	require.NotEmpty(t, regions)
	require.Equal(t, uint64(0), regions[0].Start, "map must start at 0")
	for i, r := range regions {
		require.NotZero(t, r.Length, "region %d is empty", i)
		if i > 0 {
			prev := regions[i-1]
			require.Equal(t, prev.End(), r.Start, "gap or overlap before region %d", i)
			require.False(t, prev.mergeable(r), "regions %d and %d should have merged", i-1, i)
		}
	}
	require.Equal(t, limit, regions[len(regions)-1].End(), "map must end at the space limit")
}
