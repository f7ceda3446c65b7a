package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/pkg/types"
	"github.com/joshuapare/dxemem/tpl"
)

const (
	ramBase = 0x10_0000
	ramSize = 0x400_0000

	ramCaps = types.MemoryWB | types.MemoryUC | types.MemoryXP | types.MemoryRO
)

// newTestGCD returns a Domain with one system memory window of size bytes.
func newTestGCD(t *testing.T, size uint64, opts gcd.Options) *gcd.Domain {
	t.Helper()
	d, err := gcd.New(opts)
	require.NoError(t, err)
	require.NoError(t, d.AddRegion(ramBase, size, gcd.SystemMemory, ramCaps))
	return d
}

func newTestAllocator(t *testing.T, d *gcd.Domain, mt types.MemoryType, opts Options) *TypedAllocator {
	t.Helper()
	a, err := New(d, mt, opts)
	require.NoError(t, err)
	return a
}

// newDefaultPair returns a shared-controller GCD and BootServicesData
// allocator.
func newDefaultPair(t *testing.T) (*gcd.Domain, *TypedAllocator) {
	t.Helper()
	m := tpl.NewMachine()
	d := newTestGCD(t, ramSize, gcd.Options{Controller: m})
	return d, newTestAllocator(t, d, types.BootServicesData, Options{Controller: m})
}

// descriptorsOf filters a memory map down to one memory type.
func descriptorsOf(mm []gcd.Descriptor, mt types.MemoryType) []gcd.Descriptor {
	var out []gcd.Descriptor
	for _, d := range mm {
		if d.Type == mt {
			out = append(out, d)
		}
	}
	return out
}
