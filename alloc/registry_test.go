package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/pkg/types"
	"github.com/joshuapare/dxemem/tpl"
)

func newTestRegistry(t *testing.T) (*gcd.Domain, *Registry) {
	t.Helper()
	m := tpl.NewMachine()
	d := newTestGCD(t, ramSize, gcd.Options{Controller: m})
	r, err := NewRegistry(d, RegistryOptions{Controller: m})
	require.NoError(t, err)
	return d, r
}

func TestNewRegistry_WellKnownTypes(t *testing.T) {
	_, r := newTestRegistry(t)

	for _, mt := range WellKnownTypes {
		a, ok := r.Lookup(mt)
		require.True(t, ok, mt.String())
		require.Equal(t, mt, a.MemoryType())
		require.Equal(t, types.Owner{Agent: DefaultHandle(mt)}, a.Owner())
	}
	require.Len(t, r.All(), len(WellKnownTypes))

	def := r.Default()
	require.NotNil(t, def)
	require.Equal(t, types.BootServicesData, def.MemoryType())
}

func TestGetOrCreate(t *testing.T) {
	_, r := newTestRegistry(t)

	bsd, err := r.GetOrCreate(types.BootServicesData)
	require.NoError(t, err)
	require.Same(t, r.Default(), bsd)

	oem := types.OEMMemoryTypeBase + 5
	_, ok := r.Lookup(oem)
	require.False(t, ok, "OEM allocators are created lazily")

	a1, err := r.GetOrCreate(oem)
	require.NoError(t, err)
	a2, err := r.GetOrCreate(oem)
	require.NoError(t, err)
	require.Same(t, a1, a2)

	osType := types.OSMemoryTypeBase + 1
	_, err = r.GetOrCreate(osType)
	require.NoError(t, err)
	require.Len(t, r.All(), len(WellKnownTypes)+2)
}

func TestGetOrCreate_RejectsUnallocatableTypes(t *testing.T) {
	_, r := newTestRegistry(t)

	for _, mt := range []types.MemoryType{
		types.ConventionalMemory,
		types.UnusableMemory,
		types.MemoryMappedIO,
		types.MemoryMappedIOPortSpace,
		types.PersistentMemory,
		types.MaxMemoryType + 3,
		types.NoMemoryType,
	} {
		_, err := r.GetOrCreate(mt)
		require.True(t, errors.Is(err, types.ErrInvalidParameter), mt.String())
	}
	require.Len(t, r.All(), len(WellKnownTypes))
}

func TestRegistry_AllSortedByType(t *testing.T) {
	_, r := newTestRegistry(t)
	_, err := r.GetOrCreate(types.OSMemoryTypeBase)
	require.NoError(t, err)
	_, err = r.GetOrCreate(types.OEMMemoryTypeBase)
	require.NoError(t, err)

	all := r.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, uint32(all[i-1].MemoryType()), uint32(all[i].MemoryType()))
	}
	assert.Equal(t, types.ReservedMemoryType, all[0].MemoryType())
	assert.Equal(t, types.OSMemoryTypeBase, all[len(all)-1].MemoryType())
}

func TestRegistry_TypeForOwner(t *testing.T) {
	d, r := newTestRegistry(t)

	rt, err := r.GetOrCreate(types.RuntimeServicesData)
	require.NoError(t, err)
	addr, err := rt.Allocate(64)
	require.NoError(t, err)

	desc, err := d.DescriptorFor(addr)
	require.NoError(t, err)
	mt, ok := r.TypeForOwner(desc.Owner.Agent)
	require.True(t, ok)
	require.Equal(t, types.RuntimeServicesData, mt)

	_, ok = r.TypeForOwner(types.Handle(42))
	require.False(t, ok)
}

func TestRegistry_TypesGetSeparateRanges(t *testing.T) {
	d, r := newTestRegistry(t)

	code, err := r.GetOrCreate(types.BootServicesCode)
	require.NoError(t, err)
	data := r.Default()

	c, err := code.Allocate(100)
	require.NoError(t, err)
	x, err := data.Allocate(100)
	require.NoError(t, err)

	require.True(t, code.Contains(c))
	require.False(t, code.Contains(x))
	require.True(t, data.Contains(x))

	mm := d.Snapshot().MemoryMap()
	require.Len(t, descriptorsOf(mm, types.BootServicesCode), 1)
	require.Len(t, descriptorsOf(mm, types.BootServicesData), 1)

	rc, err := d.DescriptorFor(c)
	require.NoError(t, err)
	require.Equal(t, types.BootServicesCode, rc.MemoryType)
	rx, err := d.DescriptorFor(x)
	require.NoError(t, err)
	require.Equal(t, types.BootServicesData, rx.MemoryType)
}

func TestRegistry_FreeByAddress(t *testing.T) {
	d, r := newTestRegistry(t)

	lc, err := r.GetOrCreate(types.LoaderCode)
	require.NoError(t, err)
	bsd := r.Default()

	p, err := lc.AllocatePages(2)
	require.NoError(t, err)
	x := mustAlloc(t, bsd, 200)

	require.True(t, errors.Is(r.FreePages(p.Base(), 1), types.ErrInvalidParameter), "count mismatch reaches the owner")
	require.NoError(t, r.FreePages(p.Base(), 2))
	require.Zero(t, lc.Stats().ClaimedPages)
	require.NoError(t, r.Free(x, 200))
	require.Zero(t, bsd.Stats().ReservedUsed)

	foreign, err := d.Allocate(gcd.Request{Length: 0x1000, MemoryType: types.LoaderData, Owner: types.Owner{Agent: 0x42}})
	require.NoError(t, err)
	require.True(t, errors.Is(r.FreePages(foreign.Base, 1), types.ErrNotFound), "owner is not an allocator")
	require.True(t, errors.Is(r.FreePages(ramBase+ramSize-0x1000, 1), types.ErrNotFound), "free memory")
	require.True(t, errors.Is(r.Free(ramBase+ramSize+0x1000, 8), types.ErrNotFound), "untracked memory")
}

func TestRegistry_FreeFallsBackToContains(t *testing.T) {
	_, r := newTestRegistry(t)
	a, err := r.GetOrCreate(types.ACPIReclaimMemory)
	require.NoError(t, err)
	x := mustAlloc(t, a, 64)

	delete(r.byOwner, DefaultHandle(types.ACPIReclaimMemory))
	require.NoError(t, r.Free(x, 64))
	require.Equal(t, uint64(1), a.Stats().PoolFreeCalls)
}

func TestRegistry_MemoryTypeInfo(t *testing.T) {
	_, r := newTestRegistry(t)
	rsd, err := r.GetOrCreate(types.RuntimeServicesData)
	require.NoError(t, err)
	require.NoError(t, rsd.SeedBucket(32))
	_, err = rsd.AllocatePages(5)
	require.NoError(t, err)
	_, err = r.GetOrCreate(types.OSMemoryTypeBase)
	require.NoError(t, err)

	info := r.MemoryTypeInfo()
	require.Len(t, info, len(WellKnownTypes), "OS types are not tracked")
	for i := 1; i < len(info); i++ {
		assert.Less(t, uint32(info[i-1].Type), uint32(info[i].Type))
	}
	for _, in := range info {
		if in.Type == types.RuntimeServicesData {
			assert.Equal(t, uint64(5), in.Pages)
		} else {
			assert.Zero(t, in.Pages, in.Type.String())
		}
	}
}
