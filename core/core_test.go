package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dxemem/alloc"
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/seed"
	"github.com/joshuapare/dxemem/pkg/types"
)

func newSeeded(t *testing.T) *Core {
	t.Helper()
	c, err := NewSeeded(seed.Default(), Options{})
	require.NoError(t, err)
	return c
}

func descriptorsOf(mm []gcd.Descriptor, mt types.MemoryType) []gcd.Descriptor {
	var out []gcd.Descriptor
	for _, d := range mm {
		if d.Type == mt {
			out = append(out, d)
		}
	}
	return out
}

func TestSeed_BuildsMemoryMap(t *testing.T) {
	c := newSeeded(t)
	require.True(t, c.Seeded())

	mm, _ := c.MemoryMap()
	for i := 1; i < len(mm); i++ {
		require.LessOrEqual(t, mm[i-1].End(), mm[i].PhysicalStart, "descriptors overlap at %d", i)
	}

	rt := descriptorsOf(mm, types.RuntimeServicesData)
	require.Len(t, rt, 1)
	assert.Equal(t, uint64(64), rt[0].NumberOfPages)
	assert.True(t, rt[0].Attribute.Has(types.MemoryRuntime|types.MemoryWB), rt[0].Attribute.String())

	for _, mt := range []types.MemoryType{types.RuntimeServicesCode, types.ACPIReclaimMemory, types.ACPIMemoryNVS} {
		d := descriptorsOf(mm, mt)
		require.Len(t, d, 1, mt.String())
		assert.Equal(t, uint64(16), d[0].NumberOfPages)
	}

	mmio := descriptorsOf(mm, types.MemoryMappedIO)
	require.Len(t, mmio, 2)
	assert.Equal(t, uint64(0xFEC00000), mmio[0].PhysicalStart)
	assert.Equal(t, types.MemoryUC|types.MemoryXP, mmio[0].Attribute)

	io, err := c.GCD().IODescriptorFor(0x3F8)
	require.NoError(t, err)
	assert.Equal(t, gcd.IO, io.Kind)
}

func TestSeed_OnlyOnce(t *testing.T) {
	c := newSeeded(t)
	err := c.Seed(seed.Default())
	require.True(t, errors.Is(err, types.ErrAlreadyStarted))
}

func TestSeed_AddressBitsMismatch(t *testing.T) {
	c, err := New(Options{AddressBits: 36})
	require.NoError(t, err)
	err = c.Seed(seed.Default())
	require.True(t, errors.Is(err, types.ErrInvalidParameter))
	require.False(t, c.Seeded(), "a rejected seed changes nothing")
	require.Empty(t, c.Snapshot().MemoryMap())

	s := seed.Default()
	s.AddressBits = 36
	require.NoError(t, c.Seed(s))
}

func TestSeed_RegionBeyondSpaceRejectedUpFront(t *testing.T) {
	c, err := New(Options{AddressBits: 32})
	require.NoError(t, err)
	s := seed.Seed{Regions: []seed.Region{
		{Base: 0x100000, Length: 0x100000, Kind: gcd.SystemMemory, Capabilities: types.MemoryWB},
		{Base: 0x1_0000_0000, Length: 0x1000, Kind: gcd.SystemMemory, Capabilities: types.MemoryWB},
	}}
	require.True(t, errors.Is(c.Seed(s), types.ErrUnsupported))
	require.False(t, c.Seeded())
	require.Empty(t, c.Snapshot().MemoryMap(), "no region was added")
}

func TestSeed_HandOffAllocations(t *testing.T) {
	s := seed.Default()
	s.Allocations = []seed.Allocation{
		{Base: 0x1000, Length: 0x10000, Type: types.LoaderData},
		{Base: 0x200000, Length: 0x4000, Type: types.OEMMemoryTypeBase},
	}
	c, err := NewSeeded(s, Options{})
	require.NoError(t, err)

	mm, _ := c.MemoryMap()
	ld := descriptorsOf(mm, types.LoaderData)
	require.Len(t, ld, 1)
	assert.Equal(t, gcd.Descriptor{Type: types.LoaderData, PhysicalStart: 0x1000, NumberOfPages: 16, Attribute: types.MemoryWB}, ld[0])

	oem := descriptorsOf(mm, types.OEMMemoryTypeBase)
	require.Len(t, oem, 1)
	assert.Equal(t, uint64(0x200000), oem[0].PhysicalStart)

	rsc := descriptorsOf(mm, types.RuntimeServicesCode)
	require.Len(t, rsc, 1)
	assert.GreaterOrEqual(t, rsc[0].PhysicalStart, uint64(0x11000), "buckets go around hand-off ranges")

	// The OS loader may free a hand-off range by address alone.
	require.NoError(t, c.FreePages(0x200000, 4))
	mm, _ = c.MemoryMap()
	require.Empty(t, descriptorsOf(mm, types.OEMMemoryTypeBase))
}

func TestSeed_HandOffAllocationConflict(t *testing.T) {
	s := seed.Default()
	s.Allocations = []seed.Allocation{{Base: 0xA0000, Length: 0x1000, Type: types.LoaderData}}
	c, err := New(Options{})
	require.NoError(t, err)
	require.True(t, errors.Is(c.Seed(s), types.ErrNotFound), "reserved range is not system memory")
}

func TestSeed_PropagatesGCDErrors(t *testing.T) {
	s := seed.Seed{
		Regions: []seed.Region{{
			Base: 0x100000, Length: 0x100000, Kind: gcd.SystemMemory,
			Capabilities: types.MemoryWB, Attributes: types.MemoryRO,
		}},
	}
	c, err := New(Options{})
	require.NoError(t, err)
	require.True(t, errors.Is(c.Seed(s), types.ErrUnsupported), "RO is not a capability")
}

func TestDefaultAllocator_PoolAndPages(t *testing.T) {
	c := newSeeded(t)
	a := c.DefaultAllocator()
	require.Equal(t, types.BootServicesData, a.MemoryType())

	p, err := a.AllocatePages(4)
	require.NoError(t, err)
	mm, _ := c.MemoryMap()
	found := false
	for _, d := range descriptorsOf(mm, types.BootServicesData) {
		if d.PhysicalStart == p.Base() {
			found = true
			assert.Equal(t, uint64(4), d.NumberOfPages)
		}
	}
	require.True(t, found)
	require.NoError(t, p.Free())

	x, err := a.Allocate(24)
	require.NoError(t, err)
	require.True(t, a.Contains(x))
	require.NoError(t, a.Free(x, 24))
}

func TestGetOrCreate_UsesSharedMachine(t *testing.T) {
	c := newSeeded(t)
	oem, err := c.GetOrCreate(types.OEMMemoryTypeBase)
	require.NoError(t, err)
	same, ok := c.Registry().Lookup(types.OEMMemoryTypeBase)
	require.True(t, ok)
	require.Same(t, oem, same)

	_, err = oem.Allocate(100)
	require.NoError(t, err)
	require.Zero(t, c.Machine().Pending())
}

func TestExitBootServices(t *testing.T) {
	c := newSeeded(t)
	a := c.DefaultAllocator()
	x, err := a.Allocate(64)
	require.NoError(t, err)

	_, key := c.MemoryMap()
	y, err := a.AllocatePages(1)
	require.NoError(t, err)

	err = c.ExitBootServices(key)
	require.True(t, errors.Is(err, types.ErrInvalidParameter), "map changed since key was taken")
	require.False(t, c.GCD().Locked())

	_, key = c.MemoryMap()
	require.NoError(t, c.ExitBootServices(key))
	require.True(t, c.GCD().Locked())
	require.True(t, errors.Is(c.ExitBootServices(key), types.ErrAlreadyStarted))

	// The pool keeps serving from memory it already holds.
	require.NoError(t, a.Free(x, 64))
	_, err = a.Allocate(64)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.True(t, errors.Is(y.Free(), types.ErrAccessDenied))
		_, err = a.AllocatePages(1)
		require.True(t, errors.Is(err, types.ErrAccessDenied))
	}
}

func TestFreeByAddress(t *testing.T) {
	c := newSeeded(t)

	lc, err := c.GetOrCreate(types.LoaderCode)
	require.NoError(t, err)
	p, err := lc.AllocatePages(3)
	require.NoError(t, err)
	p.Leak()

	rsd, err := c.GetOrCreate(types.RuntimeServicesData)
	require.NoError(t, err)
	x, err := rsd.Allocate(100)
	require.NoError(t, err)

	require.NoError(t, c.FreePages(p.Base(), 3))
	assert.Equal(t, uint64(1), lc.Stats().PageFreeCalls)
	assert.Zero(t, lc.Stats().ClaimedPages)

	require.NoError(t, c.FreePool(x, 100))
	assert.Equal(t, uint64(1), rsd.Stats().PoolFreeCalls)

	t.Run("not held", func(t *testing.T) {
		require.True(t, errors.Is(c.FreePages(0x400_0000, 1), types.ErrNotFound))
		require.True(t, errors.Is(c.FreePool(0x400_0000, 8), types.ErrNotFound))
		require.True(t, errors.Is(c.FreePages(0x1_0000_0000, 1), types.ErrNotFound), "beyond RAM")
	})

	t.Run("held but not handed out", func(t *testing.T) {
		err := c.FreePool(x, 100)
		require.True(t, errors.Is(err, types.ErrNotFound), "double free")
	})
}

func TestMemoryTypeInfo(t *testing.T) {
	s := seed.Default()
	s.Allocations = []seed.Allocation{{Base: 0x200000, Length: 0x4000, Type: types.LoaderData}}
	c, err := NewSeeded(s, Options{})
	require.NoError(t, err)

	rsd, err := c.GetOrCreate(types.RuntimeServicesData)
	require.NoError(t, err)
	_, err = rsd.AllocatePages(2)
	require.NoError(t, err)
	_, err = c.GetOrCreate(types.OEMMemoryTypeBase)
	require.NoError(t, err)

	got := map[types.MemoryType]uint64{}
	for _, info := range c.MemoryTypeInfo() {
		got[info.Type] = info.Pages
	}
	assert.Equal(t, uint64(2), got[types.RuntimeServicesData], "unused bucket pages are not counted")
	assert.Equal(t, uint64(4), got[types.LoaderData])
	assert.Zero(t, got[types.ACPIMemoryNVS])
	assert.NotContains(t, got, types.OEMMemoryTypeBase)
	assert.Len(t, got, len(alloc.WellKnownTypes))
}

