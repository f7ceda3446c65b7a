package seed

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/pkg/types"
)

const minimal = `
version: "1.2.0"
regions:
  - base: 0x100000
    length: 0x1000000
    kind: SystemMemory
    capabilities: WB|UC|XP
    attributes: WB
  - base: 0x0
    length: 0x10000
    kind: io
buckets:
  RuntimeServicesData: 32
  0x70000001: 4
`

func TestParse_Minimal(t *testing.T) {
	s, err := Parse([]byte(minimal))
	require.NoError(t, err)

	require.Equal(t, "1.2.0", s.Version)
	require.Equal(t, uint(48), s.AddressBits)
	require.Equal(t, []Region{
		{Base: 0x100000, Length: 0x1000000, Kind: gcd.SystemMemory,
			Capabilities: types.MemoryWB | types.MemoryUC | types.MemoryXP, Attributes: types.MemoryWB},
		{Base: 0, Length: 0x10000, Kind: gcd.IO},
	}, s.Regions)
	require.Equal(t, map[types.MemoryType]uint64{
		types.RuntimeServicesData:   32,
		types.OEMMemoryTypeBase + 1: 4,
	}, s.Buckets)
	require.Equal(t, []types.MemoryType{types.RuntimeServicesData, types.OEMMemoryTypeBase + 1}, s.BucketTypes())
	require.Equal(t, uint64(0x1000000), s.TotalMemory(gcd.SystemMemory))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind types.ErrKind
	}{
		{"empty", ``, types.ErrKindInvalidParameter},
		{"missing version", "regions: []\n", types.ErrKindInvalidParameter},
		{"bad version", "version: banana\n", types.ErrKindInvalidParameter},
		{"future version", "version: \"2.0\"\n", types.ErrKindUnsupported},
		{"unknown field", "version: \"1\"\nextra: 1\n", types.ErrKindInvalidParameter},
		{"unknown kind", `version: "1"
regions:
  - {base: 0x1000, length: 0x1000, kind: Lava}
`, types.ErrKindInvalidParameter},
		{"nonexistent kind", `version: "1"
regions:
  - {base: 0x1000, length: 0x1000, kind: NonExistent}
`, types.ErrKindInvalidParameter},
		{"zero length", `version: "1"
regions:
  - {base: 0x1000, length: 0, kind: SystemMemory}
`, types.ErrKindInvalidParameter},
		{"wraps", `version: "1"
regions:
  - {base: 0xFFFFFFFFFFFFF000, length: 0x2000, kind: SystemMemory}
`, types.ErrKindInvalidParameter},
		{"bad attribute", `version: "1"
regions:
  - {base: 0x1000, length: 0x1000, kind: SystemMemory, capabilities: WB|SHINY}
`, types.ErrKindInvalidParameter},
		{"io attributes", `version: "1"
regions:
  - {base: 0x0, length: 0x100, kind: IO, attributes: UC}
`, types.ErrKindInvalidParameter},
		{"overlap", `version: "1"
regions:
  - {base: 0x1000, length: 0x2000, kind: SystemMemory}
  - {base: 0x2000, length: 0x1000, kind: Reserved}
`, types.ErrKindInvalidParameter},
		{"bucket type", `version: "1"
buckets:
  Conventional: 4
`, types.ErrKindInvalidParameter},
		{"empty bucket", `version: "1"
buckets:
  LoaderData: 0
`, types.ErrKindInvalidParameter},
		{"untagged bucket type", `version: "1"
buckets:
  0xFFFFFFFF: 4
`, types.ErrKindInvalidParameter},
		{"allocation type", `version: "1"
regions:
  - {base: 0x100000, length: 0x100000, kind: SystemMemory}
allocations:
  - {base: 0x100000, length: 0x1000, type: MMIO}
`, types.ErrKindInvalidParameter},
		{"allocation misaligned", `version: "1"
regions:
  - {base: 0x100000, length: 0x100000, kind: SystemMemory}
allocations:
  - {base: 0x100800, length: 0x1000, type: LoaderData}
`, types.ErrKindInvalidParameter},
		{"allocation at page 0", `version: "1"
regions:
  - {base: 0x0, length: 0x100000, kind: SystemMemory}
allocations:
  - {base: 0x0, length: 0x1000, type: LoaderData}
`, types.ErrKindInvalidParameter},
		{"allocation outside system memory", `version: "1"
regions:
  - {base: 0x100000, length: 0x100000, kind: SystemMemory}
  - {base: 0x200000, length: 0x100000, kind: Reserved}
allocations:
  - {base: 0x1FF000, length: 0x2000, type: LoaderData}
`, types.ErrKindInvalidParameter},
		{"allocations overlap", `version: "1"
regions:
  - {base: 0x100000, length: 0x100000, kind: SystemMemory}
allocations:
  - {base: 0x100000, length: 0x3000, type: LoaderData}
  - {base: 0x102000, length: 0x1000, type: LoaderCode}
`, types.ErrKindInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			kind, ok := types.KindOf(err)
			require.True(t, ok, "untyped error: %v", err)
			assert.Equal(t, tt.kind, kind, err.Error())
		})
	}
}

func TestParse_Allocations(t *testing.T) {
	s, err := Parse([]byte(`version: "1"
regions:
  - {base: 0x100000, length: 0x100000, kind: SystemMemory}
allocations:
  - {base: 0x180000, length: 0x4000, type: BootServicesCode}
  - {base: 0x100000, length: 0x1000, type: "0x80000000"}
`))
	require.NoError(t, err)
	require.Equal(t, []Allocation{
		{Base: 0x180000, Length: 0x4000, Type: types.BootServicesCode},
		{Base: 0x100000, Length: 0x1000, Type: types.OSMemoryTypeBase},
	}, s.Allocations)
	require.Equal(t, uint64(4), s.Allocations[0].Pages())
}

func TestParse_MemoryAndIOMayShareAddresses(t *testing.T) {
	_, err := Parse([]byte(`version: "1"
regions:
  - {base: 0x0, length: 0x10000, kind: SystemMemory}
  - {base: 0x0, length: 0x10000, kind: IO}
`))
	require.NoError(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Regions, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDefault(t *testing.T) {
	s := Default()
	require.NotEmpty(t, s.Regions)
	require.Equal(t, uint64(0xA0000+0x7F00000), s.TotalMemory(gcd.SystemMemory))
	require.Contains(t, s.Buckets, types.RuntimeServicesData)

	again, err := Parse(DefaultYAML())
	require.NoError(t, err)
	require.Equal(t, s, again)
}
