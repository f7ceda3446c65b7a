package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryType_String(t *testing.T) {
	assert.Equal(t, "BootServicesData", BootServicesData.String())
	assert.Equal(t, "Reserved", ReservedMemoryType.String())
	assert.Equal(t, "OEM(0x70000001)", MemoryType(0x7000_0001).String())
	assert.Equal(t, "OS(0x80000000)", OSMemoryTypeBase.String())
	assert.Equal(t, "None", NoMemoryType.String())
	assert.Equal(t, "MemoryType(0x20)", MemoryType(0x20).String())
}

func TestParseMemoryType(t *testing.T) {
	got, err := ParseMemoryType("RuntimeServicesData")
	require.NoError(t, err)
	require.Equal(t, RuntimeServicesData, got)

	got, err = ParseMemoryType("0x70000002")
	require.NoError(t, err)
	require.Equal(t, MemoryType(0x7000_0002), got)

	_, err = ParseMemoryType("Heap")
	require.True(t, errors.Is(err, ErrInvalidParameter))

	got, err = ParseMemoryType("0xFFFFFFFE")
	require.NoError(t, err)
	require.True(t, got.IsOS())

	for _, s := range []string{"0xFFFFFFFF", "4294967295", "None"} {
		_, err = ParseMemoryType(s)
		require.True(t, errors.Is(err, ErrInvalidParameter), s)
	}
	require.False(t, NoMemoryType.IsOS())
}

func TestMemoryType_Allocatable(t *testing.T) {
	tests := []struct {
		mt   MemoryType
		want bool
	}{
		{LoaderCode, true},
		{BootServicesData, true},
		{RuntimeServicesCode, true},
		{ACPIReclaimMemory, true},
		{ACPIMemoryNVS, true},
		{ReservedMemoryType, true},
		{ConventionalMemory, false},
		{UnusableMemory, false},
		{MemoryMappedIO, false},
		{MemoryMappedIOPortSpace, false},
		{PersistentMemory, false},
		{MemoryType(0x1000), false},
		{OEMMemoryTypeBase, true},
		{OSMemoryTypeBase + 5, true},
		{NoMemoryType, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mt.Allocatable(), tt.mt.String())
	}
}

func TestError_IsByKind(t *testing.T) {
	err := Errorf(ErrKindNotFound, "range %#x not tracked", 0x1000)
	require.True(t, errors.Is(err, ErrNotFound))
	require.False(t, errors.Is(err, ErrAccessDenied))

	wrapped := Wrap(ErrKindOutOfResources, errors.New("mmap failed"), "expand")
	require.Equal(t, "expand: mmap failed", wrapped.Error())
	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, ErrKindOutOfResources, kind)
}
