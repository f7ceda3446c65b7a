package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes_String(t *testing.T) {
	assert.Equal(t, "0", Attributes(0).String())
	assert.Equal(t, "WB|XP", (MemoryWB | MemoryXP).String())
	assert.Equal(t, "UC|RT", (MemoryUC | MemoryRuntime).String())
	assert.Equal(t, "WB|0x100", (MemoryWB | 0x100).String())
}

func TestParseAttributes_RoundTrip(t *testing.T) {
	for _, a := range []Attributes{0, MemoryWB, MemoryUC | MemoryRO | MemoryXP, MemoryWB | MemoryRuntime | MemoryISAValid} {
		got, err := ParseAttributes(a.String())
		require.NoError(t, err)
		require.Equal(t, a, got)
	}

	_, err := ParseAttributes("WB|bogus")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestAttributes_Replace(t *testing.T) {
	a := MemoryWB | MemoryXP

	got := a.WithAccess(MemoryRO).WithCache(CacheUnchanged)
	require.Equal(t, MemoryWB|MemoryRO, got)

	got = a.WithCache(MemoryUC)
	require.Equal(t, MemoryUC|MemoryXP, got)

	require.True(t, got.Has(MemoryUC))
	require.Equal(t, MemoryUC, got.Cache())
	require.Equal(t, MemoryXP, got.Access())
}
