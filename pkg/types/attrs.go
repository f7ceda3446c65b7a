package types

import (
	"fmt"
	"strings"
)

// Attributes is the memory attribute/capability bitmask recorded per region.
// Bit values match the UEFI EFI_MEMORY_* encoding so descriptors can be
// handed to the OS unchanged.
type Attributes uint64

// Cacheability attributes.
const (
	MemoryUC  Attributes = 0x0000_0000_0000_0001 // uncacheable
	MemoryWC  Attributes = 0x0000_0000_0000_0002 // write combining
	MemoryWT  Attributes = 0x0000_0000_0000_0004 // write through
	MemoryWB  Attributes = 0x0000_0000_0000_0008 // write back
	MemoryUCE Attributes = 0x0000_0000_0000_0010 // uncacheable, exported
	MemoryWP  Attributes = 0x0000_0000_0000_1000 // write protected (cache sense)
)

// Access (protection) attributes.
const (
	MemoryRP Attributes = 0x0000_0000_0000_2000 // read protected
	MemoryXP Attributes = 0x0000_0000_0000_4000 // execute protected
	MemoryRO Attributes = 0x0000_0000_0002_0000 // read only
)

// Other attributes.
const (
	MemoryNV           Attributes = 0x0000_0000_0000_8000
	MemoryMoreReliable Attributes = 0x0000_0000_0001_0000
	MemorySP           Attributes = 0x0000_0000_0004_0000
	MemoryCPUCrypto    Attributes = 0x0000_0000_0008_0000
	MemoryISAValid     Attributes = 0x4000_0000_0000_0000
	MemoryRuntime      Attributes = 0x8000_0000_0000_0000
)

const (
	// CacheMask selects the cacheability bits.
	CacheMask = MemoryUC | MemoryWC | MemoryWT | MemoryWB | MemoryUCE | MemoryWP
	// AccessMask selects the protection bits.
	AccessMask = MemoryRP | MemoryXP | MemoryRO

	// CacheUnchanged passed as the caching argument of an attribute change
	// leaves each region's current cacheability in place.
	CacheUnchanged Attributes = 0
	// AccessNone clears every protection bit.
	AccessNone Attributes = 0
)

// Cache returns only the cacheability bits of a.
func (a Attributes) Cache() Attributes { return a & CacheMask }

// Access returns only the protection bits of a.
func (a Attributes) Access() Attributes { return a & AccessMask }

// Has reports whether every bit of b is set in a.
func (a Attributes) Has(b Attributes) bool { return a&b == b }

// WithAccess replaces the protection bits of a.
func (a Attributes) WithAccess(access Attributes) Attributes {
	return a&^AccessMask | access&AccessMask
}

// WithCache replaces the cacheability bits of a unless cache is CacheUnchanged.
func (a Attributes) WithCache(cache Attributes) Attributes {
	if cache == CacheUnchanged {
		return a
	}
	return a&^CacheMask | cache&CacheMask
}

var attributeNames = []struct {
	bit  Attributes
	name string
}{
	{MemoryUC, "UC"},
	{MemoryWC, "WC"},
	{MemoryWT, "WT"},
	{MemoryWB, "WB"},
	{MemoryUCE, "UCE"},
	{MemoryWP, "WP"},
	{MemoryRP, "RP"},
	{MemoryXP, "XP"},
	{MemoryNV, "NV"},
	{MemoryMoreReliable, "MR"},
	{MemoryRO, "RO"},
	{MemorySP, "SP"},
	{MemoryCPUCrypto, "CC"},
	{MemoryISAValid, "ISA"},
	{MemoryRuntime, "RT"},
}

// String renders the set bits as "WB|XP". Unnamed bits are appended in hex.
func (a Attributes) String() string {
	if a == 0 {
		return "0"
	}
	var parts []string
	rest := a
	for _, n := range attributeNames {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint64(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseAttributes parses the String form back into a bitmask.
func ParseAttributes(s string) (Attributes, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	var a Attributes
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range attributeNames {
			if strings.EqualFold(n.name, part) {
				a |= n.bit
				found = true
				break
			}
		}
		if found {
			continue
		}
		var v uint64
		if _, err := fmt.Sscanf(part, "%v", &v); err != nil {
			return 0, Errorf(ErrKindInvalidParameter, "unknown attribute %q", part)
		}
		a |= Attributes(v)
	}
	return a, nil
}
