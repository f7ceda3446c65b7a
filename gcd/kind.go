package gcd

import (
	"fmt"
	"strings"

	"github.com/joshuapare/dxemem/pkg/types"
)

// Kind classifies what backs a region of the address space.
type Kind uint8

const (
	NonExistent Kind = iota

	// Memory space kinds.
	SystemMemory
	Reserved
	MemoryMappedIO
	Persistent
	MoreReliable
	Unaccepted

	// I/O space kinds.
	IO
	IOReserved
)

var kindNames = [...]string{
	NonExistent:    "NonExistent",
	SystemMemory:   "SystemMemory",
	Reserved:       "Reserved",
	MemoryMappedIO: "MMIO",
	Persistent:     "Persistent",
	MoreReliable:   "MoreReliable",
	Unaccepted:     "Unaccepted",
	IO:             "IO",
	IOReserved:     "IOReserved",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind accepts the names produced by String, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(i), nil
		}
	}
	return NonExistent, types.Errorf(types.ErrKindInvalidParameter, "gcd: unknown region kind %q", s)
}

// IsIO reports whether k lives in the I/O port space.
func (k Kind) IsIO() bool { return k == IO || k == IOReserved }

// State is the allocation state of a region.
type State uint8

const (
	Free State = iota
	Allocated
)

func (s State) String() string {
	if s == Allocated {
		return "Allocated"
	}
	return "Free"
}

// ChangeKind names the mutation reported to Options.OnMapChange.
type ChangeKind uint8

const (
	ChangeAdd ChangeKind = iota
	ChangeRemove
	ChangeAllocate
	ChangeFree
	ChangeAttributes
	ChangeCapabilities
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeAdd:
		return "add"
	case ChangeRemove:
		return "remove"
	case ChangeAllocate:
		return "allocate"
	case ChangeFree:
		return "free"
	case ChangeAttributes:
		return "attributes"
	case ChangeCapabilities:
		return "capabilities"
	default:
		return fmt.Sprintf("ChangeKind(%d)", uint8(c))
	}
}
