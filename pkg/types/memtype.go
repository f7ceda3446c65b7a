package types

import "fmt"

// MemoryType classifies a claimed range for the memory map handed to the
// operating system. Values match the UEFI EFI_MEMORY_TYPE encoding.
type MemoryType uint32

const (
	ReservedMemoryType      MemoryType = 0
	LoaderCode              MemoryType = 1
	LoaderData              MemoryType = 2
	BootServicesCode        MemoryType = 3
	BootServicesData        MemoryType = 4
	RuntimeServicesCode     MemoryType = 5
	RuntimeServicesData     MemoryType = 6
	ConventionalMemory      MemoryType = 7
	UnusableMemory          MemoryType = 8
	ACPIReclaimMemory       MemoryType = 9
	ACPIMemoryNVS           MemoryType = 10
	MemoryMappedIO          MemoryType = 11
	MemoryMappedIOPortSpace MemoryType = 12
	PalCode                 MemoryType = 13
	PersistentMemory        MemoryType = 14
	UnacceptedMemory        MemoryType = 15

	// MaxMemoryType is the first value past the architecturally defined types.
	MaxMemoryType MemoryType = 16

	// OEMMemoryTypeBase starts the range reserved for platform vendors.
	OEMMemoryTypeBase MemoryType = 0x7000_0000
	// OSMemoryTypeBase starts the range reserved for OS loaders.
	OSMemoryTypeBase MemoryType = 0x8000_0000

	// NoMemoryType marks a range that carries no memory type tag. It takes
	// the last OS value, which is therefore never a usable type.
	NoMemoryType MemoryType = 0xFFFF_FFFF
)

var memoryTypeNames = [...]string{
	ReservedMemoryType:      "Reserved",
	LoaderCode:              "LoaderCode",
	LoaderData:              "LoaderData",
	BootServicesCode:        "BootServicesCode",
	BootServicesData:        "BootServicesData",
	RuntimeServicesCode:     "RuntimeServicesCode",
	RuntimeServicesData:     "RuntimeServicesData",
	ConventionalMemory:      "Conventional",
	UnusableMemory:          "Unusable",
	ACPIReclaimMemory:       "ACPIReclaim",
	ACPIMemoryNVS:           "ACPINVS",
	MemoryMappedIO:          "MMIO",
	MemoryMappedIOPortSpace: "MMIOPort",
	PalCode:                 "PalCode",
	PersistentMemory:        "Persistent",
	UnacceptedMemory:        "Unaccepted",
}

func (t MemoryType) String() string {
	switch {
	case t == NoMemoryType:
		return "None"
	case t < MaxMemoryType:
		return memoryTypeNames[t]
	case t.IsOEM():
		return fmt.Sprintf("OEM(%#x)", uint32(t))
	case t.IsOS():
		return fmt.Sprintf("OS(%#x)", uint32(t))
	default:
		return fmt.Sprintf("MemoryType(%#x)", uint32(t))
	}
}

// ParseMemoryType accepts the names produced by String and numeric literals.
func ParseMemoryType(s string) (MemoryType, error) {
	for i, name := range memoryTypeNames {
		if name == s {
			return MemoryType(i), nil
		}
	}
	var v uint32
	if _, err := fmt.Sscanf(s, "%v", &v); err != nil {
		return NoMemoryType, Errorf(ErrKindInvalidParameter, "unknown memory type %q", s)
	}
	if MemoryType(v) == NoMemoryType {
		return NoMemoryType, Errorf(ErrKindInvalidParameter, "memory type %q is reserved for untagged ranges", s)
	}
	return MemoryType(v), nil
}

// IsOEM reports whether t lies in the vendor-defined range.
func (t MemoryType) IsOEM() bool { return t >= OEMMemoryTypeBase && t < OSMemoryTypeBase }

// IsOS reports whether t lies in the OS-loader-defined range.
func (t MemoryType) IsOS() bool { return t >= OSMemoryTypeBase && t != NoMemoryType }

// IsRuntime reports whether ranges of this type survive into OS runtime and
// therefore carry the runtime attribute in the memory map.
func (t MemoryType) IsRuntime() bool {
	return t == RuntimeServicesCode || t == RuntimeServicesData
}

// Allocatable reports whether an allocator may be created for t. Conventional,
// unusable, MMIO and unaccepted memory describe free or device ranges and are
// never claimed through an allocator; the span from PersistentMemory up to the
// OEM base is illegal.
func (t MemoryType) Allocatable() bool {
	switch t {
	case ConventionalMemory, UnusableMemory, MemoryMappedIO, MemoryMappedIOPortSpace, PalCode, NoMemoryType:
		return false
	}
	if t >= PersistentMemory && t < OEMMemoryTypeBase {
		return false
	}
	return true
}
