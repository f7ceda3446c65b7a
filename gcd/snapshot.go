package gcd

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/pkg/types"
)

// Snapshot is an immutable copy of both region maps taken under the Domain
// lock. It is the only way to observe the maps as a whole.
type Snapshot struct {
	Memory []Region // memory space, address order, covers [0, limit)
	IO     []Region // I/O space, address order
	Locked bool     // whether the Domain was locked out when captured
}

// Snapshot captures both region maps.
func (d *Domain) Snapshot() Snapshot {
	g := d.mu.Acquire()
	defer g.Release()
	return Snapshot{
		Memory: d.memory.regions(),
		IO:     d.io.regions(),
		Locked: d.locked,
	}
}

// Descriptor is one entry of the memory map handed to the operating system.
type Descriptor struct {
	Type          types.MemoryType
	PhysicalStart uint64
	NumberOfPages uint64
	Attribute     types.Attributes
}

// End returns the first address past the descriptor.
func (d Descriptor) End() uint64 {
	return d.PhysicalStart + format.PagesToBytes(d.NumberOfPages)
}

// MemoryMap converts the memory regions to OS descriptors. Regions with no
// memory type are reported by kind; NonExistent regions and kinds with no
// OS equivalent are omitted. Runtime types gain the runtime attribute.
// Adjacent descriptors with identical type and attributes are merged.
func (s Snapshot) MemoryMap() []Descriptor {
	return s.MemoryMapMasked(^types.Attributes(0))
}

// MemoryMapMasked is MemoryMap with every descriptor's attributes ANDed with
// mask before merging.
func (s Snapshot) MemoryMapMasked(mask types.Attributes) []Descriptor {
	out := make([]Descriptor, 0, len(s.Memory))
	for _, r := range s.Memory {
		mt, ok := descriptorType(r)
		if !ok {
			continue
		}
		pages := r.Length >> format.PageShift
		if pages == 0 || !format.IsPageAligned(r.Start) {
			continue
		}
		attrs := r.Attributes
		if mt.IsRuntime() {
			attrs |= types.MemoryRuntime
		}
		attrs &= mask

		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Type == mt && last.Attribute == attrs && last.End() == r.Start {
				last.NumberOfPages += pages
				continue
			}
		}
		out = append(out, Descriptor{Type: mt, PhysicalStart: r.Start, NumberOfPages: pages, Attribute: attrs})
	}
	return out
}

func descriptorType(r Region) (types.MemoryType, bool) {
	if r.MemoryType != types.NoMemoryType {
		return r.MemoryType, true
	}
	switch r.Kind {
	case SystemMemory, MoreReliable:
		return types.ConventionalMemory, true
	case MemoryMappedIO:
		if r.Attributes.Has(types.MemoryISAValid) {
			return types.MemoryMappedIOPortSpace, true
		}
		return types.MemoryMappedIO, true
	case Persistent:
		return types.PersistentMemory, true
	case Unaccepted:
		return types.UnacceptedMemory, true
	case Reserved:
		return types.ReservedMemoryType, true
	default:
		return types.NoMemoryType, false
	}
}

// MapKey identifies the memory map: it changes whenever the map does.
func (s Snapshot) MapKey() uint64 {
	return MapKeyOf(s.MemoryMap())
}

// MapKeyOf returns the CRC-32 of the encoded descriptors.
func MapKeyOf(descs []Descriptor) uint64 {
	h := crc32.NewIEEE()
	var buf [28]byte
	for _, d := range descs {
		binary.LittleEndian.PutUint32(buf[0:], uint32(d.Type))
		binary.LittleEndian.PutUint64(buf[4:], d.PhysicalStart)
		binary.LittleEndian.PutUint64(buf[12:], d.NumberOfPages)
		binary.LittleEndian.PutUint64(buf[20:], uint64(d.Attribute))
		h.Write(buf[:])
	}
	return uint64(h.Sum32())
}

// Find returns the memory region containing addr.
func (s Snapshot) Find(addr uint64) (Region, bool) {
	for _, r := range s.Memory {
		if r.Contains(addr) {
			return r, true
		}
	}
	return Region{}, false
}

// Owned returns the memory regions whose owning agent is owner's agent.
func (s Snapshot) Owned(owner types.Owner) []Region {
	var out []Region
	for _, r := range s.Memory {
		if !r.Owner.IsZero() && r.OwnedBy(owner) {
			out = append(out, r)
		}
	}
	return out
}
