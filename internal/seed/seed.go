// Package seed loads the boot-time description of the platform: the
// address space regions reported at startup, the ranges already allocated
// when control is handed over and the per-type bucket sizes.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/pkg/types"
)

// SupportedVersions is the schema constraint every seed file must satisfy.
const SupportedVersions = "~1"

// Region is one address range reported at startup.
type Region struct {
	Base         uint64
	Length       uint64
	Kind         gcd.Kind
	Capabilities types.Attributes
	// Attributes are applied after the region is added. Zero leaves the
	// region without attributes.
	Attributes types.Attributes
}

// Allocation is a system memory range already in use at hand-off. It is
// claimed at its exact address under Type before any bucket is seeded.
type Allocation struct {
	Base   uint64
	Length uint64
	Type   types.MemoryType
}

// Pages returns the length of a in pages.
func (a Allocation) Pages() uint64 { return a.Length >> format.PageShift }

// Seed is a validated boot description.
type Seed struct {
	Version     string
	AddressBits uint
	Regions     []Region
	Allocations []Allocation
	// Buckets maps a memory type to the bucket size in pages its allocator
	// claims before serving any request.
	Buckets map[types.MemoryType]uint64
}

// BucketTypes returns the types with a bucket in ascending order.
func (s Seed) BucketTypes() []types.MemoryType {
	out := make([]types.MemoryType, 0, len(s.Buckets))
	for mt := range s.Buckets {
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TotalMemory sums the lengths of the memory-space regions of kind.
func (s Seed) TotalMemory(kind gcd.Kind) uint64 {
	var n uint64
	for _, r := range s.Regions {
		if r.Kind == kind {
			n += r.Length
		}
	}
	return n
}

// file is the on-disk YAML layout.
type file struct {
	Version     string            `yaml:"version"`
	AddressBits uint              `yaml:"address_bits,omitempty"`
	Regions     []fileRegion      `yaml:"regions"`
	Allocations []fileAllocation  `yaml:"allocations,omitempty"`
	Buckets     map[string]uint64 `yaml:"buckets,omitempty"`
}

type fileAllocation struct {
	Base   uint64 `yaml:"base"`
	Length uint64 `yaml:"length"`
	Type   string `yaml:"type"`
}

type fileRegion struct {
	Base         uint64 `yaml:"base"`
	Length       uint64 `yaml:"length"`
	Kind         string `yaml:"kind"`
	Capabilities string `yaml:"capabilities,omitempty"`
	Attributes   string `yaml:"attributes,omitempty"`
}

// Load reads and validates the seed file at path.
func Load(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Parse validates a seed held in memory.
func Parse(data []byte) (Seed, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one YAML seed document from r.
func Decode(r io.Reader) (Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw file
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Seed{}, invalidf("empty seed")
		}
		return Seed{}, types.Wrap(types.ErrKindInvalidParameter, err, "seed: decode")
	}
	return raw.resolve()
}

func (f file) resolve() (Seed, error) {
	if err := checkVersion(f.Version); err != nil {
		return Seed{}, err
	}
	s := Seed{
		Version:     f.Version,
		AddressBits: f.AddressBits,
		Buckets:     make(map[types.MemoryType]uint64, len(f.Buckets)),
	}
	if s.AddressBits == 0 {
		s.AddressBits = format.DefaultAddressBits
	}

	for i, fr := range f.Regions {
		r, err := fr.resolve()
		if err != nil {
			return Seed{}, fmt.Errorf("seed: region %d: %w", i, err)
		}
		s.Regions = append(s.Regions, r)
	}
	if err := checkOverlap(s.Regions); err != nil {
		return Seed{}, err
	}

	for i, fa := range f.Allocations {
		a, err := fa.resolve(s.Regions)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: allocation %d: %w", i, err)
		}
		s.Allocations = append(s.Allocations, a)
	}
	if err := checkAllocationOverlap(s.Allocations); err != nil {
		return Seed{}, err
	}

	for name, pages := range f.Buckets {
		mt, err := types.ParseMemoryType(name)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: bucket %q: %w", name, err)
		}
		if !mt.Allocatable() {
			return Seed{}, invalidf("bucket type %s is not allocatable", mt)
		}
		if pages == 0 {
			return Seed{}, invalidf("bucket %s has no pages", mt)
		}
		s.Buckets[mt] = pages
	}
	return s, nil
}

func (fr fileRegion) resolve() (Region, error) {
	kind, err := gcd.ParseKind(fr.Kind)
	if err != nil {
		return Region{}, err
	}
	if kind == gcd.NonExistent {
		return Region{}, invalidf("kind %s cannot be added", kind)
	}
	if fr.Length == 0 {
		return Region{}, invalidf("zero-length region at %#x", fr.Base)
	}
	if _, ok := format.End(fr.Base, fr.Length); !ok {
		return Region{}, invalidf("region at %#x wraps the address space", fr.Base)
	}
	r := Region{Base: fr.Base, Length: fr.Length, Kind: kind}
	if r.Capabilities, err = types.ParseAttributes(fr.Capabilities); err != nil {
		return Region{}, err
	}
	if r.Attributes, err = types.ParseAttributes(fr.Attributes); err != nil {
		return Region{}, err
	}
	if kind.IsIO() && r.Attributes != 0 {
		return Region{}, invalidf("I/O region at %#x carries attributes", fr.Base)
	}
	return r, nil
}

func (fa fileAllocation) resolve(regions []Region) (Allocation, error) {
	mt, err := types.ParseMemoryType(fa.Type)
	if err != nil {
		return Allocation{}, err
	}
	if !mt.Allocatable() {
		return Allocation{}, invalidf("type %s is not allocatable", mt)
	}
	if fa.Length == 0 || !format.IsPageAligned(fa.Base) || !format.IsPageAligned(fa.Length) {
		return Allocation{}, invalidf("range %#x+%#x is not a whole number of pages", fa.Base, fa.Length)
	}
	if fa.Base == 0 {
		return Allocation{}, invalidf("page 0 cannot be allocated")
	}
	end, ok := format.End(fa.Base, fa.Length)
	if !ok {
		return Allocation{}, invalidf("range at %#x wraps the address space", fa.Base)
	}
	for _, r := range regions {
		if r.Kind == gcd.SystemMemory && fa.Base >= r.Base && end <= r.Base+r.Length {
			return Allocation{Base: fa.Base, Length: fa.Length, Type: mt}, nil
		}
	}
	return Allocation{}, invalidf("range %#x+%#x is not inside one system memory region", fa.Base, fa.Length)
}

func checkAllocationOverlap(allocs []Allocation) error {
	sorted := append([]Allocation(nil), allocs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	for i := 1; i < len(sorted); i++ {
		if prev := sorted[i-1]; sorted[i].Base < prev.Base+prev.Length {
			return invalidf("allocation at %#x overlaps the allocation at %#x", sorted[i].Base, prev.Base)
		}
	}
	return nil
}

func checkVersion(v string) error {
	if v == "" {
		return invalidf("missing version")
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return types.Wrap(types.ErrKindInvalidParameter, err, "seed: version %q", v)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(ver) {
		return types.Errorf(types.ErrKindUnsupported, "seed: version %s does not satisfy %s", ver, SupportedVersions)
	}
	return nil
}

// checkOverlap rejects regions of the same space that overlap.
func checkOverlap(regions []Region) error {
	sorted := append([]Region(nil), regions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	var lastEnd [2]uint64
	var seen [2]bool
	for _, r := range sorted {
		sp := 0
		if r.Kind.IsIO() {
			sp = 1
		}
		if seen[sp] && r.Base < lastEnd[sp] {
			return invalidf("region at %#x overlaps the previous region", r.Base)
		}
		lastEnd[sp] = r.Base + r.Length
		seen[sp] = true
	}
	return nil
}

func invalidf(msg string, args ...any) error {
	return types.Errorf(types.ErrKindInvalidParameter, "seed: "+msg, args...)
}
