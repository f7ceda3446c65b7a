// Package core assembles the memory subsystem: the priority machine, the
// GCD and the allocator registry, owned by one explicitly constructed
// context.
package core

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/dxemem/alloc"
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/logger"
	"github.com/joshuapare/dxemem/internal/seed"
	"github.com/joshuapare/dxemem/pkg/types"
	"github.com/joshuapare/dxemem/tpl"
)

// Options configures a Core. The zero value is usable.
type Options struct {
	// AddressBits is the width of the memory space. Default: 48.
	AddressBits uint

	// Pager applies attribute changes. Default: none.
	Pager gcd.Pager

	// SizeClasses selects the pool size classes of every allocator.
	SizeClasses *alloc.SizeClassConfig

	// MinExpansion is the smallest pool expansion in bytes.
	MinExpansion uint64

	// OnMapChange is forwarded to the GCD.
	OnMapChange func(gcd.ChangeKind, gcd.Range)

	Logger *slog.Logger
}

// Core owns the memory subsystem of one execution.
type Core struct {
	machine  *tpl.Machine
	gcd      *gcd.Domain
	registry *alloc.Registry
	log      *slog.Logger
	seeded   bool
}

// New builds a Core with an empty address space and the well-known
// allocators. Call Seed before allocating.
func New(opts Options) (*Core, error) {
	log := logger.Or(opts.Logger)
	m := tpl.NewMachine()

	d, err := gcd.New(gcd.Options{
		Controller:  m,
		AddressBits: opts.AddressBits,
		Pager:       opts.Pager,
		Logger:      log.With("component", "gcd"),
		OnMapChange: opts.OnMapChange,
	})
	if err != nil {
		return nil, err
	}

	reg, err := alloc.NewRegistry(d, alloc.RegistryOptions{
		Controller: m,
		Allocator: alloc.Options{
			SizeClasses:  opts.SizeClasses,
			MinExpansion: opts.MinExpansion,
		},
		Logger: log.With("component", "alloc"),
	})
	if err != nil {
		return nil, err
	}

	return &Core{machine: m, gcd: d, registry: reg, log: log}, nil
}

// NewSeeded builds a Core sized for s and seeds it.
func NewSeeded(s seed.Seed, opts Options) (*Core, error) {
	if opts.AddressBits == 0 {
		opts.AddressBits = s.AddressBits
	}
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := c.Seed(s); err != nil {
		return nil, err
	}
	return c, nil
}

// Seed adds the startup regions to the GCD, applies their attributes,
// claims the ranges allocated before hand-off and then the configured
// buckets. It may be called once.
//
// Seed checks the seed against this Core before changing anything: a seed
// rejected there can be corrected and passed again. A failure once
// ingestion has started leaves the Core seeded and partially populated;
// discard it.
func (c *Core) Seed(s seed.Seed) error {
	if c.seeded {
		return types.Errorf(types.ErrKindAlreadyStarted, "core: already seeded")
	}
	if err := c.check(s); err != nil {
		return err
	}
	c.seeded = true

	for _, r := range s.Regions {
		if err := c.gcd.AddRegion(r.Base, r.Length, r.Kind, r.Capabilities); err != nil {
			return err
		}
	}
	for _, r := range s.Regions {
		if r.Kind.IsIO() || r.Attributes == 0 {
			continue
		}
		if err := c.gcd.SetAttributes(r.Base, r.Length, r.Attributes.Access(), r.Attributes.Cache()); err != nil {
			return err
		}
	}
	for _, al := range s.Allocations {
		a, err := c.registry.GetOrCreate(al.Type)
		if err != nil {
			return err
		}
		if _, err := a.AdoptPages(al.Base, al.Pages()); err != nil {
			return fmt.Errorf("core: hand-off allocation %#x+%#x: %w", al.Base, al.Length, err)
		}
	}
	for _, mt := range s.BucketTypes() {
		a, err := c.registry.GetOrCreate(mt)
		if err != nil {
			return err
		}
		if err := a.SeedBucket(s.Buckets[mt]); err != nil {
			return err
		}
	}

	c.log.Info("core seeded", "regions", len(s.Regions), "allocations", len(s.Allocations), "buckets", len(s.Buckets))
	return nil
}

// check rejects a seed that cannot fit this Core.
func (c *Core) check(s seed.Seed) error {
	if s.AddressBits != 0 && s.AddressBits != c.gcd.AddressBits() {
		return types.Errorf(types.ErrKindInvalidParameter,
			"core: seed wants %d address bits, GCD has %d", s.AddressBits, c.gcd.AddressBits())
	}
	limit := c.gcd.Limit()
	for _, r := range s.Regions {
		if r.Kind.IsIO() {
			continue
		}
		if r.Base >= limit || r.Length > limit-r.Base {
			return types.Errorf(types.ErrKindUnsupported,
				"core: region %#x+%#x beyond the %d-bit space", r.Base, r.Length, c.gcd.AddressBits())
		}
	}
	return nil
}

// Seeded reports whether Seed has been called.
func (c *Core) Seeded() bool { return c.seeded }

// Machine returns the priority machine every lock in this Core raises.
func (c *Core) Machine() *tpl.Machine { return c.machine }

// GCD returns the address space tracker.
func (c *Core) GCD() *gcd.Domain { return c.gcd }

// Registry returns the allocator registry.
func (c *Core) Registry() *alloc.Registry { return c.registry }

// DefaultAllocator returns the BootServicesData allocator.
func (c *Core) DefaultAllocator() *alloc.TypedAllocator { return c.registry.Default() }

// GetOrCreate returns the allocator for mt.
func (c *Core) GetOrCreate(mt types.MemoryType) (*alloc.TypedAllocator, error) {
	return c.registry.GetOrCreate(mt)
}

// FreePages releases pages claimed through any allocator, found by address.
func (c *Core) FreePages(base, count uint64) error { return c.registry.FreePages(base, count) }

// FreePool releases a pool block from any allocator, found by address.
func (c *Core) FreePool(addr, size uint64) error { return c.registry.Free(addr, size) }

// MemoryTypeInfo reports the pages in use per architectural memory type.
func (c *Core) MemoryTypeInfo() []alloc.MemoryTypeInfo { return c.registry.MemoryTypeInfo() }

// Snapshot returns a copy of both region maps.
func (c *Core) Snapshot() gcd.Snapshot { return c.gcd.Snapshot() }

// MemoryMap returns the current memory map and its key.
func (c *Core) MemoryMap() ([]gcd.Descriptor, uint64) {
	mm := c.gcd.Snapshot().MemoryMap()
	return mm, gcd.MapKeyOf(mm)
}

// ExitBootServices locks the GCD if mapKey matches the current memory map.
// A stale key leaves everything unchanged.
func (c *Core) ExitBootServices(mapKey uint64) error {
	if c.gcd.Locked() {
		return types.Errorf(types.ErrKindAlreadyStarted, "core: boot services already exited")
	}
	mm, key := c.MemoryMap()
	if key != mapKey {
		return types.Errorf(types.ErrKindInvalidParameter,
			"core: stale map key %#x, current %#x", mapKey, key)
	}
	c.gcd.Lock()
	c.log.Info("boot services exited", "descriptors", len(mm), "key", key)
	return nil
}
