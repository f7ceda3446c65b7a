package alloc

import (
	"log/slog"
	"sort"

	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/logger"
	"github.com/joshuapare/dxemem/pkg/types"
	"github.com/joshuapare/dxemem/tpl"
)

// WellKnownTypes are the memory types whose allocators exist from the
// moment a Registry is built.
var WellKnownTypes = []types.MemoryType{
	types.LoaderCode,
	types.LoaderData,
	types.BootServicesCode,
	types.BootServicesData,
	types.RuntimeServicesCode,
	types.RuntimeServicesData,
	types.ACPIReclaimMemory,
	types.ACPIMemoryNVS,
	types.ReservedMemoryType,
}

// DefaultType is the memory type of the default allocator.
const DefaultType = types.BootServicesData

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Controller is shared by the registry lock and every allocator.
	Controller tpl.Controller

	// Allocator is the template for each allocator the registry creates.
	// Its Controller and Owner fields are ignored.
	Allocator Options

	Logger *slog.Logger
}

// Registry maps memory types to their allocators. All dynamic memory comes
// from allocators obtained here.
type Registry struct {
	mu      *tpl.Mutex
	domain  *gcd.Domain
	opts    RegistryOptions
	log     *slog.Logger
	byType  map[types.MemoryType]*TypedAllocator
	byOwner map[types.Handle]types.MemoryType
}

// NewRegistry builds a registry over domain with the well-known allocators
// already created.
func NewRegistry(domain *gcd.Domain, opts RegistryOptions) (*Registry, error) {
	if opts.Controller == nil {
		opts.Controller = tpl.NewMachine()
	}
	r := &Registry{
		mu:      tpl.NewMutex(opts.Controller, LockLevel, "alloc registry"),
		domain:  domain,
		opts:    opts,
		log:     logger.Or(opts.Logger),
		byType:  make(map[types.MemoryType]*TypedAllocator),
		byOwner: make(map[types.Handle]types.MemoryType),
	}
	for _, mt := range WellKnownTypes {
		if _, err := r.GetOrCreate(mt); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// GetOrCreate returns the allocator for mt, creating it on first use. Types
// that can never be allocated (conventional, unusable, MMIO, the reserved
// span past the architectural types) are rejected with ErrInvalidParameter.
func (r *Registry) GetOrCreate(mt types.MemoryType) (*TypedAllocator, error) {
	if !mt.Allocatable() {
		return nil, invalidf("memory type %s is not allocatable", mt)
	}

	g := r.mu.Acquire()
	defer g.Release()

	if a, ok := r.byType[mt]; ok {
		return a, nil
	}

	opts := r.opts.Allocator
	opts.Controller = r.opts.Controller
	opts.Owner = DefaultHandle(mt)
	if opts.Logger == nil {
		opts.Logger = r.opts.Logger
	}
	a, err := New(r.domain, mt, opts)
	if err != nil {
		return nil, err
	}
	r.byType[mt] = a
	r.byOwner[opts.Owner] = mt
	r.log.Debug("allocator created", "type", mt.String(), "owner", opts.Owner)
	return a, nil
}

// Default returns the BootServicesData allocator.
func (r *Registry) Default() *TypedAllocator {
	a, _ := r.Lookup(DefaultType)
	return a
}

// Lookup returns the allocator for mt without creating one.
func (r *Registry) Lookup(mt types.MemoryType) (*TypedAllocator, bool) {
	g := r.mu.Acquire()
	defer g.Release()
	a, ok := r.byType[mt]
	return a, ok
}

// All returns every allocator ordered by memory type.
func (r *Registry) All() []*TypedAllocator {
	g := r.mu.Acquire()
	defer g.Release()
	out := make([]*TypedAllocator, 0, len(r.byType))
	for _, a := range r.byType {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].memType < out[j].memType })
	return out
}

// TypeForOwner returns the memory type of the allocator owning handle.
func (r *Registry) TypeForOwner(h types.Handle) (types.MemoryType, bool) {
	g := r.mu.Acquire()
	defer g.Release()
	mt, ok := r.byOwner[h]
	return mt, ok
}

// owning returns the allocator holding addr. The GCD owner of the enclosing
// region names it; addresses the GCD cannot attribute fall back to asking
// each allocator.
func (r *Registry) owning(addr uint64) (*TypedAllocator, bool) {
	if desc, err := r.domain.DescriptorFor(addr); err == nil && desc.State == gcd.Allocated {
		if mt, ok := r.TypeForOwner(desc.Owner.Agent); ok {
			if a, ok := r.Lookup(mt); ok {
				return a, true
			}
		}
	}
	for _, a := range r.All() {
		if a.Contains(addr) {
			return a, true
		}
	}
	return nil, false
}

// FreePages releases pages obtained from any allocator of this registry,
// found by address.
func (r *Registry) FreePages(base, count uint64) error {
	a, ok := r.owning(base)
	if !ok {
		return notFoundf("%#x is not held by any allocator", base)
	}
	return a.FreePages(base, count)
}

// Free releases a pool block obtained from any allocator of this registry,
// found by address.
func (r *Registry) Free(addr, size uint64) error {
	a, ok := r.owning(addr)
	if !ok {
		return notFoundf("%#x is not held by any allocator", addr)
	}
	return a.Free(addr, size)
}

// MemoryTypeInfo is the page usage of one memory type, the figure a later
// boot sizes that type's bucket from.
type MemoryTypeInfo struct {
	Type  types.MemoryType
	Pages uint64
}

// MemoryTypeInfo reports, for every architectural memory type with an
// allocator, the pages claimed from the GCD less the bucket pages still
// unused. OEM and OS types are not tracked.
func (r *Registry) MemoryTypeInfo() []MemoryTypeInfo {
	all := r.All()
	out := make([]MemoryTypeInfo, 0, len(all))
	for _, a := range all {
		if a.memType >= types.MaxMemoryType {
			continue
		}
		st := a.Stats()
		out = append(out, MemoryTypeInfo{Type: a.memType, Pages: st.ClaimedPages - st.BucketFree})
	}
	return out
}
