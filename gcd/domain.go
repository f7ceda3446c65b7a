package gcd

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/internal/logger"
	"github.com/joshuapare/dxemem/pkg/types"
	"github.com/joshuapare/dxemem/tpl"
)

// LockLevel is the priority ceiling of the Domain lock.
const LockLevel = tpl.HighLevel

// Options configures a Domain. The zero value is usable.
type Options struct {
	// Controller raises and restores the priority level around every call.
	// Default: a private tpl.Machine.
	Controller tpl.Controller

	// AddressBits is the width of the memory space. Default: 48. A 64-bit
	// space stops one page short of 2^64.
	AddressBits uint

	// Pager applies attribute changes to the hardware. Default: none, the
	// attributes are only recorded.
	Pager Pager

	// Logger receives debug records for every mutation. Default: logger.L.
	Logger *slog.Logger

	// OnMapChange, when set, is called after every successful mutation,
	// once the Domain lock has been released.
	OnMapChange func(ChangeKind, Range)
}

// Stats counts Domain activity since construction.
type Stats struct {
	Allocations   uint64 // successful Allocate calls
	Frees         uint64 // successful Free and FreePreservingOwnership calls
	AttributeSets uint64 // successful SetAttributes calls
	Rejected      uint64 // mutations refused after lock-out
}

// Domain is the Global Coherency Domain: the memory and I/O region maps and
// the lock serializing access to them.
type Domain struct {
	mu       *tpl.Mutex
	memory   *space
	io       *space
	pager    Pager
	log      *slog.Logger
	onChange func(ChangeKind, Range)
	bits     uint
	locked   bool
	stats    Stats
}

// New returns a Domain whose memory and I/O spaces are entirely NonExistent.
func New(opts Options) (*Domain, error) {
	bits := opts.AddressBits
	if bits == 0 {
		bits = format.DefaultAddressBits
	}
	if bits < format.PageShift+1 || bits > format.MaxAddressBits {
		return nil, types.Errorf(types.ErrKindInvalidParameter, "gcd: address width %d out of range", bits)
	}

	ctl := opts.Controller
	if ctl == nil {
		ctl = tpl.NewMachine()
	}

	return &Domain{
		mu:       tpl.NewMutex(ctl, LockLevel, "gcd"),
		memory:   newSpace(format.SpaceLimit(bits), format.PageSize),
		io:       newSpace(format.SpaceLimit(format.IOAddressBits), 1),
		pager:    opts.Pager,
		log:      logger.Or(opts.Logger),
		onChange: opts.OnMapChange,
		bits:     bits,
	}, nil
}

// AddressBits returns the width of the memory space.
func (d *Domain) AddressBits() uint { return d.bits }

// Limit returns the exclusive upper bound of the memory space.
func (d *Domain) Limit() uint64 { return d.memory.limit }

// Stats returns a copy of the activity counters.
func (d *Domain) Stats() Stats {
	g := d.mu.Acquire()
	defer g.Release()
	return d.stats
}

// Lock makes the region maps immutable for the rest of execution. It cannot
// be undone. Calling it again has no effect.
func (d *Domain) Lock() {
	g := d.mu.Acquire()
	d.locked = true
	g.Release()
	d.log.Info("gcd locked")
}

// Locked reports whether Lock has been called.
func (d *Domain) Locked() bool {
	g := d.mu.Acquire()
	defer g.Release()
	return d.locked
}

// mutate runs fn under the lock unless the Domain is locked out, then
// reports the change once the lock is released.
func (d *Domain) mutate(op string, change ChangeKind, fn func() (Range, error)) error {
	g := d.mu.Acquire()
	if d.locked {
		d.stats.Rejected++
		g.Release()
		return d.deny(op)
	}
	r, err := fn()
	g.Release()

	if err != nil {
		d.log.Debug("gcd "+op+" failed", "err", err)
		return err
	}
	if d.onChange != nil {
		d.onChange(change, r)
	}
	return nil
}

func (d *Domain) deny(op string) error {
	d.log.Warn("gcd mutation after lock-out", "op", op)
	if panicOnLockedMutation {
		panic(fmt.Sprintf("gcd: %s after lock-out", op))
	}
	return types.Errorf(types.ErrKindAccessDenied, "gcd: %s after lock-out", op)
}

func (d *Domain) spaceFor(k Kind) *space {
	if k.IsIO() {
		return d.io
	}
	return d.memory
}

// checkRange validates granularity and bounds of [base, base+length).
func checkRange(s *space, base, length uint64) (uint64, error) {
	if length == 0 || base%s.gran != 0 || length%s.gran != 0 {
		return 0, types.Errorf(types.ErrKindInvalidParameter, "gcd: range %#x+%#x not %#x-aligned", base, length, s.gran)
	}
	end, ok := format.End(base, length)
	if !ok || end > s.limit {
		return 0, types.Errorf(types.ErrKindUnsupported, "gcd: range %#x+%#x beyond space limit %#x", base, length, s.limit)
	}
	return end, nil
}

// ============================================================================
// Region lifecycle
// ============================================================================

// AddRegion brings [base, base+length) into existence as kind with the given
// capabilities. Memory kinds are page-granular; I/O kinds are byte-granular.
// Every byte of the range must currently be NonExistent.
func (d *Domain) AddRegion(base, length uint64, kind Kind, capabilities types.Attributes) error {
	return d.mutate("add region", ChangeAdd, func() (Range, error) {
		if kind == NonExistent {
			return Range{}, types.Errorf(types.ErrKindInvalidParameter, "gcd: cannot add a NonExistent region")
		}
		s := d.spaceFor(kind)
		end, err := checkRange(s, base, length)
		if err != nil {
			return Range{}, err
		}
		for _, r := range s.overlapping(base, end) {
			if r.Kind != NonExistent {
				return Range{}, types.Errorf(types.ErrKindAccessDenied, "gcd: %s overlaps existing %s region", Range{base, length}, r.Kind)
			}
		}

		for _, r := range s.isolate(base, end) {
			r.Kind = kind
			r.Capabilities = capabilities
			r.Attributes = 0
			r.State = Free
			r.MemoryType = types.NoMemoryType
			r.Owner = types.Owner{}
			s.put(r)
		}
		s.coalesce(base, end)

		d.log.Debug("gcd add region", "base", base, "length", length, "kind", kind, "caps", capabilities)
		return Range{base, length}, nil
	})
}

// RemoveRegion returns a free, unowned memory range to NonExistent.
func (d *Domain) RemoveRegion(base, length uint64) error {
	return d.remove(d.memory, base, length)
}

// RemoveIORegion returns a free, unowned I/O range to NonExistent.
func (d *Domain) RemoveIORegion(base, length uint64) error {
	return d.remove(d.io, base, length)
}

func (d *Domain) remove(s *space, base, length uint64) error {
	return d.mutate("remove region", ChangeRemove, func() (Range, error) {
		end, err := checkRange(s, base, length)
		if err != nil {
			return Range{}, err
		}
		for _, r := range s.overlapping(base, end) {
			if r.Kind == NonExistent {
				return Range{}, types.Errorf(types.ErrKindNotFound, "gcd: %s is not tracked", r.Range())
			}
			if r.State != Free || !r.Owner.IsZero() {
				return Range{}, types.Errorf(types.ErrKindAccessDenied, "gcd: %s is in use", r.Range())
			}
		}

		for _, r := range s.isolate(base, end) {
			r.Kind = NonExistent
			r.Capabilities = 0
			r.Attributes = 0
			r.MemoryType = types.NoMemoryType
			s.put(r)
		}
		s.coalesce(base, end)

		d.log.Debug("gcd remove region", "base", base, "length", length)
		return Range{base, length}, nil
	})
}

// ============================================================================
// Free
// ============================================================================

// Free releases a memory range allocated by owner. The range becomes free,
// untyped and unowned.
func (d *Domain) Free(base, length uint64, owner types.Owner) error {
	return d.free(d.memory, base, length, owner, false)
}

// FreePreservingOwnership releases a memory range but keeps its memory type
// and owner, so only owner (or an AtAddress request) can take it again.
func (d *Domain) FreePreservingOwnership(base, length uint64, owner types.Owner) error {
	return d.free(d.memory, base, length, owner, true)
}

// FreeIO releases an I/O range allocated by owner.
func (d *Domain) FreeIO(base, length uint64, owner types.Owner) error {
	return d.free(d.io, base, length, owner, false)
}

func (d *Domain) free(s *space, base, length uint64, owner types.Owner, preserve bool) error {
	return d.mutate("free", ChangeFree, func() (Range, error) {
		end, err := checkRange(s, base, length)
		if err != nil {
			return Range{}, err
		}
		for _, r := range s.overlapping(base, end) {
			if r.State != Allocated || !r.OwnedBy(owner) {
				return Range{}, types.Errorf(types.ErrKindNotFound, "gcd: %s not allocated by %s", r.Range(), owner)
			}
		}

		for _, r := range s.isolate(base, end) {
			r.State = Free
			if !preserve {
				r.MemoryType = types.NoMemoryType
				r.Owner = types.Owner{}
			}
			s.put(r)
		}
		s.coalesce(base, end)

		d.stats.Frees++
		d.log.Debug("gcd free", "base", base, "length", length, "owner", owner, "preserve", preserve)
		return Range{base, length}, nil
	})
}

// ============================================================================
// Queries
// ============================================================================

// DescriptorFor returns a copy of the memory region containing addr.
func (d *Domain) DescriptorFor(addr uint64) (Region, error) {
	return d.descriptorFor(d.memory, addr)
}

// IODescriptorFor returns a copy of the I/O region containing port.
func (d *Domain) IODescriptorFor(port uint64) (Region, error) {
	return d.descriptorFor(d.io, port)
}

func (d *Domain) descriptorFor(s *space, addr uint64) (Region, error) {
	g := d.mu.Acquire()
	defer g.Release()
	r, ok := s.at(addr)
	if !ok {
		return Region{}, types.Errorf(types.ErrKindNotFound, "gcd: %#x beyond space limit", addr)
	}
	return r, nil
}
