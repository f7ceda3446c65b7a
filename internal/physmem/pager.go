package physmem

import (
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/pkg/types"
)

// Pager enforces GCD access attributes on an Arena.
type Pager struct {
	arena *Arena
	calls uint64
}

var _ gcd.Pager = (*Pager)(nil)

// NewPager returns a pager for a. Ranges outside the arena window are
// accepted and ignored.
func NewPager(a *Arena) *Pager { return &Pager{arena: a} }

// Apply implements gcd.Pager.
func (p *Pager) Apply(base, length uint64, attrs types.Attributes) error {
	p.calls++
	return p.arena.Protect(base, length, AccessFor(attrs))
}

// Calls returns how many ranges the pager has been asked to apply.
func (p *Pager) Calls() uint64 { return p.calls }
