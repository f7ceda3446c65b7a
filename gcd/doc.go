// Package gcd implements the Global Coherency Domain: the authoritative map
// of every byte of the processor's memory and I/O address spaces.
//
// # Overview
//
// A Domain keeps two region maps, one for memory space and one for I/O port
// space. Each map is an ordered set of non-overlapping regions that always
// covers the whole space; gaps are explicit NonExistent regions. Every
// mutation splits the regions it partially covers, applies a state
// transition to the covered regions, and merges the result with identical
// neighbours, so the map stays total and minimal after every call.
//
// # State transitions
//
//	NonExistent --AddRegion-------------> <kind>, Free
//	Free        --Allocate--------------> Allocated (type, owner)
//	Allocated   --Free------------------> Free (untyped, unowned)
//	Allocated   --FreePreservingOwnership-> Free (type, owner kept)
//	Free        --RemoveRegion----------> NonExistent
//
// # Placement
//
// Allocate supports three placement strategies: AnyAddress (lowest fitting
// address), AtAddress (exact base) and MaxAddress (highest fitting address
// whose last byte is at or below a bound). AnyAddress and MaxAddress first
// look at free regions already owned by the requester, then at unowned ones,
// and never take a region owned by someone else. Neither will hand out page
// zero, which stays unmapped for null-pointer detection; AtAddress can.
//
// # Attributes
//
// SetAttributes records access and caching attributes per region, then
// hands each affected region to the configured Pager so the change takes
// effect in hardware. A Pager failure rolls the bookkeeping back.
//
// # Concurrency
//
// Every call runs under the Domain's tpl.Mutex. Callbacks registered with
// Options.OnMapChange run after the lock is released, so they may call back
// into the Domain.
//
// # Lock-out
//
// Lock makes the map immutable for the rest of the boot. Mutations after
// that return ErrAccessDenied; built with -tags gcddebug they panic instead.
package gcd
