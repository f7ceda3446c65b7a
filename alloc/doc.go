// Package alloc provides the typed pool and page allocators of the memory
// subsystem and the registry that hands them out.
//
// # Overview
//
// A TypedAllocator serves one memory type. It claims pages from the GCD
// tagged with that type and carves them into pool blocks using a segregated
// free-list design with one list per size class plus an address-ordered
// fallback list. Common-case allocation and free are O(1) list operations;
// the fallback list absorbs everything that does not fit a class.
//
// # Allocation order
//
//  1. Pop the head of the request's exact size class.
//  2. First fit by address on the fallback list, splitting off the excess.
//  3. Pop the head of the smallest larger non-empty class; the whole block
//     is handed out.
//  4. Expand the pool once (bucket pages first, then the GCD) and retry.
//
// # Free
//
// Free always coalesces: a block that touches another free block merges
// with it into the fallback list, so no two free blocks are ever adjacent.
// An isolated block whose size is exactly a class size goes back on its
// class list in O(1), unless it was an entire fallback block, in which case
// it returns to the fallback list. Allocating and then freeing the same
// block therefore leaves the free lists exactly as they were.
//
// # Buckets
//
// SeedBucket claims a GCD range once for the allocator's lifetime. Pool
// expansions and AllocatePages draw from it first and FreePages returns to
// it, so the memory map for that type stays contiguous and unchanged across
// the boot.
//
// # Size Classes
//
// SizeClassConfig builds the class table. The default, ConfigPowerOfTwo,
// has ten classes:
//
//	8 16 32 64 128 256 512 1024 2048 4096
//
// Requests above the largest class round to an 8-byte multiple and are
// served from the fallback list.
//
// # Registry
//
// Registry maps memory types to allocators. The well-known UEFI types are
// created up front; OEM and OS types are created on first use. Default
// returns the BootServicesData allocator.
//
// # Locking
//
// Each allocator and the registry have their own tpl.Mutex. The lock order
// is allocator, then GCD; the GCD never calls back into an allocator.
package alloc
