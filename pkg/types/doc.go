// Package types defines the shared vocabulary of the memory subsystem: the
// typed error taxonomy, memory type tags, memory attribute bitmasks, and the
// owner handles recorded against tracked address ranges.
//
// Design goals:
//   - Stable error categories so callers branch on intent rather than text.
//   - Memory type and attribute encodings that match what the firmware hands
//     to the operating system, so descriptors need no translation.
//   - Small, copyable values. Nothing in this package holds a reference into
//     the live address-space map.
//
// This package has no dependencies beyond the standard library.
package types
