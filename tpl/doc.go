// Package tpl provides the priority-ceiling lock used by the memory subsystem.
//
// Firmware runs on a single logical thread that can be preempted only by
// interrupt-level callbacks at totally ordered priority levels. A Mutex in
// this package does not block: acquiring it raises the current level to the
// mutex's ceiling so nothing that could touch the protected state can run,
// and releasing it restores the previous level, dispatching any work that
// became runnable in the meantime.
//
// Re-acquiring a Mutex that is already held means a callback re-entered the
// code it preempted. That is a programming error and panics immediately.
//
// Mutex is NOT a general-purpose multi-goroutine primitive. Share a Machine
// (and everything locked under it) with exactly one goroutine.
//
// # Types
//
//   - Level: a priority level (Application < Callback < Notify < HighLevel).
//   - Controller: raises and restores the current level.
//   - Machine: an in-process Controller that simulates interrupt delivery,
//     deferring Signal'd work until the level drops below it.
//   - Mutex / Guard: the ceiling lock and its release token.
package tpl
