//go:build !gcddebug

package gcd

// panicOnLockedMutation turns post-lock-out mutations into panics when true.
const panicOnLockedMutation = false
