//go:build !linux && !darwin

package physmem

// Without mmap the arena is a plain heap slice and protections are only
// recorded.
func mapAnon(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}

func protect([]byte, Access) error { return nil }
