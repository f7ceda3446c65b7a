//go:build linux || darwin

package physmem

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/dxemem/internal/format"
)

func mapAnon(size int) ([]byte, func([]byte) error, error) {
	if ps := os.Getpagesize(); ps != format.PageSize {
		return nil, nil, fmt.Errorf("host page size %d, need %d", ps, format.PageSize)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, munmap, nil
}

func munmap(data []byte) error {
	err := unix.Munmap(data)
	if errors.Is(err, unix.EINVAL) {
		// Already unmapped.
		return nil
	}
	return err
}

func protect(b []byte, access Access) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	switch access {
	case ReadOnly:
		prot = unix.PROT_READ
	case NoAccess:
		prot = unix.PROT_NONE
	}
	return unix.Mprotect(b, prot)
}
