// Completion: 100% - Platform-specific module complete
//go:build linux
// +build linux

package backend

import (
	"errors"

	"golang.org/x/sys/unix"
)

// MapExecutable copies the finalized text into fresh anonymous memory and
// flips it to read+execute, W^X style: written while writable, never
// writable once executable. Relocations are the caller's problem; text
// with pending external symbols cannot run as-is.
func (o *Object) MapExecutable() ([]byte, error) {
	if len(o.Text) == 0 {
		return nil, errors.New("empty text section")
	}
	mem, err := unix.Mmap(-1, 0, len(o.Text),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	copy(mem, o.Text)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	return mem, nil
}

// UnmapExecutable releases memory returned by MapExecutable.
func UnmapExecutable(mem []byte) error {
	return unix.Munmap(mem)
}
