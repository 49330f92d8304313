// Completion: 100% - Platform-specific module complete
//go:build !linux
// +build !linux

package backend

import "errors"

// MapExecutable is only implemented on Linux.
func (o *Object) MapExecutable() ([]byte, error) {
	return nil, errors.New("executable mapping is only supported on linux")
}

// UnmapExecutable is only implemented on Linux.
func UnmapExecutable(mem []byte) error {
	return errors.New("executable mapping is only supported on linux")
}
