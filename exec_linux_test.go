//go:build linux
// +build linux

package backend

import (
	"bytes"
	"testing"
)

func TestMapExecutable(t *testing.T) {
	cb := NewCodeBuffer(ArchX86_64)
	cb.Put1(0xC3)
	obj := cb.Finalize()

	mem, err := obj.MapExecutable()
	if err != nil {
		t.Fatalf("MapExecutable failed: %v", err)
	}
	defer UnmapExecutable(mem)

	if !bytes.Equal(mem, obj.Text) {
		t.Errorf("Mapped text differs: % x vs % x", mem, obj.Text)
	}
}

func TestMapExecutableEmpty(t *testing.T) {
	obj := &Object{Arch: ArchX86_64}
	if _, err := obj.MapExecutable(); err == nil {
		t.Error("Mapping an empty text section must fail")
	}
}
