// Completion: 100% - Platform parsing complete
package backend

import (
	"fmt"
	"strings"
)

// Target platform parsing. Front ends hand the backend GOARCH/GOOS-style
// names; this normalizes them and picks the calling convention.

// ParseArch parses an architecture string (like GOARCH values)
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "riscv64", "riscv", "rv64":
		return ArchRiscv64, nil
	default:
		return 0, fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64, riscv64)", s)
	}
}

// ParseOS parses an OS string (like GOOS values)
func ParseOS(s string) (string, error) {
	switch strings.ToLower(s) {
	case "linux":
		return "linux", nil
	case "darwin", "macos":
		return "darwin", nil
	case "freebsd":
		return "freebsd", nil
	case "windows", "win", "wine":
		return "windows", nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: linux, darwin, freebsd, windows)", s)
	}
}

// Platform represents a target platform (architecture + OS)
type Platform struct {
	Arch Arch
	OS   string
}

// ParsePlatform parses an "arch-os" pair like "amd64-linux".
func ParsePlatform(s string) (Platform, error) {
	archStr, osStr, ok := strings.Cut(s, "-")
	if !ok {
		return Platform{}, fmt.Errorf("malformed platform %q, expected arch-os", s)
	}
	arch, err := ParseArch(archStr)
	if err != nil {
		return Platform{}, err
	}
	osName, err := ParseOS(osStr)
	if err != nil {
		return Platform{}, err
	}
	return Platform{Arch: arch, OS: osName}, nil
}

// String returns a human-readable platform string
func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}

// Convention returns the calling convention for the platform.
func (p Platform) Convention() (CallingConvention, error) {
	return NewCallingConvention(p.Arch, p.OS)
}
