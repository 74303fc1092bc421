// Package process provides read-only access to the memory of a foreign process.
package process

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	ps "github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrUnmapped is returned when a read touches an address that is not mapped in the target.
	ErrUnmapped = errors.New("address not mapped")
	// ErrProcessClosed is returned when the target process has exited.
	ErrProcessClosed = errors.New("process closed")
	// ErrModuleNotFound is returned when a named module is not loaded in the target.
	ErrModuleNotFound = errors.New("module not found")
	// ErrUnsupportedPlatform is returned by Open on platforms without a backend.
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

// Address is a virtual address inside the foreign process.
type Address uint64

// Add returns a+off
func (a Address) Add(off uint64) Address {
	return a + Address(off)
}

// IsNull reports whether a is the null address
func (a Address) IsNull() bool {
	return a == 0
}

func (a Address) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// PointerSize is the width in bytes of a pointer in the target.
type PointerSize uint8

const (
	PointerSize32 PointerSize = 4
	PointerSize64 PointerSize = 8
)

// Reader reads raw bytes out of a foreign address space.
//
// Read must fill buf completely or return an error; short reads are errors.
type Reader interface {
	Read(addr Address, buf []byte) error
}

// Process is an attached foreign process.
type Process interface {
	Reader
	// Pid returns the process ID
	Pid() int32
	// IsOpen reports whether the process is still running
	IsOpen() bool
	// ModuleAddress returns the load address of the named module
	ModuleAddress(name string) (Address, error)
	// ModuleSize returns the mapped size of the named module
	ModuleSize(name string) (uint64, error)
	// Close releases any handle held on the process
	Close() error
}

// Find attaches to the first running process whose executable name matches one of names.
func Find(names ...string) (Process, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate processes")
	}
	for _, name := range names {
		for _, p := range procs {
			pname, err := p.Name()
			if err != nil {
				continue
			}
			if MatchName(pname, name) {
				return Open(p.Pid)
			}
		}
	}
	return nil, errors.Errorf("no running process named %s", strings.Join(names, ", "))
}

// MatchName reports whether a process or module name matches want.
// Matching ignores case and any leading directory.
func MatchName(name, want string) bool {
	if want == "" {
		return false
	}
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	return strings.EqualFold(name, want)
}
