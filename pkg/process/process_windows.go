//go:build windows

package process

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const stillActive = 259

type windowsProcess struct {
	pid    int32
	handle windows.Handle
}

// Open attaches to the process with the given PID.
func Open(pid int32) (Process, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, uint32(pid))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pid %d", pid)
	}
	return &windowsProcess{pid: pid, handle: h}, nil
}

func (p *windowsProcess) Pid() int32 {
	return p.pid
}

func (p *windowsProcess) IsOpen() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

func (p *windowsProcess) Close() error {
	return windows.CloseHandle(p.handle)
}

func (p *windowsProcess) Read(addr Address, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var n uintptr
	if err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(len(buf)), &n); err != nil {
		return errors.Wrapf(ErrUnmapped, "read %d bytes at %s: %v", len(buf), addr, err)
	}
	if n != uintptr(len(buf)) {
		return errors.Wrapf(ErrUnmapped, "short read at %s: %d/%d bytes", addr, n, len(buf))
	}
	return nil
}

func (p *windowsProcess) module(name string) (windows.ModuleEntry32, error) {
	var me windows.ModuleEntry32
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(p.pid))
	if err != nil {
		return me, errors.Wrap(err, "failed to snapshot modules")
	}
	defer windows.CloseHandle(snapshot)

	me.Size = uint32(unsafe.Sizeof(me))
	if err := windows.Module32First(snapshot, &me); err != nil {
		return me, errors.Wrap(err, "Module32First failed")
	}
	for {
		if MatchName(windows.UTF16ToString(me.Module[:]), name) {
			return me, nil
		}
		if err := windows.Module32Next(snapshot, &me); err != nil {
			break
		}
	}
	return me, errors.Wrapf(ErrModuleNotFound, "%s", name)
}

func (p *windowsProcess) ModuleAddress(name string) (Address, error) {
	me, err := p.module(name)
	if err != nil {
		return 0, err
	}
	return Address(me.ModBaseAddr), nil
}

func (p *windowsProcess) ModuleSize(name string) (uint64, error) {
	me, err := p.module(name)
	if err != nil {
		return 0, err
	}
	return uint64(me.ModBaseSize), nil
}
