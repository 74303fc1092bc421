//go:build linux

package process

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type linuxProcess struct {
	pid int32
}

// Open attaches to the process with the given PID.
func Open(pid int32) (Process, error) {
	p := &linuxProcess{pid: pid}
	if !p.IsOpen() {
		return nil, errors.Wrapf(ErrProcessClosed, "pid %d", pid)
	}
	return p, nil
}

func (p *linuxProcess) Pid() int32 {
	return p.pid
}

func (p *linuxProcess) IsOpen() bool {
	err := unix.Kill(int(p.pid), 0)
	return err == nil || err == unix.EPERM
}

func (p *linuxProcess) Close() error {
	return nil
}

func (p *linuxProcess) Read(addr Address, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(int(p.pid), local, remote, 0)
	if err != nil {
		if err == unix.ESRCH {
			return errors.Wrapf(ErrProcessClosed, "pid %d", p.pid)
		}
		return errors.Wrapf(ErrUnmapped, "read %d bytes at %s: %v", len(buf), addr, err)
	}
	if n != len(buf) {
		return errors.Wrapf(ErrUnmapped, "short read at %s: %d/%d bytes", addr, n, len(buf))
	}
	return nil
}

// mapping is one line of /proc/<pid>/maps
type mapping struct {
	start, end Address
	path       string
}

func (p *linuxProcess) mappings(name string) ([]mapping, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open process maps")
	}
	defer f.Close()

	var maps []mapping
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 6 {
			continue
		}
		// wine maps PE images under their unix path, so match on the basename
		path := strings.Join(fields[5:], " ")
		if !MatchName(path, name) {
			continue
		}
		start, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		lo, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		hi, err := strconv.ParseUint(end, 16, 64)
		if err != nil {
			continue
		}
		maps = append(maps, mapping{start: Address(lo), end: Address(hi), path: path})
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan process maps")
	}
	if len(maps) == 0 {
		return nil, errors.Wrapf(ErrModuleNotFound, "%s", name)
	}
	return maps, nil
}

func (p *linuxProcess) ModuleAddress(name string) (Address, error) {
	maps, err := p.mappings(name)
	if err != nil {
		return 0, err
	}
	lo := maps[0].start
	for _, m := range maps[1:] {
		lo = min(lo, m.start)
	}
	return lo, nil
}

func (p *linuxProcess) ModuleSize(name string) (uint64, error) {
	maps, err := p.mappings(name)
	if err != nil {
		return 0, err
	}
	lo, hi := maps[0].start, maps[0].end
	for _, m := range maps[1:] {
		lo = min(lo, m.start)
		hi = max(hi, m.end)
	}
	return uint64(hi - lo), nil
}
