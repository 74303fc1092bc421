package process

import (
	"os"
	"sort"

	"github.com/pkg/errors"
)

type region struct {
	addr Address
	data []byte
}

func (r region) end() Address {
	return r.addr.Add(uint64(len(r.data)))
}

// Snapshot is a sparse in-memory address space.
//
// It stands in for a live process when inspecting a raw memory dump and in tests.
// Reads spanning a gap between regions fail with ErrUnmapped.
type Snapshot struct {
	regions []region
}

// NewSnapshot returns an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// LoadSnapshot maps the contents of a raw dump file at base.
func LoadSnapshot(path string, base Address) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dump %s", path)
	}
	s := NewSnapshot()
	s.Map(base, data)
	return s, nil
}

// Map places data at addr, replacing any bytes already mapped there.
func (s *Snapshot) Map(addr Address, data []byte) {
	if len(data) == 0 {
		return
	}
	end := addr.Add(uint64(len(data)))
	for _, rg := range s.regions {
		if addr >= rg.addr && end <= rg.end() {
			copy(rg.data[addr-rg.addr:], data)
			return
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	kept := s.regions[:0]
	for _, rg := range s.regions {
		if rg.addr >= addr && rg.end() <= end {
			continue // fully shadowed
		}
		// write through so overlapping regions agree on shared bytes
		for a := max(addr, rg.addr); a < min(end, rg.end()); a++ {
			rg.data[a-rg.addr] = buf[a-addr]
		}
		kept = append(kept, rg)
	}
	s.regions = append(kept, region{addr: addr, data: buf})
	sort.Slice(s.regions, func(i, j int) bool {
		return s.regions[i].addr < s.regions[j].addr
	})
}

// Unmap removes the region starting exactly at addr.
func (s *Snapshot) Unmap(addr Address) {
	for i, rg := range s.regions {
		if rg.addr == addr {
			s.regions = append(s.regions[:i], s.regions[i+1:]...)
			return
		}
	}
}

// Read implements Reader.
func (s *Snapshot) Read(addr Address, buf []byte) error {
	done := 0
	for done < len(buf) {
		a := addr.Add(uint64(done))
		rg, ok := s.lookup(a)
		if !ok {
			return errors.Wrapf(ErrUnmapped, "read %d bytes at %s", len(buf), addr)
		}
		done += copy(buf[done:], rg.data[a-rg.addr:])
	}
	return nil
}

// Bounds returns the lowest mapped address and the size up to the end of the highest region.
func (s *Snapshot) Bounds() (Address, uint64) {
	if len(s.regions) == 0 {
		return 0, 0
	}
	lo := s.regions[0].addr
	var hi Address
	for _, rg := range s.regions {
		if rg.end() > hi {
			hi = rg.end()
		}
	}
	return lo, uint64(hi - lo)
}

func (s *Snapshot) lookup(a Address) (region, bool) {
	for _, rg := range s.regions {
		if rg.addr > a {
			break
		}
		if a < rg.end() {
			return rg, true
		}
	}
	return region{}, false
}
