package unreal

import (
	"encoding/binary"

	"github.com/blacktop/ureflect/pkg/process"
)

// MaxNameLength caps the number of bytes read for a single name.
const MaxNameLength = 1024

const (
	// the first two pool slots hold the lock and the current block cursor
	namePoolHeaderSlots = 2
	nameEntryStride     = 2
	nameEntryHeaderSize = 2
	// low bits of the entry header are the wide flag and probe hash
	nameLengthShift = 6
)

// Name decodes the FName handle stored at addr.
//
// Only ANSI entries are decoded; wide entries come back as raw bytes.
func (m *Module) Name(addr process.Address) (string, bool) {
	var handle [4]byte
	if err := m.r.Read(addr, handle[:]); err != nil {
		return "", false
	}
	index := binary.LittleEndian.Uint16(handle[0:2])
	chunk := binary.LittleEndian.Uint16(handle[2:4])
	key := uint32(chunk)<<16 | uint32(index)

	if m.names != nil {
		if name, ok := m.names.Get(key); ok {
			return name, true
		}
	}

	slot := m.namePool.Add(uint64(m.image.PointerSize) * (uint64(chunk) + namePoolHeaderSlots))
	block, ok := m.ReadPointer(slot)
	if !ok || block.IsNull() {
		return "", false
	}
	entry := block.Add(uint64(index) * nameEntryStride)
	header, err := process.ReadUint16(m.r, entry)
	if err != nil {
		return "", false
	}
	buf := make([]byte, min(int(header>>nameLengthShift), MaxNameLength))
	if err := m.r.Read(entry.Add(nameEntryHeaderSize), buf); err != nil {
		return "", false
	}
	name := string(buf)

	if m.names != nil {
		m.names.Add(key, name)
	}
	return name, true
}
