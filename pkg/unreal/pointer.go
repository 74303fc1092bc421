package unreal

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/blacktop/ureflect/pkg/process"
)

// DefaultCapacity is the number of fields a Pointer holds when none is given.
const DefaultCapacity = 16

// Introspector is what a Pointer needs from an attached module.
type Introspector interface {
	Read(addr process.Address, buf []byte) error
	ReadPointer(addr process.Address) (process.Address, bool)
	// FieldOffset returns the offset of the named field in the class of the object at addr.
	FieldOffset(addr process.Address, name string) (uint32, bool)
}

// Validator is implemented by values that can reject a decoded bit pattern.
type Validator interface {
	Valid() bool
}

// Pointer is a path of fields from a base pointer slot to a value.
//
// A field is either a numeric offset ("0x570", "1464") or the name of a
// property looked up in the class of the object reached so far. Offsets are
// cached as they resolve and are never looked up again.
type Pointer struct {
	base     process.Address
	capacity int
	fields   []string
	offsets  []uint32
}

// NewPointer returns a Pointer rooted at the pointer slot base.
// Fields past capacity are dropped; a capacity below 1 uses DefaultCapacity.
func NewPointer(base process.Address, capacity int, fields ...string) *Pointer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if len(fields) > capacity {
		fields = fields[:capacity]
	}
	return &Pointer{
		base:     base,
		capacity: capacity,
		fields:   append([]string(nil), fields...),
		offsets:  make([]uint32, 0, len(fields)),
	}
}

// Base returns the address of the pointer slot the path starts from.
func (p *Pointer) Base() process.Address {
	return p.base
}

// Capacity returns the maximum number of fields.
func (p *Pointer) Capacity() int {
	return p.capacity
}

// Depth returns the number of fields in the path.
func (p *Pointer) Depth() int {
	return len(p.fields)
}

// Resolved returns the number of fields whose offsets are cached.
func (p *Pointer) Resolved() int {
	return len(p.offsets)
}

// Fields returns the field specifiers.
func (p *Pointer) Fields() []string {
	return append([]string(nil), p.fields...)
}

// Offsets returns the cached offsets.
func (p *Pointer) Offsets() []uint32 {
	return append([]uint32(nil), p.offsets...)
}

func (p *Pointer) String() string {
	return strings.Join(p.fields, " -> ")
}

// Resolve resolves as many field offsets as it can and reports whether the
// whole path is resolved.
//
// A failed lookup keeps the offsets resolved so far and the next call resumes
// from the field that failed.
func (p *Pointer) Resolve(m Introspector) bool {
	if len(p.offsets) == len(p.fields) {
		return true
	}

	// the objects along the path may have moved since the last call
	obj, ok := m.ReadPointer(p.base)
	if !ok {
		return false
	}
	for _, off := range p.offsets {
		if obj, ok = m.ReadPointer(obj.Add(uint64(off))); !ok {
			return false
		}
	}

	for i := len(p.offsets); i < len(p.fields); i++ {
		off, ok := parseOffset(p.fields[i])
		if !ok {
			if off, ok = m.FieldOffset(obj, p.fields[i]); !ok {
				return false
			}
		}
		p.offsets = append(p.offsets, off)
		if i == len(p.fields)-1 {
			break
		}
		if obj, ok = m.ReadPointer(obj.Add(uint64(off))); !ok {
			return false
		}
	}

	return true
}

// parseOffset parses a numeric field, hexadecimal when prefixed with 0x.
func parseOffset(field string) (uint32, bool) {
	var (
		v   uint64
		err error
	)
	if hex, ok := strings.CutPrefix(strings.ToLower(field), "0x"); ok {
		v, err = strconv.ParseUint(hex, 16, 32)
	} else {
		v, err = strconv.ParseUint(field, 10, 32)
	}
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// Address resolves the path and follows it, returning the address of the value.
func (p *Pointer) Address(m Introspector) (process.Address, bool) {
	if !p.Resolve(m) {
		return 0, false
	}
	addr, ok := m.ReadPointer(p.base)
	if !ok {
		return 0, false
	}
	if len(p.offsets) == 0 {
		return addr, true
	}
	last := len(p.offsets) - 1
	for _, off := range p.offsets[:last] {
		if addr, ok = m.ReadPointer(addr.Add(uint64(off))); !ok {
			return 0, false
		}
	}
	return addr.Add(uint64(p.offsets[last])), true
}

// Deref reads the value of type T at the end of the path.
//
// T must have a fixed size. A bool must hold 0 or 1, and a T implementing
// Validator must be valid.
func Deref[T any](p *Pointer, m Introspector) (T, bool) {
	var v, zero T
	addr, ok := p.Address(m)
	if !ok {
		return zero, false
	}
	size := binary.Size(v)
	if size <= 0 {
		return zero, false
	}
	buf := make([]byte, size)
	if err := m.Read(addr, buf); err != nil {
		return zero, false
	}
	if _, isBool := any(v).(bool); isBool && buf[0] > 1 {
		return zero, false
	}
	if _, err := binary.Decode(buf, binary.LittleEndian, &v); err != nil {
		return zero, false
	}
	if vv, ok := any(&v).(Validator); ok && !vv.Valid() {
		return zero, false
	}
	return v, true
}
