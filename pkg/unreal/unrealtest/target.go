// Package unrealtest builds synthetic Unreal Engine processes for tests.
package unrealtest

import (
	"encoding/binary"

	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/process/processtest"
)

// Layout of the 64-bit FField reflection records written by Target.
const (
	ObjectClass        = 0x10
	ObjectName         = 0x18
	StructSuper        = 0x40
	StructChildProps   = 0x50
	FieldName          = 0x28
	PropertyOffset     = 0x4C
	PropertyLinkNext   = 0x58
	classRecordSize    = 0x100
	propertyRecordSize = 0x80
)

const (
	// ImageBase is where the synthetic main module is mapped.
	ImageBase = process.Address(0x140000000)
	// ImageSize is the SizeOfImage of the synthetic main module.
	ImageSize = 0x10000

	gengineCode  = 0x1000
	namePoolCode = 0x1800
	gworldCode   = 0x2000
	gengineSlot  = 0x8000
	gworldSlot   = 0x8010
	namePoolAddr = 0x9000

	heapBase  = process.Address(0x200000000)
	blockSize = 0x10000
)

// NameBlocks is the number of name blocks the pool of a Target holds.
const NameBlocks = 2

// blocks are spaced apart so a stride error lands in unmapped memory
var nameBlocks = [NameBlocks]process.Address{0x300000000, 0x310000000}

type nameKey struct {
	block int
	name  string
}

// Property describes a property record.
type Property struct {
	Name   string
	Offset uint32
}

// Target is a 64-bit game image with GEngine, GWorld and FNamePool anchors
// planted in its code, backed by a process.Snapshot.
type Target struct {
	*process.Snapshot

	// GEngine is the address of the GEngine pointer slot.
	GEngine process.Address
	// GWorld is the address of the GWorld pointer slot.
	GWorld process.Address
	// NamePool is the address of the FNamePool.
	NamePool process.Address

	heap      process.Address
	nameUsed  [NameBlocks]uint64
	nameIndex map[nameKey]uint32
}

// New returns a Target whose GEngine is only reachable through the second
// GEngine pattern.
func New() *Target {
	t := &Target{
		Snapshot:  process.NewSnapshot(),
		GEngine:   ImageBase + gengineSlot,
		GWorld:    ImageBase + gworldSlot,
		NamePool:  ImageBase + namePoolAddr,
		heap:      heapBase,
		nameIndex: make(map[nameKey]uint32),
	}

	image := make([]byte, ImageSize)
	copy(image, processtest.NewImageHeader(0x8664, ImageSize))

	// test al, 1; jnz +0x10; mov qword [rip+disp32], imm32
	code := []byte{0xA8, 0x01, 0x75, 0x10, 0x48, 0xC7, 0x05, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(code[7:], uint32(int32(gengineSlot-(gengineCode+15))))
	copy(image[gengineCode:], code)

	// jz +9; lea rdx, [rip+disp32]; jmp +0x16
	code = []byte{0x74, 0x09, 0x48, 0x8D, 0x15, 0, 0, 0, 0, 0xEB, 0x16, 0x90, 0x90}
	binary.LittleEndian.PutUint32(code[5:], uint32(int32(namePoolAddr-(namePoolCode+9))))
	copy(image[namePoolCode:], code)

	// cmp byte [rsp+0x40], 0; jz +5; mov rdi, [rip+disp32]; test ...
	code = []byte{0x80, 0x7C, 0x24, 0x40, 0x00, 0x74, 0x05, 0x48, 0x8B, 0x3D, 0, 0, 0, 0, 0x48, 0x85}
	binary.LittleEndian.PutUint32(code[10:], uint32(int32(gworldSlot-(gworldCode+14))))
	copy(image[gworldCode:], code)

	// block pointers follow the two header slots
	for i, block := range nameBlocks {
		binary.LittleEndian.PutUint64(image[namePoolAddr+8*(2+i):], uint64(block))
	}

	t.Map(ImageBase, image)
	for _, block := range nameBlocks {
		t.Map(block, make([]byte, blockSize))
	}
	return t
}

// Alloc maps size zeroed bytes on the synthetic heap.
func (t *Target) Alloc(size uint64) process.Address {
	addr := t.heap
	size = (size + 0xF) &^ 0xF
	t.Map(addr, make([]byte, size))
	t.heap = t.heap.Add(size + 0x10) // keep a gap so overruns are unmapped
	return addr
}

// PutPointer writes a 64-bit pointer at addr.
func (t *Target) PutPointer(addr, val process.Address) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(val))
	t.Map(addr, buf[:])
}

// PutUint32 writes v at addr.
func (t *Target) PutUint32(addr process.Address, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	t.Map(addr, buf[:])
}

// PutUint64 writes v at addr.
func (t *Target) PutUint64(addr process.Address, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	t.Map(addr, buf[:])
}

// Name interns s in the first name block and returns its FName handle.
func (t *Target) Name(s string) uint32 {
	return t.NameIn(0, s)
}

// NameIn interns s in the given name block and returns its FName handle.
func (t *Target) NameIn(block int, s string) uint32 {
	key := nameKey{block: block, name: s}
	if h, ok := t.nameIndex[key]; ok {
		return h
	}
	entry := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(entry, uint16(len(s))<<6)
	copy(entry[2:], s)
	handle := uint32(block)<<16 | uint32(t.nameUsed[block]/2)
	t.Map(nameBlocks[block].Add(t.nameUsed[block]), entry)
	t.nameUsed[block] += uint64(len(entry)+1) &^ 1
	t.nameIndex[key] = handle
	return handle
}

// PutName writes the handle of s at addr.
func (t *Target) PutName(addr process.Address, s string) {
	t.PutUint32(addr, t.Name(s))
}

// NewClass writes a class record with its property list and returns its address.
func (t *Target) NewClass(name string, super process.Address, props ...Property) process.Address {
	cls := t.Alloc(classRecordSize)
	t.PutName(cls.Add(ObjectName), name)
	t.PutPointer(cls.Add(StructSuper), super)

	link := cls.Add(StructChildProps)
	for _, p := range props {
		prop := t.Alloc(propertyRecordSize)
		t.PutName(prop.Add(FieldName), p.Name)
		t.PutUint32(prop.Add(PropertyOffset), p.Offset)
		t.PutPointer(link, prop)
		link = prop.Add(PropertyLinkNext)
	}
	return cls
}

// NewObject allocates an instance of class and returns its address.
func (t *Target) NewObject(class process.Address, size uint64) process.Address {
	obj := t.Alloc(max(size, ObjectName+8))
	t.PutPointer(obj.Add(ObjectClass), class)
	return obj
}
