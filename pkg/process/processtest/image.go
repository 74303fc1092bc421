// Package processtest builds synthetic process images for tests.
package processtest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
)

// HeaderSize is the number of bytes NewImageHeader returns.
const HeaderSize = 0x400

const peOffset = 0x80

// MachineOffset is the offset of the COFF Machine word in the header.
const MachineOffset = peOffset + 4

// NewImageHeader returns the mapped headers of a PE image for the given machine
// type that reports sizeOfImage bytes. It has no sections.
func NewImageHeader(machine uint16, sizeOfImage uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{'M', 'Z'})
	buf.Write(make([]byte, 0x3c-buf.Len()))
	binary.Write(&buf, binary.LittleEndian, uint32(peOffset))
	buf.Write(make([]byte, peOffset-buf.Len()))
	buf.Write([]byte{'P', 'E', 0, 0})

	is64 := machine == pe.IMAGE_FILE_MACHINE_AMD64 || machine == pe.IMAGE_FILE_MACHINE_ARM64

	fh := pe.FileHeader{
		Machine:         machine,
		Characteristics: pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	}
	if is64 {
		fh.SizeOfOptionalHeader = uint16(binary.Size(pe.OptionalHeader64{}))
		fh.Characteristics |= pe.IMAGE_FILE_LARGE_ADDRESS_AWARE
	} else {
		fh.SizeOfOptionalHeader = uint16(binary.Size(pe.OptionalHeader32{}))
		fh.Characteristics |= pe.IMAGE_FILE_32BIT_MACHINE
	}
	binary.Write(&buf, binary.LittleEndian, fh)

	if is64 {
		binary.Write(&buf, binary.LittleEndian, pe.OptionalHeader64{
			Magic:               0x20b,
			ImageBase:           0x140000000,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       HeaderSize,
			NumberOfRvaAndSizes: 16,
		})
	} else {
		binary.Write(&buf, binary.LittleEndian, pe.OptionalHeader32{
			Magic:               0x10b,
			ImageBase:           0x400000,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       HeaderSize,
			NumberOfRvaAndSizes: 16,
		})
	}

	buf.Write(make([]byte, HeaderSize-buf.Len()))
	return buf.Bytes()
}
