package process

import (
	"encoding/binary"
	"io"

	"github.com/Binject/debug/pe"
	"github.com/pkg/errors"
)

// machine types from the COFF file header
const (
	machineI386  = 0x14c
	machineARMNT = 0x1c4
	machineAMD64 = 0x8664
	machineARM64 = 0xaa64
)

const dosLfanew = 0x3c

// Image describes a PE image as it is mapped in the foreign process.
type Image struct {
	Base        Address
	Machine     uint16
	PointerSize PointerSize
	Size        uint64
}

// ReadImage parses the PE headers of the image mapped at base.
func ReadImage(r Reader, base Address) (*Image, error) {
	ra := NewReaderAt(r, base)

	machine, off, err := readMachine(ra)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse PE headers at %s", base)
	}

	img := &Image{Base: base, Machine: machine}

	switch machine {
	case machineAMD64:
		img.PointerSize = PointerSize64
	case machineARM64:
		// pe only knows the PE32+ layout through AMD64
		img.PointerSize = PointerSize64
		ra = &machineReaderAt{ReaderAt: ra, off: off, machine: machineAMD64}
	case machineI386, machineARMNT:
		img.PointerSize = PointerSize32
	default:
		return nil, errors.Errorf("unsupported machine type %#x", machine)
	}

	f, err := pe.NewFileFromMemory(ra)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse PE headers at %s", base)
	}

	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		img.Size = uint64(oh.SizeOfImage)
	case *pe.OptionalHeader32:
		img.Size = uint64(oh.SizeOfImage)
	default:
		return nil, errors.New("PE image has no optional header")
	}
	if img.Size == 0 {
		return nil, errors.New("PE image reports a zero SizeOfImage")
	}

	return img, nil
}

// readMachine returns the COFF Machine word and its offset from the image base.
func readMachine(ra io.ReaderAt) (uint16, int64, error) {
	var mz [2]byte
	if _, err := ra.ReadAt(mz[:], 0); err != nil {
		return 0, 0, err
	}
	if mz != [2]byte{'M', 'Z'} {
		return 0, 0, errors.Errorf("invalid DOS signature %q", mz[:])
	}
	var lfanew [4]byte
	if _, err := ra.ReadAt(lfanew[:], dosLfanew); err != nil {
		return 0, 0, err
	}
	off := int64(binary.LittleEndian.Uint32(lfanew[:]))

	var hdr [6]byte
	if _, err := ra.ReadAt(hdr[:], off); err != nil {
		return 0, 0, err
	}
	if [4]byte(hdr[:4]) != [4]byte{'P', 'E', 0, 0} {
		return 0, 0, errors.Errorf("invalid PE signature %v", hdr[:4])
	}
	return binary.LittleEndian.Uint16(hdr[4:]), off + 4, nil
}

// machineReaderAt presents a different Machine word to the header parser.
type machineReaderAt struct {
	io.ReaderAt
	off     int64
	machine uint16
}

func (m *machineReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := m.ReaderAt.ReadAt(p, off)
	var word [2]byte
	binary.LittleEndian.PutUint16(word[:], m.machine)
	for i, b := range word {
		if at := m.off + int64(i) - off; at >= 0 && at < int64(n) {
			p[at] = b
		}
	}
	return n, err
}
