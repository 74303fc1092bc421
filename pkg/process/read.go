package process

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ReadPointer reads a pointer of the given width at addr.
func ReadPointer(r Reader, addr Address, size PointerSize) (Address, error) {
	switch size {
	case PointerSize32:
		var buf [4]byte
		if err := r.Read(addr, buf[:]); err != nil {
			return 0, err
		}
		return Address(binary.LittleEndian.Uint32(buf[:])), nil
	case PointerSize64:
		var buf [8]byte
		if err := r.Read(addr, buf[:]); err != nil {
			return 0, err
		}
		return Address(binary.LittleEndian.Uint64(buf[:])), nil
	default:
		return 0, errors.Errorf("invalid pointer size %d", size)
	}
}

// ReadUint16 reads a little-endian uint16 at addr.
func ReadUint16(r Reader, addr Address) (uint16, error) {
	var buf [2]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadUint32 reads a little-endian uint32 at addr.
func ReadUint32(r Reader, addr Address) (uint32, error) {
	var buf [4]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadInt32 reads a little-endian int32 at addr.
func ReadInt32(r Reader, addr Address) (int32, error) {
	v, err := ReadUint32(r, addr)
	return int32(v), err
}

// Read decodes a fixed-size little-endian value of type T at addr.
func Read[T any](r Reader, addr Address) (T, error) {
	var v T
	size := binary.Size(v)
	if size <= 0 {
		return v, errors.Errorf("%T is not a fixed-size type", v)
	}
	buf := make([]byte, size)
	if err := r.Read(addr, buf); err != nil {
		return v, err
	}
	if _, err := binary.Decode(buf, binary.LittleEndian, &v); err != nil {
		return v, errors.Wrapf(err, "failed to decode %T", v)
	}
	return v, nil
}

type readerAt struct {
	r    Reader
	base Address
}

// NewReaderAt returns an io.ReaderAt whose offset 0 is base in the foreign address space.
func NewReaderAt(r Reader, base Address) io.ReaderAt {
	return &readerAt{r: r, base: base}
}

func (ra *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := ra.r.Read(ra.base.Add(uint64(off)), p); err != nil {
		return 0, err
	}
	return len(p), nil
}
