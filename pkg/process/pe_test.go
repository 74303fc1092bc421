package process_test

import (
	"debug/pe"
	"testing"

	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/process/processtest"
)

func TestReadImage(t *testing.T) {
	const base = process.Address(0x140000000)

	tests := []struct {
		name    string
		machine uint16
		size    uint32
		want    process.PointerSize
		wantErr bool
	}{
		{name: "amd64", machine: pe.IMAGE_FILE_MACHINE_AMD64, size: 0x5000000, want: process.PointerSize64},
		{name: "arm64", machine: pe.IMAGE_FILE_MACHINE_ARM64, size: 0x1000, want: process.PointerSize64},
		{name: "i386", machine: pe.IMAGE_FILE_MACHINE_I386, size: 0x200000, want: process.PointerSize32},
		{name: "unknown machine", machine: pe.IMAGE_FILE_MACHINE_POWERPC, size: 0x1000, wantErr: true},
		{name: "zero size", machine: pe.IMAGE_FILE_MACHINE_AMD64, size: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := process.NewSnapshot()
			s.Map(base, processtest.NewImageHeader(tt.machine, tt.size))

			img, err := process.ReadImage(s, base)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadImage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if img.PointerSize != tt.want {
				t.Errorf("PointerSize = %d, want %d", img.PointerSize, tt.want)
			}
			if img.Size != uint64(tt.size) {
				t.Errorf("Size = %#x, want %#x", img.Size, tt.size)
			}
			if img.Base != base {
				t.Errorf("Base = %s, want %s", img.Base, base)
			}
			if img.Machine != tt.machine {
				t.Errorf("Machine = %#x, want %#x", img.Machine, tt.machine)
			}
		})
	}
}

func TestReadImageUnmapped(t *testing.T) {
	if _, err := process.ReadImage(process.NewSnapshot(), 0x140000000); err == nil {
		t.Error("ReadImage() on unmapped memory should fail")
	}
}

func TestReadImageARM64LeavesMemory(t *testing.T) {
	const base = process.Address(0x140000000)

	s := process.NewSnapshot()
	s.Map(base, processtest.NewImageHeader(pe.IMAGE_FILE_MACHINE_ARM64, 0x10000))

	img, err := process.ReadImage(s, base)
	if err != nil {
		t.Fatalf("ReadImage() error = %v", err)
	}
	if img.PointerSize != process.PointerSize64 || img.Size != 0x10000 {
		t.Errorf("ReadImage() = %+v", img)
	}

	machine, err := process.ReadUint16(s, base+processtest.MachineOffset)
	if err != nil {
		t.Fatal(err)
	}
	if machine != pe.IMAGE_FILE_MACHINE_ARM64 {
		t.Errorf("machine word in memory = %#x, want %#x", machine, pe.IMAGE_FILE_MACHINE_ARM64)
	}
}

func TestReadImageBadSignature(t *testing.T) {
	const base = process.Address(0x140000000)

	tests := []struct {
		name string
		off  process.Address
	}{
		{name: "dos", off: 0},
		{name: "pe", off: processtest.MachineOffset - 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := processtest.NewImageHeader(pe.IMAGE_FILE_MACHINE_AMD64, 0x1000)
			hdr[tt.off] = 'X'
			s := process.NewSnapshot()
			s.Map(base, hdr)
			if _, err := process.ReadImage(s, base); err == nil {
				t.Error("ReadImage() should reject a corrupted signature")
			}
		})
	}
}
