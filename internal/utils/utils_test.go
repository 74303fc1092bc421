package utils

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestConvertStrToInt(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    uint64
		wantErr bool
	}{
		{name: "hex", in: "0x140000000", want: 0x140000000},
		{name: "upper hex", in: "0XDC0", want: 0xDC0},
		{name: "decimal", in: "1464", want: 1464},
		{name: "padded", in: " 0x10 ", want: 0x10},
		{name: "bare hex digits", in: "dc0", wantErr: true},
		{name: "empty hex", in: "0x", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertStrToInt(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConvertStrToInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ConvertStrToInt() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestPad(t *testing.T) {
	if Pad(0) != " " || Pad(3) != "   " {
		t.Errorf("Pad() = %q, %q", Pad(0), Pad(3))
	}
}

func TestHexDump(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()
	color.NoColor = true

	data := []byte("Pawn\x00\x00\x00\x00Experience")
	got := HexDump(data, 0x1000)
	want := "0000000000001000:  50 61 77 6e 00 00 00 00  45 78 70 65 72 69 65 6e  |Pawn....Experien|\n" +
		"0000000000001010:  63 65                                             |ce|\n"
	if got != want {
		t.Errorf("HexDump() =\n%s\nwant\n%s", got, want)
	}
	if HexDump(nil, 0) != "" {
		t.Error("HexDump(nil) should be empty")
	}
	if !strings.HasSuffix(HexDump([]byte{0}, 0), "|.|\n") {
		t.Errorf("HexDump() = %q", HexDump([]byte{0}, 0))
	}
}
