package utils

import (
	"fmt"
	"strings"

	"github.com/blacktop/ureflect/internal/colors"
)

const bytesPerLine = 16

var (
	colorZero = colors.FaintHiBlue().SprintFunc()
	colorAddr = colors.ItalicFaint().SprintFunc()
)

// HexDump returns a `hexdump -C` style dump of data read from vaddr in the target.
// Zero bytes and unprintable characters are faint.
func HexDump(data []byte, vaddr uint64) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += bytesPerLine {
		line := data[off:min(off+bytesPerLine, len(data))]
		sb.WriteString(colorAddr(fmt.Sprintf("%016x:", vaddr+uint64(off))))
		sb.WriteString("  ")
		for i := range bytesPerLine {
			switch {
			case i >= len(line):
				sb.WriteString("   ")
			case line[i] == 0:
				sb.WriteString(colorZero("00") + " ")
			default:
				fmt.Fprintf(&sb, "%02x ", line[i])
			}
			if i == 7 || i == bytesPerLine-1 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('|')
		for _, b := range line {
			if b < 32 || b > 126 {
				sb.WriteString(colorZero("."))
			} else {
				sb.WriteByte(b)
			}
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}
