package utils

import (
	"strconv"
	"strings"

	"github.com/apex/log/handlers/cli"
	"github.com/pkg/errors"
)

var normalPadding = cli.Default.Padding

// Indent returns a wrapper around a log function that pads its output by level.
func Indent(f func(s string), level int) func(string) {
	return func(s string) {
		cli.Default.Padding = normalPadding * level
		f(s)
		cli.Default.Padding = normalPadding
	}
}

// Pad creates left padding for printf members
func Pad(length int) string {
	if length > 0 {
		return strings.Repeat(" ", length)
	}
	return " "
}

// ConvertStrToInt converts an address or size string to uint64.
// A 0x prefix selects hexadecimal, anything else is decimal.
func ConvertStrToInt(intStr string) (uint64, error) {
	intStr = strings.TrimSpace(intStr)
	if hex, ok := strings.CutPrefix(strings.ToLower(intStr), "0x"); ok {
		out, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid hex integer %q", intStr)
		}
		return out, nil
	}
	out, err := strconv.ParseUint(intStr, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer %q", intStr)
	}
	return out, nil
}
