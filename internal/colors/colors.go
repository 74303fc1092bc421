// Package colors provides the color styles used by the CLI.
//
// Colors are disabled automatically when stdout is not a terminal. Use Init to
// override the detected value from a CLI flag.
package colors

import "github.com/fatih/color"

// Init overrides the auto-detected color setting when forceColor is non-nil.
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

func Faint() *color.Color       { return color.New(color.Faint) }
func ItalicFaint() *color.Color { return color.New(color.Italic, color.Faint) }
func FaintHiBlue() *color.Color { return color.New(color.Faint, color.FgHiBlue) }

// Class styles class names.
func Class() *color.Color { return color.New(color.Bold, color.FgHiMagenta) }

// Field styles property names.
func Field() *color.Color { return color.New(color.FgHiCyan) }

// Offset styles byte offsets within an object.
func Offset() *color.Color { return color.New(color.FgHiYellow) }

// Address styles absolute addresses in the target.
func Address() *color.Color { return color.New(color.Faint, color.FgHiBlue) }

// Value styles decoded values.
func Value() *color.Color { return color.New(color.Bold, color.FgHiGreen) }
