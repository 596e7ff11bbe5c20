package colors

import "fmt"

// enabled describes whether ANSI escape codes are emitted by Colorize
var enabled bool

// DisableColor will disable ANSI coloring for all subsequent calls to Colorize.
func DisableColor() {
	enabled = false
}

// Enabled returns whether ANSI coloring is currently enabled.
func Enabled() bool {
	return enabled
}

// Colorize returns the string s wrapped in ANSI code c, or s unchanged if coloring is disabled.
// Source: https://github.com/rs/zerolog/blob/4fff5db29c3403bc26dee9895e12a108aacc0203/console.go
func Colorize(s any, c Color) string {
	if !enabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
