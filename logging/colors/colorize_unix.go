//go:build !windows
// +build !windows

package colors

// EnableColor will enable ANSI coloring. Non-windows systems are assumed to support ANSI escape codes.
func EnableColor() {
	enabled = true
}
