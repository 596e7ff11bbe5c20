package colors

// init will enable ANSI coloring where the terminal supports it. Unix systems support it by default while Windows
// needs a console mode change.
func init() {
	EnableColor()
}
