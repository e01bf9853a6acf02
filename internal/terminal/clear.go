// Package terminal holds small terminal helpers for interactive prompts.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 80

// Width returns the width of the terminal behind f, or 80 when f is not a
// terminal.
func Width(f *os.File) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// linesToClear is the number of rows a prompt of textLength characters
// occupied at width, plus the empty row the cursor sits on after Enter.
func linesToClear(textLength, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	rows := (textLength + width - 1) / width
	if rows < 1 {
		rows = 1
	}
	return rows + 1
}

// Clear erases the last textLength characters of prompt and input written
// to w, assuming a terminal width of width columns.
func Clear(w io.Writer, textLength, width int) {
	n := linesToClear(textLength, width)
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}

// ClearPreviousLines erases a prompt and the answer typed on stdout, so
// secrets typed in plain text do not stay on screen.
func ClearPreviousLines(textLength int) {
	Clear(os.Stdout, textLength, Width(os.Stdout))
}
