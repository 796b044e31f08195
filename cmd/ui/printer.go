package ui

import (
	"fmt"
	"strings"
)

// IsRawMode reports whether the terminal is in raw mode (set by the ESC
// interrupt monitor). Raw mode needs explicit CRLF line endings.
var IsRawMode = false

// crlf rewrites line endings for raw mode.
func crlf(s string) string {
	if !IsRawMode {
		return s
	}
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// Printf is fmt.Printf with raw-mode aware line endings.
func Printf(format string, a ...interface{}) {
	Print(fmt.Sprintf(format, a...))
}

// Print is fmt.Print with raw-mode aware line endings.
func Print(a ...interface{}) {
	fmt.Print(crlf(fmt.Sprint(a...)))
}

// Println is fmt.Println with raw-mode aware line endings, including the
// trailing newline it appends.
func Println(a ...interface{}) {
	fmt.Print(crlf(fmt.Sprint(a...) + "\n"))
}
