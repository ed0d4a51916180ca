package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ASCIILogo is printed at the top of interactive runs
const ASCIILogo = `
   ┌─┐┬┌─┌─┐┌─┐┌┬┐┌─┐┬─┐  ┌┬┐┌─┐┬  ┌─┐┌┬┐┌─┐┬─┐
   └─┐├┴┐├┤ ├┤  │ ├┤ ├┬┘   ││├┤ │  ├┤  │ ├┤ ├┬┘
   └─┘┴ ┴└─┘└─┘ ┴ └─┘┴└─  ─┴┘└─┘┴─┘└─┘ ┴ └─┘┴└─
        bulk cleanup for your Bluesky account
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

var (
	mu        sync.Mutex
	out       io.Writer = os.Stdout
	quietMode bool
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// SetOutput redirects terminal output, mainly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetQuietMode suppresses everything but errors
func SetQuietMode(quiet bool) {
	mu.Lock()
	defer mu.Unlock()
	quietMode = quiet
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return quietMode
}

func write(always bool, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if quietMode && !always {
		return
	}
	fmt.Fprintf(out, format, args...)
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	write(false, "%s", Cyan(ASCIILogo))
}

// PrintError prints an error message in red. It is shown even in quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		write(true, "%s\n", Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		write(true, "%s\n", Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	write(false, "%s\n", Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	write(false, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		write(false, "%s\n", Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		write(false, "%s\n", Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	write(false, "%s\n", Magenta(msg))
}

// Print writes pre-rendered text unless quiet mode is on
func Print(text string) {
	write(false, "%s", text)
}
