package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ASCIILogo is printed at the top of interactive commands
const ASCIILogo = `
    ╔══════════════════════════════════════════════════════════════╗
    ║  ██╗███╗   ███╗ ██████╗ ███████╗ ██████╗██████╗  █████╗ ██████╗  ║
    ║  ██║████╗ ████║██╔════╝ ██╔════╝██╔════╝██╔══██╗██╔══██╗██╔══██╗ ║
    ║  ██║██╔████╔██║██║  ███╗███████╗██║     ██████╔╝███████║██████╔╝ ║
    ║  ██║██║╚██╔╝██║██║   ██║╚════██║██║     ██╔══██╗██╔══██║██╔═══╝  ║
    ║  ██║██║ ╚═╝ ██║╚██████╔╝███████║╚██████╗██║  ██║██║  ██║██║      ║
    ║  ╚═╝╚═╝     ╚═╝ ╚═════╝ ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝      ║
    ║              LAZY GALLERY FOR ANY PAGE'S IMAGES                 ║
    ╚══════════════════════════════════════════════════════════════╝
`

var (
	outMu        sync.Mutex
	out          io.Writer = os.Stdout
	colorEnabled           = true
)

// SetOutput redirects the Print helpers, mainly for tests
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = w
}

// SetColor turns ANSI colors on or off
func SetColor(enabled bool) {
	outMu.Lock()
	defer outMu.Unlock()
	colorEnabled = enabled
}

func writer() io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	return out
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		outMu.Lock()
		enabled := colorEnabled
		outMu.Unlock()
		if !enabled {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	fmt.Fprint(writer(), Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(writer(), Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(writer(), Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(writer(), Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Fprintf(writer(), "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(writer(), Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(writer(), Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(writer(), Magenta(msg))
}
