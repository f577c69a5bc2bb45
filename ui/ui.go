// Package ui carries the debugger's console output helpers: colored printf,
// error lines, section rules, and hex dumps.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
)

func LogError(msg string, a ...interface{}) {
	fmt.Printf("%s[ERROR]%s %s\n", ColorRed, ColorReset, fmt.Sprintf(msg, a...))
}

// Printf highlights the usual numeric verbs in cyan and %s in green before
// formatting.
func Printf(msg string, a ...interface{}) {
	msg = strings.ReplaceAll(msg, "%d", "\033[36m%d\033[0m")
	msg = strings.ReplaceAll(msg, "0x%016x", "\033[36m0x%016x\033[0m")
	msg = strings.ReplaceAll(msg, "%016x", "\033[36m%016x\033[0m")
	msg = strings.ReplaceAll(msg, "%x", "\033[36m%x\033[0m")
	msg = strings.ReplaceAll(msg, "%s", "\033[32m%s\033[0m")

	fmt.Printf(msg, a...)
}

// HLine draws a centered [msg] rule across the terminal width when stdout
// is a terminal.
func HLine(msg string) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err == nil && w > len(msg)+2 {
			pad := strings.Repeat("-", (w-len(msg)-2)/2)
			fmt.Printf(pad + "[" + msg + "]" + pad + "\n")
			return
		}
	}
	fmt.Printf("[" + msg + "]\n")
}

// HexDump writes 16-byte rows as "address: hex bytes  |ascii|".
func HexDump(w io.Writer, addr uint64, data []byte) {
	for i := 0; i < len(data); i += 16 {
		fmt.Fprintf(w, "%016x: ", addr+uint64(i))

		for j := 0; j < 16; j++ {
			if i+j < len(data) {
				fmt.Fprintf(w, "%02x ", data[i+j])
			} else {
				fmt.Fprintf(w, "   ")
			}
		}

		fmt.Fprintf(w, " |")
		for j := 0; j < 16 && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b <= 126 {
				fmt.Fprintf(w, "%c", b)
			} else {
				fmt.Fprintf(w, ".")
			}
		}
		fmt.Fprintf(w, "|\n")
	}
}
