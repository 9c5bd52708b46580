package msg

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Output is where all operator-facing messages go. Tests swap it out.
var Output io.Writer = os.Stdout

func line(prefix, format string, a ...any) {
	fmt.Fprint(Output, prefix)
	fmt.Fprint(Output, ": ")
	fmt.Fprintf(Output, format, a...)
	fmt.Fprint(Output, "\n")
}

func Error(format string, a ...any) {
	line(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	line(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	line(color.RedString("fatal"), format, a...)
	os.Exit(1)
}

func Info(format string, a ...any) {
	line(color.HiGreenString("info"), format, a...)
}

// Step prints a right-aligned green verb followed by a subject, e.g.
// "   Compiling 1520 sources".
func Step(verb, format string, a ...any) {
	fmt.Fprintf(Output, "%12s %s\n", color.HiGreenString(verb), fmt.Sprintf(format, a...))
}

// Diagnostics writes toolchain output verbatim, indented under the message
// that introduced it.
func Diagnostics(out []byte) {
	if len(out) == 0 {
		return
	}
	w := &IndentWriter{Indent: "    ", W: Output}
	w.Write(out)
	if out[len(out)-1] != '\n' {
		fmt.Fprintln(Output)
	}
}

type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	start := 0
	for i, c := range p {
		if !w.didIndent {
			if _, err := io.WriteString(w.W, w.Indent); err != nil {
				return start, err
			}
			w.didIndent = true
		}
		if c == '\n' || c == '\r' {
			if _, err := w.W.Write(p[start : i+1]); err != nil {
				return start, err
			}
			start = i + 1
			w.didIndent = false
		}
	}
	if start < len(p) {
		if _, err := w.W.Write(p[start:]); err != nil {
			return start, err
		}
	}
	return len(p), nil
}
