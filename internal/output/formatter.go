// Package output renders previews and gates destructive actions behind
// operator confirmation.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

type Formatter struct {
	out io.Writer
	err io.Writer
	in  *bufio.Reader
}

// NewFormatter creates a formatter bound to the process's standard streams.
func NewFormatter() *Formatter {
	return NewFormatterWithStreams(os.Stdout, os.Stderr, os.Stdin)
}

// NewFormatterWithStreams creates a formatter with custom streams for
// testability.
func NewFormatterWithStreams(out, errW io.Writer, in io.Reader) *Formatter {
	return &Formatter{
		out: out,
		err: errW,
		in:  bufio.NewReader(in),
	}
}

// Table renders rows under a header with aligned columns.
func (f *Formatter) Table(header []string, rows [][]string) error {
	w := tabwriter.NewWriter(f.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// JSON pretty-prints a value, one per line block.
func (f *Formatter) JSON(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Printf writes a line to the output stream.
func (f *Formatter) Printf(format string, args ...any) {
	fmt.Fprintf(f.out, format+"\n", args...)
}

// Warning writes a warning line to the error stream.
func (f *Formatter) Warning(format string, args ...any) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// Confirm prompts the operator and reads a yes/no answer. Anything other
// than y/yes answers false.
func (f *Formatter) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(f.out, "%s [y/N]: ", prompt)
	line, err := f.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
