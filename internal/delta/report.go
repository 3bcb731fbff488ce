package delta

import (
	"fmt"
	"io"
	"os"
)

// Reporter tees the human-readable run log: every line goes to the report
// file, and the headline lines additionally to the console.
type Reporter struct {
	file    *os.File
	console io.Writer
}

// OpenReporter creates the report file, truncating any previous run's.
func OpenReporter(path string) (*Reporter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	return &Reporter{file: f, console: os.Stdout}, nil
}

// Printf writes a line to both the console and the report file.
func (r *Reporter) Printf(format string, args ...any) {
	fmt.Fprintf(r.console, format+"\n", args...)
	fmt.Fprintf(r.file, format+"\n", args...)
}

// Reportf writes a line to the report file only.
func (r *Reporter) Reportf(format string, args ...any) {
	fmt.Fprintf(r.file, format+"\n", args...)
}

// Close flushes and closes the report file.
func (r *Reporter) Close() error {
	return r.file.Close()
}
