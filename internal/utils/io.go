package utils

import (
	"fmt"
	"io"
	"os"
)

// ReadStdin reads all content from stdin. hint describes what the command
// expects to be piped and is included when stdin is a terminal.
func ReadStdin(hint string) ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stdin: %w", err)
	}

	// ModeCharDevice means stdin is connected to a terminal.
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no data provided on stdin (hint: %s)", hint)
	}

	return ReadAllNonEmpty(os.Stdin)
}

// ReadAllNonEmpty reads r to the end and fails if nothing was read.
func ReadAllNonEmpty(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input is empty")
	}
	return data, nil
}
