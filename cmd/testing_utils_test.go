package cmd

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/asterixix/tecza/internal/configs"
)

const testPassphrase = "correct horse battery staple"

var uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// fieldValue returns the first word after "label:" in output, or "".
func fieldValue(output, label string) string {
	for _, line := range strings.Split(output, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), label+":")
		if !ok {
			continue
		}
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// setupTestEnvironment isolates a test from the caller's configuration and
// returns a fresh home directory for --home.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	t.Setenv(configs.EnvIdentity, "")
	t.Setenv(configs.EnvStorePath, "")
	t.Setenv(configs.EnvMinIOEndpoint, "")
	t.Setenv("NO_COLOR", "1")
	t.Cleanup(ResetGlobalState)
	return t.TempDir()
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	outputChan := make(chan string, 2)
	collect := func(r io.Reader) {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outputChan <- buf.String()
	}
	go collect(stdoutReader)
	go collect(stderrReader)

	err := fn()

	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	first := <-outputChan
	second := <-outputChan
	return first + second, err
}

// runCLI executes tecza with args, feeding input on stdin, and returns the
// combined output.
func runCLI(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	ResetGlobalState()

	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create stdin pipe: %v", err)
	}
	go func() {
		_, _ = stdinWriter.WriteString(input)
		stdinWriter.Close()
	}()

	originalStdin := os.Stdin
	os.Stdin = stdinReader
	defer func() {
		os.Stdin = originalStdin
		stdinReader.Close()
	}()

	RootCmd.SetArgs(args)
	return captureOutput(func() error {
		return RootCmd.Execute()
	})
}

// mustRun is runCLI that fails the test on error.
func mustRun(t *testing.T, input string, args ...string) string {
	t.Helper()
	output, err := runCLI(t, input, args...)
	if err != nil {
		t.Fatalf("tecza %v failed: %v\nOutput: %s", args, err, output)
	}
	return output
}
