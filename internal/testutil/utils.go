package testutil

import (
	"io"
	"log"
	"strings"
	"testing"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// TestLogger returns a logger that writes through t.Log. Output is discarded
// once the test finishes, since room and client goroutines may outlive it.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(testWriter{t}, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(io.Discard)
	})
	return logger
}
