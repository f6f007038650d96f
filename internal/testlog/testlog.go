// Package testlog provides a hclog.Logger wired to (*testing.T).Logf, so log
// output from a package under test is interleaved with `go test -v` output
// instead of going to stderr unbuffered.
package testlog

import (
	"testing"

	"github.com/hashicorp/go-hclog"
)

// HCLogger returns a Logger that writes through t.Logf at Trace level.
func HCLogger(t testing.TB) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       t.Name(),
		Level:      hclog.Trace,
		Output:     testWriter{t},
		TimeFormat: "15:04:05.000",
	})
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Logf("%s", p)
	return len(p), nil
}
