package logger

import (
	"bytes"
	"os"
	"testing"
)

// captureStdout redirects stdout for the duration of fn so log noise does not
// end up in the test output. Output content is environment-dependent (colors),
// so these tests only assert that nothing panics.
func captureStdout(t *testing.T, fn func()) {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
}

func TestLevels_NoPanic(t *testing.T) {
	captureStdout(t, func() {
		Info("TAG", "message")
		Success("TAG", "message")
		Warn("TAG", "message")
		Error("TAG", "message")
	})
}

func TestBanner_NoPanic(t *testing.T) {
	captureStdout(t, func() {
		Banner("v1.0.0")
		Banner("")
	})
}

func TestSectionStatsServer_NoPanic(t *testing.T) {
	captureStdout(t, func() {
		Section("Test")
		Stats("key", 42)
		Server("127.0.0.1:1")
	})
}
