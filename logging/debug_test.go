package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDebugLogger(t *testing.T) (*DebugLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debug.log")
	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestDebugLoggerFilter(t *testing.T) {
	l, path := newTestDebugLogger(t)
	l.SetFilter("cip")

	l.Log("cip", "kept line")
	l.Log("tag", "dropped line")
	l.Log("eip", "implied carrier line")
	l.Close()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	s := string(content)
	if !strings.Contains(s, "kept line") {
		t.Errorf("filtered-in protocol missing")
	}
	if strings.Contains(s, "dropped line") {
		t.Errorf("filtered-out protocol present")
	}
	if !strings.Contains(s, "implied carrier line") {
		t.Errorf("carrier layer implied by cip filter missing")
	}
}

func TestDebugLoggerHexDump(t *testing.T) {
	l, path := newTestDebugLogger(t)
	l.LogTX("eip", []byte{0x65, 0x00, 0x04, 0x00})
	l.Close()

	content, _ := os.ReadFile(path)
	s := string(content)
	if !strings.Contains(s, "TX (4 bytes)") {
		t.Errorf("TX header missing: %s", s)
	}
	if !strings.Contains(s, "65 00 04 00") {
		t.Errorf("hex dump missing: %s", s)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	SetGlobalDebugLogger(nil)
	// Every helper must be a no-op without a registered logger.
	DebugLog("eip", "no logger")
	DebugTX("eip", []byte{1})
	DebugRX("eip", []byte{1})
	DebugConnect("eip", "addr")
	DebugError("eip", "ctx", nil)
}
