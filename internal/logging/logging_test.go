package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lunadev/shellmux/internal/config"
)

func setLogPath(t *testing.T, path string) {
	t.Helper()
	old := config.Cfg.LogPath
	config.Cfg.LogPath = path
	t.Cleanup(func() { config.Cfg.LogPath = old })
}

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	setLogPath(t, path)

	content := "line1\nline2\nline3\nline4\nline5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	got, err := ReadTail(2)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if got != "line4\nline5" {
		t.Fatalf("ReadTail(2) = %q, want last two lines", got)
	}

	got, err = ReadTail(100)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if strings.Count(got, "\n") != 4 {
		t.Fatalf("ReadTail(100) = %q, want all five lines", got)
	}
}

func TestReadTailMissingFile(t *testing.T) {
	setLogPath(t, filepath.Join(t.TempDir(), "absent.log"))

	got, err := ReadTail(10)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if got != "" {
		t.Fatalf("ReadTail on missing file = %q, want empty", got)
	}
}

func TestSizeAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	setLogPath(t, path)

	if err := os.WriteFile(path, []byte("some log content\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	if Size() == 0 {
		t.Fatal("Size = 0 for non-empty log")
	}

	if err := Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if Size() != 0 {
		t.Fatalf("Size after Clear = %d, want 0", Size())
	}
}

func TestSizeMissingFile(t *testing.T) {
	setLogPath(t, filepath.Join(t.TempDir(), "absent.log"))
	if Size() != 0 {
		t.Fatal("Size on missing file should be 0")
	}
}

func TestEmptyPathIsNoOp(t *testing.T) {
	setLogPath(t, "")

	if got, err := ReadTail(10); err != nil || got != "" {
		t.Fatalf("ReadTail with no path = (%q, %v), want empty", got, err)
	}
	if Size() != 0 {
		t.Fatal("Size with no path should be 0")
	}
	if err := Clear(); err != nil {
		t.Fatalf("Clear with no path: %v", err)
	}
}
