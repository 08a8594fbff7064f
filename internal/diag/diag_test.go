package diag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rcsv.log")

	lg, closer := New(Config{File: path, MaxSizeMB: 1})
	lg.Printf("WARNING: failed to sync %s", "a.csv")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "[rcsv] ") || !strings.Contains(string(data), "failed to sync a.csv") {
		t.Errorf("log file = %q", data)
	}
}

func TestNew_Quiet(t *testing.T) {
	lg, closer := New(Config{Quiet: true, File: filepath.Join(t.TempDir(), "x.log")})
	lg.Printf("dropped")
	if err := closer.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}
