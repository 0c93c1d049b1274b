package cplnative_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocpl/internal/platform/cplnative"
)

func TestCheckELFRejectsNonELF(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "fake.so")
	if err := os.WriteFile(path, []byte("recipes: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := cplnative.CheckELF(path)
	if err == nil || !strings.Contains(err.Error(), "not an ELF") {
		t.Fatalf("expected ELF error, got %v", err)
	}
}

func TestCheckELFRejectsExecutableWithoutEntryPoint(t *testing.T) {
	t.Parallel()
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("no executable path: %v", err)
	}
	if err := cplnative.CheckELF(exe); err == nil {
		t.Fatalf("test binary is not a CPL plugin")
	}
}
