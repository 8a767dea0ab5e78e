package library_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperengineering/marquee/internal/library"
)

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "library.db")
	if err := os.WriteFile(src, []byte("sqlite bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	dest := library.BackupPath(src, "2.0.0")
	if want := src + ".pre-2.0.0.bak"; dest != want {
		t.Errorf("BackupPath() = %q, want %q", dest, want)
	}

	copied, err := library.Backup(src, dest)
	if err != nil {
		t.Fatalf("Backup() unexpected error: %v", err)
	}
	if !copied {
		t.Fatal("Backup() copied = false, want true")
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(got) != "sqlite bytes" {
		t.Errorf("backup content = %q", got)
	}
}

func TestBackup_MissingSource(t *testing.T) {
	dir := t.TempDir()
	copied, err := library.Backup(filepath.Join(dir, "none.db"), filepath.Join(dir, "none.bak"))
	if err != nil {
		t.Fatalf("Backup() unexpected error: %v", err)
	}
	if copied {
		t.Error("Backup() copied = true for missing source")
	}
}
