package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.m4b")
	dst := filepath.Join(dir, "dst.m4b")

	content := []byte("chapter one")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileVerified(src, dst, 0o664); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	if err := CopyFileVerified(filepath.Join(dir, "missing"), dst, 0o644); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("destination should not exist, stat err = %v", err)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp3")
	dst := filepath.Join(dir, "b.mp3")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := MoveFile(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("source should be gone after move")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
}

func TestErrnoClassification(t *testing.T) {
	wrapped := fmt.Errorf("rename: %w", &os.LinkError{Op: "rename", Old: "a", New: "b", Err: unix.EXDEV})
	if !IsCrossDevice(wrapped) {
		t.Fatal("expected EXDEV to be detected through wrapping")
	}
	if !IsNoSpace(&os.PathError{Op: "write", Path: "x", Err: unix.ENOSPC}) {
		t.Fatal("expected ENOSPC to be detected")
	}
	if IsNoSpace(errors.New("other")) {
		t.Fatal("plain errors are not disk-full")
	}
}

func TestFreeBytesWalksToExistingAncestor(t *testing.T) {
	dir := t.TempDir()
	free, err := FreeBytes(filepath.Join(dir, "not", "yet", "created"))
	if err != nil {
		t.Fatalf("FreeBytes: %v", err)
	}
	if free == 0 {
		t.Fatal("expected some free space on the temp filesystem")
	}
}

func TestTotalSize(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	if err := os.WriteFile(a, make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, make([]byte, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	total, err := TotalSize([]string{a, b, dir})
	if err != nil || total != 15 {
		t.Fatalf("TotalSize = %d, %v", total, err)
	}
}
