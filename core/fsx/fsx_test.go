package fsx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicCreatesAndOverwrites(t *testing.T) {
	target := filepath.Join(t.TempDir(), "trace.jsonl")

	if err := WriteFileAtomic(target, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	first, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read first write: %v", err)
	}
	if string(first) != "first\n" {
		t.Fatalf("unexpected first content: %q", string(first))
	}

	if err := WriteFileAtomic(target, []byte("second\n"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}
	second, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read second write: %v", err)
	}
	if string(second) != "second\n" {
		t.Fatalf("unexpected second content: %q", string(second))
	}
}

func TestWriteFileAtomicMode(t *testing.T) {
	target := filepath.Join(t.TempDir(), "trace.jsonl")

	if err := WriteFileAtomic(target, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600 got %#o", info.Mode().Perm())
	}
}

func TestAtomicFileAbortKeepsDestination(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "trace.jsonl")
	if err := os.WriteFile(target, []byte("original\n"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	file, err := CreateAtomic(target, 0o600)
	if err != nil {
		t.Fatalf("create atomic: %v", err)
	}
	if _, err := file.Write([]byte("partial")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := file.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if err := file.Abort(); err != nil {
		t.Fatalf("second abort: %v", err)
	}
	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "original\n" {
		t.Fatalf("destination changed: %q", string(content))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp file to be removed, found %d entries", len(entries))
	}
	if _, err := file.Write([]byte("late")); err == nil {
		t.Fatal("expected write after abort to fail")
	}
}

func TestCreateAtomicMissingDirectory(t *testing.T) {
	if _, err := CreateAtomic(filepath.Join(t.TempDir(), "missing", "trace.jsonl"), 0o600); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
	if _, err := CreateAtomic("", 0o600); err == nil {
		t.Fatal("expected error for empty path")
	}
}
