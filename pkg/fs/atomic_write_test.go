package fs_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/docarchive/pkg/fs"
)

func TestAtomicWriteFile_DurableAfterSuccessfulWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader("hello")); err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := fs.NewReal().ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "hello" {
		t.Fatalf("content=%q, want %q", string(got), "hello")
	}
}

// TestAtomicWriteFile_CrashDuringRename_LeavesOriginalFileIntact simulates a
// crash at the last moment of AtomicWriter.Write, right as the temp file is
// renamed over the target, and asserts the target still holds its prior
// content rather than something truncated or empty.
func TestAtomicWriteFile_CrashDuringRename_LeavesOriginalFileIntact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "shard.db")
	real := fs.NewReal()

	if err := real.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed original file: %v", err)
	}

	faulty := fs.NewFaultInjector(real, fs.FaultOpRename, 1)
	writer := fs.NewAtomicWriter(faulty)

	err := writer.WriteWithDefaults(path, strings.NewReader("replacement"))
	if err == nil {
		t.Fatal("expected the injected rename failure to surface")
	}

	got, readErr := real.ReadFile(path)
	if readErr != nil {
		t.Fatalf("ReadFile: %v", readErr)
	}

	if string(got) != "original" {
		t.Fatalf("content after crashed rename=%q, want %q (original untouched)", string(got), "original")
	}

	entries, readDirErr := real.ReadDir(dir)
	if readDirErr != nil {
		t.Fatalf("ReadDir: %v", readDirErr)
	}

	if len(entries) != 1 {
		t.Fatalf("dir entries=%d, want 1 (temp file must be cleaned up after the failed rename)", len(entries))
	}
}

// TestAtomicWriteFile_CrashDuringFsync_LeavesOriginalFileIntact simulates a
// crash while the temp file's content is still being synced to disk, before
// the rename that would make it visible at path.
func TestAtomicWriteFile_CrashDuringFsync_LeavesOriginalFileIntact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "shard.db")
	real := fs.NewReal()

	if err := real.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed original file: %v", err)
	}

	faulty := fs.NewFaultInjector(real, fs.FaultOpSync, 1)
	writer := fs.NewAtomicWriter(faulty)

	err := writer.WriteWithDefaults(path, strings.NewReader("replacement"))
	if err == nil {
		t.Fatal("expected the injected fsync failure to surface")
	}

	got, readErr := real.ReadFile(path)
	if readErr != nil {
		t.Fatalf("ReadFile: %v", readErr)
	}

	if string(got) != "original" {
		t.Fatalf("content after crashed fsync=%q, want %q (original untouched)", string(got), "original")
	}
}
