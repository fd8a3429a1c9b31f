package fs

import (
	"fmt"
	"os"
	"sync/atomic"
)

// FaultOp identifies an AtomicWriter step that [FaultInjector] can crash.
type FaultOp string

// Valid FaultOp values for [NewFaultInjector].
const (
	FaultOpWrite  FaultOp = "write"  // File.Write on the temp file
	FaultOpSync   FaultOp = "sync"   // File.Sync on the temp file
	FaultOpRename FaultOp = "rename" // FS.Rename of the temp file onto the target path
)

// FaultInjector wraps an [FS] and fails the Nth call to a chosen operation,
// simulating a crash at that point in [AtomicWriter.Write]'s
// write-temp/fsync/rename/fsync-dir sequence.
//
// One built with after == 0 passes every call through unmodified. The zero
// value has no underlying FS and cannot be used.
type FaultInjector struct {
	fs FS

	op    FaultOp
	after uint64
	count atomic.Uint64
}

// NewFaultInjector returns a FaultInjector delegating to fs that fails the
// after'th call to op with a synthetic I/O error. after == 0 disables
// injection.
func NewFaultInjector(fs FS, op FaultOp, after uint64) *FaultInjector {
	return &FaultInjector{fs: fs, op: op, after: after}
}

func (f *FaultInjector) trigger(op FaultOp) bool {
	if f.after == 0 || op != f.op {
		return false
	}

	return f.count.Add(1) == f.after
}

func (f *FaultInjector) Open(path string) (File, error) { return f.fs.Open(path) }

func (f *FaultInjector) Create(path string) (File, error) { return f.fs.Create(path) }

func (f *FaultInjector) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	file, err := f.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultFile{File: file, injector: f}, nil
}

func (f *FaultInjector) ReadFile(path string) ([]byte, error) { return f.fs.ReadFile(path) }

func (f *FaultInjector) WriteFile(path string, data []byte, perm os.FileMode) error {
	return f.fs.WriteFile(path, data, perm)
}

func (f *FaultInjector) ReadDir(path string) ([]os.DirEntry, error) { return f.fs.ReadDir(path) }

func (f *FaultInjector) MkdirAll(path string, perm os.FileMode) error {
	return f.fs.MkdirAll(path, perm)
}

func (f *FaultInjector) Stat(path string) (os.FileInfo, error) { return f.fs.Stat(path) }

func (f *FaultInjector) Exists(path string) (bool, error) { return f.fs.Exists(path) }

func (f *FaultInjector) Remove(path string) error { return f.fs.Remove(path) }

func (f *FaultInjector) RemoveAll(path string) error { return f.fs.RemoveAll(path) }

func (f *FaultInjector) Rename(oldpath, newpath string) error {
	if f.trigger(FaultOpRename) {
		return fmt.Errorf("faultinjector: simulated crash during rename %q -> %q: %w", oldpath, newpath, os.ErrInvalid)
	}

	return f.fs.Rename(oldpath, newpath)
}

// faultFile wraps a [File] so FaultInjector can crash an in-flight Write or
// Sync on the temp file AtomicWriter is still holding open.
type faultFile struct {
	File
	injector *FaultInjector
}

func (f *faultFile) Write(p []byte) (int, error) {
	if f.injector.trigger(FaultOpWrite) {
		return 0, fmt.Errorf("faultinjector: simulated crash during write: %w", os.ErrClosed)
	}

	return f.File.Write(p)
}

func (f *faultFile) Sync() error {
	if f.injector.trigger(FaultOpSync) {
		return fmt.Errorf("faultinjector: simulated crash during fsync: %w", os.ErrClosed)
	}

	return f.File.Sync()
}

// Compile-time interface check.
var _ FS = (*FaultInjector)(nil)
