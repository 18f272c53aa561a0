// Package fsx writes CLI output files so that a reader never observes a
// partially written file at the destination path.
package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AtomicFile buffers writes in a sibling temp file. The destination only
// changes on Commit; Abort discards everything written.
type AtomicFile struct {
	path     string
	tempPath string
	file     *os.File
	mode     os.FileMode
	closed   bool
}

func CreateAtomic(path string, mode os.FileMode) (*AtomicFile, error) {
	if path == "" {
		return nil, errors.New("output path is empty")
	}
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{
		path:     path,
		tempPath: tempFile.Name(),
		file:     tempFile,
		mode:     mode,
	}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	if a.closed {
		return 0, os.ErrClosed
	}
	return a.file.Write(p)
}

// Commit syncs the temp file and renames it over the destination.
func (a *AtomicFile) Commit() error {
	if a.closed {
		return os.ErrClosed
	}
	a.closed = true
	if err := a.file.Sync(); err != nil {
		_ = a.file.Close()
		_ = os.Remove(a.tempPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := a.file.Chmod(a.mode); err != nil {
		_ = a.file.Close()
		_ = os.Remove(a.tempPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := a.file.Close(); err != nil {
		_ = os.Remove(a.tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := replace(a.tempPath, a.path); err != nil {
		_ = os.Remove(a.tempPath)
		return err
	}

	// #nosec G304 -- parent directory path is derived from explicit caller-provided destination path.
	if dirHandle, err := os.Open(filepath.Dir(a.path)); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

// Abort removes the temp file. It is a no-op after Commit.
func (a *AtomicFile) Abort() error {
	if a.closed {
		return nil
	}
	a.closed = true
	_ = a.file.Close()
	if err := os.Remove(a.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

func replace(tempPath, path string) error {
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	return nil
}

func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	file, err := CreateAtomic(path, mode)
	if err != nil {
		return err
	}
	if _, err := file.Write(content); err != nil {
		_ = file.Abort()
		return fmt.Errorf("write temp file: %w", err)
	}
	return file.Commit()
}
