// Package fileutil writes quorum's on-disk state: config.yaml, the keystore
// and exported keysets.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Permissions for files that may hold key material or endpoints with
// credentials, and for the directories holding them.
const (
	PrivateFile os.FileMode = 0o600
	PrivateDir  os.FileMode = 0o700
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// WritePrivate creates path's directory if needed and replaces path with
// data, readable by the owner only.
func WritePrivate(path string, data []byte) error {
	if path == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), PrivateDir); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return WriteAtomic(path, data, PrivateFile)
}

// WriteAtomic replaces path with data. Readers see either the old content or
// the new one, never a partial write.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeSynced(tmp, data, perm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: path is chosen by the caller
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// writeSynced writes, chmods, fsyncs and closes f.
func writeSynced(f *os.File, data []byte, perm os.FileMode) error {
	steps := []struct {
		what string
		fn   func() error
	}{
		{"writing", func() error { _, err := f.Write(data); return err }},
		{"setting permissions on", func() error { return f.Chmod(perm) }},
		{"syncing", f.Sync},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			_ = f.Close()
			return fmt.Errorf("%s temp file: %w", s.what, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return nil
}

// syncDir makes a rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // G304: dir is derived from the caller's path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
