package credstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/federicoroldos/sofull-site/internal/domain"
)

// File is a Store backed by one file per key under dir. Writes go through a
// temp file plus rename so racing readers never observe a torn value.
type File struct {
	dir  string
	subs subscribers
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	// Keys may contain separators; hex keeps the filename flat and safe.
	return filepath.Join(f.dir, hex.EncodeToString([]byte(key)))
}

func (f *File) Read(key string) (string, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

func (f *File) Write(key, value string) error {
	tmp, err := os.CreateTemp(f.dir, ".write-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	f.subs.notify(key)
	return nil
}

func (f *File) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	f.subs.notify(key)
	return nil
}

func (f *File) Subscribe(fn func(key string)) (cancel func()) {
	return f.subs.add(fn)
}
