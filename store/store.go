// timelapse-receiver - receive timelapse frames pushed by capture devices
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
)

// TempExt is the extension of files still being received.
const TempExt = "receiving.temp"

// StoredFile describes a file which has been completely written under
// its final name.
type StoredFile struct {
	Name string
	Path string
	Size int64
}

// New returns a Store writing into dir. If minDiskSpace is non-zero,
// writes are refused when less than that many MB are free.
func New(dir string, minDiskSpace uint64) *Store {
	return &Store{
		dir:          dir,
		minDiskSpace: minDiskSpace,
	}
}

// Store persists received files into the save directory. Files are
// written under a temporary name and renamed into place, so the final
// name only ever refers to a complete file.
type Store struct {
	dir          string
	minDiskSpace uint64
}

// Dir returns the save directory.
func (s *Store) Dir() string {
	return s.dir
}

// WriteBytes stores data under name.
func (s *Store) WriteBytes(name string, data []byte) (*StoredFile, error) {
	return s.Write(name, bytes.NewReader(data))
}

// Write stores everything read from r under name. If r fails, the
// error from r is returned unchanged and nothing is left behind.
func (s *Store) Write(name string, r io.Reader) (*StoredFile, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	if err := s.checkDiskSpace(); err != nil {
		return nil, err
	}

	tempPath := filepath.Join(s.dir, newTempName())
	f, err := newBufferedFile(tempPath)
	if err != nil {
		return nil, &FilesystemError{Op: "create", Path: tempPath, Err: err}
	}

	size, err := io.Copy(f, r)
	if err == nil {
		err = f.Close()
	} else {
		f.Abort()
	}
	if err != nil {
		os.Remove(tempPath)
		return nil, err
	}

	finalPath := filepath.Join(s.dir, name)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return nil, &FilesystemError{Op: "rename", Path: finalPath, Err: err}
	}
	if err := syncDir(s.dir); err != nil {
		return nil, err
	}

	return &StoredFile{
		Name: name,
		Path: finalPath,
		Size: size,
	}, nil
}

// DeleteTempFiles removes partial files left behind by an earlier run.
func (s *Store) DeleteTempFiles() error {
	matches, _ := filepath.Glob(filepath.Join(s.dir, ".*."+TempExt))
	for _, filename := range matches {
		if err := os.Remove(filename); err != nil {
			return &FilesystemError{Op: "remove", Path: filename, Err: err}
		}
	}
	return nil
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: s.dir, Err: err}
	}
	return nil
}

func (s *Store) checkDiskSpace() error {
	if s.minDiskSpace == 0 {
		return nil
	}
	var fs syscall.Statfs_t
	if err := syscall.Statfs(s.dir, &fs); err != nil {
		return &FilesystemError{Op: "statfs", Path: s.dir, Err: err}
	}
	if free := fs.Bavail * uint64(fs.Bsize) / 1024 / 1024; free < s.minDiskSpace {
		return &FilesystemError{
			Op:   "statfs",
			Path: s.dir,
			Err:  fmt.Errorf("%d MB free, need %d MB", free, s.minDiskSpace),
		}
	}
	return nil
}

// newTempName doesn't include the target name so any name that fits
// the filesystem also fits while it is being received.
func newTempName() string {
	return fmt.Sprintf(".%s.%s", uuid.New().String(), TempExt)
}

// syncDir flushes dir's entries so a completed rename survives power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return &FilesystemError{Op: "sync", Path: dir, Err: err}
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return &FilesystemError{Op: "sync", Path: dir, Err: err}
	}
	return nil
}

// IsFilesystemError reports whether err came from the filesystem
// rather than from the payload source.
func IsFilesystemError(err error) bool {
	var fsErr *FilesystemError
	return errors.As(err, &fsErr)
}
