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
	"bufio"
	"os"
)

const writeBufferSize = 256 * 1024

func newBufferedFile(filename string) (*bufferedFile, error) {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{
		f: f,
		w: bufio.NewWriterSize(f, writeBufferSize),
	}, nil
}

// bufferedFile is a buffered temp file. Write errors come back as
// *FilesystemError so they can be told apart from payload errors.
type bufferedFile struct {
	f *os.File
	w *bufio.Writer
}

func (bf *bufferedFile) Write(p []byte) (int, error) {
	n, err := bf.w.Write(p)
	if err != nil {
		return n, bf.wrap("write", err)
	}
	return n, nil
}

// Close flushes and syncs the file so it is complete on disk before
// being renamed.
func (bf *bufferedFile) Close() error {
	if err := bf.w.Flush(); err != nil {
		bf.f.Close()
		return bf.wrap("write", err)
	}
	if err := bf.f.Sync(); err != nil {
		bf.f.Close()
		return bf.wrap("sync", err)
	}
	if err := bf.f.Close(); err != nil {
		return bf.wrap("close", err)
	}
	return nil
}

// Abort closes the file without flushing.
func (bf *bufferedFile) Abort() {
	bf.f.Close()
}

func (bf *bufferedFile) wrap(op string, err error) error {
	return &FilesystemError{Op: op, Path: bf.f.Name(), Err: err}
}
