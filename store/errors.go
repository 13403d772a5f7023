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
	"errors"
	"fmt"
)

var (
	// ErrPathTraversal matches any *PathTraversalError.
	ErrPathTraversal = errors.New("filename not allowed")

	// ErrFilesystem matches any *FilesystemError.
	ErrFilesystem = errors.New("filesystem error")
)

// PathTraversalError is returned for filenames that aren't a bare file
// name inside the save directory.
type PathTraversalError struct {
	Name   string
	Reason string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("filename %q not allowed: %s", e.Name, e.Reason)
}

func (e *PathTraversalError) Is(target error) bool {
	return target == ErrPathTraversal
}

// FilesystemError wraps a failure to create the save directory or to
// write, sync or rename a file in it.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

func (e *FilesystemError) Is(target error) bool {
	return target == ErrFilesystem
}
