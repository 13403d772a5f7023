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
	"path/filepath"
	"strings"
)

// ValidateName checks that name is a bare file name which, joined to
// the save directory, stays inside it.
func ValidateName(name string) error {
	reject := func(reason string) error {
		return &PathTraversalError{Name: name, Reason: reason}
	}

	switch {
	case name == "":
		return reject("empty name")
	case name == "." || name == "..":
		return reject("directory reference")
	case strings.ContainsAny(name, `/\`):
		return reject("contains a path separator")
	case strings.ContainsRune(name, 0):
		return reject("contains a NUL byte")
	case hasDrivePrefix(name):
		return reject("has a drive prefix")
	case filepath.IsAbs(name) || filepath.Base(name) != name:
		return reject("not a bare file name")
	case strings.HasSuffix(name, "."+TempExt):
		return reject("reserved suffix")
	}
	return nil
}

func hasDrivePrefix(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
