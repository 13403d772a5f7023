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

package framing

import (
	"fmt"
	"io"
	"strconv"
)

// ParseLength parses the length field of a transfer header. Only plain
// decimal digits are accepted: no sign, no whitespace.
func ParseLength(field string) (int64, error) {
	if field == "" {
		return 0, &FramingError{Msg: "empty length field"}
	}
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return 0, &FramingError{Msg: fmt.Sprintf("invalid length %q", field)}
		}
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, &FramingError{Msg: fmt.Sprintf("invalid length %q", field), Err: err}
	}
	return n, nil
}

// WriteHeader writes the filename and length fields that precede a
// payload of size bytes.
func WriteHeader(w io.Writer, filename string, size int64) error {
	if size < 0 {
		return fmt.Errorf("negative payload size %d", size)
	}
	header := filename + Delimiter + strconv.FormatInt(size, 10) + Delimiter
	_, err := io.WriteString(w, header)
	return err
}
