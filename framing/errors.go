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
	"errors"
	"fmt"
)

var (
	// ErrFraming matches any *FramingError when used with errors.Is.
	ErrFraming = errors.New("framing error")

	// ErrSizeMismatch matches any *SizeMismatchError when used with errors.Is.
	ErrSizeMismatch = errors.New("payload size mismatch")
)

// FramingError is returned when a header field can't be extracted from
// the stream, or when the extracted field is malformed.
type FramingError struct {
	Msg string
	Err error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Msg, e.Err)
	}
	return "framing error: " + e.Msg
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

func (e *FramingError) Is(target error) bool {
	return target == ErrFraming
}

// SizeMismatchError is returned when the stream ends before the
// declared number of payload bytes has been read.
type SizeMismatchError struct {
	Expected int64
	Received int64
	Err      error
}

func (e *SizeMismatchError) Error() string {
	msg := fmt.Sprintf("payload size mismatch: expected %d bytes, received %d", e.Expected, e.Received)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SizeMismatchError) Unwrap() error {
	return e.Err
}

func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}
