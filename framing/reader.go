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
	"bytes"
	"fmt"
	"io"
)

const (
	// Delimiter terminates each text field of the transfer header.
	Delimiter = "<<DELIMITER>>"

	// DefaultMaxFieldSize is the longest header field accepted when no
	// other limit is given.
	DefaultMaxFieldSize = 4096

	readChunkSize = 4096
)

// NewReader returns a Reader which extracts delimited fields and
// payloads from r. Fields longer than maxFieldSize bytes are rejected;
// zero means DefaultMaxFieldSize.
func NewReader(r io.Reader, maxFieldSize int) *Reader {
	if maxFieldSize <= 0 {
		maxFieldSize = DefaultMaxFieldSize
	}
	return &Reader{
		src:          r,
		delim:        []byte(Delimiter),
		maxFieldSize: maxFieldSize,
		chunk:        make([]byte, readChunkSize),
	}
}

// Reader holds the receive buffer for one connection. Bytes read past
// the end of a field stay in the buffer and are handed to the next
// ReadField or payload read.
type Reader struct {
	src          io.Reader
	delim        []byte
	maxFieldSize int
	buf          []byte
	chunk        []byte
	err          error
}

// ReadField reads until the delimiter is seen and returns everything
// before it. The whole accumulated buffer is searched so a delimiter
// split across reads is still found.
func (r *Reader) ReadField() (string, error) {
	start := 0
	for {
		if i := bytes.Index(r.buf[start:], r.delim); i >= 0 {
			i += start
			if i > r.maxFieldSize {
				return "", r.fieldTooLong()
			}
			field := string(r.buf[:i])
			r.buf = append(r.buf[:0], r.buf[i+len(r.delim):]...)
			return field, nil
		}

		// Only the tail could still hold the start of a delimiter.
		start = len(r.buf) - len(r.delim) + 1
		if start < 0 {
			start = 0
		}
		if start > r.maxFieldSize {
			return "", r.fieldTooLong()
		}

		if r.err != nil {
			if r.err == io.EOF {
				return "", &FramingError{Msg: "stream closed before delimiter"}
			}
			return "", &FramingError{Msg: "reading field", Err: r.err}
		}
		r.fill()
	}
}

// Buffered returns the number of bytes read from the stream but not
// yet consumed.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// ReadPayload returns exactly n bytes, starting with any buffered
// bytes. It fails with a *SizeMismatchError if the stream ends early.
func (r *Reader) ReadPayload(n int64) ([]byte, error) {
	out := make([]byte, 0, minInt64(n, 1<<20))
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r.PayloadReader(n)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PayloadReader returns an io.Reader yielding exactly n bytes from the
// stream before returning io.EOF. If the stream ends first, Read
// returns a *SizeMismatchError.
func (r *Reader) PayloadReader(n int64) io.Reader {
	return &payloadReader{
		r:         r,
		expected:  n,
		remaining: n,
	}
}

func (r *Reader) fill() {
	n, err := r.src.Read(r.chunk)
	r.buf = append(r.buf, r.chunk[:n]...)
	if err != nil {
		r.err = err
	}
}

func (r *Reader) fieldTooLong() error {
	return &FramingError{Msg: fmt.Sprintf("field longer than %d bytes", r.maxFieldSize)}
}

type payloadReader struct {
	r         *Reader
	expected  int64
	remaining int64
}

func (p *payloadReader) Read(b []byte) (int, error) {
	if p.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(b)) > p.remaining {
		b = b[:p.remaining]
	}

	var n int
	if len(p.r.buf) > 0 {
		n = copy(b, p.r.buf)
		p.r.buf = p.r.buf[n:]
	} else {
		if p.r.err != nil {
			return 0, p.mismatch()
		}
		var err error
		n, err = p.r.src.Read(b)
		if err != nil {
			p.r.err = err
		}
		if n == 0 && err != nil {
			return 0, p.mismatch()
		}
	}
	p.remaining -= int64(n)
	return n, nil
}

func (p *payloadReader) mismatch() error {
	err := p.r.err
	if err == io.EOF {
		err = nil
	}
	return &SizeMismatchError{
		Expected: p.expected,
		Received: p.expected - p.remaining,
		Err:      err,
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
