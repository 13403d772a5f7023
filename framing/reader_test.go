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
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns the data in pieces of the given sizes, then
// whatever is left in one final read.
type chunkReader struct {
	data   []byte
	chunks []int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := len(c.data)
	if len(c.chunks) > 0 {
		n = c.chunks[0]
		c.chunks = c.chunks[1:]
		if n > len(c.data) {
			n = len(c.data)
		}
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestReadSingleTransfer(t *testing.T) {
	r := NewReader(strings.NewReader("photo.jpg<<DELIMITER>>5<<DELIMITER>>hello"), 0)

	name, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", name)

	length, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, "5", length)

	payload, err := r.ReadPayload(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestDelimiterSplitAcrossReads(t *testing.T) {
	data := "frame_0001.jpg<<DELIMITER>>3<<DELIMITER>>abc"

	// Split the first delimiter at every possible position.
	for split := 1; split < len(Delimiter); split++ {
		first := len("frame_0001.jpg") + split
		r := NewReader(&chunkReader{data: []byte(data), chunks: []int{first}}, 0)

		name, err := r.ReadField()
		require.NoError(t, err, "split at %d", split)
		assert.Equal(t, "frame_0001.jpg", name, "split at %d", split)

		length, err := r.ReadField()
		require.NoError(t, err)
		assert.Equal(t, "3", length)

		payload, err := r.ReadPayload(3)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), payload)
	}
}

func TestOneByteReads(t *testing.T) {
	data := "a.jpg<<DELIMITER>>11<<DELIMITER>>hello world"
	r := NewReader(iotest.OneByteReader(strings.NewReader(data)), 0)

	name, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", name)

	length, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, "11", length)

	payload, err := r.ReadPayload(11)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), payload)
}

func TestLeftoverBytesKeptForPayload(t *testing.T) {
	// Everything arrives in a single read.
	r := NewReader(strings.NewReader("x<<DELIMITER>>4<<DELIMITER>>data"), 0)

	_, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, len("4<<DELIMITER>>data"), r.Buffered())

	_, err = r.ReadField()
	require.NoError(t, err)

	payload, err := r.ReadPayload(4)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), payload)
}

func TestPayloadContainingDelimiter(t *testing.T) {
	payload := "abc" + Delimiter + "def"
	data := "f.bin" + Delimiter + "19" + Delimiter + payload
	r := NewReader(strings.NewReader(data), 0)

	_, err := r.ReadField()
	require.NoError(t, err)
	_, err = r.ReadField()
	require.NoError(t, err)

	got, err := r.ReadPayload(int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestStreamClosedBeforeDelimiter(t *testing.T) {
	r := NewReader(strings.NewReader("photo.jpg<<DELIM"), 0)

	_, err := r.ReadField()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFraming))
	assert.False(t, errors.Is(err, ErrSizeMismatch))
}

func TestEmptyStream(t *testing.T) {
	r := NewReader(strings.NewReader(""), 0)
	_, err := r.ReadField()
	assert.True(t, errors.Is(err, ErrFraming))
}

func TestFieldTooLong(t *testing.T) {
	r := NewReader(strings.NewReader(strings.Repeat("a", 100)+Delimiter), 16)
	_, err := r.ReadField()
	assert.True(t, errors.Is(err, ErrFraming))

	// Without a delimiter the reader gives up once the limit is passed.
	r = NewReader(iotest.OneByteReader(strings.NewReader(strings.Repeat("a", 100))), 16)
	_, err = r.ReadField()
	assert.True(t, errors.Is(err, ErrFraming))
}

func TestFieldAtLimit(t *testing.T) {
	r := NewReader(strings.NewReader(strings.Repeat("a", 16)+Delimiter), 16)
	field, err := r.ReadField()
	require.NoError(t, err)
	assert.Len(t, field, 16)
}

func TestReadErrorIsFramingError(t *testing.T) {
	cause := errors.New("connection reset")
	r := NewReader(iotest.ErrReader(cause), 0)
	_, err := r.ReadField()
	assert.True(t, errors.Is(err, ErrFraming))
	assert.True(t, errors.Is(err, cause))
}

func TestShortPayload(t *testing.T) {
	r := NewReader(strings.NewReader("a.jpg<<DELIMITER>>10<<DELIMITER>>abc"), 0)
	_, err := r.ReadField()
	require.NoError(t, err)
	_, err = r.ReadField()
	require.NoError(t, err)

	_, err = r.ReadPayload(10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeMismatch))

	var mismatch *SizeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(10), mismatch.Expected)
	assert.Equal(t, int64(3), mismatch.Received)
}

func TestZeroLengthPayload(t *testing.T) {
	r := NewReader(strings.NewReader("empty<<DELIMITER>>0<<DELIMITER>>"), 0)
	_, err := r.ReadField()
	require.NoError(t, err)
	_, err = r.ReadField()
	require.NoError(t, err)

	payload, err := r.ReadPayload(0)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestPayloadReaderStopsAtLength(t *testing.T) {
	r := NewReader(strings.NewReader("trailing bytes"), 0)
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r.PayloadReader(8))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "trailing", buf.String())
}

func TestParseLength(t *testing.T) {
	n, err := ParseLength("12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), n)

	n, err = ParseLength("0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for _, bad := range []string{"", "-5", "+5", "5 ", " 5", "0x10", "five", "1.5", "99999999999999999999"} {
		_, err := ParseLength(bad)
		assert.True(t, errors.Is(err, ErrFraming), "%q should be rejected", bad)
	}
}

func TestWriteHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, "photo.jpg", 5))
	buf.WriteString("hello")
	assert.Equal(t, "photo.jpg<<DELIMITER>>5<<DELIMITER>>hello", buf.String())

	assert.Error(t, WriteHeader(&buf, "x", -1))
}
