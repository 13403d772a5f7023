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

package receiver

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/timelapse-receiver/framing"
	"github.com/TheCacophonyProject/timelapse-receiver/store"
)

type state int

const (
	stateInit state = iota
	stateReadFilename
	stateReadLength
	stateReadPayload
	statePersist
	stateDone
)

var stateNames = map[state]string{
	stateInit:         "INIT",
	stateReadFilename: "READ_FILENAME",
	stateReadLength:   "READ_LENGTH",
	stateReadPayload:  "READ_PAYLOAD",
	statePersist:      "PERSIST",
	stateDone:         "DONE",
}

func (s state) String() string {
	return stateNames[s]
}

// transfer tracks one connection's progress through the protocol.
type transfer struct {
	state          state
	filename       string
	declaredLength int64
	received       int64
	payload        io.Reader
}

// Read passes payload bytes through to the store, moving the transfer
// to PERSIST once the declared length has arrived.
func (t *transfer) Read(p []byte) (int, error) {
	n, err := t.payload.Read(p)
	t.received += int64(n)
	if t.received == t.declaredLength {
		t.state = statePersist
	}
	return n, err
}

// handleConn runs one connection through to completion. Errors are
// logged and reported to listeners; they never reach the accept loop.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Cancelling the server aborts the connection.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("connection accepted")

	t := &transfer{state: stateInit}
	start := time.Now()
	f, err := s.receive(conn, t)
	if err != nil {
		log.Warn().
			Err(err).
			Str("state", t.state.String()).
			Str("filename", t.filename).
			Msg("transfer failed")
		for _, l := range s.listeners {
			l.TransferFailed(t.filename, err)
		}
		return
	}

	t.state = stateDone
	log.Info().
		Str("filename", f.Name).
		Str("size", humanize.IBytes(uint64(f.Size))).
		Dur("took", time.Since(start)).
		Msg("file received")
	for _, l := range s.listeners {
		l.FileStored(f)
	}
}

func (s *Server) receive(conn net.Conn, t *transfer) (*store.StoredFile, error) {
	r := framing.NewReader(s.connReader(conn), s.conf.MaxFieldSize)

	t.state = stateReadFilename
	name, err := r.ReadField()
	if err != nil {
		return nil, err
	}
	t.filename = name

	// Reject bad names before any payload is consumed.
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}

	t.state = stateReadLength
	field, err := r.ReadField()
	if err != nil {
		return nil, err
	}
	size, err := framing.ParseLength(field)
	if err != nil {
		return nil, err
	}
	if s.conf.MaxFileSize > 0 && size > s.conf.MaxFileSize {
		return nil, &framing.FramingError{
			Msg: fmt.Sprintf("length %d exceeds limit of %d bytes", size, s.conf.MaxFileSize),
		}
	}
	t.declaredLength = size

	t.state = stateReadPayload
	if size == 0 {
		t.state = statePersist
	}
	t.payload = r.PayloadReader(size)
	return s.store.Write(name, t)
}

// connReader applies the per-read timeout and optional rate limit.
func (s *Server) connReader(conn net.Conn) io.Reader {
	var r io.Reader = &deadlineReader{conn: conn, timeout: s.conf.ReadTimeout}
	if rate := s.conf.MaxReceiveRate; rate > 0 {
		r = ratelimit.Reader(r, ratelimit.NewBucketWithRate(float64(rate), rate))
	}
	return r
}

// deadlineReader pushes the read deadline forward before every read so
// a stalled peer is dropped after timeout.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.conn.Read(p)
}
