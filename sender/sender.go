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

// Package sender pushes files to a receiver, one file per connection.
package sender

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/TheCacophonyProject/timelapse-receiver/framing"
	"github.com/TheCacophonyProject/timelapse-receiver/store"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryInterval = time.Second
	writeBufferSize      = 64 * 1024
)

// Config for a Sender. Timeout bounds dialing and each write, not the
// whole transfer, so large files to a rate limited receiver still get
// through.
type Config struct {
	Address       string
	Timeout       time.Duration
	Retries       int
	RetryInterval time.Duration
}

func New(conf Config, logger zerolog.Logger) *Sender {
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultTimeout
	}
	if conf.RetryInterval <= 0 {
		conf.RetryInterval = DefaultRetryInterval
	}
	if conf.Retries < 0 {
		conf.Retries = 0
	}
	return &Sender{
		conf: conf,
		log:  logger.With().Str("address", conf.Address).Logger(),
	}
}

type Sender struct {
	conf Config
	log  zerolog.Logger
}

// Send writes one file to the receiver: the header followed by exactly
// size bytes from r. The receiver sends nothing back, so a nil error
// only means the bytes were handed to the network.
func (s *Sender) Send(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := store.ValidateName(name); err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: s.conf.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.conf.Address)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w := bufio.NewWriterSize(&deadlineWriter{conn: conn, timeout: s.conf.Timeout}, writeBufferSize)
	if err := framing.WriteHeader(w, name, size); err != nil {
		return err
	}
	n, err := io.CopyN(w, r, size)
	if err == io.EOF {
		w.Flush()
		return fmt.Errorf("%s: only %d of %d bytes available", name, n, size)
	}
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return conn.Close()
}

// SendFile sends the file at path under its base name, retrying
// failures with exponential backoff.
func (s *Sender) SendFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if err := store.ValidateName(name); err != nil {
		return err
	}

	var size int64
	op := func() error {
		f, err := os.Open(path)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return backoff.Permanent(err)
		}
		size = info.Size()
		return s.Send(ctx, name, f, size)
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Str("filename", name).Dur("retry-in", wait).Msg("send failed")
	}

	if err := backoff.RetryNotify(op, s.newBackOff(ctx), notify); err != nil {
		return err
	}
	s.log.Info().Str("filename", name).Str("size", humanize.IBytes(uint64(size))).Msg("sent")
	return nil
}

func (s *Sender) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.conf.RetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.conf.Retries)), ctx)
}

// deadlineWriter pushes the write deadline forward before every write
// so only a stalled receiver times out.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if err := d.conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.conn.Write(p)
}
