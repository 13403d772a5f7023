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
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/TheCacophonyProject/timelapse-receiver/loglimiter"
	"github.com/TheCacophonyProject/timelapse-receiver/store"
)

const (
	acceptRetryDelay   = 100 * time.Millisecond
	acceptLogInterval  = time.Minute
	defaultMaxInFlight = 16
)

// TransferListener is told about the outcome of every transfer. It is
// called from the connection's goroutine so implementations must not
// block for long and must be safe for concurrent use.
type TransferListener interface {
	FileStored(f *store.StoredFile)
	TransferFailed(filename string, err error)
}

// New returns a Server for conf. Listeners are notified after each
// transfer in the order given.
func New(conf Config, logger zerolog.Logger, listeners ...TransferListener) *Server {
	if conf.MaxConnections < 1 {
		conf.MaxConnections = defaultMaxInFlight
	}
	if conf.ReadTimeout <= 0 {
		conf.ReadTimeout = DefaultReadTimeout
	}
	return &Server{
		conf:         conf,
		store:        store.New(conf.SaveDir, conf.MinDiskSpace),
		log:          logger,
		acceptLogger: loglimiter.New(acceptLogInterval, logger),
		listeners:    listeners,
		sem:          semaphore.NewWeighted(int64(conf.MaxConnections)),
	}
}

// Server accepts connections and hands each one to its own goroutine.
// A failed transfer only ever closes its own connection.
type Server struct {
	conf         Config
	store        *store.Store
	log          zerolog.Logger
	acceptLogger *loglimiter.LogLimiter
	listeners    []TransferListener
	sem          *semaphore.Weighted

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// Store returns the store received files are written to.
func (s *Server) Store() *store.Store {
	return s.store
}

// Listen binds the listening socket. A failure here is the only error
// that stops the server from serving.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.conf.ListenAddr())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds then serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop until ctx is cancelled or Close is
// called. It waits for in-flight connections before returning.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Info().Str("address", ln.Addr().String()).Msg("listening")
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.acceptLogger.Printf("socket accept failed: %v", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting new connections. Connections already accepted
// are left to finish; cancel the Serve context to abort them.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.listener == nil {
		return nil
	}
	s.closed = true
	return s.listener.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
