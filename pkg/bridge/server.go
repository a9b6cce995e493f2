/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/carverauto/devicebridge/pkg/logger"
)

const acceptRetryDelay = 100 * time.Millisecond

var errNotListening = errors.New("server is not listening")

// Server accepts device connections and runs a Handler for each one in its own goroutine.
type Server struct {
	addr           string
	maxConnections int
	handler        *Handler
	logger         logger.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server for addr. maxConnections of zero leaves the number of
// concurrent connections unbounded.
func NewServer(addr string, maxConnections int, handler *Handler, log logger.Logger) *Server {
	return &Server{
		addr:           addr,
		maxConnections: maxConnections,
		handler:        handler,
		logger:         log,
	}
}

// Preflight verifies the CRM credentials once.
func (s *Server) Preflight(ctx context.Context) error {
	return s.handler.Preflight(ctx)
}

// Listen binds the device port.
func (s *Server) Listen(ctx context.Context) error {
	lc := &net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListen, err)
	}

	if s.maxConnections > 0 {
		lis = netutil.LimitListener(lis, s.maxConnections)
	}

	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", lis.Addr().String()).
		Int("max_connections", s.maxConnections).
		Msg("Listening for devices")

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

// Serve accepts connections until ctx is done, then closes the listener, ends every
// connection and waits for their handlers. It returns nil on shutdown and an ErrListen
// error when accepting fails for any other reason.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()

	if lis == nil {
		return fmt.Errorf("%w: %w", ErrListen, errNotListening)
	}

	connCtx, cancel := context.WithCancel(ctx)

	defer func() {
		cancel()
		s.wg.Wait()
	}()

	stop := context.AfterFunc(ctx, func() { _ = lis.Close() })
	defer stop()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Msg("Device listener stopped")
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn().Err(err).Msg("Temporary accept error, retrying")

				select {
				case <-ctx.Done():
				case <-time.After(acceptRetryDelay):
				}

				continue
			}

			_ = lis.Close()

			return fmt.Errorf("%w: %w", ErrListen, err)
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			if err := s.handler.Handle(connCtx, conn); err != nil {
				s.logger.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Connection dropped")
			}
		}()
	}
}
