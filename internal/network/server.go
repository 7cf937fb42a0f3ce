package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tevino/abool"
	"golang.org/x/sync/errgroup"
)

// ServerHandler is a common interface that wraps logic for handling inbound queries.
type ServerHandler interface {
	// Handle describes the routine to run for a single query. The passed conn is a UDPConn that
	// has not yet been read from; the handler reads the query from it and writes at most one
	// reply to it.
	Handle(ctx context.Context, conn net.Conn) error

	// ConsumeError is a callback invoked when the handler returns an error. Errors never stop
	// the server.
	ConsumeError(ctx context.Context, err error)
}

// UDPServer describes a server that listens on a UDP address.
type UDPServer struct {
	addr     string
	opts     UDPServerOpts
	conn     net.PacketConn
	running  *abool.AtomicBool
	stopped  *abool.AtomicBool
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
	mutex    sync.Mutex
}

// UDPServerOpts formalizes UDP server configuration options.
type UDPServerOpts struct {
	// MaxConcurrentQueries configures the number of worker goroutines reading from the socket,
	// and thus the number of queries that may be in flight at once. A slow upstream exchange
	// occupies only the worker serving it.
	MaxConcurrentQueries int
	// WriteTimeout is the maximum amount of time the server is allowed to take to write a reply
	// back to a client, after which the server will consider the write to have failed.
	WriteTimeout time.Duration
}

// NewUDPServer creates a UDP server that will listen on the specified address.
func NewUDPServer(addr string, opts UDPServerOpts) *UDPServer {
	// Sane option defaults
	if opts.MaxConcurrentQueries <= 0 {
		opts.MaxConcurrentQueries = 16
	}

	return &UDPServer{
		addr:    addr,
		opts:    opts,
		running: abool.New(),
		stopped: abool.New(),
		done:    make(chan struct{}),
	}
}

// Listen binds the UDP socket. It returns an error if the address cannot be acquired.
func (s *UDPServer) Listen() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.conn != nil {
		return fmt.Errorf("server: already listening: addr=%s", s.conn.LocalAddr())
	}

	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on UDP socket: addr=%s err=%v", s.addr, err)
	}

	s.conn = conn

	return nil
}

// Addr returns the bound address of the socket, or nil if the server is not listening.
func (s *UDPServer) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.conn == nil {
		return nil
	}

	return s.conn.LocalAddr()
}

// Serve runs the worker goroutines against the bound socket, each of which serves queries one at a
// time with the specified handler. It blocks until Shutdown is called and every in-flight query has
// completed, then closes the socket. Serve returns immediately if Shutdown has already been called.
//
// The context passed to the handler is cancelled if Shutdown gives up waiting for in-flight
// queries, which releases any upstream exchange still in progress.
func (s *UDPServer) Serve(ctx context.Context, handler ServerHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mutex.Lock()
	conn := s.conn
	if conn != nil && s.cancel == nil {
		s.cancel = cancel
	}
	s.mutex.Unlock()

	if conn == nil {
		return fmt.Errorf("server: serve called before listen: addr=%s", s.addr)
	}

	if !s.running.SetToIf(false, true) {
		return fmt.Errorf("server: already serving: addr=%s", conn.LocalAddr())
	}

	defer s.doneOnce.Do(func() { close(s.done) })
	defer conn.Close()

	// Shutdown ran before the workers started
	if s.stopped.IsSet() {
		s.running.UnSet()
		return nil
	}

	var workers errgroup.Group

	for i := 0; i < s.opts.MaxConcurrentQueries; i++ {
		workers.Go(func() error {
			for s.running.IsSet() {
				udpConn := NewUDPConn(conn, s.opts.WriteTimeout)

				if err := handler.Handle(ctx, udpConn); err != nil {
					// A failed read after shutdown is the interrupt, not a client error
					if !s.running.IsSet() && udpConn.RemoteAddr() == nil {
						return nil
					}

					handler.ConsumeError(ctx, err)
				}
			}

			return nil
		})
	}

	return workers.Wait()
}

// ListenAndServe binds the socket and serves queries until Shutdown is called. It returns an
// error immediately if it fails to bind to the configured address.
func (s *UDPServer) ListenAndServe(ctx context.Context, handler ServerHandler) error {
	if err := s.Listen(); err != nil {
		return err
	}

	return s.Serve(ctx, handler)
}

// Shutdown stops accepting new queries and waits for in-flight queries to drain. If the context
// expires first, the socket is closed out from under the remaining queries, their contexts are
// cancelled, and the context error is returned. Calling Shutdown before Serve closes the socket
// and makes any later Serve return immediately.
func (s *UDPServer) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	conn := s.conn
	s.mutex.Unlock()

	if conn == nil {
		return nil
	}

	s.stopped.Set()

	if !s.running.SetToIf(true, false) {
		// Not serving yet, or already shut down
		conn.Close()
		return nil
	}

	// Unblock every worker parked in a read; the deadline is sticky, so workers that have not
	// yet started their next read also return immediately.
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return fmt.Errorf("server: error interrupting readers: err=%v", err)
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		conn.Close()

		s.mutex.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mutex.Unlock()

		return ctx.Err()
	}
}
