package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"lib.kevinlin.info/aperture/lib"

	"dnsrelay/internal/metrics"
)

const (
	defaultExchangeTimeout = 5 * time.Second
	defaultMaxResponseSize = 512
)

// Client defines the interface for an upstream resolver client.
type Client interface {
	// Exchange sends a raw query to the upstream and returns its raw reply, verbatim.
	Exchange(ctx context.Context, req []byte) ([]byte, error)

	// RemoteAddr returns the address of the upstream resolver.
	RemoteAddr() net.Addr

	// Stats returns historical client stats.
	Stats() Stats
}

// Stats formalizes stats tracked per-client.
type Stats struct {
	// SuccessfulExchanges is the number of queries for which the upstream returned a reply.
	SuccessfulExchanges int
	// FailedExchanges is the number of queries that could not be relayed.
	FailedExchanges int
}

// UDPClient relays queries to a single upstream resolver. Every exchange opens its own transient
// UDP association, so there is no connection state shared between queries.
type UDPClient struct {
	addr       *net.UDPAddr
	dialer     net.Dialer
	cxHook     metrics.ConnectionLifecycleHook
	ioHook     metrics.ConnectionIOHook
	opts       UDPClientOpts
	stats      Stats
	statsMutex sync.RWMutex
}

// UDPClientOpts formalizes UDP client configuration options.
type UDPClientOpts struct {
	// Timeout bounds a single exchange, from opening the association to receiving the reply. A
	// deadline carried by the exchange context is honored if it is earlier.
	Timeout time.Duration
	// MaxResponseSize is the size of the buffer the reply is received into. Longer replies are
	// truncated by the socket.
	MaxResponseSize int
}

// NewUDPClient creates a UDPClient for the upstream at addr, which must be a host:port pair. The
// address is resolved once, at construction.
func NewUDPClient(addr string, cxHook metrics.ConnectionLifecycleHook, ioHook metrics.ConnectionIOHook, opts UDPClientOpts) (*UDPClient, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: error resolving upstream address: addr=%s err=%v", addr, err)
	}

	// Sane option defaults
	if opts.Timeout <= 0 {
		opts.Timeout = defaultExchangeTimeout
	}

	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = defaultMaxResponseSize
	}

	return &UDPClient{
		addr:   udpAddr,
		cxHook: cxHook,
		ioHook: ioHook,
		opts:   opts,
	}, nil
}

// Exchange opens a new association with the upstream, sends req unmodified, and waits for exactly
// one reply datagram. The association is released on every return path.
func (c *UDPClient) Exchange(ctx context.Context, req []byte) (resp []byte, err error) {
	defer func() {
		c.statsMutex.Lock()
		defer c.statsMutex.Unlock()

		if err != nil {
			c.stats.FailedExchanges++
		} else {
			c.stats.SuccessfulExchanges++
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	dialTimer := lib.NewStopwatch()

	conn, err := c.dialer.DialContext(ctx, "udp", c.addr.String())
	if err != nil {
		c.cxHook.EmitConnectionError()
		return nil, fmt.Errorf("client: %w: addr=%s err=%v", ErrUpstreamUnavailable, c.addr, err)
	}

	c.cxHook.EmitConnectionOpen(dialTimer.Elapsed(), conn.RemoteAddr())

	defer func() {
		c.cxHook.EmitConnectionClose(conn.RemoteAddr())
		conn.Close()
	}()

	// The context deadline always exists here; it covers both the write and the read. Early
	// cancellation (for example, on shutdown) interrupts a blocked read.
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("client: %w: addr=%s err=%v", ErrUpstreamUnavailable, c.addr, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(req); err != nil {
		c.ioHook.EmitWriteError(conn.RemoteAddr())
		return nil, fmt.Errorf("client: %w: addr=%s err=%v", ErrUpstreamUnavailable, c.addr, err)
	}

	buf := make([]byte, c.opts.MaxResponseSize)

	n, err := conn.Read(buf)
	if err != nil {
		c.ioHook.EmitReadError(conn.RemoteAddr())

		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf(
				"client: %w: addr=%s timeout=%v err=%v",
				ErrUpstreamTimeout,
				c.addr,
				c.opts.Timeout,
				err,
			)
		}

		return nil, fmt.Errorf("client: %w: addr=%s err=%v", ErrUpstreamReceive, c.addr, err)
	}

	return buf[:n], nil
}

// RemoteAddr returns the resolved upstream address.
func (c *UDPClient) RemoteAddr() net.Addr {
	return c.addr
}

// Stats returns current client stats.
func (c *UDPClient) Stats() Stats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()

	return c.stats
}

// String returns a string representation of the client.
func (c *UDPClient) String() string {
	return fmt.Sprintf("UDPClient{addr: %s, timeout: %v}", c.addr, c.opts.Timeout)
}
