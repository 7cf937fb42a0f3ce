package network

import (
	"fmt"
	"net"
	"time"
)

// UDPConn is an abstraction over a UDP net.PacketConn to give it net.Conn-like semantics for a
// single query. It statefully tracks the sender of the first datagram read, so that a subsequent
// write replies to that same client.
type UDPConn struct {
	conn         net.PacketConn
	writeTimeout time.Duration
	remote       net.Addr
}

// NewUDPConn creates a UDPConn from a backing net.PacketConn. There is no read timeout: a blocked
// read is the listening state of the server, and it is interrupted on shutdown.
func NewUDPConn(conn net.PacketConn, writeTimeout time.Duration) *UDPConn {
	return &UDPConn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Read receives one datagram. The sender address is statefully tracked as a struct member; a
// UDPConn serves exactly one query, so a second read is an error.
func (c *UDPConn) Read(buf []byte) (n int, err error) {
	if c.remote != nil {
		return 0, fmt.Errorf("conn: already associated with a transaction")
	}

	n, c.remote, err = c.conn.ReadFrom(buf)

	return
}

// Write sends a datagram to the client from which data was read. It is an error to write to a
// connection without a prior read from a remote client.
func (c *UDPConn) Write(buf []byte) (n int, err error) {
	if c.remote == nil {
		return 0, fmt.Errorf("conn: no remote associated with this connection")
	}

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}

	return c.conn.WriteTo(buf, c.remote)
}

// Close is a noop: the listening socket is shared by every query and owned by the server.
func (c *UDPConn) Close() error {
	return nil
}

// LocalAddr obtains the listening socket's local address.
func (c *UDPConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr obtains the address of the client that sent the query, or nil before a read.
func (c *UDPConn) RemoteAddr() net.Addr {
	return c.remote
}

// SetDeadline is unsupported on a shared listening socket; it noops.
func (c *UDPConn) SetDeadline(t time.Time) error {
	return nil
}

// SetReadDeadline is unsupported on a shared listening socket; it noops.
func (c *UDPConn) SetReadDeadline(t time.Time) error {
	return nil
}

// SetWriteDeadline is unsupported on a shared listening socket; it noops. Writes are bounded by
// the configured write timeout instead.
func (c *UDPConn) SetWriteDeadline(t time.Time) error {
	return nil
}
