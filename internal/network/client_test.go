package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsrelay/internal/metrics"
)

// startUpstream runs a UDP responder on loopback that answers each datagram with the output of
// respond. A nil response means the datagram is ignored.
func startUpstream(t *testing.T, respond func(req []byte) []byte) net.PacketConn {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}

			req := append([]byte(nil), buf[:n]...)
			if resp := respond(req); resp != nil {
				conn.WriteTo(resp, addr)
			}
		}
	}()

	return conn
}

func newTestClient(t *testing.T, addr string, timeout time.Duration) *UDPClient {
	t.Helper()

	client, err := NewUDPClient(
		addr,
		metrics.NewNoopConnectionLifecycleHook(),
		metrics.NewNoopConnectionIOHook(),
		UDPClientOpts{Timeout: timeout},
	)
	require.NoError(t, err)

	return client
}

func TestUDPClientExchange(t *testing.T) {
	t.Parallel()

	upstream := startUpstream(t, func(req []byte) []byte {
		return append([]byte("reply:"), req...)
	})

	client := newTestClient(t, upstream.LocalAddr().String(), time.Second)

	resp, err := client.Exchange(context.Background(), []byte{0xbe, 0xef, 0x01})
	require.NoError(t, err)
	assert.Equal(t, append([]byte("reply:"), 0xbe, 0xef, 0x01), resp)

	assert.Equal(t, Stats{SuccessfulExchanges: 1}, client.Stats())
	assert.Equal(t, upstream.LocalAddr().String(), client.RemoteAddr().String())
}

func TestUDPClientTimeout(t *testing.T) {
	t.Parallel()

	upstream := startUpstream(t, func(req []byte) []byte { return nil })
	client := newTestClient(t, upstream.LocalAddr().String(), 100*time.Millisecond)

	start := time.Now()
	_, err := client.Exchange(context.Background(), []byte{0x00, 0x01})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, Stats{FailedExchanges: 1}, client.Stats())
}

func TestUDPClientCancelled(t *testing.T) {
	t.Parallel()

	upstream := startUpstream(t, func(req []byte) []byte { return nil })
	client := newTestClient(t, upstream.LocalAddr().String(), 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := client.Exchange(ctx, []byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
}

func TestUDPClientUnreachable(t *testing.T) {
	t.Parallel()

	// Bind and release a port so that nothing is listening on it
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())

	client := newTestClient(t, addr, 200*time.Millisecond)

	_, err = client.Exchange(context.Background(), []byte{0x00, 0x01})
	require.Error(t, err)

	// Depending on the platform, the ICMP unreachable surfaces as a refused read or not at all
	assert.True(
		t,
		assertIsAny(err, ErrUpstreamReceive, ErrUpstreamTimeout, ErrUpstreamUnavailable),
		"unexpected error class: %v",
		err,
	)
	assert.Equal(t, 1, client.Stats().FailedExchanges)
}

func TestNewUDPClientInvalidAddress(t *testing.T) {
	t.Parallel()

	_, err := NewUDPClient(
		"not an address",
		metrics.NewNoopConnectionLifecycleHook(),
		metrics.NewNoopConnectionIOHook(),
		UDPClientOpts{},
	)
	assert.Error(t, err)
}

func assertIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
