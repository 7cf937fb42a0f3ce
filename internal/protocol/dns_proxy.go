package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/getsentry/raven-go"
	"lib.kevinlin.info/aperture/lib"

	"dnsrelay/internal/log"
	"dnsrelay/internal/metrics"
	"dnsrelay/internal/network"
	"dnsrelay/internal/policy"
)

// Policy decides whether a decoded query name is forwarded or blocked.
type Policy interface {
	Evaluate(name string) policy.Verdict
}

// DNSProxyHandler is a semi-DNS-protocol-aware server handler that serves one query per call: it
// decodes just enough of the query to apply the block policy, then either drops it, answers it
// with a negative reply, or relays it byte for byte to the upstream and the upstream's reply byte
// for byte back to the client.
type DNSProxyHandler struct {
	Upstream       network.Client
	Policy         Policy
	ClientCxIOHook metrics.ConnectionIOHook
	ProxyHook      metrics.ProxyHook
	Logger         log.Logger
}

// ConsumeError logs the query error and reports it.
func (h *DNSProxyHandler) ConsumeError(ctx context.Context, err error) {
	h.Logger.Error("%v", err)
	h.ProxyHook.EmitError()

	raven.CaptureError(err, map[string]string{
		"class": errorClass(err),
	})
}

// Handle runs one iteration of the query state machine: receive, decode, apply policy, and then
// either drop, reply, or relay. Every failure abandons the query without a reply to the client and
// is returned to the caller; nothing is retained across calls.
func (h *DNSProxyHandler) Handle(ctx context.Context, clientConn net.Conn) error {
	/* Receive the query from the client */

	query, err := h.clientRead(clientConn)
	if err != nil {
		return err
	}

	// The read blocks until a datagram arrives, so latency is measured from here
	rttTxTimer := lib.NewStopwatch()
	client := clientConn.RemoteAddr()

	h.ProxyHook.EmitRequestSize(int64(len(query)), client)

	// The read buffer has one spare byte, so a datagram that filled it was truncated by the socket
	if len(query) > MaxMessageSize {
		h.ProxyHook.EmitMalformed(client)
		return fmt.Errorf(
			"dns_proxy: %w: dropping oversized query: client=%s max_bytes=%d",
			ErrMalformedMessage,
			client,
			MaxMessageSize,
		)
	}

	/* Decode the header and the first question's name */

	header, err := DecodeHeader(query)
	if err != nil {
		h.ProxyHook.EmitMalformed(client)
		return fmt.Errorf("dns_proxy: dropping undecodable query: client=%s err=%w", client, err)
	}

	name, _, err := DecodeName(query, HeaderSize)
	if err != nil {
		h.ProxyHook.EmitMalformed(client)
		return fmt.Errorf(
			"dns_proxy: dropping undecodable query: client=%s id=%d err=%w",
			client,
			header.ID,
			err,
		)
	}

	h.Logger.Info("dns_proxy: received query: name=%s id=%d client=%s", name, header.ID, client)
	h.Logger.Debug("dns_proxy: decoded query header: header=%v", header)

	/* Apply the block policy */

	switch verdict := h.Policy.Evaluate(name); verdict {
	case policy.Forward:
	case policy.Drop:
		h.ProxyHook.EmitBlocked(client)
		h.Logger.Info("dns_proxy: blocked query; dropping: name=%s client=%s", name, client)

		return nil
	default:
		h.ProxyHook.EmitBlocked(client)
		h.Logger.Info(
			"dns_proxy: blocked query; replying: name=%s client=%s response=%s",
			name,
			client,
			verdict,
		)

		reply, err := NegativeReply(query, verdict)
		if err != nil {
			return fmt.Errorf("dns_proxy: error building blocked reply: name=%s err=%w", name, err)
		}

		return h.clientWrite(clientConn, reply)
	}

	/* Relay the unmodified query to the upstream */

	upstreamTxTimer := lib.NewStopwatch()

	upstreamResp, err := h.Upstream.Exchange(ctx, query)
	if err != nil {
		return fmt.Errorf("dns_proxy: failed to forward query: name=%s err=%w", name, err)
	}

	h.ProxyHook.EmitUpstreamLatency(upstreamTxTimer.Elapsed(), client, h.Upstream.RemoteAddr())
	h.Logger.Debug(
		"dns_proxy: read upstream response: name=%s response_bytes=%d",
		name,
		len(upstreamResp),
	)

	/* Write the relayed response back to the client */

	if err := h.clientWrite(clientConn, upstreamResp); err != nil {
		return err
	}

	h.Logger.Debug("dns_proxy: completed write back to client: name=%s rtt=%v", name, rttTxTimer.Elapsed())

	h.ProxyHook.EmitResponseSize(int64(len(upstreamResp)), h.Upstream.RemoteAddr())
	h.ProxyHook.EmitRTT(rttTxTimer.Elapsed(), client, h.Upstream.RemoteAddr())

	return nil
}

// clientRead reads one query from the client into a buffer owned by this query alone.
func (h *DNSProxyHandler) clientRead(conn net.Conn) ([]byte, error) {
	clientReq := make([]byte, MaxMessageSize+1)

	clientReadBytes, err := conn.Read(clientReq)
	if err != nil {
		h.ClientCxIOHook.EmitReadError(conn.RemoteAddr())
		return nil, fmt.Errorf("dns_proxy: error reading request from client: err=%v", err)
	}

	// Trim the request buffer to only what the server was able to read
	return clientReq[:clientReadBytes], nil
}

// clientWrite writes a single reply back to the client.
func (h *DNSProxyHandler) clientWrite(conn net.Conn, resp []byte) error {
	clientWriteBytes, err := conn.Write(resp)
	if err != nil {
		h.ClientCxIOHook.EmitWriteError(conn.RemoteAddr())
		return fmt.Errorf(
			"dns_proxy: %w: client=%s err=%v",
			ErrClientSend,
			conn.RemoteAddr(),
			err,
		)
	}

	if clientWriteBytes != len(resp) {
		h.ClientCxIOHook.EmitWriteError(conn.RemoteAddr())
		return fmt.Errorf(
			"dns_proxy: %w: short write: client=%s expected=%d actual=%d",
			ErrClientSend,
			conn.RemoteAddr(),
			len(resp),
			clientWriteBytes,
		)
	}

	return nil
}

// errorClass names the taxonomy class of a query error for error reporting.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, network.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, network.ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, network.ErrUpstreamReceive):
		return "upstream_receive"
	case errors.Is(err, ErrClientSend):
		return "client_send"
	default:
		return "other"
	}
}
