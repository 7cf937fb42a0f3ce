package network

import (
	"errors"
)

var (
	// ErrUpstreamUnavailable is returned when the association with the upstream cannot be
	// established or the query cannot be sent.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout is returned when the upstream does not reply within the configured
	// timeout, or the exchange is cancelled.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrUpstreamReceive is returned when receiving the upstream reply fails for any reason other
	// than a timeout, such as an ICMP port unreachable surfacing as a refused connection.
	ErrUpstreamReceive = errors.New("upstream receive failed")
)
