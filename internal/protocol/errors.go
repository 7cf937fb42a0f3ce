package protocol

import (
	"errors"
)

var (
	// ErrMalformedMessage is returned when a datagram cannot be decoded: the header is short, a
	// label or pointer runs past the buffer, the name never terminates, or the pointer-chain
	// guard trips.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrClientSend is returned when the final reply could not be delivered to the client.
	ErrClientSend = errors.New("client send failed")
)
