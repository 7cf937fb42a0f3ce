// Package network contains the socket plumbing for the relay: a UDP listener whose workers hand
// each inbound datagram to a handler through net.Conn semantics, and a UDP client that performs a
// single bounded exchange with the upstream resolver over a transient association.
package network
