// Package protocol concerns itself primarily with DNS protocol-specific business logic. It contains
// a minimal wire codec (the fixed header and compressed domain names) and the handler that decides,
// per query, whether to drop, refuse, or relay a client request to the upstream resolver.
package protocol
