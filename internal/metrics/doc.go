// Package metrics contains abstractions for emission of metrics generated throughout the lifetime
// of the relay. Metrics may be pushed to statsd, exposed for Prometheus scraping, or both.
//
// Metrics are generated at various points throughout a single query lifecycle, so emissions are
// structured around hooks: a hook interface defines methods that the handler and network layers
// invoke while serving a client query. Implementations of the hook interfaces decide where the
// metrics actually go.
package metrics
