package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// PrometheusProxyHook is an implementation of ProxyHook that aggregates metrics in memory for
// scraping in the Prometheus text exposition format.
type PrometheusProxyHook struct {
	set *vm.Set

	requestSize     *vm.Histogram
	responseSize    *vm.Histogram
	rtt             *vm.Histogram
	upstreamLatency *vm.Histogram
	relayed         *vm.Counter
	blocked         *vm.Counter
	malformed       *vm.Counter
	errors          *vm.Counter
}

// NewPrometheusProxyHook creates a hook backed by its own metrics set.
func NewPrometheusProxyHook() *PrometheusProxyHook {
	set := vm.NewSet()

	return &PrometheusProxyHook{
		set:             set,
		requestSize:     set.NewHistogram("dnsrelay_request_size_bytes"),
		responseSize:    set.NewHistogram("dnsrelay_response_size_bytes"),
		rtt:             set.NewHistogram("dnsrelay_rtt_seconds"),
		upstreamLatency: set.NewHistogram("dnsrelay_upstream_latency_seconds"),
		relayed:         set.NewCounter("dnsrelay_queries_total{outcome=\"relayed\"}"),
		blocked:         set.NewCounter("dnsrelay_queries_total{outcome=\"blocked\"}"),
		malformed:       set.NewCounter("dnsrelay_queries_total{outcome=\"malformed\"}"),
		errors:          set.NewCounter("dnsrelay_queries_total{outcome=\"error\"}"),
	}
}

// EmitRequestSize records the query size.
func (h *PrometheusProxyHook) EmitRequestSize(bytes int64, client net.Addr) {
	h.requestSize.Update(float64(bytes))
}

// EmitResponseSize records the upstream response size.
func (h *PrometheusProxyHook) EmitResponseSize(bytes int64, upstream net.Addr) {
	h.responseSize.Update(float64(bytes))
}

// EmitRTT records the end-to-end latency and counts the query as relayed.
func (h *PrometheusProxyHook) EmitRTT(latency time.Duration, client net.Addr, upstream net.Addr) {
	h.rtt.Update(latency.Seconds())
	h.relayed.Inc()
}

// EmitUpstreamLatency records the upstream exchange latency.
func (h *PrometheusProxyHook) EmitUpstreamLatency(latency time.Duration, client net.Addr, upstream net.Addr) {
	h.upstreamLatency.Update(latency.Seconds())
}

// EmitBlocked counts a blocked query.
func (h *PrometheusProxyHook) EmitBlocked(client net.Addr) {
	h.blocked.Inc()
}

// EmitMalformed counts a malformed query.
func (h *PrometheusProxyHook) EmitMalformed(client net.Addr) {
	h.malformed.Inc()
}

// EmitError counts a query that went unanswered due to an error.
func (h *PrometheusProxyHook) EmitError() {
	h.errors.Inc()
}

// WritePrometheus writes all metrics held by the hook in Prometheus text format.
func (h *PrometheusProxyHook) WritePrometheus(w io.Writer) {
	h.set.WritePrometheus(w)
}

// ServePrometheus exposes the hook's metrics on /metrics at the specified address until the
// context is cancelled.
func ServePrometheus(ctx context.Context, addr string, hook *PrometheusProxyHook) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		hook.WritePrometheus(w)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics: error serving prometheus metrics: addr=%s err=%v", addr, err)
	}

	return nil
}
