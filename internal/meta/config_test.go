package meta

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsrelay/internal/policy"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":53", cfg.Listener.UDP.Address)
	assert.Equal(t, "8.8.8.8:53", cfg.Upstream.Address)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, []string{"example.com"}, cfg.Policy.Block)
	assert.Equal(t, policy.Drop, cfg.Verdict())
	assert.Nil(t, cfg.Metrics)
	assert.Nil(t, cfg.Application)
}

func TestParseConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dnsrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
application:
  sentry_dsn: https://key@sentry.example/1
metrics:
  statsd:
    addr: 127.0.0.1:8125
    sample_rate: 0.5
  prometheus:
    addr: 127.0.0.1:9153
listener:
  udp:
    addr: 127.0.0.1:5353
    max_concurrent_queries: 4
    write_timeout: 2s
upstream:
  addr: 1.1.1.1:53
  timeout: 750ms
  max_response_size: 1232
policy:
  block: [ads.example.org]
  block_suffixes: [tracker.example.net]
  block_patterns: ["*.metrics.*"]
  blocklist_file: /etc/dnsrelay/blocklist.txt
  blocked_response: NXDOMAIN
`), 0o600))

	cfg, err := ParseConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://key@sentry.example/1", cfg.Application.SentryDSN)
	assert.Equal(t, "127.0.0.1:8125", cfg.Metrics.Statsd.Address)
	assert.Equal(t, 0.5, cfg.Metrics.Statsd.SampleRate)
	assert.Equal(t, "127.0.0.1:9153", cfg.Metrics.Prometheus.Address)
	assert.Equal(t, "127.0.0.1:5353", cfg.Listener.UDP.Address)
	assert.Equal(t, 4, cfg.Listener.UDP.MaxConcurrentQueries)
	assert.Equal(t, 2*time.Second, cfg.Listener.UDP.WriteTimeout)
	assert.Equal(t, "1.1.1.1:53", cfg.Upstream.Address)
	assert.Equal(t, 750*time.Millisecond, cfg.Upstream.Timeout)
	assert.Equal(t, 1232, cfg.Upstream.MaxResponseSize)
	assert.Equal(t, []string{"ads.example.org"}, cfg.Policy.Block)
	assert.Equal(t, []string{"tracker.example.net"}, cfg.Policy.BlockSuffixes)
	assert.Equal(t, []string{"*.metrics.*"}, cfg.Policy.BlockPatterns)
	assert.Equal(t, "/etc/dnsrelay/blocklist.txt", cfg.Policy.BlocklistFile)
	assert.Equal(t, policy.NXDomain, cfg.Verdict())
}

func TestParseConfigPartial(t *testing.T) {
	t.Parallel()

	cfg, err := parseConfig([]byte("upstream:\n  addr: 9.9.9.9:53\npolicy:\n  block_suffixes: [example.net]\n"))
	require.NoError(t, err)

	assert.Equal(t, ":53", cfg.Listener.UDP.Address)
	assert.Equal(t, "9.9.9.9:53", cfg.Upstream.Address)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Empty(t, cfg.Policy.Block)
	assert.Equal(t, policy.Drop, cfg.Verdict())

	cfg, err = parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = parseConfig([]byte("listener: [not, a, map]"))
	assert.Error(t, err)

	_, err = parseConfig([]byte(`
metrics:
  statsd:
    sample_rate: 1.5
  prometheus: {}
listener:
  udp: {}
upstream:
  addr: 8.8.8.8
policy:
  blocked_response: forward
`))
	require.Error(t, err)

	for _, msg := range []string{
		"missing metrics statsd address",
		"sample rate must be in range",
		"missing metrics prometheus address",
		"missing UDP server listening address",
		"upstream address must be host:port",
		"unknown blocked response: response=forward",
	} {
		assert.Contains(t, err.Error(), msg)
	}
}
