package meta

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"dnsrelay/internal/policy"
)

// ApplicationConfig is a top-level block for application-level meta configuration.
type ApplicationConfig struct {
	SentryDSN string `yaml:"sentry_dsn"`
}

// StatsdConfig describes the statsd metrics sink.
type StatsdConfig struct {
	Address    string  `yaml:"addr"`
	SampleRate float64 `yaml:"sample_rate"`
}

// PrometheusConfig describes the address on which metrics are exposed for scraping.
type PrometheusConfig struct {
	Address string `yaml:"addr"`
}

// MetricsConfig is a top-level block for metrics configuration.
type MetricsConfig struct {
	Statsd     *StatsdConfig     `yaml:"statsd"`
	Prometheus *PrometheusConfig `yaml:"prometheus"`
}

// UDPListenerConfig describes the UDP socket on which client queries are received.
type UDPListenerConfig struct {
	Address              string        `yaml:"addr"`
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// ListenerConfig is a top-level block for server listener configuration.
type ListenerConfig struct {
	UDP *UDPListenerConfig `yaml:"udp"`
}

// UpstreamConfig is a top-level block for upstream resolver configuration.
type UpstreamConfig struct {
	Address         string        `yaml:"addr"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxResponseSize int           `yaml:"max_response_size"`
}

// PolicyConfig is a top-level block for the query block policy.
type PolicyConfig struct {
	Block           []string `yaml:"block"`
	BlockSuffixes   []string `yaml:"block_suffixes"`
	BlockPatterns   []string `yaml:"block_patterns"`
	BlocklistFile   string   `yaml:"blocklist_file"`
	BlockedResponse string   `yaml:"blocked_response"`
}

// Config describes all application configuration options.
type Config struct {
	Application *ApplicationConfig `yaml:"application"`
	Metrics     *MetricsConfig     `yaml:"metrics"`
	Listener    *ListenerConfig    `yaml:"listener"`
	Upstream    *UpstreamConfig    `yaml:"upstream"`
	Policy      *PolicyConfig      `yaml:"policy"`
}

// DefaultConfig returns the configuration used when no config file is supplied: listen on port 53,
// relay to a public resolver, and drop queries for example.com.
func DefaultConfig() *Config {
	return &Config{
		Listener: &ListenerConfig{
			UDP: &UDPListenerConfig{Address: ":53"},
		},
		Upstream: &UpstreamConfig{
			Address: "8.8.8.8:53",
			Timeout: 5 * time.Second,
		},
		Policy: &PolicyConfig{
			Block:           []string{"example.com"},
			BlockedResponse: policy.Drop.String(),
		},
	}
}

// ParseConfig parses a Config struct instance from a file specified as a path on disk. An empty
// path yields DefaultConfig.
func ParseConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: error reading config: err=%v", err)
	}

	return parseConfig(data)
}

// parseConfig decodes, fills in, and validates a YAML document.
func parseConfig(data []byte) (*Config, error) {
	var cfg *Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: error parsing config: err=%v", err)
	}

	if cfg == nil {
		cfg = &Config{}
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Verdict returns the configured response to blocked queries.
func (c *Config) Verdict() policy.Verdict {
	verdict, _ := policy.ParseVerdict(c.Policy.BlockedResponse)

	return verdict
}

// applyDefaults fills in omitted top-level blocks and fields from DefaultConfig. A policy block
// that is present but lists no rules blocks nothing.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Listener == nil {
		c.Listener = defaults.Listener
	}

	if c.Upstream == nil {
		c.Upstream = defaults.Upstream
	}

	if c.Upstream.Address == "" {
		c.Upstream.Address = defaults.Upstream.Address
	}

	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = defaults.Upstream.Timeout
	}

	if c.Policy == nil {
		c.Policy = defaults.Policy
	}

	if c.Policy.BlockedResponse == "" {
		c.Policy.BlockedResponse = defaults.Policy.BlockedResponse
	}
}

// validate the contents of the configuration. Returns an error describing every problem found if
// validation failed; nil otherwise.
func (c *Config) validate() error {
	var result *multierror.Error

	/* Metrics */

	// Users can omit the metrics block entirely to disable metrics reporting.
	if c.Metrics != nil && c.Metrics.Statsd != nil {
		if c.Metrics.Statsd.Address == "" {
			result = multierror.Append(result, fmt.Errorf("config: missing metrics statsd address"))
		}

		if c.Metrics.Statsd.SampleRate < 0 || c.Metrics.Statsd.SampleRate > 1 {
			result = multierror.Append(
				result,
				fmt.Errorf("config: statsd sample rate must be in range [0.0, 1.0]"),
			)
		}
	}

	if c.Metrics != nil && c.Metrics.Prometheus != nil && c.Metrics.Prometheus.Address == "" {
		result = multierror.Append(result, fmt.Errorf("config: missing metrics prometheus address"))
	}

	/* Listener */

	if c.Listener.UDP == nil {
		result = multierror.Append(result, fmt.Errorf("config: a UDP listener must be specified"))
	} else if c.Listener.UDP.Address == "" {
		result = multierror.Append(result, fmt.Errorf("config: missing UDP server listening address"))
	}

	/* Upstream */

	if _, _, err := net.SplitHostPort(c.Upstream.Address); err != nil {
		result = multierror.Append(
			result,
			fmt.Errorf("config: upstream address must be host:port: addr=%s", c.Upstream.Address),
		)
	}

	if c.Upstream.Timeout < 0 {
		result = multierror.Append(
			result,
			fmt.Errorf("config: upstream timeout must not be negative: timeout=%v", c.Upstream.Timeout),
		)
	}

	/* Policy */

	if _, ok := policy.ParseVerdict(c.Policy.BlockedResponse); !ok {
		result = multierror.Append(
			result,
			fmt.Errorf("config: unknown blocked response: response=%s", c.Policy.BlockedResponse),
		)
	}

	return result.ErrorOrNil()
}
