package metrics

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
)

// StatsdClient is an abstraction over a UDP statsd emitter.
type StatsdClient struct {
	backend     statsd.Statter
	defaultTags map[string]string
	sampleRate  float32
}

// NewStatsdClient creates a new statsd client pointing the specified listener/server address with
// an optional prefix and set of default tags to include with every metric.
func NewStatsdClient(addr string, prefix string, defaultTags map[string]string, sampleRate float32) (*StatsdClient, error) {
	client, err := statsd.NewClient(addr, prefix)
	if err != nil {
		return nil, fmt.Errorf("statsd: error creating statsd client: err=%v", err)
	}

	return newStatsdClient(client, defaultTags, sampleRate), nil
}

func newStatsdClient(backend statsd.Statter, defaultTags map[string]string, sampleRate float32) *StatsdClient {
	return &StatsdClient{
		backend:     backend,
		defaultTags: defaultTags,
		sampleRate:  sampleRate,
	}
}

// Count emits a count metric with a configurable delta.
func (c *StatsdClient) Count(metric string, delta int64, tags map[string]string) error {
	return c.backend.Inc(c.formatMetric(metric, tags), delta, c.sampleRate)
}

// Timing emits a time duration metric.
func (c *StatsdClient) Timing(metric string, duration time.Duration, tags map[string]string) error {
	return c.backend.TimingDuration(c.formatMetric(metric, tags), duration, c.sampleRate)
}

// Size emits a message size metric as the number of bytes. Sizes are aggregated like timings.
func (c *StatsdClient) Size(metric string, size int64, tags map[string]string) error {
	return c.backend.Timing(c.formatMetric(metric, tags), size, c.sampleRate)
}

// formatMetric serializes a metric and its tags (merged over the default tags) into the
// InfluxDB-style line the statsd backend expects. Tags are sorted by key so that the same
// metric always serializes identically.
func (c *StatsdClient) formatMetric(metric string, tags map[string]string) string {
	// Colons and similar characters are incompatible with the statsd protocol, so names and tags
	// are URL escaped.
	escapedMetric := url.QueryEscape(metric)

	if len(c.defaultTags)+len(tags) == 0 {
		return escapedMetric
	}

	mergedTags := make(map[string]string, len(c.defaultTags)+len(tags))
	for key, value := range c.defaultTags {
		mergedTags[key] = value
	}
	for key, value := range tags {
		mergedTags[key] = value
	}

	keys := make([]string, 0, len(mergedTags))
	for key := range mergedTags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	components := make([]string, 0, len(keys))
	for _, key := range keys {
		components = append(
			components,
			fmt.Sprintf("%s=%s", url.QueryEscape(key), url.QueryEscape(mergedTags[key])),
		)
	}

	return fmt.Sprintf("%s,%s", escapedMetric, strings.Join(components, ","))
}
