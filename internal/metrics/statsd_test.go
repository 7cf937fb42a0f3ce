package metrics

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMetric(t *testing.T) {
	t.Parallel()

	client := newStatsdClient(nil, map[string]string{"host": "relay-1"}, 1)

	assert.Equal(
		t,
		"event.proxy.blocked,client=10.0.0.1,host=relay-1",
		client.formatMetric("event.proxy.blocked", map[string]string{"client": "10.0.0.1"}),
	)

	assert.Equal(
		t,
		"event.proxy.error,host=relay-1",
		client.formatMetric("event.proxy.error", nil),
	)

	assert.Equal(
		t,
		"event.proxy.error,host=override",
		client.formatMetric("event.proxy.error", map[string]string{"host": "override"}),
		"per-metric tags override default tags",
	)
}

func TestFormatMetricEscapes(t *testing.T) {
	t.Parallel()

	client := newStatsdClient(nil, nil, 1)

	assert.Equal(t, "latency.proxy.tx_rtt", client.formatMetric("latency.proxy.tx_rtt", nil))
	assert.Equal(
		t,
		"a%3Ab,addr=%3A%3A1",
		client.formatMetric("a:b", map[string]string{"addr": "::1"}),
	)
}

func TestAddrHelpers(t *testing.T) {
	t.Parallel()

	udp := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 53}
	tcp := &net.TCPAddr{IP: net.ParseIP("192.0.2.2"), Port: 53}

	assert.Equal(t, "192.0.2.1", ipFromAddr(udp))
	assert.Equal(t, "udp", transportFromAddr(udp))
	assert.Equal(t, "192.0.2.2", ipFromAddr(tcp))
	assert.Equal(t, "tcp", transportFromAddr(tcp))
	assert.Equal(t, "null", ipFromAddr(nil))
	assert.Equal(t, "null", transportFromAddr(nil))
}
