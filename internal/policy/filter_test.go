package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterExact(t *testing.T) {
	t.Parallel()

	filter, err := NewFilter(Rules{Exact: []string{"example.com"}}, Drop)
	require.NoError(t, err)

	assert.True(t, filter.IsBlocked("example.com"))
	assert.True(t, filter.IsBlocked("EXAMPLE.com"), "names compare case-insensitively")
	assert.True(t, filter.IsBlocked("example.com."), "trailing root dot is ignored")
	assert.False(t, filter.IsBlocked("www.example.com"), "exact rules do not cover subdomains")
	assert.False(t, filter.IsBlocked("openai.com"))
	assert.False(t, filter.IsBlocked(""))
}

func TestFilterIsPure(t *testing.T) {
	t.Parallel()

	filter, err := NewFilter(Rules{Exact: []string{"example.com"}}, Drop)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, filter.IsBlocked("example.com"))
		assert.False(t, filter.IsBlocked("example.org"))
	}
	assert.Equal(t, 1, filter.Size())
}

func TestFilterEmpty(t *testing.T) {
	t.Parallel()

	filter, err := NewFilter(Rules{}, Drop)
	require.NoError(t, err)

	assert.False(t, filter.IsBlocked("openai.com"))
	assert.Equal(t, Forward, filter.Evaluate("openai.com"))
	assert.Equal(t, 0, filter.Size())
}

func TestFilterSuffixes(t *testing.T) {
	t.Parallel()

	filter, err := NewFilter(Rules{Suffixes: []string{"ads.example.net"}}, NXDomain)
	require.NoError(t, err)

	assert.True(t, filter.IsBlocked("ads.example.net"))
	assert.True(t, filter.IsBlocked("cdn.ads.example.net"))
	assert.True(t, filter.IsBlocked("a.b.ADS.example.net."))
	assert.False(t, filter.IsBlocked("badads.example.net"), "suffixes are label aligned")
	assert.False(t, filter.IsBlocked("example.net"))
}

func TestFilterPatterns(t *testing.T) {
	t.Parallel()

	filter, err := NewFilter(Rules{Patterns: []string{"*.tracker.*", "telemetry.**"}}, Refuse)
	require.NoError(t, err)

	assert.True(t, filter.IsBlocked("ads.tracker.io"))
	assert.False(t, filter.IsBlocked("a.ads.tracker.io"), "single star stays within one label")
	assert.True(t, filter.IsBlocked("telemetry.vendor.example.com"))
	assert.False(t, filter.IsBlocked("tracker.io"))
}

func TestFilterInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewFilter(Rules{Patterns: []string{"[unterminated"}}, Drop)
	assert.Error(t, err)
}

func TestFilterRequiresBlockingVerdict(t *testing.T) {
	t.Parallel()

	_, err := NewFilter(Rules{}, Forward)
	assert.Error(t, err)
}

func TestFilterEvaluate(t *testing.T) {
	t.Parallel()

	filter, err := NewFilter(Rules{Exact: []string{"example.com"}}, Refuse)
	require.NoError(t, err)

	assert.Equal(t, Refuse, filter.Evaluate("example.com"))
	assert.Equal(t, Forward, filter.Evaluate("openai.com"))
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	verdict, ok := ParseVerdict("NXDOMAIN")
	assert.True(t, ok)
	assert.Equal(t, NXDomain, verdict)

	verdict, ok = ParseVerdict("refused")
	assert.True(t, ok)
	assert.Equal(t, Refuse, verdict)

	_, ok = ParseVerdict("forward")
	assert.False(t, ok, "forward is not a blocking response")

	assert.False(t, Forward.Blocks())
	assert.True(t, Drop.Blocks())
}
