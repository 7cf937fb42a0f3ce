package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBlocklist(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"# advertising",
		"ads.example.com",
		"",
		"   tracker.example.org   # inline note",
		"#disabled.example.net",
	}, "\n")

	names, err := LoadBlocklist(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"ads.example.com", "tracker.example.org"}, names)
}

func TestLoadBlocklistFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blocklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("example.com\n"), 0o600))

	names, err := LoadBlocklistFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, names)

	_, err = LoadBlocklistFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
