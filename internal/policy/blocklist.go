package policy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadBlocklist reads one name per line. Blank lines and lines starting with "#" are skipped, and
// only the first whitespace-separated field of a line is kept, which allows trailing comments.
func LoadBlocklist(r io.Reader) ([]string, error) {
	var names []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		names = append(names, strings.Fields(line)[0])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("policy: error reading blocklist: err=%v", err)
	}

	return names, nil
}

// LoadBlocklistFile reads a blocklist from a path on disk.
func LoadBlocklistFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("policy: error opening blocklist: path=%s err=%v", path, err)
	}
	defer file.Close()

	return LoadBlocklist(file)
}
