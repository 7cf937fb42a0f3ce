package policy

import (
	"fmt"
	"strings"

	"github.com/armon/go-radix"
	"github.com/gobwas/glob"
)

// Rules enumerates the names a Filter blocks.
type Rules struct {
	// Exact names are blocked only when the query name is equal to them.
	Exact []string
	// Suffixes block the name itself and every subdomain beneath it.
	Suffixes []string
	// Patterns are glob expressions evaluated label-wise: "*" matches within a single label and
	// "**" matches across labels.
	Patterns []string
}

// Filter is an immutable block policy. Comparisons follow DNS name equivalence: they are
// case-insensitive and ignore a trailing root dot.
type Filter struct {
	exact    map[string]struct{}
	suffixes *radix.Tree
	patterns []glob.Glob
	verdict  Verdict
}

// NewFilter compiles a set of rules into a Filter. Blocked names evaluate to the specified
// verdict, which must itself be a blocking verdict.
func NewFilter(rules Rules, verdict Verdict) (*Filter, error) {
	if !verdict.Blocks() {
		return nil, fmt.Errorf("policy: blocked verdict must block: verdict=%s", verdict)
	}

	exact := make(map[string]struct{}, len(rules.Exact))
	for _, name := range rules.Exact {
		if key := normalize(name); key != "" {
			exact[key] = struct{}{}
		}
	}

	suffixes := radix.New()
	for _, name := range rules.Suffixes {
		if key := normalize(name); key != "" {
			suffixes.Insert(reverseLabels(key), struct{}{})
		}
	}

	patterns := make([]glob.Glob, 0, len(rules.Patterns))
	for _, pattern := range rules.Patterns {
		g, err := glob.Compile(normalize(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("policy: invalid block pattern: pattern=%s err=%v", pattern, err)
		}

		patterns = append(patterns, g)
	}

	return &Filter{
		exact:    exact,
		suffixes: suffixes,
		patterns: patterns,
		verdict:  verdict,
	}, nil
}

// IsBlocked reports whether name matches any rule. It is a pure function of the name and the
// rule set.
func (f *Filter) IsBlocked(name string) bool {
	key := normalize(name)

	if _, ok := f.exact[key]; ok {
		return true
	}

	if f.suffixes.Len() > 0 {
		if _, _, ok := f.suffixes.LongestPrefix(reverseLabels(key)); ok {
			return true
		}
	}

	for _, pattern := range f.patterns {
		if pattern.Match(key) {
			return true
		}
	}

	return false
}

// Evaluate returns the verdict for a query name: Forward when no rule matches, and the filter's
// configured blocking verdict otherwise.
func (f *Filter) Evaluate(name string) Verdict {
	if f.IsBlocked(name) {
		return f.verdict
	}

	return Forward
}

// Size reports the total number of rules in the filter.
func (f *Filter) Size() int {
	return len(f.exact) + f.suffixes.Len() + len(f.patterns)
}

// String implements the Stringer interface for human-consumable representation.
func (f *Filter) String() string {
	return fmt.Sprintf(
		"Filter{exact: %d, suffixes: %d, patterns: %d, verdict: %s}",
		len(f.exact),
		f.suffixes.Len(),
		len(f.patterns),
		f.verdict,
	)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

// reverseLabels turns "www.example.com" into "com.example.www." so that a subdomain shares a
// label-aligned prefix with its parent. The trailing dot keeps "badexample.com" from matching
// "example.com".
func reverseLabels(name string) string {
	labels := strings.Split(name, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}

	return strings.Join(labels, ".") + "."
}
