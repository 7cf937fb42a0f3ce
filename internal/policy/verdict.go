//go:generate go run golang.org/x/tools/cmd/stringer -type=Verdict -linecomment=true

package policy

import (
	"strings"
)

// Verdict is the outcome of evaluating a query name against the policy.
type Verdict int

const (
	// Forward relays the query to the upstream resolver.
	Forward Verdict = iota // forward
	// Drop silently discards the query; the client eventually times out.
	Drop // drop
	// Refuse answers the query with a REFUSED response code.
	Refuse // refused
	// NXDomain answers the query with a name error response code.
	NXDomain // nxdomain
)

// ParseVerdict parses a blocking Verdict from its stringified (case-insensitive) representation.
// Forward is never a valid blocking response, so it is not accepted.
func ParseVerdict(verdict string) (Verdict, bool) {
	knownVerdicts := []Verdict{Drop, Refuse, NXDomain}

	for _, knownVerdict := range knownVerdicts {
		if strings.EqualFold(verdict, knownVerdict.String()) {
			return knownVerdict, true
		}
	}

	return Drop, false
}

// Blocks indicates whether the verdict prevents the query from reaching the upstream.
func (v Verdict) Blocks() bool {
	return v != Forward
}
