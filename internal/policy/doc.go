// Package policy decides, for a decoded query name, whether the relay forwards the query or blocks
// it. The rule set is fixed at startup and safe for concurrent reads.
package policy
