package protocol

import (
	"fmt"

	"github.com/miekg/dns"

	"dnsrelay/internal/policy"
)

// blockRcodes maps the replying verdicts to the response code of the synthesized reply.
var blockRcodes = map[policy.Verdict]int{
	policy.Refuse:   dns.RcodeRefused,
	policy.NXDomain: dns.RcodeNameError,
}

// NegativeReply synthesizes a minimal reply to query carrying the response code associated with
// verdict. The reply echoes the transaction id, opcode, recursion desired bit, and first question
// of the query, and advertises recursion as available since every allowed query is forwarded to
// a recursive resolver.
func NegativeReply(query []byte, verdict policy.Verdict) ([]byte, error) {
	rcode, ok := blockRcodes[verdict]
	if !ok {
		return nil, fmt.Errorf("response: verdict does not produce a reply: verdict=%s", verdict)
	}

	req := new(dns.Msg)
	if err := req.Unpack(query); err != nil {
		return nil, fmt.Errorf("response: %w: err=%v", ErrMalformedMessage, err)
	}

	reply := new(dns.Msg)
	reply.SetRcode(req, rcode)
	reply.RecursionAvailable = true

	packed, err := reply.Pack()
	if err != nil {
		return nil, fmt.Errorf("response: error packing reply: err=%v", err)
	}

	return packed, nil
}
