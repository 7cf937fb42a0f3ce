package protocol

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsrelay/internal/policy"
)

func TestNegativeReply(t *testing.T) {
	t.Parallel()

	query := new(dns.Msg)
	query.SetQuestion("blocked.example.", dns.TypeAAAA)
	query.Id = 0x7777
	query.CheckingDisabled = true

	packed, err := query.Pack()
	require.NoError(t, err)

	raw, err := NegativeReply(packed, policy.NXDomain)
	require.NoError(t, err)

	header, err := DecodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x7777), header.ID)
	assert.True(t, header.Response)
	assert.True(t, header.RecursionDesired)
	assert.True(t, header.CheckingDisabled)
	assert.Equal(t, uint8(dns.RcodeNameError), header.Rcode)
	assert.Equal(t, uint16(1), header.QDCount)
	assert.Zero(t, header.ANCount)
}

func TestNegativeReplyErrors(t *testing.T) {
	t.Parallel()

	_, err := NegativeReply(withHeader(0x00), policy.Drop)
	assert.Error(t, err, "drop never produces a reply")

	_, err = NegativeReply([]byte{0x01}, policy.Refuse)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
