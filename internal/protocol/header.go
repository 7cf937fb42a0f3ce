package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of the fixed DNS message header, in bytes.
	HeaderSize = 12

	// MaxMessageSize is the classic DNS-over-UDP message size limit. EDNS0 size negotiation is
	// not supported.
	MaxMessageSize = 512
)

// Header bit masks within the 16-bit flags word (RFC 1035 section 4.1.1, RFC 4035 section 3.2).
const (
	flagQR = 1 << 15
	flagAA = 1 << 10
	flagTC = 1 << 9
	flagRD = 1 << 8
	flagRA = 1 << 7
	flagZ  = 1 << 6
	flagAD = 1 << 5
	flagCD = 1 << 4

	opcodeShift = 11
	opcodeMask  = 0xF
	rcodeMask   = 0xF
)

// Header is a decoded view of the fixed 12-byte DNS message header.
type Header struct {
	ID                 uint16
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	Zero               bool
	AuthenticatedData  bool
	CheckingDisabled   bool
	Rcode              uint8

	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// DecodeHeader parses the fixed header at the start of a DNS message. All multi-byte fields are
// read in network byte order.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf(
			"codec: %w: header too short: len=%d",
			ErrMalformedMessage,
			len(buf),
		)
	}

	flags := binary.BigEndian.Uint16(buf[2:4])

	return Header{
		ID:                 binary.BigEndian.Uint16(buf[0:2]),
		Response:           flags&flagQR != 0,
		Opcode:             uint8(flags>>opcodeShift) & opcodeMask,
		Authoritative:      flags&flagAA != 0,
		Truncated:          flags&flagTC != 0,
		RecursionDesired:   flags&flagRD != 0,
		RecursionAvailable: flags&flagRA != 0,
		Zero:               flags&flagZ != 0,
		AuthenticatedData:  flags&flagAD != 0,
		CheckingDisabled:   flags&flagCD != 0,
		Rcode:              uint8(flags) & rcodeMask,
		QDCount:            binary.BigEndian.Uint16(buf[4:6]),
		ANCount:            binary.BigEndian.Uint16(buf[6:8]),
		NSCount:            binary.BigEndian.Uint16(buf[8:10]),
		ARCount:            binary.BigEndian.Uint16(buf[10:12]),
	}, nil
}

// String implements the Stringer interface for log output.
func (h Header) String() string {
	return fmt.Sprintf(
		"Header{id=%d qr=%t opcode=%d rd=%t rcode=%d qd=%d an=%d ns=%d ar=%d}",
		h.ID,
		h.Response,
		h.Opcode,
		h.RecursionDesired,
		h.Rcode,
		h.QDCount,
		h.ANCount,
		h.NSCount,
		h.ARCount,
	)
}
