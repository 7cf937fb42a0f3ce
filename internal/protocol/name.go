package protocol

import (
	"fmt"
	"strings"
)

const (
	// maxPointerJumps bounds the number of compression pointers followed while decoding a
	// single name. Legitimate messages need only a handful; cycles trip this guard.
	maxPointerJumps = 32
	// maxLabelSize is the largest permitted label, in bytes.
	maxLabelSize = 63
	// maxNameSize is the largest permitted name in wire form, including length bytes and the
	// terminating zero label.
	maxNameSize = 255

	pointerMask = 0xC0
)

// DecodeName decodes the (possibly compressed) domain name beginning at start within the full
// message buf. It returns the dotted name and the number of bytes the name occupies at start:
// the labels through the terminating zero byte, or through the first compression pointer if one
// is present.
//
// Every offset is bounds-checked before it is dereferenced and pointer chains are capped, so a
// hostile message fails with ErrMalformedMessage rather than reading out of range or looping.
// Label bytes that would be ambiguous or unprintable in the dotted form (dots, backslashes,
// control characters, NUL) are escaped as \. \\ and \DDD.
func DecodeName(buf []byte, start int) (string, int, error) {
	var name strings.Builder

	offset := start
	consumed := -1
	jumps := 0
	wireSize := 0

	for {
		if offset < 0 || offset >= len(buf) {
			return "", 0, malformed("name runs past end of message: offset=%d len=%d", offset, len(buf))
		}

		length := int(buf[offset])

		// Compression pointer: the two high bits are set and the remaining 14 bits (spanning
		// this byte and the next) are an absolute offset into the message.
		if length&pointerMask == pointerMask {
			if offset+1 >= len(buf) {
				return "", 0, malformed("truncated compression pointer: offset=%d", offset)
			}

			target := int(buf[offset]&^pointerMask)<<8 | int(buf[offset+1])
			if target >= len(buf) {
				return "", 0, malformed(
					"compression pointer out of range: offset=%d target=%d len=%d",
					offset,
					target,
					len(buf),
				)
			}

			jumps++
			if jumps > maxPointerJumps {
				return "", 0, malformed("too many compression pointers: limit=%d", maxPointerJumps)
			}

			// Only the first pointer counts toward the caller's consumed bytes
			if consumed < 0 {
				consumed = offset + 2 - start
			}

			offset = target
			continue
		}

		// The 01 and 10 prefixes are reserved label types
		if length&pointerMask != 0 {
			return "", 0, malformed("unsupported label type: offset=%d byte=%#x", offset, length)
		}

		if length == 0 {
			if consumed < 0 {
				consumed = offset + 1 - start
			}

			return name.String(), consumed, nil
		}

		if offset+1+length > len(buf) {
			return "", 0, malformed(
				"label runs past end of message: offset=%d label_len=%d len=%d",
				offset,
				length,
				len(buf),
			)
		}

		// Reserve one byte for the terminating zero label
		wireSize += 1 + length
		if wireSize+1 > maxNameSize {
			return "", 0, malformed("name exceeds %d bytes", maxNameSize)
		}

		if name.Len() > 0 {
			name.WriteByte('.')
		}
		writeLabel(&name, buf[offset+1:offset+1+length])

		offset += 1 + length
	}
}

// EncodeName encodes a plain dotted name (an optional trailing dot is ignored) into uncompressed
// wire form: length-prefixed labels followed by the zero-length terminator. Escape sequences are
// not interpreted.
func EncodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return []byte{0}, nil
	}

	labels := strings.Split(name, ".")
	encoded := make([]byte, 0, len(name)+2)

	for _, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("codec: empty label: name=%s", name)
		}

		if len(label) > maxLabelSize {
			return nil, fmt.Errorf("codec: label too long: label=%s len=%d", label, len(label))
		}

		encoded = append(encoded, byte(len(label)))
		encoded = append(encoded, label...)
	}

	encoded = append(encoded, 0)

	if len(encoded) > maxNameSize {
		return nil, fmt.Errorf("codec: name exceeds %d bytes: name=%s", maxNameSize, name)
	}

	return encoded, nil
}

// writeLabel appends a single label to the dotted name, escaping bytes that cannot appear
// verbatim in presentation format.
func writeLabel(name *strings.Builder, label []byte) {
	for _, c := range label {
		switch {
		case c == '.' || c == '\\':
			name.WriteByte('\\')
			name.WriteByte(c)
		case c < '!' || c > '~':
			fmt.Fprintf(name, "\\%03d", c)
		default:
			name.WriteByte(c)
		}
	}
}

func malformed(format string, v ...interface{}) error {
	return fmt.Errorf("codec: %w: %s", ErrMalformedMessage, fmt.Sprintf(format, v...))
}
