package rrdata

import (
	"fmt"
	"strings"
)

// EncodeTXTData encodes a TXT record string into its binary representation.
func EncodeTXTData(data string) ([]byte, error) {
	// Supports multiple strings separated by semicolons for simplicity
	// see RFC 1035 section 3.3.14
	segments := strings.Split(data, ";")
	var encoded []byte
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if len(segment) > 255 {
			return nil, fmt.Errorf("TXT segment too long: %d bytes", len(segment))
		}
		encoded = append(encoded, byte(len(segment)))
		encoded = append(encoded, []byte(segment)...)
	}
	if len(encoded) == 0 {
		return nil, fmt.Errorf("TXT record must contain at least one segment")
	}
	return encoded, nil
}

// decodeTXTData decodes the binary representation of a TXT record into its
// semicolon-joined segment form.
func decodeTXTData(data []byte) (string, error) {
	var segments []string
	pos := 0
	for pos < len(data) {
		length := int(data[pos])
		pos++
		if pos+length > len(data) {
			return "", fmt.Errorf("TXT segment exceeds rdata bounds")
		}
		segments = append(segments, string(data[pos:pos+length]))
		pos += length
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("TXT record must contain at least one segment")
	}
	return strings.Join(segments, "; "), nil
}
