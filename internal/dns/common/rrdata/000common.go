package rrdata

import (
	"fmt"
	"net"
	"strings"

	"github.com/haukened/rr-dns/internal/dns/common/utils"
)

// EncodeDomainName encodes a domain name into wire format (length-prefixed labels ending in 0).
// used in multiple record types
func EncodeDomainName(name string) ([]byte, error) {
	// name = foo.example.com.
	name = utils.CanonicalDNSName(name)
	labels := strings.Split(name, ".")
	var encoded []byte
	for _, label := range labels {
		if len(label) == 0 {
			continue
		}
		if len(label) > 63 {
			return nil, fmt.Errorf("label too long: %s", label)
		}
		encoded = append(encoded, byte(len(label)))
		encoded = append(encoded, label...)
	}
	encoded = append(encoded, 0) // null terminator
	return encoded, nil
}

// decodeDomainName decodes a length-prefixed label sequence starting at the
// beginning of data. It does not follow compression pointers: rdata is
// decoded in isolation from the enclosing message, so any name embedded in
// rdata must be self-contained on the wire.
func decodeDomainName(data []byte) (string, error) {
	name, _, err := decodeDomainNameAt(data)
	return name, err
}

// decodeDomainNameAt decodes a name starting at the beginning of data and
// also reports how many bytes it consumed, for rdata formats (e.g. SOA)
// that pack a name followed by further fields.
func decodeDomainNameAt(data []byte) (string, int, error) {
	var labels []string
	pos := 0
	for {
		if pos >= len(data) {
			return "", 0, fmt.Errorf("truncated domain name")
		}
		length := int(data[pos])
		if length&0xC0 != 0 {
			return "", 0, fmt.Errorf("compressed name not supported in rdata")
		}
		pos++
		if length == 0 {
			break
		}
		if pos+length > len(data) {
			return "", 0, fmt.Errorf("label exceeds rdata bounds")
		}
		labels = append(labels, string(data[pos:pos+length]))
		pos += length
	}
	if len(labels) == 0 {
		return "", pos, nil
	}
	return strings.Join(labels, "."), pos, nil
}

// isIPv4 checks whether the provided net.IP address is an IPv4 address.
// It returns true if the IP is not nil and can be converted to IPv4 format.
func isIPv4(ip net.IP) bool {
	return ip != nil && ip.To4() != nil
}

// isIPv6 checks whether the provided net.IP is a valid IPv6 address.
// It returns true if the IP is not nil, has a valid 16-byte representation,
// and does not have a valid 4-byte IPv4 representation.
func isIPv6(ip net.IP) bool {
	return ip != nil && ip.To16() != nil && ip.To4() == nil
}
