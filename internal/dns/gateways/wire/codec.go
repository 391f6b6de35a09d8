package wire

import (
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
)

// DNSCodec encodes and decodes RFC 1035 messages over UDP. Implementations
// never emit name-compression pointers on encode (no server-side reply
// compression) but must decode them on input, rejecting any pointer that
// does not strictly precede its own offset (cycle prevention).
type DNSCodec interface {
	// DecodeQuery parses an inbound client datagram into its header and
	// question. Only the first question is decoded; QDCount must be at least 1.
	DecodeQuery(data []byte) (domain.Header, domain.Question, error)

	// EncodeQuery serializes an outbound query (used by the recursion
	// engine to ask an upstream nameserver) with RD set per hdr.RD.
	EncodeQuery(hdr domain.Header, q domain.Question) ([]byte, error)

	// DecodeResponse parses a nameserver's reply. The caller-supplied
	// expectedID is checked against the header ID. now is used to convert
	// wire TTLs into absolute cache expirations.
	DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.Header, domain.DNSResponse, error)

	// EncodeResponse serializes the final reply sent back to a client,
	// echoing q and stamping hdr via hdr.Response(...).
	EncodeResponse(hdr domain.Header, q domain.Question, resp domain.DNSResponse) ([]byte, error)
}

// DecodeError is returned for any structurally invalid input message.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "dns: decode error: " + e.Reason }

// MalformedNameError is returned when a domain name cannot be decoded,
// including when a compression pointer forms or would form a cycle.
type MalformedNameError struct {
	Reason string
}

func (e *MalformedNameError) Error() string { return "dns: malformed name: " + e.Reason }

// MalformedHeaderError is returned when the 12-byte header cannot be parsed.
type MalformedHeaderError struct {
	Reason string
}

func (e *MalformedHeaderError) Error() string { return "dns: malformed header: " + e.Reason }
