// Package wire provides encoding and decoding of DNS messages for UDP transport.
// It handles the DNS wire format as specified in RFC 1035.
package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/common/rrdata"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

const headerLen = 12

// maxNameLength is the RFC 1035 §3.1 limit on a decoded domain name
// (255 octets, label bytes plus separating dots).
const maxNameLength = 255

// udpCodec implements DNSCodec over plain UDP datagrams (RFC 1035 §4).
type udpCodec struct {
	logger log.Logger
}

// NewUDPCodec constructs a DNSCodec for UDP message framing.
func NewUDPCodec(logger log.Logger) DNSCodec {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &udpCodec{logger: logger}
}

var _ DNSCodec = (*udpCodec)(nil)

// decodeHeader parses the fixed 12-byte header.
func decodeHeader(data []byte) (domain.Header, error) {
	if len(data) < headerLen {
		return domain.Header{}, &MalformedHeaderError{Reason: fmt.Sprintf("message too short: %d bytes", len(data))}
	}
	flags := binary.BigEndian.Uint16(data[2:4])
	h := domain.Header{
		ID:      binary.BigEndian.Uint16(data[0:2]),
		QR:      flags&0x8000 != 0,
		Opcode:  uint8((flags >> 11) & 0x0F),
		AA:      flags&0x0400 != 0,
		TC:      flags&0x0200 != 0,
		RD:      flags&0x0100 != 0,
		RA:      flags&0x0080 != 0,
		Z:       uint8((flags >> 4) & 0x07),
		RCode:   domain.RCode(flags & 0x000F),
		QDCount: binary.BigEndian.Uint16(data[4:6]),
		ANCount: binary.BigEndian.Uint16(data[6:8]),
		NSCount: binary.BigEndian.Uint16(data[8:10]),
		ARCount: binary.BigEndian.Uint16(data[10:12]),
	}
	return h, nil
}

// encodeHeader serializes a Header to its 12-byte wire form.
func encodeHeader(h domain.Header) []byte {
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint16(buf[0:2], h.ID)

	var flags uint16
	if h.QR {
		flags |= 0x8000
	}
	flags |= uint16(h.Opcode&0x0F) << 11
	if h.AA {
		flags |= 0x0400
	}
	if h.TC {
		flags |= 0x0200
	}
	if h.RD {
		flags |= 0x0100
	}
	if h.RA {
		flags |= 0x0080
	}
	flags |= uint16(h.Z&0x07) << 4
	flags |= uint16(h.RCode) & 0x000F
	binary.BigEndian.PutUint16(buf[2:4], flags)

	binary.BigEndian.PutUint16(buf[4:6], h.QDCount)
	binary.BigEndian.PutUint16(buf[6:8], h.ANCount)
	binary.BigEndian.PutUint16(buf[8:10], h.NSCount)
	binary.BigEndian.PutUint16(buf[10:12], h.ARCount)
	return buf
}

// decodeName decodes a possibly-compressed domain name starting at offset.
// Returns the decoded name and the offset immediately after the name as it
// appears in the original stream (not following any pointer).
//
// Pointer-cycle prevention: a pointer's target must be strictly less than
// the offset of the pointer byte itself. The chain of pointer targets is
// therefore strictly decreasing and finite, which rejects any cycle or
// forward reference outright.
func decodeName(data []byte, offset int) (string, int, error) {
	var labels []string
	pos := offset
	endPos := -1
	jumps := 0
	decodedLen := 0

	for {
		if pos >= len(data) {
			return "", 0, &MalformedNameError{Reason: "truncated name"}
		}
		lengthByte := data[pos]

		if lengthByte&0xC0 == 0xC0 {
			if pos+1 >= len(data) {
				return "", 0, &MalformedNameError{Reason: "truncated pointer"}
			}
			pointerOffset := int(lengthByte&0x3F)<<8 | int(data[pos+1])
			if pointerOffset >= pos {
				return "", 0, &MalformedNameError{Reason: "pointer does not point backward, cycle rejected"}
			}
			if endPos == -1 {
				endPos = pos + 2
			}
			pos = pointerOffset
			jumps++
			if jumps > 128 {
				return "", 0, &MalformedNameError{Reason: "too many compression pointers"}
			}
			continue
		}

		if lengthByte&0xC0 != 0 {
			return "", 0, &MalformedNameError{Reason: "reserved label length bits set"}
		}

		length := int(lengthByte)
		pos++
		if length == 0 {
			break
		}
		if pos+length > len(data) {
			return "", 0, &MalformedNameError{Reason: "label exceeds message bounds"}
		}
		decodedLen += length + 1 // label bytes plus separating dot
		if decodedLen > maxNameLength {
			return "", 0, &MalformedNameError{Reason: "name exceeds 255 bytes"}
		}
		labels = append(labels, string(data[pos:pos+length]))
		pos += length
	}

	if endPos == -1 {
		endPos = pos
	}
	if len(labels) == 0 {
		return ".", endPos, nil
	}
	return strings.Join(labels, ".") + ".", endPos, nil
}

// encodeName writes name in plain (uncompressed) wire form. The codec
// never emits compression pointers on encode.
func encodeName(name string) ([]byte, error) {
	return rrdata.EncodeDomainName(name)
}

func decodeQuestionAt(data []byte, offset int) (domain.Question, int, error) {
	name, pos, err := decodeName(data, offset)
	if err != nil {
		return domain.Question{}, 0, err
	}
	if pos+4 > len(data) {
		return domain.Question{}, 0, &DecodeError{Reason: "truncated question"}
	}
	qtype := domain.RRType(binary.BigEndian.Uint16(data[pos : pos+2]))
	qclass := domain.RRClass(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
	pos += 4
	return domain.Question{Name: name, Type: qtype, Class: qclass}, pos, nil
}

func encodeQuestionBytes(q domain.Question) ([]byte, error) {
	nameBytes, err := encodeName(q.Name)
	if err != nil {
		return nil, fmt.Errorf("encode question name: %w", err)
	}
	buf := make([]byte, 0, len(nameBytes)+4)
	buf = append(buf, nameBytes...)
	tail := make([]byte, 4)
	binary.BigEndian.PutUint16(tail[0:2], uint16(q.Type))
	binary.BigEndian.PutUint16(tail[2:4], uint16(q.Class))
	return append(buf, tail...), nil
}

// parseResourceRecord decodes one RR starting at offset, returning the
// record and the offset immediately following it.
func parseResourceRecord(data []byte, offset int, now time.Time) (domain.ResourceRecord, int, error) {
	name, pos, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	if pos+10 > len(data) {
		return domain.ResourceRecord{}, 0, &DecodeError{Reason: "truncated resource record"}
	}
	rrtype := domain.RRType(binary.BigEndian.Uint16(data[pos : pos+2]))
	rrclass := domain.RRClass(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
	ttl := binary.BigEndian.Uint32(data[pos+4 : pos+8])
	rdlen := int(binary.BigEndian.Uint16(data[pos+8 : pos+10]))
	pos += 10
	if pos+rdlen > len(data) {
		return domain.ResourceRecord{}, 0, &DecodeError{Reason: "rdata exceeds message bounds"}
	}
	rdataStart := pos
	rdata := make([]byte, rdlen)
	copy(rdata, data[pos:pos+rdlen])
	pos += rdlen

	var text string
	if rrtype == domain.RRTypeNS {
		// NS rdata is a name that may use compression pointers against the
		// full message, not just the isolated rdata slice, so it must be
		// decoded against the original buffer rather than through the
		// generic per-type rdata decoder.
		name, _, nerr := decodeName(data, rdataStart)
		if nerr == nil {
			text = name
		}
	} else {
		text, err = rrdata.Decode(rrtype, rdata)
		if err != nil {
			text = ""
		}
	}

	rr, err := domain.NewCachedResourceRecord(name, rrtype, rrclass, ttl, rdata, text, now)
	if err != nil {
		return domain.ResourceRecord{}, 0, fmt.Errorf("build resource record: %w", err)
	}
	return rr, pos, nil
}

func encodeResourceRecord(rr domain.ResourceRecord) ([]byte, error) {
	nameBytes, err := encodeName(rr.Name)
	if err != nil {
		return nil, fmt.Errorf("encode record name: %w", err)
	}
	head := make([]byte, 10)
	binary.BigEndian.PutUint16(head[0:2], uint16(rr.Type))
	binary.BigEndian.PutUint16(head[2:4], uint16(rr.Class))
	binary.BigEndian.PutUint32(head[4:8], rr.TTL())
	binary.BigEndian.PutUint16(head[8:10], uint16(len(rr.Data)))

	buf := make([]byte, 0, len(nameBytes)+len(head)+len(rr.Data))
	buf = append(buf, nameBytes...)
	buf = append(buf, head...)
	buf = append(buf, rr.Data...)
	return buf, nil
}

func parseSections(data []byte, offset int, ancount, nscount, arcount uint16, now time.Time) (answers, authority, additional []domain.ResourceRecord, next int, err error) {
	pos := offset
	for i := 0; i < int(ancount); i++ {
		var rr domain.ResourceRecord
		rr, pos, err = parseResourceRecord(data, pos, now)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("parse answer %d: %w", i, err)
		}
		answers = append(answers, rr)
	}
	for i := 0; i < int(nscount); i++ {
		var rr domain.ResourceRecord
		rr, pos, err = parseResourceRecord(data, pos, now)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("parse authority %d: %w", i, err)
		}
		authority = append(authority, rr)
	}
	for i := 0; i < int(arcount); i++ {
		var rr domain.ResourceRecord
		rr, pos, err = parseResourceRecord(data, pos, now)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("parse additional %d: %w", i, err)
		}
		additional = append(additional, rr)
	}
	return answers, authority, additional, pos, nil
}

// DecodeQuery implements DNSCodec.
func (c *udpCodec) DecodeQuery(data []byte) (domain.Header, domain.Question, error) {
	hdr, err := decodeHeader(data)
	if err != nil {
		return domain.Header{}, domain.Question{}, err
	}
	if hdr.QDCount < 1 {
		return domain.Header{}, domain.Question{}, &DecodeError{Reason: "no question present"}
	}
	q, _, err := decodeQuestionAt(data, headerLen)
	if err != nil {
		return domain.Header{}, domain.Question{}, err
	}
	c.logger.Debug(map[string]any{"name": q.Name, "type": q.Type.String()}, "decoded query")
	return hdr, q, nil
}

// EncodeQuery implements DNSCodec.
func (c *udpCodec) EncodeQuery(hdr domain.Header, q domain.Question) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	hdr.QR = false
	hdr.QDCount = 1
	hdr.ANCount = 0
	hdr.NSCount = 0
	hdr.ARCount = 0

	qbytes, err := encodeQuestionBytes(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	buf := append(encodeHeader(hdr), qbytes...)
	return buf, nil
}

// DecodeResponse implements DNSCodec.
func (c *udpCodec) DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.Header, domain.DNSResponse, error) {
	hdr, err := decodeHeader(data)
	if err != nil {
		return domain.Header{}, domain.DNSResponse{}, err
	}
	if hdr.ID != expectedID {
		return domain.Header{}, domain.DNSResponse{}, &DecodeError{Reason: fmt.Sprintf("id mismatch: got %d want %d", hdr.ID, expectedID)}
	}

	pos := headerLen
	for i := 0; i < int(hdr.QDCount); i++ {
		_, next, err := decodeQuestionAt(data, pos)
		if err != nil {
			return domain.Header{}, domain.DNSResponse{}, fmt.Errorf("skip question %d: %w", i, err)
		}
		pos = next
	}

	answers, authority, additional, _, err := parseSections(data, pos, hdr.ANCount, hdr.NSCount, hdr.ARCount, now)
	if err != nil {
		return domain.Header{}, domain.DNSResponse{}, err
	}

	resp, err := domain.NewDNSResponse(hdr.ID, hdr.RCode, answers, authority, additional)
	if err != nil {
		return domain.Header{}, domain.DNSResponse{}, fmt.Errorf("build response: %w", err)
	}
	return hdr, resp, nil
}

// EncodeResponse implements DNSCodec. It never emits compression pointers.
func (c *udpCodec) EncodeResponse(hdr domain.Header, q domain.Question, resp domain.DNSResponse) ([]byte, error) {
	respHdr := hdr.Response(resp.RCode, uint16(len(resp.Answers)), uint16(len(resp.Authority)), uint16(len(resp.Additional)))
	respHdr.QDCount = 1

	qbytes, err := encodeQuestionBytes(q)
	if err != nil {
		return nil, fmt.Errorf("encode response question: %w", err)
	}

	buf := append(encodeHeader(respHdr), qbytes...)

	all := make([]domain.ResourceRecord, 0, len(resp.Answers)+len(resp.Authority)+len(resp.Additional))
	all = append(all, resp.Answers...)
	all = append(all, resp.Authority...)
	all = append(all, resp.Additional...)

	for _, rr := range all {
		rrbytes, err := encodeResourceRecord(rr)
		if err != nil {
			return nil, fmt.Errorf("encode response record: %w", err)
		}
		buf = append(buf, rrbytes...)
	}
	return buf, nil
}
