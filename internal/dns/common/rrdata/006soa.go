package rrdata

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// EncodeSOAData encodes an SOA record string into its binary representation.
func EncodeSOAData(data string) ([]byte, error) {
	// data = "mname rname serial refresh retry expire minimum"
	parts := strings.Fields(data)
	if len(parts) != 7 {
		return nil, fmt.Errorf("invalid SOA record format (expected 7 fields): %s", data)
	}

	// mname is the primary name server for the zone
	mname, err := EncodeDomainName(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid SOA mname: %v", err)
	}

	// rname is the zone administrator's mailbox in domain-name form
	// (e.g. "hostmaster.example.com"); it is encoded as given, like mname.
	rname, err := EncodeDomainName(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid SOA rname: %v", err)
	}

	// The next five fields are unsigned integers
	// serial, refresh, retry, expire, minimum
	u32 := make([]byte, 20)
	for i := 0; i < 5; i++ {
		val, err := strconv.ParseUint(parts[i+2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid SOA field %d: %v", i+2, err)
		}
		binary.BigEndian.PutUint32(u32[i*4:], uint32(val))
	}

	// Combine all parts into a single byte slice
	var encoded []byte
	encoded = append(encoded, mname...)
	encoded = append(encoded, rname...)
	encoded = append(encoded, u32...)

	return encoded, nil
}

// decodeSOAData decodes the binary representation of an SOA record.
func decodeSOAData(data []byte) (string, error) {
	// Two root names (1 byte each) plus five uint32 fields is the minimum.
	if len(data) < 22 {
		return "", fmt.Errorf("invalid SOA data length: %d", len(data))
	}
	mname, n, err := decodeDomainNameAt(data)
	if err != nil {
		return "", fmt.Errorf("invalid SOA mname: %v", err)
	}
	rest := data[n:]
	rname, n2, err := decodeDomainNameAt(rest)
	if err != nil {
		return "", fmt.Errorf("invalid SOA rname: %v", err)
	}
	rest = rest[n2:]
	if len(rest) < 20 {
		return "", fmt.Errorf("SOA record missing integer fields: %d bytes", len(rest))
	}
	if len(rest) != 20 {
		return "", fmt.Errorf("invalid SOA record length: %d trailing bytes", len(rest))
	}
	serial := binary.BigEndian.Uint32(rest[0:4])
	refresh := binary.BigEndian.Uint32(rest[4:8])
	retry := binary.BigEndian.Uint32(rest[8:12])
	expire := binary.BigEndian.Uint32(rest[12:16])
	minimum := binary.BigEndian.Uint32(rest[16:20])
	return fmt.Sprintf("%s %s %d %d %d %d %d", mname, rname, serial, refresh, retry, expire, minimum), nil
}
