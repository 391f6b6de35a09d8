package rrdata

// EncodeNSData encodes an NS record string into its binary representation.
func EncodeNSData(data string) ([]byte, error) {
	// data = "ns.example.com"
	return EncodeDomainName(data)
}

// decodeNSData decodes the binary representation of an NS record into a domain name.
func decodeNSData(data []byte) (string, error) {
	return decodeDomainName(data)
}
