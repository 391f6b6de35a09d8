package rrdata

// EncodePTRData encodes a PTR record string into its binary representation.
func EncodePTRData(data string) ([]byte, error) {
	// data = "ptr.example.com"
	return EncodeDomainName(data)
}

// decodePTRData decodes the binary representation of a PTR record into a domain name.
func decodePTRData(data []byte) (string, error) {
	return decodeDomainName(data)
}
