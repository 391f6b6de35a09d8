package rrdata

// EncodeCNAMEData encodes a CNAME record string into its binary representation.
func EncodeCNAMEData(data string) ([]byte, error) {
	// data = "cname.example.com"
	return EncodeDomainName(data)
}

// decodeCNAMEData decodes the binary representation of a CNAME record into a domain name.
func decodeCNAMEData(data []byte) (string, error) {
	return decodeDomainName(data)
}
