package checksum

// LRCSize is the number of checksum bytes carried by an ASCII frame.
// On the wire the byte is sent as two hex characters.
const LRCSize = 1

// LRC returns the Longitudinal Redundancy Check of data: the two's
// complement of the 8-bit truncated sum of all bytes.
func LRC(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}

	return ^sum + 1
}

// VerifyLRC reports whether lrc matches the LRC computed over data.
func VerifyLRC(data []byte, lrc byte) bool {
	return LRC(data) == lrc
}
