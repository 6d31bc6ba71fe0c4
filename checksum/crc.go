package checksum

// CRC16Size is the number of checksum bytes carried by an RTU frame.
const CRC16Size = 2

const (
	crcPolynomial = 0xA001 // reflected form of 0x8005
	crcInitial    = 0xFFFF
)

// CRC16 computes the CRC-16/MODBUS checksum of data.
//
// The register starts at 0xFFFF and each byte is processed LSB first with
// eight shift/XOR steps against the reflected polynomial 0xA001.
func CRC16(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPolynomial
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

// CRC16Bytes returns the CRC-16/MODBUS of data in wire order (low byte first).
func CRC16Bytes(data []byte) [CRC16Size]byte {
	crc := CRC16(data)

	return [CRC16Size]byte{byte(crc), byte(crc >> 8)}
}

// AppendCRC16 appends the wire-order CRC-16/MODBUS of data to data and
// returns the extended slice.
func AppendCRC16(data []byte) []byte {
	crc := CRC16Bytes(data)

	return append(data, crc[0], crc[1])
}

// VerifyCRC16 reports whether the two wire-order bytes in wire match the
// CRC-16/MODBUS computed over data.
func VerifyCRC16(data []byte, wire [CRC16Size]byte) bool {
	return CRC16Bytes(data) == wire
}
