package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiegeo/modbusone/crc"
)

func TestLRC(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty", data: nil, want: 0x00},
		{name: "one two", data: []byte{0x01, 0x02}, want: 0xFD},
		{name: "read holding registers", data: []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}, want: 0x7E},
		{name: "sum wraps", data: []byte{0xFF, 0xFF, 0x02}, want: 0x00},
		{name: "single byte", data: []byte{0x01}, want: 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LRC(tt.data))
			assert.True(t, VerifyLRC(tt.data, tt.want))
			assert.False(t, VerifyLRC(tt.data, tt.want+1))
		})
	}
}

func TestLRC_SumWithChecksumIsZero(t *testing.T) {
	data := []byte("Sample text from slave")
	var sum byte
	for _, b := range append(data, LRC(data)) {
		sum += b
	}
	assert.Equal(t, byte(0), sum)
}

func TestCRC16_ReferenceVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
		wire [2]byte
	}{
		{name: "check string", data: []byte("123456789"), want: 0x4B37, wire: [2]byte{0x37, 0x4B}},
		{name: "read 10 registers", data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}, want: 0xCDC5, wire: [2]byte{0xC5, 0xCD}},
		{name: "read 3 registers unit 17", data: []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}, want: 0x8776, wire: [2]byte{0x76, 0x87}},
		{name: "read 1 register", data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, want: 0x0A84, wire: [2]byte{0x84, 0x0A}},
		{name: "empty", data: nil, want: 0xFFFF, wire: [2]byte{0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC16(tt.data))
			assert.Equal(t, tt.wire, CRC16Bytes(tt.data))
			assert.True(t, VerifyCRC16(tt.data, tt.wire))
		})
	}
}

func TestCRC16_MatchesModbusoneReference(t *testing.T) {
	inputs := [][]byte{
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A},
		{0x00, 0x01},
		[]byte("Sample text from slave"),
		make([]byte, 252),
	}
	for i := 0; i < 256; i++ {
		inputs = append(inputs, []byte{byte(i), byte(255 - i), byte(i * 7)})
	}

	for _, in := range inputs {
		ours := AppendCRC16(append([]byte(nil), in...))
		ref := crc.Append(append([]byte(nil), in...))
		require.Equal(t, ref, ours, "input % X", in)
		assert.True(t, crc.Validate(ours))
	}
}

func TestAppendCRC16_WireOrder(t *testing.T) {
	data := []byte{0x01, 0x02}
	out := AppendCRC16(data)
	require.Len(t, out, 4)
	assert.Equal(t, []byte{0x01, 0x02}, out[:2])
	assert.Equal(t, [2]byte{0x81, 0xE1}, [2]byte{out[2], out[3]})
}

func TestVerifyCRC16_DetectsSingleBitFlip(t *testing.T) {
	data := []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}
	wire := CRC16Bytes(data)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), data...)
			corrupted[i] ^= 1 << bit
			assert.False(t, VerifyCRC16(corrupted, wire), "byte %d bit %d", i, bit)
		}
	}
}
