package util

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum32ZeroSum(t *testing.T) {
	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = byte(i * 7)
	}

	// 清零校验和字段，写回后全块求和必须为0
	checksumOff := len(buf) - 4
	binary.BigEndian.PutUint32(buf[checksumOff:], 0)
	sum := Checksum32(buf)
	binary.BigEndian.PutUint32(buf[checksumOff:], sum)

	assert.Equal(t, uint32(0), Checksum32(buf))

	// 篡改一个字节后校验失败
	buf[100]++
	assert.NotEqual(t, uint32(0), Checksum32(buf))
}

func TestConvertRoundTrip(t *testing.T) {
	assert.Equal(t, uint16(0xBEEF), ReadUB2Byte2UInt16(ConvertUInt2Bytes(0xBEEF)))
	assert.Equal(t, uint32(0xDEADBEEF), ReadUB4Byte2UInt32(ConvertUInt4Bytes(0xDEADBEEF)))
	assert.Equal(t, uint64(0x0102030405060708), ReadUB8Byte2UInt64(ConvertUInt8Bytes(0x0102030405060708)))

	// 大序：高位在前
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, ConvertUInt4Bytes(0xDEADBEEF))
}

func TestAlign8(t *testing.T) {
	assert.Equal(t, 0, Align8(0))
	assert.Equal(t, 8, Align8(1))
	assert.Equal(t, 8, Align8(8))
	assert.Equal(t, 16, Align8(9))
}

func TestNowStampMonotonic(t *testing.T) {
	last := NowStamp()
	for i := 0; i < 1000; i++ {
		now := NowStamp()
		assert.Greater(t, now, last)
		last = now
	}
}

func TestHashCodeDeterministic(t *testing.T) {
	a := HashCode([]byte("t.dat"))
	b := HashCode([]byte("t.dat"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashCode([]byte("u.dat")))
}
