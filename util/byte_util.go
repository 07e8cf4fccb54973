package util

import "encoding/binary"

// 磁盘上所有多字节整数均为big endian

func ConvertUInt2Bytes(i uint16) []byte {
	buff := make([]byte, 2)
	binary.BigEndian.PutUint16(buff, i)
	return buff
}

func ConvertUInt4Bytes(i uint32) []byte {
	buff := make([]byte, 4)
	binary.BigEndian.PutUint32(buff, i)
	return buff
}

func ConvertUInt8Bytes(i uint64) []byte {
	buff := make([]byte, 8)
	binary.BigEndian.PutUint64(buff, i)
	return buff
}

func ReadUB2Byte2UInt16(buff []byte) uint16 {
	return binary.BigEndian.Uint16(buff)
}

func ReadUB4Byte2UInt32(buff []byte) uint32 {
	return binary.BigEndian.Uint32(buff)
}

func ReadUB8Byte2UInt64(buff []byte) uint64 {
	return binary.BigEndian.Uint64(buff)
}

// Align8 向上对齐到8字节
func Align8(n int) int {
	return (n + 7) / 8 * 8
}
