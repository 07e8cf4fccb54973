// Package datatype 定义SQL数据类型的封闭集合。
// 每种类型带比较器和字节序转换，比较一律按无符号语义。
package datatype

import (
	"bytes"

	"github.com/KotoriAster/DB/util"
)

// DataType SQL数据类型
type DataType struct {
	Name string
	// Size >0表示固定大小，<0表示最大大小
	Size int
	// Less 严格小于
	Less func(a, b []byte) bool
	// HtoBE 主机字节序原地转为大序
	HtoBE func(buf []byte)
	// BEtoH 大序原地转为主机字节序
	BEtoH func(buf []byte)
}

func bytesLess(a, b []byte) bool {
	return bytes.Compare(a, b) < 0
}

func tinyIntLess(a, b []byte) bool {
	return a[0] < b[0]
}

func smallIntLess(a, b []byte) bool {
	return util.ReadUB2Byte2UInt16(a) < util.ReadUB2Byte2UInt16(b)
}

func intLess(a, b []byte) bool {
	return util.ReadUB4Byte2UInt32(a) < util.ReadUB4Byte2UInt32(b)
}

func bigIntLess(a, b []byte) bool {
	return util.ReadUB8Byte2UInt64(a) < util.ReadUB8Byte2UInt64(b)
}

func noSwap(buf []byte) {}

// swapBytes 原地反转，小端主机与大序之间互转
func swapBytes(buf []byte) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

func swap2(buf []byte) { swapBytes(buf[:2]) }
func swap4(buf []byte) { swapBytes(buf[:4]) }
func swap8(buf []byte) { swapBytes(buf[:8]) }

var gDataTypes = []DataType{
	{Name: "CHAR", Size: 65535, Less: bytesLess, HtoBE: noSwap, BEtoH: noSwap},
	{Name: "VARCHAR", Size: -65535, Less: bytesLess, HtoBE: noSwap, BEtoH: noSwap},
	{Name: "TINYINT", Size: 1, Less: tinyIntLess, HtoBE: noSwap, BEtoH: noSwap},
	{Name: "SMALLINT", Size: 2, Less: smallIntLess, HtoBE: swap2, BEtoH: swap2},
	{Name: "INT", Size: 4, Less: intLess, HtoBE: swap4, BEtoH: swap4},
	{Name: "BIGINT", Size: 8, Less: bigIntLess, HtoBE: swap8, BEtoH: swap8},
}

// Find 按类型名查找数据类型，不存在返回nil
func Find(name string) *DataType {
	for i := range gDataTypes {
		if gDataTypes[i].Name == name {
			return &gDataTypes[i]
		}
	}
	return nil
}

// Equal 两个键是否相等
func (t *DataType) Equal(a, b []byte) bool {
	return !t.Less(a, b) && !t.Less(b, a)
}
