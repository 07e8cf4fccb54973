package pages

import (
	"github.com/KotoriAster/DB/util"
)

// 超块头部各字段偏移
const (
	offSuperFirst      = 12 // 4B 第1个数据块
	offSuperStamp      = 16 // 8B 时戳
	offSuperIdle       = 24 // 4B 空闲块链头
	offSuperMaxid      = 28 // 4B 已分配的最大blockid
	offSuperSelf       = 32 // 4B 保留
	offSuperRecords    = 36 // 8B 记录总数
	offSuperDataCounts = 44 // 4B 数据块个数
	offSuperIdleCounts = 48 // 4B 空闲块个数

	// SuperHeaderSize 超块头部大小
	SuperHeaderSize = 52
)

// SuperBlock 超块视图，占据文件头部4KB
type SuperBlock struct {
	Block
}

// Clear 清超块。idle链以0为空链标志。
func (b *SuperBlock) Clear(spaceid uint32) {
	for i := range b.buffer {
		b.buffer[i] = 0
	}
	b.SetMagic()
	b.SetSpaceid(spaceid)
	b.SetType(BlockTypeSuper)
	b.SetTimeStamp()
	b.SetFirst(0)
	b.SetIdle(0)
	b.SetMaxid(0)
	b.SetRecords(0)
	b.SetFreeSpace(SuperHeaderSize)
	b.SetChecksum()
}

// GetFirst 获取第1个数据块
func (b *SuperBlock) GetFirst() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offSuperFirst:])
}

// SetFirst 设定数据块链头
func (b *SuperBlock) SetFirst(first uint32) {
	copy(b.buffer[offSuperFirst:], util.ConvertUInt4Bytes(first))
}

// GetTimeStamp 获取时戳
func (b *SuperBlock) GetTimeStamp() uint64 {
	return util.ReadUB8Byte2UInt64(b.buffer[offSuperStamp:])
}

// SetTimeStamp 设定时戳
func (b *SuperBlock) SetTimeStamp() {
	copy(b.buffer[offSuperStamp:], util.ConvertUInt8Bytes(util.NowStamp()))
}

// GetIdle 获取空闲块链头
func (b *SuperBlock) GetIdle() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offSuperIdle:])
}

// SetIdle 设定空闲块链头
func (b *SuperBlock) SetIdle(idle uint32) {
	copy(b.buffer[offSuperIdle:], util.ConvertUInt4Bytes(idle))
}

// GetMaxid 获取最大blockid
func (b *SuperBlock) GetMaxid() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offSuperMaxid:])
}

// SetMaxid 设定最大blockid
func (b *SuperBlock) SetMaxid(maxid uint32) {
	copy(b.buffer[offSuperMaxid:], util.ConvertUInt4Bytes(maxid))
}

// GetSelf 获取self，保留字段
func (b *SuperBlock) GetSelf() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offSuperSelf:])
}

// SetSelf 设定self
func (b *SuperBlock) SetSelf(self uint32) {
	copy(b.buffer[offSuperSelf:], util.ConvertUInt4Bytes(self))
}

// GetRecords 获取记录总数
func (b *SuperBlock) GetRecords() uint64 {
	return util.ReadUB8Byte2UInt64(b.buffer[offSuperRecords:])
}

// SetRecords 设定记录总数
func (b *SuperBlock) SetRecords(records uint64) {
	copy(b.buffer[offSuperRecords:], util.ConvertUInt8Bytes(records))
}

// GetDataCounts 获取数据块个数
func (b *SuperBlock) GetDataCounts() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offSuperDataCounts:])
}

// SetDataCounts 设定数据块个数
func (b *SuperBlock) SetDataCounts(counts uint32) {
	copy(b.buffer[offSuperDataCounts:], util.ConvertUInt4Bytes(counts))
}

// GetIdleCounts 获取空闲块个数
func (b *SuperBlock) GetIdleCounts() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offSuperIdleCounts:])
}

// SetIdleCounts 设定空闲块个数
func (b *SuperBlock) SetIdleCounts(counts uint32) {
	copy(b.buffer[offSuperIdleCounts:], util.ConvertUInt4Bytes(counts))
}

// SetFreeSpace 设定空闲空间游标
func (b *SuperBlock) SetFreeSpace(freespace uint16) {
	b.setFreeSpaceRaw(freespace)
}

// SetChecksum 重算校验和
func (b *SuperBlock) SetChecksum() {
	setChecksum(b.buffer[:SuperSize])
}

// GetChecksum 读取校验和字段
func (b *SuperBlock) GetChecksum() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[SuperSize-TrailerSize+offChecksum:])
}

// Checksum 校验，全块求和为0则合法
func (b *SuperBlock) Checksum() bool {
	return verifyChecksum(b.buffer[:SuperSize])
}
