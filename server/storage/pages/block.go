// Package pages 定义定长块的四种布局视图：超块、数据块（元数据块
// 复用数据块布局）、空闲块。视图不拥有buffer，借助attach/detach
// 关联缓冲池页面。
//
// block的布局：
//
//	+--------------------+
//	|   common header    |
//	+--------------------+
//	|  data/meta header  |
//	+--------------------+ <--- 记录区
//	|      records       |
//	+--------------------+ <--- freespace
//	|     free space     |
//	+--------------------+
//	|       slots        |
//	+--------------------+ <--- trailer
//	|      trailer       |
//	+--------------------+
//
// 记录按8B对齐，trailer也按8B对齐。slot占4B，限定block最大64KB。
package pages

import (
	"github.com/KotoriAster/DB/util"
)

// block类型
const (
	BlockTypeIdle  = 0 // 空闲
	BlockTypeSuper = 1 // 超块
	BlockTypeData  = 2 // 数据
	BlockTypeIndex = 3 // 索引，保留
	BlockTypeMeta  = 4 // 元数据
	BlockTypeLog   = 5 // wal日志，保留
)

const (
	// SuperSize 超块大小4KB
	SuperSize = 1024 * 4
	// BlockSize 一般块大小16KB
	BlockSize = 1024 * 16

	// MagicNumber 格式标识，落盘为"db01"
	MagicNumber uint32 = 0x64623031
)

// 公共头部各字段偏移
const (
	offMagic     = 0  // 4B
	offSpaceid   = 4  // 4B
	offType      = 8  // 2B
	offFreespace = 10 // 2B

	// CommonHeaderSize 公共头部大小
	CommonHeaderSize = 12
)

// 尾部：4B slots占位 + 4B校验和
const (
	TrailerSize = 8
	offChecksum = 4 // 相对trailer起点

	// SlotSize 每个slot的大小：offset(2B)+length(2B)
	SlotSize = 4
)

// Block 公共block视图
type Block struct {
	buffer []byte
}

// Attach 关联buffer
func (b *Block) Attach(buffer []byte) {
	b.buffer = buffer
}

// Detach 解除关联
func (b *Block) Detach() {
	b.buffer = nil
}

// Buffer 返回底层buffer
func (b *Block) Buffer() []byte {
	return b.buffer
}

// Attached 是否已关联buffer
func (b *Block) Attached() bool {
	return b.buffer != nil
}

// SetMagic 设定magic
func (b *Block) SetMagic() {
	copy(b.buffer[offMagic:], util.ConvertUInt4Bytes(MagicNumber))
}

// GetMagic 获取magic
func (b *Block) GetMagic() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offMagic:])
}

// CheckMagic magic是否合法
func (b *Block) CheckMagic() bool {
	return b.GetMagic() == MagicNumber
}

// GetSpaceid 获取表空间id
func (b *Block) GetSpaceid() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offSpaceid:])
}

// SetSpaceid 设定表空间id
func (b *Block) SetSpaceid(spaceid uint32) {
	copy(b.buffer[offSpaceid:], util.ConvertUInt4Bytes(spaceid))
}

// GetType 获取类型
func (b *Block) GetType() uint16 {
	return util.ReadUB2Byte2UInt16(b.buffer[offType:])
}

// SetType 设定类型
func (b *Block) SetType(blockType uint16) {
	copy(b.buffer[offType:], util.ConvertUInt2Bytes(blockType))
}

// GetFreeSpace 获取空闲空间游标
func (b *Block) GetFreeSpace() uint16 {
	return util.ReadUB2Byte2UInt16(b.buffer[offFreespace:])
}

// setFreeSpaceRaw 设定空闲空间游标
func (b *Block) setFreeSpaceRaw(freespace uint16) {
	copy(b.buffer[offFreespace:], util.ConvertUInt2Bytes(freespace))
}

// setChecksum 在buf尾部重算校验和
func setChecksum(buf []byte) {
	trailer := len(buf) - TrailerSize
	copy(buf[trailer+offChecksum:], util.ConvertUInt4Bytes(0))
	sum := util.Checksum32(buf)
	copy(buf[trailer+offChecksum:], util.ConvertUInt4Bytes(sum))
}

// verifyChecksum 全块求和判零
func verifyChecksum(buf []byte) bool {
	return util.Checksum32(buf) == 0
}

// BlockOffset 返回blockid在文件内的偏移。
// 超块占据文件头部4KB，其后每块16KB。
func BlockOffset(blockid uint32) int64 {
	if blockid == 0 {
		return 0
	}
	return int64(SuperSize) + int64(blockid-1)*int64(BlockSize)
}

// SizeOfBlock 返回blockid对应的块大小
func SizeOfBlock(blockid uint32) int {
	if blockid == 0 {
		return SuperSize
	}
	return BlockSize
}
