package pages

import (
	"github.com/KotoriAster/DB/util"
)

// 空闲块头部各字段偏移
const (
	offIdleNext = 12 // 4B 后继指针

	// IdleHeaderSize 空闲块头部大小
	IdleHeaderSize = 16
)

// IdleBlock 空闲块视图。被回收的数据块改写类型为idle并
// 链入空闲链，其余字节保留，复用时由clear统一清零。
type IdleBlock struct {
	Block
}

// GetNext 获取后继空闲块id
func (b *IdleBlock) GetNext() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offIdleNext:])
}

// SetNext 设定后继空闲块id
func (b *IdleBlock) SetNext(next uint32) {
	copy(b.buffer[offIdleNext:], util.ConvertUInt4Bytes(next))
}

// SetChecksum 重算校验和
func (b *IdleBlock) SetChecksum() {
	setChecksum(b.buffer[:BlockSize])
}

// Checksum 校验
func (b *IdleBlock) Checksum() bool {
	return verifyChecksum(b.buffer[:BlockSize])
}
