// Package record 实现物理记录的编解码。
//
// 记录的布局：
//
//	+--------+--------+-----------------------+---------+---------+
//	| header | total  | off[n-1] ... off[0]=0 | field 0 | ...     |
//	+--------+--------+-----------------------+---------+---------+
//
// header占1字节，最高位为存活位；total与各字段偏移量都用
// 变长整数编码，偏移量按字段逆序存放，off[0]恒为0，起到结尾
// 标志的作用。记录整体按8字节对齐，padding填0。
package record

import (
	"encoding/binary"

	"github.com/KotoriAster/DB/util"
)

const (
	// HeaderSize 用户头部大小
	HeaderSize = 1
	// AlignSize 记录对齐
	AlignSize = 8
	// ActiveBit header中的存活位，置位表示存活
	ActiveBit = 0x80
)

// uvarintLen 变长整数的编码长度
func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Size 计算iov编码成记录所需的字节数（未对齐）
func Size(iov [][]byte) int {
	off := 0
	body := HeaderSize
	for _, field := range iov {
		body += uvarintLen(uint64(off)) + len(field)
		off += len(field)
	}
	// total自身也占空间，迭代到不动点
	total := body + 1
	for uvarintLen(uint64(total)) != total-body {
		total = body + uvarintLen(uint64(total))
	}
	return total
}

// Record 引用一段连续空间的记录视图，不拥有底层buffer
type Record struct {
	buffer []byte // 分配给记录的空间，长度为分配长度
}

// Attach 关联buffer，len(buf)即分配长度
func (r *Record) Attach(buf []byte) {
	r.buffer = buf
}

// Detach 解除关联
func (r *Record) Detach() {
	r.buffer = nil
}

// Buffer 返回记录占用的空间
func (r *Record) Buffer() []byte {
	return r.buffer
}

// Set 将iov编码到记录空间上。空间不足返回false。
// 编码后视图收缩到对齐后的记录长度，padding填0。
func (r *Record) Set(iov [][]byte, header byte) bool {
	total := Size(iov)
	if len(r.buffer) < total {
		return false
	}

	r.buffer[0] = header
	offset := 1

	// 输出记录总长
	offset += binary.PutUvarint(r.buffer[offset:], uint64(total))

	// 逆序输出字段偏移量
	sum := 0
	for _, field := range iov {
		sum += len(field)
	}
	for i := len(iov); i > 0; i-- {
		sum -= len(iov[i-1])
		offset += binary.PutUvarint(r.buffer[offset:], uint64(sum))
	}

	// 顺序输出各字段
	for _, field := range iov {
		copy(r.buffer[offset:], field)
		offset += len(field)
	}

	// 对齐并填0
	alloc := util.Align8(total)
	if alloc > len(r.buffer) {
		alloc = len(r.buffer)
	}
	for i := total; i < alloc; i++ {
		r.buffer[i] = 0
	}
	r.buffer = r.buffer[:alloc]
	return true
}

// parse 解析偏移量数组，返回各字段偏移、字段区起点与记录总长
func (r *Record) parse() (offs []int, start int, total int, ok bool) {
	if len(r.buffer) < 2 {
		return nil, 0, 0, false
	}
	v, n := binary.Uvarint(r.buffer[1:])
	if n <= 0 {
		return nil, 0, 0, false
	}
	total = int(v)
	offset := 1 + n

	// 枚举逆序偏移量，遇0为止
	for {
		if offset >= len(r.buffer) {
			return nil, 0, 0, false
		}
		v, n = binary.Uvarint(r.buffer[offset:])
		if n <= 0 {
			return nil, 0, 0, false
		}
		offset += n
		offs = append(offs, int(v))
		if v == 0 {
			break
		}
	}

	// 逆序转正序
	for i, j := 0, len(offs)-1; i < j; i, j = i+1, j-1 {
		offs[i], offs[j] = offs[j], offs[i]
	}
	if total < offset || total > len(r.buffer) {
		return nil, 0, 0, false
	}
	return offs, offset, total, true
}

// Fields 返回记录的字段个数，解析失败返回0
func (r *Record) Fields() int {
	offs, _, _, ok := r.parse()
	if !ok {
		return 0
	}
	return len(offs)
}

// Ref 零拷贝取出全部字段，各字段直接引用记录内部空间
func (r *Record) Ref() (iov [][]byte, header byte, ok bool) {
	offs, start, total, ok := r.parse()
	if !ok {
		return nil, 0, false
	}
	header = r.buffer[0]
	iov = make([][]byte, len(offs))
	for i := range offs {
		end := total - start
		if i+1 < len(offs) {
			end = offs[i+1]
		}
		if end < offs[i] || start+end > len(r.buffer) {
			return nil, 0, false
		}
		iov[i] = r.buffer[start+offs[i] : start+end]
	}
	return iov, header, true
}

// Get 取出全部字段，各字段为独立拷贝
func (r *Record) Get() (iov [][]byte, header byte, ok bool) {
	refs, header, ok := r.Ref()
	if !ok {
		return nil, 0, false
	}
	iov = make([][]byte, len(refs))
	for i, field := range refs {
		iov[i] = make([]byte, len(field))
		copy(iov[i], field)
	}
	return iov, header, true
}

// RefByIndex 零拷贝取出第idx个字段
func (r *Record) RefByIndex(idx int) ([]byte, bool) {
	iov, _, ok := r.Ref()
	if !ok || idx < 0 || idx >= len(iov) {
		return nil, false
	}
	return iov[idx], true
}

// GetByIndex 取出第idx个字段的拷贝
func (r *Record) GetByIndex(idx int) ([]byte, bool) {
	field, ok := r.RefByIndex(idx)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(field))
	copy(out, field)
	return out, true
}

// Length 返回编码的记录总长
func (r *Record) Length() int {
	if len(r.buffer) < 2 {
		return 0
	}
	v, n := binary.Uvarint(r.buffer[1:])
	if n <= 0 {
		return 0
	}
	return int(v)
}

// AllocLength 返回对齐后的分配长度
func (r *Record) AllocLength() int {
	return util.Align8(r.Length())
}

// IsActive 存活位是否置位
func (r *Record) IsActive() bool {
	return r.buffer[0]&ActiveBit != 0
}

// Die 清除存活位，记录变为墓碑
func (r *Record) Die() {
	r.buffer[0] &^= ActiveBit
}
