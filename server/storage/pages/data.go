package pages

import (
	"sort"

	"github.com/KotoriAster/DB/server/storage/datatype"
	"github.com/KotoriAster/DB/server/storage/record"
	"github.com/KotoriAster/DB/util"
)

// 数据块头部各字段偏移
const (
	offDataSlots    = 12 // 2B slots[]长度
	offDataFreeSize = 14 // 2B 可回收空间大小
	offDataStamp    = 16 // 8B 时戳
	offDataNext     = 24 // 4B 下一个数据块
	offDataSelf     = 28 // 4B 本块id

	// DataHeaderSize 数据块头部大小
	DataHeaderSize = 32
)

// InsertDuplicate insertRecord遇到重复键时返回的slot哨兵
const InsertDuplicate = 0xFFFF

// DataBlock 数据块视图。元数据块复用本布局。
type DataBlock struct {
	Block
}

// MetaBlock 元数据块
type MetaBlock = DataBlock

// Clear 清数据块
func (b *DataBlock) Clear(spaceid uint32, self uint32, blockType uint16) {
	for i := range b.buffer {
		b.buffer[i] = 0
	}
	b.SetMagic()
	b.SetSpaceid(spaceid)
	b.SetType(blockType)
	b.SetSelf(self)
	b.SetNext(0)
	b.SetTimeStamp()
	b.SetSlots(0)
	b.SetFreeSize(BlockSize - DataHeaderSize - TrailerSize)
	b.SetFreeSpace(DataHeaderSize)
	b.SetChecksum()
}

// GetNext 获取后继块id
func (b *DataBlock) GetNext() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offDataNext:])
}

// SetNext 设定后继块id
func (b *DataBlock) SetNext(next uint32) {
	copy(b.buffer[offDataNext:], util.ConvertUInt4Bytes(next))
}

// GetSelf 获取本块id
func (b *DataBlock) GetSelf() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[offDataSelf:])
}

// SetSelf 设定本块id
func (b *DataBlock) SetSelf(self uint32) {
	copy(b.buffer[offDataSelf:], util.ConvertUInt4Bytes(self))
}

// GetTimeStamp 获取时戳
func (b *DataBlock) GetTimeStamp() uint64 {
	return util.ReadUB8Byte2UInt64(b.buffer[offDataStamp:])
}

// SetTimeStamp 设定时戳
func (b *DataBlock) SetTimeStamp() {
	copy(b.buffer[offDataStamp:], util.ConvertUInt8Bytes(util.NowStamp()))
}

// GetSlots 获取slot个数
func (b *DataBlock) GetSlots() uint16 {
	return util.ReadUB2Byte2UInt16(b.buffer[offDataSlots:])
}

// SetSlots 设定slot个数
func (b *DataBlock) SetSlots(slots uint16) {
	copy(b.buffer[offDataSlots:], util.ConvertUInt2Bytes(slots))
}

// GetFreeSize 获取可回收空间大小
func (b *DataBlock) GetFreeSize() uint16 {
	return util.ReadUB2Byte2UInt16(b.buffer[offDataFreeSize:])
}

// SetFreeSize 设定可回收空间大小
func (b *DataBlock) SetFreeSize(size uint16) {
	copy(b.buffer[offDataFreeSize:], util.ConvertUInt2Bytes(size))
}

// SetFreeSpace 设定空闲空间游标。块恰好写满时游标等于
// trailer起点，空闲区大小为0。
func (b *DataBlock) SetFreeSpace(freespace uint16) {
	b.setFreeSpaceRaw(freespace)
}

// SetChecksum 重算校验和
func (b *DataBlock) SetChecksum() {
	setChecksum(b.buffer[:BlockSize])
}

// GetChecksum 读取校验和字段
func (b *DataBlock) GetChecksum() uint32 {
	return util.ReadUB4Byte2UInt32(b.buffer[BlockSize-TrailerSize+offChecksum:])
}

// Checksum 校验，全块求和为0则合法
func (b *DataBlock) Checksum() bool {
	return verifyChecksum(b.buffer[:BlockSize])
}

// trailerSizeFor slots个slot时trailer的大小，8B对齐
func trailerSizeFor(slots int) int {
	return util.Align8(slots*SlotSize + 4)
}

// TrailerSize 当前trailer大小，含slot数组与校验和
func (b *DataBlock) TrailerSize() int {
	return trailerSizeFor(int(b.GetSlots()))
}

// FreespaceSize 连续空闲区的大小
func (b *DataBlock) FreespaceSize() int {
	return BlockSize - b.TrailerSize() - int(b.GetFreeSpace())
}

// slotBase slot数组起点，slot 0在最低地址
func (b *DataBlock) slotBase() int {
	return BlockSize - 4 - int(b.GetSlots())*SlotSize
}

// GetSlot 读取slot i的偏移和长度
func (b *DataBlock) GetSlot(index int) (offset uint16, length uint16) {
	pos := b.slotBase() + index*SlotSize
	return util.ReadUB2Byte2UInt16(b.buffer[pos:]), util.ReadUB2Byte2UInt16(b.buffer[pos+2:])
}

// setSlot 写slot i
func (b *DataBlock) setSlot(index int, offset uint16, length uint16) {
	pos := b.slotBase() + index*SlotSize
	copy(b.buffer[pos:], util.ConvertUInt2Bytes(offset))
	copy(b.buffer[pos+2:], util.ConvertUInt2Bytes(length))
}

// RefSlots 将记录视图绑定到slot index的空间上
func (b *DataBlock) RefSlots(index int, rec *record.Record) {
	offset, length := b.GetSlot(index)
	rec.Attach(b.buffer[offset : int(offset)+int(length)])
}

// keyAt slot index处记录的键字段
func (b *DataBlock) keyAt(index int, key int) []byte {
	var rec record.Record
	b.RefSlots(index, &rec)
	field, _ := rec.RefByIndex(key)
	return field
}

// Allocate 在块内分配space字节，返回记录区内的偏移。
// 空间不足返回false；连续空闲区不够时先做一次shrink。
// 新slot追加在slot数组顶端（即slot 0），键序由后续reorder恢复。
func (b *DataBlock) Allocate(space int) (uint16, bool) {
	space = util.Align8(space)
	slots := int(b.GetSlots())
	demand := space + trailerSizeFor(slots+1) - trailerSizeFor(slots)
	if int(b.GetFreeSize()) < demand {
		return 0, false
	}
	if b.FreespaceSize() < demand {
		b.Shrink()
	}

	freespace := b.GetFreeSpace()
	b.SetSlots(uint16(slots + 1))
	b.setSlot(0, freespace, uint16(space))
	b.SetFreeSpace(freespace + uint16(space))
	b.SetFreeSize(uint16(int(b.GetFreeSize()) - demand))
	return freespace, true
}

// Deallocate 回收slot index处的记录：打上墓碑、压缩slot数组、
// 归还空间。记录的字节留在原处，由shrink统一清扫。
func (b *DataBlock) Deallocate(index int) {
	var rec record.Record
	b.RefSlots(index, &rec)
	rec.Die()

	_, length := b.GetSlot(index)
	slots := int(b.GetSlots())
	base := b.slotBase()

	// index之上的slot整体下移一格
	copy(b.buffer[base+SlotSize:base+SlotSize+index*SlotSize], b.buffer[base:base+index*SlotSize])
	b.SetSlots(uint16(slots - 1))

	recovered := int(length) + trailerSizeFor(slots) - trailerSizeFor(slots-1)
	b.SetFreeSize(uint16(int(b.GetFreeSize()) + recovered))
	b.SetChecksum()
}

type slotEntry struct {
	offset uint16
	length uint16
}

func (b *DataBlock) readSlots() []slotEntry {
	slots := int(b.GetSlots())
	entries := make([]slotEntry, slots)
	for i := 0; i < slots; i++ {
		entries[i].offset, entries[i].length = b.GetSlot(i)
	}
	return entries
}

func (b *DataBlock) writeSlots(entries []slotEntry) {
	for i, ent := range entries {
		b.setSlot(i, ent.offset, ent.length)
	}
}

// Shrink 回收墓碑占用的空间：按offset排序后把存活记录
// 依次左移贴紧，重写slot的offset。键序需随后用reorder恢复。
func (b *DataBlock) Shrink() {
	entries := b.readSlots()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].offset < entries[j].offset
	})

	pos := DataHeaderSize
	used := 0
	for i := range entries {
		offset, length := int(entries[i].offset), int(entries[i].length)
		if offset != pos {
			copy(b.buffer[pos:pos+length], b.buffer[offset:offset+length])
		}
		entries[i].offset = uint16(pos)
		pos += length
		used += length
	}
	b.writeSlots(entries)
	b.SetFreeSpace(uint16(pos))
	b.SetFreeSize(uint16(BlockSize - DataHeaderSize - b.TrailerSize() - used))
	b.SetChecksum()
}

// Reorder 按键升序重排slot数组
func (b *DataBlock) Reorder(typ *datatype.DataType, key int) {
	entries := b.readSlots()
	sort.SliceStable(entries, func(i, j int) bool {
		var rx, ry record.Record
		rx.Attach(b.buffer[entries[i].offset : int(entries[i].offset)+int(entries[i].length)])
		ry.Attach(b.buffer[entries[j].offset : int(entries[j].offset)+int(entries[j].length)])
		kx, _ := rx.RefByIndex(key)
		ky, _ := ry.RefByIndex(key)
		return typ.Less(kx, ky)
	})
	b.writeSlots(entries)
	b.SetChecksum()
}

// SearchRecord 在已排序的slot数组上做下界查找，
// 返回键≥needle的最小slot下标；全部小于needle时返回slot个数。
func (b *DataBlock) SearchRecord(typ *datatype.DataType, key int, needle []byte) int {
	slots := int(b.GetSlots())
	return sort.Search(slots, func(i int) bool {
		return !typ.Less(b.keyAt(i, key), needle)
	})
}

// SplitPosition 计算分裂点。space是待插记录的编码长度，
// insert是它的键序位置。返回的split_slot是迁往新块的首个slot，
// 以及待插记录是否落在左半边。
func (b *DataBlock) SplitPosition(space int, insert int) (int, bool) {
	slots := int(b.GetSlots())
	half := util.Align8((BlockSize-DataHeaderSize)/2 - slots*SlotSize)

	acc := 0
	for i := 0; i < slots; i++ {
		if i == insert {
			acc += util.Align8(space)
			if acc > half {
				// 待插记录自身越过中线，落入右半边
				return i, false
			}
		}
		_, length := b.GetSlot(i)
		acc += int(length)
		if acc > half {
			return i, insert <= i
		}
	}
	// 插入位置在末尾且此前未过中线
	return slots, insert != slots
}

// InsertRecord 向块内插入一条记录，返回是否成功与键序位置。
// 重复键返回(false, InsertDuplicate)；空间不足返回(false, pos)，
// 由调用方分裂。
func (b *DataBlock) InsertRecord(typ *datatype.DataType, key int, iov [][]byte) (bool, uint16) {
	length := record.Size(iov)

	pos := b.SearchRecord(typ, key, iov[key])
	if pos < int(b.GetSlots()) && typ.Equal(b.keyAt(pos, key), iov[key]) {
		return false, InsertDuplicate
	}

	offset, ok := b.Allocate(length)
	if !ok {
		return false, uint16(pos)
	}

	var rec record.Record
	rec.Attach(b.buffer[offset : int(offset)+util.Align8(length)])
	rec.Set(iov, record.ActiveBit)

	b.Reorder(typ, key)
	b.SetChecksum()
	return true, uint16(pos)
}

// CopyRecord 把一条已编码的记录原样拷入本块，
// 用于分裂/合并时的记录搬迁。空间不足（shrink后仍不足）返回false。
func (b *DataBlock) CopyRecord(typ *datatype.DataType, key int, rec *record.Record) bool {
	length := rec.Length()
	offset, ok := b.Allocate(length)
	if !ok {
		return false
	}

	alloc := util.Align8(length)
	copy(b.buffer[offset:int(offset)+alloc], rec.Buffer()[:alloc])

	b.Reorder(typ, key)
	b.SetChecksum()
	return true
}

// RecordIterator 按slot序遍历块内记录
type RecordIterator struct {
	block *DataBlock
	index int
	rec   record.Record
}

// NewRecordIterator 返回块内记录的迭代器
func (b *DataBlock) NewRecordIterator() *RecordIterator {
	return &RecordIterator{block: b}
}

// Valid 是否还有记录
func (it *RecordIterator) Valid() bool {
	return it.index < int(it.block.GetSlots())
}

// Record 当前记录视图，推进后失效
func (it *RecordIterator) Record() *record.Record {
	it.block.RefSlots(it.index, &it.rec)
	return &it.rec
}

// Next 推进到下一条记录
func (it *RecordIterator) Next() {
	it.index++
}
