// Package table 实现表级的存储管理。
// 一张表独占一个文件：超块加数据块单链。块内记录按键升序，
// 链上相邻块之间键区间严格递增。插入溢出时分裂，删除后
// 空闲过半时尝试吞并或均衡后继块，空块挂回超块的空闲链。
package table

import (
	"github.com/KotoriAster/DB/logger"
	"github.com/KotoriAster/DB/server/storage/buffer_pool"
	"github.com/KotoriAster/DB/server/storage/pages"
	"github.com/KotoriAster/DB/server/storage/record"
	"github.com/KotoriAster/DB/server/storage/schemas"
	"github.com/KotoriAster/DB/util"

	"github.com/juju/errors"
)

// maxRecordSpace 空数据块能容纳的最大记录空间
const maxRecordSpace = pages.BlockSize - pages.DataHeaderSize - pages.TrailerSize

// mergeThreshold 删除后触发合并检查的空闲空间下限
const mergeThreshold = maxRecordSpace / 2

// Table 表操作接口
type Table struct {
	name    string
	info    *schemas.RelationInfo
	schema  *schemas.Schema
	pool    *buffer_pool.BufferPool
	spaceid uint32
	maxid   uint32 // 最大的blockid
	idle    uint32 // 空闲链头
	first   uint32 // 数据链头
}

// Open 打开一张表。表必须已经在目录中登记。
// 数据链为空时分配第1个数据块并挂链。
func Open(schema *schemas.Schema, name string) (*Table, error) {
	info, ok := schema.Lookup(name)
	if !ok {
		return nil, errors.Annotatef(schemas.ErrTableNotFound, "table %s", name)
	}

	t := &Table{
		name:   name,
		info:   info,
		schema: schema,
		pool:   schema.Pool(),
	}
	t.pool.Register(name, info.Path)

	// 加载超块
	desp, err := t.pool.Borrow(name, 0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	if !super.CheckMagic() {
		super.Clear(1)
		super.SetChecksum()
		if err := t.pool.WriteBuf(desp); err != nil {
			super.Detach()
			t.pool.ReleaseBuf(desp)
			return nil, errors.Trace(err)
		}
	}
	t.spaceid = super.GetSpaceid()
	t.maxid = super.GetMaxid()
	t.idle = super.GetIdle()
	t.first = super.GetFirst()
	super.Detach()
	t.pool.ReleaseBuf(desp)

	// 数据链为空，分配第1个数据块
	if t.first == 0 {
		blkid, err := t.Allocate()
		if err != nil {
			return nil, errors.Trace(err)
		}
		desp, err := t.pool.Borrow(name, 0)
		if err != nil {
			return nil, errors.Trace(err)
		}
		super.Attach(desp.Buffer)
		super.SetFirst(blkid)
		super.SetChecksum()
		super.Detach()
		if err := t.pool.WriteBuf(desp); err != nil {
			t.pool.ReleaseBuf(desp)
			return nil, errors.Trace(err)
		}
		t.pool.ReleaseBuf(desp)
		t.first = blkid
		logger.Debugf("table %s bootstrapped, first block %d", name, blkid)
	}
	return t, nil
}

// Name 表名
func (t *Table) Name() string {
	return t.name
}

// Info 表的元数据
func (t *Table) Info() *schemas.RelationInfo {
	return t.info
}

// Allocate 分配一个数据块：优先弹出空闲链头，否则扩展maxid。
// 返回的块已清为DATA类型。
func (t *Table) Allocate() (uint32, error) {
	var super pages.SuperBlock
	var data pages.DataBlock

	if t.idle != 0 {
		current := t.idle

		// 读空闲块，取得下一个空闲块
		desp, err := t.pool.Borrow(t.name, current)
		if err != nil {
			return 0, errors.Trace(err)
		}
		var idle pages.IdleBlock
		idle.Attach(desp.Buffer)
		next := idle.GetNext()
		idle.Detach()
		t.pool.ReleaseBuf(desp)

		// 更新超块的空闲链
		desp, err = t.pool.Borrow(t.name, 0)
		if err != nil {
			return 0, errors.Trace(err)
		}
		super.Attach(desp.Buffer)
		super.SetIdle(next)
		super.SetIdleCounts(super.GetIdleCounts() - 1)
		super.SetDataCounts(super.GetDataCounts() + 1)
		super.SetChecksum()
		super.Detach()
		if err := t.pool.WriteBuf(desp); err != nil {
			t.pool.ReleaseBuf(desp)
			return 0, errors.Trace(err)
		}
		t.pool.ReleaseBuf(desp)
		t.idle = next

		// 清为数据块
		desp, err = t.pool.Borrow(t.name, current)
		if err != nil {
			return 0, errors.Trace(err)
		}
		data.Attach(desp.Buffer)
		data.Clear(t.spaceid, current, pages.BlockTypeData)
		data.Detach()
		if err := t.pool.WriteBuf(desp); err != nil {
			t.pool.ReleaseBuf(desp)
			return 0, errors.Trace(err)
		}
		t.pool.ReleaseBuf(desp)
		return current, nil
	}

	// 没有空闲块，扩展文件
	t.maxid++
	desp, err := t.pool.Borrow(t.name, 0)
	if err != nil {
		return 0, errors.Trace(err)
	}
	super.Attach(desp.Buffer)
	super.SetMaxid(t.maxid)
	super.SetDataCounts(super.GetDataCounts() + 1)
	super.SetChecksum()
	super.Detach()
	if err := t.pool.WriteBuf(desp); err != nil {
		t.pool.ReleaseBuf(desp)
		return 0, errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp)

	desp, err = t.pool.Borrow(t.name, t.maxid)
	if err != nil {
		return 0, errors.Trace(err)
	}
	data.Attach(desp.Buffer)
	data.Clear(t.spaceid, t.maxid, pages.BlockTypeData)
	data.Detach()
	if err := t.pool.WriteBuf(desp); err != nil {
		t.pool.ReleaseBuf(desp)
		return 0, errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp)
	return t.maxid, nil
}

// Deallocate 回收一个数据块，改写为空闲块挂到空闲链头
func (t *Table) Deallocate(blockid uint32) error {
	desp, err := t.pool.Borrow(t.name, blockid)
	if err != nil {
		return errors.Trace(err)
	}
	var idle pages.IdleBlock
	idle.Attach(desp.Buffer)
	idle.SetType(pages.BlockTypeIdle)
	idle.SetNext(t.idle)
	idle.SetChecksum()
	idle.Detach()
	if err := t.pool.WriteBuf(desp); err != nil {
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp)

	desp, err = t.pool.Borrow(t.name, 0)
	if err != nil {
		return errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	super.SetIdle(blockid)
	super.SetIdleCounts(super.GetIdleCounts() + 1)
	super.SetDataCounts(super.GetDataCounts() - 1)
	super.SetChecksum()
	super.Detach()
	if err := t.pool.WriteBuf(desp); err != nil {
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp)

	t.idle = blockid
	return nil
}

// Locate 沿数据链定位键应落入的块。
// 依次比较各块首记录的键，键小于某块首键时归属前一块。
func (t *Table) Locate(key []byte) (uint32, error) {
	typ := t.info.KeyType()
	keyIdx := int(t.info.Key)

	var prev uint32
	blkid := t.first
	for blkid != 0 {
		desp, err := t.pool.Borrow(t.name, blkid)
		if err != nil {
			return 0, errors.Trace(err)
		}
		var data pages.DataBlock
		data.Attach(desp.Buffer)
		slots := int(data.GetSlots())
		next := data.GetNext()
		var k0 []byte
		if slots > 0 {
			var rec record.Record
			data.RefSlots(0, &rec)
			k0, _ = rec.GetByIndex(keyIdx)
		}
		data.Detach()
		t.pool.ReleaseBuf(desp)

		if slots == 0 {
			// 空块不参与比较，只有链头可以充当prev
			if prev == 0 {
				prev = blkid
			}
			blkid = next
			continue
		}
		if typ.Less(k0, key) {
			prev = blkid
			blkid = next
			continue
		}
		if typ.Less(key, k0) {
			if prev == 0 {
				return blkid, nil
			}
			return prev, nil
		}
		return blkid, nil // 相等
	}
	if prev == 0 {
		return t.first, nil
	}
	return prev, nil
}

// addRecords 调整超块的记录总数
func (t *Table) addRecords(delta int64) error {
	desp, err := t.pool.Borrow(t.name, 0)
	if err != nil {
		return errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	super.SetRecords(uint64(int64(super.GetRecords()) + delta))
	super.SetChecksum()
	super.Detach()
	if err := t.pool.WriteBuf(desp); err != nil {
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp)
	return nil
}

// Insert 向blkid指向的块插入一条记录，溢出时分裂。
// 重复键返回ErrKeyExists。
func (t *Table) Insert(blkid uint32, iov [][]byte) error {
	typ := t.info.KeyType()
	keyIdx := int(t.info.Key)

	length := record.Size(iov)
	if util.Align8(length) > maxRecordSpace {
		return errors.Annotatef(ErrRecordTooLarge, "%d bytes", length)
	}

	desp, err := t.pool.Borrow(t.name, blkid)
	if err != nil {
		return errors.Trace(err)
	}
	var data pages.DataBlock
	data.Attach(desp.Buffer)

	ok, pos := data.InsertRecord(typ, keyIdx, iov)
	if ok {
		data.Detach()
		if err := t.pool.WriteBuf(desp); err != nil {
			t.pool.ReleaseBuf(desp)
			return errors.Trace(err)
		}
		t.pool.ReleaseBuf(desp)
		return t.addRecords(1)
	}
	if pos == pages.InsertDuplicate {
		data.Detach()
		t.pool.ReleaseBuf(desp)
		return errors.Annotatef(ErrKeyExists, "table %s", t.name)
	}

	// 分裂。先分配新块，再搬迁记录。
	splitSlot, leftSide := data.SplitPosition(length, int(pos))
	newid, err := t.Allocate()
	if err != nil {
		data.Detach()
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	desp2, err := t.pool.Borrow(t.name, newid)
	if err != nil {
		data.Detach()
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	var next pages.DataBlock
	next.Attach(desp2.Buffer)

	// 把分裂点之后的slot搬到新块
	for int(data.GetSlots()) > splitSlot {
		var rec record.Record
		data.RefSlots(splitSlot, &rec)
		next.CopyRecord(typ, keyIdx, &rec)
		data.Deallocate(splitSlot)
	}
	if leftSide {
		data.InsertRecord(typ, keyIdx, iov)
	} else {
		next.InsertRecord(typ, keyIdx, iov)
	}

	// 维持数据链
	next.SetNext(data.GetNext())
	next.SetChecksum()
	data.SetNext(newid)
	data.SetChecksum()

	next.Detach()
	data.Detach()
	if err := t.pool.WriteBuf(desp2); err != nil {
		t.pool.ReleaseBuf(desp2)
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp2)
	if err := t.pool.WriteBuf(desp); err != nil {
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp)

	logger.Debugf("table %s split block %d -> %d at slot %d", t.name, blkid, newid, splitSlot)
	return t.addRecords(1)
}

// Remove 从blkid指向的块删除键对应的记录。
// 删除后空闲过半时尝试吞并后继块，吞不下则均衡两块的slot数。
func (t *Table) Remove(blkid uint32, key []byte) error {
	typ := t.info.KeyType()
	keyIdx := int(t.info.Key)

	desp, err := t.pool.Borrow(t.name, blkid)
	if err != nil {
		return errors.Trace(err)
	}
	var data pages.DataBlock
	data.Attach(desp.Buffer)

	pos := data.SearchRecord(typ, keyIdx, key)
	if pos >= int(data.GetSlots()) {
		data.Detach()
		t.pool.ReleaseBuf(desp)
		return errors.Trace(ErrNotFound)
	}
	var rec record.Record
	data.RefSlots(pos, &rec)
	pk, _ := rec.RefByIndex(keyIdx)
	if !typ.Equal(pk, key) {
		data.Detach()
		t.pool.ReleaseBuf(desp)
		return errors.Trace(ErrNotFound)
	}

	data.Deallocate(pos)

	// 空闲过半时考虑合并
	if int(data.GetFreeSize()) > mergeThreshold && data.GetNext() != 0 {
		if err := t.mergeOrBalance(&data); err != nil {
			data.Detach()
			t.pool.ReleaseBuf(desp)
			return errors.Trace(err)
		}
	}

	data.Detach()
	if err := t.pool.WriteBuf(desp); err != nil {
		t.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	t.pool.ReleaseBuf(desp)
	return t.addRecords(-1)
}

// mergeOrBalance 后继块能整体放下则吞并并回收之，
// 否则把多出的slot匀过来一半
func (t *Table) mergeOrBalance(data *pages.DataBlock) error {
	typ := t.info.KeyType()
	keyIdx := int(t.info.Key)

	nextid := data.GetNext()
	desp, err := t.pool.Borrow(t.name, nextid)
	if err != nil {
		return errors.Trace(err)
	}
	var next pages.DataBlock
	next.Attach(desp.Buffer)

	usedNext := maxRecordSpace - int(next.GetFreeSize())
	if usedNext <= int(data.GetFreeSize()) {
		// 可以吞并
		if usedNext > data.FreespaceSize() {
			data.Shrink()
			data.Reorder(typ, keyIdx)
		}
		for next.GetSlots() > 0 {
			var rec record.Record
			next.RefSlots(0, &rec)
			data.CopyRecord(typ, keyIdx, &rec)
			next.Deallocate(0)
		}
		data.SetNext(next.GetNext())
		data.SetChecksum()
		next.Detach()
		t.pool.ReleaseBuf(desp)
		if err := t.Deallocate(nextid); err != nil {
			return errors.Trace(err)
		}
		logger.Debugf("table %s merged block %d into predecessor", t.name, nextid)
		return nil
	}

	if next.GetSlots() > data.GetSlots() {
		// 均分slot
		diff := (next.GetSlots() - data.GetSlots()) / 2
		shrunk := false
		for ; diff > 0; diff-- {
			var rec record.Record
			next.RefSlots(0, &rec)
			ok := data.CopyRecord(typ, keyIdx, &rec)
			if !ok && !shrunk {
				data.Shrink()
				data.Reorder(typ, keyIdx)
				shrunk = true
				ok = data.CopyRecord(typ, keyIdx, &rec)
			}
			if !ok {
				break
			}
			next.Deallocate(0)
		}
		next.Detach()
		if err := t.pool.WriteBuf(desp); err != nil {
			t.pool.ReleaseBuf(desp)
			return errors.Trace(err)
		}
		t.pool.ReleaseBuf(desp)
		return nil
	}

	next.Detach()
	t.pool.ReleaseBuf(desp)
	return nil
}

// Update 按键更新一条记录：先删后插，插入失败时恢复旧记录
func (t *Table) Update(blkid uint32, iov [][]byte) error {
	typ := t.info.KeyType()
	keyIdx := int(t.info.Key)
	key := iov[keyIdx]

	length := record.Size(iov)
	if util.Align8(length) > maxRecordSpace {
		return errors.Annotatef(ErrRecordTooLarge, "%d bytes", length)
	}

	// 备份旧记录，删除后插入失败时恢复
	desp, err := t.pool.Borrow(t.name, blkid)
	if err != nil {
		return errors.Trace(err)
	}
	var data pages.DataBlock
	data.Attach(desp.Buffer)
	pos := data.SearchRecord(typ, keyIdx, key)
	if pos >= int(data.GetSlots()) {
		data.Detach()
		t.pool.ReleaseBuf(desp)
		return errors.Trace(ErrNotFound)
	}
	var rec record.Record
	data.RefSlots(pos, &rec)
	pk, _ := rec.RefByIndex(keyIdx)
	if !typ.Equal(pk, key) {
		data.Detach()
		t.pool.ReleaseBuf(desp)
		return errors.Trace(ErrNotFound)
	}
	backup := make([]byte, len(rec.Buffer()))
	copy(backup, rec.Buffer())
	data.Detach()
	t.pool.ReleaseBuf(desp)

	if err := t.Remove(blkid, key); err != nil {
		return errors.Trace(err)
	}
	if err := t.Insert(blkid, iov); err != nil {
		// 恢复旧记录
		var old record.Record
		old.Attach(backup)
		desp, berr := t.pool.Borrow(t.name, blkid)
		if berr != nil {
			return errors.Trace(berr)
		}
		data.Attach(desp.Buffer)
		data.CopyRecord(typ, keyIdx, &old)
		data.Detach()
		if werr := t.pool.WriteBuf(desp); werr != nil {
			t.pool.ReleaseBuf(desp)
			return errors.Trace(werr)
		}
		t.pool.ReleaseBuf(desp)
		if aerr := t.addRecords(1); aerr != nil {
			return errors.Trace(aerr)
		}
		return errors.Annotatef(ErrNotFound, "update in table %s, old record restored: %v", t.name, err)
	}
	return nil
}

// RecordCount 表的记录总数
func (t *Table) RecordCount() (uint64, error) {
	desp, err := t.pool.Borrow(t.name, 0)
	if err != nil {
		return 0, errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	count := super.GetRecords()
	super.Detach()
	t.pool.ReleaseBuf(desp)
	return count, nil
}

// DataCount 数据块个数
func (t *Table) DataCount() (uint32, error) {
	desp, err := t.pool.Borrow(t.name, 0)
	if err != nil {
		return 0, errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	count := super.GetDataCounts()
	super.Detach()
	t.pool.ReleaseBuf(desp)
	return count, nil
}

// IdleCount 空闲块个数
func (t *Table) IdleCount() (uint32, error) {
	desp, err := t.pool.Borrow(t.name, 0)
	if err != nil {
		return 0, errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	count := super.GetIdleCounts()
	super.Detach()
	t.pool.ReleaseBuf(desp)
	return count, nil
}
