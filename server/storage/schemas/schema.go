// Package schemas 实现系统目录。
// 所有表的元信息保存在_meta.db的meta块里，每张表一条记录，
// 打开时整体加载进内存的表空间映射。
package schemas

import (
	"sort"

	"github.com/KotoriAster/DB/logger"
	"github.com/KotoriAster/DB/server/storage/buffer_pool"
	"github.com/KotoriAster/DB/server/storage/pages"
	"github.com/KotoriAster/DB/server/storage/record"
	"github.com/KotoriAster/DB/util"

	"github.com/juju/errors"
)

// MetaFile 元文件名
const MetaFile = "_meta.db"

// 表文件的表空间id，目录固定占用0
const tableSpaceid = 1

// Schema 描述表空间
type Schema struct {
	pool       *buffer_pool.BufferPool
	tablespace map[string]*RelationInfo
}

// New 创建Schema
func New(pool *buffer_pool.BufferPool) *Schema {
	return &Schema{
		pool:       pool,
		tablespace: make(map[string]*RelationInfo),
	}
}

// Open 打开元文件。文件尚未初始化时写入超块和第1个meta块，
// 否则枚举meta块里的记录加载表空间。
func (s *Schema) Open() error {
	s.pool.Register(MetaFile, MetaFile)

	// 超块
	desp, err := s.pool.Borrow(MetaFile, 0)
	if err != nil {
		return errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	if !super.CheckMagic() {
		super.Clear(0) // 目录的spaceid总是0
		super.SetFirst(1)
		super.SetChecksum()
		if err := s.pool.WriteBuf(desp); err != nil {
			super.Detach()
			s.pool.ReleaseBuf(desp)
			return errors.Trace(err)
		}
		logger.Infof("initialized meta file %s", MetaFile)
	} else if !super.Checksum() {
		super.Detach()
		s.pool.ReleaseBuf(desp)
		return errors.Annotatef(ErrCorruptedMeta, "super block of %s", MetaFile)
	}
	first := super.GetFirst()
	super.Detach()
	s.pool.ReleaseBuf(desp)

	// 第1个meta块
	desp, err = s.pool.Borrow(MetaFile, first)
	if err != nil {
		return errors.Trace(err)
	}
	var meta pages.MetaBlock
	meta.Attach(desp.Buffer)
	defer func() {
		meta.Detach()
		s.pool.ReleaseBuf(desp)
	}()

	if !meta.CheckMagic() {
		meta.Clear(0, first, pages.BlockTypeMeta)
		if err := s.pool.WriteBuf(desp); err != nil {
			return errors.Trace(err)
		}
		return nil
	}
	if !meta.Checksum() {
		return errors.Annotatef(ErrCorruptedMeta, "meta block %d of %s", first, MetaFile)
	}

	// 枚举所有slot，加载tablespace
	slots := int(meta.GetSlots())
	for i := 0; i < slots; i++ {
		var rec record.Record
		meta.RefSlots(i, &rec)
		iov, _, ok := rec.Ref()
		if !ok {
			return errors.Annotatef(ErrCorruptedMeta, "slot %d of meta block %d", i, first)
		}
		name, info, err := retrieveInfo(iov)
		if err != nil {
			return errors.Annotatef(err, "slot %d of meta block %d", i, first)
		}
		s.tablespace[name] = info
	}
	logger.Debugf("schema loaded, %d tables", len(s.tablespace))
	return nil
}

// Create 新建一张表：写目录记录，并初始化表文件的超块
func (s *Schema) Create(table string, info *RelationInfo) error {
	if int(info.Count) != len(info.Fields) {
		return errors.Trace(ErrInvalidArgument)
	}
	if _, ok := s.tablespace[table]; ok {
		return errors.Annotatef(ErrTableExists, "table %s", table)
	}

	iov := initIov(table, info)

	// 在meta块中分配
	desp, err := s.pool.Borrow(MetaFile, 1)
	if err != nil {
		return errors.Trace(err)
	}
	var meta pages.MetaBlock
	meta.Attach(desp.Buffer)
	length := record.Size(iov)
	offset, ok := meta.Allocate(length)
	if !ok {
		meta.Detach()
		s.pool.ReleaseBuf(desp)
		return errors.Annotatef(ErrMetaFull, "creating table %s", table)
	}

	var rec record.Record
	rec.Attach(desp.Buffer[offset : int(offset)+util.Align8(length)])
	rec.Set(iov, record.ActiveBit)

	meta.SetChecksum()
	meta.Detach()
	if err := s.pool.WriteBuf(desp); err != nil {
		s.pool.ReleaseBuf(desp)
		return errors.Trace(err)
	}
	s.pool.ReleaseBuf(desp)

	s.tablespace[table] = info

	// 初始化表文件的超块
	s.pool.Register(table, info.Path)
	desp, err = s.pool.Borrow(table, 0)
	if err != nil {
		return errors.Trace(err)
	}
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	if !super.CheckMagic() {
		super.Clear(tableSpaceid)
		super.SetChecksum()
		if err := s.pool.WriteBuf(desp); err != nil {
			super.Detach()
			s.pool.ReleaseBuf(desp)
			return errors.Trace(err)
		}
	}
	super.Detach()
	s.pool.ReleaseBuf(desp)

	logger.Infof("created table %s (%d fields, key %d)", table, info.Count, info.Key)
	return nil
}

// Lookup 查找表
func (s *Schema) Lookup(table string) (*RelationInfo, bool) {
	info, ok := s.tablespace[table]
	return info, ok
}

// Tables 返回按名字排序的表名列表
func (s *Schema) Tables() []string {
	names := make([]string, 0, len(s.tablespace))
	for name := range s.tablespace {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pool 返回底层缓冲池
func (s *Schema) Pool() *buffer_pool.BufferPool {
	return s.pool
}

// Destroy 删除元文件
func (s *Schema) Destroy() error {
	s.tablespace = make(map[string]*RelationInfo)
	return s.pool.DropFile(MetaFile)
}
