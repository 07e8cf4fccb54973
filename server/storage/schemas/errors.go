package schemas

import "github.com/juju/errors"

var (
	// ErrTableExists 表已存在
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotFound 表不存在
	ErrTableNotFound = errors.New("table not found")
	// ErrInvalidArgument 关系描述不自洽
	ErrInvalidArgument = errors.New("invalid relation info")
	// ErrCorruptedMeta 元文件校验失败
	ErrCorruptedMeta = errors.New("corrupted meta block")
	// ErrMetaFull 元数据块已满
	ErrMetaFull = errors.New("meta block is full")
)
