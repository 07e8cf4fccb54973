// Package storage 把缓冲池、文件池和系统目录聚合成一个
// Database对象。进程内创建一次，向上层对象显式传递，
// 不做隐藏的全局单例。
package storage

import (
	"github.com/KotoriAster/DB/conf"
	"github.com/KotoriAster/DB/logger"
	"github.com/KotoriAster/DB/server/storage/buffer_pool"
	"github.com/KotoriAster/DB/server/storage/schemas"
	"github.com/KotoriAster/DB/server/storage/table"

	"github.com/juju/errors"
)

// DB 数据库聚合对象
type DB struct {
	Cfg    *conf.Cfg
	Pool   *buffer_pool.BufferPool
	Schema *schemas.Schema
}

// Open 按配置初始化数据库：建数据目录、缓冲池和目录
func Open(cfg *conf.Cfg) (*DB, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, errors.Trace(err)
	}
	pool := buffer_pool.New(cfg.DataDir, cfg.BufferPoolSize)
	schema := schemas.New(pool)
	if err := schema.Open(); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Infof("database opened at %s, buffer pool %d bytes", cfg.DataDir, cfg.BufferPoolSize)
	return &DB{
		Cfg:    cfg,
		Pool:   pool,
		Schema: schema,
	}, nil
}

// CreateTable 新建一张表
func (db *DB) CreateTable(name string, info *schemas.RelationInfo) error {
	return db.Schema.Create(name, info)
}

// OpenTable 打开一张表
func (db *DB) OpenTable(name string) (*table.Table, error) {
	return table.Open(db.Schema, name)
}

// Close 写回全部脏页并关闭文件
func (db *DB) Close() error {
	return db.Pool.Close()
}
