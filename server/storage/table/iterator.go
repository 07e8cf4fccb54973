package table

import (
	"github.com/KotoriAster/DB/server/storage/buffer_pool"
	"github.com/KotoriAster/DB/server/storage/pages"

	"github.com/juju/errors"
)

// BlockIterator 沿数据链遍历表的数据块。
// 迭代器持有当前页面的引用，推进时释放旧页再借新页，
// 块视图不可跨越Next继续使用。
type BlockIterator struct {
	table *Table
	desp  *buffer_pool.BufDesp
	block pages.DataBlock
}

// BeginBlock 返回指向数据链头的迭代器
func (t *Table) BeginBlock() (*BlockIterator, error) {
	it := &BlockIterator{table: t}
	if t.first == 0 {
		return it, nil
	}
	desp, err := t.pool.Borrow(t.name, t.first)
	if err != nil {
		return nil, errors.Trace(err)
	}
	it.desp = desp
	it.block.Attach(desp.Buffer)
	return it, nil
}

// Valid 迭代器是否指向有效块
func (it *BlockIterator) Valid() bool {
	return it.desp != nil
}

// Block 当前数据块视图
func (it *BlockIterator) Block() *pages.DataBlock {
	return &it.block
}

// Next 推进到链上的下一个块
func (it *BlockIterator) Next() error {
	if it.desp == nil {
		return nil
	}
	next := it.block.GetNext()
	it.block.Detach()
	it.table.pool.ReleaseBuf(it.desp)
	it.desp = nil

	if next == 0 {
		return nil
	}
	desp, err := it.table.pool.Borrow(it.table.name, next)
	if err != nil {
		return errors.Trace(err)
	}
	it.desp = desp
	it.block.Attach(desp.Buffer)
	return nil
}

// Close 提前结束遍历，释放当前页面
func (it *BlockIterator) Close() {
	if it.desp != nil {
		it.block.Detach()
		it.table.pool.ReleaseBuf(it.desp)
		it.desp = nil
	}
}
