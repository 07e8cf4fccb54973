package table

import (
	"math/rand"
	"testing"

	"github.com/KotoriAster/DB/server/storage/buffer_pool"
	"github.com/KotoriAster/DB/server/storage/datatype"
	"github.com/KotoriAster/DB/server/storage/pages"
	"github.com/KotoriAster/DB/server/storage/record"
	"github.com/KotoriAster/DB/server/storage/schemas"
	"github.com/KotoriAster/DB/util"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInfo() *schemas.RelationInfo {
	return &schemas.RelationInfo{
		Path:  "t.dat",
		Count: 3,
		Key:   0,
		Fields: []schemas.FieldInfo{
			{Name: "id", Index: 0, Length: 8, Type: datatype.Find("BIGINT")},
			{Name: "phone", Index: 1, Length: 20, Type: datatype.Find("CHAR")},
			{Name: "name", Index: 2, Length: -128, Type: datatype.Find("VARCHAR")},
		},
	}
}

func makeIov(id uint64) [][]byte {
	return [][]byte{
		util.ConvertUInt8Bytes(id),
		[]byte("13511110000        "),
		[]byte("zhangsan"),
	}
}

func keyBytes(id uint64) []byte {
	return util.ConvertUInt8Bytes(id)
}

func setup(t *testing.T) (*schemas.Schema, *Table) {
	pool := buffer_pool.New(t.TempDir(), 4*1024*1024)
	schema := schemas.New(pool)
	require.NoError(t, schema.Open())
	require.NoError(t, schema.Create("t", sampleInfo()))
	tbl, err := Open(schema, "t")
	require.NoError(t, err)
	return schema, tbl
}

// insertID 定位后插入
func insertID(t *testing.T, tbl *Table, id uint64) error {
	blkid, err := tbl.Locate(keyBytes(id))
	require.NoError(t, err)
	return tbl.Insert(blkid, makeIov(id))
}

func removeID(t *testing.T, tbl *Table, id uint64) error {
	blkid, err := tbl.Locate(keyBytes(id))
	require.NoError(t, err)
	return tbl.Remove(blkid, keyBytes(id))
}

// chainKeys 沿数据链收集每个块的键，顺便校验块内有序与校验和
func chainKeys(t *testing.T, tbl *Table) [][]uint64 {
	var chain [][]uint64
	it, err := tbl.BeginBlock()
	require.NoError(t, err)
	for it.Valid() {
		block := it.Block()
		require.True(t, block.Checksum())
		var keys []uint64
		for ri := block.NewRecordIterator(); ri.Valid(); ri.Next() {
			field, ok := ri.Record().RefByIndex(0)
			require.True(t, ok)
			keys = append(keys, util.ReadUB8Byte2UInt64(field))
		}
		for i := 1; i < len(keys); i++ {
			require.Less(t, keys[i-1], keys[i])
		}
		chain = append(chain, keys)
		require.NoError(t, it.Next())
	}
	// 链上相邻块之间键区间递增
	for i := 1; i < len(chain); i++ {
		if len(chain[i-1]) == 0 || len(chain[i]) == 0 {
			continue
		}
		require.Less(t, chain[i-1][len(chain[i-1])-1], chain[i][0])
	}
	return chain
}

func TestOpenMissingTable(t *testing.T) {
	pool := buffer_pool.New(t.TempDir(), 4*1024*1024)
	schema := schemas.New(pool)
	require.NoError(t, schema.Open())

	_, err := Open(schema, "nosuch")
	assert.Equal(t, schemas.ErrTableNotFound, errors.Cause(err))
}

func TestBootstrap(t *testing.T) {
	pool := buffer_pool.New(t.TempDir(), 4*1024*1024)
	schema := schemas.New(pool)
	require.NoError(t, schema.Open())
	require.NoError(t, schema.Create("t", sampleInfo()))

	// 建表后数据链为空
	desp, err := pool.Borrow("t", 0)
	require.NoError(t, err)
	var super pages.SuperBlock
	super.Attach(desp.Buffer)
	assert.Equal(t, uint32(0), super.GetFirst())
	assert.Equal(t, uint32(0), super.GetDataCounts())
	super.Detach()
	pool.ReleaseBuf(desp)

	// 打开表后第1个数据块挂链
	tbl, err := Open(schema, "t")
	require.NoError(t, err)

	desp, err = pool.Borrow("t", 0)
	require.NoError(t, err)
	super.Attach(desp.Buffer)
	assert.Equal(t, uint32(1), super.GetFirst())
	assert.True(t, super.Checksum())
	super.Detach()
	pool.ReleaseBuf(desp)

	records, err := tbl.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), records)
	dataCount, err := tbl.DataCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), dataCount)
}

func TestInsertLocateRemove(t *testing.T) {
	_, tbl := setup(t)

	for _, id := range []uint64{30, 10, 20} {
		require.NoError(t, insertID(t, tbl, id))
	}
	records, _ := tbl.RecordCount()
	assert.Equal(t, uint64(3), records)

	// 重复键
	err := insertID(t, tbl, 20)
	assert.Equal(t, ErrKeyExists, errors.Cause(err))
	records, _ = tbl.RecordCount()
	assert.Equal(t, uint64(3), records)

	// 删除存在与不存在的键
	require.NoError(t, removeID(t, tbl, 20))
	err = removeID(t, tbl, 99)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	records, _ = tbl.RecordCount()
	assert.Equal(t, uint64(2), records)

	chain := chainKeys(t, tbl)
	require.Len(t, chain, 1)
	assert.Equal(t, []uint64{10, 30}, chain[0])
}

func TestFillThenSplit(t *testing.T) {
	_, tbl := setup(t)

	inserted := uint64(0)
	for {
		require.NoError(t, insertID(t, tbl, inserted))
		inserted++
		dataCount, err := tbl.DataCount()
		require.NoError(t, err)
		if dataCount == 2 {
			break
		}
		require.Less(t, inserted, uint64(100000))
	}

	records, _ := tbl.RecordCount()
	assert.Equal(t, uint64(inserted), records)

	chain := chainKeys(t, tbl)
	require.Len(t, chain, 2)
	assert.NotEmpty(t, chain[0])
	assert.NotEmpty(t, chain[1])
	assert.Equal(t, int(inserted), len(chain[0])+len(chain[1]))
}

func TestBulkRandomChainOrder(t *testing.T) {
	_, tbl := setup(t)

	rng := rand.New(rand.NewSource(42))
	seen := make(map[uint64]bool)
	inserted := 0
	for inserted < 2000 {
		id := uint64(rng.Intn(1 << 30))
		if seen[id] {
			continue
		}
		seen[id] = true
		require.NoError(t, insertID(t, tbl, id))
		inserted++
	}

	records, _ := tbl.RecordCount()
	assert.Equal(t, uint64(2000), records)

	chain := chainKeys(t, tbl)
	require.Greater(t, len(chain), 1)
	total := 0
	for _, keys := range chain {
		total += len(keys)
	}
	assert.Equal(t, 2000, total)
}

func TestMergeOnDelete(t *testing.T) {
	_, tbl := setup(t)

	// 填到分裂成两个块
	inserted := uint64(0)
	for {
		require.NoError(t, insertID(t, tbl, inserted))
		inserted++
		dataCount, _ := tbl.DataCount()
		if dataCount == 2 {
			break
		}
	}

	// 从高到低删到只剩两条，后继块迟早被吞并回收
	for id := inserted - 1; id >= 2; id-- {
		require.NoError(t, removeID(t, tbl, id))
	}

	records, _ := tbl.RecordCount()
	assert.Equal(t, uint64(2), records)
	dataCount, _ := tbl.DataCount()
	assert.Equal(t, uint32(1), dataCount)
	idleCount, _ := tbl.IdleCount()
	assert.Equal(t, uint32(1), idleCount)

	chain := chainKeys(t, tbl)
	require.Len(t, chain, 1)
	assert.Equal(t, []uint64{0, 1}, chain[0])
}

func TestRebalanceOnDelete(t *testing.T) {
	_, tbl := setup(t)

	// 填到分裂
	inserted := uint64(0)
	for {
		require.NoError(t, insertID(t, tbl, inserted))
		inserted++
		dataCount, _ := tbl.DataCount()
		if dataCount == 2 {
			break
		}
	}

	// 继续塞高键，让第2个块远比第1个块满
	chain := chainKeys(t, tbl)
	firstLen := len(chain[0])
	for len(chain) == 2 && len(chain[1]) < firstLen*3/2+20 {
		require.NoError(t, insertID(t, tbl, inserted))
		inserted++
		chain = chainKeys(t, tbl)
	}
	require.Len(t, chain, 2)

	// 从第1个块删几条触发均衡
	before := chainKeys(t, tbl)
	deleted := 0
	for _, id := range before[0] {
		require.NoError(t, removeID(t, tbl, id))
		deleted++
		after := chainKeys(t, tbl)
		if len(after) == 2 && len(after[0]) > len(before[0])-deleted {
			// 第1个块的slot数涨回来了，均衡发生
			return
		}
		if len(after) == 1 {
			// 直接吞并也满足不变式
			return
		}
	}
	t.Fatal("rebalance never happened")
}

func TestInsertOversizedRecord(t *testing.T) {
	_, tbl := setup(t)

	iov := makeIov(1)
	iov[2] = make([]byte, 17000) // 超过空块容量
	blkid, err := tbl.Locate(keyBytes(1))
	require.NoError(t, err)
	err = tbl.Insert(blkid, iov)
	assert.Equal(t, ErrRecordTooLarge, errors.Cause(err))

	records, _ := tbl.RecordCount()
	assert.Equal(t, uint64(0), records)
}

func TestAllocateDeallocate(t *testing.T) {
	_, tbl := setup(t)

	dataCount0, _ := tbl.DataCount()
	idleCount0, _ := tbl.IdleCount()

	blkid, err := tbl.Allocate()
	require.NoError(t, err)
	assert.Greater(t, blkid, uint32(1))

	dataCount, _ := tbl.DataCount()
	assert.Equal(t, dataCount0+1, dataCount)

	require.NoError(t, tbl.Deallocate(blkid))
	dataCount, _ = tbl.DataCount()
	idleCount, _ := tbl.IdleCount()
	assert.Equal(t, dataCount0, dataCount)
	assert.Equal(t, idleCount0+1, idleCount)

	// 再分配时弹出空闲链头，maxid单调
	again, err := tbl.Allocate()
	require.NoError(t, err)
	assert.Equal(t, blkid, again)
	idleCount, _ = tbl.IdleCount()
	assert.Equal(t, idleCount0, idleCount)
}

func TestUpdate(t *testing.T) {
	_, tbl := setup(t)

	for id := uint64(0); id < 10; id++ {
		require.NoError(t, insertID(t, tbl, id))
	}

	// 更新payload，键不变
	blkid, err := tbl.Locate(keyBytes(5))
	require.NoError(t, err)
	iov := makeIov(5)
	iov[2] = []byte("lisi")
	require.NoError(t, tbl.Update(blkid, iov))

	records, _ := tbl.RecordCount()
	assert.Equal(t, uint64(10), records)

	// 读回验证
	blk5, err := tbl.Locate(keyBytes(5))
	require.NoError(t, err)
	it, err := tbl.BeginBlock()
	require.NoError(t, err)
	found := false
	for it.Valid() {
		if it.Block().GetSelf() == blk5 {
			pos := it.Block().SearchRecord(tbl.Info().KeyType(), 0, keyBytes(5))
			var rec record.Record
			it.Block().RefSlots(pos, &rec)
			name, ok := rec.RefByIndex(2)
			require.True(t, ok)
			assert.Equal(t, []byte("lisi"), name)
			found = true
		}
		require.NoError(t, it.Next())
	}
	assert.True(t, found)

	// 更新不存在的键
	err = tbl.Update(blkid, makeIov(77777))
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}
