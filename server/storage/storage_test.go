package storage

import (
	"testing"

	"github.com/KotoriAster/DB/conf"
	"github.com/KotoriAster/DB/server/storage/datatype"
	"github.com/KotoriAster/DB/server/storage/schemas"
	"github.com/KotoriAster/DB/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCfg(t *testing.T) *conf.Cfg {
	cfg := conf.NewCfg()
	cfg.DataDir = t.TempDir()
	return cfg
}

func testInfo() *schemas.RelationInfo {
	return &schemas.RelationInfo{
		Path:  "t.dat",
		Count: 2,
		Key:   0,
		Fields: []schemas.FieldInfo{
			{Name: "id", Index: 0, Length: 8, Type: datatype.Find("BIGINT")},
			{Name: "name", Index: 1, Length: -64, Type: datatype.Find("VARCHAR")},
		},
	}
}

func TestOpenCreateInsertReopen(t *testing.T) {
	cfg := testCfg(t)

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.CreateTable("t", testInfo()))

	tbl, err := db.OpenTable("t")
	require.NoError(t, err)
	for id := uint64(0); id < 100; id++ {
		iov := [][]byte{util.ConvertUInt8Bytes(id), []byte("wangwu")}
		blkid, err := tbl.Locate(util.ConvertUInt8Bytes(id))
		require.NoError(t, err)
		require.NoError(t, tbl.Insert(blkid, iov))
	}
	require.NoError(t, db.Close())

	// 重新打开，数据都在
	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	tbl, err = db.OpenTable("t")
	require.NoError(t, err)
	records, err := tbl.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), records)

	it, err := tbl.BeginBlock()
	require.NoError(t, err)
	count := 0
	for it.Valid() {
		assert.True(t, it.Block().Checksum())
		count += int(it.Block().GetSlots())
		require.NoError(t, it.Next())
	}
	assert.Equal(t, 100, count)
}
