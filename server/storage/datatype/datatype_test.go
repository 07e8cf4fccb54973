package datatype

import (
	"testing"

	"github.com/KotoriAster/DB/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind(t *testing.T) {
	for _, name := range []string{"CHAR", "VARCHAR", "TINYINT", "SMALLINT", "INT", "BIGINT"} {
		typ := Find(name)
		require.NotNil(t, typ, name)
		assert.Equal(t, name, typ.Name)
	}
	assert.Nil(t, Find("DECIMAL"))
	assert.Nil(t, Find("char"))
}

func TestBigIntLess(t *testing.T) {
	typ := Find("BIGINT")
	a := util.ConvertUInt8Bytes(100)
	b := util.ConvertUInt8Bytes(200)

	assert.True(t, typ.Less(a, b))
	assert.False(t, typ.Less(b, a))
	assert.False(t, typ.Less(a, a))
	assert.True(t, typ.Equal(a, a))

	// 大序编码保证跨字节边界的比较正确
	c := util.ConvertUInt8Bytes(255)
	d := util.ConvertUInt8Bytes(256)
	assert.True(t, typ.Less(c, d))
}

func TestVarCharLess(t *testing.T) {
	typ := Find("VARCHAR")
	assert.True(t, typ.Less([]byte("abc"), []byte("abd")))
	assert.True(t, typ.Less([]byte("ab"), []byte("abc"))) // 前缀更短者小
	assert.False(t, typ.Less([]byte("abc"), []byte("abc")))
	assert.True(t, typ.Equal([]byte("abc"), []byte("abc")))
}

func TestSwap(t *testing.T) {
	typ := Find("INT")
	buf := []byte{0x12, 0x34, 0x56, 0x78}
	typ.HtoBE(buf)
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, buf)
	typ.BEtoH(buf)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, buf)

	// 字符串类型不转换
	char := Find("CHAR")
	buf2 := []byte{1, 2, 3}
	char.HtoBE(buf2)
	assert.Equal(t, []byte{1, 2, 3}, buf2)
}
