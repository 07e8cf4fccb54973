package record

import (
	"testing"

	"github.com/KotoriAster/DB/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIov() [][]byte {
	return [][]byte{
		util.ConvertUInt8Bytes(3),
		[]byte("13511110000        "),
		[]byte("zhangsan"),
	}
}

func TestSizeEmpty(t *testing.T) {
	// 空记录只有头部和total自身
	assert.Equal(t, 2, Size(nil))
	assert.Equal(t, 2, Size([][]byte{}))
}

func TestSetRefRoundTrip(t *testing.T) {
	iov := sampleIov()
	size := Size(iov)

	buf := make([]byte, util.Align8(size))
	var rec Record
	rec.Attach(buf)
	require.True(t, rec.Set(iov, ActiveBit))

	out, header, ok := rec.Ref()
	require.True(t, ok)
	assert.Equal(t, byte(ActiveBit), header)
	require.Len(t, out, len(iov))
	for i := range iov {
		assert.Equal(t, iov[i], out[i])
	}

	assert.Equal(t, size, rec.Length())
	assert.Equal(t, util.Align8(size), rec.AllocLength())
	assert.Equal(t, len(iov), rec.Fields())
}

func TestGetCopies(t *testing.T) {
	iov := sampleIov()
	buf := make([]byte, util.Align8(Size(iov)))
	var rec Record
	rec.Attach(buf)
	require.True(t, rec.Set(iov, ActiveBit))

	out, _, ok := rec.Get()
	require.True(t, ok)

	// 改动拷贝不影响记录本身
	out[2][0] = 'X'
	again, _, ok := rec.Ref()
	require.True(t, ok)
	assert.Equal(t, byte('z'), again[2][0])
}

func TestByIndex(t *testing.T) {
	iov := sampleIov()
	buf := make([]byte, util.Align8(Size(iov)))
	var rec Record
	rec.Attach(buf)
	require.True(t, rec.Set(iov, ActiveBit))

	field, ok := rec.RefByIndex(1)
	require.True(t, ok)
	assert.Equal(t, iov[1], field)

	field, ok = rec.GetByIndex(2)
	require.True(t, ok)
	assert.Equal(t, iov[2], field)

	_, ok = rec.RefByIndex(3)
	assert.False(t, ok)
}

func TestSetInsufficientSpace(t *testing.T) {
	iov := sampleIov()
	buf := make([]byte, Size(iov)-1)
	var rec Record
	rec.Attach(buf)
	assert.False(t, rec.Set(iov, ActiveBit))
}

func TestTombstone(t *testing.T) {
	iov := sampleIov()
	buf := make([]byte, util.Align8(Size(iov)))
	var rec Record
	rec.Attach(buf)
	require.True(t, rec.Set(iov, ActiveBit))

	assert.True(t, rec.IsActive())
	rec.Die()
	assert.False(t, rec.IsActive())

	// 墓碑只清存活位，内容仍可解析
	out, _, ok := rec.Ref()
	require.True(t, ok)
	assert.Equal(t, iov[0], out[0])
}

func TestPaddingZeroed(t *testing.T) {
	iov := [][]byte{[]byte("abc")}
	size := Size(iov)
	alloc := util.Align8(size)
	require.Greater(t, alloc, size)

	buf := make([]byte, alloc)
	for i := range buf {
		buf[i] = 0xFF
	}
	var rec Record
	rec.Attach(buf)
	require.True(t, rec.Set(iov, ActiveBit))
	for i := size; i < alloc; i++ {
		assert.Equal(t, byte(0), buf[i])
	}
}
