package schemas

import (
	"github.com/KotoriAster/DB/server/storage/datatype"
	"github.com/KotoriAster/DB/util"
)

// FieldInfo 描述关系的一个域
type FieldInfo struct {
	Name   string             // 域名
	Index  uint64             // 位置
	Length int64              // 长度，>0固定大小，<0为最大大小
	Type   *datatype.DataType // 数据类型
}

// RelationInfo 内存中的关系描述。
// 落盘为一条记录，由meta块保存，以表名做键。
type RelationInfo struct {
	Path   string // 数据文件名
	Count  uint16 // 域的个数
	Type   uint16 // 表类型
	Key    uint32 // 键的域
	Size   uint64 // 表大小
	Rows   uint64 // 行数
	Fields []FieldInfo
}

// IovSize 关系序列化后的字段个数
func (info *RelationInfo) IovSize() int {
	return 7 + 4*int(info.Count)
}

// KeyType 键域的数据类型
func (info *RelationInfo) KeyType() *datatype.DataType {
	return info.Fields[info.Key].Type
}

// cstring 字符串带结尾NUL落盘
func cstring(s string) []byte {
	return append([]byte(s), 0)
}

func gostring(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// initIov 把关系描述序列化成iov，数值域编码为大序。
// 纯函数，不改动传入的info。
func initIov(table string, info *RelationInfo) [][]byte {
	iov := make([][]byte, 0, info.IovSize())
	iov = append(iov,
		cstring(table),
		cstring(info.Path),
		util.ConvertUInt2Bytes(info.Count),
		util.ConvertUInt2Bytes(info.Type),
		util.ConvertUInt4Bytes(info.Key),
		util.ConvertUInt8Bytes(info.Size),
		util.ConvertUInt8Bytes(info.Rows),
	)
	for i := range info.Fields {
		field := &info.Fields[i]
		iov = append(iov,
			cstring(field.Name),
			util.ConvertUInt8Bytes(field.Index),
			util.ConvertUInt8Bytes(uint64(field.Length)),
			cstring(field.Type.Name),
		)
	}
	return iov
}

// retrieveInfo 从iov还原关系描述，返回表名
func retrieveInfo(iov [][]byte) (string, *RelationInfo, error) {
	if len(iov) < 7 {
		return "", nil, ErrInvalidArgument
	}
	info := &RelationInfo{
		Path:  gostring(iov[1]),
		Count: util.ReadUB2Byte2UInt16(iov[2]),
		Type:  util.ReadUB2Byte2UInt16(iov[3]),
		Key:   util.ReadUB4Byte2UInt32(iov[4]),
		Size:  util.ReadUB8Byte2UInt64(iov[5]),
		Rows:  util.ReadUB8Byte2UInt64(iov[6]),
	}
	if len(iov) != info.IovSize() {
		return "", nil, ErrInvalidArgument
	}
	for i := 0; i < int(info.Count); i++ {
		base := 7 + i*4
		typeName := gostring(iov[base+3])
		typ := datatype.Find(typeName)
		if typ == nil {
			return "", nil, ErrInvalidArgument
		}
		info.Fields = append(info.Fields, FieldInfo{
			Name:   gostring(iov[base]),
			Index:  util.ReadUB8Byte2UInt64(iov[base+1]),
			Length: int64(util.ReadUB8Byte2UInt64(iov[base+2])),
			Type:   typ,
		})
	}
	return gostring(iov[0]), info, nil
}
