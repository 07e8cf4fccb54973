package table

import "github.com/juju/errors"

var (
	// ErrKeyExists 键已存在
	ErrKeyExists = errors.New("key already exists")
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrRecordTooLarge 记录超过空块容量
	ErrRecordTooLarge = errors.New("record larger than block capacity")
)
