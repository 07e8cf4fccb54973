package blocks

import (
	"io"
	"os"

	"github.com/juju/errors"
)

// BlockFile 以块为单位读写的文件。读写都是定位读写，
// 打开推迟到第一次访问，调用方负责offset的换算。
type BlockFile struct {
	file     *os.File
	filePath string
}

// NewBlockFile creates a block file over the given path.
func NewBlockFile(filePath string) *BlockFile {
	return &BlockFile{
		filePath: filePath,
	}
}

// Open opens (and creates if missing) the underlying file.
func (bf *BlockFile) Open() error {
	if bf.file != nil {
		return nil
	}
	file, err := os.OpenFile(bf.filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return errors.Annotatef(err, "open block file %s", bf.filePath)
	}
	bf.file = file
	return nil
}

// Close closes the block file.
func (bf *BlockFile) Close() error {
	if bf.file != nil {
		err := bf.file.Close()
		bf.file = nil
		return err
	}
	return nil
}

// Remove closes and deletes the underlying file.
func (bf *BlockFile) Remove() error {
	if err := bf.Close(); err != nil {
		return err
	}
	return os.Remove(bf.filePath)
}

// Path returns the file path.
func (bf *BlockFile) Path() string {
	return bf.filePath
}

// Size returns the current file length in bytes.
func (bf *BlockFile) Size() (int64, error) {
	if err := bf.Open(); err != nil {
		return 0, err
	}
	stat, err := bf.file.Stat()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return stat.Size(), nil
}

// ReadAt 定位读。文件尾部之外的短读不算错误，
// buf未读到的部分保持原样（调用方传入零化的buf）。
func (bf *BlockFile) ReadAt(offset int64, buf []byte) (int, error) {
	if err := bf.Open(); err != nil {
		return 0, err
	}
	n, err := bf.file.ReadAt(buf, offset)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, errors.Annotatef(err, "read %s at %d", bf.filePath, offset)
	}
	return n, nil
}

// WriteAt 定位写。返回时不保证落盘。
func (bf *BlockFile) WriteAt(offset int64, buf []byte) error {
	if err := bf.Open(); err != nil {
		return err
	}
	if _, err := bf.file.WriteAt(buf, offset); err != nil {
		return errors.Annotatef(err, "write %s at %d", bf.filePath, offset)
	}
	return nil
}

// Sync flushes the file to disk.
func (bf *BlockFile) Sync() error {
	if bf.file == nil {
		return nil
	}
	return bf.file.Sync()
}
