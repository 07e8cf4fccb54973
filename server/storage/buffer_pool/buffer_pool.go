// Package buffer_pool 实现页面缓冲池。
// 以(文件名, blockid)为键缓存定长页面，borrow/release配对使用，
// LRU淘汰，脏页在淘汰与关闭时落盘。
package buffer_pool

import (
	"container/list"
	"path/filepath"

	"github.com/KotoriAster/DB/logger"
	"github.com/KotoriAster/DB/server/storage/blocks"
	"github.com/KotoriAster/DB/server/storage/pages"
	"github.com/KotoriAster/DB/util"

	"github.com/juju/errors"
)

// ErrNoEvictable 所有页面都被引用，无法淘汰。属于程序bug。
var ErrNoEvictable = errors.New("buffer pool exhausted: all pages pinned")

// BufferPool 页面缓冲池
type BufferPool struct {
	dataDir  string
	capacity int // 页数上限

	// 以xxhash(name‖blockNo)做桶键，桶内按文件名的字符串
	// 相等与块号核对身份，哈希冲突落到同一桶里顺序查找
	items map[uint64][]*list.Element
	lru   *list.List // 队首为最近使用

	files map[string]*blocks.BlockFile
	paths map[string]string // 注册的文件名到路径
}

// New 创建缓冲池，sizeBytes按16KB页折算容量
func New(dataDir string, sizeBytes int) *BufferPool {
	capacity := sizeBytes / pages.BlockSize
	if capacity < 8 {
		capacity = 8
	}
	return &BufferPool{
		dataDir:  dataDir,
		capacity: capacity,
		items:    make(map[uint64][]*list.Element),
		lru:      list.New(),
		files:    make(map[string]*blocks.BlockFile),
		paths:    make(map[string]string),
	}
}

// Register 登记文件名到磁盘路径的映射
func (bp *BufferPool) Register(name string, path string) {
	bp.paths[name] = path
}

// fileFor 按名字取文件，懒打开
func (bp *BufferPool) fileFor(name string) *blocks.BlockFile {
	if file, ok := bp.files[name]; ok {
		return file
	}
	path, ok := bp.paths[name]
	if !ok {
		path = name
	}
	file := blocks.NewBlockFile(filepath.Join(bp.dataDir, path))
	bp.files[name] = file
	return file
}

func hashKey(name string, blockNo uint32) uint64 {
	buff := append([]byte(name), util.ConvertUInt4Bytes(blockNo)...)
	return util.HashCode(buff)
}

// lookup 在桶里按身份查找
func (bp *BufferPool) lookup(name string, blockNo uint32) (*list.Element, uint64) {
	key := hashKey(name, blockNo)
	for _, elem := range bp.items[key] {
		desp := elem.Value.(*BufDesp)
		if desp.Name == name && desp.BlockNo == blockNo {
			return elem, key
		}
	}
	return nil, key
}

// Borrow 借出一页。命中则增加引用并提升到队首；
// 未命中时淘汰一个未被引用的页面后从文件读入，
// 文件尚未写过该块时buffer保持全零，由调用方clear初始化。
func (bp *BufferPool) Borrow(name string, blockNo uint32) (*BufDesp, error) {
	if elem, _ := bp.lookup(name, blockNo); elem != nil {
		desp := elem.Value.(*BufDesp)
		desp.Addref()
		bp.lru.MoveToFront(elem)
		return desp, nil
	}

	if bp.lru.Len() >= bp.capacity {
		if err := bp.evictOne(); err != nil {
			logger.Errorf("buffer pool cannot evict: %v", err)
			panic(err)
		}
	}

	desp := &BufDesp{
		Buffer:  make([]byte, pages.SizeOfBlock(blockNo)),
		Name:    name,
		BlockNo: blockNo,
	}
	if _, err := bp.fileFor(name).ReadAt(pages.BlockOffset(blockNo), desp.Buffer); err != nil {
		return nil, errors.Trace(err)
	}
	desp.Addref()

	elem := bp.lru.PushFront(desp)
	key := hashKey(name, blockNo)
	bp.items[key] = append(bp.items[key], elem)
	return desp, nil
}

// evictOne 从队尾淘汰第一个未被引用的页面，脏页先落盘
func (bp *BufferPool) evictOne() error {
	for elem := bp.lru.Back(); elem != nil; elem = elem.Prev() {
		desp := elem.Value.(*BufDesp)
		if desp.Ref() > 0 {
			continue
		}
		if desp.dirty {
			if err := bp.flush(desp); err != nil {
				return err
			}
		}
		bp.detachElement(elem)
		return nil
	}
	return errors.Trace(ErrNoEvictable)
}

// detachElement 从LRU和哈希桶里移除
func (bp *BufferPool) detachElement(elem *list.Element) {
	desp := elem.Value.(*BufDesp)
	bp.lru.Remove(elem)
	key := hashKey(desp.Name, desp.BlockNo)
	bucket := bp.items[key]
	for i, e := range bucket {
		if e == elem {
			bp.items[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bp.items[key]) == 0 {
		delete(bp.items, key)
	}
}

// ReleaseBuf 归还一页，与Borrow配对
func (bp *BufferPool) ReleaseBuf(desp *BufDesp) {
	desp.Relref()
}

// flush 把页面写回文件
func (bp *BufferPool) flush(desp *BufDesp) error {
	err := bp.fileFor(desp.Name).WriteAt(pages.BlockOffset(desp.BlockNo), desp.Buffer)
	if err != nil {
		return errors.Trace(err)
	}
	desp.dirty = false
	return nil
}

// WriteBuf 把页面标脏并立即写回
func (bp *BufferPool) WriteBuf(desp *BufDesp) error {
	desp.dirty = true
	return bp.flush(desp)
}

// FlushAll 把所有脏页写回
func (bp *BufferPool) FlushAll() error {
	for elem := bp.lru.Front(); elem != nil; elem = elem.Next() {
		desp := elem.Value.(*BufDesp)
		if desp.dirty {
			if err := bp.flush(desp); err != nil {
				return err
			}
		}
	}
	return nil
}

// DropFile 丢弃某文件的全部缓存页并删除文件
func (bp *BufferPool) DropFile(name string) error {
	var next *list.Element
	for elem := bp.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		desp := elem.Value.(*BufDesp)
		if desp.Name == name {
			bp.detachElement(elem)
		}
	}
	if file, ok := bp.files[name]; ok {
		delete(bp.files, name)
		return file.Remove()
	}
	return nil
}

// Close 写回全部脏页并关闭所有文件
func (bp *BufferPool) Close() error {
	if err := bp.FlushAll(); err != nil {
		return err
	}
	for _, file := range bp.files {
		if err := file.Sync(); err != nil {
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}
	bp.files = make(map[string]*blocks.BlockFile)
	bp.items = make(map[uint64][]*list.Element)
	bp.lru = list.New()
	return nil
}

// Len 当前缓存的页面数
func (bp *BufferPool) Len() int {
	return bp.lru.Len()
}
