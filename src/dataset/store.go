package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bluele/gcache"
	"github.com/parquet-go/parquet-go"
)

// Save 排序后写入 parquet；先写临时文件再重命名，失败时不会留下半个文件
// 参数:
//
//	path: 目标文件路径
//	records: 长表记录(不会被修改)
func Save(path string, records []Record) error {
	rs := make([]Record, len(records))
	copy(rs, records)
	SortRecords(rs)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := parquet.Write(tmp, rs); err != nil {
		tmp.Close()
		return fmt.Errorf("写入parquet失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("替换数据文件失败: %w", err)
	}
	return nil
}

// Load 读取 parquet 数据文件
func Load(path string) (*Dataset, error) {
	records, err := parquet.ReadFile[Record](path)
	if err != nil {
		return nil, fmt.Errorf("读取数据文件失败 %s: %w", path, err)
	}
	return New(records), nil
}

// Loader 数据加载函数，测试中可替换
type Loader func(path string) (*Dataset, error)

type cacheEntry struct {
	ds      *Dataset
	modTime time.Time
	size    int64
}

// Cache 按路径缓存已加载的数据集，文件 mtime/size 变化时重新加载
type Cache struct {
	entries gcache.Cache
	load    Loader
}

// NewCache 创建缓存
// 参数:
//
//	size: 最多缓存的数据文件个数
//	load: 加载函数，为 nil 时使用 Load
func NewCache(size int, load Loader) *Cache {
	if size <= 0 {
		size = 1
	}
	if load == nil {
		load = Load
	}
	return &Cache{
		entries: gcache.New(size).LRU().Build(),
		load:    load,
	}
}

// Get 返回 path 对应的数据集；文件未变化时返回同一个实例
func (c *Cache) Get(path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("数据文件不可用: %w", err)
	}

	if cached, err := c.entries.Get(path); err == nil {
		entry := cached.(*cacheEntry)
		if entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
			return entry.ds, nil
		}
	}

	ds, err := c.load(path)
	if err != nil {
		return nil, err
	}

	if err := c.entries.Set(path, &cacheEntry{ds: ds, modTime: info.ModTime(), size: info.Size()}); err != nil {
		return nil, fmt.Errorf("写入缓存失败: %w", err)
	}
	return ds, nil
}

// Invalidate 丢弃 path 的缓存，下次 Get 强制重新加载
func (c *Cache) Invalidate(path string) bool {
	return c.entries.Remove(path)
}

// Purge 清空全部缓存
func (c *Cache) Purge() {
	c.entries.Purge()
}
