// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听单个文件所在目录，目标文件被重写时回调
type FileMonitor struct {
	watchDir string
	target   string
	watcher  *fsnotify.Watcher
	lastMod  time.Time
	lastSize int64
	mu       sync.Mutex
}

// NewFileMonitor 监听 target 所在目录(写入临时文件再 rename 也能被捕获)
func NewFileMonitor(target string) (*FileMonitor, error) {
	dir := filepath.Dir(target)
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &FileMonitor{
		watchDir: dir,
		target:   filepath.Clean(target),
		watcher:  watcher,
	}
	if info, err := os.Stat(target); err == nil {
		m.lastMod = info.ModTime()
		m.lastSize = info.Size()
	}
	return m, nil
}

// Watch 阻塞直到 ctx 结束或监听器关闭
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if m.changed() {
				handler(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// changed 同一次写入可能触发多个事件，只在 mtime/size 变化时回调
func (m *FileMonitor) changed() bool {
	info, err := os.Stat(m.target)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		// 文件被移走，下次出现时一定回调
		m.lastMod = time.Time{}
		m.lastSize = 0
		return true
	}
	if info.ModTime().Equal(m.lastMod) && info.Size() == m.lastSize {
		return false
	}
	m.lastMod = info.ModTime()
	m.lastSize = info.Size()
	return true
}

// Close 关闭底层监听器
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
