package region

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pmkv/internal/errs"
	"pmkv/internal/mmap"
)

// File 是 mmap 到共享内存的定长文件。
type File struct {
	path string
	f    *os.File
	data []byte
	page int64

	mu      sync.Mutex
	dirtyLo int64
	dirtyHi int64
}

// Create 创建 size 字节的新文件并映射；文件已存在返回 ErrAlreadyExists。
func Create(path string, size int64) (*File, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: region size %d", errs.ErrBadArgument, size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrAlreadyExists, path)
		}
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return mapFile(path, f, size)
}

// CreateWith 在 path+".tmp" 上创建 region 并交给 init 初始化，成功后才链接到 path。
// 初始化途中崩溃只会留下临时文件：path 要么不存在，要么是初始化完成的 region。
// 遗留的临时文件在下次创建时被清除。
func CreateWith(path string, size int64, init func(*File) error) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrAlreadyExists, path)
	}
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	r, err := Create(tmp, size)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*File, error) {
		_ = r.Close()
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := init(r); err != nil {
		return fail(err)
	}
	if err := r.f.Sync(); err != nil {
		return fail(fmt.Errorf("%w: fsync %s: %v", errs.ErrIOFault, tmp, err))
	}
	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = fmt.Errorf("%w: %s", errs.ErrAlreadyExists, path)
		}
		return fail(err)
	}
	_ = os.Remove(tmp)
	syncDir(filepath.Dir(path))
	r.path = path
	return r, nil
}

// syncDir 让目录项的变更落盘，部分平台不支持对目录 fsync，忽略错误。
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Open 映射已存在的文件，大小取文件当前长度；不存在返回 ErrRegionNotFound。
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrRegionNotFound, path)
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: empty region file %s", errs.ErrCorrupt, path)
	}
	return mapFile(path, f, st.Size())
}

func mapFile(path string, f *os.File, size int64) (*File, error) {
	data, err := mmap.Map(f.Fd(), int(size))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{
		path:    path,
		f:       f,
		data:    data,
		page:    int64(mmap.PageSize()),
		dirtyLo: -1,
	}, nil
}

// Path 返回文件路径。
func (r *File) Path() string { return r.path }

func (r *File) Size() int64 { return int64(len(r.data)) }

func (r *File) Bytes(off, n int64) []byte {
	return r.data[off : off+n : off+n]
}

func (r *File) Write(off int64, b []byte) error {
	if r.data == nil {
		return errs.ErrClosed
	}
	if err := checkRange(int64(len(r.data)), off, int64(len(b))); err != nil {
		return err
	}
	copy(r.data[off:], b)
	return nil
}

// Flush 对覆盖 [off, off+n) 的页发起异步回写，并记入待 drain 区间。
func (r *File) Flush(off, n int64) error {
	if r.data == nil {
		return errs.ErrClosed
	}
	if err := checkRange(int64(len(r.data)), off, n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	lo := off &^ (r.page - 1)
	hi := off + n
	if err := mmap.Flush(r.data[lo:hi]); err != nil {
		return fmt.Errorf("%w: msync async: %v", errs.ErrIOFault, err)
	}
	r.mu.Lock()
	if r.dirtyLo < 0 || lo < r.dirtyLo {
		r.dirtyLo = lo
	}
	if hi > r.dirtyHi {
		r.dirtyHi = hi
	}
	r.mu.Unlock()
	return nil
}

// Drain 同步回写所有已 flush 的页。
func (r *File) Drain() error {
	if r.data == nil {
		return errs.ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirtyLo < 0 {
		return nil
	}
	if err := mmap.Sync(r.data[r.dirtyLo:r.dirtyHi]); err != nil {
		return fmt.Errorf("%w: msync: %v", errs.ErrIOFault, err)
	}
	r.dirtyLo, r.dirtyHi = -1, 0
	return nil
}

// Close 刷盘、解除映射、关闭文件。重复调用无副作用。
func (r *File) Close() error {
	if r.data != nil {
		if err := mmap.Sync(r.data); err != nil {
			return err
		}
		if err := mmap.Unmap(r.data); err != nil {
			return err
		}
		r.data = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil {
			return err
		}
		r.f = nil
	}
	return nil
}
