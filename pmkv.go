package pmkv

import (
	"errors"

	"pmkv/internal/engine"
	"pmkv/internal/errs"
	"pmkv/internal/region"
)

// 对外暴露的 sentinel errors，便于调用方 errors.Is。
var (
	ErrCapacityExceeded = errs.ErrCapacityExceeded
	ErrNotFound         = errs.ErrNotFound
	ErrIOFault          = errs.ErrIOFault
	ErrCorrupt          = errs.ErrCorrupt
	ErrBadArgument      = errs.ErrBadArgument
	ErrClosed           = errs.ErrClosed
	ErrAlreadyExists    = errs.ErrAlreadyExists
	ErrRegionNotFound   = errs.ErrRegionNotFound
	ErrLayoutMismatch   = errs.ErrLayoutMismatch
	ErrDuplicate        = errs.ErrDuplicate
	ErrNotSnapshotted   = errs.ErrNotSnapshotted
)

type (
	Options = engine.Options
	Stats   = engine.Stats
)

// DefaultOptions 返回默认的 pool 参数。
func DefaultOptions() Options { return engine.DefaultOptions() }

type DB struct {
	r region.Region
	e *engine.DB
}

// Open 打开 path 处的 pool；不存在时按 opts 创建。已存在的 pool 以其自身几何参数为准，
// opts 只提供索引桶数。
func Open(path string, opts Options) (*DB, error) {
	r, err := region.Open(path)
	if err == nil {
		e, err := engine.Open(r, opts)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		return &DB{r: r, e: e}, nil
	}
	if !errors.Is(err, errs.ErrRegionNotFound) {
		return nil, err
	}
	var e *engine.DB
	f, err := region.CreateWith(path, opts.RegionSize(), func(r *region.File) error {
		var err error
		e, err = engine.Create(r, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DB{r: f, e: e}, nil
}

func (db *DB) Close() error {
	if db == nil || db.e == nil {
		return nil
	}
	if err := db.e.Close(); err != nil {
		return err
	}
	return db.r.Close()
}

// Get 返回 key 的值，不存在返回 ErrNotFound。
func (db *DB) Get(key string) ([]byte, error) {
	if db == nil || db.e == nil {
		return nil, ErrClosed
	}
	return db.e.Get(key)
}

func (db *DB) Put(key string, value []byte) error {
	if db == nil || db.e == nil {
		return ErrClosed
	}
	return db.e.Put(key, value)
}

// Len 返回持久化的键值对个数。
func (db *DB) Len() int {
	if db == nil || db.e == nil {
		return 0
	}
	return db.e.Len()
}

func (db *DB) Stats() Stats {
	if db == nil || db.e == nil {
		return Stats{}
	}
	return db.e.Stats()
}

// Rebuild 从持久数组重建易失索引。
func (db *DB) Rebuild() error {
	if db == nil || db.e == nil {
		return ErrClosed
	}
	return db.e.Rebuild()
}
