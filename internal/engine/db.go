package engine

import (
	"fmt"
	"sync"
	"time"

	"pmkv/internal/errs"
	"pmkv/internal/index"
	"pmkv/internal/layout"
	"pmkv/internal/logger"
	"pmkv/internal/logpair"
	"pmkv/internal/region"
	"pmkv/internal/txlog"
)

// Layout 是 KV pool 头里的布局名。
const Layout = "pmkv"

// Options 描述 pool 的几何参数与易失索引的桶数。几何参数在创建时写入 pool 头，
// 重新打开时以 pool 头为准。
type Options struct {
	Buckets     int
	Capacity    int
	MaxKeyLen   int
	MaxValueLen int
	UndoLogSize int64
}

func DefaultOptions() Options {
	return Options{
		Buckets:     10,
		Capacity:    1024,
		MaxKeyLen:   64,
		MaxValueLen: 256,
		UndoLogSize: 64 << 10,
	}
}

func (o Options) geometry() logpair.Geometry {
	return logpair.Geometry{Capacity: o.Capacity, MaxKeyLen: o.MaxKeyLen, MaxValueLen: o.MaxValueLen}
}

func (o Options) undoSize() int64 {
	return (o.UndoLogSize + 63) &^ 63
}

func (o Options) params() [4]uint64 {
	return [4]uint64{uint64(o.Capacity), uint64(o.MaxKeyLen), uint64(o.MaxValueLen), uint64(o.UndoLogSize)}
}

func optionsFrom(p [4]uint64, buckets int) Options {
	return Options{
		Buckets:     buckets,
		Capacity:    int(p[0]),
		MaxKeyLen:   int(p[1]),
		MaxValueLen: int(p[2]),
		UndoLogSize: int64(p[3]),
	}
}

// RegionSize 返回容纳这些参数所需的 region 字节数：pool 头、undo 日志、键值数组。
func (o Options) RegionSize() int64 {
	return layout.HeaderArea + o.undoSize() + o.geometry().Footprint()
}

func (o Options) validate() error {
	if o.UndoLogSize < txlog.MinSize {
		return fmt.Errorf("%w: undo log size %d (min %d)", errs.ErrBadArgument, o.UndoLogSize, txlog.MinSize)
	}
	// 一次更新只快照一个 value 槽
	if txlog.SizeFor(int64(o.MaxValueLen)+4) > o.undoSize() {
		return fmt.Errorf("%w: undo log of %d bytes cannot hold a %d byte value", errs.ErrBadArgument, o.UndoLogSize, o.MaxValueLen)
	}
	return nil
}

type DB struct {
	lifeMu  sync.RWMutex // Get 持读锁，Close 持写锁
	writeMu sync.Mutex   // 串行化 Put/Rebuild/Close

	r      region.Region
	hdr    layout.Header
	opts   Options
	closed bool

	log   *txlog.Log
	store *logpair.Store
	idx   *index.Buckets

	rebuildTook time.Duration
}

func newDB(r region.Region, hdr layout.Header, opts Options) *DB {
	return &DB{
		r:    r,
		hdr:  hdr,
		opts: opts,
		idx:  index.NewBuckets(opts.Buckets),
	}
}

// Create 在空 region 上格式化一个新的 KV pool。region 归调用方所有。
func Create(r region.Region, opts Options) (*DB, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if need := opts.RegionSize(); r.Size() < need {
		return nil, fmt.Errorf("%w: region of %d bytes, need %d", errs.ErrBadArgument, r.Size(), need)
	}
	undoOff := layout.HeaderArea
	log, err := txlog.Create(r, undoOff, opts.undoSize())
	if err != nil {
		return nil, err
	}
	store, err := logpair.Create(r, undoOff+opts.undoSize(), opts.geometry())
	if err != nil {
		return nil, err
	}
	// pool 头最后写：头部有效即代表下面的区域都已初始化
	hdr, err := layout.Format(r, Layout, opts.params())
	if err != nil {
		return nil, err
	}
	db := newDB(r, hdr, opts)
	db.log, db.store = log, store
	logger.Info("pool created", "uuid", hdr.UUID.String(), "size", r.Size(), "capacity", opts.Capacity)
	return db, nil
}

// Open 打开已存在的 KV pool：回滚未完成的事务，再从持久数组重建索引。
func Open(r region.Region, opts Options) (*DB, error) {
	hdr, err := layout.Load(r, Layout)
	if err != nil {
		return nil, err
	}
	stored := optionsFrom(hdr.Params, opts.Buckets)
	if stored.geometry() != opts.geometry() || stored.UndoLogSize != opts.UndoLogSize {
		logger.Warn("pool geometry differs from options, using pool geometry",
			"pool", fmt.Sprintf("%+v", stored), "options", fmt.Sprintf("%+v", opts))
	}
	if err := stored.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCorrupt, err)
	}
	if stored.RegionSize() > r.Size() {
		return nil, fmt.Errorf("%w: pool geometry needs %d bytes, region has %d", errs.ErrCorrupt, stored.RegionSize(), r.Size())
	}
	db := newDB(r, hdr, stored)
	undoOff := layout.HeaderArea
	if db.log, err = txlog.Open(r, undoOff, stored.undoSize()); err != nil {
		return nil, err
	}
	if db.store, err = logpair.Open(r, undoOff+stored.undoSize(), stored.geometry()); err != nil {
		return nil, err
	}
	if err := db.Rebuild(); err != nil {
		return nil, err
	}
	logger.Info("pool opened", "uuid", hdr.UUID.String(), "pairs", db.store.Len(), "rebuild", db.rebuildTook)
	return db, nil
}

// Options 返回生效的参数。
func (db *DB) Options() Options { return db.opts }

// Close 之后所有操作返回 ErrClosed；region 由调用方关闭。
func (db *DB) Close() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	db.lifeMu.Lock()
	defer db.lifeMu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	db.idx.Clear()
	return nil
}
