package engine

import (
	"time"

	"github.com/google/uuid"

	"pmkv/internal/errs"
	"pmkv/internal/logger"
)

// Get 返回 key 当前的值，不存在返回 ErrNotFound。
func (db *DB) Get(key string) ([]byte, error) {
	db.lifeMu.RLock()
	defer db.lifeMu.RUnlock()
	if db.closed {
		return nil, errs.ErrClosed
	}
	pos, ok := db.idx.Lookup(key)
	if !ok {
		return nil, errs.ErrNotFound
	}
	return db.store.Value(pos)
}

// Put 已存在的 key 在事务里原地更新；否则追加新的一对，持久提交之后才插入索引。
// 更新的回滚失败后，Get/Put 都返回 ErrIOFault，直到重新打开 pool。
func (db *DB) Put(key string, value []byte) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	db.lifeMu.RLock()
	defer db.lifeMu.RUnlock()
	if db.closed {
		return errs.ErrClosed
	}
	if pos, ok := db.idx.Lookup(key); ok {
		err := db.store.Replace(db.log, pos, value)
		if err != nil && db.store.Failed() != nil {
			logger.Error("update rollback failed, pool must be reopened", "key", key, "error", err)
		}
		return err
	}
	pos, err := db.store.Append(key, value)
	if err != nil {
		return err
	}
	db.idx.Insert(key, pos)
	return nil
}

// Len 返回已提交的对数。
func (db *DB) Len() int {
	return db.store.Len()
}

// Stats 是 pool 的概况。
type Stats struct {
	UUID        uuid.UUID     `json:"uuid"`
	RegionSize  int64         `json:"region_size"`
	Pairs       int           `json:"pairs"`
	Capacity    int           `json:"capacity"`
	Buckets     int           `json:"buckets"`
	Indexed     int           `json:"indexed"`
	RebuildTook time.Duration `json:"rebuild_took"`
}

func (db *DB) Stats() Stats {
	db.lifeMu.RLock()
	defer db.lifeMu.RUnlock()
	return Stats{
		UUID:        db.hdr.UUID,
		RegionSize:  db.r.Size(),
		Pairs:       db.store.Len(),
		Capacity:    db.store.Cap(),
		Buckets:     db.idx.NumBuckets(),
		Indexed:     db.idx.Len(),
		RebuildTook: db.rebuildTook,
	}
}
