package engine

import (
	"time"

	"pmkv/internal/errs"
	"pmkv/internal/logger"
)

// Rebuild 清空易失索引，按位置顺序扫描全部已提交的对重新填充。重建期间读写都被挡住。
// 重复的 key 位置小的先入桶，查找时以它为准。
func (db *DB) Rebuild() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	db.lifeMu.Lock()
	defer db.lifeMu.Unlock()
	if db.closed {
		return errs.ErrClosed
	}

	start := time.Now()
	db.idx.Clear()
	n := 0
	for p, err := range db.store.Pairs() {
		if err != nil {
			db.idx.Clear()
			return err
		}
		db.idx.Insert(p.Key, p.Pos)
		n++
	}
	db.rebuildTook = time.Since(start)
	logger.Debug("index rebuilt", "pairs", n, "buckets", db.idx.NumBuckets(), "took", db.rebuildTook)
	return nil
}
