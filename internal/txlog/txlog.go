// Package txlog 是轻量的 undo 日志事务：修改持久字节前先把原字节快照进日志，
// 提交时丢弃日志，中途失败或崩溃后重放快照恢复原值。
//
// 日志区布局：
//
//	[0,8)    count  已持久的快照条数，0 表示没有进行中的事务
//	[64,...) 条目   off u64 | len u32 | pad u32 | 原字节（按 8 对齐）
package txlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"pmkv/internal/errs"
	"pmkv/internal/logger"
	"pmkv/internal/region"
)

const (
	headerSize = 64
	entryHead  = 16
)

// MinSize 是日志区的最小字节数。
const MinSize = headerSize + entryHead + 8

type span struct {
	off, end int64
}

// Log 位于 region 的 [off, off+size)，同一时刻只允许一个事务。
type Log struct {
	r    region.Region
	off  int64
	size int64

	mu    sync.Mutex
	count uint64
	used  int64
}

func align8(n int64) int64 { return (n + 7) &^ 7 }

// SizeFor 返回能在一个事务里快照 n 字节的最小日志大小。
func SizeFor(n int64) int64 { return headerSize + entryHead + align8(n) }

func validArea(r region.Region, off, size int64) error {
	if size < MinSize || off < 0 || off+size > r.Size() {
		return fmt.Errorf("%w: undo log [%d,%d) in region of %d bytes", errs.ErrBadArgument, off, off+size, r.Size())
	}
	return nil
}

// Create 初始化一个空日志。
func Create(r region.Region, off, size int64) (*Log, error) {
	if err := validArea(r, off, size); err != nil {
		return nil, err
	}
	l := &Log{r: r, off: off, size: size}
	if err := l.setCount(0); err != nil {
		return nil, err
	}
	return l, nil
}

// Open 打开已存在的日志；若上次有事务未提交，重放快照回滚后再返回。
func Open(r region.Region, off, size int64) (*Log, error) {
	if err := validArea(r, off, size); err != nil {
		return nil, err
	}
	l := &Log{r: r, off: off, size: size}
	l.count = binary.LittleEndian.Uint64(r.Bytes(off, 8))
	if l.count == 0 {
		return l, nil
	}
	n := l.count
	if err := l.rollback(); err != nil {
		return nil, err
	}
	logger.Warn("rolled back interrupted transaction", "entries", n)
	return l, nil
}

func (l *Log) setCount(n uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	if err := region.Persist(l.r, l.off, b[:]); err != nil {
		return err
	}
	l.count = n
	return nil
}

type entry struct {
	off  int64
	data []byte
}

// entries 解析前 count 条快照。
func (l *Log) entries() ([]entry, error) {
	out := make([]entry, 0, l.count)
	pos := l.off + headerSize
	limit := l.off + l.size
	for i := uint64(0); i < l.count; i++ {
		if pos+entryHead > limit {
			return nil, fmt.Errorf("%w: undo entry %d past log end", errs.ErrCorrupt, i)
		}
		h := l.r.Bytes(pos, entryHead)
		off := int64(binary.LittleEndian.Uint64(h[0:8]))
		n := int64(binary.LittleEndian.Uint32(h[8:12]))
		if pos+entryHead+n > limit || off < 0 || off+n > l.r.Size() {
			return nil, fmt.Errorf("%w: undo entry %d range [%d,%d)", errs.ErrCorrupt, i, off, off+n)
		}
		out = append(out, entry{off: off, data: l.r.Bytes(pos+entryHead, n)})
		pos += entryHead + align8(n)
	}
	return out, nil
}

// rollback 逆序写回全部快照并清空日志。
func (l *Log) rollback() error {
	es, err := l.entries()
	if err != nil {
		return err
	}
	for i := len(es) - 1; i >= 0; i-- {
		e := es[i]
		if err := l.r.Write(e.off, e.data); err != nil {
			return err
		}
		if err := l.r.Flush(e.off, int64(len(e.data))); err != nil {
			return err
		}
	}
	if err := l.r.Drain(); err != nil {
		return err
	}
	if err := l.setCount(0); err != nil {
		return err
	}
	l.used = 0
	return nil
}

// Pending 报告日志里是否还留有快照：事务结束后仍为 true 说明提交与回滚都失败了，
// 内存里的字节与崩溃后能恢复出的状态不一致。
func (l *Log) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count != 0
}

// Tx 是一次进行中的事务。
type Tx struct {
	l     *Log
	spans []span
	done  bool
}

// Begin 开始事务，持有日志锁直到 Commit 或 Abort。
func (l *Log) Begin() (*Tx, error) {
	l.mu.Lock()
	if l.count != 0 {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: undo log not empty", errs.ErrCorrupt)
	}
	return &Tx{l: l}, nil
}

func (tx *Tx) covered(off, end int64) bool {
	cur := off
	for cur < end {
		next := cur
		for _, s := range tx.spans {
			if s.off <= cur && cur < s.end && s.end > next {
				next = s.end
			}
		}
		if next == cur {
			return false
		}
		cur = next
	}
	return true
}

// Snapshot 把 [off, off+n) 的原字节持久化到日志，必须在首次修改该区间前调用。
func (tx *Tx) Snapshot(off, n int64) error {
	if tx.done {
		return errs.ErrClosed
	}
	l := tx.l
	if n <= 0 || tx.covered(off, off+n) {
		return nil
	}
	if off < 0 || off+n > l.r.Size() {
		return fmt.Errorf("%w: snapshot [%d,%d) outside region", errs.ErrBadArgument, off, off+n)
	}
	if off < l.off+l.size && l.off < off+n {
		return fmt.Errorf("%w: snapshot overlaps the undo log", errs.ErrBadArgument)
	}
	need := entryHead + align8(n)
	if headerSize+l.used+need > l.size {
		return fmt.Errorf("%w: undo log full", errs.ErrCapacityExceeded)
	}

	buf := make([]byte, entryHead+n)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(off))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n))
	copy(buf[entryHead:], l.r.Bytes(off, n))
	pos := l.off + headerSize + l.used
	if err := region.Persist(l.r, pos, buf); err != nil {
		return err
	}
	if err := l.setCount(l.count + 1); err != nil {
		return err
	}
	l.used += need
	tx.spans = append(tx.spans, span{off: off, end: off + n})
	return nil
}

// Write 修改已 snapshot 的区间并 flush；未 snapshot 返回 ErrNotSnapshotted。
func (tx *Tx) Write(off int64, b []byte) error {
	if tx.done {
		return errs.ErrClosed
	}
	end := off + int64(len(b))
	if !tx.covered(off, end) {
		return fmt.Errorf("%w: [%d,%d)", errs.ErrNotSnapshotted, off, end)
	}
	if err := tx.l.r.Write(off, b); err != nil {
		return err
	}
	return tx.l.r.Flush(off, int64(len(b)))
}

// Commit drain 所有修改后清空日志。
func (tx *Tx) Commit() error {
	if tx.done {
		return errs.ErrClosed
	}
	l := tx.l
	if err := l.r.Drain(); err != nil {
		return err
	}
	if err := l.setCount(0); err != nil {
		return err
	}
	l.used = 0
	tx.finish()
	return nil
}

// Abort 逆序重放快照恢复原值。
func (tx *Tx) Abort() error {
	if tx.done {
		return errs.ErrClosed
	}
	err := tx.l.rollback()
	tx.finish()
	return err
}

func (tx *Tx) finish() {
	tx.done = true
	tx.spans = nil
	tx.l.mu.Unlock()
}

// Run 在事务中执行 fn：fn 返回错误或 panic 时回滚，否则提交。
func (l *Log) Run(fn func(tx *Tx) error) (err error) {
	tx, err := l.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Abort()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if aerr := tx.Abort(); aerr != nil {
			return errors.Join(err, fmt.Errorf("abort: %w", aerr))
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		if !tx.done {
			if aerr := tx.Abort(); aerr != nil {
				return errors.Join(err, fmt.Errorf("abort: %w", aerr))
			}
		}
		return err
	}
	return nil
}
