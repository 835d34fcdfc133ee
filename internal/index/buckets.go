package index

import (
	"slices"
	"sync"
)

type bucket struct {
	rw      sync.RWMutex
	entries []Entry
}

// Buckets 固定桶数的哈希索引，桶内无序，线性扫描，首个匹配生效。
type Buckets struct {
	buckets []bucket
}

var _ Index = (*Buckets)(nil)

// NewBuckets 创建 n 个桶，n <= 0 时取 1。
func NewBuckets(n int) *Buckets {
	if n <= 0 {
		n = 1
	}
	return &Buckets{buckets: make([]bucket, n)}
}

func (b *Buckets) bucket(key string) *bucket {
	return &b.buckets[BucketOf(key, len(b.buckets))]
}

func (b *Buckets) Lookup(key string) (uint64, bool) {
	bk := b.bucket(key)
	bk.rw.RLock()
	defer bk.rw.RUnlock()
	for _, e := range bk.entries {
		if e.Key == key {
			return e.Pos, true
		}
	}
	return 0, false
}

// Insert 追加到桶尾，不去重。
func (b *Buckets) Insert(key string, pos uint64) {
	bk := b.bucket(key)
	bk.rw.Lock()
	bk.entries = append(bk.entries, Entry{Key: key, Pos: pos})
	bk.rw.Unlock()
}

func (b *Buckets) Clear() {
	for i := range b.buckets {
		bk := &b.buckets[i]
		bk.rw.Lock()
		bk.entries = nil
		bk.rw.Unlock()
	}
}

func (b *Buckets) Len() int {
	n := 0
	for i := range b.buckets {
		bk := &b.buckets[i]
		bk.rw.RLock()
		n += len(bk.entries)
		bk.rw.RUnlock()
	}
	return n
}

// NumBuckets 返回桶数。
func (b *Buckets) NumBuckets() int { return len(b.buckets) }

// Bucket 返回第 i 个桶的拷贝。
func (b *Buckets) Bucket(i int) []Entry {
	bk := &b.buckets[i]
	bk.rw.RLock()
	defer bk.rw.RUnlock()
	return slices.Clone(bk.entries)
}
