// Package logpair 把 key 与 value 分别存放在两个定容数组里，按“追加一对”为单位
// 持久化。value 可以在事务里原地更新而无需重新 flush 对应的 key。
//
// 区域布局：
//
//	[0,8)    count  已提交的对数
//	[64,...) keys   capacity 个 key 槽：keyLen u16 | key（按 8 对齐）
//	[...]    values capacity 个 value 槽：valLen u32 | value（按 8 对齐）
package logpair

import (
	"encoding/binary"
	"fmt"
	"iter"
	"sync"

	"pmkv/internal/errs"
	"pmkv/internal/region"
	"pmkv/internal/txlog"
)

const (
	headerSize = 64
	keyLenSize = 2
	valLenSize = 4

	// MaxKeyLen 受 key 槽长度字段限制。
	MaxKeyLen = 1<<16 - 1
)

// Position 是一对 key/value 在数组中的下标。
type Position = uint64

// Geometry 描述数组容量与槽大小。
type Geometry struct {
	Capacity    int
	MaxKeyLen   int
	MaxValueLen int
}

func align8(n int64) int64 { return (n + 7) &^ 7 }

func (g Geometry) keySlot() int64 { return align8(keyLenSize + int64(g.MaxKeyLen)) }
func (g Geometry) valSlot() int64 { return align8(valLenSize + int64(g.MaxValueLen)) }

// Footprint 返回该几何参数的存储区字节数。
func (g Geometry) Footprint() int64 {
	return headerSize + int64(g.Capacity)*(g.keySlot()+g.valSlot())
}

func (g Geometry) validate() error {
	if g.Capacity <= 0 || g.MaxKeyLen <= 0 || g.MaxKeyLen > MaxKeyLen || g.MaxValueLen < 0 {
		return fmt.Errorf("%w: geometry %+v", errs.ErrBadArgument, g)
	}
	return nil
}

// Pair 是一对已提交的 key/value。
type Pair struct {
	Pos   Position
	Key   string
	Value []byte
}

// Store 位于 region 的 [off, off+Footprint)。
type Store struct {
	r   region.Region
	off int64
	g   Geometry

	mu    sync.RWMutex // 写操作独占，读操作共享
	count uint64

	// 事务回滚失败后内存视图与持久状态不一致，重新打开之前拒绝读写
	failed error
}

func newStore(r region.Region, off int64, g Geometry) (*Store, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	if off < 0 || off+g.Footprint() > r.Size() {
		return nil, fmt.Errorf("%w: store needs %d bytes at %d, region has %d", errs.ErrBadArgument, g.Footprint(), off, r.Size())
	}
	return &Store{r: r, off: off, g: g}, nil
}

// Create 初始化一个空存储。
func Create(r region.Region, off int64, g Geometry) (*Store, error) {
	s, err := newStore(r, off, g)
	if err != nil {
		return nil, err
	}
	if err := s.persistCount(0); err != nil {
		return nil, err
	}
	return s, nil
}

// Open 打开已存在的存储，count 越界返回 ErrCorrupt。
func Open(r region.Region, off int64, g Geometry) (*Store, error) {
	s, err := newStore(r, off, g)
	if err != nil {
		return nil, err
	}
	s.count = binary.LittleEndian.Uint64(r.Bytes(off, 8))
	if s.count > uint64(g.Capacity) {
		return nil, fmt.Errorf("%w: committed length %d exceeds capacity %d", errs.ErrCorrupt, s.count, g.Capacity)
	}
	return s, nil
}

func (s *Store) persistCount(n uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	if err := region.Persist(s.r, s.off, b[:]); err != nil {
		return err
	}
	s.count = n
	return nil
}

func (s *Store) keyOff(pos Position) int64 {
	return s.off + headerSize + int64(pos)*s.g.keySlot()
}

func (s *Store) valOff(pos Position) int64 {
	return s.off + headerSize + int64(s.g.Capacity)*s.g.keySlot() + int64(pos)*s.g.valSlot()
}

// Geometry 返回几何参数。
func (s *Store) Geometry() Geometry { return s.g }

// Len 返回已提交的对数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.count)
}

func (s *Store) Cap() int { return s.g.Capacity }

func (s *Store) checkKey(key string) error {
	if len(key) == 0 || len(key) > s.g.MaxKeyLen {
		return fmt.Errorf("%w: key length %d (max %d)", errs.ErrBadArgument, len(key), s.g.MaxKeyLen)
	}
	return nil
}

func (s *Store) checkValue(value []byte) error {
	if len(value) > s.g.MaxValueLen {
		return fmt.Errorf("%w: value length %d (max %d)", errs.ErrBadArgument, len(value), s.g.MaxValueLen)
	}
	return nil
}

// Append 追加一对 key/value 并提交：先 value 后 key，drain 之后再持久化新的 count。
func (s *Store) Append(key string, value []byte) (Position, error) {
	if err := s.checkKey(key); err != nil {
		return 0, err
	}
	if err := s.checkValue(value); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return 0, s.failed
	}
	pos := s.count
	if pos >= uint64(s.g.Capacity) {
		return 0, errs.ErrCapacityExceeded
	}

	vb := make([]byte, valLenSize+len(value))
	binary.LittleEndian.PutUint32(vb, uint32(len(value)))
	copy(vb[valLenSize:], value)
	vo := s.valOff(pos)
	if err := s.r.Write(vo, vb); err != nil {
		return 0, err
	}
	if err := s.r.Flush(vo, int64(len(vb))); err != nil {
		return 0, err
	}

	kb := make([]byte, keyLenSize+len(key))
	binary.LittleEndian.PutUint16(kb, uint16(len(key)))
	copy(kb[keyLenSize:], key)
	ko := s.keyOff(pos)
	if err := s.r.Write(ko, kb); err != nil {
		return 0, err
	}
	if err := s.r.Flush(ko, int64(len(kb))); err != nil {
		return 0, err
	}
	if err := s.r.Drain(); err != nil {
		return 0, err
	}

	if err := s.persistCount(pos + 1); err != nil {
		return 0, err
	}
	return pos, nil
}

// Update 在 tx 中原地替换 pos 处的 value。
func (s *Store) Update(tx *txlog.Tx, pos Position, value []byte) error {
	if err := s.checkValue(value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(tx, pos, value)
}

// Replace 在 log 的一个新事务里替换 pos 处的 value。提交与失败时的回滚都在写锁内完成，
// 读者看不到回滚到一半的值；回滚也失败时 Store 进入失败状态。
func (s *Store) Replace(log *txlog.Log, pos Position, value []byte) error {
	if err := s.checkValue(value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return s.failed
	}
	err := log.Run(func(tx *txlog.Tx) error {
		return s.update(tx, pos, value)
	})
	if err != nil && log.Pending() {
		s.failed = fmt.Errorf("%w: rollback of position %d failed, reopen required: %v", errs.ErrIOFault, pos, err)
	}
	return err
}

func (s *Store) update(tx *txlog.Tx, pos Position, value []byte) error {
	if s.failed != nil {
		return s.failed
	}
	if pos >= s.count {
		return fmt.Errorf("%w: position %d of %d", errs.ErrNotFound, pos, s.count)
	}
	vb := make([]byte, valLenSize+len(value))
	binary.LittleEndian.PutUint32(vb, uint32(len(value)))
	copy(vb[valLenSize:], value)
	vo := s.valOff(pos)
	if err := tx.Snapshot(vo, int64(len(vb))); err != nil {
		return err
	}
	return tx.Write(vo, vb)
}

// Failed 返回使 Store 拒绝读写的错误，正常时为 nil。
func (s *Store) Failed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed
}

// Get 读取 pos 处已提交的一对。
func (s *Store) Get(pos Position) (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(pos)
}

// Value 只读取 pos 处的 value。
func (s *Store) Value(pos Position) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failed != nil {
		return nil, s.failed
	}
	if pos >= s.count {
		return nil, fmt.Errorf("%w: position %d of %d", errs.ErrNotFound, pos, s.count)
	}
	return s.value(pos)
}

func (s *Store) value(pos Position) ([]byte, error) {
	vo := s.valOff(pos)
	n := int64(binary.LittleEndian.Uint32(s.r.Bytes(vo, valLenSize)))
	if n > int64(s.g.MaxValueLen) {
		return nil, fmt.Errorf("%w: value length %d at position %d", errs.ErrCorrupt, n, pos)
	}
	return append([]byte(nil), s.r.Bytes(vo+valLenSize, n)...), nil
}

func (s *Store) get(pos Position) (Pair, error) {
	if s.failed != nil {
		return Pair{}, s.failed
	}
	if pos >= s.count {
		return Pair{}, fmt.Errorf("%w: position %d of %d", errs.ErrNotFound, pos, s.count)
	}
	ko := s.keyOff(pos)
	kn := int64(binary.LittleEndian.Uint16(s.r.Bytes(ko, keyLenSize)))
	if kn == 0 || kn > int64(s.g.MaxKeyLen) {
		return Pair{}, fmt.Errorf("%w: key length %d at position %d", errs.ErrCorrupt, kn, pos)
	}
	val, err := s.value(pos)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Pos: pos, Key: string(s.r.Bytes(ko+keyLenSize, kn)), Value: val}, nil
}

// Pairs 按位置顺序惰性遍历所有已提交的对，可重复遍历。遇到损坏的槽产出错误并停止。
func (s *Store) Pairs() iter.Seq2[Pair, error] {
	return func(yield func(Pair, error) bool) {
		n := uint64(s.Len())
		for pos := uint64(0); pos < n; pos++ {
			p, err := s.Get(pos)
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}
