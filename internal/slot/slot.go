// Package slot 实现双缓冲的持久版本槽：两个副本加一个 current 标志。
//
// 发布流程：在影子副本 (1-current) 中构造新值，flush+drain 整个影子副本，
// 然后 flush+drain current := shadow。任何时刻崩溃，current 指向的都是一个
// 完整发布过的副本。
package slot

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"pmkv/internal/errs"
	"pmkv/internal/region"
)

const (
	flagSize  = 8
	copyAlign = 64
)

// Slot 位于 region 的 [off, off+Footprint(size))。
type Slot struct {
	r    region.Region
	off  int64
	size int64

	writeMu sync.Mutex   // 串行化 Publish
	flipMu  sync.RWMutex // View 持读锁，翻转 current 持写锁

	current   uint32
	publishes atomic.Uint64
}

func alignUp(n, a int64) int64 {
	return (n + a - 1) / a * a
}

// Footprint 返回一个副本大小为 size 的槽在 region 中占用的字节数。
func Footprint(size int64) int64 {
	return copyAlign + 2*alignUp(size, copyAlign)
}

func (s *Slot) copyOff(i uint32) int64 {
	return s.off + copyAlign + int64(i)*alignUp(s.size, copyAlign)
}

// Create 初始化槽：copies[0] = init，current = 0，全部持久化后返回。
func Create(r region.Region, off, size int64, init []byte) (*Slot, error) {
	if size <= 0 || int64(len(init)) > size {
		return nil, fmt.Errorf("%w: slot size %d, initial value %d bytes", errs.ErrBadArgument, size, len(init))
	}
	if off < 0 || off+Footprint(size) > r.Size() {
		return nil, fmt.Errorf("%w: slot does not fit in region", errs.ErrCapacityExceeded)
	}
	s := &Slot{r: r, off: off, size: size}
	c0 := make([]byte, size)
	copy(c0, init)
	if err := r.Write(s.copyOff(0), c0); err != nil {
		return nil, err
	}
	if err := r.Flush(s.copyOff(0), size); err != nil {
		return nil, err
	}
	if err := r.Drain(); err != nil {
		return nil, err
	}
	var flag [flagSize]byte
	if err := region.Persist(r, off, flag[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// Open 读取已存在的槽，current 不是 0/1 返回 ErrCorrupt。
func Open(r region.Region, off, size int64) (*Slot, error) {
	if size <= 0 || off < 0 || off+Footprint(size) > r.Size() {
		return nil, fmt.Errorf("%w: slot does not fit in region", errs.ErrCorrupt)
	}
	cur := binary.LittleEndian.Uint32(r.Bytes(off, 4))
	if cur > 1 {
		return nil, fmt.Errorf("%w: slot current flag %d", errs.ErrCorrupt, cur)
	}
	return &Slot{r: r, off: off, size: size, current: cur}, nil
}

// Size 返回单个副本的字节数。
func (s *Slot) Size() int64 { return s.size }

// Current 返回当前已发布的副本下标。
func (s *Slot) Current() uint32 {
	s.flipMu.RLock()
	defer s.flipMu.RUnlock()
	return s.current
}

// Publishes 返回本次打开以来成功翻转的次数。
func (s *Slot) Publishes() uint64 { return s.publishes.Load() }

// View 在读锁下把当前副本交给 fn；fn 返回后不得再持有该切片。
func (s *Slot) View(fn func(cur []byte) error) error {
	s.flipMu.RLock()
	defer s.flipMu.RUnlock()
	return fn(s.r.Bytes(s.copyOff(s.current), s.size))
}

// Publish 用 build 构造新值并原子发布。build 收到当前副本 cur 与一块清零的
// 草稿 next，返回写入 next 的有效字节数；build 出错时影子副本不会被触碰。
func (s *Slot) Publish(build func(cur, next []byte) (int, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// 只有本 goroutine 会改 current，持 writeMu 读取无需 flipMu。
	cur := s.current
	shadow := 1 - cur
	next := make([]byte, s.size)
	n, err := build(s.r.Bytes(s.copyOff(cur), s.size), next)
	if err != nil {
		return err
	}
	if n <= 0 || int64(n) > s.size {
		return fmt.Errorf("%w: built %d bytes for a %d byte slot", errs.ErrBadArgument, n, s.size)
	}

	so := s.copyOff(shadow)
	if err := s.r.Write(so, next[:n]); err != nil {
		return err
	}
	if err := s.r.Flush(so, int64(n)); err != nil {
		return err
	}
	if err := s.r.Drain(); err != nil {
		return err
	}

	s.flipMu.Lock()
	defer s.flipMu.Unlock()
	var flag [4]byte
	binary.LittleEndian.PutUint32(flag[:], shadow)
	if err := region.Persist(s.r, s.off, flag[:]); err != nil {
		return err
	}
	s.current = shadow
	s.publishes.Add(1)
	return nil
}
