package region

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"sync"

	"pmkv/internal/errs"
)

// CacheLine 是模拟淘汰的粒度。
const CacheLine = 64

type span struct {
	off  int64
	data []byte
}

// Mem 是模拟掉电语义的内存区：只有 flush 后又被 drain 的字节才进入 durable 镜像，
// Crash 用 durable 镜像构造一个新的 Mem，相当于重启。
type Mem struct {
	mu      sync.Mutex
	data    []byte
	durable []byte
	pending []span
	closed  bool

	budget int // 剩余可落盘的 drain 次数，-1 表示不限
	faults int // 剩余成功操作次数，之后返回 ErrIOFault，-1 表示不注入
	failAt int // 再成功几次操作后失败一次，-1 表示不注入
	drains int

	// 崩溃时刻（预算耗尽后的第一次 drain 之前）的易失内容
	crashImage []byte
	evictP     float64
	rng        *rand.Rand
}

// NewMem 创建 size 字节、全零的内存区。
func NewMem(size int64) *Mem {
	return &Mem{
		data:    make([]byte, size),
		durable: make([]byte, size),
		budget:  -1,
		faults:  -1,
		failAt:  -1,
	}
}

// CrashAfter 之后只有 n 次 drain 真正落盘，再之后的 flush/drain 全部丢失。
func (m *Mem) CrashAfter(n int) {
	m.mu.Lock()
	m.budget = n
	m.mu.Unlock()
}

// FailAfter 之后 n 次 Write/Flush/Drain 成功，再之后全部返回 ErrIOFault。
func (m *Mem) FailAfter(n int) {
	m.mu.Lock()
	m.faults = n
	m.mu.Unlock()
}

// FailAt 之后 n 次 Write/Flush/Drain 成功，下一次返回 ErrIOFault，再之后恢复正常。
func (m *Mem) FailAt(n int) {
	m.mu.Lock()
	m.failAt = n
	m.mu.Unlock()
}

// EvictOnCrash 模拟缓存行提前淘汰：Crash 时崩溃时刻每个与 durable 不同的缓存行
// 以概率 p 落盘，无论是否 flush 过。
func (m *Mem) EvictOnCrash(p float64, seed uint64) {
	m.mu.Lock()
	m.evictP = p
	m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	m.mu.Unlock()
}

// Drains 返回已执行的 drain 次数。
func (m *Mem) Drains() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drains
}

// Crash 丢弃所有未持久的写入，返回只含 durable 镜像的新区域。原区域随之关闭。
// 开启 EvictOnCrash 时，崩溃时刻的部分缓存行也会进入镜像。
func (m *Mem) Crash() *Mem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	n := &Mem{
		data:    make([]byte, len(m.durable)),
		durable: make([]byte, len(m.durable)),
		budget:  -1,
		faults:  -1,
		failAt:  -1,
	}
	copy(n.durable, m.durable)
	if m.rng != nil {
		live := m.crashImage
		if live == nil {
			live = m.data
		}
		for lo := 0; lo < len(live); lo += CacheLine {
			hi := min(lo+CacheLine, len(live))
			if !bytes.Equal(live[lo:hi], n.durable[lo:hi]) && m.rng.Float64() < m.evictP {
				copy(n.durable[lo:hi], live[lo:hi])
			}
		}
	}
	copy(n.data, n.durable)
	return n
}

func (m *Mem) Size() int64 { return int64(len(m.data)) }

func (m *Mem) Bytes(off, n int64) []byte {
	return m.data[off : off+n : off+n]
}

func (m *Mem) fault(op string) error {
	if m.closed {
		return errs.ErrClosed
	}
	switch {
	case m.faults == 0:
		return fmt.Errorf("%w: injected %s failure", errs.ErrIOFault, op)
	case m.faults > 0:
		m.faults--
	}
	switch {
	case m.failAt == 0:
		m.failAt = -1
		return fmt.Errorf("%w: injected %s failure", errs.ErrIOFault, op)
	case m.failAt > 0:
		m.failAt--
	}
	return nil
}

func (m *Mem) Write(off int64, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("write"); err != nil {
		return err
	}
	if err := checkRange(int64(len(m.data)), off, int64(len(b))); err != nil {
		return err
	}
	copy(m.data[off:], b)
	return nil
}

// Flush 记录 flush 时刻的字节内容，等待 drain。
func (m *Mem) Flush(off, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("flush"); err != nil {
		return err
	}
	if err := checkRange(int64(len(m.data)), off, n); err != nil {
		return err
	}
	if m.budget == 0 {
		return nil
	}
	m.pending = append(m.pending, span{off: off, data: append([]byte(nil), m.data[off:off+n]...)})
	return nil
}

func (m *Mem) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("drain"); err != nil {
		return err
	}
	m.drains++
	if m.budget == 0 {
		if m.crashImage == nil {
			m.crashImage = append([]byte(nil), m.data...)
		}
		m.pending = m.pending[:0]
		return nil
	}
	for _, s := range m.pending {
		copy(m.durable[s.off:], s.data)
	}
	m.pending = m.pending[:0]
	if m.budget > 0 {
		m.budget--
	}
	return nil
}

func (m *Mem) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
