// Package region 提供可字节寻址的持久内存区：写入、flush（调度落盘，不等待）
// 与 drain（阻塞直到之前的 flush 全部持久）。
package region

import (
	"fmt"

	"pmkv/internal/errs"
)

// Region 是所有持久结构共享的内存区。Bytes 返回的切片只读，写入必须走 Write，
// 否则 flush/drain 无法追踪。
type Region interface {
	Size() int64
	Bytes(off, n int64) []byte
	Write(off int64, b []byte) error
	Flush(off, n int64) error
	Drain() error
	Close() error
}

// Persist 写入、flush 并 drain 一段数据。
func Persist(r Region, off int64, b []byte) error {
	if err := r.Write(off, b); err != nil {
		return err
	}
	if err := r.Flush(off, int64(len(b))); err != nil {
		return err
	}
	return r.Drain()
}

func checkRange(size, off, n int64) error {
	if off < 0 || n < 0 || off+n > size {
		return fmt.Errorf("%w: range [%d,%d) outside region of %d bytes", errs.ErrIOFault, off, off+n, size)
	}
	return nil
}
