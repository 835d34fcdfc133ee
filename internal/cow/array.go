// Package cow 实现定容有序数组：两份物理副本，插入/删除在影子副本里完成，
// 通过 slot 的 current 翻转发布。
package cow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"pmkv/internal/errs"
	"pmkv/internal/fixed"
	"pmkv/internal/region"
	"pmkv/internal/slot"
)

const sizeField = 8

// Array 是元素类型为 T 的定容有序数组，T 必须不含指针。
type Array[T any] struct {
	s     *slot.Slot
	slots int
	esz   int
	cmp   func(a, b T) int
}

// Footprint 返回容量为 slots 的数组在 region 中占用的字节数。
func Footprint[T any](slots int) int64 {
	return slot.Footprint(copySize[T](slots))
}

func copySize[T any](slots int) int64 {
	return sizeField + int64(slots)*int64(fixed.Size[T]())
}

func check[T any](slots int, cmp func(a, b T) int) error {
	if err := fixed.Check[T](); err != nil {
		return err
	}
	if slots <= 0 || cmp == nil || fixed.Size[T]() == 0 {
		return fmt.Errorf("%w: array of %d slots", errs.ErrBadArgument, slots)
	}
	return nil
}

// Create 在 r 的 off 处初始化一个空数组。
func Create[T any](r region.Region, off int64, slots int, cmp func(a, b T) int) (*Array[T], error) {
	if err := check(slots, cmp); err != nil {
		return nil, err
	}
	s, err := slot.Create(r, off, copySize[T](slots), make([]byte, sizeField))
	if err != nil {
		return nil, err
	}
	return &Array[T]{s: s, slots: slots, esz: fixed.Size[T](), cmp: cmp}, nil
}

// Open 打开 off 处已存在的数组，并校验当前副本的 size。
func Open[T any](r region.Region, off int64, slots int, cmp func(a, b T) int) (*Array[T], error) {
	if err := check(slots, cmp); err != nil {
		return nil, err
	}
	s, err := slot.Open(r, off, copySize[T](slots))
	if err != nil {
		return nil, err
	}
	a := &Array[T]{s: s, slots: slots, esz: fixed.Size[T](), cmp: cmp}
	err = s.View(func(cur []byte) error {
		_, err := a.size(cur)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Array[T]) size(cp []byte) (int, error) {
	n := binary.LittleEndian.Uint64(cp[:sizeField])
	if n > uint64(a.slots) {
		return 0, fmt.Errorf("%w: array size %d exceeds %d slots", errs.ErrCorrupt, n, a.slots)
	}
	return int(n), nil
}

func (a *Array[T]) decode(cp []byte) ([]T, error) {
	n, err := a.size(cp)
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		o := sizeField + i*a.esz
		out[i] = fixed.Decode[T](cp[o : o+a.esz])
	}
	return out, nil
}

// encode 把 entries 写入 next，返回有效字节数。
func (a *Array[T]) encode(next []byte, entries []T) int {
	binary.LittleEndian.PutUint64(next[:sizeField], uint64(len(entries)))
	for i := range entries {
		o := sizeField + i*a.esz
		copy(next[o:o+a.esz], fixed.Bytes(&entries[i]))
	}
	return sizeField + len(entries)*a.esz
}

// Insert 把 v 合并插入到有序位置并发布。数组满返回 ErrCapacityExceeded，
// 已存在相等元素返回 ErrDuplicate。
func (a *Array[T]) Insert(v T) error {
	return a.s.Publish(func(cur, next []byte) (int, error) {
		n, err := a.size(cur)
		if err != nil {
			return 0, err
		}
		if n == a.slots {
			return 0, errs.ErrCapacityExceeded
		}
		entries, err := a.decode(cur)
		if err != nil {
			return 0, err
		}
		pos, found := slices.BinarySearchFunc(entries, v, a.cmp)
		if found {
			return 0, errs.ErrDuplicate
		}
		return a.encode(next, slices.Insert(entries, pos, v)), nil
	})
}

// Remove 删除与 v 相等的元素；不存在时不发布，返回 false。
func (a *Array[T]) Remove(v T) (bool, error) {
	err := a.s.Publish(func(cur, next []byte) (int, error) {
		entries, err := a.decode(cur)
		if err != nil {
			return 0, err
		}
		pos, found := slices.BinarySearchFunc(entries, v, a.cmp)
		if !found {
			return 0, errs.ErrNotFound
		}
		return a.encode(next, slices.Delete(entries, pos, pos+1)), nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Entries 返回当前已发布副本的有序拷贝。
func (a *Array[T]) Entries() []T {
	var out []T
	_ = a.s.View(func(cur []byte) error {
		var err error
		out, err = a.decode(cur)
		return err
	})
	return out
}

// Search 返回 v 在当前副本中的位置；不存在时返回应插入的位置和 false。
func (a *Array[T]) Search(v T) (int, bool) {
	return slices.BinarySearchFunc(a.Entries(), v, a.cmp)
}

// Len 返回当前副本的元素个数。
func (a *Array[T]) Len() int {
	var n int
	_ = a.s.View(func(cur []byte) error {
		var err error
		n, err = a.size(cur)
		return err
	})
	return n
}

func (a *Array[T]) Cap() int { return a.slots }

// Current 返回当前发布的副本下标（0 或 1）。
func (a *Array[T]) Current() uint32 { return a.s.Current() }

// Publishes 返回本次打开以来的发布次数。
func (a *Array[T]) Publishes() uint64 { return a.s.Publishes() }
