package pmkv

import (
	"errors"
	"fmt"
	"sync"

	"pmkv/internal/cow"
	"pmkv/internal/errs"
	"pmkv/internal/fixed"
	"pmkv/internal/layout"
	"pmkv/internal/region"
)

// ArrayLayout 是有序数组 pool 头里的布局名。
const ArrayLayout = "pmkv-cow"

// Array 是单独一个 pool 文件里的定容有序数组，插入通过写时复制发布。
// Close 之后 Insert/Remove 返回 ErrClosed，读操作返回空结果。
type Array[T any] struct {
	mu sync.RWMutex // Close 持写锁
	r  region.Region
	a  *cow.Array[T]
}

// OpenArray 打开 path 处的数组 pool；不存在时创建容量为 slots 的空数组。
// 已存在的 pool 的容量和元素大小必须与参数一致，否则返回 ErrLayoutMismatch。
func OpenArray[T any](path string, slots int, cmp func(a, b T) int) (*Array[T], error) {
	if err := fixed.Check[T](); err != nil {
		return nil, err
	}
	r, err := region.Open(path)
	if err != nil {
		if errors.Is(err, errs.ErrRegionNotFound) {
			return CreateArray(path, slots, cmp)
		}
		return nil, err
	}
	a, err := openArray(r, arrayParams[T](slots), slots, cmp)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &Array[T]{r: r, a: a}, nil
}

// CreateArray 创建容量为 slots 的空数组 pool，文件已存在返回 ErrAlreadyExists。
func CreateArray[T any](path string, slots int, cmp func(a, b T) int) (*Array[T], error) {
	if err := fixed.Check[T](); err != nil {
		return nil, err
	}
	if slots <= 0 {
		return nil, fmt.Errorf("%w: array of %d slots", ErrBadArgument, slots)
	}
	var a *cow.Array[T]
	r, err := region.CreateWith(path, layout.HeaderArea+cow.Footprint[T](slots), func(r *region.File) error {
		var err error
		if a, err = cow.Create(r, layout.HeaderArea, slots, cmp); err != nil {
			return err
		}
		_, err = layout.Format(r, ArrayLayout, arrayParams[T](slots))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Array[T]{r: r, a: a}, nil
}

func arrayParams[T any](slots int) [4]uint64 {
	return [4]uint64{uint64(slots), uint64(fixed.Size[T]())}
}

func openArray[T any](r region.Region, params [4]uint64, slots int, cmp func(a, b T) int) (*cow.Array[T], error) {
	h, err := layout.Load(r, ArrayLayout)
	if err != nil {
		return nil, err
	}
	if h.Params != params {
		return nil, fmt.Errorf("%w: pool holds %d slots of %d bytes, want %d of %d",
			ErrLayoutMismatch, h.Params[0], h.Params[1], params[0], params[1])
	}
	return cow.Open(r, layout.HeaderArea, slots, cmp)
}

// Insert 把 v 插入有序位置并原子发布。
func (a *Array[T]) Insert(v T) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.r == nil {
		return ErrClosed
	}
	return a.a.Insert(v)
}

// Remove 删除与 v 相等的元素，返回是否删除。
func (a *Array[T]) Remove(v T) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.r == nil {
		return false, ErrClosed
	}
	return a.a.Remove(v)
}

// Entries 返回当前发布的有序元素。
func (a *Array[T]) Entries() []T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.r == nil {
		return nil
	}
	return a.a.Entries()
}

func (a *Array[T]) Search(v T) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.r == nil {
		return 0, false
	}
	return a.a.Search(v)
}

func (a *Array[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.r == nil {
		return 0
	}
	return a.a.Len()
}

func (a *Array[T]) Cap() int { return a.a.Cap() }

// Current 返回当前发布的副本下标。
func (a *Array[T]) Current() uint32 { return a.a.Current() }

// Publishes 返回本次打开以来的发布次数。
func (a *Array[T]) Publishes() uint64 { return a.a.Publishes() }

func (a *Array[T]) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.r == nil {
		return nil
	}
	err := a.r.Close()
	a.r = nil
	return err
}
