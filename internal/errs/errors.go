package errs

import "errors"

var (
	ErrCapacityExceeded = errors.New("pmkv: capacity exceeded")
	ErrNotFound         = errors.New("pmkv: not found")
	ErrIOFault          = errors.New("pmkv: io fault")
	ErrCorrupt          = errors.New("pmkv: corrupt")
	ErrBadArgument      = errors.New("pmkv: bad argument")
	ErrClosed           = errors.New("pmkv: closed")

	// region 打开/创建
	ErrAlreadyExists  = errors.New("pmkv: region already exists")
	ErrRegionNotFound = errors.New("pmkv: region not found")
	ErrLayoutMismatch = errors.New("pmkv: layout mismatch")

	// 有序数组插入已存在的元素
	ErrDuplicate = errors.New("pmkv: duplicate entry")
	// 事务内写了未 snapshot 的区间
	ErrNotSnapshotted = errors.New("pmkv: range not snapshotted")
)
