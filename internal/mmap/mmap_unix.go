//go:build unix

package mmap

import (
	"golang.org/x/sys/unix"
)

// Map 将文件 fd 的 [0, size) 映射为可读写共享内存。
func Map(fd uintptr, size int) ([]byte, error) {
	return unix.Mmap(int(fd), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Flush 异步回写 data 覆盖的页，不等待落盘。data 起点须页对齐。
func Flush(data []byte) error {
	return unix.Msync(data, unix.MS_ASYNC)
}

// Sync 同步回写 data 覆盖的页，返回时已落盘。
func Sync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

// Unmap 解除映射。
func Unmap(data []byte) error {
	return unix.Munmap(data)
}

// PageSize 返回系统页大小。
func PageSize() int {
	return unix.Getpagesize()
}
