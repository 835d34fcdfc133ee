package fs

import (
	"fmt"
	"path/filepath"
)

// PoolPath 返回 dir 下名为 name 的 pool 文件路径。
func PoolPath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.pool", name))
}
