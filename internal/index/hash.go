package index

import (
	"github.com/twmb/murmur3"
)

// BucketOf 返回 key 落在 n 个桶中的哪一个。
func BucketOf(key string, n int) int {
	return int(murmur3.StringSum32(key) % uint32(n))
}
