package index

// Entry 索引项：key 与它在持久数组中的位置。
type Entry struct {
	Key string
	Pos uint64
}

// Index 易失键值索引接口，启动时从持久数组重建，从不持久化。
type Index interface {
	Lookup(key string) (uint64, bool)
	Insert(key string, pos uint64)
	Clear()
	Len() int
}
