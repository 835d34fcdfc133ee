package engine

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmkv/internal/errs"
	"pmkv/internal/index"
	"pmkv/internal/region"
)

var testOpts = Options{
	Buckets:     4,
	Capacity:    8,
	MaxKeyLen:   16,
	MaxValueLen: 32,
	UndoLogSize: 256,
}

func newTestDB(t *testing.T) (*region.Mem, *DB) {
	t.Helper()
	m := region.NewMem(testOpts.RegionSize())
	db, err := Create(m, testOpts)
	require.NoError(t, err)
	return m, db
}

func restart(t *testing.T, m *region.Mem) (*region.Mem, *DB) {
	t.Helper()
	r := m.Crash()
	db, err := Open(r, testOpts)
	require.NoError(t, err)
	return r, db
}

func get(t *testing.T, db *DB, key string) string {
	t.Helper()
	v, err := db.Get(key)
	require.NoError(t, err, key)
	return string(v)
}

func TestPutGetRestart(t *testing.T) {
	m, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("1")))
	require.NoError(t, db.Put("b", []byte("2")))
	require.NoError(t, db.Put("a", []byte("3")))
	assert.Equal(t, "3", get(t, db, "a"))
	assert.Equal(t, 2, db.Len())

	_, db2 := restart(t, m)
	assert.Equal(t, "3", get(t, db2, "a"))
	assert.Equal(t, "2", get(t, db2, "b"))
	assert.Equal(t, 2, db2.Len())

	_, err := db2.Get("c")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPutErrors(t *testing.T) {
	_, db := newTestDB(t)
	assert.ErrorIs(t, db.Put("", []byte("v")), errs.ErrBadArgument)
	assert.ErrorIs(t, db.Put(strings.Repeat("k", 17), []byte("v")), errs.ErrBadArgument)
	assert.ErrorIs(t, db.Put("k", make([]byte, 33)), errs.ErrBadArgument)

	require.NoError(t, db.Put("k", []byte("v")))
	assert.ErrorIs(t, db.Put("k", make([]byte, 33)), errs.ErrBadArgument)
	assert.Equal(t, "v", get(t, db, "k"))

	for i := 1; i < testOpts.Capacity; i++ {
		require.NoError(t, db.Put(fmt.Sprintf("k%d", i), []byte("v")))
	}
	assert.ErrorIs(t, db.Put("full", []byte("v")), errs.ErrCapacityExceeded)
	// 已存在的 key 仍然可以更新
	require.NoError(t, db.Put("k1", []byte("w")))
	assert.Equal(t, "w", get(t, db, "k1"))
}

func TestAppendCrashTruncates(t *testing.T) {
	// 第 i 次 Put 之后恰好 2i 次 drain；崩溃后可见的是已完成 Put 的前缀
	const puts = 5
	for k := 0; k <= 2*puts; k++ {
		m, db := newTestDB(t)
		m.CrashAfter(k)
		for i := 0; i < puts; i++ {
			require.NoError(t, db.Put(fmt.Sprintf("k%d", i), []byte(fmt.Sprint(i))))
		}
		_, db2 := restart(t, m)
		assert.Equal(t, k/2, db2.Len(), "crash after %d drains", k)
		for i := 0; i < k/2; i++ {
			assert.Equal(t, fmt.Sprint(i), get(t, db2, fmt.Sprintf("k%d", i)))
		}
	}
}

func TestUpdateCrashAtEveryDrain(t *testing.T) {
	for k := 0; k <= 4; k++ {
		m, db := newTestDB(t)
		require.NoError(t, db.Put("a", []byte("old")))
		m.CrashAfter(k)
		require.NoError(t, db.Put("a", []byte("brand-new")))

		_, db2 := restart(t, m)
		want := "old"
		if k == 4 {
			want = "brand-new"
		}
		assert.Equal(t, want, get(t, db2, "a"), "crash after %d drains", k)
		assert.Equal(t, 1, db2.Len())
	}
}

func bucketSets(db *DB) [][]index.Entry {
	out := make([][]index.Entry, db.idx.NumBuckets())
	for i := range out {
		b := db.idx.Bucket(i)
		slices.SortFunc(b, func(x, y index.Entry) int { return int(x.Pos) - int(y.Pos) })
		out[i] = b
	}
	return out
}

func TestRebuildIdempotent(t *testing.T) {
	_, db := newTestDB(t)
	for i := 0; i < 6; i++ {
		require.NoError(t, db.Put(fmt.Sprintf("key%d", i), []byte("v")))
	}
	before := bucketSets(db)
	require.NoError(t, db.Rebuild())
	assert.Equal(t, before, bucketSets(db))
	require.NoError(t, db.Rebuild())
	assert.Equal(t, before, bucketSets(db))
	assert.Equal(t, 6, db.Stats().Indexed)
}

func TestDuplicateKeysLowestPositionWins(t *testing.T) {
	m, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("first")))
	// 绕过索引直接追加，模拟持久数组里已有重复 key
	_, err := db.store.Append("a", []byte("second"))
	require.NoError(t, err)

	_, db2 := restart(t, m)
	assert.Equal(t, "first", get(t, db2, "a"))
	assert.Equal(t, 2, db2.Len())
}

func TestIOFaultSurfaces(t *testing.T) {
	m, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("1")))
	m.FailAfter(0)
	assert.ErrorIs(t, db.Put("b", []byte("2")), errs.ErrIOFault)
	assert.ErrorIs(t, db.Put("a", []byte("2")), errs.ErrIOFault)
	_, err := db.Get("b")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, "1", get(t, db, "a"))
}

func TestOpenUsesStoredGeometry(t *testing.T) {
	m, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("1")))
	other := testOpts
	other.Capacity = 2
	other.Buckets = 16
	db2, err := Open(m.Crash(), other)
	require.NoError(t, err)
	assert.Equal(t, testOpts.Capacity, db2.Options().Capacity)
	assert.Equal(t, 16, db2.Stats().Buckets)
	assert.Equal(t, "1", get(t, db2, "a"))
}

func TestOpenUnformatted(t *testing.T) {
	_, err := Open(region.NewMem(testOpts.RegionSize()), testOpts)
	assert.ErrorIs(t, err, errs.ErrCorrupt)
}

func TestCreateValidation(t *testing.T) {
	_, err := Create(region.NewMem(1024), testOpts)
	assert.ErrorIs(t, err, errs.ErrBadArgument)

	small := testOpts
	small.UndoLogSize = 64
	_, err = Create(region.NewMem(small.RegionSize()), small)
	assert.ErrorIs(t, err, errs.ErrBadArgument)

	big := testOpts
	big.MaxValueLen = 512
	_, err = Create(region.NewMem(big.RegionSize()), big)
	assert.ErrorIs(t, err, errs.ErrBadArgument)
}

func TestStats(t *testing.T) {
	m, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("1")))
	st := db.Stats()
	assert.Equal(t, m.Size(), st.RegionSize)
	assert.Equal(t, 1, st.Pairs)
	assert.Equal(t, 8, st.Capacity)
	assert.Equal(t, 4, st.Buckets)
	assert.Equal(t, 1, st.Indexed)
	assert.NotEqual(t, [16]byte{}, [16]byte(st.UUID))
}

func TestClosed(t *testing.T) {
	_, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("1")))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	_, err := db.Get("a")
	assert.ErrorIs(t, err, errs.ErrClosed)
	assert.ErrorIs(t, db.Put("a", []byte("2")), errs.ErrClosed)
	assert.ErrorIs(t, db.Rebuild(), errs.ErrClosed)
}

func TestFailedRollbackRejectsReadsUntilReopen(t *testing.T) {
	m, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("old")))
	require.NoError(t, db.Put("b", []byte("b")))

	m.FailAfter(8)
	assert.ErrorIs(t, db.Put("a", []byte("new")), errs.ErrIOFault)

	// 内存里是新值，持久状态是旧值，两者都不能被读到
	_, err := db.Get("a")
	assert.ErrorIs(t, err, errs.ErrIOFault)
	_, err = db.Get("b")
	assert.ErrorIs(t, err, errs.ErrIOFault)
	assert.ErrorIs(t, db.Put("a", []byte("again")), errs.ErrIOFault)
	assert.ErrorIs(t, db.Put("c", []byte("c")), errs.ErrIOFault)

	_, db2 := restart(t, m)
	assert.Equal(t, "old", get(t, db2, "a"))
	assert.Equal(t, "b", get(t, db2, "b"))
	require.NoError(t, db2.Put("a", []byte("new")))
	assert.Equal(t, "new", get(t, db2, "a"))
}

func TestCommitFailureRollsBack(t *testing.T) {
	m, db := newTestDB(t)
	require.NoError(t, db.Put("a", []byte("old")))
	m.FailAt(8)
	assert.ErrorIs(t, db.Put("a", []byte("new")), errs.ErrIOFault)
	assert.Equal(t, "old", get(t, db, "a"))
	require.NoError(t, db.Put("a", []byte("new")))
	assert.Equal(t, "new", get(t, db, "a"))
}

func TestAppendCrashWithEviction(t *testing.T) {
	// 缓存行可能在 drain 之前落盘；已提交前缀之外最多多出一条完整的对
	const puts = 4
	for seed := uint64(1); seed <= 16; seed++ {
		for k := 0; k <= 2*puts; k++ {
			m, db := newTestDB(t)
			m.EvictOnCrash(0.5, seed)
			m.CrashAfter(k)
			for i := 0; i < puts; i++ {
				require.NoError(t, db.Put(fmt.Sprintf("k%d", i), []byte(fmt.Sprint(i))))
			}
			_, db2 := restart(t, m)
			n := db2.Len()
			if k%2 == 0 {
				assert.Equal(t, k/2, n, "seed %d, crash after %d drains", seed, k)
			} else {
				assert.Contains(t, []int{k / 2, k/2 + 1}, n, "seed %d, crash after %d drains", seed, k)
			}
			for i := 0; i < n; i++ {
				assert.Equal(t, fmt.Sprint(i), get(t, db2, fmt.Sprintf("k%d", i)))
			}
		}
	}
}

func TestUpdateCrashWithEviction(t *testing.T) {
	for seed := uint64(1); seed <= 16; seed++ {
		for k := 0; k <= 4; k++ {
			m, db := newTestDB(t)
			require.NoError(t, db.Put("a", []byte("old")))
			m.EvictOnCrash(0.5, seed)
			m.CrashAfter(k)
			require.NoError(t, db.Put("a", []byte("brand-new")))

			_, db2 := restart(t, m)
			got := get(t, db2, "a")
			switch k {
			case 0, 1, 2:
				assert.Equal(t, "old", got, "seed %d, crash after %d drains", seed, k)
			case 3:
				assert.Contains(t, []string{"old", "brand-new"}, got)
			default:
				assert.Equal(t, "brand-new", got)
			}
		}
	}
}
