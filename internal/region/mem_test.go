package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmkv/internal/errs"
)

func TestMemOnlyDrainedBytesSurvive(t *testing.T) {
	m := NewMem(128)
	require.NoError(t, m.Write(0, []byte("aa")))
	require.NoError(t, m.Write(8, []byte("bb")))
	require.NoError(t, m.Flush(8, 2))
	require.NoError(t, m.Write(16, []byte("cc")))
	require.NoError(t, m.Flush(16, 2))
	require.NoError(t, m.Drain())
	require.NoError(t, m.Write(24, []byte("dd")))
	require.NoError(t, m.Flush(24, 2))

	// 崩溃前可见全部写入
	assert.Equal(t, "aa", string(m.Bytes(0, 2)))

	after := m.Crash()
	assert.Equal(t, []byte{0, 0}, after.Bytes(0, 2), "never flushed")
	assert.Equal(t, "bb", string(after.Bytes(8, 2)))
	assert.Equal(t, "cc", string(after.Bytes(16, 2)))
	assert.Equal(t, []byte{0, 0}, after.Bytes(24, 2), "flushed but not drained")
}

func TestMemFlushCapturesContentAtFlushTime(t *testing.T) {
	m := NewMem(64)
	require.NoError(t, m.Write(0, []byte("a")))
	require.NoError(t, m.Flush(0, 1))
	require.NoError(t, m.Write(0, []byte("b")))
	require.NoError(t, m.Drain())
	assert.Equal(t, "a", string(m.Crash().Bytes(0, 1)))
}

func TestMemCrashAfter(t *testing.T) {
	m := NewMem(64)
	m.CrashAfter(1)
	require.NoError(t, Persist(m, 0, []byte("one")))
	require.NoError(t, Persist(m, 8, []byte("two")))
	assert.Equal(t, 2, m.Drains())
	assert.Equal(t, "two", string(m.Bytes(8, 3)), "volatile view keeps going after power loss")

	after := m.Crash()
	assert.Equal(t, "one", string(after.Bytes(0, 3)))
	assert.Equal(t, []byte{0, 0, 0}, after.Bytes(8, 3))

	// 重启后的区域不再有掉电限制
	require.NoError(t, Persist(after, 8, []byte("two")))
	assert.Equal(t, "two", string(after.Crash().Bytes(8, 3)))
}

func TestMemCrashAfterZero(t *testing.T) {
	m := NewMem(64)
	m.CrashAfter(0)
	require.NoError(t, Persist(m, 0, []byte("x")))
	assert.Equal(t, []byte{0}, m.Crash().Bytes(0, 1))
}

func TestMemFailAfter(t *testing.T) {
	m := NewMem(64)
	m.FailAfter(2)
	require.NoError(t, m.Write(0, []byte("x")))
	require.NoError(t, m.Flush(0, 1))
	assert.ErrorIs(t, m.Drain(), errs.ErrIOFault)
	assert.ErrorIs(t, m.Write(1, []byte("y")), errs.ErrIOFault)
}

func TestMemBoundsAndClose(t *testing.T) {
	m := NewMem(16)
	assert.ErrorIs(t, m.Write(15, []byte("ab")), errs.ErrIOFault)
	assert.ErrorIs(t, m.Flush(0, 17), errs.ErrIOFault)
	require.NoError(t, Persist(m, 0, []byte("ok")))
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Write(0, []byte("x")), errs.ErrClosed)
	assert.Equal(t, "ok", string(m.Crash().Bytes(0, 2)))
}

func TestMemFailAtFailsOnce(t *testing.T) {
	m := NewMem(64)
	m.FailAt(1)
	require.NoError(t, m.Write(0, []byte("a")))
	assert.ErrorIs(t, m.Flush(0, 1), errs.ErrIOFault)
	require.NoError(t, m.Flush(0, 1))
	require.NoError(t, m.Drain())
	assert.Equal(t, "a", string(m.Crash().Bytes(0, 1)))
}

func TestMemEvictOnCrash(t *testing.T) {
	m := NewMem(4 * CacheLine)
	m.EvictOnCrash(1, 7)
	require.NoError(t, m.Write(0, []byte("never flushed")))
	after := m.Crash()
	assert.Equal(t, "never flushed", string(after.Bytes(0, 13)))

	m = NewMem(4 * CacheLine)
	m.EvictOnCrash(0, 7)
	require.NoError(t, m.Write(0, []byte("never flushed")))
	assert.Equal(t, make([]byte, 13), m.Crash().Bytes(0, 13))
}

func TestMemEvictionStopsAtCrashPoint(t *testing.T) {
	m := NewMem(4 * CacheLine)
	m.EvictOnCrash(1, 7)
	m.CrashAfter(1)
	require.NoError(t, Persist(m, 0, []byte("first")))
	require.NoError(t, m.Write(CacheLine, []byte("before crash")))
	// 崩溃发生在这次 drain 之前，之后的写入不可能落盘
	require.NoError(t, m.Drain())
	require.NoError(t, m.Write(2*CacheLine, []byte("after crash")))
	require.NoError(t, m.Drain())

	after := m.Crash()
	assert.Equal(t, "first", string(after.Bytes(0, 5)))
	assert.Equal(t, "before crash", string(after.Bytes(CacheLine, 12)))
	assert.Equal(t, make([]byte, 11), after.Bytes(2*CacheLine, 11))
}
