package shell

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmkv/internal/errs"
)

type mapKV map[string]string

func (m mapKV) Get(key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return []byte(v), nil
}

func (m mapKV) Put(key string, value []byte) error {
	if len(value) > 4 {
		return fmt.Errorf("%w: value too long", errs.ErrBadArgument)
	}
	m[key] = string(value)
	return nil
}

func (m mapKV) Len() int { return len(m) }

func run(t *testing.T, kv KV, script string) []string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, Run(kv, strings.NewReader(script), &out))
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func TestScript(t *testing.T) {
	kv := mapKV{}
	lines := run(t, kv, "put a 1\nget a\nget b\nput a 3\nget a\n\nlen\nexit\nput c 9\n")
	assert.Equal(t, []string{usage, "1", "no entry for b", "3", "1"}, lines)
	_, ok := kv["c"]
	assert.False(t, ok)
}

func TestBadInputPrintsUsage(t *testing.T) {
	lines := run(t, mapKV{}, "get\nput a\nfrob x\nget a b\n")
	assert.Equal(t, []string{usage, usage, usage, usage, usage}, lines)
}

func TestErrorsArePrinted(t *testing.T) {
	lines := run(t, mapKV{}, "put a toolong\nget a\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "error: "), lines[1])
	assert.Equal(t, "no entry for a", lines[2])
}

func TestHelp(t *testing.T) {
	lines := run(t, mapKV{}, "help\n")
	require.Len(t, lines, 3)
	assert.Equal(t, usage, lines[1])
	assert.Contains(t, lines[2], "len")
}
