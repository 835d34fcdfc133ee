package pmkv

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
)

// TestSoak 长时浸泡：随机读写，每轮重启后与参照 map 对比
func TestSoak(t *testing.T) {
	if testing.Short() {
		t.Skip("skip soak in short mode")
	}
	path := filepath.Join(t.TempDir(), "soak.pool")
	opts := Options{Buckets: 64, Capacity: 2048, MaxKeyLen: 16, MaxValueLen: 32, UndoLogSize: 4096}
	const rounds = 5
	const opsPerRound = 20000

	expected := make(map[string][]byte)
	db, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := rand.New(rand.NewSource(99))

	for round := 0; round < rounds; round++ {
		for i := 0; i < opsPerRound; i++ {
			k := fmt.Sprintf("s:%d", r.Intn(2000))
			if r.Intn(2) == 0 {
				v := []byte(fmt.Sprintf("v%d", r.Int()))
				if err := db.Put(k, v); err != nil {
					t.Fatalf("round %d: Put %s: %v", round, k, err)
				}
				expected[k] = v
				continue
			}
			got, err := db.Get(k)
			want, ok := expected[k]
			switch {
			case ok && (err != nil || !bytes.Equal(got, want)):
				t.Fatalf("round %d: key %s want %q got %q (%v)", round, k, want, got, err)
			case !ok && !errors.Is(err, ErrNotFound):
				t.Fatalf("round %d: key %s should be missing, got %q (%v)", round, k, got, err)
			}
		}

		db.Close()
		db, err = Open(path, opts)
		if err != nil {
			t.Fatalf("Reopen round %d: %v", round, err)
		}
		for k, want := range expected {
			got, err := db.Get(k)
			if err != nil || !bytes.Equal(got, want) {
				t.Fatalf("after reopen round %d key %s: want %q got %q (%v)", round, k, want, got, err)
			}
		}
		if db.Len() != len(expected) {
			t.Fatalf("after reopen round %d: Len %d, want %d", round, db.Len(), len(expected))
		}
	}
	db.Close()
}

// FuzzDB 随机 key/value/操作序列，用参照 map 校验
func FuzzDB(f *testing.F) {
	f.Add([]byte{0, 2, 'k', '1', 1, 'v'})
	f.Add([]byte{1, 2, 'k', '1'})
	f.Add([]byte{0, 1, 'a', 2, 'x', 'y', 0, 1, 'a', 1, 'z', 1, 1, 'a'})

	opts := Options{Buckets: 4, Capacity: 64, MaxKeyLen: 32, MaxValueLen: 64, UndoLogSize: 1024}
	f.Fuzz(func(t *testing.T, data []byte) {
		db, err := Open(filepath.Join(t.TempDir(), "fuzz.pool"), opts)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer db.Close()

		expected := make(map[string][]byte)
		i := 0
		for i+2 <= len(data) {
			op := data[i] % 2
			kl := int(data[i+1])%opts.MaxKeyLen + 1
			i += 2
			if i+kl > len(data) {
				break
			}
			key := string(data[i : i+kl])
			i += kl

			switch op {
			case 0:
				if i >= len(data) {
					return
				}
				vl := int(data[i]) % (opts.MaxValueLen + 1)
				i++
				if i+vl > len(data) {
					return
				}
				val := append([]byte{}, data[i:i+vl]...)
				i += vl
				err := db.Put(key, val)
				if _, ok := expected[key]; !ok && len(expected) == opts.Capacity {
					if !errors.Is(err, ErrCapacityExceeded) {
						t.Fatalf("Put %q into full pool: %v", key, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("Put %q: %v", key, err)
				}
				expected[key] = val
			case 1:
				got, err := db.Get(key)
				want, ok := expected[key]
				if ok && (err != nil || !bytes.Equal(got, want)) {
					t.Fatalf("key %q: want %q got %q (%v)", key, want, got, err)
				}
				if !ok && !errors.Is(err, ErrNotFound) {
					t.Fatalf("key %q: expected missing, got %q (%v)", key, got, err)
				}
			}
		}
	})
}
