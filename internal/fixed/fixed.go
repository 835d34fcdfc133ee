package fixed

import (
	"fmt"
	"reflect"
	"unsafe"

	"pmkv/internal/errs"
)

// Storager 供 SetFixed/GetFixed 使用的存储接口。
type Storager interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
}

// Check 确认 T 不含指针，可以按字节直接落到持久内存。
func Check[T any]() error {
	var zero T
	if err := typeNoPointers(reflect.TypeOf(zero)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBadArgument, err)
	}
	return nil
}

func typeNoPointers(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("nil type")
	}
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Array:
		return typeNoPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if err := typeNoPointers(t.Field(i).Type); err != nil {
				return fmt.Errorf("field %s: %w", t.Field(i).Name, err)
			}
		}
		return nil
	case reflect.String, reflect.Slice, reflect.Map, reflect.Pointer,
		reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Errorf("type %s contains pointer-like data", t.String())
	default:
		return fmt.Errorf("unsupported kind %s (%s)", t.Kind(), t.String())
	}
}

// Size 返回 T 的字节数。
func Size[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Bytes 返回 *p 的字节视图，修改视图即修改 *p。
func Bytes[T any](p *T) []byte {
	n := int(unsafe.Sizeof(*p))
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// Decode 把 b 拷贝成一个 T；len(b) 必须等于 Size[T]()。
func Decode[T any](b []byte) T {
	var out T
	copy(Bytes(&out), b)
	return out
}

// SetFixed 将无指针类型 T 的实例序列化写入 db。
func SetFixed[T any](db Storager, key string, v *T) error {
	if err := Check[T](); err != nil {
		return err
	}
	return db.Put(key, Bytes(v))
}

// GetFixed 从 db 读出并反序列化为 *T。
func GetFixed[T any](db Storager, key string) (*T, error) {
	if err := Check[T](); err != nil {
		return nil, err
	}
	b, err := db.Get(key)
	if err != nil {
		return nil, err
	}
	out := new(T)
	want := int(unsafe.Sizeof(*out))
	if len(b) != want {
		return nil, fmt.Errorf("%w: size mismatch: got=%d want=%d", errs.ErrCorrupt, len(b), want)
	}
	copy(Bytes(out), b)
	return out, nil
}
