// Package shell 是逐行命令接口：put <key> <value>、get <key>、len、help、exit，其它输入打印用法。
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"pmkv/internal/errs"
)

const usage = "usage: [get key|put key value|exit]"

// KV 是命令接口驱动的存储。
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Len() int
}

// Run 从 in 读取命令直到 exit 或 EOF，结果写到 out。单条命令的错误打印后继续。
func Run(kv KV, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(out, usage)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch {
		case fields[0] == "get" && len(fields) == 2:
			v, err := kv.Get(fields[1])
			switch {
			case errors.Is(err, errs.ErrNotFound):
				fmt.Fprintf(out, "no entry for %s\n", fields[1])
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			default:
				fmt.Fprintln(out, string(v))
			}
		case fields[0] == "put" && len(fields) == 3:
			if err := kv.Put(fields[1], []byte(fields[2])); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		case fields[0] == "len" && len(fields) == 1:
			fmt.Fprintln(out, kv.Len())
		case fields[0] == "help":
			fmt.Fprintln(out, usage)
			fmt.Fprintln(out, "       len prints the number of stored pairs")
		case fields[0] == "exit":
			return nil
		default:
			fmt.Fprintln(out, usage)
		}
	}
	return sc.Err()
}
