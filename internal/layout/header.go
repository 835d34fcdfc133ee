package layout

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"

	"pmkv/internal/errs"
	"pmkv/internal/region"
)

const (
	Magic   = uint32(0x504D4B56) // 'PMKV'
	Version = uint16(1)

	NameSize   = 24
	HeaderSize = 4 + 2 + 2 + NameSize + 16 + 8 + 8*4 + 4 // 92 bytes
	// HeaderArea 为 pool 头预留的整页，数据区从这里开始。
	HeaderArea = int64(4096)
)

// Header pool 头（magic/version/layout/uuid/size/geometry/crc）
type Header struct {
	Magic  uint32
	Ver    uint16
	_      uint16
	Layout string
	UUID   uuid.UUID
	Size   uint64
	Params [4]uint64
	CRC32  uint32
}

// DecodeHeader 从 data 解码 pool 头。
func DecodeHeader(data []byte) Header {
	h := Header{
		Magic: binary.LittleEndian.Uint32(data[0:4]),
		Ver:   binary.LittleEndian.Uint16(data[4:6]),
		Size:  binary.LittleEndian.Uint64(data[48:56]),
		CRC32: binary.LittleEndian.Uint32(data[88:92]),
	}
	name := data[8 : 8+NameSize]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	h.Layout = string(name[:n])
	copy(h.UUID[:], data[32:48])
	for i := range h.Params {
		h.Params[i] = binary.LittleEndian.Uint64(data[56+8*i : 64+8*i])
	}
	return h
}

// EncodeHeader 将 h 编码到 b（至少 HeaderSize 字节），CRC 按编码结果重新计算。
func EncodeHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Ver)
	binary.LittleEndian.PutUint16(b[6:8], 0)
	clear(b[8 : 8+NameSize])
	copy(b[8:8+NameSize], h.Layout)
	copy(b[32:48], h.UUID[:])
	binary.LittleEndian.PutUint64(b[48:56], h.Size)
	for i, p := range h.Params {
		binary.LittleEndian.PutUint64(b[56+8*i:64+8*i], p)
	}
	binary.LittleEndian.PutUint32(b[88:92], CalcCRC(b[:88]))
}

// CalcCRC 计算头部 CRC，覆盖 CRC 字段之前的全部字节。
func CalcCRC(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Format 在 r 的 0 偏移写入新的 pool 头并持久化。
func Format(r region.Region, name string, params [4]uint64) (Header, error) {
	if len(name) == 0 || len(name) > NameSize {
		return Header{}, fmt.Errorf("%w: layout name %q", errs.ErrBadArgument, name)
	}
	if r.Size() < HeaderArea {
		return Header{}, fmt.Errorf("%w: region of %d bytes has no room for a header", errs.ErrBadArgument, r.Size())
	}
	h := Header{
		Magic:  Magic,
		Ver:    Version,
		Layout: name,
		UUID:   uuid.New(),
		Size:   uint64(r.Size()),
		Params: params,
	}
	var buf [HeaderSize]byte
	EncodeHeader(buf[:], h)
	h.CRC32 = binary.LittleEndian.Uint32(buf[88:92])
	if err := region.Persist(r, 0, buf[:]); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Load 读取并校验 r 的 pool 头，layout 不符返回 ErrLayoutMismatch。
func Load(r region.Region, name string) (Header, error) {
	if r.Size() < HeaderArea {
		return Header{}, fmt.Errorf("%w: region of %d bytes", errs.ErrCorrupt, r.Size())
	}
	data := r.Bytes(0, HeaderSize)
	h := DecodeHeader(data)
	if h.Magic != Magic || h.Ver != Version {
		return Header{}, fmt.Errorf("%w: bad pool magic %#x version %d", errs.ErrCorrupt, h.Magic, h.Ver)
	}
	if CalcCRC(data[:88]) != h.CRC32 {
		return Header{}, fmt.Errorf("%w: pool header checksum", errs.ErrCorrupt)
	}
	if h.Size != uint64(r.Size()) {
		return Header{}, fmt.Errorf("%w: pool header size %d, region %d", errs.ErrCorrupt, h.Size, r.Size())
	}
	if h.Layout != name {
		return Header{}, fmt.Errorf("%w: want %q, pool has %q", errs.ErrLayoutMismatch, name, h.Layout)
	}
	return h, nil
}
