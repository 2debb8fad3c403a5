// Package wire 实现了协议的变长整数与带长度前缀字节串的编解码
package wire

import (
	"fmt"
	"unicode/utf8"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// 变长整数编码上限，首字节的高两位用于选择 1/2/4/8 字节宽度
const (
	maxVarint1 = 1<<6 - 1
	maxVarint2 = 1<<14 - 1
	maxVarint4 = 1<<30 - 1
	maxVarint8 = 1<<62 - 1
)

// Cursor 字节缓冲区上的读取游标
type Cursor struct {
	Data       []byte
	CurrentPtr int
}

// NewCursor 创建读取游标
func NewCursor(data []byte) *Cursor {
	return &Cursor{Data: data}
}

// Remaining 返回未读取的字节数
func (c *Cursor) Remaining() int {
	return len(c.Data) - c.CurrentPtr
}

// ReadByte 读取单个字节
func (c *Cursor) ReadByte() (byte, error) {
	if c.CurrentPtr >= len(c.Data) {
		return 0, moq.ErrTruncated
	}
	b := c.Data[c.CurrentPtr]
	c.CurrentPtr++
	return b, nil
}

// ReadBytesRaw 读取指定长度的原始字节
func (c *Cursor) ReadBytesRaw(length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("invalid reading length %d: %w", length, moq.ErrProtocolViolation)
	}
	end := c.CurrentPtr + length
	if end > len(c.Data) {
		return nil, moq.ErrTruncated
	}
	data := c.Data[c.CurrentPtr:end]
	c.CurrentPtr = end
	return data, nil
}

// ReadVarint 读取QUIC风格变长整数
// 首字节高两位选择宽度，组装数值前必须屏蔽这两位
func ReadVarint(c *Cursor) (uint64, error) {
	first, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	width := 1 << (first >> 6)
	value := uint64(first & 0x3F)
	for i := 1; i < width; i++ {
		b, err := c.ReadByte()
		if err != nil {
			return 0, err
		}
		value = value<<8 | uint64(b)
	}
	return value, nil
}

// AppendVarint 以能容纳该值的最小宽度追加编码
// 值超过 2^62-1 属于调用方错误，直接panic
func AppendVarint(buf []byte, value uint64) []byte {
	switch {
	case value <= maxVarint1:
		return append(buf, byte(value))
	case value <= maxVarint2:
		return append(buf, 0x40|byte(value>>8), byte(value))
	case value <= maxVarint4:
		return append(buf, 0x80|byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	case value <= maxVarint8:
		return append(buf, 0xC0|byte(value>>56), byte(value>>48), byte(value>>40), byte(value>>32),
			byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	default:
		panic(fmt.Sprintf("value %d overflows the varint range", value))
	}
}

// VarintLen 返回该值编码后的字节数
func VarintLen(value uint64) int {
	switch {
	case value <= maxVarint1:
		return 1
	case value <= maxVarint2:
		return 2
	case value <= maxVarint4:
		return 4
	case value <= maxVarint8:
		return 8
	default:
		panic(fmt.Sprintf("value %d overflows the varint range", value))
	}
}

// ReadBytes 读取变长整数长度前缀加原始字节
func ReadBytes(c *Cursor) ([]byte, error) {
	length, err := ReadVarint(c)
	if err != nil {
		return nil, err
	}
	return c.ReadBytesRaw(int(length))
}

// AppendBytes 追加长度前缀与原始字节
func AppendBytes(buf []byte, data []byte) []byte {
	buf = AppendVarint(buf, uint64(len(data)))
	return append(buf, data...)
}

// ReadString 读取UTF-8字符串，非法UTF-8属协议违规
func ReadString(c *Cursor) (string, error) {
	data, err := ReadBytes(c)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("string is not valid UTF-8: %w", moq.ErrProtocolViolation)
	}
	return string(data), nil
}

// AppendString 追加长度前缀字符串
func AppendString(buf []byte, s string) []byte {
	return AppendBytes(buf, []byte(s))
}
