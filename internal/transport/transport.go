// Package transport 对原生QUIC和WebTransport两种底层连接做统一封装，
// 上层按同一套接口收发流和数据报，不感知具体传输
package transport

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
)

// Stream 双向流
type Stream interface {
	io.Reader
	io.Writer
	// Close 关闭写端，读端继续有效
	Close() error
	// StreamID 返回底层流ID
	StreamID() uint64
	// SetReadDeadline 设置读超时
	SetReadDeadline(t time.Time) error
	// CancelRead 中止读端
	CancelRead(code uint64)
	// CancelWrite 中止写端
	CancelWrite(code uint64)
}

// ReceiveStream 单向接收流
type ReceiveStream interface {
	io.Reader
	StreamID() uint64
	CancelRead(code uint64)
}

// SendStream 单向发送流
type SendStream interface {
	io.Writer
	Close() error
	StreamID() uint64
	CancelWrite(code uint64)
}

// Connection 一条已建立的传输连接
type Connection interface {
	// AcceptStream 等待对端打开双向流
	AcceptStream(ctx context.Context) (Stream, error)
	// OpenStreamSync 向对端打开双向流
	OpenStreamSync(ctx context.Context) (Stream, error)
	// AcceptUniStream 等待对端打开单向流
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)
	// OpenUniStreamSync 向对端打开单向流
	OpenUniStreamSync(ctx context.Context) (SendStream, error)
	// SendDatagram 发送一个数据报
	SendDatagram(data []byte) error
	// ReceiveDatagram 等待接收一个数据报
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	// CloseWithError 以给定错误码关闭整条连接
	CloseWithError(code uint64, reason string) error
	// RemoteAddr 返回对端地址
	RemoteAddr() net.Addr
	// Underlay 返回底层传输类型
	Underlay() session.Underlay
}
