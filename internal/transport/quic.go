package transport

import (
	"context"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
)

// QUICConnection 原生QUIC连接封装
type QUICConnection struct {
	conn quic.Connection
}

// 确保实现 Connection 接口
var _ Connection = (*QUICConnection)(nil)

// NewQUICConnection 创建原生QUIC连接封装
func NewQUICConnection(conn quic.Connection) *QUICConnection {
	return &QUICConnection{conn: conn}
}

func (c *QUICConnection) AcceptStream(ctx context.Context) (Stream, error) {
	stream, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{stream: stream}, nil
}

func (c *QUICConnection) OpenStreamSync(ctx context.Context) (Stream, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{stream: stream}, nil
}

func (c *QUICConnection) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	stream, err := c.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicReceiveStream{stream: stream}, nil
}

func (c *QUICConnection) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	stream, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicSendStream{stream: stream}, nil
}

func (c *QUICConnection) SendDatagram(data []byte) error {
	return c.conn.SendDatagram(data)
}

func (c *QUICConnection) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return c.conn.ReceiveDatagram(ctx)
}

func (c *QUICConnection) CloseWithError(code uint64, reason string) error {
	return c.conn.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

func (c *QUICConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *QUICConnection) Underlay() session.Underlay {
	return session.UnderlayQUIC
}

type quicStream struct {
	stream quic.Stream
}

func (s *quicStream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *quicStream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *quicStream) Close() error                { return s.stream.Close() }
func (s *quicStream) StreamID() uint64            { return uint64(s.stream.StreamID()) }

func (s *quicStream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

func (s *quicStream) CancelRead(code uint64) {
	s.stream.CancelRead(quic.StreamErrorCode(code))
}

func (s *quicStream) CancelWrite(code uint64) {
	s.stream.CancelWrite(quic.StreamErrorCode(code))
}

type quicReceiveStream struct {
	stream quic.ReceiveStream
}

func (s *quicReceiveStream) Read(p []byte) (int, error) { return s.stream.Read(p) }
func (s *quicReceiveStream) StreamID() uint64           { return uint64(s.stream.StreamID()) }

func (s *quicReceiveStream) CancelRead(code uint64) {
	s.stream.CancelRead(quic.StreamErrorCode(code))
}

type quicSendStream struct {
	stream quic.SendStream
}

func (s *quicSendStream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *quicSendStream) Close() error                { return s.stream.Close() }
func (s *quicSendStream) StreamID() uint64            { return uint64(s.stream.StreamID()) }

func (s *quicSendStream) CancelWrite(code uint64) {
	s.stream.CancelWrite(quic.StreamErrorCode(code))
}
