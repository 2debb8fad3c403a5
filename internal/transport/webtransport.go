package transport

import (
	"context"
	"net"
	"time"

	"github.com/quic-go/webtransport-go"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
)

// WebTransportConnection WebTransport会话封装
type WebTransportConnection struct {
	session *webtransport.Session
}

// 确保实现 Connection 接口
var _ Connection = (*WebTransportConnection)(nil)

// NewWebTransportConnection 创建WebTransport会话封装
func NewWebTransportConnection(sess *webtransport.Session) *WebTransportConnection {
	return &WebTransportConnection{session: sess}
}

func (c *WebTransportConnection) AcceptStream(ctx context.Context) (Stream, error) {
	stream, err := c.session.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &webTransportStream{stream: stream}, nil
}

func (c *WebTransportConnection) OpenStreamSync(ctx context.Context) (Stream, error) {
	stream, err := c.session.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &webTransportStream{stream: stream}, nil
}

func (c *WebTransportConnection) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	stream, err := c.session.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return &webTransportReceiveStream{stream: stream}, nil
}

func (c *WebTransportConnection) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	stream, err := c.session.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &webTransportSendStream{stream: stream}, nil
}

func (c *WebTransportConnection) SendDatagram(data []byte) error {
	return c.session.SendDatagram(data)
}

func (c *WebTransportConnection) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return c.session.ReceiveDatagram(ctx)
}

func (c *WebTransportConnection) CloseWithError(code uint64, reason string) error {
	return c.session.CloseWithError(webtransport.SessionErrorCode(code), reason)
}

func (c *WebTransportConnection) RemoteAddr() net.Addr {
	return c.session.RemoteAddr()
}

func (c *WebTransportConnection) Underlay() session.Underlay {
	return session.UnderlayWebTransport
}

type webTransportStream struct {
	stream webtransport.Stream
}

func (s *webTransportStream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *webTransportStream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *webTransportStream) Close() error                { return s.stream.Close() }
func (s *webTransportStream) StreamID() uint64            { return uint64(s.stream.StreamID()) }

func (s *webTransportStream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

func (s *webTransportStream) CancelRead(code uint64) {
	s.stream.CancelRead(webtransport.StreamErrorCode(code))
}

func (s *webTransportStream) CancelWrite(code uint64) {
	s.stream.CancelWrite(webtransport.StreamErrorCode(code))
}

type webTransportReceiveStream struct {
	stream webtransport.ReceiveStream
}

func (s *webTransportReceiveStream) Read(p []byte) (int, error) { return s.stream.Read(p) }
func (s *webTransportReceiveStream) StreamID() uint64           { return uint64(s.stream.StreamID()) }

func (s *webTransportReceiveStream) CancelRead(code uint64) {
	s.stream.CancelRead(webtransport.StreamErrorCode(code))
}

type webTransportSendStream struct {
	stream webtransport.SendStream
}

func (s *webTransportSendStream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *webTransportSendStream) Close() error                { return s.stream.Close() }
func (s *webTransportSendStream) StreamID() uint64            { return uint64(s.stream.StreamID()) }

func (s *webTransportSendStream) CancelWrite(code uint64) {
	s.stream.CancelWrite(webtransport.StreamErrorCode(code))
}
