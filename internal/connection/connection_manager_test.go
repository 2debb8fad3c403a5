package connection

import (
	"context"
	"net"
	"testing"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/transport"
)

type stubConnection struct {
	closed       bool
	closedCode   uint64
	closedReason string
}

func (c *stubConnection) AcceptStream(ctx context.Context) (transport.Stream, error) {
	return nil, net.ErrClosed
}

func (c *stubConnection) OpenStreamSync(ctx context.Context) (transport.Stream, error) {
	return nil, net.ErrClosed
}

func (c *stubConnection) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	return nil, net.ErrClosed
}

func (c *stubConnection) OpenUniStreamSync(ctx context.Context) (transport.SendStream, error) {
	return nil, net.ErrClosed
}

func (c *stubConnection) SendDatagram(data []byte) error { return nil }

func (c *stubConnection) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return nil, net.ErrClosed
}

func (c *stubConnection) CloseWithError(code uint64, reason string) error {
	c.closed = true
	c.closedCode = code
	c.closedReason = reason
	return nil
}

func (c *stubConnection) RemoteAddr() net.Addr { return &net.UDPAddr{} }

func (c *stubConnection) Underlay() session.Underlay { return session.UnderlayQUIC }

func TestCloseAllClosesEveryConnection(t *testing.T) {
	cm := GetConnectionManager()
	a := &stubConnection{}
	b := &stubConnection{}
	cm.AddConnection(101, &Connection{Conn: a, Session: session.NewSession(101, session.UnderlayQUIC)})
	cm.AddConnection(102, &Connection{Conn: b, Session: session.NewSession(102, session.UnderlayQUIC)})
	defer cm.RemoveConnection(101)
	defer cm.RemoveConnection(102)

	cm.CloseAll(0, "server shutting down")

	if !a.closed || !b.closed {
		t.Fatal("Except all connections closed, but got some left open")
	}
	if a.closedReason != "server shutting down" {
		t.Errorf("Except reason %q, but got %q", "server shutting down", a.closedReason)
	}
	if b.closedCode != 0 {
		t.Errorf("Except close code 0, but got %d", b.closedCode)
	}
}
