package server

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/buffer"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/cache"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/dispatch"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/relation"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/relay"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

// fakeControlStream 单字节读取，验证跨读取边界的帧重组
type fakeControlStream struct {
	reader *bytes.Reader
	out    bytes.Buffer
}

func (s *fakeControlStream) Read(p []byte) (int, error) {
	if s.reader.Len() == 0 {
		return 0, io.EOF
	}
	return s.reader.Read(p[:1])
}

func (s *fakeControlStream) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s *fakeControlStream) Close() error { return nil }

func (s *fakeControlStream) StreamID() uint64 { return 0 }

func (s *fakeControlStream) SetReadDeadline(time.Time) error { return nil }

func (s *fakeControlStream) CancelRead(code uint64) {}

func (s *fakeControlStream) CancelWrite(code uint64) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	buffers := buffer.NewManager()
	t.Cleanup(buffers.Close)
	return &Server{
		buffers:          buffers,
		handshakeTimeout: time.Second,
	}
}

func TestHandleFirstFrameSetup(t *testing.T) {
	s := newTestServer(t)
	sess := session.NewSession(1, session.UnderlayQUIC)

	setup := &message.ClientSetup{
		SupportedVersions: []uint64{message.ProtocolVersion},
		Parameters:        message.Parameters{}.AddVarint(message.ParamRole, uint64(message.RolePubSub)),
	}
	stream := &fakeControlStream{reader: bytes.NewReader(message.AppendFrame(nil, setup))}

	err := s.handleFirstFrame(context.Background(), sess, stream)
	require.NoError(t, err, "期望握手成功")
	assert.Equal(t, session.PhaseSetUp, sess.Phase, "期望会话进入SETUP阶段")

	msg, err := message.ParseFrame(wire.NewCursor(stream.out.Bytes()))
	require.NoError(t, err, "期望应答为完整控制帧")
	resp, ok := msg.(*message.ServerSetup)
	require.True(t, ok, "期望应答为SERVER_SETUP")
	assert.Equal(t, message.ProtocolVersion, resp.SelectedVersion, "期望选中支持的版本")
}

func TestHandleFirstFrameRejectsNonSetup(t *testing.T) {
	s := newTestServer(t)
	sess := session.NewSession(2, session.UnderlayQUIC)

	first := &message.Unsubscribe{SubscribeID: 1}
	stream := &fakeControlStream{reader: bytes.NewReader(message.AppendFrame(nil, first))}

	err := s.handleFirstFrame(context.Background(), sess, stream)
	require.Error(t, err, "输入非SETUP首帧，期望握手失败")
	assert.Equal(t, session.PhaseConnected, sess.Phase)
	assert.Zero(t, stream.out.Len(), "期望握手失败时不回送任何帧")
}

// burstControlStream 一次读取吐出整个首发数据，之后EOF，
// 模拟客户端把SETUP与后续帧合并在同一批字节里发出
type burstControlStream struct {
	data []byte
	sent bool
	out  bytes.Buffer
}

func (s *burstControlStream) Read(p []byte) (int, error) {
	if s.sent {
		return 0, io.EOF
	}
	s.sent = true
	return copy(p, s.data), nil
}

func (s *burstControlStream) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s *burstControlStream) Close() error { return nil }

func (s *burstControlStream) StreamID() uint64 { return 0 }

func (s *burstControlStream) SetReadDeadline(time.Time) error { return nil }

func (s *burstControlStream) CancelRead(code uint64) {}

func (s *burstControlStream) CancelWrite(code uint64) {}

func TestControlReadLoopHandlesPipelinedFrames(t *testing.T) {
	relations := relation.NewManager()
	storage := cache.NewStorage(16)
	buffers := buffer.NewManager()
	control := dispatch.NewControlDispatcher()
	signals := dispatch.NewSignalDispatcher()
	sender := connection.NewMessageSender(control)
	r := relay.NewRelay(relations, storage, buffers, control, signals, sender, database.NewMemoryStore(), time.Minute)
	t.Cleanup(func() {
		relations.Close()
		storage.Close()
		buffers.Close()
		control.Close()
		signals.Close()
	})
	s := &Server{
		relay:            r,
		control:          control,
		signals:          signals,
		buffers:          buffers,
		handshakeTimeout: time.Second,
	}

	ctx := context.Background()
	sess := session.NewSession(9, session.UnderlayQUIC)
	controlCh, err := control.Set(ctx, sess.ID)
	require.NoError(t, err)

	// SETUP与ANNOUNCE到达同一批字节
	flight := message.AppendFrame(nil, &message.ClientSetup{
		SupportedVersions: []uint64{message.ProtocolVersion},
		Parameters:        message.Parameters{}.AddVarint(message.ParamRole, uint64(message.RolePublisher)),
	})
	flight = message.AppendFrame(flight, &message.Announce{
		TrackNamespace: moq.TrackNamespace{"live", "room9"},
		Parameters:     message.Parameters{},
	})
	stream := &burstControlStream{data: flight}

	require.NoError(t, s.handleFirstFrame(ctx, sess, stream), "期望握手成功")
	s.controlReadLoop(ctx, sess, stream)

	select {
	case frame := <-controlCh:
		msg, err := message.ParseFrame(wire.NewCursor(frame))
		require.NoError(t, err)
		_, ok := msg.(*message.AnnounceOk)
		assert.True(t, ok, "期望紧随SETUP的ANNOUNCE得到应答, 实际=%T", msg)
	case <-time.After(time.Second):
		t.Fatal("Except ANNOUNCE_OK but got none within 1s")
	}
}

func TestHandleFirstFrameUnsupportedVersion(t *testing.T) {
	s := newTestServer(t)
	sess := session.NewSession(3, session.UnderlayQUIC)

	setup := &message.ClientSetup{
		SupportedVersions: []uint64{0xff000001},
		Parameters:        message.Parameters{}.AddVarint(message.ParamRole, uint64(message.RolePublisher)),
	}
	stream := &fakeControlStream{reader: bytes.NewReader(message.AppendFrame(nil, setup))}

	err := s.handleFirstFrame(context.Background(), sess, stream)
	require.Error(t, err, "输入不支持的版本，期望握手失败")
}
