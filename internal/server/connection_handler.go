package server

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/buffer"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/dispatch"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/relay"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/transport"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

const readChunkSize = 4096

// handleConnection 一条连接的完整生命周期：握手、控制读写、信号、
// 数据报与单向流接收，任一环节退出则整条连接拆除
func (s *Server) handleConnection(conn transport.Connection) {
	id := moq.SessionID(s.nextSessionID.Add(1))
	sess := session.NewSession(id, conn.Underlay())
	traceID := sess.TraceID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controlCh, err := s.control.Set(ctx, id)
	if err != nil {
		logger.ErrorF("[%s] Fail to register control channel, details: %v", traceID, err)
		return
	}
	signalCh, err := s.signals.Set(ctx, id)
	if err != nil {
		logger.ErrorF("[%s] Fail to register signal channel, details: %v", traceID, err)
		_ = s.control.Delete(ctx, id)
		return
	}

	connection.GetConnectionManager().AddConnection(id, &connection.Connection{Conn: conn, Session: sess})
	sender := newConnObjectSender(conn)
	s.relay.RegisterObjectSender(id, sender)

	defer func() {
		s.relay.HandleDisconnect(context.Background(), id)
		connection.GetConnectionManager().RemoveConnection(id)
		sender.closeStreams()
		logger.DebugF("[%s] Connection closed", traceID)
	}()

	logger.DebugF("[%s] Accepted new connection from %s", traceID, conn.RemoteAddr().String())

	// 客户端负责打开控制流
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		logger.WarnF("[%s] Fail to accept control stream, details: %v", traceID, err)
		return
	}

	if err := s.handleFirstFrame(ctx, sess, stream); err != nil {
		logger.ErrorF("[%s] Fail to set up session, details: %v", traceID, err)
		_ = conn.CloseWithError(relay.TerminateProtocolViolate, "setup failed")
		return
	}

	go s.controlWriteLoop(sess, stream, controlCh)
	go s.signalLoop(ctx, cancel, sess, conn, signalCh)
	go s.datagramLoop(ctx, sess, conn)
	go s.uniStreamAcceptLoop(ctx, sess, conn)

	s.controlReadLoop(ctx, sess, stream)
}

// handleFirstFrame 在握手期限内读取首个控制帧，只接受CLIENT_SETUP
func (s *Server) handleFirstFrame(ctx context.Context, sess *session.Session, stream transport.Stream) error {
	_ = stream.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	defer func() { _ = stream.SetReadDeadline(time.Time{}) }()

	key := buffer.StreamKey{SessionID: sess.ID, StreamID: stream.StreamID()}
	chunk := make([]byte, readChunkSize)

	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			if err := s.buffers.Append(ctx, key, chunk[:n]); err != nil {
				return err
			}
		}
		if err != nil {
			return err
		}

		buffered, err := s.buffers.Bytes(ctx, key)
		if err != nil {
			return err
		}

		c := wire.NewCursor(buffered)
		msg, err := message.ParseFrame(c)
		if errors.Is(err, moq.ErrTruncated) {
			continue
		}
		if err != nil {
			return err
		}

		setup, ok := msg.(*message.ClientSetup)
		if !ok {
			return errors.New("expected CLIENT_SETUP as first message, but got " + msg.MessageType().String())
		}

		resp, err := sess.HandleSetup(setup)
		if err != nil {
			return err
		}
		if err := writeAll(stream, message.AppendFrame(nil, resp)); err != nil {
			return err
		}
		return s.buffers.Consume(ctx, key, c.CurrentPtr)
	}
}

// controlWriteLoop 把分发器投递的控制帧按序写到控制流
// 通道由分发器在会话拆除时关闭，循环随之退出
func (s *Server) controlWriteLoop(sess *session.Session, stream transport.Stream, ch <-chan []byte) {
	for data := range ch {
		if err := writeAll(stream, data); err != nil {
			logger.ErrorF("[%s] Fail to send control message, details: %v", sess.TraceID, err)
			return
		}
		logger.DebugF("[%s] Send %d bytes to client", sess.TraceID, len(data))
	}
}

// signalLoop 等待终止信号并按信号携带的错误码关闭连接
func (s *Server) signalLoop(ctx context.Context, cancel context.CancelFunc, sess *session.Session, conn transport.Connection, ch <-chan dispatch.Signal) {
	select {
	case sig := <-ch:
		logger.WarnF("[%s] Session terminated, code %#x, reason: %s", sess.TraceID, sig.Code, sig.Reason)
		if err := conn.CloseWithError(sig.Code, sig.Reason); err != nil {
			logger.DebugF("[%s] Error occured while closing connection, details: %v", sess.TraceID, err)
		}
		cancel()
	case <-ctx.Done():
	}
}

// datagramLoop 接收数据报对象并交给转发器
func (s *Server) datagramLoop(ctx context.Context, sess *session.Session, conn transport.Connection) {
	for {
		data, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() == nil && !connection.IsNetClosedError(err) {
				logger.DebugF("[%s] Error occured while receiving datagram, details: %v", sess.TraceID, err)
			}
			return
		}

		c := wire.NewCursor(data)
		t, err := message.ReadDataStreamType(c)
		if err != nil || t != message.TypeObjectDatagram {
			logger.WarnF("[%s] Invalid datagram received, dropped", sess.TraceID)
			continue
		}
		datagram := &message.ObjectDatagram{}
		if err := datagram.Parse(c); err != nil {
			logger.WarnF("[%s] Fail to parse datagram, details: %v", sess.TraceID, err)
			continue
		}
		if err := s.relay.HandleDatagram(ctx, sess, datagram); err != nil {
			logger.WarnF("[%s] Fail to forward datagram, details: %v", sess.TraceID, err)
		}
	}
}

// uniStreamAcceptLoop 接收对端打开的单向对象流
func (s *Server) uniStreamAcceptLoop(ctx context.Context, sess *session.Session, conn transport.Connection) {
	for {
		stream, err := conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() == nil && !connection.IsNetClosedError(err) {
				logger.DebugF("[%s] Error occured while accepting stream, details: %v", sess.TraceID, err)
			}
			return
		}
		go s.handleUniStream(ctx, sess, stream)
	}
}

// handleUniStream 解析一条对象流：先流头后对象记录，边到边转发
// 字节不足时挂起等待更多数据，只在完整解析后消费缓冲
func (s *Server) handleUniStream(ctx context.Context, sess *session.Session, stream transport.ReceiveStream) {
	key := buffer.StreamKey{SessionID: sess.ID, StreamID: stream.StreamID()}
	defer func() { _ = s.buffers.ReleaseStream(context.Background(), key) }()

	var trackHeader *message.StreamHeaderTrack
	var subgroupHeader *message.StreamHeaderSubgroup
	chunk := make([]byte, readChunkSize)

	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			if appendErr := s.buffers.Append(ctx, key, chunk[:n]); appendErr != nil {
				return
			}
			if parseErr := s.parseObjectStream(ctx, sess, key, &trackHeader, &subgroupHeader); parseErr != nil {
				logger.WarnF("[%s] Invalid object stream %d, details: %v", sess.TraceID, stream.StreamID(), parseErr)
				stream.CancelRead(relay.TerminateProtocolViolate)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil && !connection.IsNetClosedError(err) {
				logger.DebugF("[%s] Error occured while reading stream %d, details: %v", sess.TraceID, stream.StreamID(), err)
			}
			return
		}
	}
}

func (s *Server) parseObjectStream(ctx context.Context, sess *session.Session, key buffer.StreamKey,
	trackHeader **message.StreamHeaderTrack, subgroupHeader **message.StreamHeaderSubgroup) error {
	for {
		buffered, err := s.buffers.Bytes(ctx, key)
		if err != nil {
			return err
		}
		if len(buffered) == 0 {
			return nil
		}
		c := wire.NewCursor(buffered)

		if *trackHeader == nil && *subgroupHeader == nil {
			t, err := message.ReadDataStreamType(c)
			if errors.Is(err, moq.ErrTruncated) {
				return nil
			}
			if err != nil {
				return err
			}
			switch t {
			case message.TypeStreamHeaderTrack:
				header := &message.StreamHeaderTrack{}
				if err := header.Parse(c); err != nil {
					if errors.Is(err, moq.ErrTruncated) {
						return nil
					}
					return err
				}
				if err := s.relay.HandleTrackHeader(ctx, sess, header); err != nil {
					return err
				}
				*trackHeader = header
			case message.TypeStreamHeaderSubgroup:
				header := &message.StreamHeaderSubgroup{}
				if err := header.Parse(c); err != nil {
					if errors.Is(err, moq.ErrTruncated) {
						return nil
					}
					return err
				}
				if err := s.relay.HandleSubgroupHeader(ctx, sess, header); err != nil {
					return err
				}
				*subgroupHeader = header
			default:
				return errors.New("unexpected data stream type " + t.String())
			}
			if err := s.buffers.Consume(ctx, key, c.CurrentPtr); err != nil {
				return err
			}
			continue
		}

		if *trackHeader != nil {
			obj := &message.TrackObject{}
			if err := obj.Parse(c); err != nil {
				if errors.Is(err, moq.ErrTruncated) {
					return nil
				}
				return err
			}
			if err := s.relay.HandleTrackObject(ctx, sess, *trackHeader, obj); err != nil {
				return err
			}
		} else {
			obj := &message.SubgroupObject{}
			if err := obj.Parse(c); err != nil {
				if errors.Is(err, moq.ErrTruncated) {
					return nil
				}
				return err
			}
			if err := s.relay.HandleSubgroupObject(ctx, sess, *subgroupHeader, obj); err != nil {
				return err
			}
		}
		if err := s.buffers.Consume(ctx, key, c.CurrentPtr); err != nil {
			return err
		}
	}
}

// controlReadLoop 读取并分发控制帧，协议违规时终止会话
func (s *Server) controlReadLoop(ctx context.Context, sess *session.Session, stream transport.Stream) {
	key := buffer.StreamKey{SessionID: sess.ID, StreamID: stream.StreamID()}
	chunk := make([]byte, readChunkSize)

	// 握手读取可能已经带进了后续帧，先清空存量再等新数据
	if err := s.drainControlFrames(ctx, sess, key); err != nil {
		s.relay.Terminate(ctx, sess.ID, relay.TerminateProtocolViolate, err.Error())
		return
	}

	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			if appendErr := s.buffers.Append(ctx, key, chunk[:n]); appendErr != nil {
				return
			}
			if handleErr := s.drainControlFrames(ctx, sess, key); handleErr != nil {
				s.relay.Terminate(ctx, sess.ID, relay.TerminateProtocolViolate, handleErr.Error())
				return
			}
		}
		if err != nil {
			connection.HandleReadError(sess.ID, err)
			return
		}
	}
}

func (s *Server) drainControlFrames(ctx context.Context, sess *session.Session, key buffer.StreamKey) error {
	for {
		buffered, err := s.buffers.Bytes(ctx, key)
		if err != nil {
			return err
		}
		if len(buffered) == 0 {
			return nil
		}

		c := wire.NewCursor(buffered)
		msg, err := message.ParseFrame(c)
		if errors.Is(err, moq.ErrTruncated) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.buffers.Consume(ctx, key, c.CurrentPtr); err != nil {
			return err
		}
		if err := sess.CheckMessageLegal(msg.MessageType()); err != nil {
			return err
		}
		logger.DebugF("[%s] Receive %s message", sess.TraceID, msg.MessageType())

		if err := s.dispatchControlMessage(ctx, sess, msg); err != nil {
			return err
		}
	}
}

func (s *Server) dispatchControlMessage(ctx context.Context, sess *session.Session, msg message.ControlMessage) error {
	var err error
	switch m := msg.(type) {
	case *message.Announce:
		err = s.relay.HandleAnnounce(ctx, sess, m)
	case *message.Unannounce:
		err = s.relay.HandleUnannounce(ctx, sess, m)
	case *message.Subscribe:
		err = s.relay.HandleSubscribe(ctx, sess, m)
	case *message.SubscribeOk:
		err = s.relay.HandleSubscribeOk(ctx, sess, m)
	case *message.SubscribeError:
		err = s.relay.HandleSubscribeError(ctx, sess, m)
	case *message.Unsubscribe:
		err = s.relay.HandleUnsubscribe(ctx, sess, m)
	case *message.TrackStatusRequest:
		err = s.relay.HandleTrackStatusRequest(ctx, sess, m)
	case *message.SubscribeNamespace:
		err = s.relay.HandleSubscribeNamespace(ctx, sess, m)
	case *message.Fetch:
		err = s.relay.HandleFetch(ctx, sess, m)
	case *message.GoAway:
		logger.InfoF("[%s] Client requests migration to %s", sess.TraceID, m.NewSessionURI)
	default:
		logger.WarnF("[%s] %s message has not been supported", sess.TraceID, msg.MessageType())
	}
	if err != nil && !errors.Is(err, moq.ErrProtocolViolation) {
		logger.WarnF("[%s] Fail to handle %s message, details: %v", sess.TraceID, msg.MessageType(), err)
		err = nil
	}
	return err
}
