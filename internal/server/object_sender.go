package server

import (
	"context"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/transport"
)

// openStreamTimeout 打开下行单向流的超时
const openStreamTimeout = 10 * time.Second

type subgroupStreamKey struct {
	subscribeID moq.SubscribeID
	groupID     moq.GroupID
	subgroupID  moq.SubgroupID
}

// connObjectSender 把重写后的对象写到一条下游连接
// 每轨道流按订阅ID复用一条单向流，每子组流按(订阅,组,子组)复用，
// 数据报直接走连接的数据报通道
type connObjectSender struct {
	conn transport.Connection

	mu              sync.Mutex
	trackStreams    map[moq.SubscribeID]transport.SendStream
	subgroupStreams map[subgroupStreamKey]transport.SendStream
}

func newConnObjectSender(conn transport.Connection) *connObjectSender {
	return &connObjectSender{
		conn:            conn,
		trackStreams:    make(map[moq.SubscribeID]transport.SendStream),
		subgroupStreams: make(map[subgroupStreamKey]transport.SendStream),
	}
}

func (s *connObjectSender) SendDatagram(datagram *message.ObjectDatagram) error {
	return s.conn.SendDatagram(datagram.Append(nil))
}

func (s *connObjectSender) SendTrackObject(header *message.StreamHeaderTrack, object *message.TrackObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.trackStreams[header.SubscribeID]
	if !ok {
		var err error
		stream, err = s.openHeaderStream(header.Append(nil))
		if err != nil {
			return err
		}
		s.trackStreams[header.SubscribeID] = stream
	}

	if err := writeAll(stream, object.Append(nil)); err != nil {
		delete(s.trackStreams, header.SubscribeID)
		return err
	}
	return nil
}

func (s *connObjectSender) SendSubgroupObject(header *message.StreamHeaderSubgroup, object *message.SubgroupObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subgroupStreamKey{header.SubscribeID, header.GroupID, header.SubgroupID}
	stream, ok := s.subgroupStreams[key]
	if !ok {
		var err error
		stream, err = s.openHeaderStream(header.Append(nil))
		if err != nil {
			return err
		}
		s.subgroupStreams[key] = stream
	}

	if err := writeAll(stream, object.Append(nil)); err != nil {
		delete(s.subgroupStreams, key)
		return err
	}
	return nil
}

// openHeaderStream 打开新单向流并写入流头
func (s *connObjectSender) openHeaderStream(headerBytes []byte) (transport.SendStream, error) {
	ctx, cancel := context.WithTimeout(context.Background(), openStreamTimeout)
	defer cancel()

	stream, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeAll(stream, headerBytes); err != nil {
		stream.CancelWrite(0)
		return nil, err
	}
	return stream, nil
}

// closeStreams 关闭全部下行对象流，连接关闭时调用
func (s *connObjectSender) closeStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, stream := range s.trackStreams {
		if err := stream.Close(); err != nil {
			logger.DebugF("Error occured while closing track stream %d, details: %v", id, err)
		}
	}
	for key, stream := range s.subgroupStreams {
		if err := stream.Close(); err != nil {
			logger.DebugF("Error occured while closing subgroup stream (%d,%d,%d), details: %v",
				key.subscribeID, key.groupID, key.subgroupID, err)
		}
	}
	s.trackStreams = make(map[moq.SubscribeID]transport.SendStream)
	s.subgroupStreams = make(map[subgroupStreamKey]transport.SendStream)
}

// writeAll 把整段数据写完，传输层可能一次只接受一部分
func writeAll(w interface{ Write([]byte) (int, error) }, data []byte) error {
	total := 0
	for total < len(data) {
		n, err := w.Write(data[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}
