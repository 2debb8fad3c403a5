package relay

import (
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// objectQueueSize 每个订阅者对象队列的容量，队列满时对象被丢弃而非阻塞
const objectQueueSize = 64

// ObjectSender 把重写后的对象实际写到一个下游会话，由server层按传输实现
type ObjectSender interface {
	SendDatagram(datagram *message.ObjectDatagram) error
	SendTrackObject(header *message.StreamHeaderTrack, object *message.TrackObject) error
	SendSubgroupObject(header *message.StreamHeaderSubgroup, object *message.SubgroupObject) error
}

// outboundObject 投递给订阅者写协程的单位，按转发偏好填写对应字段
type outboundObject struct {
	preference     moq.ForwardingPreference
	datagram       *message.ObjectDatagram
	trackHeader    *message.StreamHeaderTrack
	trackObject    *message.TrackObject
	subgroupHeader *message.StreamHeaderSubgroup
	subgroupObject *message.SubgroupObject
}

// objectWriter 单个订阅者会话的对象写协程，
// 队列有界，慢订阅者只影响自己
type objectWriter struct {
	session moq.SessionID
	queue   chan outboundObject
	sender  ObjectSender
	done    chan struct{}
}

func newObjectWriter(session moq.SessionID, sender ObjectSender) *objectWriter {
	w := &objectWriter{
		session: session,
		queue:   make(chan outboundObject, objectQueueSize),
		sender:  sender,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *objectWriter) run() {
	for {
		select {
		case out := <-w.queue:
			w.send(out)
		case <-w.done:
			return
		}
	}
}

func (w *objectWriter) send(out outboundObject) {
	var err error
	switch out.preference {
	case moq.ForwardingDatagram:
		err = w.sender.SendDatagram(out.datagram)
	case moq.ForwardingTrack:
		err = w.sender.SendTrackObject(out.trackHeader, out.trackObject)
	case moq.ForwardingSubgroup:
		err = w.sender.SendSubgroupObject(out.subgroupHeader, out.subgroupObject)
	default:
		logger.ErrorF("[%d] Unknown forwarding preference %d", w.session, out.preference)
		return
	}
	if err != nil {
		logger.ErrorF("[%d] Fail to send object, details: %v", w.session, err)
	}
}

// enqueue 非阻塞入队，队列满时丢弃并记录
func (w *objectWriter) enqueue(out outboundObject) {
	select {
	case w.queue <- out:
	case <-w.done:
	default:
		logger.WarnF("[%d] Object queue is full, object dropped", w.session)
	}
}

func (w *objectWriter) close() {
	close(w.done)
}
