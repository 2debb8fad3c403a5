// Package connection 实现了中继服务器的控制消息发送功能
package connection

import (
	"context"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/dispatch"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// MessageSender 控制消息发送器接口
type MessageSender interface {
	SendMessage(ctx context.Context, id moq.SessionID, msg message.ControlMessage) error
}

// DispatcherMessageSender 经由控制帧分发器投递的发送器实现，
// 实际写入由各会话的写协程完成
type DispatcherMessageSender struct {
	dispatcher *dispatch.ControlDispatcher
}

// NewMessageSender 创建新的控制消息发送器
func NewMessageSender(dispatcher *dispatch.ControlDispatcher) MessageSender {
	return &DispatcherMessageSender{dispatcher: dispatcher}
}

// SendMessage 编码控制消息并投递到指定会话的发送队列
func (s *DispatcherMessageSender) SendMessage(ctx context.Context, id moq.SessionID, msg message.ControlMessage) error {
	ch, err := s.dispatcher.Get(ctx, id)
	if err != nil {
		logger.WarnF("[%d] Fail to send %s, session queue not found", id, msg.MessageType())
		return err
	}
	frame := message.AppendFrame(nil, msg)
	select {
	case ch <- frame:
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.DebugF("[%d] Queue %s message, %d bytes", id, msg.MessageType(), len(frame))
	return nil
}
