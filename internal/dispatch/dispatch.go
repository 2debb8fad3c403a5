// Package dispatch 负责把待发送的数据路由到各会话的写协程，
// 控制帧和终止信号分别走各自的分发器
package dispatch

import (
	"context"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// controlQueueSize 每个会话控制帧队列的容量
const controlQueueSize = 32

// Signal 会话终止信号，携带关闭码和原因
type Signal struct {
	Code   uint64
	Reason string
}

// ControlDispatcher 会话ID到已编码控制帧通道的映射所有者，
// 写协程持有通道的接收端并负责实际发送
type ControlDispatcher struct {
	ops  chan func()
	done chan struct{}

	channels map[moq.SessionID]chan []byte
}

// NewControlDispatcher 创建并启动控制帧分发器
func NewControlDispatcher() *ControlDispatcher {
	d := &ControlDispatcher{
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		channels: make(map[moq.SessionID]chan []byte),
	}
	go d.run()
	return d
}

func (d *ControlDispatcher) run() {
	for {
		select {
		case op := <-d.ops:
			op()
		case <-d.done:
			return
		}
	}
}

// Close 停止分发器协程
func (d *ControlDispatcher) Close() {
	close(d.done)
}

func (d *ControlDispatcher) do(ctx context.Context, op func()) error {
	reply := make(chan struct{})
	wrapped := func() {
		op()
		close(reply)
	}
	select {
	case d.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return fmt.Errorf("control dispatcher is closed")
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return fmt.Errorf("control dispatcher is closed")
	}
}

// Set 为会话注册一条新的控制帧通道并返回其接收端
func (d *ControlDispatcher) Set(ctx context.Context, session moq.SessionID) (<-chan []byte, error) {
	var ch chan []byte
	err := d.do(ctx, func() {
		ch = make(chan []byte, controlQueueSize)
		d.channels[session] = ch
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Get 查找会话的控制帧通道发送端，会话不存在时返回ErrNotFound
func (d *ControlDispatcher) Get(ctx context.Context, session moq.SessionID) (chan<- []byte, error) {
	var ch chan []byte
	err := d.do(ctx, func() {
		ch = d.channels[session]
	})
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("no control channel for session %d: %w", session, moq.ErrNotFound)
	}
	return ch, nil
}

// Delete 移除会话的控制帧通道并关闭它，让写协程退出
func (d *ControlDispatcher) Delete(ctx context.Context, session moq.SessionID) error {
	return d.do(ctx, func() {
		if ch, ok := d.channels[session]; ok {
			delete(d.channels, session)
			close(ch)
		}
	})
}

// SignalDispatcher 会话ID到终止信号通道的映射所有者
type SignalDispatcher struct {
	ops  chan func()
	done chan struct{}

	channels map[moq.SessionID]chan Signal
}

// NewSignalDispatcher 创建并启动终止信号分发器
func NewSignalDispatcher() *SignalDispatcher {
	d := &SignalDispatcher{
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		channels: make(map[moq.SessionID]chan Signal),
	}
	go d.run()
	return d
}

func (d *SignalDispatcher) run() {
	for {
		select {
		case op := <-d.ops:
			op()
		case <-d.done:
			return
		}
	}
}

// Close 停止分发器协程
func (d *SignalDispatcher) Close() {
	close(d.done)
}

func (d *SignalDispatcher) do(ctx context.Context, op func()) error {
	reply := make(chan struct{})
	wrapped := func() {
		op()
		close(reply)
	}
	select {
	case d.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return fmt.Errorf("signal dispatcher is closed")
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return fmt.Errorf("signal dispatcher is closed")
	}
}

// Set 为会话注册终止信号通道并返回其接收端
func (d *SignalDispatcher) Set(ctx context.Context, session moq.SessionID) (<-chan Signal, error) {
	var ch chan Signal
	err := d.do(ctx, func() {
		ch = make(chan Signal, 1)
		d.channels[session] = ch
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Signal 向会话投递终止信号，会话不存在时返回ErrNotFound，
// 信号通道已满时静默丢弃(只需第一个信号生效)
func (d *SignalDispatcher) Signal(ctx context.Context, session moq.SessionID, signal Signal) error {
	var ch chan Signal
	err := d.do(ctx, func() {
		ch = d.channels[session]
	})
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("no signal channel for session %d: %w", session, moq.ErrNotFound)
	}
	select {
	case ch <- signal:
	default:
	}
	return nil
}

// Delete 移除会话的终止信号通道
func (d *SignalDispatcher) Delete(ctx context.Context, session moq.SessionID) error {
	return d.do(ctx, func() {
		delete(d.channels, session)
	})
}
