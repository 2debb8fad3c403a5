// Package buffer 实现了按(会话,流)累积的接收缓冲区，
// 只负责把零散的传输读取拼成完整协议帧的字节材料，对协议本身一无所知
package buffer

import (
	"context"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// StreamKey 缓冲区的索引，(会话, 流)
type StreamKey struct {
	SessionID moq.SessionID
	StreamID  uint64
}

// Manager 缓冲区表的所有者
type Manager struct {
	ops  chan func()
	done chan struct{}

	buffers map[StreamKey][]byte // 只被所有者协程访问
}

// NewManager 创建并启动缓冲区所有者协程
func NewManager() *Manager {
	m := &Manager{
		ops:     make(chan func(), 64),
		done:    make(chan struct{}),
		buffers: make(map[StreamKey][]byte),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.done:
			return
		}
	}
}

// Close 停止所有者协程
func (m *Manager) Close() {
	close(m.done)
}

func (m *Manager) do(ctx context.Context, op func()) error {
	reply := make(chan struct{})
	wrapped := func() {
		op()
		close(reply)
	}
	select {
	case m.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("buffer manager is closed")
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("buffer manager is closed")
	}
}

// Append 把新读到的字节追加到缓冲区，缓冲区不存在时自动创建
func (m *Manager) Append(ctx context.Context, key StreamKey, data []byte) error {
	return m.do(ctx, func() {
		m.buffers[key] = append(m.buffers[key], data...)
	})
}

// Bytes 返回缓冲区当前内容的副本
func (m *Manager) Bytes(ctx context.Context, key StreamKey) ([]byte, error) {
	var data []byte
	err := m.do(ctx, func() {
		buffered := m.buffers[key]
		data = make([]byte, len(buffered))
		copy(data, buffered)
	})
	return data, err
}

// Consume 丢弃缓冲区前n个字节，n为已被成功解析的帧长度
func (m *Manager) Consume(ctx context.Context, key StreamKey, n int) error {
	return m.do(ctx, func() {
		buffered := m.buffers[key]
		if n >= len(buffered) {
			m.buffers[key] = buffered[:0]
			return
		}
		m.buffers[key] = append(buffered[:0], buffered[n:]...)
	})
}

// ReleaseStream 释放单条流的缓冲区，流结束时调用
func (m *Manager) ReleaseStream(ctx context.Context, key StreamKey) error {
	return m.do(ctx, func() {
		delete(m.buffers, key)
	})
}

// ReleaseSession 释放会话名下的全部缓冲区，断连时调用
func (m *Manager) ReleaseSession(ctx context.Context, session moq.SessionID) error {
	return m.do(ctx, func() {
		for key := range m.buffers {
			if key.SessionID == session {
				delete(m.buffers, key)
			}
		}
	})
}
