// Package connection 实现了中继服务器的连接管理功能
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/transport"
)

// Connection 表示一个客户端连接
type Connection struct {
	Conn    transport.Connection
	Session *session.Session
}

// ConnectionManager 连接管理器
type ConnectionManager struct {
	connections sync.Map
}

var (
	instance *ConnectionManager
	once     sync.Once
)

// GetConnectionManager 获取连接管理器实例
func GetConnectionManager() *ConnectionManager {
	once.Do(func() {
		instance = &ConnectionManager{}
	})
	return instance
}

// AddConnection 添加连接
func (cm *ConnectionManager) AddConnection(id moq.SessionID, conn *Connection) {
	cm.connections.Store(id, conn)
	logger.InfoF("Session %d connected from %s", id, conn.Conn.RemoteAddr())
}

// RemoveConnection 移除连接
func (cm *ConnectionManager) RemoveConnection(id moq.SessionID) {
	cm.connections.Delete(id)
	logger.InfoF("Session %d disconnected", id)
}

// CloseAll 关闭所有存活连接，进程退出前调用
func (cm *ConnectionManager) CloseAll(code uint64, reason string) {
	cm.connections.Range(func(key, value any) bool {
		conn := value.(*Connection)
		if err := conn.Conn.CloseWithError(code, reason); err != nil && !IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", conn.Session.TraceID, err)
		}
		return true
	})
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(id moq.SessionID, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%d] Client close connection", id)
	case os.IsTimeout(err):
		logger.WarnF("[%d] Reading timeout", id)
	default:
		logger.ErrorF("[%d] Error occured while reading stream, details: %v", id, err)
	}
}
