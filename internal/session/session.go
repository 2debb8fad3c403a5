// Package session 实现了每条连接的会话状态机与SETUP握手校验
package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// Phase 会话阶段，Connected到SetUp只会推进一次
type Phase byte

const (
	PhaseConnected Phase = iota // 连接已建立，尚未握手
	PhaseSetUp                  // 握手完成
)

// PhaseMap 将Phase映射到其字符串表示
var PhaseMap = map[Phase]string{
	PhaseConnected: "CONNECTED",
	PhaseSetUp:     "SETUP",
}

// String 返回Phase的字符串表示
func (p Phase) String() string {
	return PhaseMap[p]
}

// Underlay 底层传输种类，决定PATH参数的合法性
type Underlay byte

const (
	UnderlayQUIC Underlay = iota
	UnderlayWebTransport
)

// Session 一条连接的会话状态
type Session struct {
	ID       moq.SessionID
	TraceID  string // 日志用连接跟踪标识
	Phase    Phase
	Role     message.Role
	Underlay Underlay
}

// NewSession 创建处于Connected阶段的会话
func NewSession(id moq.SessionID, underlay Underlay) *Session {
	return &Session{
		ID:       id,
		TraceID:  uuid.NewString(),
		Phase:    PhaseConnected,
		Underlay: underlay,
	}
}

// HandleSetup 校验ClientSetup并推进会话阶段，成功时返回要回送的ServerSetup
// 版本不支持、缺少ROLE参数、WebTransport下携带PATH参数均属协议违规
func (s *Session) HandleSetup(setup *message.ClientSetup) (*message.ServerSetup, error) {
	if s.Phase != PhaseConnected {
		return nil, fmt.Errorf("duplicate SETUP message: %w", moq.ErrProtocolViolation)
	}

	supported := false
	for _, v := range setup.SupportedVersions {
		if v == message.ProtocolVersion {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("no supported version in %v: %w", setup.SupportedVersions, moq.ErrProtocolViolation)
	}

	rawRole, ok := setup.Parameters.GetVarint(message.ParamRole)
	if !ok {
		return nil, fmt.Errorf("ROLE parameter is missing: %w", moq.ErrProtocolViolation)
	}
	role := message.Role(rawRole)
	switch role {
	case message.RolePublisher, message.RoleSubscriber, message.RolePubSub:
	default:
		return nil, fmt.Errorf("invalid ROLE parameter %d: %w", rawRole, moq.ErrProtocolViolation)
	}

	if s.Underlay == UnderlayWebTransport && setup.Parameters.Has(message.ParamPath) {
		return nil, fmt.Errorf("PATH parameter is not allowed on WebTransport: %w", moq.ErrProtocolViolation)
	}

	s.Role = role
	s.Phase = PhaseSetUp
	logger.DebugF("[%s] Session %d set up, role %d", s.TraceID, s.ID, role)

	return &message.ServerSetup{
		SelectedVersion: message.ProtocolVersion,
		Parameters:      message.Parameters{},
	}, nil
}

// CheckMessageLegal 校验控制消息在当前阶段是否合法
// 握手前收到任何非SETUP消息、握手后再次收到SETUP都必须终止会话
func (s *Session) CheckMessageLegal(t message.ControlMessageType) error {
	isSetup := t == message.TypeClientSetup || t == message.TypeServerSetup
	switch s.Phase {
	case PhaseConnected:
		if !isSetup {
			return fmt.Errorf("%s received before SETUP: %w", t, moq.ErrProtocolViolation)
		}
	case PhaseSetUp:
		if isSetup {
			return fmt.Errorf("%s received after SETUP: %w", t, moq.ErrProtocolViolation)
		}
	}
	return nil
}
