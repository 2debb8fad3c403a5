package message

// 控制消息 SETUP 相关定义

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

// ClientSetup 连接建立后客户端必须发送的第一条消息
type ClientSetup struct {
	SupportedVersions []uint64
	Parameters        Parameters
}

func (m *ClientSetup) MessageType() ControlMessageType {
	return TypeClientSetup
}

func (m *ClientSetup) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(len(m.SupportedVersions)))
	for _, v := range m.SupportedVersions {
		buf = wire.AppendVarint(buf, v)
	}
	return appendParameters(buf, m.Parameters)
}

func (m *ClientSetup) Parse(c *wire.Cursor) error {
	count, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	// 每个版本号至少占1字节，声明数量不能超过剩余字节数
	if count > uint64(c.Remaining()) {
		return fmt.Errorf("version count %d exceeds %d remaining bytes: %w", count, c.Remaining(), moq.ErrProtocolViolation)
	}
	m.SupportedVersions = make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := wire.ReadVarint(c)
		if err != nil {
			return err
		}
		m.SupportedVersions = append(m.SupportedVersions, v)
	}
	m.Parameters, err = parseParameters(c)
	return err
}

// ServerSetup 服务器对ClientSetup的应答，会话由此进入SetUp阶段
type ServerSetup struct {
	SelectedVersion uint64
	Parameters      Parameters
}

func (m *ServerSetup) MessageType() ControlMessageType {
	return TypeServerSetup
}

func (m *ServerSetup) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, m.SelectedVersion)
	return appendParameters(buf, m.Parameters)
}

func (m *ServerSetup) Parse(c *wire.Cursor) error {
	var err error
	m.SelectedVersion, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.Parameters, err = parseParameters(c)
	return err
}

// GoAway 通知对端迁移到新的会话URI
type GoAway struct {
	NewSessionURI string
}

func (m *GoAway) MessageType() ControlMessageType {
	return TypeGoAway
}

func (m *GoAway) Append(buf []byte) []byte {
	return wire.AppendString(buf, m.NewSessionURI)
}

func (m *GoAway) Parse(c *wire.Cursor) error {
	var err error
	m.NewSessionURI, err = wire.ReadString(c)
	return err
}
