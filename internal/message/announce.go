package message

// 控制消息 ANNOUNCE 族相关定义

import (
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

// Announce 发布者宣告一个轨道命名空间
type Announce struct {
	TrackNamespace moq.TrackNamespace
	Parameters     Parameters
}

func (m *Announce) MessageType() ControlMessageType {
	return TypeAnnounce
}

func (m *Announce) Append(buf []byte) []byte {
	buf = appendNamespace(buf, m.TrackNamespace)
	return appendParameters(buf, m.Parameters)
}

func (m *Announce) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespace, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.Parameters, err = parseParameters(c)
	return err
}

// AnnounceOk 宣告确认
type AnnounceOk struct {
	TrackNamespace moq.TrackNamespace
}

func (m *AnnounceOk) MessageType() ControlMessageType {
	return TypeAnnounceOk
}

func (m *AnnounceOk) Append(buf []byte) []byte {
	return appendNamespace(buf, m.TrackNamespace)
}

func (m *AnnounceOk) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespace, err = parseNamespace(c)
	return err
}

// AnnounceError 宣告失败，命名空间冲突时返回，不终止会话
type AnnounceError struct {
	TrackNamespace moq.TrackNamespace
	ErrorCode      uint64
	ReasonPhrase   string
}

func (m *AnnounceError) MessageType() ControlMessageType {
	return TypeAnnounceError
}

func (m *AnnounceError) Append(buf []byte) []byte {
	buf = appendNamespace(buf, m.TrackNamespace)
	buf = wire.AppendVarint(buf, m.ErrorCode)
	return wire.AppendString(buf, m.ReasonPhrase)
}

func (m *AnnounceError) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespace, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.ErrorCode, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ReasonPhrase, err = wire.ReadString(c)
	return err
}

// Unannounce 发布者撤销命名空间宣告
type Unannounce struct {
	TrackNamespace moq.TrackNamespace
}

func (m *Unannounce) MessageType() ControlMessageType {
	return TypeUnannounce
}

func (m *Unannounce) Append(buf []byte) []byte {
	return appendNamespace(buf, m.TrackNamespace)
}

func (m *Unannounce) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespace, err = parseNamespace(c)
	return err
}

// AnnounceCancel 接收方取消既有宣告
type AnnounceCancel struct {
	TrackNamespace moq.TrackNamespace
	ErrorCode      uint64
	ReasonPhrase   string
}

func (m *AnnounceCancel) MessageType() ControlMessageType {
	return TypeAnnounceCancel
}

func (m *AnnounceCancel) Append(buf []byte) []byte {
	buf = appendNamespace(buf, m.TrackNamespace)
	buf = wire.AppendVarint(buf, m.ErrorCode)
	return wire.AppendString(buf, m.ReasonPhrase)
}

func (m *AnnounceCancel) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespace, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.ErrorCode, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ReasonPhrase, err = wire.ReadString(c)
	return err
}

// SubscribeNamespace 订阅命名空间前缀，用于发现新轨道
type SubscribeNamespace struct {
	TrackNamespacePrefix moq.TrackNamespace
	Parameters           Parameters
}

func (m *SubscribeNamespace) MessageType() ControlMessageType {
	return TypeSubscribeNamespace
}

func (m *SubscribeNamespace) Append(buf []byte) []byte {
	buf = appendNamespace(buf, m.TrackNamespacePrefix)
	return appendParameters(buf, m.Parameters)
}

func (m *SubscribeNamespace) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespacePrefix, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.Parameters, err = parseParameters(c)
	return err
}

// SubscribeNamespaceOk 前缀订阅确认
type SubscribeNamespaceOk struct {
	TrackNamespacePrefix moq.TrackNamespace
}

func (m *SubscribeNamespaceOk) MessageType() ControlMessageType {
	return TypeSubscribeNamespaceOk
}

func (m *SubscribeNamespaceOk) Append(buf []byte) []byte {
	return appendNamespace(buf, m.TrackNamespacePrefix)
}

func (m *SubscribeNamespaceOk) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespacePrefix, err = parseNamespace(c)
	return err
}

// SubscribeNamespaceError 前缀订阅失败
type SubscribeNamespaceError struct {
	TrackNamespacePrefix moq.TrackNamespace
	ErrorCode            uint64
	ReasonPhrase         string
}

func (m *SubscribeNamespaceError) MessageType() ControlMessageType {
	return TypeSubscribeNamespaceError
}

func (m *SubscribeNamespaceError) Append(buf []byte) []byte {
	buf = appendNamespace(buf, m.TrackNamespacePrefix)
	buf = wire.AppendVarint(buf, m.ErrorCode)
	return wire.AppendString(buf, m.ReasonPhrase)
}

func (m *SubscribeNamespaceError) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespacePrefix, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.ErrorCode, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ReasonPhrase, err = wire.ReadString(c)
	return err
}

// UnsubscribeNamespace 取消前缀订阅
type UnsubscribeNamespace struct {
	TrackNamespacePrefix moq.TrackNamespace
}

func (m *UnsubscribeNamespace) MessageType() ControlMessageType {
	return TypeUnsubscribeNamespace
}

func (m *UnsubscribeNamespace) Append(buf []byte) []byte {
	return appendNamespace(buf, m.TrackNamespacePrefix)
}

func (m *UnsubscribeNamespace) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespacePrefix, err = parseNamespace(c)
	return err
}
