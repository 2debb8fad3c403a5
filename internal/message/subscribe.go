package message

// 控制消息 SUBSCRIBE 族相关定义

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

// Subscribe 订阅请求
// Start/End边界只在对应的FilterType下出现
type Subscribe struct {
	SubscribeID        moq.SubscribeID
	TrackAlias         moq.TrackAlias
	TrackNamespace     moq.TrackNamespace
	TrackName          string
	SubscriberPriority byte
	GroupOrder         GroupOrder
	FilterType         FilterType
	StartGroup         moq.GroupID
	StartObject        moq.ObjectID
	EndGroup           moq.GroupID
	EndObject          moq.ObjectID
	Parameters         Parameters
}

func (m *Subscribe) MessageType() ControlMessageType {
	return TypeSubscribe
}

func (m *Subscribe) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, uint64(m.TrackAlias))
	buf = appendNamespace(buf, m.TrackNamespace)
	buf = wire.AppendString(buf, m.TrackName)
	buf = append(buf, m.SubscriberPriority, byte(m.GroupOrder))
	buf = wire.AppendVarint(buf, uint64(m.FilterType))
	if m.FilterType == FilterAbsoluteStart || m.FilterType == FilterAbsoluteRange {
		buf = wire.AppendVarint(buf, uint64(m.StartGroup))
		buf = wire.AppendVarint(buf, uint64(m.StartObject))
	}
	if m.FilterType == FilterAbsoluteRange {
		buf = wire.AppendVarint(buf, uint64(m.EndGroup))
		buf = wire.AppendVarint(buf, uint64(m.EndObject))
	}
	return appendParameters(buf, m.Parameters)
}

func (m *Subscribe) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)

	alias, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.TrackAlias = moq.TrackAlias(alias)

	m.TrackNamespace, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.TrackName, err = wire.ReadString(c)
	if err != nil {
		return err
	}
	m.SubscriberPriority, err = c.ReadByte()
	if err != nil {
		return err
	}
	order, err := c.ReadByte()
	if err != nil {
		return err
	}
	m.GroupOrder = GroupOrder(order)

	filter, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.FilterType = FilterType(filter)

	switch m.FilterType {
	case FilterLatestGroup, FilterLatestObject:
	case FilterAbsoluteStart, FilterAbsoluteRange:
		start, err := wire.ReadVarint(c)
		if err != nil {
			return err
		}
		m.StartGroup = moq.GroupID(start)
		startObj, err := wire.ReadVarint(c)
		if err != nil {
			return err
		}
		m.StartObject = moq.ObjectID(startObj)
		if m.FilterType == FilterAbsoluteRange {
			end, err := wire.ReadVarint(c)
			if err != nil {
				return err
			}
			m.EndGroup = moq.GroupID(end)
			endObj, err := wire.ReadVarint(c)
			if err != nil {
				return err
			}
			m.EndObject = moq.ObjectID(endObj)
		}
	default:
		return fmt.Errorf("unknown filter type 0x%x: %w", filter, moq.ErrProtocolViolation)
	}

	m.Parameters, err = parseParameters(c)
	return err
}

// SubscribeOk 订阅确认
type SubscribeOk struct {
	SubscribeID     moq.SubscribeID
	ExpiresMillis   uint64
	GroupOrder      GroupOrder
	ContentExists   bool
	LargestGroupID  moq.GroupID
	LargestObjectID moq.ObjectID
	Parameters      Parameters
}

func (m *SubscribeOk) MessageType() ControlMessageType {
	return TypeSubscribeOk
}

func (m *SubscribeOk) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, m.ExpiresMillis)
	buf = append(buf, byte(m.GroupOrder))
	if m.ContentExists {
		buf = append(buf, 1)
		buf = wire.AppendVarint(buf, uint64(m.LargestGroupID))
		buf = wire.AppendVarint(buf, uint64(m.LargestObjectID))
	} else {
		buf = append(buf, 0)
	}
	return appendParameters(buf, m.Parameters)
}

func (m *SubscribeOk) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)

	m.ExpiresMillis, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	order, err := c.ReadByte()
	if err != nil {
		return err
	}
	m.GroupOrder = GroupOrder(order)

	exists, err := c.ReadByte()
	if err != nil {
		return err
	}
	switch exists {
	case 0:
		m.ContentExists = false
	case 1:
		m.ContentExists = true
		group, err := wire.ReadVarint(c)
		if err != nil {
			return err
		}
		m.LargestGroupID = moq.GroupID(group)
		object, err := wire.ReadVarint(c)
		if err != nil {
			return err
		}
		m.LargestObjectID = moq.ObjectID(object)
	default:
		return fmt.Errorf("content exists flag must be 0 or 1, got %d: %w", exists, moq.ErrProtocolViolation)
	}

	m.Parameters, err = parseParameters(c)
	return err
}

// SubscribeError 订阅失败
type SubscribeError struct {
	SubscribeID  moq.SubscribeID
	ErrorCode    uint64
	ReasonPhrase string
	TrackAlias   moq.TrackAlias
}

func (m *SubscribeError) MessageType() ControlMessageType {
	return TypeSubscribeError
}

func (m *SubscribeError) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, m.ErrorCode)
	buf = wire.AppendString(buf, m.ReasonPhrase)
	return wire.AppendVarint(buf, uint64(m.TrackAlias))
}

func (m *SubscribeError) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)

	m.ErrorCode, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ReasonPhrase, err = wire.ReadString(c)
	if err != nil {
		return err
	}
	alias, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.TrackAlias = moq.TrackAlias(alias)
	return nil
}

// Unsubscribe 取消订阅
type Unsubscribe struct {
	SubscribeID moq.SubscribeID
}

func (m *Unsubscribe) MessageType() ControlMessageType {
	return TypeUnsubscribe
}

func (m *Unsubscribe) Append(buf []byte) []byte {
	return wire.AppendVarint(buf, uint64(m.SubscribeID))
}

func (m *Unsubscribe) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)
	return nil
}

// SubscribeDone 发布端声明订阅结束
type SubscribeDone struct {
	SubscribeID   moq.SubscribeID
	StatusCode    uint64
	ReasonPhrase  string
	ContentExists bool
	FinalGroupID  moq.GroupID
	FinalObjectID moq.ObjectID
}

func (m *SubscribeDone) MessageType() ControlMessageType {
	return TypeSubscribeDone
}

func (m *SubscribeDone) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, m.StatusCode)
	buf = wire.AppendString(buf, m.ReasonPhrase)
	if m.ContentExists {
		buf = append(buf, 1)
		buf = wire.AppendVarint(buf, uint64(m.FinalGroupID))
		buf = wire.AppendVarint(buf, uint64(m.FinalObjectID))
		return buf
	}
	return append(buf, 0)
}

func (m *SubscribeDone) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)

	m.StatusCode, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ReasonPhrase, err = wire.ReadString(c)
	if err != nil {
		return err
	}
	exists, err := c.ReadByte()
	if err != nil {
		return err
	}
	switch exists {
	case 0:
		m.ContentExists = false
	case 1:
		m.ContentExists = true
		group, err := wire.ReadVarint(c)
		if err != nil {
			return err
		}
		m.FinalGroupID = moq.GroupID(group)
		object, err := wire.ReadVarint(c)
		if err != nil {
			return err
		}
		m.FinalObjectID = moq.ObjectID(object)
	default:
		return fmt.Errorf("content exists flag must be 0 or 1, got %d: %w", exists, moq.ErrProtocolViolation)
	}
	return nil
}

// SubscribeUpdate 更新既有订阅的范围与优先级
type SubscribeUpdate struct {
	SubscribeID        moq.SubscribeID
	StartGroup         moq.GroupID
	StartObject        moq.ObjectID
	EndGroup           moq.GroupID
	EndObject          moq.ObjectID
	SubscriberPriority byte
	Parameters         Parameters
}

func (m *SubscribeUpdate) MessageType() ControlMessageType {
	return TypeSubscribeUpdate
}

func (m *SubscribeUpdate) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, uint64(m.StartGroup))
	buf = wire.AppendVarint(buf, uint64(m.StartObject))
	buf = wire.AppendVarint(buf, uint64(m.EndGroup))
	buf = wire.AppendVarint(buf, uint64(m.EndObject))
	buf = append(buf, m.SubscriberPriority)
	return appendParameters(buf, m.Parameters)
}

func (m *SubscribeUpdate) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)

	start, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.StartGroup = moq.GroupID(start)
	startObj, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.StartObject = moq.ObjectID(startObj)
	end, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.EndGroup = moq.GroupID(end)
	endObj, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.EndObject = moq.ObjectID(endObj)
	m.SubscriberPriority, err = c.ReadByte()
	if err != nil {
		return err
	}
	m.Parameters, err = parseParameters(c)
	return err
}

// MaxSubscribeID 通告对端可用的订阅ID上限
type MaxSubscribeID struct {
	SubscribeID moq.SubscribeID
}

func (m *MaxSubscribeID) MessageType() ControlMessageType {
	return TypeMaxSubscribeID
}

func (m *MaxSubscribeID) Append(buf []byte) []byte {
	return wire.AppendVarint(buf, uint64(m.SubscribeID))
}

func (m *MaxSubscribeID) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)
	return nil
}
