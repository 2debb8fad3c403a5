package message

// 控制消息 TRACK_STATUS 与 FETCH 族相关定义

import (
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

// 轨道状态码
const (
	TrackStatusInProgress  uint64 = 0x00 // 轨道活跃，Last字段有效
	TrackStatusNotExist    uint64 = 0x01 // 轨道不存在
	TrackStatusNotStarted  uint64 = 0x02 // 轨道尚未产生对象
	TrackStatusFinished    uint64 = 0x03 // 轨道已结束
	TrackStatusRelayNoInfo uint64 = 0x04 // 中继无法取得状态
)

// TrackStatusRequest 轨道状态查询
type TrackStatusRequest struct {
	TrackNamespace moq.TrackNamespace
	TrackName      string
}

func (m *TrackStatusRequest) MessageType() ControlMessageType {
	return TypeTrackStatusRequest
}

func (m *TrackStatusRequest) Append(buf []byte) []byte {
	buf = appendNamespace(buf, m.TrackNamespace)
	return wire.AppendString(buf, m.TrackName)
}

func (m *TrackStatusRequest) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespace, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.TrackName, err = wire.ReadString(c)
	return err
}

// TrackStatus 轨道状态应答，Last字段由缓存中的最大组/对象号回答
type TrackStatus struct {
	TrackNamespace moq.TrackNamespace
	TrackName      string
	StatusCode     uint64
	LastGroupID    moq.GroupID
	LastObjectID   moq.ObjectID
}

func (m *TrackStatus) MessageType() ControlMessageType {
	return TypeTrackStatus
}

func (m *TrackStatus) Append(buf []byte) []byte {
	buf = appendNamespace(buf, m.TrackNamespace)
	buf = wire.AppendString(buf, m.TrackName)
	buf = wire.AppendVarint(buf, m.StatusCode)
	buf = wire.AppendVarint(buf, uint64(m.LastGroupID))
	return wire.AppendVarint(buf, uint64(m.LastObjectID))
}

func (m *TrackStatus) Parse(c *wire.Cursor) error {
	var err error
	m.TrackNamespace, err = parseNamespace(c)
	if err != nil {
		return err
	}
	m.TrackName, err = wire.ReadString(c)
	if err != nil {
		return err
	}
	m.StatusCode, err = wire.ReadVarint(c)
	if err != nil {
		return err
	}
	group, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.LastGroupID = moq.GroupID(group)
	object, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.LastObjectID = moq.ObjectID(object)
	return nil
}

// Fetch 请求拉取缓存中的历史对象范围
type Fetch struct {
	SubscribeID        moq.SubscribeID
	TrackNamespace     moq.TrackNamespace
	TrackName          string
	SubscriberPriority byte
	GroupOrder         GroupOrder
	StartGroup         moq.GroupID
	StartObject        moq.ObjectID
	EndGroup           moq.GroupID
	EndObject          moq.ObjectID
	Parameters         Parameters
}

func (m *Fetch) MessageType() ControlMessageType {
	return TypeFetch
}

func (m *Fetch) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = appendNamespace(buf, m.TrackNamespace)
	buf = wire.AppendString(buf, m.TrackName)
	buf = append(buf, m.SubscriberPriority, byte(m.GroupOrder))
	buf = wire.AppendVarint(buf, uint64(m.StartGroup))
	buf = wire.AppendVarint(buf, uint64(m.StartObject))
	buf = wire.AppendVarint(buf, uint64(m.EndGroup))
	buf = wire.AppendVarint(buf, uint64(m.EndObject))
	return appendParameters(buf, m.Parameters)
}

func (m *Fetch) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)

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

	m.Parameters, err = parseParameters(c)
	return err
}

// FetchOk 拉取确认
type FetchOk struct {
	SubscribeID     moq.SubscribeID
	GroupOrder      GroupOrder
	EndOfTrack      bool
	LargestGroupID  moq.GroupID
	LargestObjectID moq.ObjectID
	Parameters      Parameters
}

func (m *FetchOk) MessageType() ControlMessageType {
	return TypeFetchOk
}

func (m *FetchOk) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = append(buf, byte(m.GroupOrder))
	if m.EndOfTrack {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = wire.AppendVarint(buf, uint64(m.LargestGroupID))
	buf = wire.AppendVarint(buf, uint64(m.LargestObjectID))
	return appendParameters(buf, m.Parameters)
}

func (m *FetchOk) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)

	order, err := c.ReadByte()
	if err != nil {
		return err
	}
	m.GroupOrder = GroupOrder(order)

	endOfTrack, err := c.ReadByte()
	if err != nil {
		return err
	}
	m.EndOfTrack = endOfTrack == 1

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

	m.Parameters, err = parseParameters(c)
	return err
}

// FetchError 拉取失败
type FetchError struct {
	SubscribeID  moq.SubscribeID
	ErrorCode    uint64
	ReasonPhrase string
}

func (m *FetchError) MessageType() ControlMessageType {
	return TypeFetchError
}

func (m *FetchError) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, m.ErrorCode)
	return wire.AppendString(buf, m.ReasonPhrase)
}

func (m *FetchError) Parse(c *wire.Cursor) error {
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
	return err
}

// FetchCancel 取消拉取
type FetchCancel struct {
	SubscribeID moq.SubscribeID
}

func (m *FetchCancel) MessageType() ControlMessageType {
	return TypeFetchCancel
}

func (m *FetchCancel) Append(buf []byte) []byte {
	return wire.AppendVarint(buf, uint64(m.SubscribeID))
}

func (m *FetchCancel) Parse(c *wire.Cursor) error {
	id, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubscribeID = moq.SubscribeID(id)
	return nil
}
