package message

// 数据流与数据报对象相关定义
// 与控制帧不同，这里的Parse在字节不足时返回ErrTruncated并回退游标，
// 读取方必须保留缓冲区等待更多传输数据，而不是丢弃已有内容

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

// ReadDataStreamType 读取单向流或数据报开头的类型判别值
func ReadDataStreamType(c *wire.Cursor) (DataStreamType, error) {
	start := c.CurrentPtr
	raw, err := wire.ReadVarint(c)
	if err != nil {
		c.CurrentPtr = start
		return 0, err
	}
	t := DataStreamType(raw)
	switch t {
	case TypeObjectDatagram, TypeStreamHeaderTrack, TypeStreamHeaderSubgroup:
		return t, nil
	default:
		return 0, fmt.Errorf("unknown data stream type 0x%x: %w", raw, moq.ErrProtocolViolation)
	}
}

// ObjectDatagram 独立投递的数据报对象，自带全部标识
type ObjectDatagram struct {
	SubscribeID       moq.SubscribeID
	TrackAlias        moq.TrackAlias
	GroupID           moq.GroupID
	ObjectID          moq.ObjectID
	PublisherPriority byte
	Payload           []byte
}

func (m *ObjectDatagram) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(TypeObjectDatagram))
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, uint64(m.TrackAlias))
	buf = wire.AppendVarint(buf, uint64(m.GroupID))
	buf = wire.AppendVarint(buf, uint64(m.ObjectID))
	buf = append(buf, m.PublisherPriority)
	return wire.AppendBytes(buf, m.Payload)
}

// Parse 解析类型判别值之后的数据报内容
func (m *ObjectDatagram) Parse(c *wire.Cursor) error {
	start := c.CurrentPtr
	err := m.parse(c)
	if errors.Is(err, moq.ErrTruncated) {
		c.CurrentPtr = start
	}
	return err
}

func (m *ObjectDatagram) parse(c *wire.Cursor) error {
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

	group, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.GroupID = moq.GroupID(group)

	object, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ObjectID = moq.ObjectID(object)

	m.PublisherPriority, err = c.ReadByte()
	if err != nil {
		return err
	}
	m.Payload, err = wire.ReadBytes(c)
	return err
}

// StreamHeaderTrack 每轨道流的流头，后随若干TrackObject记录
type StreamHeaderTrack struct {
	SubscribeID       moq.SubscribeID
	TrackAlias        moq.TrackAlias
	PublisherPriority byte
}

func (m *StreamHeaderTrack) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(TypeStreamHeaderTrack))
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, uint64(m.TrackAlias))
	return append(buf, m.PublisherPriority)
}

func (m *StreamHeaderTrack) Parse(c *wire.Cursor) error {
	start := c.CurrentPtr
	err := m.parse(c)
	if errors.Is(err, moq.ErrTruncated) {
		c.CurrentPtr = start
	}
	return err
}

func (m *StreamHeaderTrack) parse(c *wire.Cursor) error {
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

	m.PublisherPriority, err = c.ReadByte()
	return err
}

// TrackObject 每轨道流中的单个对象记录
type TrackObject struct {
	GroupID  moq.GroupID
	ObjectID moq.ObjectID
	Payload  []byte
}

func (m *TrackObject) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.GroupID))
	buf = wire.AppendVarint(buf, uint64(m.ObjectID))
	return wire.AppendBytes(buf, m.Payload)
}

func (m *TrackObject) Parse(c *wire.Cursor) error {
	start := c.CurrentPtr
	err := m.parse(c)
	if errors.Is(err, moq.ErrTruncated) {
		c.CurrentPtr = start
	}
	return err
}

func (m *TrackObject) parse(c *wire.Cursor) error {
	group, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.GroupID = moq.GroupID(group)

	object, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ObjectID = moq.ObjectID(object)

	m.Payload, err = wire.ReadBytes(c)
	return err
}

// StreamHeaderSubgroup 每子组流的流头，后随若干SubgroupObject记录
type StreamHeaderSubgroup struct {
	SubscribeID       moq.SubscribeID
	TrackAlias        moq.TrackAlias
	GroupID           moq.GroupID
	SubgroupID        moq.SubgroupID
	PublisherPriority byte
}

func (m *StreamHeaderSubgroup) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(TypeStreamHeaderSubgroup))
	buf = wire.AppendVarint(buf, uint64(m.SubscribeID))
	buf = wire.AppendVarint(buf, uint64(m.TrackAlias))
	buf = wire.AppendVarint(buf, uint64(m.GroupID))
	buf = wire.AppendVarint(buf, uint64(m.SubgroupID))
	return append(buf, m.PublisherPriority)
}

func (m *StreamHeaderSubgroup) Parse(c *wire.Cursor) error {
	start := c.CurrentPtr
	err := m.parse(c)
	if errors.Is(err, moq.ErrTruncated) {
		c.CurrentPtr = start
	}
	return err
}

func (m *StreamHeaderSubgroup) parse(c *wire.Cursor) error {
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

	group, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.GroupID = moq.GroupID(group)

	subgroup, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.SubgroupID = moq.SubgroupID(subgroup)

	m.PublisherPriority, err = c.ReadByte()
	return err
}

// SubgroupObject 每子组流中的单个对象记录，组与子组由流头确定
type SubgroupObject struct {
	ObjectID moq.ObjectID
	Payload  []byte
}

func (m *SubgroupObject) Append(buf []byte) []byte {
	buf = wire.AppendVarint(buf, uint64(m.ObjectID))
	return wire.AppendBytes(buf, m.Payload)
}

func (m *SubgroupObject) Parse(c *wire.Cursor) error {
	start := c.CurrentPtr
	err := m.parse(c)
	if errors.Is(err, moq.ErrTruncated) {
		c.CurrentPtr = start
	}
	return err
}

func (m *SubgroupObject) parse(c *wire.Cursor) error {
	object, err := wire.ReadVarint(c)
	if err != nil {
		return err
	}
	m.ObjectID = moq.ObjectID(object)

	m.Payload, err = wire.ReadBytes(c)
	return err
}
