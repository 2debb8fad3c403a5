package message

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

// ControlMessage 控制信道消息的统一契约
// Append只追加载荷部分，帧头（类型与长度）由AppendFrame负责
type ControlMessage interface {
	MessageType() ControlMessageType
	Append(buf []byte) []byte
	Parse(c *wire.Cursor) error
}

// AppendFrame 追加完整控制帧 [type varint][length varint][payload]
func AppendFrame(buf []byte, msg ControlMessage) []byte {
	payload := msg.Append(nil)
	buf = wire.AppendVarint(buf, uint64(msg.MessageType()))
	buf = wire.AppendVarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// ParseFrame 从游标解析一个完整控制帧
// 字节不足时返回ErrTruncated并回退游标，调用方应等待更多数据后重试
func ParseFrame(c *wire.Cursor) (ControlMessage, error) {
	start := c.CurrentPtr

	rawType, err := wire.ReadVarint(c)
	if err != nil {
		c.CurrentPtr = start
		return nil, err
	}
	length, err := wire.ReadVarint(c)
	if err != nil {
		c.CurrentPtr = start
		return nil, err
	}
	payload, err := c.ReadBytesRaw(int(length))
	if err != nil {
		c.CurrentPtr = start
		return nil, err
	}

	msg, err := newControlMessage(ControlMessageType(rawType))
	if err != nil {
		return nil, err
	}

	pc := wire.NewCursor(payload)
	if err := msg.Parse(pc); err != nil {
		// 载荷长度已由帧头声明，载荷内的字节不足属于畸形帧而非半包
		if errors.Is(err, moq.ErrTruncated) {
			return nil, fmt.Errorf("malformed %s payload: %w", msg.MessageType(), moq.ErrProtocolViolation)
		}
		return nil, err
	}
	return msg, nil
}

// newControlMessage 按判别值构造空消息，集合封闭，未知类型属协议违规
func newControlMessage(t ControlMessageType) (ControlMessage, error) {
	switch t {
	case TypeSubscribeUpdate:
		return &SubscribeUpdate{}, nil
	case TypeSubscribe:
		return &Subscribe{}, nil
	case TypeSubscribeOk:
		return &SubscribeOk{}, nil
	case TypeSubscribeError:
		return &SubscribeError{}, nil
	case TypeAnnounce:
		return &Announce{}, nil
	case TypeAnnounceOk:
		return &AnnounceOk{}, nil
	case TypeAnnounceError:
		return &AnnounceError{}, nil
	case TypeUnannounce:
		return &Unannounce{}, nil
	case TypeUnsubscribe:
		return &Unsubscribe{}, nil
	case TypeSubscribeDone:
		return &SubscribeDone{}, nil
	case TypeAnnounceCancel:
		return &AnnounceCancel{}, nil
	case TypeTrackStatusRequest:
		return &TrackStatusRequest{}, nil
	case TypeTrackStatus:
		return &TrackStatus{}, nil
	case TypeGoAway:
		return &GoAway{}, nil
	case TypeSubscribeNamespace:
		return &SubscribeNamespace{}, nil
	case TypeSubscribeNamespaceOk:
		return &SubscribeNamespaceOk{}, nil
	case TypeSubscribeNamespaceError:
		return &SubscribeNamespaceError{}, nil
	case TypeUnsubscribeNamespace:
		return &UnsubscribeNamespace{}, nil
	case TypeMaxSubscribeID:
		return &MaxSubscribeID{}, nil
	case TypeFetch:
		return &Fetch{}, nil
	case TypeFetchCancel:
		return &FetchCancel{}, nil
	case TypeFetchOk:
		return &FetchOk{}, nil
	case TypeFetchError:
		return &FetchError{}, nil
	case TypeClientSetup:
		return &ClientSetup{}, nil
	case TypeServerSetup:
		return &ServerSetup{}, nil
	default:
		return nil, fmt.Errorf("unknown control message type 0x%x: %w", uint64(t), moq.ErrProtocolViolation)
	}
}

// Parameter 键值参数
type Parameter struct {
	Key   uint64
	Value []byte
}

// Parameters 消息携带的参数列表，保持收到的顺序
type Parameters []Parameter

// Get 返回第一个匹配键的参数值
func (ps Parameters) Get(key uint64) ([]byte, bool) {
	for _, p := range ps {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Has 判断键是否存在
func (ps Parameters) Has(key uint64) bool {
	_, ok := ps.Get(key)
	return ok
}

// GetVarint 将参数值按单个变长整数解码
func (ps Parameters) GetVarint(key uint64) (uint64, bool) {
	value, ok := ps.Get(key)
	if !ok {
		return 0, false
	}
	decoded, err := wire.ReadVarint(wire.NewCursor(value))
	if err != nil {
		return 0, false
	}
	return decoded, true
}

// AddVarint 追加一个变长整数参数
func (ps Parameters) AddVarint(key uint64, value uint64) Parameters {
	return append(ps, Parameter{Key: key, Value: wire.AppendVarint(nil, value)})
}

// AddString 追加一个字符串参数
func (ps Parameters) AddString(key uint64, value string) Parameters {
	return append(ps, Parameter{Key: key, Value: []byte(value)})
}

func appendParameters(buf []byte, ps Parameters) []byte {
	buf = wire.AppendVarint(buf, uint64(len(ps)))
	for _, p := range ps {
		buf = wire.AppendVarint(buf, p.Key)
		buf = wire.AppendBytes(buf, p.Value)
	}
	return buf
}

func parseParameters(c *wire.Cursor) (Parameters, error) {
	count, err := wire.ReadVarint(c)
	if err != nil {
		return nil, err
	}
	// 每个参数至少占1字节，声明数量超过剩余字节数必为畸形帧
	if count > uint64(c.Remaining()) {
		return nil, fmt.Errorf("parameter count %d exceeds %d remaining bytes: %w", count, c.Remaining(), moq.ErrProtocolViolation)
	}
	ps := make(Parameters, 0, count)
	for i := uint64(0); i < count; i++ {
		key, err := wire.ReadVarint(c)
		if err != nil {
			return nil, err
		}
		value, err := wire.ReadBytes(c)
		if err != nil {
			return nil, err
		}
		ps = append(ps, Parameter{Key: key, Value: value})
	}
	return ps, nil
}

func appendNamespace(buf []byte, ns moq.TrackNamespace) []byte {
	buf = wire.AppendVarint(buf, uint64(len(ns)))
	for _, segment := range ns {
		buf = wire.AppendString(buf, segment)
	}
	return buf
}

func parseNamespace(c *wire.Cursor) (moq.TrackNamespace, error) {
	count, err := wire.ReadVarint(c)
	if err != nil {
		return nil, err
	}
	if count > uint64(c.Remaining()) {
		return nil, fmt.Errorf("namespace segment count %d exceeds %d remaining bytes: %w", count, c.Remaining(), moq.ErrProtocolViolation)
	}
	ns := make(moq.TrackNamespace, 0, count)
	for i := uint64(0); i < count; i++ {
		segment, err := wire.ReadString(c)
		if err != nil {
			return nil, err
		}
		ns = append(ns, segment)
	}
	return ns, nil
}
