// Package message 实现了中继协议全部控制消息与数据流对象的定义及其编解码
package message

// ControlMessageType 定义了控制信道上的消息类型
type ControlMessageType uint64

// 控制消息类型常量定义（统一采用draft-06编号，SETUP固定为0x40/0x41）
const (
	TypeSubscribeUpdate         ControlMessageType = 0x02 // 更新已有订阅的范围
	TypeSubscribe               ControlMessageType = 0x03 // 订阅请求
	TypeSubscribeOk             ControlMessageType = 0x04 // 订阅确认
	TypeSubscribeError          ControlMessageType = 0x05 // 订阅失败
	TypeAnnounce                ControlMessageType = 0x06 // 发布命名空间
	TypeAnnounceOk              ControlMessageType = 0x07 // 发布确认
	TypeAnnounceError           ControlMessageType = 0x08 // 发布失败
	TypeUnannounce              ControlMessageType = 0x09 // 撤销发布
	TypeUnsubscribe             ControlMessageType = 0x0A // 取消订阅
	TypeSubscribeDone           ControlMessageType = 0x0B // 订阅结束
	TypeAnnounceCancel          ControlMessageType = 0x0C // 发布被取消
	TypeTrackStatusRequest      ControlMessageType = 0x0D // 轨道状态查询
	TypeTrackStatus             ControlMessageType = 0x0E // 轨道状态应答
	TypeGoAway                  ControlMessageType = 0x10 // 会话迁移通知
	TypeSubscribeNamespace      ControlMessageType = 0x11 // 订阅命名空间前缀
	TypeSubscribeNamespaceOk    ControlMessageType = 0x12 // 前缀订阅确认
	TypeSubscribeNamespaceError ControlMessageType = 0x13 // 前缀订阅失败
	TypeUnsubscribeNamespace    ControlMessageType = 0x14 // 取消前缀订阅
	TypeMaxSubscribeID          ControlMessageType = 0x15 // 订阅ID上限通告
	TypeFetch                   ControlMessageType = 0x16 // 拉取历史对象
	TypeFetchCancel             ControlMessageType = 0x17 // 取消拉取
	TypeFetchOk                 ControlMessageType = 0x18 // 拉取确认
	TypeFetchError              ControlMessageType = 0x19 // 拉取失败
	TypeClientSetup             ControlMessageType = 0x40 // 客户端握手
	TypeServerSetup             ControlMessageType = 0x41 // 服务器握手应答
)

// ControlMessageTypeMap 将ControlMessageType映射到其字符串表示
var ControlMessageTypeMap = map[ControlMessageType]string{
	TypeSubscribeUpdate:         "SUBSCRIBE_UPDATE",
	TypeSubscribe:               "SUBSCRIBE",
	TypeSubscribeOk:             "SUBSCRIBE_OK",
	TypeSubscribeError:          "SUBSCRIBE_ERROR",
	TypeAnnounce:                "ANNOUNCE",
	TypeAnnounceOk:              "ANNOUNCE_OK",
	TypeAnnounceError:           "ANNOUNCE_ERROR",
	TypeUnannounce:              "UNANNOUNCE",
	TypeUnsubscribe:             "UNSUBSCRIBE",
	TypeSubscribeDone:           "SUBSCRIBE_DONE",
	TypeAnnounceCancel:          "ANNOUNCE_CANCEL",
	TypeTrackStatusRequest:      "TRACK_STATUS_REQUEST",
	TypeTrackStatus:             "TRACK_STATUS",
	TypeGoAway:                  "GOAWAY",
	TypeSubscribeNamespace:      "SUBSCRIBE_NAMESPACE",
	TypeSubscribeNamespaceOk:    "SUBSCRIBE_NAMESPACE_OK",
	TypeSubscribeNamespaceError: "SUBSCRIBE_NAMESPACE_ERROR",
	TypeUnsubscribeNamespace:    "UNSUBSCRIBE_NAMESPACE",
	TypeMaxSubscribeID:          "MAX_SUBSCRIBE_ID",
	TypeFetch:                   "FETCH",
	TypeFetchCancel:             "FETCH_CANCEL",
	TypeFetchOk:                 "FETCH_OK",
	TypeFetchError:              "FETCH_ERROR",
	TypeClientSetup:             "CLIENT_SETUP",
	TypeServerSetup:             "SERVER_SETUP",
}

// String 返回ControlMessageType的字符串表示
func (t ControlMessageType) String() string {
	if name, ok := ControlMessageTypeMap[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// DataStreamType 定义了单向流与数据报上的对象类型
type DataStreamType uint64

const (
	TypeObjectDatagram       DataStreamType = 0x1 // 单个数据报对象
	TypeStreamHeaderTrack    DataStreamType = 0x2 // 每轨道一条流
	TypeStreamHeaderSubgroup DataStreamType = 0x4 // 每子组一条流
)

// DataStreamTypeMap 将DataStreamType映射到其字符串表示
var DataStreamTypeMap = map[DataStreamType]string{
	TypeObjectDatagram:       "OBJECT_DATAGRAM",
	TypeStreamHeaderTrack:    "STREAM_HEADER_TRACK",
	TypeStreamHeaderSubgroup: "STREAM_HEADER_SUBGROUP",
}

// String 返回DataStreamType的字符串表示
func (t DataStreamType) String() string {
	if name, ok := DataStreamTypeMap[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// FilterType 订阅过滤方式
type FilterType uint64

const (
	FilterLatestGroup   FilterType = 0x1 // 从最新组的第一个对象开始
	FilterLatestObject  FilterType = 0x2 // 从最新对象开始
	FilterAbsoluteStart FilterType = 0x3 // 从指定位置开始
	FilterAbsoluteRange FilterType = 0x4 // 指定起止范围
)

// GroupOrder 组的投递顺序
type GroupOrder byte

const (
	GroupOrderDefault    GroupOrder = 0x0
	GroupOrderAscending  GroupOrder = 0x1
	GroupOrderDescending GroupOrder = 0x2
)

// 协议版本，本实现只接受这一个版本
const ProtocolVersion uint64 = 0xff000006

// 会话角色
type Role uint64

const (
	RolePublisher  Role = 0x1
	RoleSubscriber Role = 0x2
	RolePubSub     Role = 0x3
)

// SETUP参数键
const (
	ParamRole           uint64 = 0x00
	ParamPath           uint64 = 0x01
	ParamMaxSubscribeID uint64 = 0x02
)

// 订阅参数键
const (
	ParamAuthorizationInfo uint64 = 0x02
	ParamDeliveryTimeout   uint64 = 0x03
)
