// Package moq 定义了MoQ中继在各模块之间共享的标识符类型
package moq

import "strings"

// SessionID 会话标识，由服务器在接受连接时分配
type SessionID uint64

// SubscribeID 订阅标识，会话范围内唯一
type SubscribeID uint64

// TrackAlias 轨道别名，会话范围内唯一
type TrackAlias uint64

// GroupID 对象组标识
type GroupID uint64

// SubgroupID 子组标识
type SubgroupID uint64

// ObjectID 组内对象标识
type ObjectID uint64

// TrackNamespace 轨道命名空间，由有序的字符串段组成
type TrackNamespace []string

// Join 返回以 "/" 连接的命名空间字符串，用于表键和日志
func (ns TrackNamespace) Join() string {
	return strings.Join(ns, "/")
}

// Equal 判断两个命名空间是否逐段相等
func (ns TrackNamespace) Equal(other TrackNamespace) bool {
	if len(ns) != len(other) {
		return false
	}
	for i := range ns {
		if ns[i] != other[i] {
			return false
		}
	}
	return true
}

// ForwardingPreference 轨道的转发形态，由第一个收到的对象确定，之后不可更改
type ForwardingPreference byte

const (
	ForwardingDatagram ForwardingPreference = iota + 1
	ForwardingTrack
	ForwardingSubgroup
)

// ForwardingPreferenceMap 将ForwardingPreference映射到其字符串表示
var ForwardingPreferenceMap = map[ForwardingPreference]string{
	ForwardingDatagram: "DATAGRAM",
	ForwardingTrack:    "TRACK",
	ForwardingSubgroup: "SUBGROUP",
}

// String 返回ForwardingPreference的字符串表示
func (fp ForwardingPreference) String() string {
	return ForwardingPreferenceMap[fp]
}

// SubscriptionStatus 订阅状态，Requesting到Active只会发生一次
type SubscriptionStatus byte

const (
	SubscriptionRequesting SubscriptionStatus = iota
	SubscriptionActive
)

// Object 轨道内的一个载荷单元，中继不关心其内容
type Object struct {
	GroupID    GroupID
	SubgroupID SubgroupID
	ObjectID   ObjectID
	Priority   byte
	Payload    []byte
}
