package message

import (
	"errors"
	"reflect"
	"testing"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

func roundTrip(t *testing.T, msg ControlMessage) ControlMessage {
	t.Helper()
	frame := AppendFrame(nil, msg)
	parsed, err := ParseFrame(wire.NewCursor(frame))
	if err != nil {
		t.Fatalf("Fail to parse %s frame, details: %v", msg.MessageType(), err)
	}
	return parsed
}

func TestControlMessageRoundTrip(t *testing.T) {
	ns := moq.TrackNamespace{"room", "alice"}
	tests := []ControlMessage{
		&ClientSetup{
			SupportedVersions: []uint64{ProtocolVersion},
			Parameters:        Parameters{}.AddVarint(ParamRole, uint64(RolePubSub)),
		},
		&ServerSetup{SelectedVersion: ProtocolVersion, Parameters: Parameters{}},
		&GoAway{NewSessionURI: "https://relay.example/moq"},
		&Announce{TrackNamespace: ns, Parameters: Parameters{}},
		&AnnounceOk{TrackNamespace: ns},
		&AnnounceError{TrackNamespace: ns, ErrorCode: 1, ReasonPhrase: "duplicate namespace"},
		&Unannounce{TrackNamespace: ns},
		&AnnounceCancel{TrackNamespace: ns, ErrorCode: 2, ReasonPhrase: "expired"},
		&Subscribe{
			SubscribeID:        1,
			TrackAlias:         2,
			TrackNamespace:     ns,
			TrackName:          "video",
			SubscriberPriority: 128,
			GroupOrder:         GroupOrderAscending,
			FilterType:         FilterLatestGroup,
			Parameters:         Parameters{}.AddString(ParamAuthorizationInfo, "token"),
		},
		&Subscribe{
			SubscribeID:    3,
			TrackAlias:     4,
			TrackNamespace: ns,
			TrackName:      "audio",
			FilterType:     FilterAbsoluteRange,
			StartGroup:     10,
			StartObject:    0,
			EndGroup:       20,
			EndObject:      5,
			Parameters:     Parameters{},
		},
		&SubscribeOk{
			SubscribeID:     1,
			ExpiresMillis:   0,
			GroupOrder:      GroupOrderAscending,
			ContentExists:   true,
			LargestGroupID:  7,
			LargestObjectID: 3,
			Parameters:      Parameters{},
		},
		&SubscribeError{SubscribeID: 1, ErrorCode: 404, ReasonPhrase: "track does not exist", TrackAlias: 2},
		&Unsubscribe{SubscribeID: 1},
		&SubscribeDone{SubscribeID: 1, StatusCode: 0, ReasonPhrase: "finished", ContentExists: true, FinalGroupID: 9, FinalObjectID: 4},
		&SubscribeUpdate{SubscribeID: 1, StartGroup: 1, StartObject: 2, EndGroup: 3, EndObject: 4, SubscriberPriority: 1, Parameters: Parameters{}},
		&MaxSubscribeID{SubscribeID: 100},
		&SubscribeNamespace{TrackNamespacePrefix: ns[:1], Parameters: Parameters{}},
		&SubscribeNamespaceOk{TrackNamespacePrefix: ns[:1]},
		&SubscribeNamespaceError{TrackNamespacePrefix: ns[:1], ErrorCode: 1, ReasonPhrase: "denied"},
		&UnsubscribeNamespace{TrackNamespacePrefix: ns[:1]},
		&TrackStatusRequest{TrackNamespace: ns, TrackName: "video"},
		&TrackStatus{TrackNamespace: ns, TrackName: "video", StatusCode: TrackStatusInProgress, LastGroupID: 5, LastObjectID: 2},
		&Fetch{SubscribeID: 8, TrackNamespace: ns, TrackName: "video", SubscriberPriority: 1, GroupOrder: GroupOrderDescending, StartGroup: 1, EndGroup: 2, EndObject: 9, Parameters: Parameters{}},
		&FetchOk{SubscribeID: 8, GroupOrder: GroupOrderAscending, EndOfTrack: true, LargestGroupID: 2, LargestObjectID: 9, Parameters: Parameters{}},
		&FetchError{SubscribeID: 8, ErrorCode: 500, ReasonPhrase: "cache miss"},
		&FetchCancel{SubscribeID: 8},
	}

	for _, msg := range tests {
		parsed := roundTrip(t, msg)
		if !reflect.DeepEqual(msg, parsed) {
			t.Errorf("%s 期望=%+v 实际=%+v", msg.MessageType(), msg, parsed)
		}
	}
}

func TestParseFrameTruncated(t *testing.T) {
	frame := AppendFrame(nil, &Unsubscribe{SubscribeID: 1})
	for i := 0; i < len(frame); i++ {
		cursor := wire.NewCursor(frame[:i])
		_, err := ParseFrame(cursor)
		if !errors.Is(err, moq.ErrTruncated) {
			t.Fatalf("前缀长度=%d 期望 ErrTruncated, 实际=%v", i, err)
		}
		if cursor.CurrentPtr != 0 {
			t.Fatalf("前缀长度=%d 游标未回退, CurrentPtr=%d", i, cursor.CurrentPtr)
		}
	}
}

func TestParseFrameUnknownType(t *testing.T) {
	buf := wire.AppendVarint(nil, 0x3F) // 未定义的类型
	buf = wire.AppendVarint(buf, 0)
	_, err := ParseFrame(wire.NewCursor(buf))
	if !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation, but got %v", err)
	}
}

func TestParseFrameMalformedPayload(t *testing.T) {
	// 帧头声明的长度小于载荷实际需要的字节数
	payload := wire.AppendVarint(nil, uint64(1))
	frame := wire.AppendVarint(nil, uint64(TypeSubscribeError))
	frame = wire.AppendVarint(frame, uint64(len(payload)))
	frame = append(frame, payload...)
	_, err := ParseFrame(wire.NewCursor(frame))
	if !errors.Is(err, moq.ErrProtocolViolation) {
		t.Errorf("Except ErrProtocolViolation, but got %v", err)
	}
}

func TestParseFrameHugeDeclaredCounts(t *testing.T) {
	// 声明的元素数量远超帧内剩余字节，必须按畸形帧拒绝而不是按声明预分配
	announce := wire.AppendVarint(nil, uint64(TypeAnnounce))
	payload := wire.AppendVarint(nil, uint64(1)<<61) // 命名空间段数
	announce = wire.AppendVarint(announce, uint64(len(payload)))
	announce = append(announce, payload...)

	setupPayload := wire.AppendVarint(nil, 1)
	setupPayload = wire.AppendVarint(setupPayload, ProtocolVersion)
	setupPayload = wire.AppendVarint(setupPayload, uint64(1)<<60) // 参数数量
	setup := wire.AppendVarint(nil, uint64(TypeClientSetup))
	setup = wire.AppendVarint(setup, uint64(len(setupPayload)))
	setup = append(setup, setupPayload...)

	versions := wire.AppendVarint(nil, uint64(1)<<59) // 版本数量
	clientSetup := wire.AppendVarint(nil, uint64(TypeClientSetup))
	clientSetup = wire.AppendVarint(clientSetup, uint64(len(versions)))
	clientSetup = append(clientSetup, versions...)

	for _, frame := range [][]byte{announce, setup, clientSetup} {
		_, err := ParseFrame(wire.NewCursor(frame))
		if !errors.Is(err, moq.ErrProtocolViolation) {
			t.Errorf("Except ErrProtocolViolation, but got %v", err)
		}
	}
}

func TestParametersAccessors(t *testing.T) {
	ps := Parameters{}.AddVarint(ParamRole, uint64(RolePublisher)).AddString(ParamPath, "/moq")
	role, ok := ps.GetVarint(ParamRole)
	if !ok || Role(role) != RolePublisher {
		t.Errorf("期望角色=%d 实际=%d", RolePublisher, role)
	}
	if !ps.Has(ParamPath) {
		t.Error("Except PATH parameter exists, but got nothing")
	}
	if _, ok := ps.Get(ParamMaxSubscribeID); ok {
		t.Error("Except no MAX_SUBSCRIBE_ID parameter, but got one")
	}
}
