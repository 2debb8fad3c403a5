package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/wire"
)

func TestObjectDatagramRoundTrip(t *testing.T) {
	datagram := &ObjectDatagram{
		SubscribeID:       1,
		TrackAlias:        2,
		GroupID:           3,
		ObjectID:          4,
		PublisherPriority: 128,
		Payload:           []byte{0, 1, 2},
	}
	encoded := datagram.Append(nil)

	cursor := wire.NewCursor(encoded)
	streamType, err := ReadDataStreamType(cursor)
	require.NoError(t, err)
	require.Equal(t, TypeObjectDatagram, streamType)

	parsed := &ObjectDatagram{}
	require.NoError(t, parsed.Parse(cursor))
	assert.Equal(t, datagram, parsed)
}

func TestStreamHeaderTrackRoundTrip(t *testing.T) {
	header := &StreamHeaderTrack{SubscribeID: 1, TrackAlias: 2, PublisherPriority: 10}
	object := &TrackObject{GroupID: 1, ObjectID: 0, Payload: []byte("keyframe")}

	encoded := header.Append(nil)
	encoded = object.Append(encoded)

	cursor := wire.NewCursor(encoded)
	streamType, err := ReadDataStreamType(cursor)
	require.NoError(t, err)
	require.Equal(t, TypeStreamHeaderTrack, streamType)

	parsedHeader := &StreamHeaderTrack{}
	require.NoError(t, parsedHeader.Parse(cursor))
	assert.Equal(t, header, parsedHeader)

	parsedObject := &TrackObject{}
	require.NoError(t, parsedObject.Parse(cursor))
	assert.Equal(t, object, parsedObject)
	assert.Zero(t, cursor.Remaining())
}

func TestStreamHeaderSubgroupRoundTrip(t *testing.T) {
	header := &StreamHeaderSubgroup{SubscribeID: 5, TrackAlias: 6, GroupID: 7, SubgroupID: 0, PublisherPriority: 1}
	object := &SubgroupObject{ObjectID: 3, Payload: []byte{9, 9}}

	encoded := header.Append(nil)
	encoded = object.Append(encoded)

	cursor := wire.NewCursor(encoded)
	streamType, err := ReadDataStreamType(cursor)
	require.NoError(t, err)
	require.Equal(t, TypeStreamHeaderSubgroup, streamType)

	parsedHeader := &StreamHeaderSubgroup{}
	require.NoError(t, parsedHeader.Parse(cursor))
	assert.Equal(t, header, parsedHeader)

	parsedObject := &SubgroupObject{}
	require.NoError(t, parsedObject.Parse(cursor))
	assert.Equal(t, object, parsedObject)
}

// 半包时必须返回ErrTruncated且游标回退，读取方才能继续累积字节
func TestTrackObjectNeedMoreBytes(t *testing.T) {
	object := &TrackObject{GroupID: 10, ObjectID: 5, Payload: []byte{1, 2, 3, 4}}
	encoded := object.Append(nil)

	for i := 0; i < len(encoded); i++ {
		cursor := wire.NewCursor(encoded[:i])
		parsed := &TrackObject{}
		err := parsed.Parse(cursor)
		require.Truef(t, errors.Is(err, moq.ErrTruncated), "prefix %d: got %v", i, err)
		assert.Zerof(t, cursor.CurrentPtr, "prefix %d: cursor must rewind", i)
	}
}

func TestReadDataStreamTypeUnknown(t *testing.T) {
	encoded := wire.AppendVarint(nil, 0x33)
	_, err := ReadDataStreamType(wire.NewCursor(encoded))
	assert.True(t, errors.Is(err, moq.ErrProtocolViolation))
}
