package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

const testTTL = time.Minute

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage(0)
	t.Cleanup(s.Close)
	return s
}

func insert(t *testing.T, s *Storage, key Key, group moq.GroupID, object moq.ObjectID, payload []byte) uint64 {
	t.Helper()
	id, err := s.InsertObject(context.Background(), key, moq.Object{
		GroupID:  group,
		ObjectID: object,
		Payload:  payload,
	}, testTTL)
	require.NoError(t, err)
	return id
}

func TestSetSubscriptionPreferenceConflict(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 1, SubscribeID: 0}

	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))
	// 相同形态重复调用是无害的
	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))
	// 不同形态属协议违规
	err := s.SetSubscription(ctx, key, moq.ForwardingDatagram)
	assert.ErrorIs(t, err, moq.ErrProtocolViolation)

	preference, err := s.Preference(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, moq.ForwardingTrack, preference)
}

func TestGetAbsolute(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 1, SubscribeID: 0}
	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))

	insert(t, s, key, 10, 5, []byte("frame"))

	object, err := s.GetAbsolute(ctx, key, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), object.Payload)

	_, err = s.GetAbsolute(ctx, key, 10, 6)
	assert.ErrorIs(t, err, moq.ErrNotFound)
}

func TestGetNextFollowsInsertionOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 1, SubscribeID: 0}
	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))

	// 组/对象编号刻意乱序，后继必须按插入顺序决定
	idA := insert(t, s, key, 2, 9, []byte("A"))
	insert(t, s, key, 1, 0, []byte("B"))
	idC := insert(t, s, key, 5, 3, []byte("C"))

	next, err := s.GetNext(ctx, key, idA)
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), next.Payload)

	_, err = s.GetNext(ctx, key, idC)
	assert.ErrorIs(t, err, moq.ErrNotFound)
}

func TestGetLatestObject(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 1, SubscribeID: 0}
	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))

	insert(t, s, key, 1, 0, []byte("old"))
	insert(t, s, key, 1, 1, []byte("new"))

	object, err := s.GetLatestObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), object.Payload)
}

func TestGetLatestGroupTieBreak(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 1, SubscribeID: 0}
	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))

	insert(t, s, key, 1, 0, nil)
	insert(t, s, key, 1, 1, nil)
	// 组2乱序到达，对象号小者必须胜出
	insert(t, s, key, 2, 3, nil)
	insert(t, s, key, 2, 2, []byte("winner"))

	object, err := s.GetLatestGroup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, moq.GroupID(2), object.GroupID)
	assert.Equal(t, moq.ObjectID(2), object.ObjectID)
	assert.Equal(t, []byte("winner"), object.Payload)
}

func TestLargestGroupAndObject(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 1, SubscribeID: 0}
	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))

	insert(t, s, key, 1, 7, nil)
	insert(t, s, key, 3, 2, nil)
	insert(t, s, key, 3, 5, nil)
	insert(t, s, key, 2, 9, nil)

	group, err := s.GetLargestGroupID(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, moq.GroupID(3), group)

	object, err := s.GetLargestObjectIDWithinLargestGroup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, moq.ObjectID(5), object)
}

func TestTTLExpiry(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 1, SubscribeID: 0}
	require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingDatagram))

	_, err := s.InsertObject(ctx, key, moq.Object{GroupID: 1, ObjectID: 0, Payload: []byte("x")}, 50*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = s.GetAbsolute(ctx, key, 1, 0)
	assert.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = s.GetAbsolute(ctx, key, 1, 0)
	assert.ErrorIs(t, err, moq.ErrNotFound)
}

func TestQueriesOnMissingKey(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := Key{SessionID: 9, SubscribeID: 9}

	_, err := s.GetLatestObject(ctx, key)
	assert.ErrorIs(t, err, moq.ErrNotFound)
	_, err = s.GetNext(ctx, key, 0)
	assert.ErrorIs(t, err, moq.ErrNotFound)
}

func TestDeleteClient(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	mine := Key{SessionID: 1, SubscribeID: 0}
	other := Key{SessionID: 2, SubscribeID: 0}
	for _, key := range []Key{mine, other} {
		require.NoError(t, s.SetSubscription(ctx, key, moq.ForwardingTrack))
		insert(t, s, key, 1, 0, []byte("x"))
	}

	require.NoError(t, s.DeleteClient(ctx, 1))

	_, err := s.GetLatestObject(ctx, mine)
	assert.ErrorIs(t, err, moq.ErrNotFound)
	_, err = s.GetLatestObject(ctx, other)
	assert.NoError(t, err)
}
