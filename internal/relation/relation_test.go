package relation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	t.Cleanup(m.Close)
	return m
}

func TestAnnounceCollision(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := moq.TrackNamespace{"room", "alice"}

	require.NoError(t, m.Announce(ctx, ns, 1))
	err := m.Announce(ctx, ns, 2)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// 撤销后可以重新宣告
	require.NoError(t, m.Unannounce(ctx, ns, 1))
	assert.NoError(t, m.Announce(ctx, ns, 2))
}

func TestSubscribeRequiresAnnounce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := moq.TrackNamespace{"room", "alice"}
	subscriber := Pair{SessionID: 2, SubscribeID: 0}

	_, err := m.Subscribe(ctx, ns, "video", subscriber, 0)
	assert.ErrorIs(t, err, moq.ErrNotFound)

	require.NoError(t, m.Announce(ctx, ns, 1))
	publisher, err := m.Subscribe(ctx, ns, "video", subscriber, 0)
	require.NoError(t, err)
	assert.Equal(t, moq.SessionID(1), publisher)
}

func TestRelationRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := moq.TrackNamespace{"room", "alice"}
	upstream := Pair{SessionID: 1, SubscribeID: 0}
	downstream := Pair{SessionID: 2, SubscribeID: 5}
	track := Track{Namespace: ns, Name: "video", Alias: 7}

	require.NoError(t, m.Announce(ctx, ns, 1))
	_, err := m.Subscribe(ctx, ns, "video", downstream, 0)
	require.NoError(t, err)
	require.NoError(t, m.RecordRelation(ctx, upstream, track, downstream))

	pairs, err := m.ResolveDownstream(ctx, upstream)
	require.NoError(t, err)
	assert.Equal(t, []Pair{downstream}, pairs)

	resolved, err := m.ResolveUpstream(ctx, downstream)
	require.NoError(t, err)
	assert.Equal(t, upstream, resolved)

	got, err := m.UpstreamTrack(ctx, upstream)
	require.NoError(t, err)
	assert.Equal(t, track, got)
}

func TestResolveDownstreamPreservesOrder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	upstream := Pair{SessionID: 1, SubscribeID: 0}
	track := Track{Namespace: moq.TrackNamespace{"ns"}, Name: "video"}

	first := Pair{SessionID: 2, SubscribeID: 0}
	second := Pair{SessionID: 3, SubscribeID: 1}
	third := Pair{SessionID: 4, SubscribeID: 2}
	for _, p := range []Pair{first, second, third} {
		require.NoError(t, m.RecordRelation(ctx, upstream, track, p))
	}

	pairs, err := m.ResolveDownstream(ctx, upstream)
	require.NoError(t, err)
	assert.Equal(t, []Pair{first, second, third}, pairs)
}

func TestAllocateIDsNeverReuse(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	seenIDs := make(map[moq.SubscribeID]struct{})
	seenAliases := make(map[moq.TrackAlias]struct{})
	for i := 0; i < 100; i++ {
		id, alias, err := m.AllocateSubscribeIDAndTrackAlias(ctx, 1)
		require.NoError(t, err)
		if _, ok := seenIDs[id]; ok {
			t.Fatalf("subscribe id %d allocated twice", id)
		}
		if _, ok := seenAliases[alias]; ok {
			t.Fatalf("track alias %d allocated twice", alias)
		}
		seenIDs[id] = struct{}{}
		seenAliases[alias] = struct{}{}
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := moq.TrackNamespace{"room", "alice"}
	downstream := Pair{SessionID: 2, SubscribeID: 0}

	require.NoError(t, m.Announce(ctx, ns, 1))
	_, err := m.Subscribe(ctx, ns, "video", downstream, 0)
	require.NoError(t, err)

	already, err := m.Activate(ctx, downstream)
	require.NoError(t, err)
	assert.False(t, already)

	already, err = m.Activate(ctx, downstream)
	require.NoError(t, err)
	assert.True(t, already)

	sub, err := m.GetSubscription(ctx, downstream)
	require.NoError(t, err)
	assert.Equal(t, moq.SubscriptionActive, sub.Status)
}

func TestRemoveRelationKeepsAnnouncement(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := moq.TrackNamespace{"room", "alice"}
	upstream := Pair{SessionID: 1, SubscribeID: 0}
	downstream := Pair{SessionID: 2, SubscribeID: 0}

	require.NoError(t, m.Announce(ctx, ns, 1))
	_, err := m.Subscribe(ctx, ns, "video", downstream, 0)
	require.NoError(t, err)
	require.NoError(t, m.RecordRelation(ctx, upstream, Track{Namespace: ns, Name: "video"}, downstream))

	require.NoError(t, m.RemoveRelation(ctx, downstream))

	pairs, err := m.ResolveDownstream(ctx, upstream)
	require.NoError(t, err)
	assert.Empty(t, pairs)
	_, err = m.ResolveUpstream(ctx, downstream)
	assert.ErrorIs(t, err, moq.ErrNotFound)

	// 宣告仍然有效，新的订阅者可以继续订阅
	_, err = m.Subscribe(ctx, ns, "video", Pair{SessionID: 3, SubscribeID: 0}, 0)
	assert.NoError(t, err)
}

func TestDeleteSessionPurgesBothSides(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := moq.TrackNamespace{"room", "alice"}
	upstream := Pair{SessionID: 1, SubscribeID: 0}
	downstream := Pair{SessionID: 2, SubscribeID: 0}
	survivor := Pair{SessionID: 3, SubscribeID: 0}

	require.NoError(t, m.Announce(ctx, ns, 1))
	for _, p := range []Pair{downstream, survivor} {
		_, err := m.Subscribe(ctx, ns, "video", p, 0)
		require.NoError(t, err)
		require.NoError(t, m.RecordRelation(ctx, upstream, Track{Namespace: ns, Name: "video"}, p))
	}

	// 订阅者2断连，只影响它自己的关系
	require.NoError(t, m.DeleteSession(ctx, 2))
	pairs, err := m.ResolveDownstream(ctx, upstream)
	require.NoError(t, err)
	assert.Equal(t, []Pair{survivor}, pairs)

	// 发布者1断连，宣告与全部关系消失
	require.NoError(t, m.DeleteSession(ctx, 1))
	_, err = m.FindAnnouncer(ctx, ns)
	assert.ErrorIs(t, err, moq.ErrNotFound)
	pairs, err = m.ResolveDownstream(ctx, upstream)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
