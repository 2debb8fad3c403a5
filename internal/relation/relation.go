// Package relation 实现了发布/订阅关系表，表由唯一的所有者协程持有，
// 其余任务只能通过命令通道访问，从而不需要任何调用方加锁
package relation

import (
	"context"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// Pair 一条关系里的一端，(会话, 订阅ID)
type Pair struct {
	SessionID   moq.SessionID
	SubscribeID moq.SubscribeID
}

// Track 订阅指向的轨道
type Track struct {
	Namespace moq.TrackNamespace
	Name      string
	Alias     moq.TrackAlias
}

// Subscription 一条订阅记录
type Subscription struct {
	Track    Track
	Priority byte
	Status   moq.SubscriptionStatus
}

type announcement struct {
	publisher moq.SessionID
}

type idCounter struct {
	nextSubscribeID moq.SubscribeID
	nextTrackAlias  moq.TrackAlias
}

// Manager 关系表的所有者
type Manager struct {
	ops  chan func()
	done chan struct{}

	// 以下状态只被所有者协程访问
	announcements map[string]announcement  // 命名空间 → 发布者会话
	upstreams     map[Pair]Track           // 上游订阅 → 轨道
	subscriptions map[Pair]*Subscription   // 下游订阅 → 记录
	relations     map[Pair][]Pair          // 上游订阅 → 有序的下游订阅列表
	upstreamOf    map[Pair]Pair            // 下游订阅 → 上游订阅
	counters      map[moq.SessionID]*idCounter
}

// NewManager 创建并启动关系表所有者协程
func NewManager() *Manager {
	m := &Manager{
		ops:           make(chan func(), 64),
		done:          make(chan struct{}),
		announcements: make(map[string]announcement),
		upstreams:     make(map[Pair]Track),
		subscriptions: make(map[Pair]*Subscription),
		relations:     make(map[Pair][]Pair),
		upstreamOf:    make(map[Pair]Pair),
		counters:      make(map[moq.SessionID]*idCounter),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.done:
			return
		}
	}
}

// Close 停止所有者协程
func (m *Manager) Close() {
	close(m.done)
}

func (m *Manager) do(ctx context.Context, op func()) error {
	reply := make(chan struct{})
	wrapped := func() {
		op()
		close(reply)
	}
	select {
	case m.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("relation manager is closed")
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("relation manager is closed")
	}
}

// Announce 登记命名空间宣告，冲突时返回ErrAlreadyExists
func (m *Manager) Announce(ctx context.Context, ns moq.TrackNamespace, publisher moq.SessionID) error {
	var result error
	err := m.do(ctx, func() {
		key := ns.Join()
		if _, ok := m.announcements[key]; ok {
			result = fmt.Errorf("namespace %q: %w", key, ErrAlreadyExists)
			return
		}
		m.announcements[key] = announcement{publisher: publisher}
		logger.DebugF("Namespace %q announced by session %d", key, publisher)
	})
	if err != nil {
		return err
	}
	return result
}

// Unannounce 撤销命名空间宣告，只有宣告者本人可以撤销
func (m *Manager) Unannounce(ctx context.Context, ns moq.TrackNamespace, publisher moq.SessionID) error {
	return m.do(ctx, func() {
		key := ns.Join()
		if a, ok := m.announcements[key]; ok && a.publisher == publisher {
			delete(m.announcements, key)
			logger.DebugF("Namespace %q unannounced by session %d", key, publisher)
		}
	})
}

// Subscribe 登记一条下游订阅并解析其发布者
// 命名空间未被宣告时返回ErrNotFound，调用方应回送SUBSCRIBE_ERROR
func (m *Manager) Subscribe(ctx context.Context, ns moq.TrackNamespace, name string, subscriber Pair, priority byte) (moq.SessionID, error) {
	var (
		publisher moq.SessionID
		result    error
	)
	err := m.do(ctx, func() {
		key := ns.Join()
		a, ok := m.announcements[key]
		if !ok {
			result = fmt.Errorf("namespace %q: %w", key, moq.ErrNotFound)
			return
		}
		if _, ok := m.subscriptions[subscriber]; ok {
			result = fmt.Errorf("subscribe id %d is already in use in session %d: %w",
				subscriber.SubscribeID, subscriber.SessionID, ErrAlreadyExists)
			return
		}
		m.subscriptions[subscriber] = &Subscription{
			Track:    Track{Namespace: ns, Name: name},
			Priority: priority,
			Status:   moq.SubscriptionRequesting,
		}
		publisher = a.publisher
	})
	if err != nil {
		return 0, err
	}
	return publisher, result
}

// RecordRelation 追加一条上下游关系，并登记上游订阅指向的轨道
func (m *Manager) RecordRelation(ctx context.Context, upstream Pair, track Track, downstream Pair) error {
	return m.do(ctx, func() {
		m.upstreams[upstream] = track
		m.relations[upstream] = append(m.relations[upstream], downstream)
		m.upstreamOf[downstream] = upstream
		logger.DebugF("Relation recorded: publisher (%d,%d) -> subscriber (%d,%d)",
			upstream.SessionID, upstream.SubscribeID, downstream.SessionID, downstream.SubscribeID)
	})
}

// RemoveRelation 移除指定的一条上下游关系，UNSUBSCRIBE时调用
// 发布者的宣告保留到UNANNOUNCE或断连为止
func (m *Manager) RemoveRelation(ctx context.Context, downstream Pair) error {
	return m.do(ctx, func() {
		upstream, ok := m.upstreamOf[downstream]
		if !ok {
			return
		}
		m.relations[upstream] = removePair(m.relations[upstream], downstream)
		if len(m.relations[upstream]) == 0 {
			delete(m.relations, upstream)
		}
		delete(m.upstreamOf, downstream)
		delete(m.subscriptions, downstream)
		logger.DebugF("Relation removed: subscriber (%d,%d)", downstream.SessionID, downstream.SubscribeID)
	})
}

// ResolveDownstream 返回上游订阅的全部下游订阅，保持登记顺序
func (m *Manager) ResolveDownstream(ctx context.Context, upstream Pair) ([]Pair, error) {
	var result []Pair
	err := m.do(ctx, func() {
		pairs := m.relations[upstream]
		result = make([]Pair, len(pairs))
		copy(result, pairs)
	})
	return result, err
}

// ResolveUpstream 返回下游订阅对应的上游订阅
func (m *Manager) ResolveUpstream(ctx context.Context, downstream Pair) (Pair, error) {
	var (
		upstream Pair
		result   error
	)
	err := m.do(ctx, func() {
		u, ok := m.upstreamOf[downstream]
		if !ok {
			result = fmt.Errorf("subscriber (%d,%d): %w", downstream.SessionID, downstream.SubscribeID, moq.ErrNotFound)
			return
		}
		upstream = u
	})
	if err != nil {
		return Pair{}, err
	}
	return upstream, result
}

// UpstreamTrack 返回上游订阅指向的轨道
func (m *Manager) UpstreamTrack(ctx context.Context, upstream Pair) (Track, error) {
	var (
		track  Track
		result error
	)
	err := m.do(ctx, func() {
		t, ok := m.upstreams[upstream]
		if !ok {
			result = fmt.Errorf("publisher (%d,%d): %w", upstream.SessionID, upstream.SubscribeID, moq.ErrNotFound)
			return
		}
		track = t
	})
	if err != nil {
		return Track{}, err
	}
	return track, result
}

// AllocateSubscribeIDAndTrackAlias 分配会话内未使用过的订阅ID与轨道别名
// 采用会话级单调递增计数器，释放的ID不会复用
func (m *Manager) AllocateSubscribeIDAndTrackAlias(ctx context.Context, session moq.SessionID) (moq.SubscribeID, moq.TrackAlias, error) {
	var (
		id    moq.SubscribeID
		alias moq.TrackAlias
	)
	err := m.do(ctx, func() {
		counter, ok := m.counters[session]
		if !ok {
			counter = &idCounter{}
			m.counters[session] = counter
		}
		id = counter.nextSubscribeID
		alias = counter.nextTrackAlias
		counter.nextSubscribeID++
		counter.nextTrackAlias++
	})
	return id, alias, err
}

// Activate 将下游订阅从Requesting切换到Active
// 重复调用不是错误，返回值报告此前是否已激活
func (m *Manager) Activate(ctx context.Context, downstream Pair) (bool, error) {
	var (
		alreadyActive bool
		result        error
	)
	err := m.do(ctx, func() {
		sub, ok := m.subscriptions[downstream]
		if !ok {
			result = fmt.Errorf("subscriber (%d,%d): %w", downstream.SessionID, downstream.SubscribeID, moq.ErrNotFound)
			return
		}
		if sub.Status == moq.SubscriptionActive {
			alreadyActive = true
			return
		}
		sub.Status = moq.SubscriptionActive
		logger.DebugF("Subscription (%d,%d) activated", downstream.SessionID, downstream.SubscribeID)
	})
	if err != nil {
		return false, err
	}
	return alreadyActive, result
}

// GetSubscription 返回下游订阅记录的副本
func (m *Manager) GetSubscription(ctx context.Context, downstream Pair) (Subscription, error) {
	var (
		sub    Subscription
		result error
	)
	err := m.do(ctx, func() {
		s, ok := m.subscriptions[downstream]
		if !ok {
			result = fmt.Errorf("subscriber (%d,%d): %w", downstream.SessionID, downstream.SubscribeID, moq.ErrNotFound)
			return
		}
		sub = *s
	})
	if err != nil {
		return Subscription{}, err
	}
	return sub, result
}

// SetSubscriptionTrackAlias 登记下游订阅使用的轨道别名
func (m *Manager) SetSubscriptionTrackAlias(ctx context.Context, downstream Pair, alias moq.TrackAlias) error {
	return m.do(ctx, func() {
		if sub, ok := m.subscriptions[downstream]; ok {
			sub.Track.Alias = alias
		}
	})
}

// FindAnnouncer 返回宣告了命名空间的发布者会话
func (m *Manager) FindAnnouncer(ctx context.Context, ns moq.TrackNamespace) (moq.SessionID, error) {
	var (
		publisher moq.SessionID
		result    error
	)
	err := m.do(ctx, func() {
		a, ok := m.announcements[ns.Join()]
		if !ok {
			result = fmt.Errorf("namespace %q: %w", ns.Join(), moq.ErrNotFound)
			return
		}
		publisher = a.publisher
	})
	if err != nil {
		return 0, err
	}
	return publisher, result
}

// DeleteSession 清除会话在关系表两侧的全部痕迹，断连时调用
func (m *Manager) DeleteSession(ctx context.Context, session moq.SessionID) error {
	return m.do(ctx, func() {
		for key, a := range m.announcements {
			if a.publisher == session {
				delete(m.announcements, key)
			}
		}
		for upstream := range m.relations {
			if upstream.SessionID == session {
				for _, downstream := range m.relations[upstream] {
					delete(m.upstreamOf, downstream)
				}
				delete(m.relations, upstream)
				delete(m.upstreams, upstream)
				continue
			}
			filtered := m.relations[upstream][:0]
			for _, downstream := range m.relations[upstream] {
				if downstream.SessionID == session {
					delete(m.upstreamOf, downstream)
					continue
				}
				filtered = append(filtered, downstream)
			}
			if len(filtered) == 0 {
				delete(m.relations, upstream)
			} else {
				m.relations[upstream] = filtered
			}
		}
		for upstream := range m.upstreams {
			if upstream.SessionID == session {
				delete(m.upstreams, upstream)
			}
		}
		for pair := range m.subscriptions {
			if pair.SessionID == session {
				delete(m.subscriptions, pair)
			}
		}
		delete(m.counters, session)
		logger.DebugF("Session %d purged from relation table", session)
	})
}

func removePair(pairs []Pair, target Pair) []Pair {
	filtered := pairs[:0]
	for _, p := range pairs {
		if p != target {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
