// Package cache 实现了按(会话,订阅)键组织的对象缓存，
// 迟到的订阅者可以从缓存续传而不必等待新的关键帧。
// 缓存表由唯一的所有者协程持有，过期是被动的，由底层TTL存储在查询时剔除
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// Key 唯一标识一条上游订阅的对象流
type Key struct {
	SessionID   moq.SessionID
	SubscribeID moq.SubscribeID
}

// SubgroupKey 子组流头的索引
type SubgroupKey struct {
	GroupID    moq.GroupID
	SubgroupID moq.SubgroupID
}

// Object 缓存中的对象，CacheID在所属存储内单调递增
type Object struct {
	CacheID uint64
	moq.Object
}

type entry struct {
	preference      moq.ForwardingPreference
	trackHeader     *message.StreamHeaderTrack
	subgroupHeaders map[SubgroupKey]*message.StreamHeaderSubgroup
	store           *ttlStore
}

// Storage 对象缓存的所有者
type Storage struct {
	ops      chan func()
	done     chan struct{}
	capacity int

	entries map[Key]*entry // 只被所有者协程访问
}

// NewStorage 创建并启动缓存所有者协程
// capacity限制每个键可驻留的对象数，0表示只由TTL决定
func NewStorage(capacity int) *Storage {
	s := &Storage{
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		capacity: capacity,
		entries:  make(map[Key]*entry),
	}
	go s.run()
	return s
}

func (s *Storage) run() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// Close 停止所有者协程
func (s *Storage) Close() {
	close(s.done)
}

func (s *Storage) do(ctx context.Context, op func()) error {
	reply := make(chan struct{})
	wrapped := func() {
		op()
		close(reply)
	}
	select {
	case s.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("cache storage is closed")
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("cache storage is closed")
	}
}

// SetSubscription 创建缓存条目并固定其转发形态
// 对同一键以不同形态重复调用属协议违规，轨道的形态由第一个对象确定后不可更改
func (s *Storage) SetSubscription(ctx context.Context, key Key, preference moq.ForwardingPreference) error {
	var result error
	err := s.do(ctx, func() {
		if e, ok := s.entries[key]; ok {
			if e.preference != preference {
				result = fmt.Errorf("forwarding preference for (%d,%d) is already %s: %w",
					key.SessionID, key.SubscribeID, e.preference, moq.ErrProtocolViolation)
			}
			return
		}
		s.entries[key] = &entry{
			preference:      preference,
			subgroupHeaders: make(map[SubgroupKey]*message.StreamHeaderSubgroup),
		}
		logger.DebugF("Cache entry (%d,%d) created with preference %s", key.SessionID, key.SubscribeID, preference)
	})
	if err != nil {
		return err
	}
	return result
}

// Preference 返回缓存条目的转发形态
func (s *Storage) Preference(ctx context.Context, key Key) (moq.ForwardingPreference, error) {
	var (
		preference moq.ForwardingPreference
		result     error
	)
	err := s.do(ctx, func() {
		e, ok := s.entries[key]
		if !ok {
			result = fmt.Errorf("cache entry (%d,%d): %w", key.SessionID, key.SubscribeID, moq.ErrNotFound)
			return
		}
		preference = e.preference
	})
	if err != nil {
		return 0, err
	}
	return preference, result
}

// InsertObject 分配下一个缓存ID并存入对象，对象在ttl之后过期
// 每个键的TTL由首次插入时的ttl固定
func (s *Storage) InsertObject(ctx context.Context, key Key, object moq.Object, ttl time.Duration) (uint64, error) {
	var (
		cacheID uint64
		result  error
	)
	err := s.do(ctx, func() {
		e, ok := s.entries[key]
		if !ok {
			result = fmt.Errorf("cache entry (%d,%d): %w", key.SessionID, key.SubscribeID, moq.ErrNotFound)
			return
		}
		if e.store == nil {
			e.store = newTTLStore(s.capacity, ttl)
		}
		cacheID = e.store.insert(object)
	})
	if err != nil {
		return 0, err
	}
	return cacheID, result
}

func (s *Storage) query(ctx context.Context, key Key, fn func(*ttlStore) (Object, bool)) (Object, error) {
	var (
		object Object
		result error
	)
	err := s.do(ctx, func() {
		e, ok := s.entries[key]
		if !ok || e.store == nil {
			result = fmt.Errorf("cache entry (%d,%d): %w", key.SessionID, key.SubscribeID, moq.ErrNotFound)
			return
		}
		found, ok := fn(e.store)
		if !ok {
			result = moq.ErrNotFound
			return
		}
		object = found
	})
	if err != nil {
		return Object{}, err
	}
	return object, result
}

// GetAbsolute 按(组,对象)精确查找
func (s *Storage) GetAbsolute(ctx context.Context, key Key, group moq.GroupID, object moq.ObjectID) (Object, error) {
	return s.query(ctx, key, func(store *ttlStore) (Object, bool) {
		return store.absolute(group, object)
	})
}

// GetNext 返回缓存ID恰好大一的对象，即插入顺序上的后继
// 刻意不按组/对象编号寻找后继，订阅者续传时无须重建编号顺序
func (s *Storage) GetNext(ctx context.Context, key Key, cacheID uint64) (Object, error) {
	return s.query(ctx, key, func(store *ttlStore) (Object, bool) {
		return store.byCacheID(cacheID + 1)
	})
}

// GetLatestObject 返回缓存ID最大的在存对象
func (s *Storage) GetLatestObject(ctx context.Context, key Key) (Object, error) {
	return s.query(ctx, key, func(store *ttlStore) (Object, bool) {
		return store.latestObject()
	})
}

// GetLatestGroup 返回最新组的第一个对象
// 组号取最大，对象号取组内最小，对象号并列时较早插入者优先
func (s *Storage) GetLatestGroup(ctx context.Context, key Key) (Object, error) {
	return s.query(ctx, key, func(store *ttlStore) (Object, bool) {
		return store.latestGroup()
	})
}

// GetLargestGroupID 返回在存对象中最大的组号，用于TRACK_STATUS类查询
func (s *Storage) GetLargestGroupID(ctx context.Context, key Key) (moq.GroupID, error) {
	object, err := s.GetLatestGroup(ctx, key)
	if err != nil {
		return 0, err
	}
	return object.GroupID, nil
}

// GetLargestObjectIDWithinLargestGroup 返回最大组内最大的对象号
func (s *Storage) GetLargestObjectIDWithinLargestGroup(ctx context.Context, key Key) (moq.ObjectID, error) {
	var (
		objectID moq.ObjectID
		result   error
	)
	err := s.do(ctx, func() {
		e, ok := s.entries[key]
		if !ok || e.store == nil {
			result = fmt.Errorf("cache entry (%d,%d): %w", key.SessionID, key.SubscribeID, moq.ErrNotFound)
			return
		}
		id, ok := e.store.largestObjectInLargestGroup()
		if !ok {
			result = moq.ErrNotFound
			return
		}
		objectID = id
	})
	if err != nil {
		return 0, err
	}
	return objectID, result
}

// SetTrackHeader 记录每轨道流的流头，转发时原样重放给下游
func (s *Storage) SetTrackHeader(ctx context.Context, key Key, header *message.StreamHeaderTrack) error {
	return s.do(ctx, func() {
		if e, ok := s.entries[key]; ok {
			e.trackHeader = header
		}
	})
}

// GetTrackHeader 返回每轨道流的流头
func (s *Storage) GetTrackHeader(ctx context.Context, key Key) (*message.StreamHeaderTrack, error) {
	var (
		header *message.StreamHeaderTrack
		result error
	)
	err := s.do(ctx, func() {
		e, ok := s.entries[key]
		if !ok || e.trackHeader == nil {
			result = fmt.Errorf("track header (%d,%d): %w", key.SessionID, key.SubscribeID, moq.ErrNotFound)
			return
		}
		header = e.trackHeader
	})
	if err != nil {
		return nil, err
	}
	return header, result
}

// SetSubgroupHeader 记录每子组流的流头
func (s *Storage) SetSubgroupHeader(ctx context.Context, key Key, sub SubgroupKey, header *message.StreamHeaderSubgroup) error {
	return s.do(ctx, func() {
		if e, ok := s.entries[key]; ok {
			e.subgroupHeaders[sub] = header
		}
	})
}

// GetSubgroupHeader 返回每子组流的流头
func (s *Storage) GetSubgroupHeader(ctx context.Context, key Key, sub SubgroupKey) (*message.StreamHeaderSubgroup, error) {
	var (
		header *message.StreamHeaderSubgroup
		result error
	)
	err := s.do(ctx, func() {
		e, ok := s.entries[key]
		if !ok {
			result = fmt.Errorf("cache entry (%d,%d): %w", key.SessionID, key.SubscribeID, moq.ErrNotFound)
			return
		}
		h, ok := e.subgroupHeaders[sub]
		if !ok {
			result = fmt.Errorf("subgroup header (%d,%d): %w", sub.GroupID, sub.SubgroupID, moq.ErrNotFound)
			return
		}
		header = h
	})
	if err != nil {
		return nil, err
	}
	return header, result
}

// DeleteClient 清除会话名下的全部缓存条目，断连时调用
func (s *Storage) DeleteClient(ctx context.Context, session moq.SessionID) error {
	return s.do(ctx, func() {
		for key := range s.entries {
			if key.SessionID == session {
				delete(s.entries, key)
			}
		}
		logger.DebugF("Cache entries of session %d purged", session)
	})
}
