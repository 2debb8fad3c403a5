package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
)

// ttlStore 单个缓存键的时限存储
// 对象按插入顺序获得单调递增的缓存ID，过期由expirable LRU在访问时剔除，
// 峰值内存只受插入速率乘以TTL约束
type ttlStore struct {
	entries *expirable.LRU[uint64, Object]
	nextID  uint64
}

func newTTLStore(capacity int, ttl time.Duration) *ttlStore {
	return &ttlStore{
		entries: expirable.NewLRU[uint64, Object](capacity, nil, ttl),
	}
}

func (ts *ttlStore) insert(object moq.Object) uint64 {
	id := ts.nextID
	ts.nextID++
	ts.entries.Add(id, Object{CacheID: id, Object: object})
	return id
}

func (ts *ttlStore) byCacheID(id uint64) (Object, bool) {
	// Peek不触碰LRU的新旧顺序，保证Keys()始终是插入顺序
	return ts.entries.Peek(id)
}

// scan 按缓存ID从小到大遍历在存对象
func (ts *ttlStore) scan(fn func(Object) bool) {
	for _, id := range ts.entries.Keys() {
		object, ok := ts.entries.Peek(id)
		if !ok {
			continue
		}
		if !fn(object) {
			return
		}
	}
}

func (ts *ttlStore) absolute(group moq.GroupID, objectID moq.ObjectID) (Object, bool) {
	var (
		found Object
		ok    bool
	)
	ts.scan(func(o Object) bool {
		if o.GroupID == group && o.ObjectID == objectID {
			found = o
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

func (ts *ttlStore) latestObject() (Object, bool) {
	var (
		found Object
		ok    bool
	)
	ts.scan(func(o Object) bool {
		if !ok || o.CacheID > found.CacheID {
			found = o
			ok = true
		}
		return true
	})
	return found, ok
}

// latestGroup 最新组的第一个对象：组号最大，对象号最小，并列时缓存ID较小者胜出
func (ts *ttlStore) latestGroup() (Object, bool) {
	var (
		found Object
		ok    bool
	)
	ts.scan(func(o Object) bool {
		switch {
		case !ok:
			found, ok = o, true
		case o.GroupID > found.GroupID:
			found = o
		case o.GroupID == found.GroupID && o.ObjectID < found.ObjectID:
			found = o
		case o.GroupID == found.GroupID && o.ObjectID == found.ObjectID && o.CacheID < found.CacheID:
			found = o
		}
		return true
	})
	return found, ok
}

func (ts *ttlStore) largestObjectInLargestGroup() (moq.ObjectID, bool) {
	var (
		largestGroup moq.GroupID
		largest      moq.ObjectID
		ok           bool
	)
	ts.scan(func(o Object) bool {
		if !ok || o.GroupID > largestGroup {
			largestGroup = o.GroupID
			largest = o.ObjectID
			ok = true
			return true
		}
		if o.GroupID == largestGroup && o.ObjectID > largest {
			largest = o.ObjectID
		}
		return true
	})
	return largest, ok
}
