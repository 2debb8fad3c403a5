package database

import (
	"errors"
	"sync"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
)

type subscriptionKey struct {
	sessionID   uint64
	subscribeID uint64
}

// MemoryStore 数据库不可用时的内存登记表
type MemoryStore struct {
	mu            sync.Mutex
	announcements map[string]*AnnouncementRecord
	subscriptions map[subscriptionKey]*SubscriptionRecord
}

var Store *MemoryStore

func NewMemoryStore() *MemoryStore {
	if Store == nil {
		Store = &MemoryStore{
			announcements: make(map[string]*AnnouncementRecord),
			subscriptions: make(map[subscriptionKey]*SubscriptionRecord),
		}
	}
	return Store
}

func (ms *MemoryStore) GetAnnouncement(namespace string) (*AnnouncementRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	record, ok := ms.announcements[namespace]
	if !ok {
		logger.ErrorF("Announcement does not exist for namespace %s", namespace)
		return nil, errors.New("document does not exist")
	}
	return record, nil
}

func (ms *MemoryStore) SaveAnnouncement(record *AnnouncementRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.announcements[record.Namespace] = record
	return nil
}

func (ms *MemoryStore) DeleteAnnouncement(namespace string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.announcements, namespace)
	return nil
}

func (ms *MemoryStore) SaveSubscription(record *SubscriptionRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.subscriptions[subscriptionKey{record.SessionID, record.SubscribeID}] = record
	return nil
}

func (ms *MemoryStore) DeleteSubscription(sessionID uint64, subscribeID uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.subscriptions, subscriptionKey{sessionID, subscribeID})
	return nil
}

func (ms *MemoryStore) DeleteSessionRecords(sessionID uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for namespace, record := range ms.announcements {
		if record.SessionID == sessionID {
			delete(ms.announcements, namespace)
		}
	}
	for key := range ms.subscriptions {
		if key.sessionID == sessionID {
			delete(ms.subscriptions, key)
		}
	}
	return nil
}
