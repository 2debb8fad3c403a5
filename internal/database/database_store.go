package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// announcementCacheSize 公告读缓存容量
const announcementCacheSize = 256

// announcementCacheTTL 公告读缓存过期时间
const announcementCacheTTL = time.Minute

type DBStore struct {
	client *mongo.Client
	db     *mongo.Database
	// 公告读缓存，写操作时失效对应条目
	announcementCache *expirable.LRU[string, *AnnouncementRecord]
}

var (
	DbStore             *DBStore
	NamespaceEmptyError = errors.New("namespace is empty")
)

func NewDatabaseStore() *DBStore {
	if DbStore == nil {
		DbStore = &DBStore{
			client:            Client,
			db:                Database,
			announcementCache: expirable.NewLRU[string, *AnnouncementRecord](announcementCacheSize, nil, announcementCacheTTL),
		}
	}
	return DbStore
}

func (ds *DBStore) GetAnnouncement(namespace string) (*AnnouncementRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	if namespace == "" {
		return nil, NamespaceEmptyError
	}

	if record, ok := ds.announcementCache.Get(namespace); ok {
		return record, nil
	}

	filter := bson.D{{Key: "namespace", Value: namespace}}
	var record AnnouncementRecord

	startTime := time.Now()
	err := Database.Collection(AnnouncementCollectionName).FindOne(ctx, filter).Decode(&record)
	logger.DebugF("announcement query cost: %v", time.Since(startTime))

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("unique key conflicts: %w", err)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("document does not exist: %w", err)
		}
		return nil, fmt.Errorf("database operation failed: %w", err)
	}

	ds.announcementCache.Add(namespace, &record)
	return &record, nil
}

func (ds *DBStore) SaveAnnouncement(record *AnnouncementRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	if record.Namespace == "" {
		return NamespaceEmptyError
	}

	filter := bson.D{{Key: "namespace", Value: record.Namespace}}
	opts := options.Replace().SetUpsert(true)

	result, err := Database.Collection(AnnouncementCollectionName).ReplaceOne(ctx, filter, record, opts)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("unique key conflicts: %w", err)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("document does not exist: %w", err)
		}
		return fmt.Errorf("database operation failed: %w", err)
	}

	ds.announcementCache.Remove(record.Namespace)

	logger.InfoF("Announcement saved: namespace=%s, matched=%d, modified=%d, upserted=%v",
		record.Namespace,
		result.MatchedCount,
		result.ModifiedCount,
		result.UpsertedID != nil,
	)

	return nil
}

func (ds *DBStore) DeleteAnnouncement(namespace string) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	if namespace == "" {
		return NamespaceEmptyError
	}

	filter := bson.D{{Key: "namespace", Value: namespace}}
	result, err := Database.Collection(AnnouncementCollectionName).DeleteOne(ctx, filter)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("unique key conflicts: %w", err)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("document does not exist: %w", err)
		}
		return fmt.Errorf("database operation failed: %w", err)
	}

	ds.announcementCache.Remove(namespace)

	logger.InfoF("Announcement deleted: namespace=%s, deleted=%d", namespace, result.DeletedCount)

	return nil
}

func (ds *DBStore) SaveSubscription(record *SubscriptionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	if record.Namespace == "" {
		return NamespaceEmptyError
	}

	filter := bson.D{{Key: "session_id", Value: record.SessionID}, {Key: "subscribe_id", Value: record.SubscribeID}}
	opts := options.Replace().SetUpsert(true)

	result, err := Database.Collection(SubscriptionCollectionName).ReplaceOne(ctx, filter, record, opts)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("unique key conflicts: %w", err)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("document does not exist: %w", err)
		}
		return fmt.Errorf("database operation failed: %w", err)
	}

	logger.InfoF("Subscription saved: session_id=%d, subscribe_id=%d, matched=%d, modified=%d, upserted=%v",
		record.SessionID,
		record.SubscribeID,
		result.MatchedCount,
		result.ModifiedCount,
		result.UpsertedID != nil,
	)

	return nil
}

func (ds *DBStore) DeleteSubscription(sessionID uint64, subscribeID uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "session_id", Value: sessionID}, {Key: "subscribe_id", Value: subscribeID}}
	result, err := Database.Collection(SubscriptionCollectionName).DeleteOne(ctx, filter)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("document does not exist: %w", err)
		}
		return fmt.Errorf("database operation failed: %w", err)
	}

	logger.InfoF("Subscription deleted: session_id=%d, subscribe_id=%d, deleted=%d", sessionID, subscribeID, result.DeletedCount)

	return nil
}

func (ds *DBStore) DeleteSessionRecords(sessionID uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "session_id", Value: sessionID}}

	annResult, err := Database.Collection(AnnouncementCollectionName).DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("database operation failed: %w", err)
	}
	subResult, err := Database.Collection(SubscriptionCollectionName).DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("database operation failed: %w", err)
	}

	ds.announcementCache.Purge()

	logger.InfoF("Session records deleted: session_id=%d, announcements=%d, subscriptions=%d",
		sessionID, annResult.DeletedCount, subResult.DeletedCount)

	return nil
}
