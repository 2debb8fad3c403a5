package database

import "time"

const (
	AnnouncementCollectionName = "announcements"
	SubscriptionCollectionName = "subscriptions"
)

var collectionsList = []string{AnnouncementCollectionName, SubscriptionCollectionName}

// AnnouncementRecord 已公告命名空间的登记记录
type AnnouncementRecord struct {
	Namespace   string    `bson:"namespace"`
	SessionID   uint64    `bson:"session_id"`
	AnnouncedAt time.Time `bson:"announced_at"`
}

// SubscriptionRecord 已激活订阅的登记记录
type SubscriptionRecord struct {
	SessionID   uint64 `bson:"session_id"`
	SubscribeID uint64 `bson:"subscribe_id"`
	Namespace   string `bson:"namespace"`
	TrackName   string `bson:"track_name"`
	TrackAlias  uint64 `bson:"track_alias"`
	Priority    byte   `bson:"priority"`
}

// TrackRegistry 轨道登记表，镜像中继当前的公告和订阅状态供外部查看，
// 登记失败只记日志，绝不影响转发
type TrackRegistry interface {
	GetAnnouncement(namespace string) (*AnnouncementRecord, error)
	SaveAnnouncement(record *AnnouncementRecord) error
	DeleteAnnouncement(namespace string) error
	SaveSubscription(record *SubscriptionRecord) error
	DeleteSubscription(sessionID uint64, subscribeID uint64) error
	DeleteSessionRecords(sessionID uint64) error
}

func NewAnnouncementRecord(namespace string, sessionID uint64) *AnnouncementRecord {
	return &AnnouncementRecord{
		Namespace:   namespace,
		SessionID:   sessionID,
		AnnouncedAt: time.Now(),
	}
}
