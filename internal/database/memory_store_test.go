package database

import (
	"testing"
)

func TestMemoryStoreAnnouncementRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	record := NewAnnouncementRecord("live/room1", 7)
	if err := store.SaveAnnouncement(record); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}

	got, err := store.GetAnnouncement("live/room1")
	if err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	if got.SessionID != 7 {
		t.Fatalf("Except session id 7 but got %d", got.SessionID)
	}

	if err := store.DeleteAnnouncement("live/room1"); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}
	if _, err := store.GetAnnouncement("live/room1"); err == nil {
		t.Fatalf("Except error after delete but got nil")
	}
}

func TestMemoryStoreDeleteSessionRecords(t *testing.T) {
	store := NewMemoryStore()
	_ = store.SaveAnnouncement(NewAnnouncementRecord("live/room2", 11))
	_ = store.SaveSubscription(&SubscriptionRecord{SessionID: 11, SubscribeID: 0, Namespace: "live/room2", TrackName: "video"})
	_ = store.SaveSubscription(&SubscriptionRecord{SessionID: 12, SubscribeID: 0, Namespace: "live/room2", TrackName: "video"})

	if err := store.DeleteSessionRecords(11); err != nil {
		t.Fatalf("Except no error but got %v", err)
	}

	if _, err := store.GetAnnouncement("live/room2"); err == nil {
		t.Fatalf("Except announcement of session 11 removed but still present")
	}
	if _, ok := store.subscriptions[subscriptionKey{12, 0}]; !ok {
		t.Fatalf("Except subscription of session 12 kept but it was removed")
	}
}
