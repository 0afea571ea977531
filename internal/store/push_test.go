package store

import (
	"testing"

	"github.com/dukerupert/tareas/internal/model"
)

func TestPushSubscribeUpsert(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	u := createTestUser(t, db, "alice@example.com")

	first, err := ps.Subscribe(u.ID, "https://push.example.com/abc", "key1", "auth1", "Laptop")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := ps.Subscribe(u.ID, "https://push.example.com/abc", "key2", "auth2", "Laptop")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("resubscribe id = %d, want %d", second.ID, first.ID)
	}
	if second.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want key2", second.P256dhKey)
	}

	subs, _ := ps.ListByUser(u.ID)
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}

	if err := ps.DeleteByEndpoint("https://push.example.com/abc"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, _ = ps.ListByUser(u.ID)
	if len(subs) != 0 {
		t.Errorf("subscriptions after delete = %d, want 0", len(subs))
	}
}

func TestPushRecordSent(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	u := createTestUser(t, db, "alice@example.com")

	ok, err := ps.RecordSent(u.ID, model.ReminderTaskDue, "42")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !ok {
		t.Error("first record should claim the reminder")
	}
	ok, _ = ps.RecordSent(u.ID, model.ReminderTaskDue, "42")
	if ok {
		t.Error("second record should report already sent")
	}
}
