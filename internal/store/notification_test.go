package store

import (
	"testing"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

func TestNotificationActiveAndDismiss(t *testing.T) {
	db := setupTestDB(t)
	ns := NewNotificationStore(db)
	u := createTestUser(t, db, "alice@example.com")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	keep, _ := ns.Add(&model.Notification{UserID: u.ID, Message: "synced", Kind: model.KindSuccess, ExpiresAt: &future})
	ns.Add(&model.Notification{UserID: u.ID, Message: "old", Kind: model.KindInfo, ExpiresAt: &past})
	sticky, _ := ns.Add(&model.Notification{UserID: u.ID, Message: "sticky", Kind: model.KindWarning})

	active, err := ns.Active(u.ID, now)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}

	ok, err := ns.Dismiss(u.ID, sticky.ID, now)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if !ok {
		t.Error("expected dismiss to report true")
	}
	ok, _ = ns.Dismiss(u.ID, sticky.ID, now)
	if ok {
		t.Error("second dismiss should report false")
	}

	active, _ = ns.Active(u.ID, now)
	if len(active) != 1 || active[0].ID != keep.ID {
		t.Errorf("active after dismiss = %+v", active)
	}

	n, err := ns.Prune(now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
}
