package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

var notificationTable = Table[model.Notification]{
	Name:   "notifications",
	Owner:  "user_id",
	Order:  "created_at DESC, id DESC",
	Select: []string{"id", "user_id", "message", "kind", "expires_at", "dismissed_at", "created_at"},
	Scan: func(scanner Scanner) (*model.Notification, error) {
		var n model.Notification
		var expires, dismissed sql.NullTime
		if err := scanner.Scan(&n.ID, &n.UserID, &n.Message, &n.Kind, &expires, &dismissed, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ExpiresAt = timePtr(expires)
		n.DismissedAt = timePtr(dismissed)
		return &n, nil
	},
	Writable: []string{"message", "kind", "expires_at", "dismissed_at"},
	Values: func(n *model.Notification) []any {
		return []any{n.Message, string(n.Kind), nullTime(n.ExpiresAt), nullTime(n.DismissedAt)}
	},
	OwnerOf: func(n *model.Notification) any { return n.UserID },
}

// NotificationStore persists notifications so they survive a reload.
type NotificationStore struct {
	*Repository[model.Notification]
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{Repository: NewRepository(db, notificationTable)}
}

func (s *NotificationStore) Add(n *model.Notification) (*model.Notification, error) {
	return s.Create(n)
}

func (s *NotificationStore) Active(userID int64, now time.Time) ([]model.Notification, error) {
	return s.Where(
		`user_id = ? AND dismissed_at IS NULL AND (expires_at IS NULL OR expires_at > ?)`,
		userID, now.UTC(),
	)
}

// Dismiss marks the notification dismissed and reports whether it existed.
func (s *NotificationStore) Dismiss(userID, id int64, at time.Time) (bool, error) {
	result, err := s.DB().Exec(
		`UPDATE notifications SET dismissed_at = ? WHERE id = ? AND user_id = ? AND dismissed_at IS NULL`,
		at.UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("dismiss notification: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// Prune removes dismissed and expired notifications.
func (s *NotificationStore) Prune(now time.Time) (int64, error) {
	result, err := s.DB().Exec(
		`DELETE FROM notifications WHERE dismissed_at IS NOT NULL OR (expires_at IS NOT NULL AND expires_at <= ?)`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	return result.RowsAffected()
}
