package model

import "time"

type NotificationKind string

const (
	KindSuccess NotificationKind = "success"
	KindError   NotificationKind = "error"
	KindWarning NotificationKind = "warning"
	KindInfo    NotificationKind = "info"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case KindSuccess, KindError, KindWarning, KindInfo:
		return true
	}
	return false
}

type Notification struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Message     string           `json:"message"`
	Kind        NotificationKind `json:"kind"`
	ExpiresAt   *time.Time       `json:"expires_at"`
	DismissedAt *time.Time       `json:"dismissed_at"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Active reports whether the notification should still be shown.
func (n *Notification) Active(now time.Time) bool {
	if n.DismissedAt != nil {
		return false
	}
	return n.ExpiresAt == nil || now.Before(*n.ExpiresAt)
}
