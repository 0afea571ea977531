// Package notify publishes user-visible notifications. They are stored so
// they survive a reload and pushed to the user's open clients.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/websocket"
)

var (
	ErrNotFound     = errors.New("notification not found")
	ErrEmptyMessage = errors.New("notification message is required")
	ErrInvalidKind  = errors.New("invalid notification kind")
)

// Store persists notifications. store.NotificationStore and MemoryStore
// implement it.
type Store interface {
	Add(n *model.Notification) (*model.Notification, error)
	Active(userID int64, now time.Time) ([]model.Notification, error)
	Dismiss(userID, id int64, at time.Time) (bool, error)
	Prune(now time.Time) (int64, error)
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type Service struct {
	store  Store
	hub    Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the service. hub may be nil.
func NewService(store Store, hub Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hub: hub, logger: logger, now: time.Now}
}

// Publish records a notification for the user. A zero ttl never expires.
func (s *Service) Publish(userID int64, message string, kind model.NotificationKind, ttl time.Duration) (*model.Notification, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if kind == "" {
		kind = model.KindInfo
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	n := &model.Notification{UserID: userID, Message: message, Kind: kind}
	if ttl > 0 {
		exp := s.now().Add(ttl).UTC()
		n.ExpiresAt = &exp
	}
	created, err := s.store.Add(n)
	if err != nil {
		return nil, fmt.Errorf("add notification: %w", err)
	}
	s.broadcast(userID, "created", created.ID, map[string]any{"notification": created})
	return created, nil
}

// Dismiss hides a notification.
func (s *Service) Dismiss(userID, id int64) error {
	ok, err := s.store.Dismiss(userID, id, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.broadcast(userID, "dismissed", id, nil)
	return nil
}

// List returns the user's active notifications, newest first.
func (s *Service) List(userID int64) ([]model.Notification, error) {
	ns, err := s.store.Active(userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if ns == nil {
		ns = []model.Notification{}
	}
	return ns, nil
}

// Prune deletes dismissed and expired notifications.
func (s *Service) Prune() {
	n, err := s.store.Prune(s.now())
	if err != nil {
		s.logger.Error("prune notifications", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("pruned notifications", "count", n)
	}
}

func (s *Service) broadcast(userID int64, action string, id int64, extra map[string]any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(websocket.NewMessage("notification", action, id, extra).To(userID))
}

// MemoryStore keeps notifications in memory.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*model.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]*model.Notification)}
}

func (m *MemoryStore) Add(n *model.Notification) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := *n
	c.ID = m.nextID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.items[c.ID] = &c
	out := c
	return &out, nil
}

func (m *MemoryStore) Active(userID int64, now time.Time) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.items {
		if n.UserID == userID && n.Active(now) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryStore) Dismiss(userID, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID || n.DismissedAt != nil {
		return false, nil
	}
	at = at.UTC()
	n.DismissedAt = &at
	return true, nil
}

func (m *MemoryStore) Prune(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for id, n := range m.items {
		if !n.Active(now) {
			delete(m.items, id)
			pruned++
		}
	}
	return pruned, nil
}
