// Package calsync imports calendar feed events as tasks. Imports are
// idempotent: an event whose UID was already imported is skipped.
package calsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/classify"
	"github.com/dukerupert/tareas/internal/feed"
	"github.com/dukerupert/tareas/internal/ical"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/store"
)

var (
	ErrInvalidFeedURL = errors.New("invalid calendar feed url")
	ErrNotConfigured  = errors.New("no calendar feed configured")
	ErrUserNotFound   = errors.New("user not found")
)

// expansionWindow bounds how far ahead recurring events are expanded.
const expansionWindow = 180 * 24 * time.Hour

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, strategy feed.Strategy) (*feed.Result, error)
}

type Notifier interface {
	Publish(userID int64, message string, kind model.NotificationKind, ttl time.Duration) (*model.Notification, error)
}

// Report is the outcome of one import.
type Report struct {
	Added     int           `json:"added"`
	Skipped   int           `json:"skipped"`
	Ignored   int           `json:"ignored"`
	Errors    []string      `json:"errors"`
	Tasks     []model.Task  `json:"tasks"`
	Strategy  feed.Strategy `json:"strategy,omitempty"`
	FromCache bool          `json:"from_cache,omitempty"`
}

type Syncer struct {
	fetcher  Fetcher
	notifier Notifier
	users    *store.UserStore
	tasks    *store.TaskStore
	parser   ical.Parser
	logger   *slog.Logger
	now      func() time.Time
}

// NewSyncer creates a syncer. notifier may be nil.
func NewSyncer(db *sql.DB, fetcher Fetcher, notifier Notifier, loc *time.Location, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		fetcher:  fetcher,
		notifier: notifier,
		users:    store.NewUserStore(db),
		tasks:    store.NewTaskStore(db),
		parser:   ical.Parser{Location: loc},
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateFeedURL checks that raw is an http(s) or webcal URL that looks
// like a calendar export, and returns it normalized to http(s).
func ValidateFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: not a url", ErrInvalidFeedURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "webcal":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidFeedURL, u.Scheme)
	}
	lower := strings.ToLower(raw)
	if !strings.Contains(lower, "calendar") && !strings.Contains(lower, "ical") && !strings.Contains(lower, ".ics") {
		return "", fmt.Errorf("%w: does not look like an iCal feed", ErrInvalidFeedURL)
	}
	return u.String(), nil
}

// SetFeedURL validates and stores the user's calendar feed.
func (s *Syncer) SetFeedURL(userID int64, raw string) (*model.User, error) {
	feedURL, err := ValidateFeedURL(raw)
	if err != nil {
		return nil, err
	}
	return s.users.SetMoodleURL(userID, feedURL)
}

// ClearFeedURL removes the user's calendar feed. Imported tasks stay.
func (s *Syncer) ClearFeedURL(userID int64) (*model.User, error) {
	return s.users.SetMoodleURL(userID, "")
}

// Sync downloads the user's feed with strategy and imports it. Download
// failures are returned as *feed.FetchError so the caller can offer the
// other strategy.
func (s *Syncer) Sync(ctx context.Context, userID int64, strategy feed.Strategy) (*Report, error) {
	u, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if u.MoodleICalURL == "" {
		return nil, ErrNotConfigured
	}
	if strategy == "" {
		strategy = feed.Direct
	}

	res, err := s.fetcher.Fetch(ctx, u.MoodleICalURL, strategy)
	if err != nil {
		s.publish(userID, "No se pudo descargar el calendario de Moodle", model.KindError)
		return nil, err
	}

	report, err := s.importText(userID, string(res.Body))
	if err != nil {
		return nil, err
	}
	report.Strategy = res.Strategy
	report.FromCache = res.FromCache

	if err := s.users.TouchLastSync(userID, s.now()); err != nil {
		s.logger.Warn("record sync time", "user_id", userID, "error", err)
	}
	s.announce(userID, report)
	return report, nil
}

// Import imports an uploaded calendar file.
func (s *Syncer) Import(ctx context.Context, userID int64, body []byte) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report, err := s.importText(userID, string(body))
	if err != nil {
		return nil, err
	}
	s.announce(userID, report)
	return report, nil
}

// SyncAll syncs every user with a feed directly. Failures are logged and
// do not stop the run.
func (s *Syncer) SyncAll(ctx context.Context) {
	users, err := s.users.ListWithFeeds()
	if err != nil {
		s.logger.Error("list users with feeds", "error", err)
		return
	}
	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		report, err := s.Sync(ctx, u.ID, feed.Direct)
		if err != nil {
			s.logger.Warn("scheduled sync failed", "user_id", u.ID, "error", err)
			continue
		}
		s.logger.Info("scheduled sync", "user_id", u.ID, "added", report.Added, "skipped", report.Skipped)
	}
}

func (s *Syncer) importText(userID int64, text string) (*Report, error) {
	now := s.now()
	parsed := s.parser.ParseExpanded(text, now, now.Add(expansionWindow))
	events := classify.Filter(parsed.Events, now)

	report := &Report{
		Ignored: len(parsed.Events) - len(events),
		Errors:  append([]string{}, parsed.Errors...),
		Tasks:   []model.Task{},
	}

	imported, err := store.MoodleUIDs(s.tasks, userID)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if imported[ev.UID] {
			report.Skipped++
			continue
		}
		draft := classify.ToTask(ev, now)
		draft.UserID = userID
		task, err := s.tasks.Create(&draft)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("create task %q: %v", draft.Title, err))
			continue
		}
		imported[ev.UID] = true
		report.Added++
		report.Tasks = append(report.Tasks, *task)
	}

	s.logger.Info("calendar imported",
		"user_id", userID,
		"events", len(parsed.Events),
		"added", report.Added,
		"skipped", report.Skipped,
		"ignored", report.Ignored,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *Syncer) announce(userID int64, r *Report) {
	switch {
	case r.Added > 0:
		s.publish(userID, fmt.Sprintf("Sincronización completa: %d tareas nuevas de Moodle", r.Added), model.KindSuccess)
	case len(r.Errors) > 0:
		s.publish(userID, fmt.Sprintf("Sincronización con %d errores", len(r.Errors)), model.KindWarning)
	default:
		s.publish(userID, "Moodle está al día: no hay tareas nuevas", model.KindInfo)
	}
}

const notificationTTL = 5 * time.Minute

func (s *Syncer) publish(userID int64, message string, kind model.NotificationKind) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Publish(userID, message, kind, notificationTTL); err != nil {
		s.logger.Warn("publish sync notification", "user_id", userID, "error", err)
	}
}
