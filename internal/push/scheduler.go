package push

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/store"
)

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// SchedulerConfig tunes reminder timing.
type SchedulerConfig struct {
	Interval time.Duration
	// Lead is how long before the deadline a task reminder is sent.
	Lead time.Duration
	// DigestHour is the local hour after which the daily digest goes out.
	DigestHour int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Interval: time.Minute, Lead: 24 * time.Hour, DigestHour: 8}
}

// Scheduler periodically sends due-date reminders and a daily digest.
// Each reminder is claimed in the sent ledger before delivery, so it goes
// out at most once even across restarts.
type Scheduler struct {
	mu     sync.RWMutex
	sender Sender
	push   *store.PushStore
	tasks  *store.TaskStore
	cfg    SchedulerConfig
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(db *sql.DB, sender Sender, cfg SchedulerConfig, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Lead <= 0 {
		cfg.Lead = def.Lead
	}
	return &Scheduler{
		sender: sender,
		push:   store.NewPushStore(db),
		tasks:  store.NewTaskStore(db),
		cfg:    cfg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if err := s.remindDue(ctx, now); err != nil {
		s.logger.Warn("due reminders", "error", err)
	}
	if err := s.sendDigests(ctx, now); err != nil {
		s.logger.Warn("daily digest", "error", err)
	}
}

// remindDue notifies owners of open tasks due within the lead window.
func (s *Scheduler) remindDue(ctx context.Context, now time.Time) error {
	tasks, err := store.OpenTasksDueBefore(s.tasks, now, now.Add(s.cfg.Lead))
	if err != nil {
		return err
	}

	var errs error
	for _, t := range tasks {
		refID := fmt.Sprintf("%d@%s", t.ID, t.DueDate.UTC().Format(time.RFC3339))
		claimed, err := s.push.RecordSent(t.UserID, model.ReminderTaskDue, refID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !claimed {
			continue
		}
		payload := Payload{
			Title: "Tarea próxima a vencer",
			Body:  fmt.Sprintf("%s vence el %s", t.Title, t.DueDate.In(s.loc).Format("02/01 15:04")),
			URL:   fmt.Sprintf("/tasks/%d", t.ID),
			Tag:   fmt.Sprintf("task-%d", t.ID),
		}
		errs = multierr.Append(errs, s.notifyUser(ctx, t.UserID, payload))
	}
	return errs
}

// sendDigests sends each user with open tasks due today one summary per day.
func (s *Scheduler) sendDigests(ctx context.Context, now time.Time) error {
	local := now.In(s.loc)
	if local.Hour() < s.cfg.DigestHour {
		return nil
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	tasks, err := store.OpenTasksDueBefore(s.tasks, start, start.AddDate(0, 0, 1))
	if err != nil {
		return err
	}

	counts := make(map[int64]int)
	var users []int64
	for _, t := range tasks {
		if counts[t.UserID] == 0 {
			users = append(users, t.UserID)
		}
		counts[t.UserID]++
	}

	var errs error
	refID := start.Format("2006-01-02")
	for _, userID := range users {
		claimed, err := s.push.RecordSent(userID, model.ReminderDailyDigest, refID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !claimed {
			continue
		}
		body := fmt.Sprintf("Tienes %d tareas para hoy", counts[userID])
		if counts[userID] == 1 {
			body = "Tienes 1 tarea para hoy"
		}
		errs = multierr.Append(errs, s.notifyUser(ctx, userID, Payload{
			Title: "Resumen del día",
			Body:  body,
			URL:   "/",
			Tag:   "daily-digest",
		}))
	}
	return errs
}

// notifyUser fans payload out to every device of the user. Expired
// subscriptions are removed.
func (s *Scheduler) notifyUser(ctx context.Context, userID int64, payload Payload) error {
	subs, err := s.push.ListByUser(userID)
	if err != nil {
		return err
	}

	var errs error
	for i := range subs {
		err := s.sender.Send(ctx, &subs[i], payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			s.logger.Info("removing expired push subscription", "user_id", userID, "subscription_id", subs[i].ID)
			errs = multierr.Append(errs, s.push.DeleteByEndpoint(subs[i].Endpoint))
		default:
			errs = multierr.Append(errs, fmt.Errorf("subscription %d: %w", subs[i].ID, err))
		}
	}
	return errs
}
