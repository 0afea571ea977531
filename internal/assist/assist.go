// Package assist implements the task assistant: priority and tag
// suggestions, task expansion, subtasks, daily summaries, conflict
// detection, productivity insights and the chat that can create tasks.
package assist

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/tareas/internal/fallback"
	"github.com/dukerupert/tareas/internal/provider"
	"github.com/dukerupert/tareas/internal/store"
)

var (
	ErrEmptyTitle     = errors.New("task title is required")
	ErrTaskNotFound   = errors.New("task not found")
	ErrEmptyMessage   = errors.New("message is required")
	ErrUnusableAnswer = errors.New("assistant answer could not be used")
)

const dateLayout = "2006-01-02"

type Service struct {
	gemini   provider.TextGenerator
	groq     provider.TextGenerator
	tasks    *store.TaskStore
	tags     *store.TagStore
	subtasks *store.SubtaskStore
	logger   *slog.Logger

	now func() time.Time
	loc *time.Location
}

// NewService wires the assistant to db. Either backend may be nil; the
// chain tries Gemini first and Groq second.
func NewService(db *sql.DB, gemini, groq provider.TextGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gemini:   gemini,
		groq:     groq,
		tasks:    store.NewTaskStore(db),
		tags:     store.NewTagStore(db),
		subtasks: store.NewSubtaskStore(db),
		logger:   logger,
		now:      time.Now,
		loc:      time.Local,
	}
}

// SetLocation sets the zone used to decide what "today" means.
func (s *Service) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) ask(ctx context.Context, capability string, req provider.Request) (string, fallback.Report, error) {
	return fallback.Chain[string]{
		Name:       capability,
		Strategies: fallback.Generators(req, s.gemini, s.groq),
		Logger:     s.logger,
	}.Execute(ctx)
}

func (s *Service) today() (time.Time, time.Time) {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
