package assist

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/tareas/internal/database"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/provider"
	"github.com/dukerupert/tareas/internal/store"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, gemini, groq provider.TextGenerator) (*Service, *model.User) {
	t.Helper()
	db := setupTestDB(t)
	u, err := store.NewUserStore(db).Create("luis@example.com", "Luis", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	s := NewService(db, gemini, groq, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	s.SetLocation(time.UTC)
	return s, u
}

func createTask(t *testing.T, s *Service, task model.Task) *model.Task {
	t.Helper()
	created, err := s.tasks.Create(&task)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return created
}

func at(d time.Duration) *time.Time {
	v := testNow.Add(d)
	return &v
}

type stubGen struct {
	name  string
	text  string
	err   error
	mu    sync.Mutex
	calls []provider.Request
}

func (g *stubGen) Name() string { return g.name }

func (g *stubGen) GenerateText(ctx context.Context, req provider.Request) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	return g.text, g.err
}

func (g *stubGen) called() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *stubGen) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		return ""
	}
	return g.calls[len(g.calls)-1].Prompt
}

func limited(name string) *stubGen {
	return &stubGen{name: name, err: &provider.Error{Provider: name, Kind: provider.KindRateLimited, StatusCode: 429, Err: io.EOF}}
}

func down(name string) *stubGen {
	return &stubGen{name: name, err: &provider.Error{Provider: name, Kind: provider.KindNetwork, Err: io.ErrUnexpectedEOF}}
}
