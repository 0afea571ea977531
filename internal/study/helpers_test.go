package study

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

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB) *model.User {
	t.Helper()
	u, err := store.NewUserStore(db).Create("ana@example.com", "Ana", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, p Providers) (*Service, *model.User) {
	t.Helper()
	db := setupTestDB(t)
	s := NewService(db, p, nil, quietLogger())
	s.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	s.indexer.pause = 0
	return s, createTestUser(t, db)
}

// stubGen answers every request with text or err and records prompts.
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

func down(name string) *stubGen {
	return &stubGen{name: name, err: &provider.Error{Provider: name, Kind: provider.KindNetwork, Err: io.ErrUnexpectedEOF}}
}

func limited(name string) *stubGen {
	return &stubGen{name: name, err: &provider.Error{Provider: name, Kind: provider.KindRateLimited, StatusCode: 429, Err: io.EOF}}
}

// funcEmbedder embeds with a function.
type funcEmbedder func(text string) ([]float32, error)

func (f funcEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f(text) }

type memDocs struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (d *memDocs) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.files == nil {
		d.files = make(map[string][]byte)
	}
	d.files[key] = body
	return nil
}
