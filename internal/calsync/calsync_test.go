package calsync

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/tareas/internal/database"
	"github.com/dukerupert/tareas/internal/feed"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/store"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const moodleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:101@moodle.example.com\r\n" +
	"SUMMARY:Attendance - Lecture 3\r\n" +
	"DTSTART:20250305T140000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:102@moodle.example.com\r\n" +
	"SUMMARY:[Cálculo I] Assignment 2 is due\r\n" +
	"DESCRIPTION:Subir PDF\\, máximo 5 páginas\r\n" +
	"URL:https://moodle.example.com/mod/assign/view.php?id=9\r\n" +
	"CATEGORIES:Cálculo I\r\n" +
	"DTSTART:20250302T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:103@moodle.example.com\r\n" +
	"SUMMARY:Quiz 1\r\n" +
	"CATEGORIES:Quiz\r\n" +
	"DTSTART:20250310\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:104@moodle.example.com\r\n" +
	"DTSTART:20250310\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type fakeFetcher struct {
	body  string
	err   error
	calls []feed.Strategy
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, strategy feed.Strategy) (*feed.Result, error) {
	f.calls = append(f.calls, strategy)
	if f.err != nil {
		return nil, f.err
	}
	return &feed.Result{Body: []byte(f.body), Strategy: strategy}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []model.NotificationKind
	msgs  []string
}

func (n *recordingNotifier) Publish(userID int64, message string, kind model.NotificationKind, ttl time.Duration) (*model.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	n.msgs = append(n.msgs, message)
	return &model.Notification{UserID: userID, Message: message, Kind: kind}, nil
}

func setup(t *testing.T, f Fetcher) (*Syncer, *sql.DB, *model.User, *recordingNotifier) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	u, err := store.NewUserStore(db).Create("sofia@example.com", "Sofía", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	n := &recordingNotifier{}
	s := NewSyncer(db, f, n, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	return s, db, u, n
}

func TestSyncImportsAssignments(t *testing.T) {
	f := &fakeFetcher{body: moodleFeed}
	s, db, u, n := setup(t, f)
	if _, err := s.SetFeedURL(u.ID, "webcal://moodle.example.com/calendar/export_execute.php?authtoken=x"); err != nil {
		t.Fatalf("SetFeedURL: %v", err)
	}

	report, err := s.Sync(context.Background(), u.ID, "")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Added != 2 || report.Skipped != 0 || report.Ignored != 1 {
		t.Errorf("report = %+v, want 2 added, 1 ignored", report)
	}
	if len(report.Errors) != 1 || report.Errors[0] != "incomplete event: untitled" {
		t.Errorf("errors = %q", report.Errors)
	}
	if report.Strategy != feed.Direct || f.calls[0] != feed.Direct {
		t.Errorf("strategy = %q, want direct by default", report.Strategy)
	}

	var assignment *model.Task
	for i := range report.Tasks {
		if report.Tasks[i].MoodleUID != nil && *report.Tasks[i].MoodleUID == "102@moodle.example.com" {
			assignment = &report.Tasks[i]
		}
	}
	if assignment == nil {
		t.Fatalf("assignment not imported: %+v", report.Tasks)
	}
	if assignment.Title != "Assignment 2" || assignment.CourseName != "Cálculo I" || assignment.Source != model.SourceMoodle {
		t.Errorf("task = %+v", assignment)
	}
	if assignment.Priority != model.PriorityUrgent {
		t.Errorf("priority = %q, want urgent for a 22h deadline", assignment.Priority)
	}
	if !strings.Contains(assignment.Description, "🔗 https://moodle.example.com/mod/assign/view.php?id=9") {
		t.Errorf("description = %q", assignment.Description)
	}

	user, _ := store.NewUserStore(db).GetByID(u.ID)
	if user.LastSyncAt == nil || !user.LastSyncAt.Equal(testNow) {
		t.Errorf("last sync = %v, want %v", user.LastSyncAt, testNow)
	}
	if len(n.kinds) != 1 || n.kinds[0] != model.KindSuccess {
		t.Errorf("notifications = %v", n.kinds)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	s, db, u, n := setup(t, &fakeFetcher{body: moodleFeed})
	if _, err := s.SetFeedURL(u.ID, "https://moodle.example.com/calendar/export.ics"); err != nil {
		t.Fatalf("SetFeedURL: %v", err)
	}

	if _, err := s.Sync(context.Background(), u.ID, feed.Direct); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	report, err := s.Sync(context.Background(), u.ID, feed.Direct)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.Added != 0 || report.Skipped != 2 {
		t.Errorf("second report = %+v, want every event skipped", report)
	}

	tasks, err := store.NewTaskStore(db).List(u.ID, store.TaskFilter{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("tasks = %d, want 2", len(tasks))
	}
	if last := n.kinds[len(n.kinds)-1]; last != model.KindWarning {
		// the feed still carries one incomplete event
		t.Errorf("last notification kind = %q, want warning", last)
	}
}

func TestImportDuplicateUIDsInOneFeed(t *testing.T) {
	s, _, u, _ := setup(t, nil)
	dup := "BEGIN:VEVENT\nUID:same\nSUMMARY:Entrega 1\nDTSTART:20250320T100000Z\nEND:VEVENT\n"

	report, err := s.Import(context.Background(), u.ID, []byte(dup+dup))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Added != 1 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 1 added and 1 skipped", report)
	}
}

func TestSyncFetchFailure(t *testing.T) {
	fetchErr := &feed.FetchError{Strategy: feed.Direct, URL: "https://x.example.com/calendar", Err: errors.New("connection refused")}
	s, _, u, n := setup(t, &fakeFetcher{err: fetchErr})

	if _, err := s.Sync(context.Background(), u.ID, feed.Direct); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if _, err := s.SetFeedURL(u.ID, "https://x.example.com/calendar/export.php"); err != nil {
		t.Fatalf("SetFeedURL: %v", err)
	}

	_, err := s.Sync(context.Background(), u.ID, feed.Direct)
	var fe *feed.FetchError
	if !errors.As(err, &fe) || fe.Strategy != feed.Direct {
		t.Fatalf("err = %v, want *feed.FetchError", err)
	}
	if len(n.kinds) != 1 || n.kinds[0] != model.KindError {
		t.Errorf("notifications = %v, want one error", n.kinds)
	}

	if _, err := s.Sync(context.Background(), u.ID+50, feed.Direct); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestValidateFeedURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://moodle.example.com/calendar/export_execute.php?userid=1&authtoken=a", "https://moodle.example.com/calendar/export_execute.php?userid=1&authtoken=a", true},
		{" webcal://cal.example.com/feed.ics ", "https://cal.example.com/feed.ics", true},
		{"http://example.com/ical/1", "http://example.com/ical/1", true},
		{"https://example.com/feed", "", false},
		{"ftp://example.com/calendar.ics", "", false},
		{"calendar.ics", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ValidateFeedURL(tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ValidateFeedURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidFeedURL) {
			t.Errorf("ValidateFeedURL(%q) err = %v, want ErrInvalidFeedURL", tt.in, err)
		}
	}
}

func TestClearFeedURL(t *testing.T) {
	s, _, u, _ := setup(t, nil)
	if _, err := s.SetFeedURL(u.ID, "https://m.example.com/calendar.ics"); err != nil {
		t.Fatalf("SetFeedURL: %v", err)
	}
	user, err := s.ClearFeedURL(u.ID)
	if err != nil {
		t.Fatalf("ClearFeedURL: %v", err)
	}
	if user.MoodleICalURL != "" {
		t.Errorf("url = %q, want cleared", user.MoodleICalURL)
	}
	if _, err := s.SetFeedURL(u.ID, "nope"); !errors.Is(err, ErrInvalidFeedURL) {
		t.Errorf("err = %v, want ErrInvalidFeedURL", err)
	}
}

func TestSyncAll(t *testing.T) {
	f := &fakeFetcher{body: moodleFeed}
	s, db, u, _ := setup(t, f)
	other, err := store.NewUserStore(db).Create("leo@example.com", "Leo", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.SetFeedURL(u.ID, "https://m.example.com/calendar.ics"); err != nil {
		t.Fatalf("SetFeedURL: %v", err)
	}

	s.SyncAll(context.Background())
	if len(f.calls) != 1 {
		t.Errorf("fetches = %d, want 1 (only users with a feed)", len(f.calls))
	}
	tasks, _ := store.NewTaskStore(db).List(other.ID, store.TaskFilter{})
	if len(tasks) != 0 {
		t.Errorf("user without feed got %d tasks", len(tasks))
	}
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	s, _, _, _ := setup(t, nil)
	if _, err := NewScheduler(s, "every now and then", time.UTC, nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
	sch, err := NewScheduler(s, "@every 1h", time.UTC, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := sch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sch.Stop()
}
