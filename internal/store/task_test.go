package store

import (
	"testing"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

func TestTaskCreateDefaults(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	u := createTestUser(t, db, "alice@example.com")

	task, err := ts.Create(&model.Task{UserID: u.ID, Title: "Read chapter 3"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Priority != model.PriorityMedium {
		t.Errorf("priority = %q, want %q", task.Priority, model.PriorityMedium)
	}
	if task.Status != model.StatusPending {
		t.Errorf("status = %q, want %q", task.Status, model.StatusPending)
	}
	if task.Source != model.SourceManual {
		t.Errorf("source = %q, want %q", task.Source, model.SourceManual)
	}
	if task.Tags == nil || len(task.Tags) != 0 {
		t.Errorf("tags = %v, want empty slice", task.Tags)
	}
}

func TestTaskRejectsEmptyTitle(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	u := createTestUser(t, db, "alice@example.com")

	if _, err := ts.Create(&model.Task{UserID: u.ID}); err == nil {
		t.Error("expected error for empty title")
	}
}

func TestTaskOwnership(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	task, _ := ts.Create(&model.Task{UserID: alice.ID, Title: "Private"})

	got, err := ts.Get(bob.ID, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected nil when reading another user's task")
	}

	ok, err := ts.Delete(bob.ID, task.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok {
		t.Error("expected delete by another user to report false")
	}

	list, _ := ts.List(bob.ID, TaskFilter{})
	if len(list) != 0 {
		t.Errorf("bob's list = %d tasks, want 0", len(list))
	}
}

func TestTaskStatusCompletedAt(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	u := createTestUser(t, db, "alice@example.com")
	task, _ := ts.Create(&model.Task{UserID: u.ID, Title: "Essay"})

	done, err := ts.SetStatus(u.ID, task.ID, model.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	reopened, err := ts.SetStatus(u.ID, task.ID, model.StatusPending)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Errorf("completed_at = %v after reopen, want nil", reopened.CompletedAt)
	}

	missing, err := ts.SetStatus(u.ID, 9999, model.StatusCompleted)
	if err != nil {
		t.Fatalf("set status missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing task")
	}
}

func TestTaskTagsAndFilter(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	tags := NewTagStore(db)
	u := createTestUser(t, db, "alice@example.com")

	ids, err := tags.Ensure(u.ID, []string{"math", " Physics ", ""})
	if err != nil {
		t.Fatalf("ensure tags: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ensure returned %d ids, want 2", len(ids))
	}
	again, _ := tags.Ensure(u.ID, []string{"MATH"})
	if len(again) != 1 || again[0] != ids[0] {
		t.Errorf("ensure MATH = %v, want [%d]", again, ids[0])
	}

	a, _ := ts.Create(&model.Task{UserID: u.ID, Title: "Homework", Priority: model.PriorityHigh}, ids...)
	ts.Create(&model.Task{UserID: u.ID, Title: "Laundry", Priority: model.PriorityLow})

	if len(a.Tags) != 2 {
		t.Fatalf("tags = %d, want 2", len(a.Tags))
	}
	if a.Tags[0].Name != "Physics" || a.Tags[1].Name != "math" {
		t.Errorf("tag names = %q, %q", a.Tags[0].Name, a.Tags[1].Name)
	}

	high, err := ts.List(u.ID, TaskFilter{Priority: model.PriorityHigh})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(high) != 1 || high[0].ID != a.ID {
		t.Fatalf("high priority = %+v, want task %d", high, a.ID)
	}
	if len(high[0].Tags) != 2 {
		t.Errorf("listed task tags = %d, want 2", len(high[0].Tags))
	}

	pending, _ := TasksByStatus(ts, u.ID, model.StatusPending)
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestTaskMoodleUIDUnique(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	uid := "event-1@moodle"

	if _, err := ts.Create(&model.Task{UserID: alice.ID, Title: "Quiz", MoodleUID: &uid, Source: model.SourceMoodle}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ts.Create(&model.Task{UserID: alice.ID, Title: "Quiz again", MoodleUID: &uid}); err == nil {
		t.Error("expected duplicate moodle uid to fail for the same user")
	}
	if _, err := ts.Create(&model.Task{UserID: bob.ID, Title: "Quiz", MoodleUID: &uid}); err != nil {
		t.Errorf("same uid for another user: %v", err)
	}

	found, err := TaskByMoodleUID(ts, alice.ID, uid)
	if err != nil {
		t.Fatalf("find by uid: %v", err)
	}
	if found == nil || found.Title != "Quiz" {
		t.Fatalf("find by uid = %+v", found)
	}

	uids, err := MoodleUIDs(ts, alice.ID)
	if err != nil {
		t.Fatalf("moodle uids: %v", err)
	}
	if !uids[uid] || len(uids) != 1 {
		t.Errorf("uids = %v", uids)
	}
}

func TestTasksDueBetween(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	u := createTestUser(t, db, "alice@example.com")

	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	in := day.Add(10 * time.Hour)
	out := day.Add(30 * time.Hour)
	ts.Create(&model.Task{UserID: u.ID, Title: "In", DueDate: &in})
	ts.Create(&model.Task{UserID: u.ID, Title: "Out", DueDate: &out})
	ts.Create(&model.Task{UserID: u.ID, Title: "None"})

	tasks, err := TasksDueBetween(ts, u.ID, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("due between: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "In" {
		t.Fatalf("due between = %+v, want only In", tasks)
	}
	if !tasks[0].DueDate.Equal(in) {
		t.Errorf("due = %v, want %v", tasks[0].DueDate, in)
	}

	all, _ := ts.List(u.ID, TaskFilter{})
	if all[len(all)-1].Title != "None" {
		t.Errorf("tasks without due date should sort last, got %q", all[len(all)-1].Title)
	}
}
