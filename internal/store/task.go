package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

var taskTable = Table[model.Task]{
	Name:  "tasks",
	Owner: "user_id",
	Order: "due_date IS NULL, due_date, id",
	Select: []string{
		"id", "user_id", "category_id", "title", "description", "priority", "status",
		"due_date", "completed_at", "moodle_uid", "moodle_url", "source", "course_name",
		"created_at", "updated_at",
	},
	Scan: scanTask,
	Writable: []string{
		"category_id", "title", "description", "priority", "status",
		"due_date", "completed_at", "moodle_uid", "moodle_url", "source", "course_name",
	},
	Values: func(t *model.Task) []any {
		return []any{
			nullInt64(t.CategoryID), t.Title, t.Description, string(t.Priority), string(t.Status),
			nullTime(t.DueDate), nullTime(t.CompletedAt), nullString(t.MoodleUID), t.MoodleURL, t.Source, t.CourseName,
		}
	},
	OwnerOf: func(t *model.Task) any { return t.UserID },
	Touch:   true,
}

func scanTask(scanner Scanner) (*model.Task, error) {
	var t model.Task
	var categoryID sql.NullInt64
	var due, completed sql.NullTime
	var moodleUID sql.NullString
	err := scanner.Scan(
		&t.ID, &t.UserID, &categoryID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&due, &completed, &moodleUID, &t.MoodleURL, &t.Source, &t.CourseName,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		t.CategoryID = &categoryID.Int64
	}
	if moodleUID.Valid {
		t.MoodleUID = &moodleUID.String
	}
	t.DueDate = timePtr(due)
	t.CompletedAt = timePtr(completed)
	t.Tags = []model.Tag{}
	return &t, nil
}

// TaskFilter narrows List. Zero values match everything.
type TaskFilter struct {
	Status     model.Status
	Priority   model.Priority
	CategoryID int64
}

type TaskStore struct {
	*Repository[model.Task]
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{Repository: NewRepository(db, taskTable)}
}

// Create fills defaults, inserts the task and attaches the given tags.
func (s *TaskStore) Create(t *model.Task, tagIDs ...int64) (*model.Task, error) {
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if t.Source == "" {
		t.Source = model.SourceManual
	}
	if t.Status == model.StatusCompleted && t.CompletedAt == nil {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}

	created, err := s.Repository.Create(t)
	if err != nil {
		return nil, err
	}
	if len(tagIDs) > 0 {
		if err := s.SetTags(created.ID, tagIDs); err != nil {
			return nil, err
		}
	}
	return s.Get(created.UserID, created.ID)
}

func (s *TaskStore) Get(userID, id int64) (*model.Task, error) {
	t, err := s.FindByID(userID, id)
	if err != nil || t == nil {
		return t, err
	}
	tasks := []model.Task{*t}
	if err := s.loadTags(tasks); err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

func (s *TaskStore) List(userID int64, f TaskFilter) ([]model.Task, error) {
	clause := []string{"user_id = ?"}
	args := []any{userID}
	if f.Status != "" {
		clause = append(clause, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clause = append(clause, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.CategoryID != 0 {
		clause = append(clause, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	tasks, err := s.Where(strings.Join(clause, " AND "), args...)
	if err != nil {
		return nil, err
	}
	if err := s.loadTags(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update rewrites the task. Moving into completed stamps completed_at and
// moving out of it clears it.
func (s *TaskStore) Update(userID, id int64, t *model.Task) (*model.Task, error) {
	switch {
	case t.Status == model.StatusCompleted && t.CompletedAt == nil:
		now := time.Now().UTC()
		t.CompletedAt = &now
	case t.Status != model.StatusCompleted:
		t.CompletedAt = nil
	}
	updated, err := s.Repository.Update(userID, id, t)
	if err != nil || updated == nil {
		return updated, err
	}
	return s.Get(userID, id)
}

// SetStatus loads the task, changes its status and saves it.
func (s *TaskStore) SetStatus(userID, id int64, status model.Status) (*model.Task, error) {
	t, err := s.FindByID(userID, id)
	if err != nil || t == nil {
		return t, err
	}
	if t.Status != status {
		t.CompletedAt = nil
	}
	t.Status = status
	return s.Update(userID, id, t)
}

// SetTags replaces the tags attached to a task.
func (s *TaskStore) SetTags(taskID int64, tagIDs []int64) error {
	tx, err := s.DB().Begin()
	if err != nil {
		return fmt.Errorf("begin set tags: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_tags WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear task tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tagID); err != nil {
			return fmt.Errorf("attach tag %d: %w", tagID, err)
		}
	}
	return tx.Commit()
}

// loadTags fills Tags for every task. It runs after the task rows are closed
// so it works on a single connection.
func (s *TaskStore) loadTags(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	index := make(map[int64]int, len(tasks))
	args := make([]any, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
		args[i] = tasks[i].ID
	}

	rows, err := s.DB().Query(
		`SELECT tt.task_id, t.id, t.user_id, t.name, t.color, t.created_at
		 FROM task_tags tt JOIN tags t ON t.id = tt.tag_id
		 WHERE tt.task_id IN (`+placeholders(len(args))+`) ORDER BY t.name`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("load task tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID int64
		var tag model.Tag
		if err := rows.Scan(&taskID, &tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return fmt.Errorf("scan task tag: %w", err)
		}
		i := index[taskID]
		tasks[i].Tags = append(tasks[i].Tags, tag)
	}
	return rows.Err()
}

// TasksByStatus returns a user's tasks in one status.
func TasksByStatus(q Querier[model.Task], userID int64, status model.Status) ([]model.Task, error) {
	return q.Where(`user_id = ? AND status = ?`, userID, string(status))
}

// TaskByMoodleUID finds the task imported from a calendar event.
func TaskByMoodleUID(q Querier[model.Task], userID int64, uid string) (*model.Task, error) {
	return q.First(`user_id = ? AND moodle_uid = ?`, userID, uid)
}

// TasksDueBetween returns a user's tasks with a due date in [from, to).
func TasksDueBetween(q Querier[model.Task], userID int64, from, to time.Time) ([]model.Task, error) {
	return q.Where(`user_id = ? AND due_date >= ? AND due_date < ?`, userID, from.UTC(), to.UTC())
}

// OpenTasksDueBefore returns open tasks of every user due before t and not
// yet overdue at from.
func OpenTasksDueBefore(q Querier[model.Task], from, t time.Time) ([]model.Task, error) {
	return q.Where(
		`status IN ('pending', 'in_progress') AND due_date >= ? AND due_date < ?`,
		from.UTC(), t.UTC(),
	)
}

// MoodleUIDs returns the calendar UIDs already imported for a user.
func MoodleUIDs(q Querier[model.Task], userID int64) (map[string]bool, error) {
	rows, err := q.DB().Query(`SELECT moodle_uid FROM tasks WHERE user_id = ? AND moodle_uid IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("list moodle uids: %w", err)
	}
	defer rows.Close()

	uids := make(map[string]bool)
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan moodle uid: %w", err)
		}
		uids[uid] = true
	}
	return uids, rows.Err()
}
