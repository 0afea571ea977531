package model

import "time"

// Priority is one of four ordered urgency levels.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities from low (0) to urgent (3). Unknown values rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	}
	return -1
}

func (p Priority) Valid() bool { return p.Rank() >= 0 }

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Task sources.
const (
	SourceManual    = "manual"
	SourceMoodle    = "moodle"
	SourceAssistant = "assistant"
)

type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	CategoryID  *int64     `json:"category_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	CompletedAt *time.Time `json:"completed_at"`
	MoodleUID   *string    `json:"moodle_uid"`
	MoodleURL   string     `json:"moodle_url"`
	Source      string     `json:"source"`
	CourseName  string     `json:"course_name"`
	Tags        []Tag      `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Overdue reports whether the task is past due and still open.
func (t *Task) Overdue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	if t.Status == StatusCompleted || t.Status == StatusCancelled {
		return false
	}
	return t.DueDate.Before(now)
}

type Subtask struct {
	ID            int64     `json:"id"`
	TaskID        int64     `json:"task_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	EstimatedTime string    `json:"estimated_time"`
	Position      int       `json:"position"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"created_at"`
}
