package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/tareas/internal/model"
)

// Subtasks are owned by their task; callers check task ownership first.
var subtaskTable = Table[model.Subtask]{
	Name:   "subtasks",
	Owner:  "task_id",
	Order:  "position, id",
	Select: []string{"id", "task_id", "title", "description", "estimated_time", "position", "completed", "created_at"},
	Scan: func(scanner Scanner) (*model.Subtask, error) {
		var st model.Subtask
		err := scanner.Scan(&st.ID, &st.TaskID, &st.Title, &st.Description, &st.EstimatedTime, &st.Position, &st.Completed, &st.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &st, nil
	},
	Writable: []string{"title", "description", "estimated_time", "position", "completed"},
	Values: func(st *model.Subtask) []any {
		return []any{st.Title, st.Description, st.EstimatedTime, st.Position, st.Completed}
	},
	OwnerOf: func(st *model.Subtask) any { return st.TaskID },
}

type SubtaskStore struct {
	*Repository[model.Subtask]
}

func NewSubtaskStore(db *sql.DB) *SubtaskStore {
	return &SubtaskStore{Repository: NewRepository(db, subtaskTable)}
}

// Replace swaps a task's subtasks for the given list in one transaction.
func (s *SubtaskStore) Replace(taskID int64, subtasks []model.Subtask) ([]model.Subtask, error) {
	tx, err := s.DB().Begin()
	if err != nil {
		return nil, fmt.Errorf("begin replace subtasks: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM subtasks WHERE task_id = ?`, taskID); err != nil {
		return nil, fmt.Errorf("clear subtasks: %w", err)
	}
	for i, st := range subtasks {
		pos := st.Position
		if pos == 0 {
			pos = i + 1
		}
		_, err := tx.Exec(
			`INSERT INTO subtasks (task_id, title, description, estimated_time, position) VALUES (?, ?, ?, ?, ?)`,
			taskID, st.Title, st.Description, st.EstimatedTime, pos,
		)
		if err != nil {
			return nil, fmt.Errorf("insert subtask: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit subtasks: %w", err)
	}
	return s.FindAll(taskID)
}
