package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

var examTable = Table[model.Exam]{
	Name:   "exams",
	Owner:  "user_id",
	Order:  "created_at DESC",
	Select: []string{"id", "user_id", "topic", "source", "questions", "total_points", "time_limit", "created_at"},
	Scan: func(scanner Scanner) (*model.Exam, error) {
		var e model.Exam
		var questions string
		err := scanner.Scan(&e.ID, &e.UserID, &e.Topic, &e.Source, &questions, &e.TotalPoints, &e.TimeLimit, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(questions), &e.Questions); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		return &e, nil
	},
	Writable: []string{"topic", "source", "questions", "total_points", "time_limit"},
	Values: func(e *model.Exam) []any {
		questions, _ := json.Marshal(e.Questions)
		return []any{e.Topic, e.Source, string(questions), e.TotalPoints, e.TimeLimit}
	},
	OwnerOf: func(e *model.Exam) any { return e.UserID },
	KeyOf:   func(e *model.Exam) any { return e.ID },
}

// ExamStore holds generated exams and the results of submitting them.
type ExamStore struct {
	*Repository[model.Exam]
}

func NewExamStore(db *sql.DB) *ExamStore {
	return &ExamStore{Repository: NewRepository(db, examTable)}
}

const resultCols = `id, exam_id, user_id, score, percentage, answered_questions, correct_answers, incorrect_answers, details, completed_at`

func scanResult(scanner Scanner) (*model.ExamResult, error) {
	var r model.ExamResult
	var details string
	err := scanner.Scan(&r.ID, &r.ExamID, &r.UserID, &r.Score, &r.Percentage, &r.AnsweredQuestions,
		&r.CorrectAnswers, &r.IncorrectAnswers, &details, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	return &r, nil
}

func (s *ExamStore) AddResult(r *model.ExamResult) (*model.ExamResult, error) {
	details, err := json.Marshal(r.Details)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	completed := r.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	result, err := s.DB().Exec(
		`INSERT INTO exam_results (exam_id, user_id, score, percentage, answered_questions, correct_answers, incorrect_answers, details, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ExamID, r.UserID, r.Score, r.Percentage, r.AnsweredQuestions, r.CorrectAnswers, r.IncorrectAnswers,
		string(details), completed.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert exam result: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.DB().QueryRow(`SELECT `+resultCols+` FROM exam_results WHERE id = ?`, id)
	return scanResult(row)
}

// Results returns a user's most recent results, newest first.
func (s *ExamStore) Results(userID int64, limit int) ([]model.ExamResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB().Query(
		`SELECT `+resultCols+` FROM exam_results WHERE user_id = ? ORDER BY completed_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list exam results: %w", err)
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam result: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}
