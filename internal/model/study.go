package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Study session types.
const (
	StudyFree     = "free"
	StudyDocument = "pdf"
)

type StudySession struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Type        string    `json:"type"`
	Topic       string    `json:"topic"`
	Content     string    `json:"content"`
	DocumentKey string    `json:"document_key"`
	UsesRAG     bool      `json:"uses_rag"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

type DocumentChunk struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	SessionID    int64     `json:"session_id"`
	DocumentName string    `json:"document_name"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"-"`
	TokenCount   int       `json:"token_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Exam struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	Topic       string     `json:"topic"`
	Source      string     `json:"source"`
	Questions   []Question `json:"questions"`
	TotalPoints int        `json:"total_points"`
	TimeLimit   int        `json:"time_limit"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Question keeps the camelCase field names models are prompted to emit.
type Question struct {
	ID            int      `json:"id"`
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer Answer   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
	Points        int      `json:"points"`
}

type ExamResult struct {
	ID                int64          `json:"id"`
	ExamID            string         `json:"exam_id"`
	UserID            int64          `json:"user_id"`
	Score             int            `json:"score"`
	Percentage        int            `json:"percentage"`
	AnsweredQuestions int            `json:"answered_questions"`
	CorrectAnswers    int            `json:"correct_answers"`
	IncorrectAnswers  int            `json:"incorrect_answers"`
	Details           []ResultDetail `json:"details"`
	CompletedAt       time.Time      `json:"completed_at"`
}

type ResultDetail struct {
	QuestionID    int    `json:"question_id"`
	UserAnswer    Answer `json:"user_answer"`
	CorrectAnswer Answer `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Points        int    `json:"points"`
}

// Answer is either a single value or a set of values. Scalars of any JSON
// type are kept in their text form.
type Answer struct {
	Values []string
	Multi  bool
}

func SingleAnswer(v string) Answer { return Answer{Values: []string{v}} }

func MultiAnswer(vs ...string) Answer {
	if vs == nil {
		vs = []string{}
	}
	return Answer{Values: vs, Multi: true}
}

// Empty reports whether no answer was given.
func (a Answer) Empty() bool {
	if a.Multi {
		return len(a.Values) == 0
	}
	return len(a.Values) == 0 || a.Values[0] == ""
}

func (a Answer) String() string {
	if len(a.Values) == 0 {
		return ""
	}
	if a.Multi {
		return fmt.Sprint(a.Values)
	}
	return a.Values[0]
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi {
		vs := a.Values
		if vs == nil {
			vs = []string{}
		}
		return json.Marshal(vs)
	}
	return json.Marshal(a.String())
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*a = Answer{}
	case []any:
		vals := make([]string, 0, len(v))
		for _, x := range v {
			vals = append(vals, scalarText(x))
		}
		*a = Answer{Values: vals, Multi: true}
	default:
		*a = Answer{Values: []string{scalarText(v)}}
	}
	return nil
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
