package study

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/tareas/internal/fallback"
	"github.com/dukerupert/tareas/internal/model"
)

func sampleExam() *model.Exam {
	return &model.Exam{
		ID: "exam-1",
		Questions: []model.Question{
			{ID: 1, Type: "multiple-choice", CorrectAnswer: model.SingleAnswer("2"), Points: 10},
			{ID: 2, Type: "true-false", CorrectAnswer: model.SingleAnswer("true"), Points: 5},
			{ID: 3, Type: "short-answer", CorrectAnswer: model.SingleAnswer("Mitocondria"), Points: 10},
			{ID: 4, Type: "multiple-choice", CorrectAnswer: model.MultiAnswer("a", "c"), Points: 8},
		},
	}
}

func TestScore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		answers     map[int]model.Answer
		score       int
		percentage  int
		correct     int
		incorrect   int
		answered    int
		wantCorrect []bool
	}{
		{
			name: "all correct",
			answers: map[int]model.Answer{
				1: model.SingleAnswer("2"),
				2: model.SingleAnswer("TRUE"),
				3: model.SingleAnswer("mitocondria"),
				4: model.MultiAnswer("c", "a"),
			},
			score: 33, percentage: 100, correct: 4, incorrect: 0, answered: 4,
			wantCorrect: []bool{true, true, true, true},
		},
		{
			name:    "nothing answered",
			answers: map[int]model.Answer{},
			score:   0, percentage: 0, correct: 0, incorrect: 4, answered: 0,
			wantCorrect: []bool{false, false, false, false},
		},
		{
			name: "partial with wrong set size",
			answers: map[int]model.Answer{
				1: model.SingleAnswer("2"),
				3: model.SingleAnswer(""),
				4: model.MultiAnswer("a", "c", "d"),
			},
			score: 10, percentage: 30, correct: 1, incorrect: 3, answered: 3,
			wantCorrect: []bool{true, false, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Score(sampleExam(), tt.answers, now)
			if r.Score != tt.score || r.Percentage != tt.percentage {
				t.Errorf("score = %d (%d%%), want %d (%d%%)", r.Score, r.Percentage, tt.score, tt.percentage)
			}
			if r.CorrectAnswers != tt.correct || r.IncorrectAnswers != tt.incorrect {
				t.Errorf("correct/incorrect = %d/%d, want %d/%d", r.CorrectAnswers, r.IncorrectAnswers, tt.correct, tt.incorrect)
			}
			if r.AnsweredQuestions != tt.answered {
				t.Errorf("answered = %d, want %d", r.AnsweredQuestions, tt.answered)
			}
			if len(r.Details) != 4 {
				t.Fatalf("details = %d, want 4", len(r.Details))
			}
			for i, d := range r.Details {
				if d.IsCorrect != tt.wantCorrect[i] {
					t.Errorf("question %d correct = %v, want %v", d.QuestionID, d.IsCorrect, tt.wantCorrect[i])
				}
				if !d.IsCorrect && d.Points != 0 {
					t.Errorf("question %d points = %d, want 0", d.QuestionID, d.Points)
				}
			}
			if !r.CompletedAt.Equal(now) {
				t.Errorf("completed_at = %v, want %v", r.CompletedAt, now)
			}
		})
	}
}

func TestScoreEmptyExam(t *testing.T) {
	r := Score(&model.Exam{ID: "x"}, map[int]model.Answer{1: model.SingleAnswer("a")}, time.Now())
	if r.Percentage != 0 || r.Score != 0 {
		t.Errorf("result = %+v, want zero score", r)
	}
}

const examJSON = `Aquí está el examen:
{"questions": [
 {"id": 1, "type": "multiple-choice", "question": "¿Qué produce la fotosíntesis?", "options": ["CO2", "Oxígeno", "Agua", "Sal"], "correctAnswer": 1, "explanation": "Libera oxígeno", "difficulty": "easy", "points": 6},
 {"id": 1, "type": "true-false", "question": "Las plantas respiran", "correctAnswer": true, "explanation": "Sí"},
 {"question": "Nombra el pigmento verde", "correctAnswer": "clorofila", "points": 12}
]}`

func TestGenerateExam(t *testing.T) {
	ollama := down("ollama")
	groq := &stubGen{name: "groq", text: examJSON}
	s, user := newTestService(t, Providers{Groq: groq, Ollama: ollama})
	s.newID = func() string { return "exam-uuid" }

	exam, err := s.GenerateExam(context.Background(), user.ID, ExamParams{Topic: " Fotosíntesis ", Content: "texto", Difficulty: "bogus"})
	if err != nil {
		t.Fatalf("GenerateExam: %v", err)
	}
	if ollama.called() != 1 || groq.called() != 1 {
		t.Errorf("calls ollama=%d groq=%d, want 1 each", ollama.called(), groq.called())
	}
	if !strings.Contains(groq.calls[0].Prompt, "Genera 10 preguntas") {
		t.Errorf("prompt does not ask for the default count:\n%s", groq.calls[0].Prompt)
	}
	if !strings.Contains(groq.calls[0].Prompt, `"difficulty": "medium"`) {
		t.Error("prompt does not carry the default difficulty")
	}

	if exam.ID != "exam-uuid" || exam.Topic != "Fotosíntesis" || exam.Source != model.StudyFree {
		t.Errorf("exam = %+v", exam)
	}
	if len(exam.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(exam.Questions))
	}
	ids := map[int]bool{}
	for _, q := range exam.Questions {
		if ids[q.ID] {
			t.Errorf("duplicate question id %d", q.ID)
		}
		ids[q.ID] = true
	}
	if exam.Questions[1].Points != 10 || exam.Questions[1].Difficulty != "medium" {
		t.Errorf("defaults not applied: %+v", exam.Questions[1])
	}
	if exam.Questions[2].Type != "short-answer" {
		t.Errorf("type = %q, want short-answer", exam.Questions[2].Type)
	}
	if exam.TotalPoints != 28 {
		t.Errorf("total points = %d, want 28", exam.TotalPoints)
	}
	if exam.TimeLimit != 6 {
		t.Errorf("time limit = %d, want 6", exam.TimeLimit)
	}

	stored, err := s.Exams(user.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("Exams = %v, %v", stored, err)
	}
	if stored[0].Questions[0].CorrectAnswer.String() != "1" {
		t.Errorf("stored answer = %q, want %q", stored[0].Questions[0].CorrectAnswer.String(), "1")
	}
}

func TestGenerateExamUnusable(t *testing.T) {
	s, user := newTestService(t, Providers{Ollama: &stubGen{name: "ollama", text: "Lo siento, no puedo."}})
	_, err := s.GenerateExam(context.Background(), user.ID, ExamParams{Topic: "x"})
	if !errors.Is(err, ErrNoQuestions) {
		t.Errorf("err = %v, want ErrNoQuestions", err)
	}
}

func TestGenerateExamExhausted(t *testing.T) {
	s, user := newTestService(t, Providers{Ollama: down("ollama"), Groq: limited("groq")})
	_, err := s.GenerateExam(context.Background(), user.ID, ExamParams{Topic: "x"})
	var ex *fallback.ExhaustedError
	if !errors.As(err, &ex) {
		t.Errorf("err = %v, want *fallback.ExhaustedError", err)
	}
}

func TestSubmitExamAnswers(t *testing.T) {
	s, user := newTestService(t, Providers{Ollama: &stubGen{name: "ollama", text: examJSON}})
	exam, err := s.GenerateExam(context.Background(), user.ID, ExamParams{Topic: "Plantas"})
	if err != nil {
		t.Fatalf("GenerateExam: %v", err)
	}

	answers := map[int]model.Answer{
		exam.Questions[0].ID: model.SingleAnswer("1"),
		exam.Questions[2].ID: model.SingleAnswer("Clorofila"),
	}
	r, err := s.SubmitExamAnswers(context.Background(), user.ID, exam.ID, answers)
	if err != nil {
		t.Fatalf("SubmitExamAnswers: %v", err)
	}
	if r.Score != 18 || r.CorrectAnswers != 2 || r.IncorrectAnswers != 1 || r.AnsweredQuestions != 2 {
		t.Errorf("result = %+v", r)
	}
	if r.Percentage != 64 {
		t.Errorf("percentage = %d, want 64", r.Percentage)
	}

	results, err := s.ExamResults(user.ID, 0)
	if err != nil || len(results) != 1 || results[0].ExamID != exam.ID {
		t.Errorf("ExamResults = %+v, %v", results, err)
	}

	if _, err := s.SubmitExamAnswers(context.Background(), user.ID, "missing", answers); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("err = %v, want ErrExamNotFound", err)
	}
}
