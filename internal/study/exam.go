package study

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
)

var (
	ErrExamNotFound = errors.New("exam not found")
	ErrNoQuestions  = errors.New("no exam questions could be generated")
)

const (
	defaultQuestionCount = 10
	maxQuestionCount     = 30
	examContentLimit     = 2000
)

// ExamParams describes the exam to generate.
type ExamParams struct {
	Topic         string `json:"topic"`
	Source        string `json:"source"`
	Content       string `json:"content"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"question_count"`
}

func (p *ExamParams) normalize() error {
	p.Topic = strings.TrimSpace(p.Topic)
	if p.Topic == "" {
		return ErrEmptyTopic
	}
	if p.Source != model.StudyDocument {
		p.Source = model.StudyFree
	}
	switch p.Difficulty {
	case "easy", "medium", "hard":
	default:
		p.Difficulty = "medium"
	}
	if p.QuestionCount <= 0 {
		p.QuestionCount = defaultQuestionCount
	}
	p.QuestionCount = min(p.QuestionCount, maxQuestionCount)
	return nil
}

const examSystem = `Eres un generador de exámenes educativos. Creas preguntas claras que cubren distintos aspectos del contenido y respondes solo con JSON.`

func examPrompt(p ExamParams) string {
	content := p.Content
	if r := []rune(content); len(r) > examContentLimit {
		content = string(r[:examContentLimit])
	}
	return fmt.Sprintf(`Genera un examen sobre: %s

CONTENIDO BASE:
%s

Genera %d preguntas con este formato JSON:
{"questions": [{"id": 1, "type": "multiple-choice", "question": "¿Pregunta?", "options": ["A", "B", "C", "D"], "correctAnswer": 0, "explanation": "por qué", "difficulty": "%s", "points": 10}]}

Distribución: 60%% opción múltiple (4 opciones, correctAnswer es el índice), 30%% verdadero/falso (correctAnswer true o false), 10%% respuesta corta.
Puntos por dificultad: easy 5-8, medium 8-12, hard 12-15.`, p.Topic, content, p.QuestionCount, p.Difficulty)
}

type examPayload struct {
	Questions []model.Question `json:"questions"`
}

// GenerateExam writes an exam (Ollama, then Groq) and stores it.
func (s *Service) GenerateExam(ctx context.Context, userID int64, p ExamParams) (*model.Exam, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	req := provider.Request{System: examSystem, Prompt: examPrompt(p), Temperature: 0.7}
	raw, report, err := s.chain(ctx, "generate_exam", req, s.examOrder()...)
	if err != nil {
		return nil, err
	}

	res := normalize.Normalize(raw, examSchema, func(string) examPayload { return examPayload{} })
	if len(res.Value.Questions) == 0 {
		s.logger.Warn("exam response unusable", "provider", report.Provider, "error", res.Err)
		return nil, ErrNoQuestions
	}

	exam := &model.Exam{
		ID:        s.newID(),
		UserID:    userID,
		Topic:     p.Topic,
		Source:    p.Source,
		Questions: tidyQuestions(res.Value.Questions, p.Difficulty),
		CreatedAt: s.now().UTC(),
	}
	for _, q := range exam.Questions {
		exam.TotalPoints += q.Points
	}
	exam.TimeLimit = 2 * len(exam.Questions)

	saved, err := s.exams.Create(exam)
	if err != nil {
		return nil, fmt.Errorf("save exam: %w", err)
	}
	return saved, nil
}

// tidyQuestions fills fields models commonly omit and makes ids unique.
func tidyQuestions(qs []model.Question, difficulty string) []model.Question {
	seen := make(map[int]bool, len(qs))
	for i := range qs {
		q := &qs[i]
		if q.ID <= 0 || seen[q.ID] {
			q.ID = i + 1
		}
		seen[q.ID] = true
		if q.Type == "" {
			q.Type = "short-answer"
			if len(q.Options) > 0 {
				q.Type = "multiple-choice"
			}
		}
		if q.Difficulty == "" {
			q.Difficulty = difficulty
		}
		if q.Points <= 0 {
			q.Points = 10
		}
	}
	return qs
}

// Exams returns the user's exams, newest first.
func (s *Service) Exams(userID int64) ([]model.Exam, error) {
	return s.exams.FindAll(userID)
}

// ExamResults returns the user's latest results.
func (s *Service) ExamResults(userID int64, limit int) ([]model.ExamResult, error) {
	return s.exams.Results(userID, limit)
}

// SubmitExamAnswers scores answers (keyed by question id) and records the
// result.
func (s *Service) SubmitExamAnswers(ctx context.Context, userID int64, examID string, answers map[int]model.Answer) (*model.ExamResult, error) {
	exam, err := s.exams.FindByID(userID, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam == nil {
		return nil, ErrExamNotFound
	}

	result := Score(exam, answers, s.now())
	result.UserID = userID
	saved, err := s.exams.AddResult(&result)
	if err != nil {
		return nil, fmt.Errorf("save exam result: %w", err)
	}
	return saved, nil
}

// Score grades answers against exam. Unanswered questions earn nothing.
// Two lists match when they hold the same values in any order; anything
// else compares case-insensitively as text.
func Score(exam *model.Exam, answers map[int]model.Answer, now time.Time) model.ExamResult {
	r := model.ExamResult{
		ExamID:            exam.ID,
		AnsweredQuestions: len(answers),
		Details:           make([]model.ResultDetail, 0, len(exam.Questions)),
		CompletedAt:       now.UTC(),
	}

	total := 0
	for _, q := range exam.Questions {
		total += q.Points
		given, ok := answers[q.ID]
		d := model.ResultDetail{QuestionID: q.ID, UserAnswer: given, CorrectAnswer: q.CorrectAnswer}
		if !ok || given.Empty() {
			d.UserAnswer = model.SingleAnswer("")
			r.Details = append(r.Details, d)
			continue
		}
		if answerMatches(given, q.CorrectAnswer) {
			d.IsCorrect = true
			d.Points = q.Points
			r.CorrectAnswers++
			r.Score += q.Points
		}
		r.Details = append(r.Details, d)
	}

	r.IncorrectAnswers = len(exam.Questions) - r.CorrectAnswers
	if total > 0 {
		r.Percentage = int(math.Round(float64(r.Score) / float64(total) * 100))
	}
	return r
}

func answerMatches(given, correct model.Answer) bool {
	if given.Multi && correct.Multi {
		if len(given.Values) != len(correct.Values) {
			return false
		}
		for _, v := range correct.Values {
			if !slices.Contains(given.Values, v) {
				return false
			}
		}
		return true
	}
	return strings.EqualFold(answerText(given), answerText(correct))
}

func answerText(a model.Answer) string {
	return strings.Join(a.Values, ",")
}
