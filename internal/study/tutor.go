package study

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
)

// Tutor actions.
const (
	ActionExplain    = "explain"
	ActionTips       = "tips"
	ActionResources  = "resources"
	ActionFlashcards = "flashcards"
	ActionTechniques = "study_techniques"
	ActionAudio      = "audio"
)

// ErrSpeechUnavailable is returned when no speech backend is configured.
var ErrSpeechUnavailable = errors.New("speech synthesis is not configured")

type Flashcard struct {
	Front      string `json:"front"`
	Back       string `json:"back"`
	Difficulty string `json:"difficulty"`
}

type TutorResource struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Duration    string `json:"duration,omitempty"`
}

type StudyPlan struct {
	Technique   string   `json:"technique"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Duration    string   `json:"duration"`
}

// TutorContent carries whichever fields the action produced.
type TutorContent struct {
	Explanation string          `json:"explanation,omitempty"`
	Tips        []string        `json:"tips,omitempty"`
	Resources   []TutorResource `json:"resources,omitempty"`
	Flashcards  []Flashcard     `json:"flashcards,omitempty"`
	StudyPlan   *StudyPlan      `json:"study_plan,omitempty"`
	AudioURL    string          `json:"audio_url,omitempty"`
}

type TutorResponse struct {
	Action   string       `json:"action"`
	Content  TutorContent `json:"content"`
	Provider string       `json:"provider,omitempty"`
}

const tutorSystem = `Eres un tutor personal para estudiantes universitarios. Adaptas tus respuestas a la tarea concreta del estudiante y respondes en español.`

func taskContext(t *model.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tarea: %s\n", t.Title)
	if t.CourseName != "" {
		fmt.Fprintf(&sb, "Curso: %s\n", t.CourseName)
	}
	if t.Description != "" {
		fmt.Fprintf(&sb, "Descripción: %s\n", t.Description)
	}
	if t.DueDate != nil {
		fmt.Fprintf(&sb, "Fecha límite: %s\n", t.DueDate.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func (s *Service) tutor(ctx context.Context, action, prompt string) (string, string, error) {
	req := provider.Request{System: tutorSystem, Prompt: prompt, Temperature: 0.7}
	raw, report, err := s.chain(ctx, "tutor_"+action, req, s.tutorOrder()...)
	if err != nil {
		return "", "", err
	}
	return raw, report.Provider, nil
}

// ExplainTask explains the concepts behind a task in plain text.
func (s *Service) ExplainTask(ctx context.Context, t *model.Task, query string) (*TutorResponse, error) {
	prompt := taskContext(t) + "\nExplica los conceptos que el estudiante necesita dominar para completar esta tarea, con ejemplos."
	if q := strings.TrimSpace(query); q != "" {
		prompt += "\nPregunta concreta del estudiante: " + q
	}
	raw, used, err := s.tutor(ctx, ActionExplain, prompt)
	if err != nil {
		return nil, err
	}
	return &TutorResponse{Action: ActionExplain, Content: TutorContent{Explanation: strings.TrimSpace(raw)}, Provider: used}, nil
}

// StudyTips gives study advice for a task. Unstructured answers are read as
// a bullet list.
func (s *Service) StudyTips(ctx context.Context, t *model.Task) (*TutorResponse, error) {
	prompt := taskContext(t) + `
Da entre 4 y 6 consejos de estudio concretos para esta tarea.
Responde SOLO con JSON: {"tips": ["consejo 1", "consejo 2"]}`
	raw, used, err := s.tutor(ctx, ActionTips, prompt)
	if err != nil {
		return nil, err
	}

	type tips struct {
		Tips []string `json:"tips"`
	}
	res := normalize.Normalize(raw, tipsSchema, func(raw string) tips { return tips{Tips: normalize.List(raw)} })
	return &TutorResponse{Action: ActionTips, Content: TutorContent{Tips: nonNil(res.Value.Tips)}, Provider: used}, nil
}

// GenerateFlashcards builds question and answer cards for a task.
func (s *Service) GenerateFlashcards(ctx context.Context, t *model.Task) (*TutorResponse, error) {
	prompt := taskContext(t) + `
Crea entre 5 y 8 tarjetas de memoria sobre los conceptos de esta tarea.
Responde SOLO con JSON: {"flashcards": [{"front": "pregunta", "back": "respuesta", "difficulty": "easy|medium|hard"}]}`
	raw, used, err := s.tutor(ctx, ActionFlashcards, prompt)
	if err != nil {
		return nil, err
	}

	res := normalize.Normalize(raw, flashcardsSchema, func(raw string) TutorContent {
		return TutorContent{Explanation: strings.TrimSpace(raw)}
	})
	content := res.Value
	for i := range content.Flashcards {
		if content.Flashcards[i].Difficulty == "" {
			content.Flashcards[i].Difficulty = "medium"
		}
	}
	return &TutorResponse{Action: ActionFlashcards, Content: content, Provider: used}, nil
}

// RecommendStudyTechniques proposes a study plan built on one technique.
func (s *Service) RecommendStudyTechniques(ctx context.Context, t *model.Task) (*TutorResponse, error) {
	prompt := taskContext(t) + `
Recomienda la técnica de estudio más adecuada (por ejemplo Pomodoro, Feynman, repetición espaciada, mapas mentales) y un plan para aplicarla.
Responde SOLO con JSON: {"study_plan": {"technique": "", "description": "", "steps": ["paso 1"], "duration": ""}}`
	raw, used, err := s.tutor(ctx, ActionTechniques, prompt)
	if err != nil {
		return nil, err
	}

	res := normalize.Normalize(raw, studyPlanSchema, func(raw string) TutorContent {
		return TutorContent{Explanation: strings.TrimSpace(raw)}
	})
	content := res.Value
	if content.StudyPlan != nil {
		content.StudyPlan.Steps = nonNil(content.StudyPlan.Steps)
	}
	return &TutorResponse{Action: ActionTechniques, Content: content, Provider: used}, nil
}

// TutorResources lists study material for a task.
func (s *Service) TutorResources(ctx context.Context, t *model.Task) (*TutorResponse, error) {
	prompt := taskContext(t) + `
Sugiere entre 3 y 5 recursos (videos, artículos, cursos o herramientas) útiles para esta tarea.
Responde SOLO con JSON: {"resources": [{"type": "video|article|course|tool", "title": "", "url": "", "description": "", "duration": ""}]}`
	raw, used, err := s.tutor(ctx, ActionResources, prompt)
	if err != nil {
		return nil, err
	}

	res := normalize.Normalize(raw, nil, func(raw string) TutorContent {
		return TutorContent{Explanation: strings.TrimSpace(raw)}
	})
	return &TutorResponse{Action: ActionResources, Content: res.Value, Provider: used}, nil
}

// SynthesizeAudio reads text aloud, defaulting to the task itself. The
// audio comes back as a data URL.
func (s *Service) SynthesizeAudio(ctx context.Context, t *model.Task, text string) (*TutorResponse, error) {
	if s.providers.Speech == nil {
		return nil, ErrSpeechUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = strings.TrimSpace(t.Title + ". " + t.Description)
	}

	audio, err := s.providers.Speech.SynthesizeSpeech(ctx, text)
	if err != nil {
		return nil, err
	}
	return &TutorResponse{
		Action:   ActionAudio,
		Content:  TutorContent{AudioURL: audioDataURL(audio)},
		Provider: "gemini",
	}, nil
}

// audioDataURL wraps raw PCM in a WAV container so browsers can play it.
// Other formats are passed through.
func audioDataURL(a *provider.Audio) string {
	mime, data := a.MimeType, a.Data
	if rate, ok := pcmRate(mime); ok {
		mime, data = "audio/wav", wavFromPCM(data, rate)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// pcmRate reads the sample rate of an "audio/L16;rate=N" mime type.
func pcmRate(mime string) (int, bool) {
	parts := strings.Split(mime, ";")
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "audio/L16") {
		return 0, false
	}
	rate := 24000
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(k, "rate") {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				rate = n
			}
		}
	}
	return rate, true
}

// wavFromPCM prepends a RIFF header for 16-bit mono samples.
func wavFromPCM(pcm []byte, rate int) []byte {
	const channels, bits = 1, 16
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*bits/8))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bits/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bits))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
