package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
)

// ErrEmptyTopic is returned when a capability is asked about nothing.
var ErrEmptyTopic = errors.New("topic is required")

// TopicStudy is the explanation of a free topic.
type TopicStudy struct {
	Explanation string   `json:"explanation"`
	KeyPoints   []string `json:"keyPoints"`
	Examples    []string `json:"examples"`
	Provider    string   `json:"provider,omitempty"`
	SessionID   int64    `json:"session_id,omitempty"`
}

func topicFallback(raw string) TopicStudy {
	return TopicStudy{Explanation: strings.TrimSpace(raw), KeyPoints: []string{}, Examples: []string{}}
}

const topicSystem = `Eres un tutor educativo experto. Explicas conceptos de forma clara y estructurada.
Responde con UN SOLO objeto JSON con esta forma exacta:
{"explanation": "explicación detallada", "keyPoints": ["punto 1", "punto 2"], "examples": ["ejemplo 1"]}
No uses comillas triples ni texto fuera del JSON.`

// ExplainTopic explains topic (Groq, then Ollama) and records the study
// session.
func (s *Service) ExplainTopic(ctx context.Context, userID int64, topic string) (*TopicStudy, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	req := provider.Request{
		System: topicSystem,
		Prompt: fmt.Sprintf(`Explica el tema: "%s"

Incluye una explicación clara de 2 a 3 párrafos, entre 5 y 7 puntos clave y 2 o 3 ejemplos prácticos.
Responde SOLO con el JSON.`, topic),
		Temperature: 0.7,
	}
	raw, report, err := s.chain(ctx, "explain_topic", req, s.studyOrder()...)
	if err != nil {
		return nil, err
	}

	res := normalize.Normalize(raw, topicSchema, topicFallback)
	if res.Recovered {
		s.logger.Warn("topic response degraded to text", "provider", report.Provider, "error", res.Err)
	}
	out := res.Value
	out.KeyPoints = nonNil(out.KeyPoints)
	out.Examples = nonNil(out.Examples)
	out.Provider = report.Provider

	content, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode study content: %w", err)
	}
	sess, err := s.sessions.Create(&model.StudySession{
		UserID:  userID,
		Type:    model.StudyFree,
		Topic:   topic,
		Content: string(content),
	})
	if err != nil {
		return nil, fmt.Errorf("save study session: %w", err)
	}
	out.SessionID = sess.ID
	return &out, nil
}

// Link is one suggested study resource.
type Link struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Resources groups suggested material by medium.
type Resources struct {
	Videos    []Link `json:"videos"`
	Documents []Link `json:"documents"`
	Websites  []Link `json:"websites"`
	Provider  string `json:"provider,omitempty"`
}

// SuggestResources proposes videos, documents and websites for topic.
// Unusable output yields empty lists.
func (s *Service) SuggestResources(ctx context.Context, topic string) (*Resources, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	req := provider.Request{
		System: "Eres un bibliotecario académico. Recomiendas material de estudio confiable y real.",
		Prompt: fmt.Sprintf(`Sugiere recursos educativos para estudiar "%s".
Responde SOLO con JSON:
{"videos": [{"title": "", "description": "", "url": ""}],
 "documents": [{"title": "", "description": "", "type": "libro|artículo|guía"}],
 "websites": [{"title": "", "description": "", "url": ""}]}
Incluye 2 o 3 elementos por categoría.`, topic),
		Temperature: 0.5,
	}
	raw, report, err := s.chain(ctx, "suggest_resources", req, s.tutorOrder()...)
	if err != nil {
		return nil, err
	}

	res := normalize.Normalize(raw, resourcesSchema, func(string) Resources { return Resources{} })
	out := res.Value
	out.Videos = nonNil(out.Videos)
	out.Documents = nonNil(out.Documents)
	out.Websites = nonNil(out.Websites)
	out.Provider = report.Provider
	return &out, nil
}
