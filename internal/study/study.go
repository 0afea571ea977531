// Package study implements the study mode capabilities: topic
// explanations, per task tutoring, mind maps, exams and questions over
// uploaded documents.
package study

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/tareas/internal/fallback"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/provider"
	"github.com/dukerupert/tareas/internal/store"
)

// MindmapGenerator is the local mind map service.
type MindmapGenerator interface {
	Name() string
	Generate(ctx context.Context, topic, detail string) (string, error)
}

// SpeechSynthesizer reads text aloud.
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) (*provider.Audio, error)
}

// DocumentStore keeps the original uploaded documents.
type DocumentStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Providers are the backends the service may call. Any of them may be nil;
// chains skip missing backends.
type Providers struct {
	Groq     provider.TextGenerator
	Gemini   provider.TextGenerator
	Ollama   provider.TextGenerator
	Mindmap  MindmapGenerator
	Embedder provider.Embedder
	Speech   SpeechSynthesizer
}

type Service struct {
	providers Providers
	sessions  *store.Repository[model.StudySession]
	chunks    *store.ChunkStore
	exams     *store.ExamStore
	docs      DocumentStore
	indexer   *Indexer
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires the study capabilities to db. docs may be nil, in which
// case uploaded documents are analyzed and indexed but not kept.
func NewService(db *sql.DB, p Providers, docs DocumentStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	chunks := store.NewChunkStore(db)
	return &Service{
		providers: p,
		sessions:  store.NewStudySessionStore(db),
		chunks:    chunks,
		exams:     store.NewExamStore(db),
		docs:      docs,
		indexer:   NewIndexer(p.Embedder, chunks, logger),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Sessions returns the user's study sessions, newest first.
func (s *Service) Sessions(userID int64) ([]model.StudySession, error) {
	return s.sessions.FindAll(userID)
}

// Session returns one of the user's study sessions, or nil.
func (s *Service) Session(userID, id int64) (*model.StudySession, error) {
	return s.sessions.FindByID(userID, id)
}

// chain runs a text capability through the given backends in order.
func (s *Service) chain(ctx context.Context, capability string, req provider.Request, gens ...provider.TextGenerator) (string, fallback.Report, error) {
	return fallback.Chain[string]{
		Name:       capability,
		Strategies: fallback.Generators(req, gens...),
		Logger:     s.logger,
	}.Execute(ctx)
}

// Fixed provider orders per capability.
func (s *Service) studyOrder() []provider.TextGenerator {
	return []provider.TextGenerator{s.providers.Groq, s.providers.Ollama}
}

func (s *Service) tutorOrder() []provider.TextGenerator {
	return []provider.TextGenerator{s.providers.Groq, s.providers.Gemini, s.providers.Ollama}
}

func (s *Service) examOrder() []provider.TextGenerator {
	return []provider.TextGenerator{s.providers.Ollama, s.providers.Groq}
}

func (s *Service) documentOrder() []provider.TextGenerator {
	return []provider.TextGenerator{s.providers.Ollama, s.providers.Groq}
}

// nonNil keeps JSON arrays from encoding as null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
