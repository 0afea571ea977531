package study

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/tareas/internal/fallback"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/provider"
)

func TestExplainTopicFallsBackToOllama(t *testing.T) {
	groq := limited("groq")
	ollama := &stubGen{name: "ollama", text: "```json\n{\"explanation\": \"La célula es la unidad básica.\", \"keyPoints\": [\"membrana\"]}\n```"}
	s, user := newTestService(t, Providers{Groq: groq, Ollama: ollama})

	got, err := s.ExplainTopic(context.Background(), user.ID, "La célula")
	if err != nil {
		t.Fatalf("ExplainTopic: %v", err)
	}
	if got.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", got.Provider)
	}
	if got.Explanation != "La célula es la unidad básica." || len(got.KeyPoints) != 1 {
		t.Errorf("content = %+v", got)
	}
	if got.Examples == nil {
		t.Error("examples is nil, want empty slice")
	}
	if groq.called() != 1 || ollama.called() != 1 {
		t.Errorf("calls groq=%d ollama=%d", groq.called(), ollama.called())
	}

	sessions, err := s.Sessions(user.ID)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("Sessions = %v, %v", sessions, err)
	}
	if sessions[0].ID != got.SessionID || sessions[0].Type != model.StudyFree || sessions[0].Topic != "La célula" {
		t.Errorf("session = %+v", sessions[0])
	}
	var stored TopicStudy
	if err := json.Unmarshal([]byte(sessions[0].Content), &stored); err != nil || stored.Explanation != got.Explanation {
		t.Errorf("stored content = %q (%v)", sessions[0].Content, err)
	}
}

func TestExplainTopicProseDegrades(t *testing.T) {
	s, user := newTestService(t, Providers{Groq: &stubGen{name: "groq", text: "  Solo texto, sin JSON.  "}})
	got, err := s.ExplainTopic(context.Background(), user.ID, "Historia")
	if err != nil {
		t.Fatalf("ExplainTopic: %v", err)
	}
	if got.Explanation != "Solo texto, sin JSON." || len(got.KeyPoints) != 0 {
		t.Errorf("content = %+v", got)
	}
}

func TestExplainTopicErrors(t *testing.T) {
	s, user := newTestService(t, Providers{Groq: down("groq"), Ollama: down("ollama")})
	if _, err := s.ExplainTopic(context.Background(), user.ID, "  "); !errors.Is(err, ErrEmptyTopic) {
		t.Errorf("err = %v, want ErrEmptyTopic", err)
	}
	_, err := s.ExplainTopic(context.Background(), user.ID, "x")
	var ex *fallback.ExhaustedError
	if !errors.As(err, &ex) {
		t.Errorf("err = %v, want *fallback.ExhaustedError", err)
	}
}

func TestSuggestResources(t *testing.T) {
	gemini := &stubGen{name: "gemini", text: `{"videos": [{"title": "Khan", "description": "curso", "url": "https://khan.example"}]}`}
	s, _ := newTestService(t, Providers{Groq: down("groq"), Gemini: gemini})

	got, err := s.SuggestResources(context.Background(), "Derivadas")
	if err != nil {
		t.Fatalf("SuggestResources: %v", err)
	}
	if len(got.Videos) != 1 || got.Videos[0].Title != "Khan" || got.Provider != "gemini" {
		t.Errorf("resources = %+v", got)
	}
	if got.Documents == nil || got.Websites == nil {
		t.Error("missing lists should be empty, not nil")
	}
}

type mindmapStub struct {
	code   string
	topic  string
	detail string
}

func (m *mindmapStub) Name() string { return "mindmap" }

func (m *mindmapStub) Generate(ctx context.Context, topic, detail string) (string, error) {
	m.topic, m.detail = topic, detail
	return m.code, nil
}

func TestGenerateMindMap(t *testing.T) {
	groq := &stubGen{name: "groq", text: "```mermaid\nmindmap\n  root((Agua))\n  Ciclo\n```"}
	s, _ := newTestService(t, Providers{Groq: groq, Mindmap: &mindmapStub{}})

	got, err := s.GenerateMindMap(context.Background(), "Agua", "")
	if err != nil {
		t.Fatalf("GenerateMindMap: %v", err)
	}
	want := "mindmap\n  root((Agua))\n    Ciclo"
	if got.Code != want || got.Provider != "groq" {
		t.Errorf("mindmap = %+v, want code %q", got, want)
	}
	if !strings.Contains(groq.calls[0].Prompt, "5 a 7 conceptos") {
		t.Errorf("prompt does not use medium detail:\n%s", groq.calls[0].Prompt)
	}
}

func TestGenerateMindMapFallsBackToService(t *testing.T) {
	svc := &mindmapStub{code: "mindmap\n  root((Agua))\n    Ciclo"}
	s, _ := newTestService(t, Providers{Groq: limited("groq"), Mindmap: svc})

	got, err := s.GenerateMindMap(context.Background(), "Agua", provider.DetailDetailed)
	if err != nil {
		t.Fatalf("GenerateMindMap: %v", err)
	}
	if got.Provider != "mindmap" || svc.topic != "Agua" || svc.detail != provider.DetailDetailed {
		t.Errorf("got %+v, service saw %q/%q", got, svc.topic, svc.detail)
	}
}

func TestGenerateMindMapEmptyServiceOutput(t *testing.T) {
	s, _ := newTestService(t, Providers{Mindmap: &mindmapStub{code: "```mermaid\n```"}})
	_, err := s.GenerateMindMap(context.Background(), "Agua", "")
	if !errors.Is(err, provider.ErrMalformed) {
		t.Errorf("err = %v, want malformed", err)
	}
}

func testTask() *model.Task {
	due := time.Date(2025, 3, 5, 23, 59, 0, 0, time.UTC)
	return &model.Task{ID: 7, Title: "Informe de laboratorio", Description: "Titulación ácido base", CourseName: "Química", DueDate: &due}
}

func TestStudyTips(t *testing.T) {
	groq := &stubGen{name: "groq", text: `{"tips": ["Repasa la estequiometría", "Practica cálculos"]}`}
	s, _ := newTestService(t, Providers{Groq: groq})

	got, err := s.StudyTips(context.Background(), testTask())
	if err != nil {
		t.Fatalf("StudyTips: %v", err)
	}
	if got.Action != ActionTips || len(got.Content.Tips) != 2 {
		t.Errorf("response = %+v", got)
	}
	prompt := groq.calls[0].Prompt
	for _, want := range []string{"Informe de laboratorio", "Química", "2025-03-05"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestStudyTipsFromBullets(t *testing.T) {
	s, _ := newTestService(t, Providers{Ollama: &stubGen{name: "ollama", text: "Consejos:\n- Haz un esquema\n- Duerme bien\n"}})
	got, err := s.StudyTips(context.Background(), testTask())
	if err != nil {
		t.Fatalf("StudyTips: %v", err)
	}
	if strings.Join(got.Content.Tips, "|") != "Haz un esquema|Duerme bien" {
		t.Errorf("tips = %q", got.Content.Tips)
	}
}

func TestTutorChainOrder(t *testing.T) {
	groq, gemini := down("groq"), down("gemini")
	ollama := &stubGen{name: "ollama", text: `{"flashcards": [{"front": "pH", "back": "potencial de hidrógeno"}]}`}
	s, _ := newTestService(t, Providers{Groq: groq, Gemini: gemini, Ollama: ollama})

	got, err := s.GenerateFlashcards(context.Background(), testTask())
	if err != nil {
		t.Fatalf("GenerateFlashcards: %v", err)
	}
	if got.Provider != "ollama" || groq.called() != 1 || gemini.called() != 1 {
		t.Errorf("provider = %q, calls groq=%d gemini=%d", got.Provider, groq.called(), gemini.called())
	}
	if len(got.Content.Flashcards) != 1 || got.Content.Flashcards[0].Difficulty != "medium" {
		t.Errorf("flashcards = %+v", got.Content.Flashcards)
	}
}

func TestRecommendStudyTechniques(t *testing.T) {
	raw := `{"study_plan": {"technique": "Feynman", "description": "Explica con tus palabras", "steps": ["Elige", "Explica"], "duration": "45 min"}}`
	s, _ := newTestService(t, Providers{Gemini: &stubGen{name: "gemini", text: raw}})
	got, err := s.RecommendStudyTechniques(context.Background(), testTask())
	if err != nil {
		t.Fatalf("RecommendStudyTechniques: %v", err)
	}
	if got.Content.StudyPlan == nil || got.Content.StudyPlan.Technique != "Feynman" || len(got.Content.StudyPlan.Steps) != 2 {
		t.Errorf("plan = %+v", got.Content.StudyPlan)
	}
}

type speechStub struct{ text string }

func (s *speechStub) SynthesizeSpeech(ctx context.Context, text string) (*provider.Audio, error) {
	s.text = text
	return &provider.Audio{Data: []byte{1, 0, 2, 0}, MimeType: "audio/L16;codec=pcm;rate=16000"}, nil
}

func TestSynthesizeAudio(t *testing.T) {
	speech := &speechStub{}
	s, _ := newTestService(t, Providers{Speech: speech})

	got, err := s.SynthesizeAudio(context.Background(), testTask(), "")
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}
	if speech.text != "Informe de laboratorio. Titulación ácido base" {
		t.Errorf("spoken text = %q", speech.text)
	}

	const prefix = "data:audio/wav;base64,"
	if !strings.HasPrefix(got.Content.AudioURL, prefix) {
		t.Fatalf("audio url = %q", got.Content.AudioURL)
	}
	wav, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got.Content.AudioURL, prefix))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(wav) != 48 || string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("wav header = %q", wav[:12])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
}

func TestSynthesizeAudioUnavailable(t *testing.T) {
	s, _ := newTestService(t, Providers{})
	if _, err := s.SynthesizeAudio(context.Background(), testTask(), "hola"); !errors.Is(err, ErrSpeechUnavailable) {
		t.Errorf("err = %v, want ErrSpeechUnavailable", err)
	}
}
