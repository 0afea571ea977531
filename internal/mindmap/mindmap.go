// Package mindmap serves the local mind map generator used as the second
// step of the mind map chain. It asks Ollama for a mermaid mindmap and
// repairs the output before returning it.
package mindmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
)

// Backend is the model server behind the service.
type Backend interface {
	provider.TextGenerator
	Health(ctx context.Context) error
	Model() string
	BaseURL() string
}

var detailInstructions = map[string]string{
	provider.DetailBasic:    "Crea un mapa simple con solo los 3-5 conceptos más importantes.",
	provider.DetailMedium:   "Crea un mapa balanceado con 7-10 conceptos principales y algunos detalles.",
	provider.DetailDetailed: "Crea un mapa completo con hasta 20 nodos, incluyendo conceptos y detalles.",
}

const systemPrompt = `Eres un experto en mapas mentales visuales con Mermaid.js.

Reglas:
1. Devuelve solo código Mermaid, sin markdown ni explicaciones.
2. La primera línea es 'mindmap'.
3. Hay exactamente un nodo raíz 'root((Tema))' y todos los demás nodos cuelgan de él.
4. Indenta 2 espacios por nivel, máximo 3 niveles.
5. Empieza cada nodo principal con un emoji relevante.
6. Usa (( )) para el nodo principal, [ ] para categorías y ( ) para conceptos clave.
7. Máximo 4 palabras por nodo.

Ejemplo:
mindmap
  root((🌱 Fotosíntesis))
    🔬 [Proceso]
      ☀️ (Luz solar)
        Energía lumínica
    ✨ [Productos]
      💨 Oxígeno`

// Prompt builds the generation prompt for topic at the given detail level.
// Unknown levels use medium.
func Prompt(topic, detail string) string {
	instr, ok := detailInstructions[detail]
	if !ok {
		instr = detailInstructions[provider.DetailMedium]
	}
	return fmt.Sprintf("Crea un mapa mental visual sobre: %q.\n%s\n\nTodo bajo un único root, solo código Mermaid.\n\nGenera ahora:", topic, instr)
}

type Service struct {
	backend Backend
	logger  *slog.Logger
}

func NewService(backend Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// Generate returns a cleaned mermaid mindmap for topic.
func (s *Service) Generate(ctx context.Context, topic, detail string) (string, error) {
	raw, err := s.backend.GenerateText(ctx, provider.Request{
		System:      systemPrompt,
		Prompt:      Prompt(topic, detail),
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	return normalize.CleanMermaid(raw)
}

// Handler routes POST /generate-mindmap and GET /health.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate-mindmap", s.handleGenerate)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

type generateRequest struct {
	Topic       string `json:"topic"`
	DetailLevel string `json:"detail_level"`
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON"})
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "topic is required"})
		return
	}

	code, err := s.Generate(r.Context(), req.Topic, req.DetailLevel)
	switch {
	case err == nil:
		s.logger.Debug("generated mindmap", "topic", req.Topic, "lines", strings.Count(code, "\n")+1)
		writeJSON(w, http.StatusOK, map[string]string{"mermaid_code": code})
	case errors.Is(err, provider.ErrNetwork):
		s.logger.Warn("ollama unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "could not reach ollama: " + err.Error()})
	default:
		s.logger.Error("generate mindmap", "topic", req.Topic, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "unhealthy",
			"ollama_connected": false,
			"error":            err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"ollama_connected": true,
		"ollama_url":       s.backend.BaseURL(),
		"model":            s.backend.Model(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
