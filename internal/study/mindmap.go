package study

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/tareas/internal/fallback"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
)

// MindMap is a mermaid mindmap diagram.
type MindMap struct {
	Topic    string `json:"topic"`
	Code     string `json:"mermaid_code"`
	Provider string `json:"provider"`
}

const mindmapSystem = `Eres experto en mapas mentales educativos con sintaxis Mermaid.js.
Reglas:
1. Devuelve solo código Mermaid, sin explicaciones ni bloques markdown.
2. La primera línea es: mindmap
3. La segunda línea es el nodo raíz con doble paréntesis: root((Tema))
4. Indenta con 2 espacios por nivel; los hijos no llevan paréntesis.
5. Sin comillas, símbolos especiales ni emojis.
6. Como máximo 3 niveles y nombres de 3 o 4 palabras.`

var mindmapDetail = map[string]string{
	provider.DetailBasic:    "Crea un mapa simple con 3 a 5 conceptos principales.",
	provider.DetailMedium:   "Crea un mapa equilibrado con 5 a 7 conceptos y 2 niveles.",
	provider.DetailDetailed: "Crea un mapa completo con 7 a 10 conceptos y 3 niveles.",
}

// GenerateMindMap draws topic as a mindmap: Groq first, then the local
// mind map service. Output that is not a diagram counts as a failed
// attempt.
func (s *Service) GenerateMindMap(ctx context.Context, topic, detail string) (*MindMap, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if _, ok := mindmapDetail[detail]; !ok {
		detail = provider.DetailMedium
	}

	var strategies []fallback.Strategy[string]
	if g := s.providers.Groq; g != nil {
		req := provider.Request{
			System:      mindmapSystem,
			Prompt:      fmt.Sprintf("Genera un mapa mental sobre: %q\n\n%s\n\nDevuelve SOLO el código Mermaid, empezando por \"mindmap\".", topic, mindmapDetail[detail]),
			Temperature: 0.7,
		}
		strategies = append(strategies, diagramStrategy(g.Name(), func(ctx context.Context) (string, error) {
			return g.GenerateText(ctx, req)
		}))
	}
	if m := s.providers.Mindmap; m != nil {
		strategies = append(strategies, diagramStrategy(m.Name(), func(ctx context.Context) (string, error) {
			return m.Generate(ctx, topic, detail)
		}))
	}

	code, report, err := fallback.Chain[string]{Name: "mindmap", Strategies: strategies, Logger: s.logger}.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return &MindMap{Topic: topic, Code: code, Provider: report.Provider}, nil
}

func diagramStrategy(name string, run func(context.Context) (string, error)) fallback.Strategy[string] {
	return fallback.Strategy[string]{Name: name, Run: func(ctx context.Context) (string, error) {
		raw, err := run(ctx)
		if err != nil {
			return "", err
		}
		code, err := normalize.CleanMermaid(raw)
		if err != nil {
			return "", &provider.Error{Provider: name, Kind: provider.KindMalformed, Err: err}
		}
		return code, nil
	}}
}
