package assist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/classify"
	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
)

// TaskDraft is what the user has typed so far.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
}

type PrioritySuggestion struct {
	Suggested  model.Priority `json:"suggested"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
	Provider   string         `json:"provider,omitempty"`
}

// SuggestPriority asks for a priority for the draft. An unusable answer
// falls back to the deadline rule used for imported tasks.
func (s *Service) SuggestPriority(ctx context.Context, d TaskDraft) (*PrioritySuggestion, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analiza la siguiente tarea y sugiere una prioridad apropiada:\n\nTarea: %q\n", title)
	if d.DueDate != nil {
		fmt.Fprintf(&b, "Fecha límite: %s\n", d.DueDate.In(s.loc).Format("2006-01-02 15:04"))
	} else {
		b.WriteString("Sin fecha límite\n")
	}
	if desc := strings.TrimSpace(d.Description); desc != "" {
		fmt.Fprintf(&b, "Descripción: %s\n", desc)
	}
	fmt.Fprintf(&b, `
Hoy es %s.

Responde en formato JSON:
{"suggested": "urgent" | "high" | "medium" | "low", "reasoning": "explicación breve", "confidence": número entre 0 y 1}

Considera:
- urgent: fecha límite hoy o mañana, o muy crítico
- high: importante y próximo
- medium: importante pero no urgente
- low: puede esperar`, s.now().In(s.loc).Format(dateLayout))

	raw, report, err := s.ask(ctx, "suggest_priority", provider.Request{Prompt: b.String(), Temperature: 0.3})
	if err != nil {
		return nil, err
	}

	res := normalize.Normalize(raw, prioritySchema, func(string) PrioritySuggestion {
		return s.deadlinePriority(d.DueDate)
	})
	if res.Recovered {
		s.logger.Warn("priority answer degraded to deadline rule", "provider", report.Provider, "error", res.Err)
	}
	out := res.Value
	out.Provider = report.Provider
	return &out, nil
}

func (s *Service) deadlinePriority(due *time.Time) PrioritySuggestion {
	if due == nil {
		return PrioritySuggestion{Suggested: model.PriorityMedium, Reasoning: "Sin fecha límite.", Confidence: 0.3}
	}
	return PrioritySuggestion{
		Suggested:  classify.PriorityFor(*due, s.now()),
		Reasoning:  "Calculada a partir del tiempo que falta para la fecha límite.",
		Confidence: 0.5,
	}
}

// Expansion is a vague task rewritten as a concrete one.
type Expansion struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	SuggestedTags     []string `json:"suggestedTags"`
	EstimatedDuration string   `json:"estimatedDuration"`
	DetailedSteps     []string `json:"detailedSteps"`
	Provider          string   `json:"provider,omitempty"`
}

// ExpandVagueTask turns a vague task title into a specific, measurable one.
func (s *Service) ExpandVagueTask(ctx context.Context, vague string) (*Expansion, error) {
	vague = strings.TrimSpace(vague)
	if vague == "" {
		return nil, ErrEmptyTitle
	}

	prompt := fmt.Sprintf(`La tarea %q es muy general. Expándela con detalles concretos y accionables.

Responde en formato JSON:
{
  "title": "título mejorado y específico",
  "description": "descripción detallada con pasos claros",
  "suggestedTags": ["tag1", "tag2", "tag3"],
  "estimatedDuration": "tiempo estimado (ej: 2 horas, 1 día)",
  "detailedSteps": ["paso 1", "paso 2", "paso 3"]
}

Haz que la tarea sea SMART (específica, medible, alcanzable, relevante y con tiempo definido).`, vague)

	raw, report, err := s.ask(ctx, "expand_task", provider.Request{Prompt: prompt, Temperature: 0.7})
	if err != nil {
		return nil, err
	}
	res := normalize.Normalize(raw, expansionSchema, func(string) Expansion { return Expansion{} })
	if res.Recovered {
		return nil, fmt.Errorf("expand task: %w: %v", ErrUnusableAnswer, res.Err)
	}
	out := res.Value
	out.SuggestedTags = nonNil(out.SuggestedTags)
	out.DetailedSteps = nonNil(out.DetailedSteps)
	out.Provider = report.Provider
	return &out, nil
}

const maxSuggestedTags = 4

// SuggestTags proposes two to four tags for a task, preferring the user's
// existing tags. An unusable answer yields no suggestions.
func (s *Service) SuggestTags(ctx context.Context, userID int64, d TaskDraft) ([]string, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	existing, err := s.tags.Names(userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	subject := fmt.Sprintf("%q", title)
	if desc := strings.TrimSpace(d.Description); desc != "" {
		subject += fmt.Sprintf(" (%s)", desc)
	}
	prompt := fmt.Sprintf(`Para la tarea %s, sugiere etiquetas relevantes.

Etiquetas existentes en el sistema: %s

Responde en formato JSON:
{"tags": ["tag1", "tag2", "tag3"]}

Prioriza usar etiquetas existentes cuando sean apropiadas. Sugiere de 2 a 4 etiquetas.`, subject, strings.Join(existing, ", "))

	raw, report, err := s.ask(ctx, "suggest_tags", provider.Request{Prompt: prompt, Temperature: 0.5})
	if err != nil {
		return nil, err
	}
	type tagList struct {
		Tags []string `json:"tags"`
	}
	res := normalize.Normalize(raw, tagsSchema, func(string) tagList { return tagList{} })
	if res.Recovered {
		s.logger.Warn("tag answer unusable", "provider", report.Provider, "error", res.Err)
	}
	return mergeTags(res.Value.Tags, existing), nil
}

// mergeTags trims and dedupes suggestions case-insensitively, keeps the
// spelling of matching existing tags and caps the list.
func mergeTags(suggested, existing []string) []string {
	known := make(map[string]string, len(existing))
	for _, name := range existing {
		known[strings.ToLower(name)] = name
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, tag := range suggested {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		if name, ok := known[key]; ok {
			tag = name
		}
		out = append(out, tag)
		if len(out) == maxSuggestedTags {
			break
		}
	}
	return out
}

const maxSubtasks = 6

type subtaskDraft struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	EstimatedTime string `json:"estimatedTime"`
	Order         int    `json:"order"`
}

// GenerateSubtasks breaks a task into ordered subtasks and replaces the
// task's current subtasks with them.
func (s *Service) GenerateSubtasks(ctx context.Context, userID, taskID int64) ([]model.Subtask, error) {
	task, err := s.tasks.Get(userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	subject := fmt.Sprintf("%q", task.Title)
	if desc := strings.TrimSpace(task.Description); desc != "" {
		subject += " con descripción: " + desc
	}
	prompt := fmt.Sprintf(`Para la tarea %s, genera subtareas específicas y accionables.

Responde en formato JSON:
{"subtasks": [{"title": "título corto", "description": "descripción detallada", "estimatedTime": "ej: 30 min, 2 horas", "order": 1}]}

Genera entre 3 y 6 subtareas lógicas y ordenadas.`, subject)

	raw, _, err := s.ask(ctx, "generate_subtasks", provider.Request{Prompt: prompt, Temperature: 0.7})
	if err != nil {
		return nil, err
	}
	type subtaskList struct {
		Subtasks []subtaskDraft `json:"subtasks"`
	}
	res := normalize.Normalize(raw, subtasksSchema, func(string) subtaskList { return subtaskList{} })
	if res.Recovered {
		return nil, fmt.Errorf("generate subtasks: %w: %v", ErrUnusableAnswer, res.Err)
	}

	drafts := res.Value.Subtasks
	sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].Order < drafts[j].Order })
	drafts = drafts[:min(len(drafts), maxSubtasks)]

	subtasks := make([]model.Subtask, len(drafts))
	for i, d := range drafts {
		subtasks[i] = model.Subtask{
			TaskID:        task.ID,
			Title:         strings.TrimSpace(d.Title),
			Description:   strings.TrimSpace(d.Description),
			EstimatedTime: strings.TrimSpace(d.EstimatedTime),
			Position:      i + 1,
		}
	}
	saved, err := s.subtasks.Replace(task.ID, subtasks)
	if err != nil {
		return nil, fmt.Errorf("save subtasks: %w", err)
	}
	return saved, nil
}
