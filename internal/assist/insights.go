package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
	"github.com/dukerupert/tareas/internal/store"
)

// busyDay is more than this many open tasks due on one day.
const busyDay = 2

type ConflictTask struct {
	ID       int64          `json:"id"`
	Title    string         `json:"title"`
	Priority model.Priority `json:"priority"`
}

type Conflict struct {
	Date       string         `json:"date"`
	Tasks      []ConflictTask `json:"tasks"`
	Reason     string         `json:"reason"`
	Suggestion string         `json:"suggestion"`
}

type dayLoad struct {
	Date  string     `json:"date"`
	Tasks []loadTask `json:"tasks"`
}

type loadTask struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Priority    model.Priority `json:"priority"`
	Description string         `json:"description,omitempty"`
}

func isOpen(t model.Task) bool {
	return t.Status != model.StatusCompleted && t.Status != model.StatusCancelled
}

// busyDays groups open tasks by due date and keeps the overloaded days in
// date order.
func (s *Service) busyDays(tasks []model.Task) []dayLoad {
	byDate := make(map[string][]loadTask)
	for _, t := range tasks {
		if t.DueDate == nil || !isOpen(t) {
			continue
		}
		day := t.DueDate.In(s.loc).Format(dateLayout)
		byDate[day] = append(byDate[day], loadTask{ID: t.ID, Title: t.Title, Priority: t.Priority, Description: t.Description})
	}
	var days []dayLoad
	for day, ts := range byDate {
		if len(ts) > busyDay {
			days = append(days, dayLoad{Date: day, Tasks: ts})
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// DetectTimeConflicts looks for overloaded days among the user's open
// tasks. Only days with more than two tasks are sent to the model; no busy
// day means no request at all.
func (s *Service) DetectTimeConflicts(ctx context.Context, userID int64) ([]Conflict, error) {
	tasks, err := s.tasks.List(userID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	days := s.busyDays(tasks)
	if len(days) == 0 {
		return []Conflict{}, nil
	}

	data, err := json.MarshalIndent(days, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode days: %w", err)
	}
	prompt := fmt.Sprintf(`Analiza estos días con múltiples tareas y detecta posibles conflictos de tiempo:

%s

Responde en formato JSON:
{"conflicts": [{"date": "fecha", "tasks": [{"id": 1, "title": "título", "priority": "prioridad"}], "reason": "por qué hay conflicto", "suggestion": "cómo resolverlo"}]}

Considera la prioridad y cantidad de tareas para detectar sobrecarga.`, data)

	raw, report, err := s.ask(ctx, "detect_conflicts", provider.Request{Prompt: prompt, Temperature: 0.4})
	if err != nil {
		return nil, err
	}
	type conflictList struct {
		Conflicts []Conflict `json:"conflicts"`
	}
	res := normalize.Normalize(raw, conflictsSchema, func(string) conflictList { return conflictList{} })
	if res.Recovered {
		s.logger.Warn("conflict answer unusable", "provider", report.Provider, "error", res.Err)
	}
	out := nonNil(res.Value.Conflicts)
	for i := range out {
		out[i].Tasks = nonNil(out[i].Tasks)
	}
	return out, nil
}

// DailySummary counts are computed from the task list; the model only
// writes the prose.
type DailySummary struct {
	Date                string   `json:"date"`
	CompletedCount      int      `json:"completedCount"`
	PendingCount        int      `json:"pendingCount"`
	OverdueCount        int      `json:"overdueCount"`
	Highlights          []string `json:"highlights"`
	Recommendations     []string `json:"recommendations"`
	MotivationalMessage string   `json:"motivationalMessage"`
	Provider            string   `json:"provider,omitempty"`
}

type dayTask struct {
	Title     string         `json:"title"`
	Priority  model.Priority `json:"priority"`
	Completed bool           `json:"completed"`
	DueDate   string         `json:"due_date,omitempty"`
}

// GenerateDailySummary summarizes today: tasks due today, tasks completed
// today and everything overdue.
func (s *Service) GenerateDailySummary(ctx context.Context, userID int64) (*DailySummary, error) {
	tasks, err := s.tasks.List(userID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	start, end := s.today()
	within := func(t *time.Time) bool { return t != nil && !t.Before(start) && t.Before(end) }

	sum := DailySummary{Date: start.Format(dateLayout)}
	var today []dayTask
	for _, t := range tasks {
		dueToday := within(t.DueDate)
		doneToday := t.Status == model.StatusCompleted && within(t.CompletedAt)
		switch {
		case doneToday:
			sum.CompletedCount++
		case dueToday && isOpen(t):
			sum.PendingCount++
		}
		if t.Overdue(start) {
			sum.OverdueCount++
		}
		if dueToday || doneToday {
			dt := dayTask{Title: t.Title, Priority: t.Priority, Completed: t.Status == model.StatusCompleted}
			if t.DueDate != nil {
				dt.DueDate = t.DueDate.In(s.loc).Format(dateLayout)
			}
			today = append(today, dt)
		}
	}

	data, err := json.MarshalIndent(nonNil(today), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	prompt := fmt.Sprintf(`Genera un resumen motivacional para el día %s:

Estadísticas:
- Tareas completadas: %d
- Tareas pendientes: %d
- Tareas atrasadas: %d

Tareas del día:
%s

Responde en formato JSON:
{"highlights": ["logro1", "logro2"], "recommendations": ["recomendación1", "recomendación2"], "motivationalMessage": "mensaje positivo y motivador"}

Sé positivo, específico y accionable.`, sum.Date, sum.CompletedCount, sum.PendingCount, sum.OverdueCount, data)

	raw, report, err := s.ask(ctx, "daily_summary", provider.Request{Prompt: prompt, Temperature: 0.8})
	if err != nil {
		return nil, err
	}
	type prose struct {
		Highlights          []string `json:"highlights"`
		Recommendations     []string `json:"recommendations"`
		MotivationalMessage string   `json:"motivationalMessage"`
	}
	res := normalize.Normalize(raw, summarySchema, func(raw string) prose {
		return prose{MotivationalMessage: strings.TrimSpace(raw)}
	})
	if res.Recovered {
		s.logger.Warn("summary answer degraded to text", "provider", report.Provider, "error", res.Err)
	}
	sum.Highlights = nonNil(res.Value.Highlights)
	sum.Recommendations = nonNil(res.Value.Recommendations)
	sum.MotivationalMessage = res.Value.MotivationalMessage
	sum.Provider = report.Provider
	return &sum, nil
}

var priorityOrder = []model.Priority{model.PriorityUrgent, model.PriorityHigh, model.PriorityMedium, model.PriorityLow}

type Trends struct {
	// WeeklyCompletion counts completions on each of the last seven days,
	// oldest first.
	WeeklyCompletion []int `json:"weeklyCompletion"`
	// PriorityDistribution is the share of tasks per priority, urgent
	// first, in percent.
	PriorityDistribution []int `json:"priorityDistribution"`
}

// Productivity numbers are computed from the task list; the model adds the
// most productive time and suggestions.
type Productivity struct {
	CompletionRate        int                    `json:"completionRate"`
	AverageTimeToComplete float64                `json:"averageTimeToComplete"`
	MostProductiveTime    string                 `json:"mostProductiveTime"`
	TasksByPriority       map[model.Priority]int `json:"tasksByPriority"`
	Suggestions           []string               `json:"suggestions"`
	Trends                Trends                 `json:"trends"`
	Provider              string                 `json:"provider,omitempty"`
}

// productivityStats fills the computed part of p.
func (s *Service) productivityStats(tasks []model.Task) Productivity {
	p := Productivity{
		TasksByPriority: make(map[model.Priority]int, len(priorityOrder)),
		Trends: Trends{
			WeeklyCompletion:     make([]int, 7),
			PriorityDistribution: make([]int, len(priorityOrder)),
		},
	}
	for _, pr := range priorityOrder {
		p.TasksByPriority[pr] = 0
	}
	if len(tasks) == 0 {
		return p
	}

	start, _ := s.today()
	weekStart := start.AddDate(0, 0, -6)
	var completed int
	var days float64
	for _, t := range tasks {
		if _, ok := p.TasksByPriority[t.Priority]; ok {
			p.TasksByPriority[t.Priority]++
		}
		if t.Status != model.StatusCompleted || t.CompletedAt == nil {
			continue
		}
		completed++
		days += t.CompletedAt.Sub(t.CreatedAt).Hours() / 24
		done := t.CompletedAt.In(s.loc)
		if !done.Before(weekStart) {
			day := time.Date(done.Year(), done.Month(), done.Day(), 0, 0, 0, 0, s.loc)
			if i := int(day.Sub(weekStart).Hours()/24 + 0.5); i >= 0 && i < 7 {
				p.Trends.WeeklyCompletion[i]++
			}
		}
	}

	p.CompletionRate = int(math.Round(float64(completed) / float64(len(tasks)) * 100))
	if completed > 0 {
		p.AverageTimeToComplete = math.Round(days/float64(completed)*10) / 10
	}
	for i, pr := range priorityOrder {
		p.Trends.PriorityDistribution[i] = int(math.Round(float64(p.TasksByPriority[pr]) / float64(len(tasks)) * 100))
	}
	return p
}

type productivityTask struct {
	Title       string         `json:"title"`
	Priority    model.Priority `json:"priority"`
	Completed   bool           `json:"completed"`
	DueDate     *time.Time     `json:"due_date"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at"`
}

// AnalyzeProductivity reports completion statistics and asks the model for
// suggestions based on them.
func (s *Service) AnalyzeProductivity(ctx context.Context, userID int64) (*Productivity, error) {
	tasks, err := s.tasks.List(userID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	stats := s.productivityStats(tasks)

	detail := make([]productivityTask, len(tasks))
	for i, t := range tasks {
		detail[i] = productivityTask{
			Title:       t.Title,
			Priority:    t.Priority,
			Completed:   t.Status == model.StatusCompleted,
			DueDate:     t.DueDate,
			CreatedAt:   t.CreatedAt,
			CompletedAt: t.CompletedAt,
		}
	}
	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	byPriority, _ := json.Marshal(stats.TasksByPriority)

	completed := 0
	for _, t := range tasks {
		if t.Status == model.StatusCompleted {
			completed++
		}
	}
	prompt := fmt.Sprintf(`Analiza la siguiente información de productividad y proporciona insights:

Datos de tareas:
- Total de tareas: %d
- Completadas: %d
- Pendientes: %d
- Por prioridad: %s
- Tiempo promedio para completar: %.1f días

Tareas detalladas:
%s

Responde en formato JSON:
{"mostProductiveTime": "descripción del mejor momento", "suggestions": ["sugerencia1", "sugerencia2", "sugerencia3"]}`,
		len(tasks), completed, len(tasks)-completed, byPriority, stats.AverageTimeToComplete, data)

	raw, report, err := s.ask(ctx, "analyze_productivity", provider.Request{Prompt: prompt, Temperature: 0.6})
	if err != nil {
		return nil, err
	}
	type prose struct {
		MostProductiveTime string   `json:"mostProductiveTime"`
		Suggestions        []string `json:"suggestions"`
	}
	res := normalize.Normalize(raw, productivitySchema, func(raw string) prose {
		return prose{Suggestions: normalize.List(raw)}
	})
	if res.Recovered {
		s.logger.Warn("productivity answer degraded to text", "provider", report.Provider, "error", res.Err)
	}
	stats.MostProductiveTime = res.Value.MostProductiveTime
	stats.Suggestions = nonNil(res.Value.Suggestions)
	stats.Provider = report.Provider
	return &stats, nil
}
