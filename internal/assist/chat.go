package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
	"github.com/dukerupert/tareas/internal/store"
)

// chatHistory is how many trailing messages are sent with each turn.
const chatHistory = 6

type ChatMessage struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// ChatReply is the assistant's answer. Task is set when the message asked
// for a task and it was created.
type ChatReply struct {
	Reply    string      `json:"reply"`
	Task     *model.Task `json:"task,omitempty"`
	Provider string      `json:"provider,omitempty"`
}

const chatSystem = `Eres un asistente virtual inteligente para una aplicación de gestión de tareas.

REGLA CRÍTICA: si el usuario dice "tengo que hacer", "debo hacer", "necesito hacer" o algo similar, SIEMPRE creas una tarea.

Para crear una tarea responde SOLO con este JSON, sin texto adicional:
{"action": "create_task", "task": {"title": "título limpio", "priority": "medium", "due_date": "tomorrow"}}

Reglas:
- Prioridad: "urgent" si dice urgente o importante, "high" si dice alta o prioritaria, "low" si dice baja, si no "medium".
- Fecha: "today" si dice hoy, "tomorrow" si dice mañana o pasado mañana, null si no lo especifica.
- Título: la acción principal sin palabras como "tengo que" o "es urgente".

Ejemplo:
Usuario: "Necesito comprar leche hoy"
Respuesta: {"action": "create_task", "task": {"title": "Comprar leche", "priority": "medium", "due_date": "today"}}

Responde con texto normal cuando el usuario pregunte por sus tareas, pida ayuda o solo converse.`

type taskAction struct {
	Action string `json:"action"`
	Task   struct {
		Title    string  `json:"title"`
		Priority string  `json:"priority"`
		DueDate  *string `json:"due_date"`
	} `json:"task"`
}

// Chat answers the conversation's last message. When the answer is a
// create_task action the task is created for the user.
func (s *Service) Chat(ctx context.Context, userID int64, messages []ChatMessage) (*ChatReply, error) {
	if len(messages) == 0 || strings.TrimSpace(messages[len(messages)-1].Content) == "" {
		return nil, ErrEmptyMessage
	}
	tasks, err := s.tasks.List(userID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var b strings.Builder
	b.WriteString(s.chatContext(tasks))
	b.WriteString("\n\nHISTORIAL DE CONVERSACIÓN:\n")
	for _, m := range messages[max(0, len(messages)-chatHistory):] {
		who := "Usuario"
		if m.Role == "assistant" {
			who = "Asistente"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, strings.TrimSpace(m.Content))
	}
	b.WriteString("\nRespuesta:")

	raw, report, err := s.ask(ctx, "chat", provider.Request{System: chatSystem, Prompt: b.String(), Temperature: 0.7})
	if err != nil {
		return nil, err
	}
	reply := &ChatReply{Reply: strings.TrimSpace(raw), Provider: report.Provider}

	res := normalize.Normalize(raw, chatSchema, func(string) taskAction { return taskAction{} })
	if res.Recovered {
		return reply, nil
	}
	task, err := s.createFromAction(userID, res.Value)
	if err != nil {
		return nil, err
	}
	reply.Task = task
	reply.Reply = fmt.Sprintf("Tarea creada: %s", task.Title)
	return reply, nil
}

func (s *Service) chatContext(tasks []model.Task) string {
	start, end := s.today()
	var pending, urgent, today int
	for _, t := range tasks {
		if !isOpen(t) {
			continue
		}
		pending++
		if t.Priority == model.PriorityUrgent {
			urgent++
		}
		if t.DueDate != nil && !t.DueDate.Before(start) && t.DueDate.Before(end) {
			today++
		}
	}
	return fmt.Sprintf(`CONTEXTO ACTUAL DEL USUARIO:
- Fecha: %s
- Total de tareas: %d
- Tareas pendientes: %d
- Tareas urgentes: %d
- Tareas de hoy: %d`, start.Format(dateLayout), len(tasks), pending, urgent, today)
}

func (s *Service) createFromAction(userID int64, a taskAction) (*model.Task, error) {
	t := &model.Task{
		UserID:   userID,
		Title:    strings.TrimSpace(a.Task.Title),
		Priority: model.Priority(strings.ToLower(a.Task.Priority)),
		Source:   model.SourceAssistant,
	}
	if !t.Priority.Valid() {
		t.Priority = model.PriorityMedium
	}
	if a.Task.DueDate != nil {
		start, _ := s.today()
		var due time.Time
		switch strings.ToLower(*a.Task.DueDate) {
		case "today":
			due = start
		case "tomorrow":
			due = start.AddDate(0, 0, 1)
		}
		if !due.IsZero() {
			due = time.Date(due.Year(), due.Month(), due.Day(), 23, 59, 59, 0, s.loc)
			t.DueDate = &due
		}
	}
	created, err := s.tasks.Create(t)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created from chat", "user_id", userID, "task_id", created.ID)
	return created, nil
}
