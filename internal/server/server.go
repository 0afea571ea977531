package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/tareas/internal/assist"
	"github.com/dukerupert/tareas/internal/calsync"
	"github.com/dukerupert/tareas/internal/config"
	"github.com/dukerupert/tareas/internal/docstore"
	"github.com/dukerupert/tareas/internal/feed"
	"github.com/dukerupert/tareas/internal/handler"
	"github.com/dukerupert/tareas/internal/middleware"
	"github.com/dukerupert/tareas/internal/notify"
	"github.com/dukerupert/tareas/internal/provider"
	"github.com/dukerupert/tareas/internal/push"
	"github.com/dukerupert/tareas/internal/store"
	"github.com/dukerupert/tareas/internal/study"
	ws "github.com/dukerupert/tareas/internal/websocket"
)

// authRateLimit bounds login and registration attempts per IP per minute.
const authRateLimit = 10

type Server struct {
	db  *sql.DB
	cfg *config.Config
	hub *ws.Hub

	authH         *handler.AuthHandler
	taskH         *handler.TaskHandler
	categoryH     *handler.CategoryHandler
	tagH          *handler.TagHandler
	assistH       *handler.AssistHandler
	studyH        *handler.StudyHandler
	syncH         *handler.SyncHandler
	notificationH *handler.NotificationHandler
	pomodoroH     *handler.PomodoroHandler
	pushH         *handler.PushHandler

	sessionStore  *store.SessionStore
	rateLimiter   *middleware.RateLimiter
	ollama        *provider.Ollama
	notifier      *notify.Service
	pomodoros     *study.Pomodoros
	syncScheduler *calsync.Scheduler
	pushScheduler *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	taskStore := store.NewTaskStore(db)
	tagStore := store.NewTagStore(db)
	categoryStore := store.NewCategoryStore(db)
	subtaskStore := store.NewSubtaskStore(db)
	pushStore := store.NewPushStore(db)

	// Backends. Hosted ones are only wired when a key is configured so
	// the fallback chains skip them.
	var groq, gemini provider.TextGenerator
	var speech study.SpeechSynthesizer
	if cfg.Groq.APIKey != "" {
		groq = provider.NewGroq(provider.GroqConfig{APIKey: cfg.Groq.APIKey, Model: cfg.Groq.Model})
	}
	if cfg.Gemini.APIKey != "" {
		g := provider.NewGemini(provider.GeminiConfig{
			APIKey:   cfg.Gemini.APIKey,
			Model:    cfg.Gemini.Model,
			TTSModel: cfg.Gemini.TTSModel,
			Voice:    cfg.Gemini.Voice,
		})
		gemini, speech = g, g
	}
	ollama := provider.NewOllama(provider.OllamaConfig{
		BaseURL:        cfg.Ollama.URL,
		Model:          cfg.Ollama.Model,
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
	})
	mindmap := provider.NewMindmapService(provider.MindmapConfig{BaseURL: cfg.Mindmap.URL, Detail: cfg.Mindmap.Detail})

	var docs study.DocumentStore
	var docReader handler.DocumentReader
	if cfg.Storage.Enabled() {
		ds, err := docstore.New(cfg.Storage, logger.With("component", "docstore"))
		if err != nil {
			return nil, fmt.Errorf("document storage: %w", err)
		}
		docs, docReader = ds, ds
	}

	notifier := notify.NewService(store.NewNotificationStore(db), hub, logger.With("component", "notify"))

	assistSvc := assist.NewService(db, gemini, groq, logger.With("component", "assist"))
	assistSvc.SetLocation(loc)
	studySvc := study.NewService(db, study.Providers{
		Groq:     groq,
		Gemini:   gemini,
		Ollama:   ollama,
		Mindmap:  mindmap,
		Embedder: ollama,
		Speech:   speech,
	}, docs, logger.With("component", "study"))

	fetcher := feed.NewFetcher(cfg.Feed.CacheDir, cfg.Feed.ProxyURL, logger.With("component", "feed"))
	syncer := calsync.NewSyncer(db, fetcher, notifier, loc, logger.With("component", "calsync"))
	var syncSched *calsync.Scheduler
	if cfg.Feed.Schedule != "" {
		syncSched, err = calsync.NewScheduler(syncer, cfg.Feed.Schedule, loc, logger.With("component", "calsync"))
		if err != nil {
			return nil, err
		}
	}

	var pushSvc *push.Service
	var pushSched *push.Scheduler
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
		schedCfg := push.DefaultSchedulerConfig()
		schedCfg.Lead = cfg.Push.Lead()
		schedCfg.DigestHour = cfg.Push.DigestHour
		pushSched = push.NewScheduler(db, pushSvc, schedCfg, loc, logger.With("component", "push"))
	}

	pomodoros := study.NewPomodoros(study.DefaultPomodoroConfig(), hub)

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, sessionStore, cfg.SecureCookies, logger.With("component", "auth")),
		taskH:         handler.NewTaskHandler(taskStore, tagStore, categoryStore, hub, logger.With("component", "task")),
		categoryH:     handler.NewCategoryHandler(categoryStore, hub, logger.With("component", "category")),
		tagH:          handler.NewTagHandler(tagStore, logger.With("component", "tag")),
		assistH:       handler.NewAssistHandler(assistSvc, taskStore, subtaskStore, hub, logger.With("component", "assist_handler")),
		studyH:        handler.NewStudyHandler(studySvc, taskStore, docReader, logger.With("component", "study_handler")),
		syncH:         handler.NewSyncHandler(syncer, userStore, logger.With("component", "sync_handler")),
		notificationH: handler.NewNotificationHandler(notifier, logger.With("component", "notification")),
		pomodoroH:     handler.NewPomodoroHandler(pomodoros),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		sessionStore:  sessionStore,
		rateLimiter:   middleware.NewRateLimiter(),
		ollama:        ollama,
		notifier:      notifier,
		pomodoros:     pomodoros,
		syncScheduler: syncSched,
		pushScheduler: pushSched,
		logger:        logger,
	}, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Notifier returns the notification service for pruning.
func (s *Server) Notifier() *notify.Service {
	return s.notifier
}

// SyncScheduler returns the calendar sync scheduler, or nil when
// background sync is disabled.
func (s *Server) SyncScheduler() *calsync.Scheduler {
	return s.syncScheduler
}

// PushScheduler returns the reminder scheduler, or nil without VAPID keys.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// Pomodoros returns the focus timers so shutdown can stop them.
func (s *Server) Pomodoros() *study.Pomodoros {
	return s.pomodoros
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	err := s.ollama.Health(ctx)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","ollama_connected":%t,"clients":%d}`+"\n", err == nil, s.hub.ClientCount())
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, authRateLimit, time.Minute)
	return rl(h).ServeHTTP
}

// aiLimited bounds calls that reach a generation backend, per user.
func (s *Server) aiLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.UserOrIP, s.cfg.AIRateLimit, time.Minute)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Session and profile
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/profile", s.authH.Me)
	mux.HandleFunc("PUT /api/profile", s.authH.UpdateProfile)
	mux.HandleFunc("PUT /api/profile/moodle", s.syncH.SetFeed)
	mux.HandleFunc("DELETE /api/profile/moodle", s.syncH.ClearFeed)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/export.ics", s.taskH.Export)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("PATCH /api/tasks/{id}/status", s.taskH.SetStatus)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)

	// Subtasks
	mux.HandleFunc("GET /api/tasks/{id}/subtasks", s.assistH.Subtasks)
	mux.HandleFunc("POST /api/tasks/{id}/subtasks/generate", s.aiLimited(s.assistH.GenerateSubtasks))
	mux.HandleFunc("PATCH /api/tasks/{id}/subtasks/{subtaskID}", s.assistH.ToggleSubtask)

	// Categories and tags
	mux.HandleFunc("GET /api/categories", s.categoryH.List)
	mux.HandleFunc("POST /api/categories", s.categoryH.Create)
	mux.HandleFunc("PUT /api/categories/{id}", s.categoryH.Update)
	mux.HandleFunc("DELETE /api/categories/{id}", s.categoryH.Delete)
	mux.HandleFunc("GET /api/tags", s.tagH.List)
	mux.HandleFunc("POST /api/tags", s.tagH.Create)
	mux.HandleFunc("DELETE /api/tags/{id}", s.tagH.Delete)

	// Assistant
	mux.HandleFunc("POST /api/assist/priority", s.aiLimited(s.assistH.SuggestPriority))
	mux.HandleFunc("POST /api/assist/expand", s.aiLimited(s.assistH.Expand))
	mux.HandleFunc("POST /api/assist/tags", s.aiLimited(s.assistH.SuggestTags))
	mux.HandleFunc("GET /api/assist/conflicts", s.aiLimited(s.assistH.Conflicts))
	mux.HandleFunc("GET /api/assist/daily-summary", s.aiLimited(s.assistH.DailySummary))
	mux.HandleFunc("GET /api/assist/productivity", s.aiLimited(s.assistH.Productivity))
	mux.HandleFunc("POST /api/assist/chat", s.aiLimited(s.assistH.Chat))

	// Study
	mux.HandleFunc("POST /api/study/explain", s.aiLimited(s.studyH.Explain))
	mux.HandleFunc("POST /api/study/resources", s.aiLimited(s.studyH.Resources))
	mux.HandleFunc("POST /api/study/mindmap", s.aiLimited(s.studyH.MindMap))
	mux.HandleFunc("GET /api/study/sessions", s.studyH.Sessions)

	// Per-task tutor
	tutor := map[string]string{
		"explain":    study.ActionExplain,
		"tips":       study.ActionTips,
		"flashcards": study.ActionFlashcards,
		"techniques": study.ActionTechniques,
		"resources":  study.ActionResources,
		"audio":      study.ActionAudio,
	}
	for path, action := range tutor {
		mux.HandleFunc("POST /api/tasks/{id}/tutor/"+path, s.aiLimited(s.studyH.Tutor(action)))
	}

	// Exams
	mux.HandleFunc("GET /api/exams", s.studyH.Exams)
	mux.HandleFunc("POST /api/exams", s.aiLimited(s.studyH.GenerateExam))
	mux.HandleFunc("GET /api/exams/results", s.studyH.ExamResults)
	mux.HandleFunc("POST /api/exams/{id}/submit", s.studyH.SubmitExam)

	// Documents
	mux.HandleFunc("GET /api/documents", s.studyH.Documents)
	mux.HandleFunc("POST /api/documents", s.aiLimited(s.studyH.UploadDocument))
	mux.HandleFunc("GET /api/documents/{id}/file", s.studyH.DocumentFile)
	mux.HandleFunc("POST /api/documents/{id}/ask", s.aiLimited(s.studyH.AskDocument))

	// Calendar sync
	mux.HandleFunc("GET /api/sync/moodle", s.syncH.Status)
	mux.HandleFunc("POST /api/sync/moodle", s.syncH.Sync)
	mux.HandleFunc("POST /api/sync/moodle/import", s.syncH.Import)

	// Notifications and focus timer
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("POST /api/notifications/{id}/dismiss", s.notificationH.Dismiss)
	mux.HandleFunc("GET /api/pomodoro", s.pomodoroH.State)
	mux.HandleFunc("POST /api/pomodoro/{action}", s.pomodoroH.Action)

	// Push notification API routes
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.AllowedOrigins))
}
