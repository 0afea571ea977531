package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/store"
	"github.com/dukerupert/tareas/internal/study"
)

// maxUploadSize caps document uploads.
const maxUploadSize = 20 << 20

// DocumentReader returns stored originals of uploaded documents.
type DocumentReader interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// StudyHandler serves topic study, the per-task tutor, exams and documents.
type StudyHandler struct {
	svc    *study.Service
	tasks  *store.TaskStore
	docs   DocumentReader
	logger *slog.Logger
}

// NewStudyHandler creates the handler. docs may be nil when documents are
// not kept.
func NewStudyHandler(svc *study.Service, ts *store.TaskStore, docs DocumentReader, logger *slog.Logger) *StudyHandler {
	return &StudyHandler{svc: svc, tasks: ts, docs: docs, logger: logger}
}

type topicRequest struct {
	Topic       string `json:"topic"`
	DetailLevel string `json:"detail_level"`
}

// Explain handles POST /api/study/explain
func (h *StudyHandler) Explain(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req topicRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ExplainTopic(r.Context(), uid, req.Topic)
	if err != nil {
		writeServiceError(w, h.logger, "explain topic", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Resources handles POST /api/study/resources
func (h *StudyHandler) Resources(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(w, r); !ok {
		return
	}
	var req topicRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.SuggestResources(r.Context(), req.Topic)
	if err != nil {
		writeServiceError(w, h.logger, "suggest resources", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MindMap handles POST /api/study/mindmap
func (h *StudyHandler) MindMap(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(w, r); !ok {
		return
	}
	var req topicRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.GenerateMindMap(r.Context(), req.Topic, req.DetailLevel)
	if err != nil {
		writeServiceError(w, h.logger, "generate mind map", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sessions handles GET /api/study/sessions
func (h *StudyHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	sessions, err := h.svc.Sessions(uid)
	if err != nil {
		h.logger.Error("list study sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list study sessions")
		return
	}
	if sessions == nil {
		sessions = []model.StudySession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Tutor returns the handler for one tutor action on the {id} task. The
// body is optional and may carry a query (explain) or text (audio).
func (h *StudyHandler) Tutor(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		id, err := parseIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		var req struct {
			Query string `json:"query"`
			Text  string `json:"text"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		task, err := h.tasks.Get(uid, id)
		if err != nil {
			h.logger.Error("get task", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get task")
			return
		}
		if task == nil {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}

		var res *study.TutorResponse
		ctx := r.Context()
		switch action {
		case study.ActionExplain:
			res, err = h.svc.ExplainTask(ctx, task, req.Query)
		case study.ActionTips:
			res, err = h.svc.StudyTips(ctx, task)
		case study.ActionFlashcards:
			res, err = h.svc.GenerateFlashcards(ctx, task)
		case study.ActionTechniques:
			res, err = h.svc.RecommendStudyTechniques(ctx, task)
		case study.ActionResources:
			res, err = h.svc.TutorResources(ctx, task)
		case study.ActionAudio:
			res, err = h.svc.SynthesizeAudio(ctx, task, req.Text)
		default:
			writeError(w, http.StatusNotFound, "unknown tutor action")
			return
		}
		if err != nil {
			writeServiceError(w, h.logger, "tutor "+action, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GenerateExam handles POST /api/exams
func (h *StudyHandler) GenerateExam(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var p study.ExamParams
	if !decodeJSON(w, r, &p) {
		return
	}
	exam, err := h.svc.GenerateExam(r.Context(), uid, p)
	if err != nil {
		writeServiceError(w, h.logger, "generate exam", err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

// Exams handles GET /api/exams
func (h *StudyHandler) Exams(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	exams, err := h.svc.Exams(uid)
	if err != nil {
		h.logger.Error("list exams", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exams")
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

// SubmitExam handles POST /api/exams/{id}/submit with answers keyed by
// question id.
func (h *StudyHandler) SubmitExam(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Answers map[int]model.Answer `json:"answers"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.SubmitExamAnswers(r.Context(), uid, r.PathValue("id"), req.Answers)
	if err != nil {
		writeServiceError(w, h.logger, "submit exam", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExamResults handles GET /api/exams/results?limit=
func (h *StudyHandler) ExamResults(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 100)
	}
	results, err := h.svc.ExamResults(uid, limit)
	if err != nil {
		h.logger.Error("list exam results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exam results")
		return
	}
	if results == nil {
		results = []model.ExamResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// UploadDocument handles POST /api/documents. Clients send either a
// multipart form with the extracted "text" and the original "file", or a
// JSON body {name, text}.
func (h *StudyHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.AnalyzeDocument(r.Context(), uid, up)
	switch {
	case err != nil && doc != nil:
		// The analysis is saved even when some chunks could not be indexed.
		h.logger.Warn("index document", "session_id", doc.Session.ID, "error", err)
	case err != nil:
		writeServiceError(w, h.logger, "analyze document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *StudyHandler) readUpload(w http.ResponseWriter, r *http.Request) (study.DocumentUpload, bool) {
	var up study.DocumentUpload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req struct {
			Name string `json:"name"`
			Text string `json:"text"`
		}
		if !decodeJSON(w, r, &req) {
			return up, false
		}
		up.Name, up.Text = req.Name, req.Text
		return up, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return up, false
	}
	up.Name = r.FormValue("name")
	up.Text = r.FormValue("text")

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid upload")
		return up, false
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload")
			return up, false
		}
		up.Data = data
		up.ContentType = header.Header.Get("Content-Type")
		if up.Name == "" {
			up.Name = header.Filename
		}
		if strings.TrimSpace(up.Text) == "" && strings.HasPrefix(up.ContentType, "text/") {
			up.Text = string(data)
		}
	}
	return up, true
}

// Documents handles GET /api/documents
func (h *StudyHandler) Documents(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	sessions, err := h.svc.Sessions(uid)
	if err != nil {
		h.logger.Error("list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	docs := []model.StudySession{}
	for _, s := range sessions {
		if s.Type == model.StudyDocument {
			docs = append(docs, s)
		}
	}
	writeJSON(w, http.StatusOK, docs)
}

// DocumentFile handles GET /api/documents/{id}/file
func (h *StudyHandler) DocumentFile(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	sess, err := h.svc.Session(uid, id)
	if err != nil {
		h.logger.Error("get document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	if sess == nil || sess.Type != model.StudyDocument {
		writeError(w, http.StatusNotFound, study.ErrDocumentNotFound.Error())
		return
	}
	if h.docs == nil || sess.DocumentKey == "" {
		writeError(w, http.StatusNotFound, "original file not stored")
		return
	}

	data, contentType, err := h.docs.Get(r.Context(), sess.DocumentKey)
	if err != nil {
		h.logger.Error("read document", "key", sess.DocumentKey, "error", err)
		writeError(w, http.StatusBadGateway, "failed to read document")
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(sess.Topic)}))
	w.Write(data)
}

// AskDocument handles POST /api/documents/{id}/ask
func (h *StudyHandler) AskDocument(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.AskQuestionAboutDocument(r.Context(), uid, id, req.Question)
	if err != nil {
		writeServiceError(w, h.logger, "answer question", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
