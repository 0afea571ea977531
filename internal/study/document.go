package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/normalize"
	"github.com/dukerupert/tareas/internal/provider"
)

const (
	chunkSize       = 1000
	chunkOverlap    = 200
	analysisChunks  = 8
	analysisSample  = 5000
	matchThreshold  = 0.7
	matchLimit      = 5
	maxTopics       = 3
	maxConcepts     = 3
	noRelevantMatch = "No encontré información relevante en el documento para responder esa pregunta. Intenta reformularla o pregunta sobre otro tema del documento."
)

var (
	ErrEmptyDocument     = errors.New("document has no text")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrEmptyQuestion     = errors.New("question is required")
	ErrNoEmbeddings      = errors.New("document search is not configured")
	errAnalysisTooSparse = errors.New("analysis has no usable sections")
)

// Chunk splits text into windows of at most size runes that overlap by
// overlap runes. Windows end at whitespace when one falls in their second
// half.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

type Concept struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// DocumentAnalysis is the overview shown after an upload.
type DocumentAnalysis struct {
	FileName      string    `json:"fileName"`
	Summary       string    `json:"summary"`
	MainTopics    []string  `json:"mainTopics"`
	KeyConcepts   []Concept `json:"keyConcepts"`
	Explanation   string    `json:"explanation"`
	TotalSections int       `json:"totalSections"`
	Provider      string    `json:"provider,omitempty"`
}

// DocumentUpload is a document whose text was extracted by the client.
// Data is the original file and may be empty.
type DocumentUpload struct {
	Name        string
	Text        string
	Data        []byte
	ContentType string
}

type IndexedDocument struct {
	Session  *model.StudySession `json:"session"`
	Analysis DocumentAnalysis    `json:"analysis"`
	Index    IndexStats          `json:"index"`
}

// AnalyzeDocument summarizes an uploaded document, keeps the original,
// records a study session and indexes the text for questions.
func (s *Service) AnalyzeDocument(ctx context.Context, userID int64, up DocumentUpload) (*IndexedDocument, error) {
	name := path.Base(strings.TrimSpace(up.Name))
	if name == "." || name == "/" {
		name = "documento"
	}
	chunks := Chunk(up.Text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	analysis := s.analyze(ctx, name, chunks)

	var key string
	if s.docs != nil && len(up.Data) > 0 {
		key = fmt.Sprintf("documents/%d/%s-%s", userID, s.newID(), name)
		if err := s.docs.Put(ctx, key, up.Data, up.ContentType); err != nil {
			s.logger.Warn("store document", "name", name, "error", err)
			key = ""
		}
	}

	content, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	sess, err := s.sessions.Create(&model.StudySession{
		UserID:      userID,
		Type:        model.StudyDocument,
		Topic:       name,
		Content:     string(content),
		DocumentKey: key,
		UsesRAG:     s.providers.Embedder != nil,
		TotalChunks: len(chunks),
	})
	if err != nil {
		return nil, fmt.Errorf("save study session: %w", err)
	}

	doc := &IndexedDocument{Session: sess, Analysis: analysis, Index: IndexStats{Total: len(chunks)}}
	if s.providers.Embedder == nil {
		return doc, nil
	}
	stats, err := s.indexer.Index(ctx, model.DocumentChunk{UserID: userID, SessionID: sess.ID, DocumentName: name}, chunks)
	doc.Index = stats
	if err != nil {
		return doc, fmt.Errorf("index document: %w", err)
	}
	return doc, nil
}

const analysisSystem = `Eres un asistente educativo experto en análisis de documentos. Extraes la información clave del contenido.`

// analyze never fails: when no backend answers usefully the overview is
// built from the text itself.
func (s *Service) analyze(ctx context.Context, name string, chunks []string) DocumentAnalysis {
	sample := strings.Join(chunks[:min(analysisChunks, len(chunks))], "\n\n")
	if r := []rune(sample); len(r) > analysisSample {
		sample = string(r[:analysisSample])
	}

	req := provider.Request{
		System: analysisSystem,
		Prompt: fmt.Sprintf(`Analiza este documento.

DOCUMENTO: %q
CONTENIDO:
%s

Responde con este formato:

RESUMEN:
[3 o 4 oraciones sobre el tema principal]

TEMAS PRINCIPALES:
1. [tema]
2. [tema]
3. [tema]

CONCEPTOS CLAVE:
- [concepto]: [explicación breve]
- [concepto]: [explicación breve]
- [concepto]: [explicación breve]`, name, sample),
		Temperature: 0.3,
	}

	a := DocumentAnalysis{FileName: name, TotalSections: len(chunks)}
	raw, report, err := s.chain(ctx, "analyze_document", req, s.documentOrder()...)
	if err == nil {
		err = parseAnalysis(raw, &a)
		a.Provider = report.Provider
	}
	if err != nil {
		s.logger.Warn("document analysis degraded", "name", name, "error", err)
	}

	if len([]rune(a.Summary)) < 20 {
		a.Summary = firstSentences(sample, 3)
	}
	if len(a.MainTopics) == 0 {
		a.MainTopics = keywords(sample, maxTopics)
	}
	if len(a.KeyConcepts) == 0 {
		a.KeyConcepts = []Concept{{Term: "Contenido principal", Definition: "Información clave del documento"}}
	}
	a.MainTopics = nonNil(a.MainTopics)
	a.Explanation = a.Summary
	return a
}

func parseAnalysis(raw string, a *DocumentAnalysis) error {
	sec := normalize.Sections(raw, "RESUMEN", "TEMAS PRINCIPALES", "CONCEPTOS CLAVE")
	if len(sec) == 0 {
		return errAnalysisTooSparse
	}
	a.Summary = strings.Join(strings.Fields(sec["RESUMEN"]), " ")
	for _, t := range normalize.List(sec["TEMAS PRINCIPALES"]) {
		if len(a.MainTopics) == maxTopics {
			break
		}
		a.MainTopics = append(a.MainTopics, t)
	}
	for _, item := range normalize.List(sec["CONCEPTOS CLAVE"]) {
		if len(a.KeyConcepts) == maxConcepts {
			break
		}
		term, def, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		term, def = strings.Trim(strings.TrimSpace(term), "*"), strings.TrimSpace(def)
		if term != "" && def != "" {
			a.KeyConcepts = append(a.KeyConcepts, Concept{Term: term, Definition: def})
		}
	}
	return nil
}

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

func firstSentences(text string, n int) string {
	found := sentencePattern.FindAllString(text, n)
	if len(found) == 0 {
		r := []rune(strings.TrimSpace(text))
		return string(r[:min(len(r), 200)])
	}
	for i := range found {
		found[i] = strings.Join(strings.Fields(found[i]), " ")
	}
	return strings.Join(found, " ")
}

var stopWords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "de": true, "del": true, "y": true,
	"en": true, "a": true, "que": true, "un": true, "una": true, "por": true, "para": true,
	"con": true, "es": true, "se": true, "su": true, "al": true, "como": true, "más": true,
	"este": true, "esta": true, "sobre": true, "entre": true, "también": true,
}

// keywords picks the n most frequent words longer than five letters.
func keywords(text string, n int) []string {
	counts := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if len([]rune(w)) > 5 && !stopWords[w] {
			counts[w]++
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	words = words[:min(n, len(words))]
	for i, w := range words {
		r := []rune(w)
		words[i] = string(unicode.ToUpper(r[0])) + string(r[1:])
	}
	return words
}

// DocumentAnswer is an answer grounded in a document's chunks.
type DocumentAnswer struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Sources  []Match `json:"sources"`
	Provider string  `json:"provider,omitempty"`
}

const answerSystem = `Eres un tutor educativo. Respondes basándote ÚNICAMENTE en el contexto proporcionado.`

// AskQuestionAboutDocument answers question from the most similar chunks
// of the document in session sessionID (Ollama, then Groq).
func (s *Service) AskQuestionAboutDocument(ctx context.Context, userID, sessionID int64, question string) (*DocumentAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	sess, err := s.sessions.FindByID(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get study session: %w", err)
	}
	if sess == nil || sess.Type != model.StudyDocument {
		return nil, ErrDocumentNotFound
	}
	if s.providers.Embedder == nil {
		return nil, ErrNoEmbeddings
	}

	vec, err := s.providers.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	chunks, err := s.chunks.ForSession(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	matches := Search(vec, chunks, matchThreshold, matchLimit)
	out := &DocumentAnswer{Question: question, Sources: matches}
	if len(matches) == 0 {
		out.Answer = noRelevantMatch
		out.Sources = []Match{}
		return out, nil
	}

	var ctxText strings.Builder
	for i, m := range matches {
		if i > 0 {
			ctxText.WriteString("\n\n")
		}
		fmt.Fprintf(&ctxText, "[Sección %d] %s", i+1, m.Content)
	}
	req := provider.Request{
		System: answerSystem,
		Prompt: fmt.Sprintf(`PREGUNTA: %s

CONTEXTO:
%s

Responde de forma clara y pedagógica usando solo el contexto. Si el contexto no basta, dilo.`, question, ctxText.String()),
		Temperature: 0.5,
	}
	answer, report, err := s.chain(ctx, "document_qa", req, s.documentOrder()...)
	if err != nil {
		return nil, err
	}
	out.Answer = strings.TrimSpace(answer)
	out.Provider = report.Provider
	return out, nil
}
