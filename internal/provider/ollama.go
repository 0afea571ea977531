package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	ollamaBaseURL        = "http://localhost:11434"
	ollamaDefaultModel   = "llama3.2:3b"
	ollamaEmbeddingModel = "nomic-embed-text"
	ollamaKeepAlive      = "15m"
)

type OllamaConfig struct {
	BaseURL        string
	Model          string
	EmbeddingModel string
	// NumPredict caps generated tokens; zero means 3072.
	NumPredict int
	Timeout    time.Duration
}

// Ollama is the local on-device backend.
type Ollama struct {
	baseURL        string
	model          string
	embeddingModel string
	numPredict     int
	client         *http.Client
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ollamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = ollamaEmbeddingModel
	}
	if cfg.NumPredict == 0 {
		cfg.NumPredict = 3072
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Ollama{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		numPredict:     cfg.NumPredict,
		client:         &http.Client{Timeout: cfg.Timeout},
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Model is the generation model name.
func (o *Ollama) Model() string { return o.model }

// BaseURL is the server address.
func (o *Ollama) BaseURL() string { return o.baseURL }

type ollamaGenerateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive"`
	Options   map[string]any `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *Ollama) GenerateText(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	body := ollamaGenerateRequest{
		Model:     o.model,
		Prompt:    prompt,
		Stream:    false,
		KeepAlive: ollamaKeepAlive,
		Options: map[string]any{
			"temperature": req.Temperature,
			"top_p":       0.9,
			"top_k":       40,
			"num_ctx":     4096,
			"num_predict": o.numPredict,
		},
	}

	var resp ollamaGenerateResponse
	if err := postJSON(ctx, o.client, o.Name(), o.baseURL+"/api/generate", nil, body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", malformedErr(o.Name(), errors.New("empty response"))
	}
	return resp.Response, nil
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]string{"model": o.embeddingModel, "prompt": text}
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := postJSON(ctx, o.client, o.Name(), o.baseURL+"/api/embeddings", nil, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, malformedErr(o.Name(), errors.New("empty embedding"))
	}
	return resp.Embedding, nil
}

// Models lists the models installed on the server.
func (o *Ollama) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, networkErr(o.Name(), 0, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, networkErr(o.Name(), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(o.Name(), resp.StatusCode, "")
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, malformedErr(o.Name(), fmt.Errorf("decode tags: %w", err))
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Health reports whether the server answers.
func (o *Ollama) Health(ctx context.Context) error {
	_, err := o.Models(ctx)
	return err
}
