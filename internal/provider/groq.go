package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	groqBaseURL      = "https://api.groq.com"
	groqDefaultModel = "llama-3.3-70b-versatile"
	groqMaxTokens    = 2000
)

type GroqConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Groq is the fast hosted chat completion backend.
type Groq struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGroq(cfg GroqConfig) *Groq {
	if cfg.Model == "" {
		cfg.Model = groqDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = groqBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Groq{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *Groq) Name() string { return "groq" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *Groq) GenerateText(ctx context.Context, req Request) (string, error) {
	if g.apiKey == "" {
		return "", networkErr(g.Name(), 0, errors.New("api key not configured"))
	}

	body := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   groqMaxTokens,
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	if err := postJSON(ctx, g.client, g.Name(), g.baseURL+"/openai/v1/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", malformedErr(g.Name(), errors.New("response has no content"))
	}
	return resp.Choices[0].Message.Content, nil
}
