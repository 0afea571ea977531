package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com"
	geminiDefaultModel = "gemini-2.5-flash"
	geminiTTSModel     = "gemini-2.5-flash-preview-tts"
	geminiDefaultVoice = "Kore"
)

type GeminiConfig struct {
	APIKey   string
	Model    string
	TTSModel string
	Voice    string
	BaseURL  string
	Timeout  time.Duration
}

// Gemini is the secondary hosted backend. It also synthesizes speech.
type Gemini struct {
	apiKey   string
	model    string
	ttsModel string
	voice    string
	baseURL  string
	client   *http.Client
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = geminiTTSModel
	}
	if cfg.Voice == "" {
		cfg.Voice = geminiDefaultVoice
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Gemini{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		ttsModel: cfg.TTSModel,
		voice:    cfg.Voice,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) generate(ctx context.Context, model string, body geminiRequest) (*geminiResponse, error) {
	if g.apiKey == "" {
		return nil, networkErr(g.Name(), 0, errors.New("api key not configured"))
	}
	var resp geminiResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model)
	headers := map[string]string{"x-goog-api-key": g.apiKey}
	if err := postJSON(ctx, g.client, g.Name(), url, headers, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, malformedErr(g.Name(), errors.New("response has no candidates"))
	}
	return &resp, nil
}

func (g *Gemini) GenerateText(ctx context.Context, req Request) (string, error) {
	body := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: map[string]any{"temperature": req.Temperature},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	resp, err := g.generate(ctx, g.model, body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", malformedErr(g.Name(), errors.New("response has no text"))
	}
	return sb.String(), nil
}

// Audio is synthesized speech.
type Audio struct {
	Data     []byte
	MimeType string
}

// SynthesizeSpeech reads text aloud with the configured voice.
func (g *Gemini) SynthesizeSpeech(ctx context.Context, text string) (*Audio, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]any{"voiceName": g.voice},
				},
			},
		},
	}

	resp, err := g.generate(ctx, g.ttsModel, body)
	if err != nil {
		return nil, err
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, malformedErr(g.Name(), fmt.Errorf("decode audio: %w", err))
		}
		return &Audio{Data: data, MimeType: p.InlineData.MimeType}, nil
	}
	return nil, malformedErr(g.Name(), errors.New("response has no audio"))
}
