package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Detail levels accepted by the mind map service.
const (
	DetailBasic    = "basic"
	DetailMedium   = "medium"
	DetailDetailed = "detailed"
)

type MindmapConfig struct {
	BaseURL string
	Detail  string
	Timeout time.Duration
}

// MindmapService calls the local mind map generator (cmd/mindmapd). The
// prompt is sent as the topic.
type MindmapService struct {
	baseURL string
	detail  string
	client  *http.Client
}

func NewMindmapService(cfg MindmapConfig) *MindmapService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Detail == "" {
		cfg.Detail = DetailMedium
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &MindmapService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		detail:  cfg.Detail,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (m *MindmapService) Name() string { return "mindmap" }

// MindmapRequest is the wire request of POST /generate-mindmap.
type MindmapRequest struct {
	Topic       string `json:"topic"`
	DetailLevel string `json:"detail_level"`
}

// MindmapResponse is the wire response of POST /generate-mindmap.
type MindmapResponse struct {
	MermaidCode string `json:"mermaid_code"`
}

func (m *MindmapService) GenerateText(ctx context.Context, req Request) (string, error) {
	return m.Generate(ctx, req.Prompt, m.detail)
}

// Generate asks for a diagram of topic at the given detail level.
func (m *MindmapService) Generate(ctx context.Context, topic, detail string) (string, error) {
	if detail == "" {
		detail = m.detail
	}
	var resp MindmapResponse
	body := MindmapRequest{Topic: topic, DetailLevel: detail}
	if err := postJSON(ctx, m.client, m.Name(), m.baseURL+"/generate-mindmap", nil, body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.MermaidCode) == "" {
		return "", malformedErr(m.Name(), errors.New("empty mermaid code"))
	}
	return resp.MermaidCode, nil
}
