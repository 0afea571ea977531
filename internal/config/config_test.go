package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "tareas.db" {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.Feed.Schedule != "0 */6 * * *" {
		t.Errorf("schedule = %q", cfg.Feed.Schedule)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tareas.yaml")
	data := "port: \"9090\"\nlog_format: json\nmindmap:\n  detail: enormous\ngroq:\n  api_key: gsk-file\nstorage:\n  bucket: apuntes\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.LogFormat != "json" {
		t.Errorf("port/format = %q/%q", cfg.Port, cfg.LogFormat)
	}
	if cfg.Mindmap.Detail != "medium" {
		t.Errorf("detail = %q, want unknown value normalized to medium", cfg.Mindmap.Detail)
	}
	if cfg.Ollama.URL != "http://localhost:11434" {
		t.Errorf("ollama url = %q, want default", cfg.Ollama.URL)
	}
	if cfg.Storage.Bucket != "apuntes" || cfg.Groq.APIKey != "gsk-file" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("port: [unterminated"), 0o600)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TAREAS_PORT":             "3000",
		"TAREAS_GROQ_API_KEY":     " gsk-env ",
		"TAREAS_S3_BUCKET":        "docs",
		"TAREAS_AI_RATE_LIMIT":    "5",
		"TAREAS_PUSH_DIGEST_HOUR": "7",
		"TAREAS_SECURE_COOKIES":   "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.Groq.APIKey = "from-file"
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Port != "3000" || cfg.Groq.APIKey != "gsk-env" || cfg.Storage.Bucket != "docs" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AIRateLimit != 5 || cfg.Push.DigestHour != 7 {
		t.Errorf("ints = %d/%d", cfg.AIRateLimit, cfg.Push.DigestHour)
	}
	if !cfg.SecureCookies {
		t.Error("SecureCookies = false, want true")
	}

	env["TAREAS_AI_RATE_LIMIT"] = "lots"
	if err := Default().ApplyEnv(lookup); err == nil {
		t.Error("expected error for non-numeric rate limit")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tareas.yaml")
	cfg := Default()
	cfg.Timezone = "Europe/Madrid"
	cfg.Push.ReminderLead = "2h"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Timezone != "Europe/Madrid" || got.Push.Lead() != 2*time.Hour {
		t.Errorf("loaded = %+v", got)
	}
	if _, err := got.Location(); err != nil {
		t.Errorf("Location: %v", err)
	}
}

func TestPushLeadFallback(t *testing.T) {
	if got := (PushConfig{ReminderLead: "soon"}).Lead(); got != 24*time.Hour {
		t.Errorf("Lead = %v, want 24h", got)
	}
}
