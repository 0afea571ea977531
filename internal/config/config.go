// Package config loads the server configuration from a YAML file overlaid
// by TAREAS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/tareas/internal/docstore"
)

type GroqConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	TTSModel string `yaml:"tts_model"`
	Voice    string `yaml:"voice"`
}

type OllamaConfig struct {
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

type MindmapConfig struct {
	URL    string `yaml:"url"`
	Detail string `yaml:"detail"`
}

// FeedConfig controls calendar feed downloads.
type FeedConfig struct {
	CacheDir string `yaml:"cache_dir"`
	// ProxyURL is a CORS-style relay taking the feed as ?url=.
	ProxyURL string `yaml:"proxy_url"`
	// Schedule is a cron spec for background sync; empty disables it.
	Schedule string `yaml:"schedule"`
}

type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
	ReminderLead    string `yaml:"reminder_lead"`
	DigestHour      int    `yaml:"digest_hour"`
}

// Lead parses ReminderLead, falling back to 24h.
func (p PushConfig) Lead() time.Duration {
	d, err := time.ParseDuration(p.ReminderLead)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Timezone  string `yaml:"timezone"`
	// AIRateLimit is the number of AI requests a user may make per minute.
	AIRateLimit int `yaml:"ai_rate_limit"`
	// SecureCookies marks the session cookie Secure; enable behind TLS.
	SecureCookies bool `yaml:"secure_cookies"`
	// AllowedOrigins are extra host patterns allowed to open websockets.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Groq    GroqConfig      `yaml:"groq"`
	Gemini  GeminiConfig    `yaml:"gemini"`
	Ollama  OllamaConfig    `yaml:"ollama"`
	Mindmap MindmapConfig   `yaml:"mindmap"`
	Feed    FeedConfig      `yaml:"feed"`
	Storage docstore.Config `yaml:"storage"`
	Push    PushConfig      `yaml:"push"`
}

func Default() *Config {
	return &Config{
		Port:        "8080",
		DBPath:      "tareas.db",
		LogLevel:    "info",
		LogFormat:   "text",
		Timezone:    "America/Bogota",
		AIRateLimit: 30,
		Ollama: OllamaConfig{
			URL:            "http://localhost:11434",
			Model:          "llama3.2",
			EmbeddingModel: "nomic-embed-text",
		},
		Mindmap: MindmapConfig{URL: "http://localhost:8000", Detail: "medium"},
		Feed:    FeedConfig{Schedule: "0 */6 * * *"},
		Push:    PushConfig{ReminderLead: "24h", DigestHour: 8},
	}
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	def := Default()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat != "json" {
		c.LogFormat = "text"
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.AIRateLimit <= 0 {
		c.AIRateLimit = def.AIRateLimit
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = def.Ollama.URL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = def.Ollama.Model
	}
	if c.Ollama.EmbeddingModel == "" {
		c.Ollama.EmbeddingModel = def.Ollama.EmbeddingModel
	}
	if c.Mindmap.URL == "" {
		c.Mindmap.URL = def.Mindmap.URL
	}
	switch c.Mindmap.Detail {
	case "basic", "medium", "detailed":
	default:
		c.Mindmap.Detail = def.Mindmap.Detail
	}
	if c.Push.ReminderLead == "" {
		c.Push.ReminderLead = def.Push.ReminderLead
	}
	if c.Push.DigestHour < 0 || c.Push.DigestHour > 23 {
		c.Push.DigestHour = def.Push.DigestHour
	}
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads path (a missing file yields defaults), applies the process
// environment and normalizes.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overlays TAREAS_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TAREAS_PORT":               &c.Port,
		"TAREAS_DB_PATH":            &c.DBPath,
		"TAREAS_LOG_LEVEL":          &c.LogLevel,
		"TAREAS_LOG_FORMAT":         &c.LogFormat,
		"TAREAS_TIMEZONE":           &c.Timezone,
		"TAREAS_GROQ_API_KEY":       &c.Groq.APIKey,
		"TAREAS_GROQ_MODEL":         &c.Groq.Model,
		"TAREAS_GEMINI_API_KEY":     &c.Gemini.APIKey,
		"TAREAS_GEMINI_MODEL":       &c.Gemini.Model,
		"TAREAS_OLLAMA_URL":         &c.Ollama.URL,
		"TAREAS_OLLAMA_MODEL":       &c.Ollama.Model,
		"TAREAS_MINDMAP_URL":        &c.Mindmap.URL,
		"TAREAS_FEED_CACHE_DIR":     &c.Feed.CacheDir,
		"TAREAS_FEED_PROXY_URL":     &c.Feed.ProxyURL,
		"TAREAS_SYNC_SCHEDULE":      &c.Feed.Schedule,
		"TAREAS_S3_ENDPOINT":        &c.Storage.Endpoint,
		"TAREAS_S3_BUCKET":          &c.Storage.Bucket,
		"TAREAS_S3_REGION":          &c.Storage.Region,
		"TAREAS_S3_ACCESS_KEY":      &c.Storage.AccessKey,
		"TAREAS_S3_SECRET_KEY":      &c.Storage.SecretKey,
		"TAREAS_STORAGE_PASSPHRASE": &c.Storage.Passphrase,
		"TAREAS_VAPID_PUBLIC_KEY":   &c.Push.VAPIDPublicKey,
		"TAREAS_VAPID_PRIVATE_KEY":  &c.Push.VAPIDPrivateKey,
		"TAREAS_PUSH_SUBSCRIBER":    &c.Push.Subscriber,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"TAREAS_AI_RATE_LIMIT":    &c.AIRateLimit,
		"TAREAS_PUSH_DIGEST_HOUR": &c.Push.DigestHour,
	}
	for name, dst := range ints {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}

	if v, ok := lookup("TAREAS_SECURE_COOKIES"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("TAREAS_SECURE_COOKIES: %w", err)
		}
		c.SecureCookies = b
	}
	return nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tareas-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
