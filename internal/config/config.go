// Package config loads and validates the Skillscout configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/logging"
	"github.com/skillscout/skillscout/internal/skill"
)

// Defaults applied by NewConfig.
const (
	DefaultEmbeddingModel        = "nomic-embed-text"
	DefaultTopK                  = 3
	DefaultUpdateIntervalSeconds = 3600
	DefaultSourceTimeoutSeconds  = 300
	DefaultMaxImageSizeBytes     = 5 * 1024 * 1024
	DefaultListenAddr            = "127.0.0.1:8740"
)

// SourceType selects a source adapter.
type SourceType string

const (
	// SourceGit fetches a git-hosted archive (GitHub-style zip export).
	SourceGit SourceType = "git"

	// SourceLocal reads an absolute directory path.
	SourceLocal SourceType = "local"
)

// SourceConfig describes one skill source.
type SourceConfig struct {
	Type SourceType `json:"type"`

	// URL is the repository URL (git sources).
	URL string `json:"url,omitempty"`

	// Ref is an optional branch, tag, or commit (git sources).
	Ref string `json:"ref,omitempty"`

	// Path is the subdirectory within the repository (git sources)
	// or the absolute directory (local sources).
	Path string `json:"path,omitempty"`

	// Scope and TenantID are inherited by every skill from this source.
	Scope    string `json:"scope,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Config is the full service configuration.
type Config struct {
	SkillSources []SourceConfig `json:"skill_sources"`

	// EmbeddingModel is the opaque model identifier passed to the
	// embedding provider. Model names starting with "static" select
	// the offline hash embedder.
	EmbeddingModel string `json:"embedding_model"`

	// OllamaHost overrides the Ollama endpoint (default http://localhost:11434).
	OllamaHost string `json:"ollama_host,omitempty"`

	DefaultTopK           int  `json:"default_top_k"`
	AutoUpdateEnabled     bool `json:"auto_update_enabled"`
	UpdateIntervalSeconds int  `json:"update_interval_seconds"`
	SourceTimeoutSeconds  int  `json:"source_timeout_seconds"`

	// LoadSkillDocuments controls whether non-manifest files are kept.
	LoadSkillDocuments bool `json:"load_skill_documents"`

	TextFileExtensions     []string `json:"text_file_extensions"`
	AllowedImageExtensions []string `json:"allowed_image_extensions"`
	MaxImageSizeBytes      int64    `json:"max_image_size_bytes"`

	// ListenAddr is the HTTP listen address for /mcp, /skills/upload, /health.
	ListenAddr string `json:"listen_addr,omitempty"`

	// CacheDir holds downloaded source archives. Defaults to
	// ~/.skillscout/cache.
	CacheDir string `json:"cache_dir,omitempty"`

	Log logging.Config `json:"log,omitempty"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		EmbeddingModel:        DefaultEmbeddingModel,
		DefaultTopK:           DefaultTopK,
		UpdateIntervalSeconds: DefaultUpdateIntervalSeconds,
		SourceTimeoutSeconds:  DefaultSourceTimeoutSeconds,
		LoadSkillDocuments:    true,
		TextFileExtensions: []string{
			".md", ".txt", ".py", ".sh", ".js", ".ts", ".json", ".yaml", ".yml",
			".toml", ".csv", ".html", ".css", ".xml",
		},
		AllowedImageExtensions: []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"},
		MaxImageSizeBytes:      DefaultMaxImageSizeBytes,
		ListenAddr:             DefaultListenAddr,
		CacheDir:               defaultCacheDir(),
		Log:                    logging.DefaultConfig(),
	}
}

// Load reads, decodes, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigInvalid, fmt.Errorf("read config %s: %w", path, err))
	}

	cfg := NewConfig()
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(errors.CodeConfigInvalid, fmt.Errorf("parse config %s: %w", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.DefaultTopK < 1 {
		return errors.Newf(errors.CodeConfigInvalid, "default_top_k must be >= 1, got %d", c.DefaultTopK)
	}
	if c.UpdateIntervalSeconds < 1 {
		return errors.Newf(errors.CodeConfigInvalid, "update_interval_seconds must be >= 1, got %d", c.UpdateIntervalSeconds)
	}
	if c.SourceTimeoutSeconds < 1 {
		return errors.Newf(errors.CodeConfigInvalid, "source_timeout_seconds must be >= 1, got %d", c.SourceTimeoutSeconds)
	}
	if c.MaxImageSizeBytes < 0 {
		return errors.Newf(errors.CodeConfigInvalid, "max_image_size_bytes must be >= 0")
	}
	if c.EmbeddingModel == "" {
		return errors.New(errors.CodeConfigInvalid, "embedding_model is required")
	}

	for i, src := range c.SkillSources {
		if err := src.validate(); err != nil {
			return errors.Newf(errors.CodeConfigInvalid, "skill_sources[%d]: %v", i, err)
		}
	}

	return nil
}

func (s *SourceConfig) validate() error {
	if _, err := skill.ParseScope(s.Scope); err != nil {
		return err
	}
	scope, _ := skill.ParseScope(s.Scope)
	if scope == skill.ScopeTenant && s.TenantID == "" {
		return fmt.Errorf("tenant scope requires tenant_id")
	}
	if scope == skill.ScopeGlobal && s.TenantID != "" {
		return fmt.Errorf("global scope must not set tenant_id")
	}

	switch s.Type {
	case SourceGit:
		if s.URL == "" {
			return fmt.Errorf("git source requires url")
		}
	case SourceLocal:
		if s.Path == "" {
			return fmt.Errorf("local source requires path")
		}
		if !filepath.IsAbs(s.Path) {
			return fmt.Errorf("local source path must be absolute, got %q", s.Path)
		}
	default:
		return fmt.Errorf("unknown source type %q", s.Type)
	}

	return nil
}

// UpdateInterval returns the refresh interval as a duration.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSeconds) * time.Second
}

// SourceTimeout returns the per-source fetch timeout as a duration.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skillscout", "cache")
	}
	return filepath.Join(home, ".skillscout", "cache")
}
