// Package config loads the engine's configuration from
// $HOME/.codebased/config.toml, layering environment variable
// fallbacks, and produces an immutable Config value. Config is
// produced by the CLI layer (an external collaborator per the spec)
// but the loader lives here because the engine owns its own defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"codebased/internal/errs"
)

const (
	// DefaultEmbeddingModel is used when config.toml omits embedding_model.
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension is used when config.toml omits embedding_dimension.
	DefaultEmbeddingDimension = 1536
	// DefaultIndexRoot is the directory name under the repo root that
	// holds index.db, ann.bin, and meta.toml.
	DefaultIndexRoot = ".codebased"
)

// Config is the immutable, fully-resolved configuration for one run of
// the engine. It is never mutated after Load returns.
type Config struct {
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimension  int
	EditorCommand       string
	IndexRoot           string
	ConfigDir           string
}

// fileConfig mirrors config.toml's keys exactly; zero values mean "not set".
type fileConfig struct {
	EmbeddingAPIKey    string `toml:"embedding_api_key"`
	EmbeddingModel     string `toml:"embedding_model"`
	EmbeddingDimension int    `toml:"embedding_dimension"`
	EditorCommand      string `toml:"editor_command"`
	IndexRoot          string `toml:"index_root"`
}

// Load reads $HOME/.codebased/config.toml (if present), applies
// EMBEDDING_API_KEY/EDITOR environment fallbacks, fills in defaults, and
// returns the resolved Config. A missing config file is not an error —
// env vars and defaults may be sufficient — but a missing embedding API
// key from both sources is (%w-wraps errs.ErrConfig).
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w: %w", errs.ErrConfig, err)
	}
	dir := filepath.Join(home, ".codebased")
	path := filepath.Join(dir, "config.toml")

	var fc fileConfig
	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w: %w", path, errs.ErrConfig, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w: %w", path, errs.ErrConfig, err)
	}

	cfg := Config{
		EmbeddingAPIKey:    fc.EmbeddingAPIKey,
		EmbeddingModel:     fc.EmbeddingModel,
		EmbeddingDimension: fc.EmbeddingDimension,
		EditorCommand:      fc.EditorCommand,
		IndexRoot:          fc.IndexRoot,
		ConfigDir:          dir,
	}

	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = os.Getenv("EMBEDDING_API_KEY")
	}
	if cfg.EditorCommand == "" {
		cfg.EditorCommand = os.Getenv("EDITOR")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDimension == 0 {
		cfg.EmbeddingDimension = DefaultEmbeddingDimension
	}
	if cfg.IndexRoot == "" {
		cfg.IndexRoot = DefaultIndexRoot
	}

	if cfg.EmbeddingAPIKey == "" {
		return Config{}, fmt.Errorf("%w: no embedding_api_key in %s or EMBEDDING_API_KEY", errs.ErrConfig, path)
	}

	return cfg, nil
}
