package store

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// SchemaVersion is bumped whenever the catalog/FTS/ANN DDL changes in
// a way that isn't safely migratable in place.
const SchemaVersion = 1

// PersistedMeta is meta.toml's shape: the fingerprint of "what this
// index was built with", checked against the running config on open so
// a model or schema change triggers the guided full rebuild in
// spec.md §7 instead of silently mixing incompatible embeddings.
type PersistedMeta struct {
	SchemaVersion      int    `toml:"schema_version"`
	EmbeddingModel     string `toml:"embedding_model"`
	EmbeddingDimension int    `toml:"embedding_dimension"`
}

// LoadMeta reads meta.toml at path. A missing file returns the zero
// value with ok=false, not an error — a brand new index has no meta yet.
func LoadMeta(path string) (PersistedMeta, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return PersistedMeta{}, false, nil
	}
	if err != nil {
		return PersistedMeta{}, false, err
	}
	var m PersistedMeta
	if _, err := toml.Decode(string(data), &m); err != nil {
		return PersistedMeta{}, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, true, nil
}

// SaveMeta writes meta.toml at path, overwriting any existing file.
func SaveMeta(path string, m PersistedMeta) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(m)
}

// Matches reports whether m is compatible with the given running
// config, i.e. no rebuild is required.
func (m PersistedMeta) Matches(model string, dim int) bool {
	return m.SchemaVersion == SchemaVersion && m.EmbeddingModel == model && m.EmbeddingDimension == dim
}
