// Package fingerprint implements the FingerprintCatalog's diff logic:
// given the current path set and the durable state held by
// internal/store, partition into added/modified/removed/unchanged using
// a cheap (size, mtime) prefilter before ever hashing file content.
// Grounded on the teacher's GetFileHash/UpsertFile pair in
// internal/store/store.go, split into its own component per the spec.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// Fingerprint is the durable identity of one file at a point in time.
type Fingerprint struct {
	Path        string
	Size        int64
	ModTimeNano int64
	ContentHash string
}

// Candidate is a file discovered on disk, not yet hashed.
type Candidate struct {
	Path        string
	Size        int64
	ModTimeNano int64
}

// Store is the subset of internal/store.Store the catalog diff needs.
type Store interface {
	Fingerprint(ctx context.Context, path string) (Fingerprint, bool, error)
	AllPaths(ctx context.Context) ([]string, error)
}

// ScanResult partitions the current file set against stored state.
type ScanResult struct {
	Added    []Fingerprint
	Modified []Fingerprint
	Removed  []string
	Unchanged []string
}

// Scan compares candidates (freshly walked from disk) against store's
// persisted fingerprints. Content hashes are computed only for
// candidates whose (size, mtime_ns) disagree with the stored value —
// the spec's required cheap-first prefilter — and for paths never seen
// before. Removed = present in store but absent from candidates.
func Scan(ctx context.Context, st Store, candidates []Candidate, read func(path string) ([]byte, error)) (ScanResult, error) {
	var result ScanResult
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		seen[c.Path] = true
		prior, ok, err := st.Fingerprint(ctx, c.Path)
		if err != nil {
			return ScanResult{}, fmt.Errorf("lookup fingerprint %s: %w", c.Path, err)
		}
		if ok && prior.Size == c.Size && prior.ModTimeNano == c.ModTimeNano {
			result.Unchanged = append(result.Unchanged, c.Path)
			continue
		}

		hash, err := hashFile(c.Path, read)
		if err != nil {
			return ScanResult{}, fmt.Errorf("hash %s: %w", c.Path, err)
		}
		fp := Fingerprint{Path: c.Path, Size: c.Size, ModTimeNano: c.ModTimeNano, ContentHash: hash}

		if ok && prior.ContentHash == hash {
			// Same bytes despite a metadata change (e.g. touch, rename+restore).
			result.Unchanged = append(result.Unchanged, c.Path)
			continue
		}
		if ok {
			result.Modified = append(result.Modified, fp)
		} else {
			result.Added = append(result.Added, fp)
		}
	}

	allPaths, err := st.AllPaths(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("list catalog paths: %w", err)
	}
	for _, p := range allPaths {
		if !seen[p] {
			result.Removed = append(result.Removed, p)
		}
	}

	return result, nil
}

func hashFile(path string, read func(path string) ([]byte, error)) (string, error) {
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
