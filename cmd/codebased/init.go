package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codebased/internal/config"
	"codebased/internal/embed"
	"codebased/internal/extract"
	"codebased/internal/extract/lang"
	"codebased/internal/index"
	"codebased/internal/store"
)

var flagWatch bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Build or refresh the code index for the repository at --root",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, closeStore, err := openStoreFor(ctx, flagRoot, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		em, err := embed.New(embed.Config{
			APIKey:    cfg.EmbeddingAPIKey,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		}, st)
		if err != nil {
			return err
		}

		idx := index.New(index.Config{Root: flagRoot}, st, newExtractor(), em)
		go drainEvents(idx)

		fmt.Printf("indexing %s\n", flagRoot)
		start := time.Now()

		if flagWatch {
			return idx.Watch(ctx)
		}

		stats, err := idx.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("done in %s: %d files indexed, %d skipped, %d removed, %d objects, %d quarantined\n",
			time.Since(start).Round(time.Millisecond),
			stats.FilesIndexed, stats.FilesSkipped, stats.FilesRemoved, stats.ObjectsTotal, stats.Quarantined)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagWatch, "watch", false, "keep indexing as files change")
	rootCmd.AddCommand(initCmd)
}

func newExtractor() *extract.Extractor {
	reg := extract.NewRegistry()
	lang.RegisterGo(reg)
	lang.RegisterPython(reg)
	lang.RegisterJavaScript(reg)
	lang.RegisterTypeScript(reg)
	lang.RegisterRust(reg)
	lang.RegisterJava(reg)
	return extract.NewExtractor(reg)
}

// openStoreFor opens (creating if absent) the index at root's
// .codebased directory, checking meta.toml against the running config
// and performing the guided full rebuild on a mismatch, per spec.md §7.
func openStoreFor(ctx context.Context, root string, cfg config.Config) (*store.Store, func(), error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, err
	}
	indexDir := filepath.Join(absRoot, cfg.IndexRoot)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create index directory: %w", err)
	}

	dbPath := filepath.Join(indexDir, "index.db")
	annPath := filepath.Join(indexDir, "ann.bin")
	metaPath := filepath.Join(indexDir, "meta.toml")

	st, err := store.Open(dbPath, annPath)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { st.Close() }

	meta, ok, err := store.LoadMeta(metaPath)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if !ok || !meta.Matches(cfg.EmbeddingModel, cfg.EmbeddingDimension) {
		fmt.Println("embedding model or schema changed, rebuilding index from scratch")
		if err := st.ResetAll(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		meta = store.PersistedMeta{
			SchemaVersion:      store.SchemaVersion,
			EmbeddingModel:     cfg.EmbeddingModel,
			EmbeddingDimension: cfg.EmbeddingDimension,
		}
		if err := store.SaveMeta(metaPath, meta); err != nil {
			closeFn()
			return nil, nil, err
		}
	}

	if err := st.LoadOrRebuildANN(ctx, cfg.EmbeddingDimension); err != nil {
		closeFn()
		return nil, nil, err
	}

	return st, closeFn, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func drainEvents(idx *index.Indexer) {
	for range idx.Events() {
	}
}
