package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codebased/internal/embed"
	"codebased/internal/search"
	"codebased/internal/tui"
)

var flagLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the code index, or browse it interactively with no query",
	Args:  cobra.ArbitraryArgs,
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

		searcher, err := search.New(st, em, flagRoot)
		if err != nil {
			return err
		}

		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return tui.Run(tui.Config{
				Searcher:    searcher,
				EditorCmd:   cfg.EditorCommand,
				ResultLimit: flagLimit,
			}, "")
		}

		results, err := searcher.Search(ctx, query, flagLimit)
		if err != nil {
			return err
		}
		printResults(results)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&flagLimit, "limit", "n", 10, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func printResults(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for _, r := range results {
		fmt.Printf("%s:%d\t%s\t%s\t(%.4f)\n",
			r.Object.Path, r.Object.Coordinates.StartLine+1, r.Object.Kind, r.Object.Name, r.FusedScore)
	}
}
