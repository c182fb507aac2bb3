// Command codebased is the CLI entry point: init and search over a
// local repository's code index. Grounded on the teacher's cmd package
// (a cobra root command with persistent flags, one subcommand per
// file), trimmed to the two subcommands this spec's engine exposes —
// the teacher's chat/tui/mcp subcommands are its own product surface,
// out of scope here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codebased/internal/config"
)

var (
	flagRoot string
)

var rootCmd = &cobra.Command{
	Use:   "codebased",
	Short: "Local interactive code search",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "repository root to index/search")
}

// exitCodeFor maps an error to the spec's exit code taxonomy: 0 success
// (never reached here), 1 user/config error, 2 runtime/index error,
// 130 interrupted.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case isInterrupted(err):
		return 130
	case isConfigError(err):
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}
}

func loadConfig() (config.Config, error) {
	return config.Load()
}
