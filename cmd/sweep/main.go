// Command sweep inspects and maintains the fact store that judge jobs
// fold repository observations into: marker status, marker resets, and
// the repository registry the iteration engine resolves patterns against.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/factkit/sweep/internal/config"
	"github.com/factkit/sweep/internal/factstore"
)

var (
	cfgPath string
	dbPath  string
	verbose bool

	opts   *config.Options
	store  factstore.Store
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Maintain repository iteration state",
	Long: `sweep manages the durable state of the repository iteration engine:
per-repository progress markers and the repository registry.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		opts, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			opts.DBPath = dbPath
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		store, err = factstore.Open(opts.DBPath)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			return store.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "sweep.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Fact store database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
