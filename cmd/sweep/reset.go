package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/factkit/sweep/internal/progress"
)

var (
	resetLabel string
	resetRepo  int64
	resetValue int64
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset one iteration marker to a specific cursor",
	Long: `Force the cursor of one (label, repository) marker. The next run of that
iteration resumes from the given value. Useful after reprocessing history
or repairing a bad judge deployment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetLabel == "" {
			return fmt.Errorf("--label is required")
		}
		if !cmd.Flags().Changed("repo") {
			return fmt.Errorf("--repo is required")
		}

		ps := progress.New(store, opts.Source, logger)
		if err := ps.Write(context.Background(), resetLabel, resetRepo, resetValue); err != nil {
			return err
		}
		fmt.Printf("Marker %s for repository %d set to %d\n", resetLabel, resetRepo, resetValue)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetLabel, "label", "", "Iteration label to reset")
	resetCmd.Flags().Int64Var(&resetRepo, "repo", 0, "Repository id")
	resetCmd.Flags().Int64Var(&resetValue, "value", 0, "New cursor value")
	rootCmd.AddCommand(resetCmd)
}
