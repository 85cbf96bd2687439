package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the fact store database",
	Long:  `Create the fact store database and its schema at the configured path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// PersistentPreRunE already opened (and thus created) the store;
		// all that is left is confirming it answers.
		if _, err := store.Count(context.Background()); err != nil {
			return fmt.Errorf("store did not come up: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Fact store ready at %s\n", green("✓"), opts.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
