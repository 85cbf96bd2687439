package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/factkit/sweep/internal/factstore"
	"github.com/factkit/sweep/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show iteration markers for every repository",
	Long:  `Display, per repository, every iteration label and its current cursor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s\n\n", cyan("=== Iteration Markers ==="))

		markers, err := store.Facts(ctx,
			factstore.Eq("kind", factstore.Text(progress.Kind)),
			factstore.Eq("source", factstore.Text(opts.Source)))
		if err != nil {
			return fmt.Errorf("failed to list marker facts: %w", err)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(markers) == 0 {
			fmt.Printf("  %s\n", gray("No markers recorded yet"))
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Repository", "Label", "Cursor"})

		rows := 0
		for _, fact := range markers {
			repo, ok, err := store.GetInt(ctx, fact, "repository")
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			name := repoName(ctx, repo)

			props, err := store.Properties(ctx, fact)
			if err != nil {
				return err
			}
			for _, p := range props {
				if p.IsText || p.Name == "repository" {
					continue
				}
				tw.AppendRow(table.Row{name, p.Name, humanize.Comma(p.Int)})
				rows++
			}
		}
		tw.Render()

		total, err := store.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s markers, %s facts in store\n",
			humanize.Comma(int64(rows)), humanize.Comma(int64(total)))
		return nil
	},
}

// repoName resolves a repository id to its registered full name, falling
// back to the bare id.
func repoName(ctx context.Context, repo int64) string {
	fact, ok, err := store.First(ctx,
		factstore.Eq("kind", factstore.Text("repository")),
		factstore.Eq("repository", factstore.Int(repo)))
	if err == nil && ok {
		if name, present, err := store.GetText(ctx, fact, "full_name"); err == nil && present {
			return fmt.Sprintf("%s (%d)", name, repo)
		}
	}
	return fmt.Sprintf("%d", repo)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
