package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/factkit/sweep/internal/factstore"
	"github.com/factkit/sweep/internal/repos"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage the repository registry",
}

var reposAddCmd = &cobra.Command{
	Use:   "add <id> <owner/name>",
	Short: "Register a repository so patterns can resolve to it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad repository id %q: %w", args[0], err)
		}

		resolver := repos.NewFactResolver(store)
		if err := resolver.Register(context.Background(), id, args[1]); err != nil {
			return err
		}
		fmt.Printf("Registered %s as repository %d\n", args[1], id)
		return nil
	},
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		facts, err := store.Facts(ctx, factstore.Eq("kind", factstore.Text("repository")))
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "Name"})
		for _, fact := range facts {
			id, ok, err := store.GetInt(ctx, fact, "repository")
			if err != nil {
				return err
			}
			name, _, err := store.GetText(ctx, fact, "full_name")
			if err != nil {
				return err
			}
			if ok {
				tw.AppendRow(table.Row{id, name})
			}
		}
		tw.Render()
		return nil
	},
}

var reposResolveCmd = &cobra.Command{
	Use:   "resolve [pattern...]",
	Short: "Show which repositories a run would sweep",
	Long: `Resolve repository patterns the way a run does. With no arguments the
patterns from the configuration file are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patterns := args
		if len(patterns) == 0 {
			patterns = opts.Repositories
		}
		if len(patterns) == 0 {
			return fmt.Errorf("no patterns given and none configured")
		}

		resolver := repos.NewFactResolver(store)
		ids, err := resolver.Resolve(context.Background(), patterns)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(repoName(context.Background(), id))
		}
		fmt.Printf("%d repositories\n", len(ids))
		return nil
	},
}

func init() {
	reposCmd.AddCommand(reposAddCmd)
	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposResolveCmd)
	rootCmd.AddCommand(reposCmd)
}
