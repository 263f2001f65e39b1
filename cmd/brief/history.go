package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/brieflab/internal/app"
	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/store"
)

var historyJSON bool

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(clearCmd)

	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output briefs as JSON")
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Show the briefs of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s store.ConversationStore) error {
			key, err := domain.NewConversationKey(owner, args[0])
			if err != nil {
				return err
			}
			briefs, err := s.Get(ctx, key)
			if err != nil {
				return err
			}
			if historyJSON {
				return printJSON(cmd.OutOrStdout(), briefs)
			}
			return renderHistory(cmd.OutOrStdout(), briefs)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(ctx context.Context, s store.ConversationStore) error {
			ids, err := s.List(ctx, owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				_, err := fmt.Fprintln(out, "No conversations found.")
				return err
			}
			for _, id := range ids {
				if _, err := fmt.Fprintln(out, id); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <conversation-id>",
	Short: "Delete the history of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s store.ConversationStore) error {
			key, err := domain.NewConversationKey(owner, args[0])
			if err != nil {
				return err
			}
			if err := s.Clear(ctx, key); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cleared conversation %s\n", key.ID)
			return err
		})
	},
}

// withStore opens the configured conversation store without requiring LLM
// credentials.
func withStore(fn func(ctx context.Context, s store.ConversationStore) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	stores, err := app.OpenStores(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()
	return fn(context.Background(), stores.Conversations)
}

func renderHistory(w io.Writer, briefs []domain.Brief) error {
	if len(briefs) == 0 {
		_, err := fmt.Fprintln(w, "No briefs in this conversation.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTOPIC\tFINDINGS\tREFERENCES\tSUMMARY")
	for i, b := range briefs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", i+1, truncate(b.Topic, 40), len(b.KeyFindings), len(b.References), truncate(b.Summary, 60))
	}
	return tw.Flush()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
