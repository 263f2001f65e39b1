// brief runs research requests and inspects conversation history from the
// command line, sharing configuration with the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/brieflab/internal/app"
	"github.com/ashureev/brieflab/internal/config"
	"github.com/ashureev/brieflab/internal/research"
)

var (
	conversationID string
	owner          string
	followUp       bool
	maxSources     int
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "brief <topic>",
	Short: "Generate a research brief",
	Long: `Generate a structured research brief for a topic.

Briefs are appended to the conversation history so later requests in the
same conversation build on earlier ones.

Examples:
  # Start a new conversation
  brief "sodium-ion batteries"

  # Continue it with a follow-up
  brief --conversation-id batteries --follow-up "grid storage costs"`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBrief,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "", "Conversation owner (defaults to the shared namespace)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline stages to stderr")

	rootCmd.Flags().StringVarP(&conversationID, "conversation-id", "c", "", "Conversation to append to (generated when empty)")
	rootCmd.Flags().BoolVar(&followUp, "follow-up", false, "Treat the topic as a follow-up question")
	rootCmd.Flags().IntVar(&maxSources, "max-sources", research.DefaultMaxSources, "Maximum evidence documents to retrieve")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration the way the server does and installs a stderr
// logger so stdout stays machine readable.
func setup() (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runBrief(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	pipeline, err := app.NewPipeline(cfg, stores.Conversations, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brief, err := pipeline.Run(ctx, research.Request{
		Topic:          strings.Join(args, " "),
		FollowUp:       followUp,
		ConversationID: conversationID,
		Owner:          owner,
		MaxSources:     maxSources,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), brief)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
