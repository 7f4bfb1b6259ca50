package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/promptgrade-api/internal/bootstrap"
	"github.com/noah-isme/promptgrade-api/internal/config"
)

type configLoader func() (config.Config, error)

func newRootCmd(load configLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "promptctl",
		Short:         "Operate the prompt grading leaderboard",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("db", "", "Database DSN (overrides PROMPTGRADE_DATABASE_URL)")
	root.PersistentFlags().String("provider", "", "Oracle provider: openai, anthropic or gemini")
	root.PersistentFlags().Bool("json", false, "Print JSON instead of a table")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log to stderr")

	root.AddCommand(newEvaluateCmd(load))
	root.AddCommand(newRescoreCmd(load))
	root.AddCommand(newLeaderboardCmd(load))
	return root
}

// withContainer loads configuration, applies the persistent flag overrides
// and hands a wired container to fn.
func withContainer(cmd *cobra.Command, load configLoader, fn func(ctx context.Context, c *bootstrap.Container) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		cfg.AIProvider = provider
	}

	logger := zerolog.Nop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{Source: "promptctl"})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Close(closeCtx)
	}()

	return fn(ctx, container)
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func wantsJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}
