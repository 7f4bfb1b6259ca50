package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/promptgrade-api/internal/bootstrap"
	"github.com/noah-isme/promptgrade-api/internal/evaluation"
)

func newEvaluateCmd(load configLoader) *cobra.Command {
	var (
		promptFile string
		full       bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate [prompt]",
		Short: "Grade a prompt without recording a submission",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, promptFile)
			if err != nil {
				return err
			}

			return withContainer(cmd, load, func(ctx context.Context, c *bootstrap.Container) error {
				loadBank, mode := c.Banks.Quick, evaluation.ModeConcurrent
				if full {
					loadBank, mode = c.Banks.Full, evaluation.ModeSequential
				}
				bank, err := loadBank(ctx)
				if err != nil {
					return err
				}

				outcome := c.Evaluator.Evaluate(ctx, prompt, bank, mode)
				if wantsJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), outcome)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "QUESTION\tEXPECTED\tGOT\tOK")
				for _, result := range outcome.Results {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", result.Question, result.ExpectedLabel, result.NormalizedClassification, result.Correct)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nscore %.3f (%d/%d) oracle=%s degraded=%t\n", outcome.Score, outcome.Correct, outcome.Total, c.Oracle, outcome.Degraded)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&promptFile, "file", "f", "", "Read the prompt from a file")
	cmd.Flags().BoolVar(&full, "full", false, "Use the full bank with sequential calls")
	return cmd
}

func readPrompt(args []string, path string) (string, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return string(raw), nil
	}
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	return "", fmt.Errorf("a prompt argument or --file is required")
}
