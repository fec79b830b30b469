/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/mixtape/internal/models"
)

var (
	resetForce    bool
	frequentLimit int
)

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Inspect play history and record feedback",
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print learning statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		core, err := openCore(ctx)
		if err != nil {
			return err
		}
		defer core.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, core.Recommend.LearningStats())
		if moods := core.Ledger.RecommendedMoodAdjustments(); len(moods) > 0 {
			fmt.Fprintln(out, "Learned mood targets:")
			for _, dim := range models.MoodDimensions {
				if v, ok := moods[dim]; ok {
					fmt.Fprintf(out, "- %s: %d\n", dim, v)
				}
			}
		}
		return nil
	},
}

var learningFrequentCmd = &cobra.Command{
	Use:   "frequent",
	Short: "Print the most played tracks in the play history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		core, err := openCore(ctx)
		if err != nil {
			return err
		}
		defer core.Close()

		for _, pc := range core.Ledger.FrequentlyPlayed(frequentLimit) {
			fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s\n", pc.Count, pc.Path)
		}
		return nil
	},
}

var learningFeedbackCmd = &cobra.Command{
	Use:   "feedback <played|skipped|completed|replayed> <path>",
	Short: "Record playback feedback for a track",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		core, err := openCore(ctx)
		if err != nil {
			return err
		}
		defer core.Close()

		if err := core.Recommend.RecordFeedback(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: score %.2f\n", args[1], core.Ledger.Score(args[1]))
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all learned preferences",
	Long: `Clear every score, mood preference, history entry and timestamp
from the preference ledger.

WARNING: This action is irreversible.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	learningFrequentCmd.Flags().IntVar(&frequentLimit, "limit", 10, "Number of tracks to print")
	learningCmd.AddCommand(learningFrequentCmd, learningFeedbackCmd)
	rootCmd.AddCommand(statsCmd, resetCmd, learningCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetForce {
		fmt.Fprint(cmd.OutOrStdout(), "This deletes all learned preferences. Type 'yes' to continue: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled.")
			return nil
		}
	}

	ctx := context.Background()
	core, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	core.Ledger.Reset(ctx)
	logger.Info().Str("backend", cfg.LedgerBackend).Msg("preference ledger reset")
	fmt.Fprintln(cmd.OutOrStdout(), "Preference ledger cleared.")
	return nil
}
