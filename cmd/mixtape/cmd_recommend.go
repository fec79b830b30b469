/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/recommend"
	"github.com/friendsincode/mixtape/internal/scoring"
)

var (
	recommendText    string
	recommendMoods   []string
	recommendMax     int
	recommendExclude []string
	presetMax        int
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print recommendations for a query",
	Long: `Score the catalog against a text and mood query and print a sample.

Examples:
  mixtape recommend --text "dark ambient" --mood atmospheric=80 --mood hype=20
  mixtape recommend --mood hype=90 --max 5 --exclude /music/a.mp3
`,
	RunE: runRecommend,
}

var presetCmd = &cobra.Command{
	Use:   "preset [name]",
	Short: "Print recommendations for a preset, or list presets",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPreset,
}

func init() {
	recommendCmd.Flags().StringVar(&recommendText, "text", "", "Free text matched against genre and tags")
	recommendCmd.Flags().StringArrayVar(&recommendMoods, "mood", nil, "Mood target as name=value (0-100), repeatable")
	recommendCmd.Flags().IntVar(&recommendMax, "max", 0, "Maximum results (0 = configured default)")
	recommendCmd.Flags().StringArrayVar(&recommendExclude, "exclude", nil, "Path to exclude, repeatable")
	presetCmd.Flags().IntVar(&presetMax, "max", 0, "Maximum results (0 = configured default)")
	rootCmd.AddCommand(recommendCmd, presetCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	moods, err := parseMoods(recommendMoods)
	if err != nil {
		return err
	}

	ctx := context.Background()
	core, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	tracks := core.Recommend.GetRecommendations(ctx, scoring.Query{
		Text:       recommendText,
		Moods:      moods,
		MaxResults: recommendMax,
		Exclude:    recommendExclude,
	})
	return printTracks(cmd.OutOrStdout(), tracks)
}

func runPreset(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		for _, p := range recommend.Presets() {
			fmt.Fprintf(out, "%-10s %s\n", p.Name, p.Text)
		}
		return nil
	}

	ctx := context.Background()
	core, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	tracks, err := core.Recommend.GetPresetRecommendations(ctx, args[0], presetMax)
	if err != nil {
		return err
	}
	return printTracks(out, tracks)
}

// parseMoods turns name=value pairs into a mood query.
func parseMoods(pairs []string) (map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || !models.IsMoodDimension(name) {
			return nil, fmt.Errorf("invalid mood %q: want one of %s as name=value", pair, strings.Join(models.MoodDimensions, ", "))
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || v < models.MoodMin || v > models.MoodMax {
			return nil, fmt.Errorf("invalid mood value in %q: want %d-%d", pair, models.MoodMin, models.MoodMax)
		}
		out[name] = v
	}
	return out, nil
}

func printTracks(w io.Writer, tracks []models.Track) error {
	if len(tracks) == 0 {
		_, err := fmt.Fprintln(w, "no recommendations")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tARTIST\tTITLE\tGENRE\tPATH")
	for _, t := range tracks {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%s\n", t.Score, t.Artist, t.Title, t.Genre, t.Path)
	}
	return tw.Flush()
}
