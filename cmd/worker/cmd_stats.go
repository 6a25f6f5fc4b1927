package main

import (
	"fmt"
	"io"
	"time"

	"github.com/VilotStar/StableHorder/internal/config"
	"github.com/VilotStar/StableHorder/internal/database"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show totals and recent cycles from the cycle log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := database.NewDB(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open cycle log: %w", err)
			}
			defer db.Close()

			return printStats(cmd.OutOrStdout(), db, recent)
		},
	}

	cmd.Flags().IntVarP(&recent, "recent", "n", 10, "number of recent cycles to list")
	return cmd
}

func printStats(w io.Writer, db *database.DB, recent int) error {
	stats, err := db.GetAggregateStats()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "cycles:    %d (%d completed, %d failed)\n", stats.TotalCycles, stats.Completed, stats.Failed)
	fmt.Fprintf(w, "images:    %d\n", stats.TotalImages)
	fmt.Fprintf(w, "kudos:     %.1f\n", stats.TotalKudos)
	fmt.Fprintf(w, "today:     %d cycles, %.1f kudos\n", stats.TodayCycles, stats.TodayKudos)

	if recent <= 0 {
		return nil
	}
	logs, err := db.RecentCycles(recent)
	if err != nil {
		return err
	}
	if len(logs) > 0 {
		fmt.Fprintln(w)
	}
	for _, l := range logs {
		fmt.Fprintf(w, "%s  %-9s  job=%s gen=%s model=%s images=%d kudos=%.1f %v",
			l.CreatedAt.Local().Format(time.DateTime), l.Outcome, l.JobID, l.GenerationID, l.Model,
			l.Images, l.Kudos, l.Duration.Round(time.Millisecond))
		if l.Error != "" {
			fmt.Fprintf(w, "  error=%q", l.Error)
		}
		fmt.Fprintln(w)
	}
	return nil
}
