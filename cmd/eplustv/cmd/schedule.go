package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/leduong/EPlusTV/internal/catalog"
	"github.com/leduong/EPlusTV/internal/database"
	"github.com/leduong/EPlusTV/internal/provider"
	"github.com/leduong/EPlusTV/internal/repository"
	"github.com/leduong/EPlusTV/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect the channel schedule",
}

var schedulePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the schedule a reset would produce",
	Long: `Plan channel placements for every live or upcoming entry in the local
catalog, as if all assignments were cleared. Nothing is written.`,
	RunE: runSchedulePreview,
}

var scheduleRunsLimit int

var scheduleRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Print recent scheduling passes",
	RunE:  runScheduleRuns,
}

func init() {
	scheduleRunsCmd.Flags().IntVar(&scheduleRunsLimit, "limit", 20, "number of passes to show")
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(schedulePreviewCmd)
	scheduleCmd.AddCommand(scheduleRunsCmd)
}

// openSchedule builds a scheduling service over the local database only.
// No provider is registered, so nothing is ingested.
func openSchedule(ctx context.Context) (*scheduler.Service, func(), error) {
	db, err := database.New(cfg.Database, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	entries := repository.NewEntryRepository(db.DB)
	cat := catalog.New(entries, provider.NewRegistry(cfg.Providers.RateLimit, cfg.Providers.RateBurst), cfg.Ingestion.ProviderTimeout)
	svc := scheduler.NewService(
		entries,
		repository.NewScheduleSettingsRepository(db.DB),
		repository.NewScheduleRunRepository(db.DB),
		cat,
		cfg.Scheduling,
	)
	return svc, func() { db.Close() }, nil
}

func runSchedulePreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, closeDB, err := openSchedule(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	preview, err := svc.Preview(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CH\tKIND\tSTART\tEND\tFROM\tNAME")
	for _, row := range preview.Rows {
		kind := "dynamic"
		if row.Linear {
			kind = "linear"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			row.Channel, kind,
			row.Start.Local().Format(time.DateTime), row.End.Local().Format(time.DateTime),
			row.From, row.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d placed on %d channels, %d filtered, %d dropped\n",
		len(preview.Rows), preview.Channels, preview.Filtered, len(preview.Dropped))
	return nil
}

func runScheduleRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, closeDB, err := openSchedule(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := svc.Runs(ctx, scheduleRunsLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTRIGGER\tDURATION\tPRUNED\tSCHEDULED\tLINEAR\tDROPPED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Trigger,
			time.Duration(r.DurationMs)*time.Millisecond,
			r.Pruned, r.Scheduled, r.Linear, r.Dropped, r.Error)
	}
	return tw.Flush()
}
