package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tutor-live-service/internal/config"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/infra/postgres"
	"tutor-live-service/internal/logger"
	"tutor-live-service/internal/report"
)

// NewExportResultsCmd writes persisted quiz results to an Excel workbook.
func NewExportResultsCmd(configPath *string) *cobra.Command {
	var (
		roomID string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export-results",
		Short: "Export published quiz results to an .xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, "")
			if err != nil {
				return err
			}
			return exportResults(cmd.Context(), cfg, roomID, out)
		},
	}
	cmd.Flags().StringVar(&roomID, "room", "", "export a single room (default: every room)")
	cmd.Flags().StringVar(&out, "out", "results.xlsx", "output file")
	return cmd
}

func exportResults(ctx context.Context, cfg config.Config, roomID, out string) error {
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	db := postgres.OpenBun(cfg.Postgres.URL)
	defer db.Close()
	store := postgres.NewResultStore(db)

	var records []domain.ResultRecord
	if roomID != "" {
		record, err := store.GetResult(ctx, roomID)
		if err != nil {
			return fmt.Errorf("load results for %s: %w", roomID, err)
		}
		records = append(records, record)
	} else {
		all, err := store.ListResults(ctx)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		records = all
	}

	if err := report.WriteFile(out, records); err != nil {
		return err
	}
	log := logger.Named("export")
	log.Info().Int("rooms", len(records)).Str("out", out).Msg("results exported")
	return nil
}
