package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export attendance sessions as CSV",
	Long: `Export attendance sessions as CSV, one row per session.

Examples:
  # Export everything to stdout
  face-attendance export

  # Export one month to a file
  face-attendance export --from-day 2024-05-01 --to-day 2024-05-31 --output may.csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("from-day", "", "First day to include (YYYY-MM-DD)")
	exportCmd.Flags().String("to-day", "", "Last day to include (YYYY-MM-DD)")
	exportCmd.Flags().String("output", "", "Output file (default stdout)")
}

// dayBounds converts inclusive day flags into an open-time filter using the
// configured attendance timezone.
func dayBounds(clock *attendance.DayClock, fromDay, toDay string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromDay != "" {
		t, err := time.ParseInLocation("2006-01-02", fromDay, clock.Location())
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from-day: %w", err)
		}
		from = &t
	}
	if toDay != "" {
		t, err := time.ParseInLocation("2006-01-02", toDay, clock.Location())
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to-day: %w", err)
		}
		end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &end
	}
	return from, to, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	fmt.Fprintln(os.Stderr, "Connecting to PostgreSQL...")
	pool, err := postgres.Connect(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	identities := postgres.NewIdentityRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	service, err := attendance.NewService(cfg, identities, sessions)
	if err != nil {
		return fmt.Errorf("creating attendance service: %w", err)
	}

	from, to, err := dayBounds(service.Clock(), mustGetString(cmd, "from-day"), mustGetString(cmd, "to-day"))
	if err != nil {
		return err
	}

	list, err := service.Sessions(ctx, database.SessionFilter{From: from, To: to})
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	out := os.Stdout
	if output := mustGetString(cmd, "output"); output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	writer := csv.NewWriter(out)
	writer.Write([]string{"day", "name", "external_ref", "department", "open_time", "close_time", "hours", "confidence", "location"})

	for i := range list {
		s := &list[i]
		closeTime, hours := "", ""
		if s.CloseTime != nil {
			closeTime = s.CloseTime.Format(time.RFC3339)
			hours = strconv.FormatFloat(s.CloseTime.Sub(s.OpenTime).Hours(), 'f', 2, 64)
		}
		writer.Write([]string{
			s.Day,
			s.IdentityName,
			s.ExternalRef,
			s.Department,
			s.OpenTime.Format(time.RFC3339),
			closeTime,
			hours,
			strconv.FormatFloat(s.Confidence, 'f', 4, 64),
			s.Location,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d sessions\n", len(list))
	return nil
}
