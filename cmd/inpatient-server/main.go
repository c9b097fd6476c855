package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospital/inpatient/internal/config"
	"github.com/hospital/inpatient/internal/domain/ward"
	"github.com/hospital/inpatient/internal/gateway"
	"github.com/hospital/inpatient/internal/platform/db"
	"github.com/hospital/inpatient/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "inpatient-server",
		Short:        "Inpatient bed occupancy and admission workflow service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(occupancyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.Files
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run checkpoint database migrations",
	}

	open := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required")
		}
		pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, 2, 0)
		if err != nil {
			return nil, nil, err
		}
		dir, _ := cmd.Flags().GetString("dir")
		return db.NewMigrator(pool, migrationFiles(dir)), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		state, at := "pending", "-"
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(tw, "%03d\t%s\t%s\t%s\n", s.Version, s.Name, state, at)
	}
	tw.Flush()
}

func occupancyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "occupancy",
		Short: "Reconcile beds with active admissions once and print department stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env, os.Stderr).Level(zerolog.WarnLevel)

			gw := gateway.New(gatewayConfig(cfg), logger)
			svc := ward.NewService(gw, gw, gw, logger)
			svc.SetTTL(0)

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.GatewayTimeout)
			defer cancel()
			snap, err := svc.Refresh(ctx)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printOccupancy(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the full snapshot as JSON")
	return cmd
}

func printOccupancy(w io.Writer, snap *ward.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DEPARTMENT\tTOTAL\tOCCUPIED\tAVAILABLE\tOCCUPIED %\t")
	for _, s := range snap.Stats {
		name := s.DepartmentName
		if name == "" {
			name = s.DepartmentID
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t\n", name, s.Total, s.Occupied, s.Available, s.OccupiedPct)
	}
	t := ward.Totals(snap.Stats)
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%d\t\n", t.Total, t.Occupied, t.Available, t.OccupiedPct)
	tw.Flush()

	for _, warn := range snap.Warnings {
		fmt.Fprintf(w, "warning: %s admission=%s bed=%s %s\n", warn.Kind, warn.AdmissionID, warn.BedID, warn.Message)
	}
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	return gateway.Config{
		BaseURL:    cfg.GatewayURL,
		Timeout:    cfg.GatewayTimeout,
		RetryCount: cfg.GatewayRetryCount,
		Token:      cfg.GatewayToken,
		Coverage:   gateway.CoverageFormat(cfg.CoverageFormat),
	}
}
