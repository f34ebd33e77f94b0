package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/snarg/podcheck/internal/database"
)

type reportsFlags struct {
	databaseURL string
	email       string
	limit       int
}

type reportsEnv struct {
	DatabaseURL string `env:"DATABASE_URL"`
}

func newReportsCommand(g *globalFlags) *cobra.Command {
	f := &reportsFlags{}
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveDatabaseURL(g.envFile, f.databaseURL)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := database.Connect(ctx, database.Options{URL: url, MaxConns: 2, Log: newLogger(os.Stderr, g.logLevel)})
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()
			return listReports(ctx, cmd, db, f)
		},
	}
	cmd.Flags().StringVar(&f.databaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	cmd.Flags().StringVar(&f.email, "email", "", "Only reports sent to this address")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "Maximum reports to list")
	return cmd
}

func resolveDatabaseURL(envFile, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}
	var e reportsEnv
	if err := env.Parse(&e); err != nil {
		return "", err
	}
	if e.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL or --database-url is required")
	}
	return e.DatabaseURL, nil
}

func listReports(ctx context.Context, cmd *cobra.Command, store database.ReportStore, f *reportsFlags) error {
	recs, total, err := store.ListReports(ctx, database.ReportFilter{Email: f.email, Limit: f.limit})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tRISK\tEMAIL\tEPISODE")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n",
			rec.ID,
			rec.CreatedAt.UTC().Format("2006-01-02 15:04"),
			rec.Report.RiskScore,
			rec.Email,
			rec.Report.EpisodeName,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d reports\n", len(recs), total)
	return nil
}
