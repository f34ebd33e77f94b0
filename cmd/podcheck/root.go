package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

type globalFlags struct {
	envFile  string
	logLevel string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "podcheck",
		Short: "podcheck - transcribe and moderate podcast episodes",
		Long: `podcheck transcribes uploaded podcast audio, checks the transcript for
harmful content and misinformation, and forwards a summary report to a
Make.com webhook.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", "Path to .env file (default .env)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCommand(g))
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newReportsCommand(g))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
