package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/snarg/podcheck/internal/report"
)

type reportFlags struct {
	transcript string
	episode    string
	format     string
}

func newReportCommand() *cobra.Command {
	f := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "report <moderation.json>",
		Short: "Build a report from a saved moderation response",
		Long: `Build the summary report for a moderation response saved to disk, the same
way the server does before forwarding it. Use "-" to read the response from
stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.transcript, "transcript", "", "Transcript text file")
	cmd.Flags().StringVar(&f.episode, "episode", "", "Episode name (default: derived from the transcript)")
	cmd.Flags().StringVar(&f.format, "format", "json", "Output format: json or yaml")
	return cmd
}

func runReport(cmd *cobra.Command, path string, f *reportFlags) error {
	if f.format != "json" && f.format != "yaml" {
		return fmt.Errorf("unknown format %q (want json or yaml)", f.format)
	}

	raw, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	mod, err := report.DecodeModeration(raw)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	var transcript string
	if f.transcript != "" {
		b, err := os.ReadFile(f.transcript)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		transcript = string(b)
	}

	rep, err := report.NewBuilder(report.SystemClock{}).Build(report.Input{
		Transcript:  transcript,
		Moderation:  mod,
		EpisodeName: f.episode,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(rep)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
