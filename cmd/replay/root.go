package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/internal/replay"
	"github.com/okian/hookline/pkg/logger"
)

type replayFlags struct {
	sessionID   string
	privacyTier int
	url         string
	workers     int
	timeout     time.Duration
	dryRun      bool
	verbose     bool
}

func (f *replayFlags) config() (replay.Config, error) {
	tier := model.PrivacyTier(f.privacyTier)
	if !tier.Valid() {
		return replay.Config{}, fmt.Errorf("--privacy-tier must be 0, 1 or 2, got %d", f.privacyTier)
	}
	cfg := replay.Config{
		BaseURL:     f.url,
		SessionID:   f.sessionID,
		PrivacyTier: tier,
		Workers:     f.workers,
		Timeout:     f.timeout,
		DryRun:      f.dryRun,
	}
	if f.verbose {
		if err := logger.InitWithOptions(logger.WithOutput(os.Stderr)); err != nil {
			return replay.Config{}, fmt.Errorf("init logger: %w", err)
		}
		_ = logger.SetLevelString("debug")
		cfg.Logger = logger.Get()
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	flags := &replayFlags{}

	rootCmd := &cobra.Command{
		Use:           "replay",
		Short:         "Replay recorded coding sessions into a hookline collector",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.url, "url", replay.DefaultBaseURL, "Collector base URL")
	pf.IntVar(&flags.privacyTier, "privacy-tier", int(model.PrivacyTierStandard), "Privacy tier stamped on events (0, 1 or 2)")
	pf.IntVar(&flags.workers, "workers", 0, "Concurrent submitters (default CPU cores * 2)")
	pf.DurationVar(&flags.timeout, "timeout", replay.DefaultTimeout, "HTTP request timeout")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "Parse and normalize without submitting")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log progress to stderr")

	rootCmd.AddCommand(newTranscriptCommand(flags))
	rootCmd.AddCommand(newOTELCommand(flags))
	return rootCmd
}

func newTranscriptCommand(flags *replayFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript <file>",
		Short: "Replay a transcript JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, flags, args[0], replay.LoadTranscript)
		},
	}
	cmd.Flags().StringVar(&flags.sessionID, "session-id", "", "Session id for lines that carry none")
	return cmd
}

func newOTELCommand(flags *replayFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "otel <file>",
		Short: "Replay a saved OTLP log export (.json, or .pb for protobuf)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, flags, args[0], replay.LoadOTEL)
		},
	}
}

type loader func(path string, cfg replay.Config) (replay.Batch, error)

func runReplay(cmd *cobra.Command, flags *replayFlags, path string, load loader) error {
	cfg, err := flags.config()
	if err != nil {
		return err
	}

	batch, err := load(path, cfg)
	if err != nil {
		return err
	}

	stats, err := replay.Submit(cmd.Context(), cfg, batch)
	fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats, cfg.DryRun))
	for _, e := range batch.Errors {
		fmt.Fprintln(cmd.ErrOrStderr(), e)
	}
	return err
}

func renderStats(stats replay.Stats, dryRun bool) string {
	rows := [][]string{
		{"Parsed", strconv.Itoa(stats.Parsed)},
		{"Skipped", strconv.Itoa(stats.Skipped)},
	}
	if !dryRun {
		rows = append(rows,
			[]string{"Submitted", strconv.Itoa(stats.Submitted)},
			[]string{"Accepted", strconv.Itoa(stats.Accepted)},
			[]string{"Deduped", strconv.Itoa(stats.Deduped)},
			[]string{"Rejected", strconv.Itoa(stats.Rejected)},
			[]string{"Failed", strconv.Itoa(stats.Failed)},
		)
	}
	return renderTable([]string{"Events", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}
