package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

type syncFlags struct {
	since   string
	analyse bool
}

func newSyncCmd() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull signals from the upstream application and analyse them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.since, "since", "", "Only fetch signals updated after this RFC3339 time")
	f.BoolVar(&flags.analyse, "analyse", true, "Analyse new and changed signals after syncing")
	return cmd
}

func runSync(cmd *cobra.Command, flags syncFlags) error {
	var since time.Time
	if flags.since != "" {
		t, err := utils.ParseRFC3339(flags.since)
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		since = t
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.service.SyncSignals(cmd.Context(), since)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synced %d signals\n", n)
	if !flags.analyse {
		return nil
	}

	summary, err := a.service.AnalysePending(cmd.Context(), false)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Analysed %d signals: %d ready, %d failed (readiness %.0f%%)\n",
		summary.Total, summary.ReadyForClustering, summary.Failed, summary.ReadinessRate*100)
	return nil
}
