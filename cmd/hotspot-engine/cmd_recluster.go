package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/services"
)

type reclusterFlags struct {
	force       bool
	regenerate  bool
	solutions   bool
	minCluster  int
	minSamples  int
	targetCount int
	jsonOutput  bool
}

func newReclusterCmd() *cobra.Command {
	var flags reclusterFlags
	cmd := &cobra.Command{
		Use:   "recluster",
		Short: "Run one clustering pass over the stored signals and commit the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecluster(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&flags.force, "force", false, "Regroup from scratch instead of keeping stable hotspots")
	f.BoolVar(&flags.regenerate, "regenerate-features", false, "Re-analyse every signal before clustering")
	f.BoolVar(&flags.solutions, "solutions", true, "Attach solution seeds to hotspots")
	f.IntVar(&flags.minCluster, "min-cluster-size", 0, "Minimum hotspot size (0 uses the configured value)")
	f.IntVar(&flags.minSamples, "min-samples", 0, "Neighbours needed for a core signal (0 uses the configured value)")
	f.IntVar(&flags.targetCount, "target-clusters", 0, "Search similarity radii for this many hotspots")
	f.BoolVar(&flags.jsonOutput, "json", false, "Print the snapshot as JSON")
	return cmd
}

func runRecluster(cmd *cobra.Command, flags reclusterFlags) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	run, snap, err := a.service.GenerateHotspots(cmd.Context(), services.RunRequest{
		Options: models.ClusteringOptions{
			MinClusterSize:     flags.minCluster,
			MinSamples:         flags.minSamples,
			ForceReclustering:  flags.force,
			GenerateSolutions:  flags.solutions,
			TargetClusterCount: flags.targetCount,
		},
		RegenerateFeatures: flags.regenerate,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	m := snap.Metrics
	fmt.Fprintf(out, "Run:       %s (%s)\n", run.ID, run.Status)
	if m.Reused {
		fmt.Fprintf(out, "Snapshot:  %s reused, corpus unchanged\n", snap.RunID)
	}
	fmt.Fprintf(out, "Signals:   %d in, %d clustered, %d outliers\n", m.InputSignalCount, m.AssignedSignalCount, m.OutlierSignalCount)
	fmt.Fprintf(out, "Hotspots:  %d (radius %.2f)\n", m.OutputClusterCount, m.SimilarityRadius)
	for _, h := range snap.Hotspots {
		fmt.Fprintf(out, "  [%s] %s  rank=%.2f signals=%d\n", h.Priority, h.Title, h.RankScore, h.Metrics.SignalCount)
	}
	if len(snap.Hotspots) == 0 {
		fmt.Fprintf(out, "No hotspots yet. Add more signals and run recluster again.\n")
	}
	return nil
}
