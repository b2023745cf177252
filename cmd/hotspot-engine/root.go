package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotspot-engine",
		Short: "Classify A&E firm signals and cluster them into executive hotspots",
		Long: "hotspot-engine classifies operational signals from architecture and engineering firms,\n" +
			"builds feature vectors for them and groups related signals into ranked hotspots.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	cmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "Path to configuration file (env MIRADOR_HOTSPOT_CONFIG)")
	cmd.AddCommand(newServeCmd(), newReclusterCmd(), newSyncCmd(), newClassifyCmd())
	return cmd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
