package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-hotspot/internal/engine"
	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

type classifyFlags struct {
	file        string
	title       string
	description string
	severity    string
	departments []string
	features    bool
}

func newClassifyCmd() *cobra.Command {
	var flags classifyFlags
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one signal offline and print the pipeline result as JSON",
		Long: "classify runs the classification and feature pipeline on a single signal without\n" +
			"touching storage. The signal comes from --file (JSON, \"-\" for stdin) or from flags.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClassify(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "Signal JSON file, or - for stdin")
	f.StringVar(&flags.title, "title", "", "Signal title")
	f.StringVar(&flags.description, "description", "", "Signal description")
	f.StringVar(&flags.severity, "severity", string(models.SeverityMedium), "LOW, MEDIUM, HIGH or CRITICAL")
	f.StringSliceVar(&flags.departments, "department", nil, "Department (repeatable)")
	f.BoolVar(&flags.features, "features", false, "Include the full feature vector in the output")
	return cmd
}

func runClassify(cmd *cobra.Command, flags classifyFlags) error {
	sig, err := classifyInput(cmd.InOrStdin(), flags)
	if err != nil {
		return err
	}
	logger := utils.NewLoggerTo(cmd.ErrOrStderr(), "warn", false)

	res, err := engine.NewIntegrator(logger, nil, nil).ProcessSignal(cmd.Context(), sig)
	if err != nil {
		return err
	}

	out := map[string]any{
		"signalId":           res.SignalID,
		"classification":     res.Classification,
		"readyForClustering": res.ReadyForClustering,
		"qualityAssessment":  res.QualityAssessment,
		"qualityMetrics":     res.Features.QualityMetrics,
		"processingTimeMs":   utils.Milliseconds(res.Timings.Total),
	}
	if flags.features {
		out["features"] = res.Features
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func classifyInput(stdin io.Reader, flags classifyFlags) (models.Signal, error) {
	var sig models.Signal
	switch {
	case flags.file != "":
		var r io.Reader = stdin
		if flags.file != "-" {
			f, err := os.Open(flags.file)
			if err != nil {
				return sig, fmt.Errorf("open signal file: %w", err)
			}
			defer f.Close()
			r = f
		}
		if err := json.NewDecoder(r).Decode(&sig); err != nil {
			return sig, fmt.Errorf("decode signal: %w", err)
		}
	case strings.TrimSpace(flags.title+flags.description) != "":
		sig = models.Signal{
			Title:       flags.title,
			Description: flags.description,
			Severity:    models.Severity(strings.ToUpper(flags.severity)),
			Departments: flags.departments,
		}
	default:
		return sig, errors.New("provide --file or --title/--description")
	}
	if sig.ID == "" {
		sig.ID = "cli-signal"
	}
	if sig.Severity == "" {
		sig.Severity = models.SeverityMedium
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	return sig, nil
}
