// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/sciqa/internal/scoring"
	"github.com/pdiddy/sciqa/pkg/types"
)

var scoreCmd = &cobra.Command{
	Use:   "score <judgements.json>",
	Short: "Aggregate graded logic-chain judgements into statistics",
	Long: `Score reads a JSON list of items whose "judgement" field holds a grader's
conclusion and per-experiment scores. It writes STA_<name> with bucketed
counts, failure tallies, and mean scores, and Updated_<name> with each item's
conc_score and proc_score added. Malformed judgements are listed under
"error" and never abort the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().String("output-dir", scoring.DefaultOutputDir, "directory for the statistics and augmented files")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("output-dir")
	cfg := types.ScoringConfig{InputPath: args[0], OutputDir: outDir}

	report, err := scoring.Run(cfg)
	if err != nil {
		return err
	}

	statsPath, updatedPath := scoring.Paths(cfg.InputPath, cfg.OutputDir)
	fmt.Printf("conclusion %.4f  process %.4f  lcr %.4f  (%d experiments)\n",
		report.MeanConclusion, report.MeanProcess, report.MeanLCR, report.NumExperiments)
	if len(report.Errors) > 0 {
		keys := make([]string, 0, len(report.Errors))
		for k := range report.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("%d item(s) with errors: %v\n", len(keys), keys)
	}
	fmt.Printf("Wrote %s and %s\n", statsPath, updatedPath)
	return nil
}
