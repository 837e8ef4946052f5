// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/sciqa/internal/ledger"
	"github.com/pdiddy/sciqa/pkg/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Query the run ledger (runs, failures, search, export)",
	Long: `Ledger reads the SQLite database that run writes: one entry per run with
its stage counts, every filtered or failed record with the reason, and the
generated questions with full-text search over question and answer.`,
}

// --- runs subcommand ---

var ledgerRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs with per-stage counts",
	RunE:  runLedgerRuns,
}

func runLedgerRuns(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.Runs(context.Background(), limit)
	if err != nil {
		return err
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-8s  %s  %s\n", r.ID, r.Status, r.StartedAt, r.Input)
		for _, s := range r.Summaries {
			fmt.Printf("    %-12s in %-5d kept %-5d filtered %-5d failed %-5d %6dms\n",
				s.Stage, s.Input, s.Kept, s.Filtered, s.Failed, s.ElapsedMS)
		}
	}
	return nil
}

// --- failures subcommand ---

var ledgerFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List records that a stage filtered or failed",
	RunE:  runLedgerFailures,
}

func runLedgerFailures(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	failures, err := store.Failures(context.Background(), queryOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(failures)
	}
	if len(failures) == 0 {
		fmt.Println("No failures found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-12s  %-10s  %-9s  %s\n", "Stage", "Record", "Status", "Reason")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 80))
	for _, f := range failures {
		fmt.Fprintf(os.Stdout, "%-12s  %-10s  %-9s  %s\n", f.Stage, truncate(f.RecordIndex, 10), f.Status, f.Reason)
	}
	fmt.Fprintf(os.Stdout, "\n%d records\n", len(failures))
	return nil
}

// --- search subcommand ---

var ledgerSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search over generated questions and answers",
	RunE:  runLedgerSearch,
}

func runLedgerSearch(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	if opts.Query == "" && opts.Category == "" && opts.RunID == "" {
		return fmt.Errorf("query or filter required: provide a search query, --category, or --run")
	}
	entries, err := store.Search(context.Background(), opts)
	if err != nil {
		return err
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-10s  %-14s  %s\n", "Rank", "Record", "Category", "Question")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, e := range entries {
		fmt.Fprintf(os.Stdout, "%-4d  %-10s  %-14s  %s\n",
			i+1, truncate(e.RecordIndex, 10), truncate(e.Category, 14), truncate(e.QA.Question, 66))
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(entries))
	return nil
}

// --- export subcommand ---

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded questions to YAML or JSON",
	Long: `Export writes the recorded questions (or a filtered subset) with their
context and logic chains. Supports the same filter flags as search.`,
	RunE: runLedgerExport,
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	if out == "" {
		out = "export." + format
	}

	var n int
	switch format {
	case "yaml":
		n, err = store.ExportYAML(context.Background(), opts, out)
	case "json":
		n, err = store.ExportJSON(context.Background(), opts, out)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d entries to %s\n", n, out)
	return nil
}

// --- shared helpers ---

func openLedger(cmd *cobra.Command) (*ledger.Store, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = viper.GetString("ledger_path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")
	return ledger.Open(types.LedgerConfig{Path: path, MaxResults: maxResults})
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) ledger.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	runID, _ := cmd.Flags().GetString("run")
	stage, _ := cmd.Flags().GetString("stage")
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")

	return ledger.QueryOptions{
		Query:      queryText,
		RunID:      runID,
		Stage:      stage,
		Category:   category,
		MaxResults: limit,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	ledgerCmd.PersistentFlags().String("db", "", "ledger database (default: ledger_path from config)")
	ledgerCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")
	ledgerCmd.PersistentFlags().String("run", "", "restrict to a run ID, or \"latest\"")
	ledgerCmd.PersistentFlags().Int("limit", 0, "maximum results (0 = use default)")
	ledgerCmd.PersistentFlags().Bool("json", false, "output results as JSON")

	ledgerFailuresCmd.Flags().String("stage", "", "filter by stage name")

	ledgerSearchCmd.Flags().String("query", "", "full-text search query")
	ledgerSearchCmd.Flags().String("category", "", "filter by record category")

	ledgerExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	ledgerExportCmd.Flags().String("out", "", "output file (default export.<format>)")
	ledgerExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	ledgerExportCmd.Flags().String("category", "", "filter by record category for partial export")

	ledgerCmd.AddCommand(ledgerRunsCmd)
	ledgerCmd.AddCommand(ledgerFailuresCmd)
	ledgerCmd.AddCommand(ledgerSearchCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)

	rootCmd.AddCommand(ledgerCmd)
}
