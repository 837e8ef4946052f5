// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/ledger"
	"github.com/pdiddy/sciqa/internal/limiter"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/internal/retry"
	"github.com/pdiddy/sciqa/internal/stages"
	"github.com/pdiddy/sciqa/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the QA generation pipeline over a record corpus",
	Long: `Run applies every stage (filter, keywords, distill, describe, consensus,
enhance, visualqa, logicchain, openqa, and review when enabled) to the
corpus. Each stage writes a checkpoint to the output directory; openqa
also writes the final QA dataset, and review its reviewed copy.

Use --from to resume at a stage. Without --input, the checkpoint of the
preceding stage in the output directory is loaded.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("input", "", "source corpus (JSON list of records) or, with --from, a checkpoint")
	runCmd.Flags().String("from", "", "resume at this stage (stage or checkpoint name)")
	runCmd.Flags().String("output-dir", "", "checkpoint directory (default output)")
	runCmd.Flags().String("format", "", "checkpoint format: json or yaml")
	runCmd.Flags().Bool("strict", true, "filter questions that leak hidden chain fields")
	runCmd.Flags().Int("review-min-score", 0, "enable chain review and drop records scoring below this")
	runCmd.Flags().String("ledger", "", "run ledger path; \"off\" disables it")

	viper.BindPFlag("output_dir", runCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("format", runCmd.Flags().Lookup("format"))
	viper.BindPFlag("strict_disclosure", runCmd.Flags().Lookup("strict"))
	viper.BindPFlag("review_min_score", runCmd.Flags().Lookup("review-min-score"))
	viper.BindPFlag("ledger_path", runCmd.Flags().Lookup("ledger"))

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	input, _ := cmd.Flags().GetString("input")
	from, _ := cmd.Flags().GetString("from")
	if input == "" && from == "" {
		return fmt.Errorf("--input is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	all, err := stages.Build(newDeps(cfg), stages.OptionsFrom(cfg))
	if err != nil {
		return err
	}
	list, err := stages.From(all, from)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithProgress(os.Stdout),
		pipeline.WithLogger(logger),
		pipeline.WithFormat(cfg.Format),
		pipeline.WithMaxInFlight(cfg.MaxInFlight),
	}
	driver := pipeline.NewDriver(cfg.OutputDir, opts...)

	gen, source, err := loadInput(driver, all, list, input, from)
	if err != nil {
		return err
	}
	logger.Info("loaded records", "source", source, "records", len(gen))

	var recorder *ledger.Recorder
	if cfg.LedgerPath != "" && cfg.LedgerPath != "off" {
		store, err := ledger.Open(types.LedgerConfig{Path: cfg.LedgerPath})
		if err != nil {
			return err
		}
		defer store.Close()
		recorder, err = store.BeginRun(ctx, source, stages.Names(list), logger)
		if err != nil {
			return err
		}
		driver = pipeline.NewDriver(cfg.OutputDir, append(opts, pipeline.WithObserver(recorder))...)
		logger.Info("recording run", "run", recorder.RunID(), "ledger", store.Path())
	}

	final, summaries, runErr := driver.RunAll(ctx, gen, list)
	if recorder != nil {
		if err := recorder.Finish(context.WithoutCancel(ctx), runErr); err != nil {
			logger.Warn("ledger: finishing run", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	failed := 0
	for _, s := range summaries {
		if s.HasFailures() {
			logger.Warn("stage had failures", "stage", s.Stage, "failed", s.Failed)
		}
		failed += s.Failed
	}
	last := summaries[len(summaries)-1]
	written := last.Export
	if written == "" {
		written = last.Checkpoint
	}
	fmt.Printf("\n%d record(s) written to %s (%d record failure(s) across %d stage(s))\n",
		len(final), written, failed, len(summaries))
	return nil
}

// loadInput returns the first generation. A fresh run reads the source
// corpus; a resumed run reads --input as a checkpoint or, when absent,
// the checkpoint of the stage before list[0].
func loadInput(d *pipeline.Driver, all, list []pipeline.Stage, input, from string) ([]types.Record, string, error) {
	if from == "" || list[0] == all[0] {
		if input == "" {
			return nil, "", fmt.Errorf("--input is required when resuming at the first stage")
		}
		gen, err := pipeline.LoadCorpus(input)
		return gen, input, err
	}
	if input == "" {
		for i := range all {
			if all[i] == list[0] {
				input = d.CheckpointPath(all[i-1])
				break
			}
		}
	}
	gen, err := pipeline.LoadGeneration(input)
	return gen, input, err
}

// newDeps builds the inference backends, each wrapped with the retry
// policy, and the shared image limiter.
func newDeps(cfg types.PipelineConfig) stages.Deps {
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Logger:      logger,
	}
	client := &http.Client{}

	deps := stages.Deps{
		Text:   inference.WithRetry(inference.NewHTTPBackend(cfg.TextBackend, client), policy),
		Images: limiter.New(cfg.ImagePermits),
		Logger: logger,
	}
	for _, b := range cfg.VisionBackends {
		deps.Vision = append(deps.Vision, inference.WithRetry(inference.NewHTTPBackend(b, client), policy))
	}
	return deps
}
