package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch job postings and store new ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		sum, runID, err := env.Coordinator.Ingest(ctx, pipeline.IngestOptions{Limit: limit})
		printSummary(os.Stdout, "ingest", runID, sum)
		return err
	},
}

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Classify unprocessed postings and create leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, envOptions{RequireLLM: true})
		if err != nil {
			return err
		}
		defer env.Close()

		opts := pipeline.QualifyOptions{}
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		if cmd.Flags().Changed("threshold") {
			threshold, _ := cmd.Flags().GetInt("threshold")
			opts.Threshold = &threshold
		}

		sum, runID, err := env.Coordinator.Qualify(ctx, opts)
		printSummary(os.Stdout, "qualify", runID, sum)
		return err
	},
}

func init() {
	ingestCmd.Flags().Int("limit", 0, "max postings to fetch (default from config)")
	qualifyCmd.Flags().Int("limit", 0, "max postings to classify (default from config)")
	qualifyCmd.Flags().Int("threshold", 0, "minimum relevance score 0-100 (default from config)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(qualifyCmd)
}
