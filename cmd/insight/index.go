package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"insight/internal/dataset"
)

var indexCmd = &cobra.Command{
	Use:   "index <file.csv>",
	Short: "Index a feedback CSV into the configured collection",
	Long:  "Reads a CSV with a text column (and optional id column), embeds every row and upserts it. Re-indexing the same file is idempotent.",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	records, err := dataset.LoadCSV(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cfg, flags.embeddings, flags.llm, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	n, err := a.service.IndexRecords(ctx, records)
	if err != nil {
		return err
	}
	total, err := a.service.Retriever().Count(ctx)
	if err != nil {
		return err
	}
	headerColor.Printf("Indexed %d records", n)
	fmt.Printf(" into %q (%d documents) in %s\n", a.service.Retriever().Collection(), total, time.Since(start).Round(time.Millisecond))
	return nil
}
