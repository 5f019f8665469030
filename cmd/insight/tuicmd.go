package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"insight/internal/dataset"
	"insight/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [file.csv]",
	Short: "Interactive shell; indexes file.csv first when given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cfg, flags.embeddings, flags.llm, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var records []dataset.Record
	if len(args) == 1 {
		records, err = dataset.LoadCSV(args[0])
		if err != nil {
			return err
		}
		if _, err := a.service.IndexRecords(ctx, records); err != nil {
			return err
		}
	}
	m := tui.New(a.service, tui.Options{
		TopK:    cfg.Retrieval.TopK,
		Records: records,
		Timeout: time.Duration(cfg.LLM.TimeoutSecs*3) * time.Second,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
