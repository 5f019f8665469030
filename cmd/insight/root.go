package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"insight/internal/config"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	dimColor    = color.New(color.Faint)
	errorColor  = color.New(color.FgRed, color.Bold)
)

// globalFlags override the loaded configuration for one invocation.
type globalFlags struct {
	configPath string
	embeddings string
	llm        string
	collection string
	logLevel   string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:           "insight",
	Short:         "Customer feedback insight assistant",
	Long:          color.CyanString("insight") + "\nIndex customer feedback, then ask questions that are answered from retrieved examples.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/insight/config.yaml)")
	pf.StringVar(&flags.embeddings, "embeddings", "", "embedding provider: auto, local or remote")
	pf.StringVar(&flags.llm, "llm", "", "generation backend: auto, local or remote")
	pf.StringVar(&flags.collection, "collection", "", "collection name override")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(tuiCmd)
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if flags.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(flags.configPath)
	}
	if err != nil {
		return nil, err
	}
	if flags.collection != "" {
		cfg.VectorStore.CollectionName = flags.collection
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func printHeader(title string) {
	fmt.Println()
	headerColor.Println(title)
}
