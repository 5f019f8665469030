package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"insight/internal/service"
	"insight/internal/tui"
)

var queryOpts struct {
	topK   int
	noEval bool
	show   int
}

var queryCmd = &cobra.Command{
	Use:   `query "<question>"`,
	Short: "Answer one question from the indexed feedback",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryOpts.topK, "top-k", 0, "number of examples to retrieve (default from config)")
	queryCmd.Flags().BoolVar(&queryOpts.noEval, "no-eval", false, "skip evaluation")
	queryCmd.Flags().IntVar(&queryOpts.show, "show", 3, "number of retrieved examples to print")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if queryOpts.noEval {
		cfg.Retrieval.Evaluate = false
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

	in, err := a.service.Ask(ctx, strings.Join(args, " "), queryOpts.topK)
	if err != nil {
		return err
	}
	printInsight(in, queryOpts.show)
	return nil
}

func printInsight(in *service.Insight, show int) {
	printHeader(fmt.Sprintf("Retrieved examples (%d)", len(in.Documents)))
	for i := 0; i < len(in.Documents) && i < show; i++ {
		dimColor.Printf("[%d] distance=%.3f id=%s\n", i+1, in.Distances[i], in.IDs[i])
		fmt.Println(in.Documents[i])
	}
	printHeader("Theme summary")
	fmt.Println(in.Summary)
	printHeader("Executive report")
	fmt.Println(in.Report)
	printHeader("Sentiment mentions")
	fmt.Println(tui.SentimentChart(in.Sentiment, service.Sentiments, 30))
	if in.Evaluated {
		printHeader("Evaluation")
		fmt.Printf("semantic similarity: mean=%.3f max=%.3f references=%d\n",
			in.Similarity.MeanSimilarity, in.Similarity.MaxSimilarity, in.Similarity.References)
		if in.RubricErr != nil {
			dimColor.Printf("rubric not available: %v\n", in.RubricErr)
		} else {
			fmt.Println("rubric:", tui.FormatRubric(in.Rubric))
		}
	}
	dimColor.Printf("\n%s\n", in.Elapsed.Round(time.Millisecond))
}
