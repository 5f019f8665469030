package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"insight/internal/config"
	"insight/internal/domain"
	"insight/internal/embedding/hashing"
	embopenai "insight/internal/embedding/openai"
	"insight/internal/evaluator"
	"insight/internal/generation/extractive"
	genopenai "insight/internal/generation/openai"
	"insight/internal/provider"
	"insight/internal/retrieval"
	"insight/internal/service"
	"insight/internal/summarizer"
	"insight/internal/vectorstore/chroma"
	"insight/internal/vectorstore/memory"
	"insight/internal/vectorstore/qdrant"
	"insight/internal/vectorstore/sqlite"
)

// app holds the assembled pipeline for one command.
type app struct {
	cfg     *config.AppConfig
	logger  *slog.Logger
	store   domain.Store
	service *service.Service
}

func (a *app) Close() error { return a.store.Close() }

// buildApp assembles components. embeddingsFlag and llmFlag are the raw
// --embeddings and --llm values, empty meaning auto.
func buildApp(ctx context.Context, cfg *config.AppConfig, embeddingsFlag, llmFlag string, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	emb, err := newEmbedder(cfg, embeddingsFlag, logger)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg, llmFlag, logger)
	if err != nil {
		return nil, err
	}
	rubricGen, err := newRubricGenerator(cfg, gen, logger)
	if err != nil {
		return nil, err
	}
	st, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	dist, err := domain.ParseDistance(cfg.VectorStore.Distance)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	r, err := retrieval.New(ctx, emb, st, retrieval.Options{
		Collection: cfg.VectorStore.CollectionName,
		Distance:   dist,
		Logger:     logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sum, err := summarizer.New(gen, summarizer.Config{
		SummaryPrompt:   cfg.Prompts.SummaryPrompt,
		ExecutivePrompt: cfg.Prompts.ExecutivePrompt,
		SummaryTokens:   cfg.LLM.SummaryTokens,
		ExecutiveTokens: cfg.LLM.ExecutiveTokens,
		Logger:          logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	ev, err := evaluator.New(emb, rubricGen, evaluator.Config{
		RubricPrompt: cfg.Prompts.EvalRubric,
		RubricSchema: cfg.Prompts.RubricSchema,
		RubricTokens: cfg.LLM.RubricTokens,
		Logger:       logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	svc := service.New(r, sum, ev, service.Options{
		TopK:     cfg.Retrieval.TopK,
		Evaluate: cfg.Retrieval.Evaluate,
	}, logger)
	logger.Debug("pipeline ready",
		"embedder", emb.Name(), "generator", gen.Name(),
		"store", cfg.VectorStore.Type, "collection", r.Collection())
	return &app{cfg: cfg, logger: logger, store: st, service: svc}, nil
}

func newEmbedder(cfg *config.AppConfig, flag string, logger *slog.Logger) (domain.Embedder, error) {
	requested, err := provider.ParseMode(flag)
	if err != nil {
		return nil, fmt.Errorf("--embeddings: %w", err)
	}
	configured, err := provider.ParseMode(cfg.Embeddings.Provider)
	if err != nil {
		return nil, err
	}
	switch provider.ResolveEmbeddings(requested, configured) {
	case provider.ModeRemote:
		return embopenai.NewClient(embopenai.Config{
			BaseURL:    cfg.Embeddings.BaseURL,
			APIKeyEnv:  cfg.Credentials.APIKeyEnv,
			Model:      cfg.Embeddings.RemoteModel,
			Timeout:    time.Duration(cfg.Embeddings.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Embeddings.MaxRetries,
			Logger:     logger,
		})
	default:
		return hashing.NewEmbedder(hashing.Config{
			Model:     cfg.Embeddings.LocalModel,
			Dimension: cfg.Embeddings.Dimension,
		}), nil
	}
}

func newGenerator(cfg *config.AppConfig, flag string, logger *slog.Logger) (domain.Generator, error) {
	requested, err := provider.ParseMode(flag)
	if err != nil {
		return nil, fmt.Errorf("--llm: %w", err)
	}
	configured, err := provider.ParseMode(cfg.LLM.Backend)
	if err != nil {
		return nil, err
	}
	_, hasKey := provider.Credential(cfg.Credentials.APIKeyEnv)
	switch provider.Resolve(requested, configured, hasKey) {
	case provider.ModeRemote:
		return genopenai.NewClient(genopenai.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKeyEnv:   cfg.Credentials.APIKeyEnv,
			Model:       cfg.LLM.RemoteModel,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
			MaxRetries:  cfg.LLM.MaxRetries,
			Logger:      logger,
		})
	default:
		return extractive.NewGenerator(cfg.LLM.LocalModel), nil
	}
}

// newRubricGenerator picks the grading backend on its own: the hosted model
// when the credential is present, the on-process one otherwise, whatever
// --llm and llm.backend say. primary is reused when it already is that backend.
func newRubricGenerator(cfg *config.AppConfig, primary domain.Generator, logger *slog.Logger) (domain.Generator, error) {
	_, hasKey := provider.Credential(cfg.Credentials.APIKeyEnv)
	want := provider.Resolve(provider.ModeAuto, provider.ModeAuto, hasKey)
	if generatorMode(primary) == want {
		return primary, nil
	}
	rc := *cfg
	rc.LLM.Backend = string(want)
	return newGenerator(&rc, "", logger)
}

func generatorMode(gen domain.Generator) provider.Mode {
	switch gen.(type) {
	case *extractive.Generator:
		return provider.ModeLocal
	case *genopenai.Client:
		return provider.ModeRemote
	default:
		return provider.ModeAuto
	}
}

func newStore(cfg *config.AppConfig, logger *slog.Logger) (domain.Store, error) {
	vs := cfg.VectorStore
	timeout := time.Duration(vs.TimeoutSecs) * time.Second
	switch vs.Type {
	case "sqlite", "":
		return sqlite.Open(vs.PersistDirectory, logger)
	case "memory":
		return memory.NewStore(), nil
	case "chroma":
		return chroma.NewStore(chroma.Config{URL: vs.URL, Timeout: timeout, Logger: logger})
	case "qdrant":
		var apiKey string
		if vs.APIKeyEnv != "" {
			apiKey, _ = provider.Credential(vs.APIKeyEnv)
		}
		return qdrant.NewStore(qdrant.Config{URL: vs.URL, APIKey: apiKey, Timeout: timeout, Logger: logger})
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, vs.Type)
	}
}
