package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"insight/internal/domain"
	"insight/internal/provider"
)

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is auto, local or remote.
	Provider    string `yaml:"provider" split_words:"true"`
	LocalModel  string `yaml:"local_model" split_words:"true"`
	RemoteModel string `yaml:"remote_model" split_words:"true"`
	// Dimension of the local encoder. Remote dimensions come from the API.
	Dimension   int    `yaml:"dimension" split_words:"true"`
	BaseURL     string `yaml:"base_url" split_words:"true"`
	TimeoutSecs int    `yaml:"timeout_secs" split_words:"true"`
	MaxRetries  int    `yaml:"max_retries" split_words:"true"`
}

// VectorStoreConfig selects and configures the vector index.
type VectorStoreConfig struct {
	// Type is sqlite, memory, chroma or qdrant.
	Type             string `yaml:"type" split_words:"true"`
	CollectionName   string `yaml:"collection_name" split_words:"true"`
	PersistDirectory string `yaml:"persist_directory" split_words:"true"`
	Distance         string `yaml:"distance" split_words:"true"`
	// URL of the chroma or qdrant server.
	URL         string `yaml:"url,omitempty" split_words:"true"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty" split_words:"true"`
	TimeoutSecs int    `yaml:"timeout_secs" split_words:"true"`
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	// Backend is auto, local or remote.
	Backend         string  `yaml:"backend" split_words:"true"`
	RemoteModel     string  `yaml:"remote_model" split_words:"true"`
	LocalModel      string  `yaml:"local_model" split_words:"true"`
	BaseURL         string  `yaml:"base_url" split_words:"true"`
	Temperature     float64 `yaml:"temperature" split_words:"true"`
	TimeoutSecs     int     `yaml:"timeout_secs" split_words:"true"`
	MaxRetries      int     `yaml:"max_retries" split_words:"true"`
	SummaryTokens   int     `yaml:"summary_tokens" split_words:"true"`
	ExecutiveTokens int     `yaml:"executive_tokens" split_words:"true"`
	RubricTokens    int     `yaml:"rubric_tokens" split_words:"true"`
}

// PromptsConfig holds the prompt templates keyed by purpose.
type PromptsConfig struct {
	SummaryPrompt   string `yaml:"summary_prompt" split_words:"true"`
	ExecutivePrompt string `yaml:"executive_prompt" split_words:"true"`
	EvalRubric      string `yaml:"eval_rubric" split_words:"true"`
	// RubricSchema is an optional JSON Schema for the rubric object.
	RubricSchema string `yaml:"rubric_schema,omitempty" split_words:"true"`
}

// RetrievalConfig tunes queries.
type RetrievalConfig struct {
	TopK     int  `yaml:"top_k" split_words:"true"`
	Evaluate bool `yaml:"evaluate" split_words:"true"`
}

// CredentialsConfig names the env var holding the API key for every remote path.
type CredentialsConfig struct {
	APIKeyEnv string `yaml:"api_key_env" split_words:"true"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Prompts     PromptsConfig     `yaml:"prompts"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Credentials CredentialsConfig `yaml:"credentials"`
	LogLevel    string            `yaml:"log_level"`
}

// Load reads a config from a specified path. If the file does not exist,
// defaults are used. Environment overrides are applied, then the result is
// validated.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return finish(defaultConfig())
		}
		return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfiguration, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}
	return finish(&cfg)
}

func finish(cfg *AppConfig) (*AppConfig, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/insight/config.yaml.
// If neither exists, it writes defaults to ~/.config/insight/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := finish(defaultConfig())
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every missing required key in one error, then checks
// the enumerated settings.
func (c *AppConfig) Validate() error {
	required := []struct {
		key, value string
	}{
		{"embeddings.provider", c.Embeddings.Provider},
		{"embeddings.local_model", c.Embeddings.LocalModel},
		{"embeddings.remote_model", c.Embeddings.RemoteModel},
		{"vector_store.collection_name", c.VectorStore.CollectionName},
		{"vector_store.persist_directory", c.VectorStore.PersistDirectory},
		{"llm.backend", c.LLM.Backend},
		{"llm.remote_model", c.LLM.RemoteModel},
		{"llm.local_model", c.LLM.LocalModel},
		{"prompts.summary_prompt", c.Prompts.SummaryPrompt},
		{"prompts.executive_prompt", c.Prompts.ExecutivePrompt},
		{"prompts.eval_rubric", c.Prompts.EvalRubric},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required config keys: %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	if _, err := provider.ParseMode(c.Embeddings.Provider); err != nil {
		return fmt.Errorf("embeddings.provider: %w", err)
	}
	if _, err := provider.ParseMode(c.LLM.Backend); err != nil {
		return fmt.Errorf("llm.backend: %w", err)
	}
	switch c.VectorStore.Type {
	case "sqlite", "memory":
	case "chroma", "qdrant":
		if c.VectorStore.URL == "" {
			return fmt.Errorf("%w: vector_store.url is required for %s", domain.ErrConfiguration, c.VectorStore.Type)
		}
	default:
		return fmt.Errorf("%w: unknown vector_store.type %q", domain.ErrConfiguration, c.VectorStore.Type)
	}
	if _, err := domain.ParseDistance(c.VectorStore.Distance); err != nil {
		return fmt.Errorf("vector_store.distance: %w", err)
	}
	if err := domain.ValidateCollectionName(c.VectorStore.CollectionName); err != nil {
		return fmt.Errorf("vector_store.collection_name: %w", err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", domain.ErrConfiguration, c.LogLevel)
	}
	return nil
}

// applyEnv overrides each group from INSIGHT_<GROUP>_<KEY> variables,
// e.g. INSIGHT_EMBEDDINGS_PROVIDER or INSIGHT_VECTOR_STORE_COLLECTION_NAME.
func applyEnv(cfg *AppConfig) error {
	groups := []struct {
		prefix string
		target any
	}{
		{"INSIGHT_EMBEDDINGS", &cfg.Embeddings},
		{"INSIGHT_VECTOR_STORE", &cfg.VectorStore},
		{"INSIGHT_LLM", &cfg.LLM},
		{"INSIGHT_PROMPTS", &cfg.Prompts},
		{"INSIGHT_RETRIEVAL", &cfg.Retrieval},
		{"INSIGHT_CREDENTIALS", &cfg.Credentials},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return fmt.Errorf("%w: environment %s_*: %v", domain.ErrConfiguration, g.prefix, err)
		}
	}
	if v, ok := os.LookupEnv("INSIGHT_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: locate home directory: %v", domain.ErrConfiguration, err)
	}
	return filepath.Join(home, ".config", "insight", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embeddings: EmbeddingsConfig{
			Provider:    "auto",
			LocalModel:  "hashing-bow",
			RemoteModel: "text-embedding-3-small",
			Dimension:   384,
		},
		VectorStore: VectorStoreConfig{
			Type:             "sqlite",
			CollectionName:   "feedback",
			PersistDirectory: "./data/index",
			Distance:         "cosine",
		},
		LLM: LLMConfig{
			Backend:     "auto",
			RemoteModel: "gpt-4o-mini",
			LocalModel:  "frequency-ranker",
			Temperature: 0.2,
		},
		Prompts: PromptsConfig{
			SummaryPrompt:   DefaultSummaryPrompt,
			ExecutivePrompt: DefaultExecutivePrompt,
			EvalRubric:      DefaultEvalRubric,
			RubricSchema:    DefaultRubricSchema,
		},
		Retrieval:   RetrievalConfig{TopK: 6, Evaluate: true},
		Credentials: CredentialsConfig{APIKeyEnv: "OPENAI_API_KEY"},
		LogLevel:    "info",
	}
}

// applyConfigDefaults fills tuning knobs. Required keys are never defaulted
// here so that a file missing them fails validation.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Distance == "" {
		cfg.VectorStore.Distance = "cosine"
	}
	if cfg.VectorStore.TimeoutSecs == 0 {
		cfg.VectorStore.TimeoutSecs = 15
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384
	}
	if cfg.Embeddings.TimeoutSecs == 0 {
		cfg.Embeddings.TimeoutSecs = 30
	}
	if cfg.Embeddings.MaxRetries == 0 {
		cfg.Embeddings.MaxRetries = 2
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.SummaryTokens == 0 {
		cfg.LLM.SummaryTokens = 400
	}
	if cfg.LLM.ExecutiveTokens == 0 {
		cfg.LLM.ExecutiveTokens = 240
	}
	if cfg.LLM.RubricTokens == 0 {
		cfg.LLM.RubricTokens = 200
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 6
	}
	if cfg.Credentials.APIKeyEnv == "" {
		cfg.Credentials.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
