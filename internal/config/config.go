// Package config loads and writes the engine configuration. Configuration
// lives at .ckg/config.toml under the working directory; every field has a
// usable default so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ConfigDirName is the per-workspace directory holding config and the graph
// database.
const ConfigDirName = ".ckg"

// Config is the complete engine configuration.
type Config struct {
	Ingestion IngestionConfig `mapstructure:"ingestion" toml:"ingestion"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" toml:"retrieval"`
	Trace     TraceConfig     `mapstructure:"trace" toml:"trace"`
	Impact    ImpactConfig    `mapstructure:"impact" toml:"impact"`
	Embedding EmbeddingConfig `mapstructure:"embedding" toml:"embedding"`
	Logging   LoggingConfig   `mapstructure:"logging" toml:"logging"`
}

// IngestionConfig controls the graph builder.
type IngestionConfig struct {
	// Workers bounds parallel per-file extraction.
	Workers int `mapstructure:"workers" toml:"workers"`
	// MaxFileSizeBytes caps parseable file size.
	MaxFileSizeBytes int64 `mapstructure:"maxFileSizeBytes" toml:"maxFileSizeBytes"`
}

// RetrievalConfig controls hybrid search and rank fusion.
type RetrievalConfig struct {
	// PerSetLimit truncates each candidate set before fusion.
	PerSetLimit int `mapstructure:"perSetLimit" toml:"perSetLimit"`
	// RRFConstant is the c in 1/(rank+c).
	RRFConstant int `mapstructure:"rrfConstant" toml:"rrfConstant"`
	// LexicalWeight, VectorWeight and StructuralWeight scale each set's
	// reciprocal-rank contribution.
	LexicalWeight    float64 `mapstructure:"lexicalWeight" toml:"lexicalWeight"`
	VectorWeight     float64 `mapstructure:"vectorWeight" toml:"vectorWeight"`
	StructuralWeight float64 `mapstructure:"structuralWeight" toml:"structuralWeight"`
	// VectorWaitMs bounds how long fusion waits for the vector branch before
	// degrading to the other two sets.
	VectorWaitMs int `mapstructure:"vectorWaitMs" toml:"vectorWaitMs"`
}

// TraceConfig holds default trace budgets.
type TraceConfig struct {
	MaxDepth int `mapstructure:"maxDepth" toml:"maxDepth"`
	MaxNodes int `mapstructure:"maxNodes" toml:"maxNodes"`
}

// ImpactConfig holds the default reverse-reachability hop limit.
type ImpactConfig struct {
	MaxHops int `mapstructure:"maxHops" toml:"maxHops"`
}

// EmbeddingConfig configures the external embedding service.
type EmbeddingConfig struct {
	Enabled   bool   `mapstructure:"enabled" toml:"enabled"`
	BaseURL   string `mapstructure:"baseUrl" toml:"baseUrl"`
	APIKey    string `mapstructure:"apiKey" toml:"apiKey"`
	Model     string `mapstructure:"model" toml:"model"`
	Dimension int    `mapstructure:"dimension" toml:"dimension"`
	TimeoutMs int    `mapstructure:"timeoutMs" toml:"timeoutMs"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Format string `mapstructure:"format" toml:"format"` // json or human
	Level  string `mapstructure:"level" toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Ingestion: IngestionConfig{
			Workers:          4,
			MaxFileSizeBytes: 1 << 20,
		},
		Retrieval: RetrievalConfig{
			PerSetLimit:      20,
			RRFConstant:      60,
			LexicalWeight:    1.0,
			VectorWeight:     1.0,
			StructuralWeight: 1.0,
			VectorWaitMs:     2000,
		},
		Trace: TraceConfig{
			MaxDepth: 10,
			MaxNodes: 200,
		},
		Impact: ImpactConfig{
			MaxHops: 4,
		},
		Embedding: EmbeddingConfig{
			Enabled:   false,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			TimeoutMs: 10000,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads config from workRoot/.ckg/config.toml, falling back to defaults
// for missing keys or a missing file. CKG_* environment variables override
// file values: the nested key separator maps to an underscore, so
// CKG_INGESTION_WORKERS overrides ingestion.workers.
func Load(workRoot string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(filepath.Join(workRoot, ConfigDirName))
	v.SetEnvPrefix("CKG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if ok := asConfigNotFound(err, &notFound); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key with viper so environment overrides apply
// even for keys absent from the config file.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("ingestion.workers", d.Ingestion.Workers)
	v.SetDefault("ingestion.maxFileSizeBytes", d.Ingestion.MaxFileSizeBytes)
	v.SetDefault("retrieval.perSetLimit", d.Retrieval.PerSetLimit)
	v.SetDefault("retrieval.rrfConstant", d.Retrieval.RRFConstant)
	v.SetDefault("retrieval.lexicalWeight", d.Retrieval.LexicalWeight)
	v.SetDefault("retrieval.vectorWeight", d.Retrieval.VectorWeight)
	v.SetDefault("retrieval.structuralWeight", d.Retrieval.StructuralWeight)
	v.SetDefault("retrieval.vectorWaitMs", d.Retrieval.VectorWaitMs)
	v.SetDefault("trace.maxDepth", d.Trace.MaxDepth)
	v.SetDefault("trace.maxNodes", d.Trace.MaxNodes)
	v.SetDefault("impact.maxHops", d.Impact.MaxHops)
	v.SetDefault("embedding.enabled", d.Embedding.Enabled)
	v.SetDefault("embedding.baseUrl", d.Embedding.BaseURL)
	v.SetDefault("embedding.apiKey", d.Embedding.APIKey)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.timeoutMs", d.Embedding.TimeoutMs)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
}

func asConfigNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}

// WriteDefault writes the default configuration to workRoot/.ckg/config.toml,
// creating the directory. Fails if the file already exists.
func WriteDefault(workRoot string) (string, error) {
	dir := filepath.Join(workRoot, ConfigDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists at %s", path)
	}
	data, err := toml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
