package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator"
)

// DefaultUserAgent identifies web fetches
const DefaultUserAgent = "policygraph/0.1"

// Config is the complete policygraph configuration
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Documents DocumentsConfig `mapstructure:"documents" yaml:"documents"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
}

// StorageConfig controls where graphs are written
type StorageConfig struct {
	GraphsDir string `mapstructure:"graphs_dir" yaml:"graphs_dir" validate:"required"`
}

// DocumentsConfig limits what the loaders accept
type DocumentsConfig struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
	MaxFileSize       int64    `mapstructure:"max_file_size" yaml:"max_file_size" validate:"gte=0"`
}

// LLMConfig configures the language-model collaborator
type LLMConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=openai anthropic claude ollama"` // "" disables the LLM
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"` // seconds
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`

	// ExtractionInputChars caps how much document text goes into the extraction prompt
	ExtractionInputChars int `mapstructure:"extraction_input_chars" yaml:"extraction_input_chars"`
	ExtractionMaxTokens  int `mapstructure:"extraction_max_tokens" yaml:"extraction_max_tokens"`
	AnswerMaxTokens      int `mapstructure:"answer_max_tokens" yaml:"answer_max_tokens"`

	// MaxConcurrentRequests caps in-flight requests to the provider; 0 means no cap
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests" validate:"gte=0"`

	// EmbeddingModel is recorded for future vector retrieval; nothing reads it yet
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
}

// RetrievalConfig bounds the context block handed to the answerer
type RetrievalConfig struct {
	MaxNodes            int     `mapstructure:"max_nodes" yaml:"max_nodes" validate:"gte=0"`
	ContentLimit        int     `mapstructure:"content_limit" yaml:"content_limit" validate:"gte=0"`
	NeighborLimit       int     `mapstructure:"neighbor_limit" yaml:"neighbor_limit" validate:"gte=0"`
	DefaultTopK         int     `mapstructure:"default_top_k" yaml:"default_top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold" validate:"gte=0,lte=1"`
}

// CacheConfig controls caching of raw extraction responses
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir       string        `mapstructure:"dir" yaml:"dir"`
	MemoryTTL time.Duration `mapstructure:"memory_ttl" yaml:"memory_ttl"`
	DiskTTL   time.Duration `mapstructure:"disk_ttl" yaml:"disk_ttl"`
}

// HTTPConfig is used by the web document loader
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RespectRobots     bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
	BurstSize         int           `mapstructure:"burst_size" yaml:"burst_size" validate:"gte=0"`
	HTTPProxy         string        `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy        string        `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy           string        `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// BatchConfig controls parallel document processing
type BatchConfig struct {
	Workers int           `mapstructure:"workers" yaml:"workers" validate:"gte=0"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OutputConfig controls console output
type OutputConfig struct {
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	base := defaultBaseDir()

	return &Config{
		Storage: StorageConfig{
			GraphsDir: filepath.Join(base, "graphs"),
		},
		Documents: DocumentsConfig{
			AllowedExtensions: []string{".txt", ".pdf", ".md", ".html", ".htm"},
			MaxFileSize:       10 << 20,
		},
		LLM: LLMConfig{
			Provider:              "", // Disabled by default
			Timeout:               60,
			MaxTokens:             1200,
			ExtractionInputChars:  4000,
			ExtractionMaxTokens:   1200,
			AnswerMaxTokens:       256,
			MaxConcurrentRequests: 2,
			EmbeddingModel:        "all-MiniLM-L6-v2",
		},
		Retrieval: RetrievalConfig{
			MaxNodes:            8,
			ContentLimit:        300,
			NeighborLimit:       3,
			DefaultTopK:         5,
			SimilarityThreshold: 0.3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       filepath.Join(base, "cache"),
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			UserAgent:         DefaultUserAgent,
			MaxBodyBytes:      10 << 20,
			RespectRobots:     true,
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		Batch: BatchConfig{
			Workers: 4,
			Timeout: 30 * time.Minute,
		},
		Output: OutputConfig{
			LogLevel: "info",
		},
	}
}

// DefaultConfigDir is where the config file and default data live
func DefaultConfigDir() string {
	return defaultBaseDir()
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".policygraph"
	}
	return filepath.Join(home, ".policygraph")
}

var validate = validator.New()

// Validate checks field ranges and enumerations declared in struct tags
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s fails %s (got %v)", fe.Namespace(), rule, fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
