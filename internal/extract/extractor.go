package extract

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/cache"
	"github.com/ppiankov/policygraph/internal/llm"
	"github.com/ppiankov/policygraph/internal/logging"
)

// DefaultMaxTokens bounds the extraction reply
const DefaultMaxTokens = 1200

// ExtractorOptions configures an Extractor
type ExtractorOptions struct {
	MaxInputChars int           // document text carried by the prompt
	MaxTokens     int           // reply budget
	Model         string        // provider model override, also part of the cache key
	Cache         cache.Cache   // optional raw response cache
	CacheTTL      time.Duration // 0 uses the cache default
	Logger        *log.Logger
}

// Extractor turns document text into a normalized Extraction by asking the
// configured provider and salvaging whatever JSON it returns
type Extractor struct {
	provider   llm.Provider
	opts       ExtractorOptions
	recoverer  *Recoverer
	normalizer *Normalizer
	logger     *log.Logger
}

// NewExtractor creates an extractor; a nil provider yields empty extractions
func NewExtractor(provider llm.Provider, opts ExtractorOptions) *Extractor {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = llm.DefaultExtractionInputChars
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	logger := logging.Component(opts.Logger, "extract")

	return &Extractor{
		provider:   provider,
		opts:       opts,
		recoverer:  NewRecoverer(logger),
		normalizer: NewNormalizer(logger),
		logger:     logger,
	}
}

// IsEnabled returns true if a provider is configured
func (x *Extractor) IsEnabled() bool {
	return x.provider != nil
}

// Extract never fails: provider absence or errors produce the empty extraction
func (x *Extractor) Extract(ctx context.Context, text string) Extraction {
	if x.provider == nil {
		x.logger.Warn("no LLM provider configured, skipping extraction")
		return Empty()
	}

	req := llm.ExtractionRequest(text, x.opts.MaxInputChars, x.opts.MaxTokens)
	req.Model = x.opts.Model

	raw, err := x.complete(ctx, req)
	if err != nil {
		x.logger.Error("extraction request failed", "provider", x.provider.Name(), "err", err)
		return Empty()
	}

	return x.Parse(raw)
}

// Parse recovers and normalizes a raw model reply
func (x *Extractor) Parse(raw string) Extraction {
	return x.normalizer.Normalize(x.normalizer.Decode(x.recoverer.Recover(raw)))
}

func (x *Extractor) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	key := cache.Key(x.provider.Name(), req.Model, strconv.Itoa(req.MaxTokens), req.System, req.Prompt)

	if x.opts.Cache != nil {
		if data, ok := x.opts.Cache.Get(key); ok {
			x.logger.Debug("extraction cache hit")
			return string(data), nil
		}
	}

	resp, err := x.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	x.logger.Debug("extraction reply received", "model", resp.Model, "tokens", resp.TokensUsed, "chars", len(resp.Text))

	if x.opts.Cache != nil {
		if err := x.opts.Cache.Set(key, []byte(resp.Text), x.opts.CacheTTL); err != nil {
			x.logger.Warn("failed to cache extraction reply", "err", err)
		}
	}
	return resp.Text, nil
}
