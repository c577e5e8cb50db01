package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/graph"
	"github.com/ppiankov/policygraph/internal/logging"
)

// Builder builds one document into a graph and saves it
type Builder interface {
	Build(ctx context.Context, path string) (graph.BuildStats, error)
	Name() string
}

// BuilderFactory returns a fresh builder per document so every document gets its own graph
type BuilderFactory func() (Builder, error)

// DocumentJob processes one document
type DocumentJob struct {
	Path       string
	NewBuilder BuilderFactory
	Timeout    time.Duration
}

// Execute builds the document with a fresh builder
func (j *DocumentJob) Execute(ctx context.Context) Result {
	start := time.Now()
	res := &DocumentResult{Path: j.Path}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	b, err := j.NewBuilder()
	if err != nil {
		res.Error = fmt.Errorf("create session: %w", err)
		return res
	}

	stats, err := b.Build(ctx, j.Path)
	res.Graph = b.Name()
	res.Stats = stats
	res.Error = err
	res.Elapsed = time.Since(start)
	return res
}

// DocumentResult reports one processed document
type DocumentResult struct {
	Path    string
	Graph   string
	Stats   graph.BuildStats
	Elapsed time.Duration
	Error   error
}

// Err returns the document error
func (r *DocumentResult) Err() error {
	return r.Error
}

// BatchProcessor builds many documents concurrently
type BatchProcessor struct {
	newBuilder BuilderFactory
	workers    int
	timeout    time.Duration
	logger     *log.Logger
}

// NewBatchProcessor creates a batch processor. timeout bounds each document; 0 disables it.
func NewBatchProcessor(newBuilder BuilderFactory, workers int, timeout time.Duration, logger *log.Logger) *BatchProcessor {
	return &BatchProcessor{
		newBuilder: newBuilder,
		workers:    workers,
		timeout:    timeout,
		logger:     logging.Component(logger, "batch"),
	}
}

// ProcessDocuments builds every path and returns results in input order
func (b *BatchProcessor) ProcessDocuments(ctx context.Context, paths []string) []*DocumentResult {
	if len(paths) == 0 {
		return []*DocumentResult{}
	}

	pool := NewPool(ctx, b.workers)
	pool.Start()

	for _, path := range paths {
		pool.Submit(&DocumentJob{
			Path:       path,
			NewBuilder: b.newBuilder,
			Timeout:    b.timeout,
		})
	}

	results := pool.Wait()

	out := make([]*DocumentResult, len(paths))
	failed := 0
	for i, path := range paths {
		var res *DocumentResult
		if i < len(results) && results[i] != nil {
			res = results[i].(*DocumentResult)
		} else {
			res = &DocumentResult{Path: path, Error: fmt.Errorf("not processed: %w", context.Cause(ctx))}
		}
		if res.Error != nil {
			failed++
			b.logger.Warn("document failed", "path", res.Path, "err", res.Error)
		}
		out[i] = res
	}

	b.logger.Info("batch finished", "documents", len(paths), "failed", failed)
	return out
}

// ProcessFile reads document paths from a list file and processes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, listFile string) ([]*DocumentResult, error) {
	paths, err := ReadPathsFromFile(listFile)
	if err != nil {
		return nil, fmt.Errorf("read document list: %w", err)
	}
	return b.ProcessDocuments(ctx, paths), nil
}

// ReadPathsFromFile reads one document path or URL per line. Blank lines
// and # comments are skipped; duplicates are dropped.
func ReadPathsFromFile(listFile string) ([]string, error) {
	file, err := os.Open(listFile)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
