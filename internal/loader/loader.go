// Package loader turns document paths and URLs into plain text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/logging"
	"github.com/ppiankov/policygraph/internal/model"
)

var (
	// ErrUnsupportedFormat is returned for extensions no loader handles
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrTooLarge is returned when a document exceeds the size limit
	ErrTooLarge = errors.New("document too large")
)

// Loader extracts text from one kind of document file
type Loader interface {
	Load(ctx context.Context, path string) (string, error)
	Extensions() []string
}

// Options configures a Registry
type Options struct {
	AllowedExtensions []string // empty allows every registered loader
	MaxFileSize       int64    // 0 disables the check
	HTTP              model.HTTPConfig
	Logger            *log.Logger
}

// Registry picks a loader by file extension and routes URLs to the web loader
type Registry struct {
	loaders     map[string]Loader
	allowed     map[string]bool
	maxFileSize int64
	web         *WebLoader
	logger      *log.Logger
}

// NewRegistry creates a registry with the text, markdown, PDF and HTML loaders
func NewRegistry(opts Options) *Registry {
	logger := logging.Component(opts.Logger, "loader")

	r := &Registry{
		loaders:     make(map[string]Loader),
		maxFileSize: opts.MaxFileSize,
		logger:      logger,
	}
	if len(opts.AllowedExtensions) > 0 {
		r.allowed = make(map[string]bool, len(opts.AllowedExtensions))
		for _, ext := range opts.AllowedExtensions {
			r.allowed[normalizeExt(ext)] = true
		}
	}

	for _, l := range []Loader{&TextLoader{}, &PDFLoader{}, &HTMLLoader{}} {
		for _, ext := range l.Extensions() {
			r.Register(ext, l)
		}
	}

	webOpts := opts.HTTP
	if webOpts.MaxBodyBytes == 0 {
		webOpts.MaxBodyBytes = opts.MaxFileSize
	}
	r.web = NewWebLoader(webOpts, logger)
	return r
}

// Register adds or replaces the loader for ext
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[normalizeExt(ext)] = l
}

// Supported reports whether files with ext can be loaded
func (r *Registry) Supported(ext string) bool {
	ext = normalizeExt(ext)
	if r.allowed != nil && !r.allowed[ext] {
		return false
	}
	_, ok := r.loaders[ext]
	return ok
}

// Load returns the text of the document at path, which may be an http(s) URL
func (r *Registry) Load(ctx context.Context, path string) (string, error) {
	if IsURL(path) {
		return r.web.Load(ctx, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("document not found: %s: %w", path, err)
		}
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("document %s is a directory", path)
	}
	if r.maxFileSize > 0 && info.Size() > r.maxFileSize {
		return "", fmt.Errorf("%s is %d bytes, limit %d: %w", path, info.Size(), r.maxFileSize, ErrTooLarge)
	}

	ext := normalizeExt(filepath.Ext(path))
	if !r.Supported(ext) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	text, err := r.loaders[ext].Load(ctx, path)
	if err != nil {
		return "", err
	}
	r.logger.Debug("document loaded", "path", path, "chars", len(text))
	return text, nil
}

// IsURL reports whether path should be fetched over HTTP
func IsURL(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// TextLoader reads UTF-8 text and markdown files as-is
type TextLoader struct{}

// Extensions returns the handled extensions
func (l *TextLoader) Extensions() []string { return []string{".txt", ".md"} }

// Load reads the file
func (l *TextLoader) Load(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	return string(data), nil
}
