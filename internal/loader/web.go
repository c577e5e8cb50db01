package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/logging"
	"github.com/ppiankov/policygraph/internal/model"
	"github.com/ppiankov/policygraph/internal/util"
)

// ErrDisallowed is returned when robots.txt forbids the fetch
var ErrDisallowed = errors.New("disallowed by robots.txt")

const (
	// maxAttempts bounds fetches of one URL while the server fails transiently
	maxAttempts = 3

	// retryBackoff is the wait before the second attempt; it doubles after that
	retryBackoff = 500 * time.Millisecond

	maxRedirects = 3

	// minArticleChars is the shortest readability article preferred over
	// the page's full visible text
	minArticleChars = 250
)

// sleep waits d or until ctx is done. Tests replace it.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusError is a non-200 response
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, http.StatusText(e.Code))
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// isRetryable reports whether a failed fetch may succeed if repeated:
// 429, 5xx and transport failures while ctx is still live
func isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	var transport *transportError
	return errors.As(err, &transport)
}

// WebLoader fetches documents over HTTP with robots.txt checks and per-host
// rate limiting
type WebLoader struct {
	client  *http.Client
	robots  *RobotsChecker
	limiter *HostLimiter
	config  model.HTTPConfig
	logger  *log.Logger
}

// NewWebLoader creates a web loader from the HTTP settings
func NewWebLoader(config model.HTTPConfig, logger *log.Logger) *WebLoader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = model.DefaultUserAgent
	}

	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &WebLoader{
		client:  client,
		robots:  NewRobotsChecker(client, config.UserAgent),
		limiter: NewHostLimiter(config.RequestsPerSecond, config.BurstSize),
		config:  config,
		logger:  logging.Component(logger, "web"),
	}
}

// Load fetches rawURL and returns its text. HTML pages are reduced to
// their main article (or all visible text), PDFs are parsed, anything else
// is returned as-is.
func (w *WebLoader) Load(ctx context.Context, rawURL string) (string, error) {
	var delay time.Duration
	if w.config.RespectRobots {
		allowed, crawlDelay, err := w.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		delay = crawlDelay
	}

	if err := w.limiter.Wait(ctx, rawURL, delay); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	var (
		body      []byte
		mediaType string
		err       error
	)
	backoff := retryBackoff
	for attempt := 1; ; attempt++ {
		body, mediaType, err = w.fetch(ctx, rawURL)
		if err == nil || attempt == maxAttempts || !isRetryable(ctx, err) {
			break
		}
		w.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "err", err)
		if serr := sleep(ctx, backoff); serr != nil {
			return "", fmt.Errorf("fetch %s: %w", rawURL, serr)
		}
		backoff *= 2
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	w.logger.Debug("fetched document", "url", rawURL, "bytes", len(body), "type", mediaType)

	switch {
	case mediaType == "application/pdf" || hasPDFPath(rawURL):
		return PDFText(ctx, body)
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return w.pageText(body, rawURL)
	default:
		return string(body), nil
	}
}

// fetch performs one GET and returns the body and its media type
func (w *WebLoader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", w.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/pdf,text/plain;q=0.9,*/*;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{Code: resp.StatusCode}
	}

	body, err := w.readBody(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return body, mediaType, nil
}

// pageText extracts the main article with readability, falling back to
// all visible text when the page is short or has no recognisable article
func (w *WebLoader) pageText(body []byte, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return HTMLText(bytes.NewReader(body))
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		w.logger.Debug("no readable article, using visible text", "url", rawURL, "err", err)
		return HTMLText(bytes.NewReader(body))
	}

	var text strings.Builder
	if err := article.RenderText(&text); err != nil {
		return HTMLText(bytes.NewReader(body))
	}
	if out := strings.TrimSpace(text.String()); len([]rune(out)) >= minArticleChars {
		return out, nil
	}
	return HTMLText(bytes.NewReader(body))
}

func hasPDFPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func (w *WebLoader) readBody(r io.Reader) ([]byte, error) {
	if w.config.MaxBodyBytes <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, w.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > w.config.MaxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes: %w", w.config.MaxBodyBytes, ErrTooLarge)
	}
	return body, nil
}
