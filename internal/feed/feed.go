package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tomoyayamashita/iocgate/internal/cache"
	"github.com/tomoyayamashita/iocgate/internal/logger"
)

// DefaultURL is the Wiz Research list of packages compromised by Shai-Hulud 2.0
const DefaultURL = "https://raw.githubusercontent.com/wiz-sec-public/wiz-research-iocs/main/reports/shai-hulud-2-packages.csv"

// DefaultTimeout bounds a single feed download
const DefaultTimeout = 20 * time.Second

const maxFeedSize = 64 << 20

// ErrNotCached is returned in offline mode when the feed was never fetched
var ErrNotCached = errors.New("feed not in cache")

// StatusError is returned when the feed server answers with a non-200 status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch IOC feed %s: HTTP %d", e.URL, e.StatusCode)
}

// Config represents feed source configuration
type Config struct {
	URL     string
	Timeout time.Duration
	// Cache is optional. Without it every Fetch downloads the feed.
	Cache *cache.FeedCache
	// MaxAge lets Fetch serve a cached copy younger than this without
	// touching the network. Zero always downloads.
	MaxAge time.Duration
	// Offline serves the cached copy regardless of age and never downloads.
	Offline bool
	Logger  *logger.Logger
	Client  *http.Client
}

// HTTPSource fetches the IOC feed over HTTP(S). It does not retry; a failed
// download is returned to the caller as is.
type HTTPSource struct {
	url     string
	client  *http.Client
	cache   *cache.FeedCache
	maxAge  time.Duration
	offline bool
	logger  *logger.Logger
	now     func() time.Time
}

// NewHTTPSource creates a new HTTPSource
func NewHTTPSource(config Config) *HTTPSource {
	url := config.URL
	if url == "" {
		url = DefaultURL
	}

	client := config.Client
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	log := config.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &HTTPSource{
		url:     url,
		client:  client,
		cache:   config.Cache,
		maxAge:  config.MaxAge,
		offline: config.Offline,
		logger:  log,
		now:     time.Now,
	}
}

// URL returns the feed location
func (s *HTTPSource) URL() string {
	return s.url
}

// Fetch returns the feed text, from the cache when allowed, otherwise from
// the network. Successful downloads are written back to the cache.
func (s *HTTPSource) Fetch(ctx context.Context) (string, error) {
	if s.cache != nil {
		entry, err := s.cache.Get(s.url)
		if err != nil {
			s.logger.Warn("feed_cache_error", "Failed to read feed cache", map[string]interface{}{
				"url":   s.url,
				"error": err.Error(),
			})
		} else if entry != nil && s.usable(entry) {
			s.logger.Debug("feed_cache_hit", "Using cached IOC feed", map[string]interface{}{
				"url":        s.url,
				"fetched_at": entry.FetchedAt.Format(time.RFC3339),
			})
			return entry.Body, nil
		}
	}

	if s.offline {
		return "", fmt.Errorf("%w: %s", ErrNotCached, s.url)
	}

	body, err := s.download(ctx)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Put(s.url, body, s.now()); err != nil {
			s.logger.Warn("feed_cache_error", "Failed to store IOC feed", map[string]interface{}{
				"url":   s.url,
				"error": err.Error(),
			})
		}
	}

	return body, nil
}

func (s *HTTPSource) usable(entry *cache.Entry) bool {
	if s.offline {
		return true
	}
	return s.maxAge > 0 && entry.Age(s.now()) < s.maxAge
}

func (s *HTTPSource) download(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", "iocgate")

	s.logger.Info("feed_fetch", "Fetching IOC feed", map[string]interface{}{
		"url": s.url,
	})

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch IOC feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: s.url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read IOC feed: %w", err)
	}
	if len(data) > maxFeedSize {
		return "", fmt.Errorf("IOC feed exceeds %d bytes", maxFeedSize)
	}

	return string(data), nil
}

// FileSource reads the IOC feed from a local file
type FileSource struct {
	Path string
}

// Fetch implements the feed source interface
func (s FileSource) Fetch(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read IOC feed file: %w", err)
	}
	return string(data), nil
}
