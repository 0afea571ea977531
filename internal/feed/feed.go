// Package feed downloads calendar feeds, either directly or through a
// fetch proxy, with an on-disk HTTP cache keyed by URL.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peterbourgon/diskv/v3"
)

// Strategy is how a feed is reached.
type Strategy string

const (
	// Direct requests the feed URL from this server.
	Direct Strategy = "direct"
	// Proxy asks the configured fetch proxy to request it.
	Proxy Strategy = "proxy"
)

const maxFeedSize = 5 << 20

var ErrNoProxy = errors.New("no fetch proxy configured")

// FetchError reports a failed download. Callers may offer the other
// strategy to the user; the fetcher never switches on its own.
type FetchError struct {
	Strategy   Strategy
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch calendar (%s) %s: %v", e.Strategy, redactURL(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is a downloaded feed.
type Result struct {
	Body      []byte
	FromCache bool
	Strategy  Strategy
}

type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Fetcher struct {
	client   *http.Client
	cache    *diskv.Diskv
	proxyURL string
	logger   *slog.Logger
}

// NewFetcher creates a fetcher. An empty cacheDir disables the cache and an
// empty proxyURL disables the proxy strategy.
func NewFetcher(cacheDir, proxyURL string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		proxyURL: proxyURL,
		logger:   logger,
	}
	if cacheDir != "" {
		f.cache = diskv.New(diskv.Options{
			BasePath:     cacheDir,
			CacheSizeMax: 1 << 20,
		})
	}
	return f
}

// Fetch downloads the feed at rawURL using strategy. A 304 answer is served
// from the cache.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, strategy Strategy) (*Result, error) {
	fail := func(status int, err error) (*Result, error) {
		// url.Error repeats the full URL, token included
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		f.logger.Warn("calendar fetch failed", "strategy", strategy, "url", redactURL(rawURL), "status", status, "error", err)
		return nil, &FetchError{Strategy: strategy, URL: rawURL, StatusCode: status, Err: err}
	}

	target := rawURL
	switch strategy {
	case Direct:
	case Proxy:
		if f.proxyURL == "" {
			return fail(0, ErrNoProxy)
		}
		target = proxied(f.proxyURL, rawURL)
	default:
		return fail(0, fmt.Errorf("unknown strategy %q", strategy))
	}

	key := cacheKey(rawURL)
	meta, cached := f.load(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.5")
	if cached != nil {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		f.logger.Debug("calendar not modified", "strategy", strategy, "url", redactURL(rawURL))
		return &Result{Body: cached, FromCache: true, Strategy: strategy}, nil
	case resp.StatusCode != http.StatusOK:
		return fail(resp.StatusCode, errors.New(resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if len(body) > maxFeedSize {
		return fail(resp.StatusCode, fmt.Errorf("feed larger than %d bytes", maxFeedSize))
	}

	f.save(key, cacheEntry{
		URL:          rawURL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		UpdatedAt:    time.Now().UTC(),
	}, body)

	f.logger.Info("calendar fetched", "strategy", strategy, "url", redactURL(rawURL), "bytes", len(body))
	return &Result{Body: body, Strategy: strategy}, nil
}

func proxied(proxy, rawURL string) string {
	sep := "?"
	if strings.Contains(proxy, "?") {
		sep = "&"
	}
	return proxy + sep + "url=" + url.QueryEscape(rawURL)
}

func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:8])
}

// load returns the cached body and its metadata, or a nil body.
func (f *Fetcher) load(key string) (cacheEntry, []byte) {
	var meta cacheEntry
	if f.cache == nil {
		return meta, nil
	}
	raw, err := f.cache.Read(key + ".json")
	if err != nil {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return cacheEntry{}, nil
	}
	body, err := f.cache.Read(key + ".ics")
	if err != nil || len(body) == 0 {
		return meta, nil
	}
	return meta, body
}

func (f *Fetcher) save(key string, meta cacheEntry, body []byte) {
	if f.cache == nil || (meta.ETag == "" && meta.LastModified == "") {
		return
	}
	data, err := json.Marshal(meta)
	if err == nil {
		// body first so metadata never points at a missing body
		err = f.cache.Write(key+".ics", body)
	}
	if err == nil {
		err = f.cache.Write(key+".json", data)
	}
	if err != nil {
		f.logger.Warn("calendar cache save failed", "url", redactURL(meta.URL), "error", err)
	}
}

// redactURL keeps the scheme and host of a feed URL. Feed paths and query
// strings carry the user's token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
