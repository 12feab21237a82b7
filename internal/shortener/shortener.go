// Package shortener turns product detail URLs into short links.
package shortener

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrShorten is returned when the shortening service rejects a URL.
var ErrShorten = errors.New("shortener: request failed")

// Shortener maps a long URL to a short one.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// Passthrough returns URLs unchanged. It is used when no bit.ly token is set.
type Passthrough struct{}

func (Passthrough) Shorten(_ context.Context, longURL string) (string, error) {
	return longURL, nil
}

// Bitly calls the bit.ly v4 API.
type Bitly struct {
	token      string
	endpoint   string
	httpClient *http.Client
}

// NewBitly creates a bit.ly client. endpoint defaults to the public API.
func NewBitly(token, endpoint string, timeout time.Duration) *Bitly {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api-ssl.bitly.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bitly{
		token:      token,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type shortenRequest struct {
	LongURL string `json:"long_url"`
}

type shortenResponse struct {
	Link string `json:"link"`
}

// Shorten returns the bit.ly link for longURL. Empty input is returned as is.
func (b *Bitly) Shorten(ctx context.Context, longURL string) (string, error) {
	if longURL == "" {
		return "", nil
	}

	body, err := json.Marshal(shortenRequest{LongURL: longURL})
	if err != nil {
		return "", fmt.Errorf("encode shorten request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/v4/shorten", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create shorten request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("shorten: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w (status %d): %s", ErrShorten, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out shortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode shorten response: %w", err)
	}
	if out.Link == "" {
		return "", fmt.Errorf("%w: empty link", ErrShorten)
	}
	return out.Link, nil
}

// linkCache is the subset of *redis.Client used by Cached.
type linkCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cached memoizes another Shortener in Redis. Redis failures are logged and
// fall through to the wrapped shortener.
type Cached struct {
	next  Shortener
	cache linkCache
	ttl   time.Duration
	log   zerolog.Logger
}

const linkKeyPrefix = "shopbot:link:"

// NewCached wraps next with a Redis memo. ttl of zero keeps links forever.
func NewCached(next Shortener, rdb linkCache, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{next: next, cache: rdb, ttl: ttl, log: log}
}

func linkKey(longURL string) string {
	sum := sha1.Sum([]byte(longURL))
	return linkKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cached) Shorten(ctx context.Context, longURL string) (string, error) {
	if longURL == "" {
		return "", nil
	}
	key := linkKey(longURL)

	short, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil && short != "":
		return short, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Msg("link cache lookup failed")
	}

	short, err = c.next.Shorten(ctx, longURL)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, short, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("link cache store failed")
	}
	return short, nil
}
