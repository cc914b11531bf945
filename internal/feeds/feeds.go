// Package feeds pulls supplemental job postings from configured RSS and Atom
// endpoints. Feed results only ever add to what the browser session collects;
// a dead or misbehaving endpoint is logged and skipped, never fatal.
package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

const (
	defaultTimeout       = 20 * time.Second
	defaultMaxConcurrent = 4
	defaultMaxItems      = 50

	// Ceiling on a single feed document. Anything larger is not a job feed.
	maxFeedBytes = 8 * 1024 * 1024

	fetchRetries = 2
)

// Source fetches and parses the configured feed endpoints. It implements
// schemas.UnitSource.
type Source struct {
	cfg    config.FeedsConfig
	client *http.Client
	log    *zap.Logger

	// backoffFactory builds the retry policy for one endpoint fetch.
	// Overridable in tests.
	backoffFactory func() backoff.BackOff
}

// NewSource builds a feed source from config. The HTTP client negotiates and
// transparently unwraps brotli, gzip and deflate bodies.
func NewSource(cfg config.FeedsConfig, logger *zap.Logger) *Source {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Source{
		cfg: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newDecompressingTransport(nil),
		},
		log:            logger.Named("feeds"),
		backoffFactory: defaultFetchBackoff,
	}
}

func defaultFetchBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries)
}

// FetchUnits polls every configured endpoint concurrently and merges the
// results. Endpoint failures are logged and swallowed; only context
// cancellation aborts the poll. Returned units are deduplicated by source URL
// and capped at the configured max.
func (s *Source) FetchUnits(ctx context.Context, keyword string) ([]schemas.RawUnit, error) {
	if !s.cfg.Enabled || len(s.cfg.Endpoints) == 0 {
		return nil, nil
	}

	limit := s.cfg.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	var collected []schemas.RawUnit

	for _, endpoint := range s.cfg.Endpoints {
		fetchURL := endpointURL(endpoint, keyword)
		g.Go(func() error {
			units, err := s.fetchOne(groupCtx, fetchURL)
			if err != nil {
				// Never load-bearing. Log and move on unless the whole
				// poll was cancelled.
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				s.log.Warn("Feed endpoint failed, skipping",
					zap.String("endpoint", fetchURL),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			collected = append(collected, units...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	units := dedupeBySourceURL(collected)

	maxItems := s.cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if len(units) > maxItems {
		units = units[:maxItems]
	}

	s.log.Debug("Feed poll complete",
		zap.String("keyword", keyword),
		zap.Int("endpoints", len(s.cfg.Endpoints)),
		zap.Int("units", len(units)))

	return units, nil
}

// fetchOne retrieves and parses a single feed document, retrying transient
// failures. Client errors and unparsable documents are permanent.
func (s *Source) fetchOne(ctx context.Context, fetchURL string) ([]schemas.RawUnit, error) {
	var units []schemas.RawUnit

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build feed request: %w", err))
		}
		req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

		resp, err := s.client.Do(req)
		if err != nil {
			// Network level failure, worth another attempt.
			return fmt.Errorf("feed request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			err := fmt.Errorf("feed endpoint returned status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return fmt.Errorf("failed to read feed body: %w", err)
		}

		parsed, err := parseFeed(body, time.Now().UTC())
		if err != nil {
			// A malformed document will not improve on retry.
			return backoff.Permanent(err)
		}
		units = parsed
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(s.backoffFactory(), ctx)); err != nil {
		return nil, err
	}
	return units, nil
}

// endpointURL substitutes the URL-escaped keyword for a %s placeholder.
// Endpoints without a placeholder are polled as-is.
func endpointURL(endpoint, keyword string) string {
	if !strings.Contains(endpoint, "%s") {
		return endpoint
	}
	return strings.Replace(endpoint, "%s", url.QueryEscape(keyword), 1)
}

// dedupeBySourceURL drops repeat links, keeping first occurrence. Units
// without a source URL are always kept.
func dedupeBySourceURL(units []schemas.RawUnit) []schemas.RawUnit {
	seen := make(map[string]struct{}, len(units))
	out := units[:0]
	for _, u := range units {
		if u.SourceURL != "" {
			if _, dup := seen[u.SourceURL]; dup {
				continue
			}
			seen[u.SourceURL] = struct{}{}
		}
		out = append(out, u)
	}
	return out
}
