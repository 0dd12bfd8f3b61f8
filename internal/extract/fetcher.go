// Package extract fetches the federation catalog page and parses it into
// course records.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// FetcherConfig controls collector behavior.
type FetcherConfig struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher retrieves the catalog page using a Colly collector. The page is
// a single fixed URL; there is no link following.
type Fetcher struct {
	cfg           FetcherConfig
	baseCollector *colly.Collector
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("source url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, baseCollector: c}, nil
}

// Fetch executes a single HTTP GET against the configured URL. Any
// transport failure or non-2xx status is a hard error: the caller must
// abort the whole extraction.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("started", time.Now())
		select {
		case <-ctx.Done():
			r.Abort()
			fetchErr = ctx.Err()
		default:
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			fetchErr = fmt.Errorf("unexpected status %d from %s", r.StatusCode, f.cfg.URL)
			return
		}
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s (status %d): %w", f.cfg.URL, r.StatusCode, err)
	})

	if err := collector.Visit(f.cfg.URL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", f.cfg.URL, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from %s", f.cfg.URL)
	}
	return body, nil
}
