package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
)

// Extractor implements course.Extractor by combining the page fetcher with
// the listing parser.
type Extractor struct {
	fetcher *Fetcher
	parser  *Parser
	logger  *zap.Logger
}

// New builds an Extractor for the configured catalog page.
func New(cfg FetcherConfig, logger *zap.Logger) (*Extractor, error) {
	fetcher, err := NewFetcher(cfg)
	if err != nil {
		return nil, err
	}
	parser, err := NewParser(cfg.URL, logger)
	if err != nil {
		return nil, err
	}
	return &Extractor{fetcher: fetcher, parser: parser, logger: logger}, nil
}

// Extract fetches the catalog page and parses every listing. The raw HTML
// is returned for snapshot archiving. A fetch failure aborts the whole
// extraction; individual listing failures are logged inside the parser.
func (e *Extractor) Extract(ctx context.Context) ([]course.Course, []byte, error) {
	html, err := e.fetcher.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch catalog: %w", err)
	}
	records, err := e.parser.Parse(html)
	if err != nil {
		return nil, nil, fmt.Errorf("parse catalog: %w", err)
	}
	e.logger.Info("catalog extracted",
		zap.Int("bytes", len(html)),
		zap.Int("records", len(records)),
	)
	return records, html, nil
}
