// Package healthcheck reports run outcomes to an external dead-man's-switch
// monitor (healthchecks.io style).
package healthcheck

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Pinger POSTs the run summary to the configured base URL, or to
// {base}/fail when the run had errors. An empty base URL disables the
// feature entirely. Pings are best-effort: a monitoring outage must never
// cause the run itself to be reported as failed.
type Pinger struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// New builds a Pinger. timeout bounds each ping so a slow monitor cannot
// stall the run report.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Pinger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pinger{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Ping signals success or failure with a short message body. Errors are
// logged and swallowed.
func (p *Pinger) Ping(ctx context.Context, ok bool, message string) {
	if p.baseURL == "" {
		return
	}
	url := p.baseURL
	if !ok {
		url += "/fail"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		p.logger.Warn("health ping request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("health ping failed", zap.String("url", url), zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		p.logger.Warn("health ping rejected",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode),
		)
	}
}
