// Package snapshot archives the raw catalog HTML captured by each sync
// run, so a parsing regression can be replayed against the exact input
// that triggered it.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
)

// blobWriter abstracts the storage backend holding snapshot objects.
type blobWriter interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver stores one HTML snapshot per sync run under
// <prefix>/<YYYY-MM-DD>/<runID>.html and implements course.Archiver.
type Archiver struct {
	blobs  blobWriter
	prefix string
	logger *zap.Logger
}

// NewArchiver wraps a blob backend with the snapshot naming scheme.
func NewArchiver(blobs blobWriter, prefix string, logger *zap.Logger) *Archiver {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Archiver{blobs: blobs, prefix: prefix, logger: logger}
}

// Archive uploads the page and returns the stored object's URI.
func (a *Archiver) Archive(ctx context.Context, runID string, html []byte, now time.Time) (string, error) {
	path := fmt.Sprintf("%s/%s/%s.html", a.prefix, now.UTC().Format("2006-01-02"), runID)
	uri, err := a.blobs.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	a.logger.Debug("snapshot archived", zap.String("uri", uri), zap.Int("bytes", len(html)))
	return uri, nil
}

// Noop discards snapshots. Used when archiving is disabled.
type Noop struct{}

// Archive reports success without storing anything.
func (Noop) Archive(context.Context, string, []byte, time.Time) (string, error) {
	return "", nil
}

var (
	_ course.Archiver = (*Archiver)(nil)
	_ course.Archiver = Noop{}
)
