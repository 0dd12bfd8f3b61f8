package course

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store reads when no course matches.
var ErrNotFound = errors.New("course not found")

// Store persists course records and their dependent rows.
//
// The orchestrator drives chunking: PreloadDimensions is called once per
// batch, then UpsertChunk per chunk, falling back to UpsertOne when a chunk
// fails as a whole.
type Store interface {
	PreloadDimensions(ctx context.Context, batch []Course) error
	UpsertChunk(ctx context.Context, chunk []Course, now time.Time) error
	UpsertOne(ctx context.Context, c Course, now time.Time) error
	GetByReference(ctx context.Context, reference string) (Course, error)
	List(ctx context.Context) ([]Course, error)
	LastSeenAt(ctx context.Context) (time.Time, error)
	FirstSeenOn(ctx context.Context, day time.Time) ([]Course, error)
}

// PreferenceStore reads notification preferences and advances the
// last-notified watermark. Preference rows themselves are managed elsewhere.
type PreferenceStore interface {
	SubscribersForDiscipline(ctx context.Context, discipline string) ([]Subscriber, error)
	LastNotifiedAt(ctx context.Context, userID int64, discipline string) (*time.Time, error)
	SetLastNotifiedAt(ctx context.Context, userID int64, disciplines []string, now time.Time) error
}

// Extractor fetches the catalog page and parses it into course records.
// The raw document is returned alongside so callers may archive it.
type Extractor interface {
	Extract(ctx context.Context) ([]Course, []byte, error)
}

// Mailer dispatches a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

// Pinger signals run outcome to an external dead-man's-switch monitor.
// Implementations are best-effort and must never propagate failures.
type Pinger interface {
	Ping(ctx context.Context, ok bool, message string)
}

// Archiver stores a raw catalog snapshot and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, runID string, html []byte, now time.Time) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
