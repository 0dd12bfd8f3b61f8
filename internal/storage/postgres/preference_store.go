package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alpinisme/formation-sync/internal/course"
)

// PreferenceStore reads notification preferences and advances last-notified
// watermarks. Preference rows themselves are created and edited by the
// account-facing feature, not by this pipeline.
type PreferenceStore struct {
	pool pool
}

// NewPreferenceStore constructs a store from an existing pool.
func NewPreferenceStore(p pool) (*PreferenceStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PreferenceStore{pool: p}, nil
}

// SubscribersForDiscipline returns the users subscribed and enabled for the
// named discipline.
func (s *PreferenceStore) SubscribersForDiscipline(ctx context.Context, discipline string) ([]course.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
SELECT p.user_id, p.email
FROM notification_preferences p
JOIN disciplines d ON d.id = p.discipline_id
WHERE d.name = $1 AND p.enabled
ORDER BY p.user_id`, discipline)
	if err != nil {
		return nil, fmt.Errorf("select subscribers for %s: %w", discipline, err)
	}
	defer rows.Close()

	var subs []course.Subscriber
	for rows.Next() {
		var sub course.Subscriber
		if err := rows.Scan(&sub.UserID, &sub.Email); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subs, nil
}

// LastNotifiedAt returns when the user was last notified for the
// discipline, or nil if never.
func (s *PreferenceStore) LastNotifiedAt(ctx context.Context, userID int64, discipline string) (*time.Time, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT p.last_notified_at
FROM notification_preferences p
JOIN disciplines d ON d.id = p.discipline_id
WHERE p.user_id = $1 AND d.name = $2`, userID, discipline).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("select last_notified_at: %w", err)
	}
	return last, nil
}

// SetLastNotifiedAt advances the watermark for every given discipline of
// the user. The watermark only moves forward: a stale now never rewinds an
// already-later timestamp.
func (s *PreferenceStore) SetLastNotifiedAt(ctx context.Context, userID int64, disciplines []string, now time.Time) error {
	if len(disciplines) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
UPDATE notification_preferences p
SET last_notified_at = $1
FROM disciplines d
WHERE d.id = p.discipline_id
  AND p.user_id = $2
  AND d.name = ANY($3)
  AND (p.last_notified_at IS NULL OR p.last_notified_at < $1)`,
		now, userID, disciplines)
	if err != nil {
		return fmt.Errorf("update last_notified_at: %w", err)
	}
	return nil
}
