package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
	"github.com/alpinisme/formation-sync/internal/metrics"
)

// Notifier renders digests and dispatches one email per user.
type Notifier struct {
	mailer  course.Mailer
	prefs   course.PreferenceStore
	subject string
	logger  *zap.Logger
}

// NewNotifier builds a Notifier. subject is the email subject prefix.
func NewNotifier(mailer course.Mailer, prefs course.PreferenceStore, subject string, logger *zap.Logger) *Notifier {
	if subject == "" {
		subject = "Nouvelles formations"
	}
	return &Notifier{mailer: mailer, prefs: prefs, subject: subject, logger: logger}
}

// Dispatch sends every digest. One user's failure is recorded and never
// blocks the remaining sends. After a successful send the last-notified
// watermark is advanced for every discipline present in that digest, so a
// multi-discipline digest starts the cooldown on all of them. Watermark
// updates commit per user: a later user's send failure cannot roll back an
// earlier user's committed update.
func (n *Notifier) Dispatch(ctx context.Context, digests map[int64]*course.Digest, now time.Time) course.NotificationResult {
	userIDs := make([]int64, 0, len(digests))
	for id := range digests {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	var result course.NotificationResult
	for _, userID := range userIDs {
		d := digests[userID]
		if err := n.dispatchOne(ctx, d, now); err != nil {
			metrics.ObserveNotification(false)
			n.logger.Error("digest dispatch failed",
				zap.Int64("user_id", d.UserID),
				zap.String("email", d.Email),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, course.NotifyError{
				UserID:  d.UserID,
				Email:   d.Email,
				Message: err.Error(),
			})
			continue
		}
		metrics.ObserveNotification(true)
		result.Notified++
	}

	n.logger.Info("digest dispatch finished",
		zap.Int("notified", result.Notified),
		zap.Int("failed", len(result.Errors)),
	)
	return result
}

func (n *Notifier) dispatchOne(ctx context.Context, d *course.Digest, now time.Time) error {
	body, err := renderDigest(*d)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s — %d formation(s)", n.subject, d.CourseCount())

	if err := n.mailer.Send(ctx, d.Email, subject, body); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}

	if err := n.prefs.SetLastNotifiedAt(ctx, d.UserID, d.Disciplines(), now); err != nil {
		// The mail went out; failing to advance the watermark risks a
		// duplicate tomorrow but must not fail the dispatch.
		n.logger.Warn("last-notified update failed",
			zap.Int64("user_id", d.UserID),
			zap.Error(err),
		)
	}
	return nil
}
